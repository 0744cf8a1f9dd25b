package withdrawals

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/withdrawals", h.CreateWithdrawal)
	r.GET("/withdrawals", h.ListWithdrawals)
}

type errorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorBody(err error) gin.H {
	var api *APIError
	if errors.As(err, &api) {
		return gin.H{"error": errorDTO{Code: string(api.Code), Message: api.Message}}
	}
	return gin.H{"error": errorDTO{Code: string(CodeInternal), Message: "internal error"}}
}

func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrInvalid("invalid request body: "+err.Error())))
		return
	}
	resp, err := h.svc.CreateWithdrawal(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	items, total, err := h.svc.ListWithdrawals(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}
