package labels

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/labels/preview", h.Preview)
	r.POST("/labels/export", h.Export)
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

func (h *Handler) Preview(c *gin.Context) {
	var req BatchLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrInvalid("invalid request body: "+err.Error())))
		return
	}
	rows, err := h.svc.BuildLabels(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, PreviewResponse{Rows: rows})
}

func (h *Handler) Export(c *gin.Context) {
	var req BatchLabelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(ErrInvalid("invalid request body: "+err.Error())))
		return
	}
	rows, err := h.svc.BuildLabels(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorBody(err))
		return
	}
	data, err := ExportCSV(rows)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorBody(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="labels.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=Shift_JIS", data)
}
