package withdrawals

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

// 除籍（蔵書からの取り除き）。破損・紛失した冊数を total_copies から減らして記録する。

// ---- Error model ----
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict:
			return 409
		default:
			return 500
		}
	}
	return 500
}

// ---- Clock & ID ----
type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ---- DTO ----

type CreateWithdrawalRequest struct {
	AccessionNumber string  `json:"accession_number" binding:"required"`
	Quantity        int     `json:"quantity" binding:"required"`
	Reason          string  `json:"reason" binding:"required"` // damaged / lost / weeded など
	ProcessedBy     *string `json:"processed_by,omitempty"`
	Note            *string `json:"note,omitempty"`
}

type WithdrawalResponse struct {
	WithdrawalID    int64     `json:"withdrawal_id"`
	WithdrawalULID  string    `json:"withdrawal_ulid"`
	BookID          int64     `json:"book_id"`
	AccessionNumber string    `json:"accession_number"`
	Quantity        int       `json:"quantity"`
	Reason          string    `json:"reason"`
	ProcessedBy     *string   `json:"processed_by,omitempty"`
	WithdrawnAt     time.Time `json:"withdrawn_at"`
	Note            *string   `json:"note,omitempty"`
}

// ---- Service ----

type Service struct {
	db    *sql.DB
	store *Store
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	return &Service{
		db:    db,
		store: NewStore(db),
		clock: realClock{},
		id:    ulidGen{},
	}
}

func (s *Service) CreateWithdrawal(ctx context.Context, req CreateWithdrawalRequest) (*WithdrawalResponse, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalid("quantity must be > 0")
	}
	if req.Reason == "" {
		return nil, ErrInvalid("reason is required")
	}

	now := s.clock.Now()
	m := &Withdrawal{
		WithdrawalULID: s.id.NewULID(now),
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		WithdrawnAt:    now,
	}
	if req.ProcessedBy != nil && *req.ProcessedBy != "" {
		m.ProcessedBy.String = *req.ProcessedBy
		m.ProcessedBy.Valid = true
	}
	if req.Note != nil && *req.Note != "" {
		m.Note.String = *req.Note
		m.Note.Valid = true
	}

	if err := s.store.ExecCreateWithdrawal(ctx, req.AccessionNumber, m); err != nil {
		return nil, err
	}

	resp := &WithdrawalResponse{
		WithdrawalID:    m.WithdrawalID,
		WithdrawalULID:  m.WithdrawalULID,
		BookID:          m.BookID,
		AccessionNumber: req.AccessionNumber,
		Quantity:        m.Quantity,
		Reason:          m.Reason,
		WithdrawnAt:     m.WithdrawnAt,
	}
	if m.ProcessedBy.Valid {
		v := m.ProcessedBy.String
		resp.ProcessedBy = &v
	}
	if m.Note.Valid {
		v := m.Note.String
		resp.Note = &v
	}
	return resp, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, limit, offset int) ([]WithdrawalResponse, int64, error) {
	return s.store.ListWithdrawals(ctx, limit, offset)
}
