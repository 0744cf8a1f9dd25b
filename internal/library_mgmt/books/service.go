package books

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
	ulid "github.com/oklog/ulid/v2"
)

// ===== Error model (loans/students と同型) =====
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

type Service struct {
	db    *sql.DB
	store *Store
}

func NewService(db *sql.DB) *Service { return &Service{db: db, store: NewStore(db)} }

func (s *Service) CreateBook(ctx context.Context, in CreateBookRequest) (BookResponse, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" {
		return BookResponse{}, ErrInvalid("title and author are required")
	}
	if in.TotalCopies <= 0 {
		return BookResponse{}, ErrInvalid("total_copies must be > 0")
	}

	// 仮受入番号（UNIQUEを満たす）。確定番号への置換は同一Txで行う。
	tmpAcc := "TMP-" + ulid.Make().String()
	bookULID := ulid.Make().String()

	id, err := s.store.InsertBookFinalized(ctx, in, bookULID, tmpAcc)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return BookResponse{}, ErrConflict("scan_code or legacy_id already registered")
		}
		return BookResponse{}, err
	}

	out, err := s.store.GetBookByID(ctx, id)
	if err != nil {
		return BookResponse{}, err
	}
	return *out, nil
}

func (s *Service) GetBook(ctx context.Context, accessionNumber string) (BookResponse, error) {
	out, err := s.store.GetBookByAccession(ctx, accessionNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			return BookResponse{}, ErrNotFound("book not found")
		}
		return BookResponse{}, err
	}
	return *out, nil
}

func (s *Service) ListBooks(ctx context.Context, q BookSearchQuery, p Page) ([]BookResponse, int64, error) {
	return s.store.ListBooks(ctx, q, p)
}

func (s *Service) UpdateBook(ctx context.Context, accessionNumber string, in UpdateBookRequest) (BookResponse, error) {
	if in.TotalCopies != nil && *in.TotalCopies < 0 {
		return BookResponse{}, ErrInvalid("total_copies must be >= 0")
	}
	out, err := s.store.UpdateBookByAccession(ctx, accessionNumber, in)
	if err != nil {
		if err == sql.ErrNoRows {
			return BookResponse{}, ErrNotFound("book not found")
		}
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return BookResponse{}, ErrConflict("scan_code already registered")
		}
		return BookResponse{}, err
	}
	return *out, nil
}
