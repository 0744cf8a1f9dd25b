package students

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
	ulid "github.com/oklog/ulid/v2"
)

// ===== Error model (books/loans と同型) =====
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

func (s *Service) CreateStudent(ctx context.Context, in CreateStudentRequest) (StudentResponse, error) {
	if strings.TrimSpace(in.FullName) == "" {
		return StudentResponse{}, ErrInvalid("full_name is required")
	}

	// 仮学籍番号（UNIQUEを満たす）。確定番号への置換は同一Txで行う。
	tmpNum := "TMP-" + ulid.Make().String()
	studentULID := ulid.Make().String()

	id, err := s.store.InsertStudentFinalized(ctx, in, studentULID, tmpNum)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return StudentResponse{}, ErrConflict("scan_code or legacy_id already registered")
		}
		return StudentResponse{}, err
	}

	out, err := s.store.GetStudentByID(ctx, id)
	if err != nil {
		return StudentResponse{}, err
	}
	return *out, nil
}

func (s *Service) GetStudent(ctx context.Context, studentNumber string) (StudentResponse, error) {
	out, err := s.store.GetStudentByNumber(ctx, studentNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			return StudentResponse{}, ErrNotFound("student not found")
		}
		return StudentResponse{}, err
	}
	return *out, nil
}

func (s *Service) ListStudents(ctx context.Context, q StudentSearchQuery, p Page) ([]StudentResponse, int64, error) {
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return s.store.ListStudents(ctx, q, p)
}

func (s *Service) UpdateStudent(ctx context.Context, studentNumber string, in UpdateStudentRequest) (StudentResponse, error) {
	out, err := s.store.UpdateStudentByNumber(ctx, studentNumber, in)
	if err != nil {
		if err == sql.ErrNoRows {
			return StudentResponse{}, ErrNotFound("student not found")
		}
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return StudentResponse{}, ErrConflict("scan_code already registered")
		}
		return StudentResponse{}, err
	}
	return *out, nil
}
