package labels

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// 蔵書・利用者カード用ラベル生成（books/students と同型のエラーモデル）。
// QR ペイロードは読み取り側が kind を検証できるよう構造化 JSON にする。

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		default:
			return 500
		}
	}
	return 500
}

type qrPayload struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func encodePayload(kind, ulid string) (string, error) {
	b, err := json.Marshal(qrPayload{Kind: kind, ID: ulid})
	if err != nil {
		return "", ErrInternal("failed to encode payload: " + err.Error())
	}
	return string(b), nil
}

type Service struct {
	store *Store
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db)}
}

func (s *Service) BuildLabels(ctx context.Context, req BatchLabelRequest) ([]LabelRow, error) {
	if len(req.Tokens) == 0 {
		return nil, ErrInvalid("tokens must not be empty")
	}
	if len(req.Tokens) > 200 {
		return nil, ErrInvalid("too many tokens (max 200)")
	}

	switch req.Kind {
	case "book":
		return s.bookLabels(ctx, req.Tokens)
	case "student":
		return s.studentLabels(ctx, req.Tokens)
	default:
		return nil, ErrInvalid("kind must be 'book' or 'student'")
	}
}

func (s *Service) bookLabels(ctx context.Context, numbers []string) ([]LabelRow, error) {
	rows := make([]LabelRow, 0, len(numbers))
	for _, n := range numbers {
		b, err := s.store.BookByAccession(ctx, n)
		if err != nil {
			return nil, err
		}
		if b == nil {
			return nil, ErrNotFound("book not found: " + n)
		}
		payload, err := encodePayload("book", b.ULID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, LabelRow{
			DisplayName: b.Title,
			SubText:     b.Author,
			Number:      b.AccessionNumber,
			QRPayload:   payload,
		})
	}
	return rows, nil
}

func (s *Service) studentLabels(ctx context.Context, numbers []string) ([]LabelRow, error) {
	rows := make([]LabelRow, 0, len(numbers))
	for _, n := range numbers {
		st, err := s.store.StudentByNumber(ctx, n)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, ErrNotFound("student not found: " + n)
		}
		payload, err := encodePayload("student", st.ULID)
		if err != nil {
			return nil, err
		}
		sub := st.GradeLevel
		if st.Section != "" {
			sub = st.GradeLevel + "-" + st.Section
		}
		rows = append(rows, LabelRow{
			DisplayName: st.FullName,
			SubText:     sub,
			Number:      st.StudentNumber,
			QRPayload:   payload,
		})
	}
	return rows, nil
}
