package loans

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestToHTTPStatus(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"invalid argument", ErrInvalid("bad token"), 400},
		{"not found", ErrNotFound("no such loan"), 404},
		{"conflict", ErrConflict("already returned"), 409},
		{"unavailable", ErrUnavailable("db timeout"), 503},
		{"internal", ErrInternal("boom"), 500},
		{"plain error", errors.New("boom"), 500},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, toHTTPStatus(tt.err))
		})
	}
}

// 接続断・タイムアウトは500ではなく503で返す（リトライ可能と明示する）
func TestTransientErrorsMapToUnavailable(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{"bad conn", driver.ErrBadConn},
		{"invalid conn", mysql.ErrInvalidConn},
		{"deadline exceeded", context.DeadlineExceeded},
		{"wrapped bad conn", fmt.Errorf("open loan: %w", driver.ErrBadConn)},
		{"pkg/errors wrapped deadline", errors.Wrap(context.DeadlineExceeded, "close loan")},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 503, toHTTPStatus(tt.err))
			assert.Equal(t, CodeUnavailable, errorFromErr(tt.err).Error.Code)
		})
	}
}

func TestNonTransientErrorStaysInternal(t *testing.T) {
	err := errors.New("syntax error in query")
	assert.Equal(t, 500, toHTTPStatus(err))
	assert.Equal(t, CodeInternal, errorFromErr(err).Error.Code)
}
