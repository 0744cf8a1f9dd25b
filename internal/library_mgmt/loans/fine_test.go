package loans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysOverdue(t *testing.T) {
	due := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		ref      time.Time
		expected int
	}{
		{"before due", due.Add(-48 * time.Hour), 0},
		{"exactly due", due, 0},
		{"one second late", due.Add(1 * time.Second), 1},
		{"almost one day", due.Add(24*time.Hour - time.Second), 1},
		{"exactly one day", due.Add(24 * time.Hour), 1},
		{"one day and a second", due.Add(24*time.Hour + time.Second), 2},
		{"a week", due.Add(7 * 24 * time.Hour), 7},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DaysOverdue(due, tt.ref))
		})
	}
}

func TestFine(t *testing.T) {
	due := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name     string
		ref      time.Time
		perDay   int
		expected int
	}{
		{"not overdue is free", due.Add(-time.Hour), 10, 0},
		{"partial day rounds up", due.Add(90 * time.Minute), 10, 10},
		{"one day plus a second", due.Add(24*time.Hour + time.Second), 10, 20},
		{"three days at 50", due.Add(3 * 24 * time.Hour), 50, 150},
		{"zero rate", due.Add(10 * 24 * time.Hour), 0, 0},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fine(due, tt.ref, tt.perDay))
		})
	}
}

// 時間が進んでも料金は減らない
func TestFineMonotonic(t *testing.T) {
	due := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	prev := 0
	for h := 0; h < 24*8; h++ {
		f := Fine(due, due.Add(time.Duration(h)*time.Hour), 10)
		assert.GreaterOrEqual(t, f, prev)
		prev = f
	}
}
