package sweep

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRA-backend/internal/library_mgmt/loans"
	"LIBRA-backend/internal/platform/mail"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fakeSweepStore struct {
	overdue      []OverdueLoan
	fineUpdates  map[int64]int
	notifiedDays map[int64]time.Time
}

func newFakeSweepStore(overdue ...OverdueLoan) *fakeSweepStore {
	return &fakeSweepStore{
		overdue:      overdue,
		fineUpdates:  map[int64]int{},
		notifiedDays: map[int64]time.Time{},
	}
}

func (f *fakeSweepStore) ListOverdue(_ context.Context, _ time.Time) ([]OverdueLoan, error) {
	out := make([]OverdueLoan, len(f.overdue))
	copy(out, f.overdue)
	return out, nil
}

func (f *fakeSweepStore) UpdateFine(_ context.Context, loanID int64, fine int) error {
	f.fineUpdates[loanID] = fine
	for i := range f.overdue {
		if f.overdue[i].LoanID == loanID {
			f.overdue[i].FineAccrued = fine
		}
	}
	return nil
}

func (f *fakeSweepStore) MarkNotified(_ context.Context, loanID int64, day time.Time) error {
	f.notifiedDays[loanID] = day
	for i := range f.overdue {
		if f.overdue[i].LoanID == loanID {
			f.overdue[i].LastNotifiedOn = sql.NullTime{Time: day, Valid: true}
		}
	}
	return nil
}

type fakeSender struct {
	sent    []mail.OverdueNotice
	failFor map[string]bool
}

func (f *fakeSender) SendOverdueNotice(_ context.Context, n mail.OverdueNotice) error {
	if f.failFor[n.To] {
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, n)
	return nil
}

var sweepNow = time.Date(2025, 5, 20, 7, 0, 0, 0, time.UTC)

func email(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func overdueLoan(id int64, daysLate int) OverdueLoan {
	return OverdueLoan{
		LoanID:       id,
		LoanULID:     "01HQ5SWEEP000000000000000A",
		DueOn:        sweepNow.AddDate(0, 0, -daysLate),
		StudentName:  "テスト学生",
		StudentEmail: email("student@example.jp"),
		BookTitle:    "銀河鉄道の夜",
		BookAuthor:   "宮沢賢治",
	}
}

func newSweepService(store *fakeSweepStore, sender *fakeSender) *Service {
	return &Service{
		store:  store,
		sender: sender,
		clock:  &fakeClock{now: sweepNow},
		policy: loans.Policy{LoanPeriodDays: 7, FinePerDay: 10},
	}
}

func TestSweepUpdatesFineAndNotifies(t *testing.T) {
	store := newFakeSweepStore(overdueLoan(1, 3))
	sender := &fakeSender{}
	res := newSweepService(store, sender).RunSweep(context.Background())

	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.FinesUpdated)
	assert.Equal(t, 1, res.Notified)
	assert.Equal(t, 0, res.Failed)

	assert.Equal(t, 30, store.fineUpdates[1])
	require.Len(t, sender.sent, 1)
	assert.Equal(t, 3, sender.sent[0].DaysOverdue)
	assert.Equal(t, 30, sender.sent[0].FineAmount)
}

func TestSweepSkipsUnchangedFine(t *testing.T) {
	lo := overdueLoan(1, 3)
	lo.FineAccrued = 30 // 前回スイープで既に30まで更新済み
	store := newFakeSweepStore(lo)
	res := newSweepService(store, &fakeSender{}).RunSweep(context.Background())

	assert.Equal(t, 0, res.FinesUpdated)
	assert.NotContains(t, store.fineUpdates, int64(1))
}

func TestSweepNotifiesOncePerDay(t *testing.T) {
	store := newFakeSweepStore(overdueLoan(1, 3))
	sender := &fakeSender{}
	svc := newSweepService(store, sender)
	ctx := context.Background()

	svc.RunSweep(ctx)
	res := svc.RunSweep(ctx)

	assert.Equal(t, 0, res.Notified)
	assert.Len(t, sender.sent, 1)

	// 翌日はまた1通送られる
	svc.clock.(*fakeClock).now = sweepNow.AddDate(0, 0, 1)
	res = svc.RunSweep(ctx)
	assert.Equal(t, 1, res.Notified)
	assert.Len(t, sender.sent, 2)
}

func TestSweepFailedSendDoesNotAdvanceDate(t *testing.T) {
	store := newFakeSweepStore(overdueLoan(1, 3))
	sender := &fakeSender{failFor: map[string]bool{"student@example.jp": true}}
	svc := newSweepService(store, sender)
	ctx := context.Background()

	res := svc.RunSweep(ctx)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Notified)
	assert.NotContains(t, store.notifiedDays, int64(1))

	// 送信が直れば同日中でも再送される
	sender.failFor = nil
	res = svc.RunSweep(ctx)
	assert.Equal(t, 1, res.Notified)
	assert.Len(t, sender.sent, 1)
}

func TestSweepContinuesAfterLoanFailure(t *testing.T) {
	bad := overdueLoan(1, 2)
	bad.StudentEmail = email("broken@example.jp")
	good := overdueLoan(2, 5)
	store := newFakeSweepStore(bad, good)
	sender := &fakeSender{failFor: map[string]bool{"broken@example.jp": true}}

	res := newSweepService(store, sender).RunSweep(context.Background())

	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Notified)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, 5, sender.sent[0].DaysOverdue)
}

func TestSweepSkipsLoansWithoutEmail(t *testing.T) {
	lo := overdueLoan(1, 3)
	lo.StudentEmail = sql.NullString{}
	store := newFakeSweepStore(lo)
	sender := &fakeSender{}

	res := newSweepService(store, sender).RunSweep(context.Background())

	assert.Equal(t, 0, res.Notified)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.FinesUpdated) // 料金更新は宛先の有無と無関係
	assert.Empty(t, sender.sent)
}
