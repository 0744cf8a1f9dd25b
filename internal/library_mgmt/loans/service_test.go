package loans

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LIBRA-backend/internal/library_mgmt/resolver"
)

// ===== テスト用フェイク =====

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDGen struct{ n int }

func (g *seqIDGen) New() (string, error) {
	g.n++
	// ulid.ParseStrict が通るよう Crockford base32 の文字だけを使う
	return fmt.Sprintf("01HTESTGEN%016d", g.n), nil
}

type fakeResolver struct {
	entries map[string]resolver.Resolved
}

func (r *fakeResolver) Resolve(_ context.Context, token string, kind resolver.Kind) (*resolver.Resolved, error) {
	res, ok := r.entries[token]
	if !ok {
		return nil, &resolver.ResolveError{Token: token, Kind: kind, Attempted: []string{"scan_code"}}
	}
	if kind != resolver.KindAny && kind != res.Kind {
		return nil, &resolver.ResolveError{Token: token, Kind: kind, Attempted: []string{"scan_code"}}
	}
	return &res, nil
}

// memStore: LedgerStore のインメモリ実装。1Txの不変条件をメソッド内で再現する。
type memStore struct {
	copies map[int64]int // book_id → total_copies
	loans  []*Loan
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{copies: map[int64]int{}}
}

func (m *memStore) activeByBook(bookID int64) []*Loan {
	var out []*Loan
	for _, l := range m.loans {
		if l.BookID == bookID && !l.Returned {
			out = append(out, l)
		}
	}
	return out
}

func (m *memStore) ExecOpenLoan(_ context.Context, lo *Loan) error {
	total, ok := m.copies[lo.BookID]
	if !ok {
		return ErrNotFound("book not found")
	}
	if len(m.activeByBook(lo.BookID)) >= total {
		return ErrConflict("no copies available")
	}
	for _, l := range m.loans {
		if l.StudentID == lo.StudentID && l.BookID == lo.BookID && !l.Returned {
			return ErrConflict("this student already has this book on loan")
		}
	}
	m.nextID++
	lo.LoanID = m.nextID
	m.loans = append(m.loans, lo)
	return nil
}

func (m *memStore) ExecCloseLoan(_ context.Context, loanID int64, now time.Time, perDay int) (*Loan, error) {
	for _, l := range m.loans {
		if l.LoanID == loanID {
			if l.Returned {
				return nil, ErrConflict("loan already returned")
			}
			l.Returned = true
			l.ReturnedAt = sql.NullTime{Time: now, Valid: true}
			l.FineAccrued = Fine(l.DueOn, now, perDay)
			cp := *l
			return &cp, nil
		}
	}
	return nil, ErrNotFound("loan not found")
}

func (m *memStore) GetLoanByULID(_ context.Context, u string) (*Loan, error) {
	for _, l := range m.loans {
		if l.LoanULID == u {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetActiveLoansByBook(_ context.Context, bookID int64) ([]Loan, error) {
	var out []Loan
	for _, l := range m.activeByBook(bookID) {
		out = append(out, *l)
	}
	return out, nil
}

func (m *memStore) GetActiveLoanByPair(_ context.Context, studentID, bookID int64) (*Loan, error) {
	for _, l := range m.loans {
		if l.StudentID == studentID && l.BookID == bookID && !l.Returned {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListActiveLoansByStudent(_ context.Context, studentID int64) ([]LoanDetail, error) {
	var out []LoanDetail
	for _, l := range m.loans {
		if l.StudentID == studentID && !l.Returned {
			out = append(out, LoanDetail{Loan: *l})
		}
	}
	return out, nil
}

func (m *memStore) ListLoans(_ context.Context, _ LoanFilter, _ Page) ([]LoanDetail, int64, error) {
	var out []LoanDetail
	for _, l := range m.loans {
		out = append(out, LoanDetail{Loan: *l})
	}
	return out, int64(len(out)), nil
}

func (m *memStore) GetStudentInfo(_ context.Context, studentID int64) (*StudentInfo, error) {
	return &StudentInfo{StudentNumber: fmt.Sprintf("2025-%04d", studentID), FullName: "テスト学生"}, nil
}

func (m *memStore) SumReturnedUnpaid(_ context.Context, studentID int64) (int, error) {
	sum := 0
	for _, l := range m.loans {
		if l.StudentID == studentID && l.Returned && l.FineAccrued > l.FinePaid {
			sum += l.FineAccrued - l.FinePaid
		}
	}
	return sum, nil
}

func (m *memStore) ListSettleTargets(_ context.Context, studentID int64, now time.Time) ([]Loan, error) {
	var out []Loan
	for _, l := range m.loans {
		if l.StudentID != studentID {
			continue
		}
		if l.Returned && l.FineAccrued > l.FinePaid {
			out = append(out, *l)
		}
		if !l.Returned && l.DueOn.Before(now) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memStore) ApplySettlement(_ context.Context, loanID int64, fineAccrued, finePaid int) error {
	for _, l := range m.loans {
		if l.LoanID == loanID {
			l.FineAccrued = fineAccrued
			l.FinePaid = finePaid
			return nil
		}
	}
	return ErrNotFound("loan not found")
}

// ===== セットアップ =====

var testBase = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestService(store *memStore, clock *fakeClock) *Service {
	return &Service{
		store: store,
		resolver: &fakeResolver{entries: map[string]resolver.Resolved{
			"STU-A":  {Kind: resolver.KindStudent, ID: 1, ULID: "01STUDENTA0000000000000000"},
			"STU-B":  {Kind: resolver.KindStudent, ID: 2, ULID: "01STUDENTB0000000000000000"},
			"BOOK-1": {Kind: resolver.KindBook, ID: 10, ULID: "01BOOK1000000000000000000A"},
			"BOOK-2": {Kind: resolver.KindBook, ID: 11, ULID: "01BOOK2000000000000000000A"},
		}},
		policy: Policy{LoanPeriodDays: 7, FinePerDay: 10},
		clock:  clock,
		id:     &seqIDGen{},
	}
}

func assertCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	api, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T: %v", err, err)
	assert.Equal(t, code, api.Code)
}

// ===== 貸出 =====

func TestBorrowSetsDueDate(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	svc := newTestService(store, &fakeClock{now: testBase})

	res, err := svc.Borrow(context.Background(), BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	assert.Equal(t, MethodManual, res.Method)
	assert.Equal(t, testBase.AddDate(0, 0, 7), res.DueOn)
	assert.Equal(t, 0, res.CurrentFine)
	assert.False(t, res.Returned)
}

func TestBorrowUnknownToken(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	svc := newTestService(store, &fakeClock{now: testBase})

	_, err := svc.Borrow(context.Background(), BorrowRequest{StudentToken: "STU-A", ItemToken: "garbage"})
	assertCode(t, err, CodeNotFound)
}

func TestBorrowExhaustsCopies(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 2
	svc := newTestService(store, &fakeClock{now: testBase})
	ctx := context.Background()

	_, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-B", ItemToken: "BOOK-1"})
	require.NoError(t, err)

	// 在庫2冊を貸し切った後の3件目は拒否される
	svc.resolver.(*fakeResolver).entries["STU-C"] = resolver.Resolved{Kind: resolver.KindStudent, ID: 3}
	_, err = svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-C", ItemToken: "BOOK-1"})
	assertCode(t, err, CodeConflict)
}

func TestReturnRestoresAvailability(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	clock := &fakeClock{now: testBase}
	svc := newTestService(store, clock)
	ctx := context.Background()

	// 未返却貸出数が総冊数を超えていないことを毎ステップ確認する
	checkStock := func() {
		t.Helper()
		assert.LessOrEqual(t, len(store.activeByBook(10)), store.copies[10])
	}

	lent, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	checkStock()

	// 唯一の1冊が貸出中の間は他の学生は借りられない
	_, err = svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-B", ItemToken: "BOOK-1"})
	assertCode(t, err, CodeConflict)
	checkStock()

	// 返却で1冊分の枠が戻る
	clock.now = testBase.AddDate(0, 0, 2)
	_, err = svc.Return(ctx, ReturnRequest{Token: lent.LoanULID})
	require.NoError(t, err)
	checkStock()

	lent2, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-B", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	checkStock()

	// 2周目も同じ枠で回る
	_, err = svc.Return(ctx, ReturnRequest{Token: lent2.LoanULID})
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	checkStock()
}

func TestBorrowSameBookTwice(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 5
	svc := newTestService(store, &fakeClock{now: testBase})
	ctx := context.Background()

	_, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	assertCode(t, err, CodeConflict)
}

// ===== 返却 =====

func TestReturnOnTimeNoFine(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	clock := &fakeClock{now: testBase}
	svc := newTestService(store, clock)
	ctx := context.Background()

	lent, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)

	clock.now = testBase.AddDate(0, 0, 3)
	res, err := svc.Return(ctx, ReturnRequest{Token: lent.LoanULID})
	require.NoError(t, err)
	assert.Equal(t, 0, res.FineAmount)
	assert.True(t, res.Loan.Returned)
}

func TestReturnFreezesFine(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	clock := &fakeClock{now: testBase}
	svc := newTestService(store, clock)
	ctx := context.Background()

	lent, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)

	// 期限から3日遅れで返却
	clock.now = lent.DueOn.AddDate(0, 0, 3)
	res, err := svc.Return(ctx, ReturnRequest{Token: lent.LoanULID})
	require.NoError(t, err)
	assert.Equal(t, 30, res.FineAmount)

	// 返却後に時間が進んでも料金は増えない
	clock.now = clock.now.AddDate(0, 0, 30)
	profile, err := svc.Profile(ctx, "STU-A")
	require.NoError(t, err)
	assert.Equal(t, 30, profile.TotalOutstandingFine)
}

func TestReturnByBookToken(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	clock := &fakeClock{now: testBase}
	svc := newTestService(store, clock)
	ctx := context.Background()

	_, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)

	res, err := svc.Return(ctx, ReturnRequest{Token: "BOOK-1"})
	require.NoError(t, err)
	assert.True(t, res.Loan.Returned)
}

func TestReturnAmbiguousNeedsStudent(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 3
	clock := &fakeClock{now: testBase}
	svc := newTestService(store, clock)
	ctx := context.Background()

	_, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-B", ItemToken: "BOOK-1"})
	require.NoError(t, err)

	// 同じ本が2人に貸出中：本のトークンだけでは特定できない
	_, err = svc.Return(ctx, ReturnRequest{Token: "BOOK-1"})
	assertCode(t, err, CodeConflict)

	stu := "STU-B"
	res, err := svc.Return(ctx, ReturnRequest{Token: "BOOK-1", StudentToken: &stu})
	require.NoError(t, err)
	assert.True(t, res.Loan.Returned)
}

func TestReturnStudentTokenAlone(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	svc := newTestService(store, &fakeClock{now: testBase})

	_, err := svc.Return(context.Background(), ReturnRequest{Token: "STU-A"})
	assertCode(t, err, CodeInvalidArgument)
}

func TestReturnTwice(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	svc := newTestService(store, &fakeClock{now: testBase})
	ctx := context.Background()

	lent, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	_, err = svc.Return(ctx, ReturnRequest{Token: lent.LoanULID})
	require.NoError(t, err)
	_, err = svc.Return(ctx, ReturnRequest{Token: lent.LoanULID})
	assertCode(t, err, CodeConflict)
}

// ===== プロフィール・精算 =====

func TestProfileSumsOutstanding(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	store.copies[11] = 1
	clock := &fakeClock{now: testBase}
	svc := newTestService(store, clock)
	ctx := context.Background()

	lent1, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-2"})
	require.NoError(t, err)

	// 1冊目は2日遅れで返却（20円で凍結）、2冊目は5日延滞中（50円）
	clock.now = lent1.DueOn.AddDate(0, 0, 2)
	_, err = svc.Return(ctx, ReturnRequest{Token: lent1.LoanULID})
	require.NoError(t, err)
	clock.now = lent1.DueOn.AddDate(0, 0, 5)

	profile, err := svc.Profile(ctx, "STU-A")
	require.NoError(t, err)
	assert.Len(t, profile.ActiveLoans, 1)
	assert.Equal(t, 20+50, profile.TotalOutstandingFine)
}

func TestSettleFines(t *testing.T) {
	store := newMemStore()
	store.copies[10] = 1
	store.copies[11] = 1
	clock := &fakeClock{now: testBase}
	svc := newTestService(store, clock)
	ctx := context.Background()

	lent1, err := svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-1"})
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, BorrowRequest{StudentToken: "STU-A", ItemToken: "BOOK-2"})
	require.NoError(t, err)

	clock.now = lent1.DueOn.AddDate(0, 0, 2)
	_, err = svc.Return(ctx, ReturnRequest{Token: lent1.LoanULID})
	require.NoError(t, err)
	clock.now = lent1.DueOn.AddDate(0, 0, 5)

	res, err := svc.SettleFines(ctx, "STU-A")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SettledCount)

	profile, err := svc.Profile(ctx, "STU-A")
	require.NoError(t, err)
	assert.Equal(t, 0, profile.TotalOutstandingFine)

	// 精算は免除ではない：延滞が続けば料金はまた積み上がる
	clock.now = clock.now.AddDate(0, 0, 2)
	profile, err = svc.Profile(ctx, "STU-A")
	require.NoError(t, err)
	assert.Equal(t, 20, profile.TotalOutstandingFine)

	// 全額精算済みの状態で再実行しても何も起きない
	clock.now = lent1.DueOn.AddDate(0, 0, 5)
	res, err = svc.SettleFines(ctx, "STU-A")
	require.NoError(t, err)
	assert.Equal(t, 0, res.SettledCount)
}
