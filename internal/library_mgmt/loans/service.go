package loans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"LIBRA-backend/internal/library_mgmt/resolver"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type TokenResolver interface {
	Resolve(ctx context.Context, token string, kind resolver.Kind) (*resolver.Resolved, error)
}

// LedgerStore: 貸出台帳の永続化境界。テストではインメモリ実装に差し替える。
type LedgerStore interface {
	// 在庫ロック → 貸出可能数チェック → 二重貸出チェック → INSERT を1Txで行う
	ExecOpenLoan(ctx context.Context, m *Loan) error
	// FOR UPDATE → 返却済みガード → 料金凍結 → UPDATE を1Txで行う
	ExecCloseLoan(ctx context.Context, loanID int64, now time.Time, perDay int) (*Loan, error)
	GetLoanByULID(ctx context.Context, loanULID string) (*Loan, error)
	GetActiveLoansByBook(ctx context.Context, bookID int64) ([]Loan, error)
	GetActiveLoanByPair(ctx context.Context, studentID, bookID int64) (*Loan, error)
	ListActiveLoansByStudent(ctx context.Context, studentID int64) ([]LoanDetail, error)
	ListLoans(ctx context.Context, f LoanFilter, p Page) ([]LoanDetail, int64, error)
	GetStudentInfo(ctx context.Context, studentID int64) (*StudentInfo, error)
	SumReturnedUnpaid(ctx context.Context, studentID int64) (int, error)
	ListSettleTargets(ctx context.Context, studentID int64, now time.Time) ([]Loan, error)
	ApplySettlement(ctx context.Context, loanID int64, fineAccrued, finePaid int) error
}

// 貸出ポリシー（config由来）
type Policy struct {
	LoanPeriodDays int
	FinePerDay     int
}

// ===== Service本体 =====

type Service struct {
	store    LedgerStore
	resolver TokenResolver
	policy   Policy
	clock    Clock
	id       IDGen
}

func NewService(db *sql.DB, policy Policy) *Service {
	return &Service{
		store:    NewStore(db),
		resolver: resolver.NewService(resolver.NewStore(db)),
		policy:   policy,
		clock:    realClock{},
		id:       ulidGen{},
	}
}

// 貸出登録
func (s *Service) Borrow(ctx context.Context, req BorrowRequest) (*LoanResponse, error) {
	method := MethodManual
	if req.Method != nil && *req.Method != "" {
		method = *req.Method
	}
	if method != MethodManual && method != MethodQR {
		return nil, ErrInvalid("method must be 'manual' or 'qr'")
	}

	student, err := s.resolveAs(ctx, req.StudentToken, resolver.KindStudent)
	if err != nil {
		return nil, err
	}
	book, err := s.resolveAs(ctx, req.ItemToken, resolver.KindBook)
	if err != nil {
		return nil, err
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	lo := &Loan{
		LoanULID:   idStr,
		StudentID:  student.ID,
		BookID:     book.ID,
		Method:     method,
		BorrowedAt: now,
		// 返却期限は貸出時に確定し、以後変更しない
		DueOn: now.AddDate(0, 0, s.policy.LoanPeriodDays),
	}

	if err := s.store.ExecOpenLoan(ctx, lo); err != nil {
		return nil, err
	}

	resp := s.buildLoanResponse(&LoanDetail{Loan: *lo}, now)
	return &resp, nil
}

// 返却登録。トークンは貸出ULIDでも図書トークンでも良い。
func (s *Service) Return(ctx context.Context, req ReturnRequest) (*ReturnResponse, error) {
	lo, err := s.findLoanForReturn(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	closed, err := s.store.ExecCloseLoan(ctx, lo.LoanID, now, s.policy.FinePerDay)
	if err != nil {
		return nil, err
	}

	resp := s.buildLoanResponse(&LoanDetail{Loan: *closed}, now)
	return &ReturnResponse{Loan: resp, FineAmount: closed.FineAccrued}, nil
}

func (s *Service) findLoanForReturn(ctx context.Context, req ReturnRequest) (*Loan, error) {
	// 1. 貸出ULIDとして解釈できればそれを使う
	if _, err := ulid.ParseStrict(req.Token); err == nil {
		lo, err := s.store.GetLoanByULID(ctx, req.Token)
		if err != nil {
			return nil, err
		}
		if lo != nil {
			return lo, nil
		}
		// ULID書式でも貸出とは限らない（book_ulidの可能性）ので解決に回す
	}

	// 2. 図書トークンとして解決し、その図書の未返却貸出を特定する
	res, err := s.resolveAs(ctx, req.Token, resolver.KindAny)
	if err != nil {
		return nil, err
	}
	if res.Kind == resolver.KindStudent {
		return nil, ErrInvalid("a student token alone cannot identify a loan; scan the book")
	}

	active, err := s.store.GetActiveLoansByBook(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	switch len(active) {
	case 0:
		return nil, ErrNotFound("no active loan for this book")
	case 1:
		return &active[0], nil
	}

	// 複数冊貸出中で曖昧。学生トークンが無ければ解決できない。
	if req.StudentToken == nil || *req.StudentToken == "" {
		return nil, ErrConflict("multiple active loans for this book; student_token is required")
	}
	student, err := s.resolveAs(ctx, *req.StudentToken, resolver.KindStudent)
	if err != nil {
		return nil, err
	}
	lo, err := s.store.GetActiveLoanByPair(ctx, student.ID, res.ID)
	if err != nil {
		return nil, err
	}
	if lo == nil {
		return nil, ErrNotFound("no active loan for this student and book")
	}
	return lo, nil
}

// 学生プロフィール（未返却貸出 + 現在料金つき）
func (s *Service) Profile(ctx context.Context, studentToken string) (*ProfileResponse, error) {
	student, err := s.resolveAs(ctx, studentToken, resolver.KindStudent)
	if err != nil {
		return nil, err
	}

	info, err := s.store.GetStudentInfo(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNotFound("student not found")
	}

	details, err := s.store.ListActiveLoansByStudent(ctx, student.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	total := 0
	out := make([]LoanResponse, 0, len(details))
	for i := range details {
		r := s.buildLoanResponse(&details[i], now)
		total += r.Outstanding
		out = append(out, r)
	}

	// 返却済みだが未精算の料金も合計に含める
	unpaid, err := s.store.SumReturnedUnpaid(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	total += unpaid

	return &ProfileResponse{Student: *info, ActiveLoans: out, TotalOutstandingFine: total}, nil
}

// 料金精算：対象の各貸出について fine_paid = fine_accrued を個別に適用する。
// 未返却の貸出はまず現在値で fine_accrued を更新してから精算する。
// 精算後も延滞が続けば料金は再び積み上がる（免除ではない）。
func (s *Service) SettleFines(ctx context.Context, studentToken string) (*SettleResponse, error) {
	student, err := s.resolveAs(ctx, studentToken, resolver.KindStudent)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	targets, err := s.store.ListSettleTargets(ctx, student.ID, now)
	if err != nil {
		return nil, err
	}

	count := 0
	for i := range targets {
		lo := &targets[i]
		accrued := lo.FineAccrued
		if !lo.Returned {
			accrued = Fine(lo.DueOn, now, s.policy.FinePerDay)
		}
		if accrued <= lo.FinePaid {
			continue
		}
		if err := s.store.ApplySettlement(ctx, lo.LoanID, accrued, accrued); err != nil {
			return nil, err
		}
		count++
	}
	return &SettleResponse{SettledCount: count}, nil
}

// 貸出一覧
func (s *Service) ListLoans(ctx context.Context, f LoanFilter, p Page) ([]LoanResponse, int64, error) {
	details, total, err := s.store.ListLoans(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	now := s.clock.Now()
	out := make([]LoanResponse, 0, len(details))
	for i := range details {
		out = append(out, s.buildLoanResponse(&details[i], now))
	}
	return out, total, nil
}

// resolveAs: resolverの失敗をこのパッケージのエラー型に写す
func (s *Service) resolveAs(ctx context.Context, token string, kind resolver.Kind) (*resolver.Resolved, error) {
	res, err := s.resolver.Resolve(ctx, token, kind)
	if err != nil {
		var re *resolver.ResolveError
		if errors.As(err, &re) {
			if re.Invalid {
				return nil, ErrInvalid(re.Error())
			}
			return nil, ErrNotFound(fmt.Sprintf("%s %s", kindNoun(kind), re.Error()))
		}
		return nil, err
	}
	return res, nil
}

func kindNoun(k resolver.Kind) string {
	switch k {
	case resolver.KindStudent:
		return "student:"
	case resolver.KindBook:
		return "book:"
	default:
		return "entity:"
	}
}

// ヘルパー関数。保存値に加えて現在料金を毎回計算して載せる。
func (s *Service) buildLoanResponse(d *LoanDetail, now time.Time) LoanResponse {
	resp := LoanResponse{
		LoanID:          d.LoanID,
		LoanULID:        d.LoanULID,
		StudentNumber:   d.StudentNumber,
		StudentName:     d.StudentName,
		AccessionNumber: d.AccessionNumber,
		BookTitle:       d.BookTitle,
		Method:          d.Method,
		BorrowedAt:      d.BorrowedAt,
		DueOn:           d.DueOn,
		Returned:        d.Returned,
		FineAccrued:     d.FineAccrued,
		FinePaid:        d.FinePaid,
	}
	if d.ReturnedAt.Valid {
		t := d.ReturnedAt.Time
		resp.ReturnedAt = &t
	}
	if d.Returned {
		// 返却済みは凍結値のまま
		resp.CurrentFine = d.FineAccrued
	} else {
		resp.CurrentFine = Fine(d.DueOn, now, s.policy.FinePerDay)
	}
	if resp.CurrentFine > d.FinePaid {
		resp.Outstanding = resp.CurrentFine - d.FinePaid
	}
	return resp
}
