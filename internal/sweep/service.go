package sweep

import (
	"context"
	"database/sql"
	"log"
	"time"

	"LIBRA-backend/internal/library_mgmt/loans"
	"LIBRA-backend/internal/platform/mail"
)

// 延滞スイープ。未返却かつ期限超過の貸出を走査して
//  1. 延滞金を再計算し、変化した行だけ更新
//  2. 同一暦日に未通知なら督促メールを 1 通だけ送る
// 個々の貸出での失敗はログに残して続行する。

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type OverdueLoan struct {
	LoanID         int64
	LoanULID       string
	DueOn          time.Time
	FineAccrued    int
	LastNotifiedOn sql.NullTime
	StudentName    string
	StudentEmail   sql.NullString
	BookTitle      string
	BookAuthor     string
}

type sweepStore interface {
	ListOverdue(ctx context.Context, asOf time.Time) ([]OverdueLoan, error)
	UpdateFine(ctx context.Context, loanID int64, fine int) error
	MarkNotified(ctx context.Context, loanID int64, day time.Time) error
}

type Result struct {
	Scanned      int
	FinesUpdated int
	Notified     int
	Failed       int
}

type Service struct {
	store  sweepStore
	sender mail.Sender
	clock  Clock
	policy loans.Policy
}

func NewService(db *sql.DB, sender mail.Sender, policy loans.Policy) *Service {
	return &Service{
		store:  NewStore(db),
		sender: sender,
		clock:  realClock{},
		policy: policy,
	}
}

// sameCalendarDay は暦日単位の比較。時刻は見ない。
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (s *Service) RunSweep(ctx context.Context) Result {
	now := s.clock.Now()
	var res Result

	overdue, err := s.store.ListOverdue(ctx, now)
	if err != nil {
		log.Printf("[ERROR] sweep: failed to list overdue loans: %v", err)
		res.Failed++
		return res
	}
	res.Scanned = len(overdue)

	for _, l := range overdue {
		if err := s.sweepOne(ctx, now, l, &res); err != nil {
			log.Printf("[WARN] sweep: loan %s: %v", l.LoanULID, err)
			res.Failed++
		}
	}

	log.Printf("[INFO] sweep: scanned=%d fines_updated=%d notified=%d failed=%d",
		res.Scanned, res.FinesUpdated, res.Notified, res.Failed)
	return res
}

func (s *Service) sweepOne(ctx context.Context, now time.Time, l OverdueLoan, res *Result) error {
	fine := loans.Fine(l.DueOn, now, s.policy.FinePerDay)
	if fine != l.FineAccrued {
		if err := s.store.UpdateFine(ctx, l.LoanID, fine); err != nil {
			return err
		}
		res.FinesUpdated++
	}

	if l.LastNotifiedOn.Valid && sameCalendarDay(l.LastNotifiedOn.Time, now) {
		return nil // 本日分は通知済み
	}
	if !l.StudentEmail.Valid || l.StudentEmail.String == "" {
		return nil // 宛先なし。翌日以降の再試行に意味がないので素通し
	}

	notice := mail.OverdueNotice{
		To:          l.StudentEmail.String,
		StudentName: l.StudentName,
		BookTitle:   l.BookTitle,
		BookAuthor:  l.BookAuthor,
		DueOn:       l.DueOn,
		DaysOverdue: loans.DaysOverdue(l.DueOn, now),
		FineAmount:  fine,
	}
	if err := s.sender.SendOverdueNotice(ctx, notice); err != nil {
		// 送信失敗時は last_notified_on を進めない。次回スイープで再送される
		return err
	}
	if err := s.store.MarkNotified(ctx, l.LoanID, now); err != nil {
		return err
	}
	res.Notified++
	return nil
}
