package loans

import (
	"database/sql"
	"time"
)

const (
	MethodManual = "manual"
	MethodQR     = "qr"
)

// Loan は loans テーブルの1行を表す
type Loan struct {
	LoanID    int64
	LoanULID  string
	StudentID int64
	BookID    int64
	// 貸出方法（手入力 or QRスキャン）。来歴のみで挙動差はない。
	Method     string
	BorrowedAt time.Time
	// 貸出時に確定し、以後変更しない
	DueOn      time.Time
	Returned   bool
	ReturnedAt sql.NullTime
	// 未返却かつ延滞中は観測のたびに再計算、返却時の値で凍結
	FineAccrued int
	FinePaid    int
	// 通知の重複抑止用（日付粒度）
	LastNotifiedOn sql.NullTime
}

// LoanDetail: 一覧・プロフィール表示用に学生・図書を結合した行
type LoanDetail struct {
	Loan
	StudentNumber   string
	StudentName     string
	AccessionNumber string
	BookTitle       string
	BookAuthor      string
}

// 貸出リスト取得用の検索条件
type LoanFilter struct {
	StudentNumber *string
	Accession     *string
	Returned      *bool
	From          *time.Time
	To            *time.Time
	OnlyOverdue   bool
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}
