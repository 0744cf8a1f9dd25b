package loans

import "time"

// ===== Requests =====

type BorrowRequest struct {
	// どちらのトークンも生のスキャン文字列で良い（resolverが解決する）
	StudentToken string  `json:"student_token" binding:"required"`
	ItemToken    string  `json:"item_token" binding:"required"`
	Method       *string `json:"method,omitempty"` // "manual" | "qr"（省略時 manual）
}

type ReturnRequest struct {
	// 貸出ULID、または返却窓口でスキャンした図書トークン
	Token string `json:"token" binding:"required"`
	// 同一図書の複数冊が貸出中で曖昧な場合のみ必要
	StudentToken *string `json:"student_token,omitempty"`
}

// ===== Responses =====

type LoanResponse struct {
	LoanID          int64      `json:"loan_id"`
	LoanULID        string     `json:"loan_ulid"`
	StudentNumber   string     `json:"student_number,omitempty"`
	StudentName     string     `json:"student_name,omitempty"`
	AccessionNumber string     `json:"accession_number,omitempty"`
	BookTitle       string     `json:"book_title,omitempty"`
	Method          string     `json:"method"`
	BorrowedAt      time.Time  `json:"borrowed_at"`
	DueOn           time.Time  `json:"due_on"`
	Returned        bool       `json:"returned"`
	ReturnedAt      *time.Time `json:"returned_at,omitempty"`
	// 保存値（返却済みなら凍結値）
	FineAccrued int `json:"fine_accrued"`
	FinePaid    int `json:"fine_paid"`
	// 表示用に毎回計算する現在値（保存値とは別）
	CurrentFine int `json:"current_fine"`
	Outstanding int `json:"outstanding"`
}

type ReturnResponse struct {
	Loan       LoanResponse `json:"loan"`
	FineAmount int          `json:"fine_amount"`
}

// StudentInfo: プロフィール応答用の最小限の学生情報
type StudentInfo struct {
	StudentID     int64   `json:"-"`
	StudentNumber string  `json:"student_number"`
	FullName      string  `json:"full_name"`
	GradeLevel    string  `json:"grade_level"`
	Section       string  `json:"section"`
	Email         *string `json:"email,omitempty"`
}

type ProfileResponse struct {
	Student              StudentInfo    `json:"student"`
	ActiveLoans          []LoanResponse `json:"active_loans"`
	TotalOutstandingFine int            `json:"total_outstanding_fine"`
}

type SettleResponse struct {
	SettledCount int `json:"settled_count"`
}
