package loans

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const loanCols = `
	l.loan_id, l.loan_ulid, l.student_id, l.book_id, l.method,
	l.borrowed_at, l.due_on, l.returned, l.returned_at,
	l.fine_accrued, l.fine_paid, l.last_notified_on`

func scanLoan(sc interface{ Scan(dest ...any) error }, m *Loan) error {
	return sc.Scan(
		&m.LoanID, &m.LoanULID, &m.StudentID, &m.BookID, &m.Method,
		&m.BorrowedAt, &m.DueOn, &m.Returned, &m.ReturnedAt,
		&m.FineAccrued, &m.FinePaid, &m.LastNotifiedOn,
	)
}

// ExecOpenLoan handles the full transaction flow for opening a loan.
// 在庫の判定と貸出行の挿入を同一Txで行う。books行のロックが
// 同一図書への同時貸出を直列化する（貸出可能数を負にしないための要）。
func (s *Store) ExecOpenLoan(ctx context.Context, m *Loan) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// 1. Lock book row
	var total int
	err = tx.QueryRowContext(ctx,
		`SELECT total_copies FROM books WHERE book_id = ? FOR UPDATE`, m.BookID,
	).Scan(&total)
	if err != nil {
		if err == sql.ErrNoRows {
			err = ErrNotFound("book not found")
		}
		return err
	}

	// 2. 貸出可能数は常に導出する（キャッシュ列は無い）
	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE book_id = ? AND returned = 0`, m.BookID,
	).Scan(&active)
	if err != nil {
		return err
	}
	if total-active < 1 {
		err = ErrConflict("no copies available")
		return err
	}

	// 3. 同一(学生, 図書)の未返却貸出は1件まで
	var dup int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE student_id = ? AND book_id = ? AND returned = 0`,
		m.StudentID, m.BookID,
	).Scan(&dup)
	if err != nil {
		return err
	}
	if dup > 0 {
		err = ErrConflict("this student already has this book on loan")
		return err
	}

	// 4. Insert loan
	const q = `
	INSERT INTO loans
	(loan_ulid, student_id, book_id, method, borrowed_at, due_on, returned, fine_accrued, fine_paid)
	VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0)`
	res, err := tx.ExecContext(ctx, q,
		m.LoanULID, m.StudentID, m.BookID, m.Method, m.BorrowedAt, m.DueOn,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.LoanID = id

	return tx.Commit()
}

// ExecCloseLoan handles the full transaction flow for returning a loan.
// 返却時点の料金を計算してそのまま凍結する。以後この値は再計算されない。
func (s *Store) ExecCloseLoan(ctx context.Context, loanID int64, now time.Time, perDay int) (*Loan, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var m Loan
	err = scanLoan(tx.QueryRowContext(ctx,
		`SELECT `+loanCols+` FROM loans l WHERE l.loan_id = ? FOR UPDATE`, loanID), &m)
	if err != nil {
		if err == sql.ErrNoRows {
			err = ErrNotFound("loan not found")
		}
		return nil, err
	}
	if m.Returned {
		err = ErrConflict("already returned")
		return nil, err
	}

	final := Fine(m.DueOn, now, perDay)
	_, err = tx.ExecContext(ctx,
		`UPDATE loans SET returned = 1, returned_at = ?, fine_accrued = ? WHERE loan_id = ?`,
		now, final, loanID,
	)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	m.Returned = true
	m.ReturnedAt = sql.NullTime{Time: now, Valid: true}
	m.FineAccrued = final
	return &m, nil
}

// ---- Queries ----

func (s *Store) GetLoanByULID(ctx context.Context, loanULID string) (*Loan, error) {
	var m Loan
	err := scanLoan(s.db.QueryRowContext(ctx,
		`SELECT `+loanCols+` FROM loans l WHERE l.loan_ulid = ?`, loanULID), &m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetActiveLoansByBook(ctx context.Context, bookID int64) ([]Loan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+loanCols+` FROM loans l WHERE l.book_id = ? AND l.returned = 0`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var m Loan
		if err := scanLoan(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) GetActiveLoanByPair(ctx context.Context, studentID, bookID int64) (*Loan, error) {
	var m Loan
	err := scanLoan(s.db.QueryRowContext(ctx,
		`SELECT `+loanCols+` FROM loans l
		WHERE l.student_id = ? AND l.book_id = ? AND l.returned = 0 LIMIT 1`,
		studentID, bookID), &m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const detailCols = loanCols + `,
	s.student_number, s.full_name, b.accession_number, b.title, b.author`

const detailJoin = `
	FROM loans l
	JOIN students s ON s.student_id = l.student_id
	JOIN books b ON b.book_id = l.book_id`

func scanDetail(sc interface{ Scan(dest ...any) error }, d *LoanDetail) error {
	return sc.Scan(
		&d.LoanID, &d.LoanULID, &d.StudentID, &d.BookID, &d.Method,
		&d.BorrowedAt, &d.DueOn, &d.Returned, &d.ReturnedAt,
		&d.FineAccrued, &d.FinePaid, &d.LastNotifiedOn,
		&d.StudentNumber, &d.StudentName, &d.AccessionNumber, &d.BookTitle, &d.BookAuthor,
	)
}

func (s *Store) ListActiveLoansByStudent(ctx context.Context, studentID int64) ([]LoanDetail, error) {
	q := `SELECT ` + detailCols + detailJoin + `
	WHERE l.student_id = ? AND l.returned = 0
	ORDER BY l.borrowed_at DESC`
	rows, err := s.db.QueryContext(ctx, q, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LoanDetail
	for rows.Next() {
		var d LoanDetail
		if err := scanDetail(rows, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListLoans(ctx context.Context, f LoanFilter, p Page) ([]LoanDetail, int64, error) {
	var sb strings.Builder
	args := []any{}
	sb.WriteString(`SELECT ` + detailCols + detailJoin + ` WHERE 1=1`)

	where, whereArgs := buildLoanFilter(f)
	sb.WriteString(where)
	args = append(args, whereArgs...)

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb.WriteString(" ORDER BY l.borrowed_at " + order)

	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []LoanDetail
	for rows.Next() {
		var d LoanDetail
		if err := scanDetail(rows, &d); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// 総件数（同じフィルタ、LIMIT抜き）
	cWhere, cArgs := buildLoanFilter(f)
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*)`+detailJoin+` WHERE 1=1`+cWhere, cArgs...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func buildLoanFilter(f LoanFilter) (string, []any) {
	var sb strings.Builder
	args := []any{}
	if f.StudentNumber != nil && *f.StudentNumber != "" {
		sb.WriteString(" AND s.student_number = ?")
		args = append(args, *f.StudentNumber)
	}
	if f.Accession != nil && *f.Accession != "" {
		sb.WriteString(" AND b.accession_number = ?")
		args = append(args, *f.Accession)
	}
	if f.Returned != nil {
		sb.WriteString(" AND l.returned = ?")
		args = append(args, *f.Returned)
	}
	if f.From != nil {
		sb.WriteString(" AND l.borrowed_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		sb.WriteString(" AND l.borrowed_at < ?")
		args = append(args, *f.To)
	}
	if f.OnlyOverdue {
		sb.WriteString(" AND l.returned = 0 AND l.due_on < UTC_TIMESTAMP()")
	}
	return sb.String(), args
}

func (s *Store) GetStudentInfo(ctx context.Context, studentID int64) (*StudentInfo, error) {
	var info StudentInfo
	var email sql.NullString
	err := s.db.QueryRowContext(ctx, `
	SELECT student_id, student_number, full_name, grade_level, section, email
	FROM students WHERE student_id = ?`, studentID).Scan(
		&info.StudentID, &info.StudentNumber, &info.FullName, &info.GradeLevel, &info.Section, &email,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if email.Valid {
		v := email.String
		info.Email = &v
	}
	return &info, nil
}

// 返却済みで未精算の残額合計
func (s *Store) SumReturnedUnpaid(ctx context.Context, studentID int64) (int, error) {
	var sum int
	err := s.db.QueryRowContext(ctx, `
	SELECT COALESCE(SUM(fine_accrued - fine_paid), 0)
	FROM loans
	WHERE student_id = ? AND returned = 1 AND fine_paid < fine_accrued`, studentID).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum, nil
}

// 精算対象：返却済みで未精算の貸出と、延滞中の未返却貸出
func (s *Store) ListSettleTargets(ctx context.Context, studentID int64, now time.Time) ([]Loan, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+loanCols+` FROM loans l
	WHERE l.student_id = ?
	  AND ((l.returned = 1 AND l.fine_paid < l.fine_accrued)
	    OR (l.returned = 0 AND l.due_on < ?))`, studentID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		var m Loan
		if err := scanLoan(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ApplySettlement(ctx context.Context, loanID int64, fineAccrued, finePaid int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE loans SET fine_accrued = ?, fine_paid = ? WHERE loan_id = ?`,
		fineAccrued, finePaid, loanID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff != 1 {
		return ErrInternal("failed to apply settlement")
	}
	return nil
}
