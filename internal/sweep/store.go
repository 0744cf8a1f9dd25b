package sweep

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) ListOverdue(ctx context.Context, asOf time.Time) ([]OverdueLoan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.loan_id, l.loan_ulid, l.due_on, l.fine_accrued, l.last_notified_on,
		        s.full_name, s.email, b.title, b.author
		   FROM loans l
		   JOIN students s ON s.student_id = l.student_id
		   JOIN books    b ON b.book_id    = l.book_id
		  WHERE l.returned = 0 AND l.due_on < ?
		  ORDER BY l.due_on ASC, l.loan_id ASC`, asOf)
	if err != nil {
		return nil, errors.Wrap(err, "query overdue loans")
	}
	defer rows.Close()

	var out []OverdueLoan
	for rows.Next() {
		var l OverdueLoan
		if err := rows.Scan(
			&l.LoanID, &l.LoanULID, &l.DueOn, &l.FineAccrued, &l.LastNotifiedOn,
			&l.StudentName, &l.StudentEmail, &l.BookTitle, &l.BookAuthor,
		); err != nil {
			return nil, errors.Wrap(err, "scan overdue loan")
		}
		out = append(out, l)
	}
	return out, errors.Wrap(rows.Err(), "iterate overdue loans")
}

func (s *Store) UpdateFine(ctx context.Context, loanID int64, fine int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE loans SET fine_accrued = ? WHERE loan_id = ? AND returned = 0`, fine, loanID)
	return errors.Wrap(err, "update fine")
}

func (s *Store) MarkNotified(ctx context.Context, loanID int64, day time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE loans SET last_notified_on = ? WHERE loan_id = ?`,
		day.Format("2006-01-02"), loanID)
	return errors.Wrap(err, "mark notified")
}
