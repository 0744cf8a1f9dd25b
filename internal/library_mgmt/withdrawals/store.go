package withdrawals

import (
	"context"
	"database/sql"
	"time"
)

type Withdrawal struct {
	WithdrawalID   int64
	WithdrawalULID string
	BookID         int64
	Quantity       int
	Reason         string
	ProcessedBy    sql.NullString
	WithdrawnAt    time.Time
	Note           sql.NullString
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// ExecCreateWithdrawal は 1 トランザクションで
// 1) 対象書誌行を FOR UPDATE でロック
// 2) 貸出中冊数を数え、除籍数 <= (総数 - 貸出中) を検査
// 3) total_copies を減算し withdrawals に記録
func (s *Store) ExecCreateWithdrawal(ctx context.Context, accessionNumber string, m *Withdrawal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ErrInternal("failed to begin tx: " + err.Error())
	}
	defer tx.Rollback()

	var bookID int64
	var totalCopies int
	err = tx.QueryRowContext(ctx,
		`SELECT book_id, total_copies FROM books WHERE accession_number = ? FOR UPDATE`,
		accessionNumber,
	).Scan(&bookID, &totalCopies)
	if err == sql.ErrNoRows {
		return ErrNotFound("book not found: " + accessionNumber)
	}
	if err != nil {
		return ErrInternal("failed to lock book row: " + err.Error())
	}

	var onLoan int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE book_id = ? AND returned = 0`, bookID,
	).Scan(&onLoan)
	if err != nil {
		return ErrInternal("failed to count active loans: " + err.Error())
	}
	if m.Quantity > totalCopies-onLoan {
		return ErrConflict("not enough available copies to withdraw")
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET total_copies = total_copies - ? WHERE book_id = ?`,
		m.Quantity, bookID,
	); err != nil {
		return ErrInternal("failed to decrement copies: " + err.Error())
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO withdrawals
		   (withdrawal_ulid, book_id, quantity, reason, processed_by, withdrawn_at, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.WithdrawalULID, bookID, m.Quantity, m.Reason, m.ProcessedBy, m.WithdrawnAt, m.Note,
	)
	if err != nil {
		return ErrInternal("failed to insert withdrawal: " + err.Error())
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ErrInternal("failed to get withdrawal id: " + err.Error())
	}
	m.WithdrawalID = id
	m.BookID = bookID

	if err := tx.Commit(); err != nil {
		return ErrInternal("failed to commit: " + err.Error())
	}
	return nil
}

func (s *Store) ListWithdrawals(ctx context.Context, limit, offset int) ([]WithdrawalResponse, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM withdrawals`).Scan(&total); err != nil {
		return nil, 0, ErrInternal("failed to count withdrawals: " + err.Error())
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT w.withdrawal_id, w.withdrawal_ulid, w.book_id, b.accession_number,
		        w.quantity, w.reason, w.processed_by, w.withdrawn_at, w.note
		   FROM withdrawals w
		   JOIN books b ON b.book_id = w.book_id
		  ORDER BY w.withdrawn_at DESC, w.withdrawal_id DESC
		  LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, ErrInternal("failed to query withdrawals: " + err.Error())
	}
	defer rows.Close()

	out := make([]WithdrawalResponse, 0, limit)
	for rows.Next() {
		var r WithdrawalResponse
		var processedBy, note sql.NullString
		if err := rows.Scan(
			&r.WithdrawalID, &r.WithdrawalULID, &r.BookID, &r.AccessionNumber,
			&r.Quantity, &r.Reason, &processedBy, &r.WithdrawnAt, &note,
		); err != nil {
			return nil, 0, ErrInternal("failed to scan withdrawal: " + err.Error())
		}
		if processedBy.Valid {
			v := processedBy.String
			r.ProcessedBy = &v
		}
		if note.Valid {
			v := note.String
			r.Note = &v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, ErrInternal("failed to iterate withdrawals: " + err.Error())
	}
	return out, total, nil
}
