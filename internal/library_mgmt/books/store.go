package books

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"LIBRA-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

// available_copies は常に導出する（booksテーブルにキャッシュ列は無い）
const selectBookCols = `
	b.book_id, b.book_ulid, b.accession_number, b.title, b.author, b.genre,
	b.total_copies,
	b.total_copies - (SELECT COUNT(*) FROM loans l WHERE l.book_id = b.book_id AND l.returned = 0) AS available_copies,
	b.scan_code, b.created_at`

// 仮番号でINSERTし、同一Txで受入番号を確定させる。
// 確定形式: BK-<登録日YYYYMMDD>-<book_idを5桁0詰め>
func (s *Store) InsertBookFinalized(ctx context.Context, in CreateBookRequest, bookULID, tmpAcc string) (int64, error) {
	var id int64
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const ins = `
		INSERT INTO books
		(book_ulid, accession_number, legacy_id, scan_code, title, author, genre, total_copies, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`
		res, err := tx.ExecContext(ctx, ins,
			bookULID, tmpAcc, strPtrOrNil(in.LegacyID), strPtrOrNil(in.ScanCode),
			in.Title, in.Author, in.Genre, in.TotalCopies,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		const fin = `
		UPDATE books
		SET accession_number = CONCAT('BK-', DATE_FORMAT(created_at, '%Y%m%d'), '-', LPAD(book_id, 5, '0'))
		WHERE book_id = ? AND accession_number = ?`
		r2, err := tx.ExecContext(ctx, fin, id, tmpAcc)
		if err != nil {
			return err
		}
		if aff, _ := r2.RowsAffected(); aff != 1 {
			return ErrConflict("no row updated while finalizing accession_number")
		}
		return nil
	})
	return id, err
}

func (s *Store) GetBookByID(ctx context.Context, id int64) (*BookResponse, error) {
	q := `SELECT ` + selectBookCols + ` FROM books b WHERE b.book_id = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) GetBookByAccession(ctx context.Context, acc string) (*BookResponse, error) {
	q := `SELECT ` + selectBookCols + ` FROM books b WHERE b.accession_number = ?`
	return s.scanOne(s.db.QueryRowContext(ctx, q, acc))
}

func (s *Store) scanOne(row *sql.Row) (*BookResponse, error) {
	var r BookResponse
	var scan sql.NullString
	if err := row.Scan(
		&r.BookID, &r.BookULID, &r.AccessionNumber, &r.Title, &r.Author, &r.Genre,
		&r.TotalCopies, &r.AvailableCopies, &scan, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	if scan.Valid {
		v := scan.String
		r.ScanCode = &v
	}
	return &r, nil
}

func (s *Store) UpdateBookByAccession(ctx context.Context, acc string, in UpdateBookRequest) (*BookResponse, error) {
	// 動的アップデート
	sets := []string{}
	args := []any{}
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Author != nil {
		sets = append(sets, "author = ?")
		args = append(args, *in.Author)
	}
	if in.Genre != nil {
		sets = append(sets, "genre = ?")
		args = append(args, *in.Genre)
	}
	if in.TotalCopies != nil {
		sets = append(sets, "total_copies = ?")
		args = append(args, *in.TotalCopies)
	}
	if in.ScanCode != nil {
		sets = append(sets, "scan_code = ?")
		args = append(args, *in.ScanCode)
	}
	if len(sets) == 0 {
		// 変更なしでも現行値を返す
		return s.GetBookByAccession(ctx, acc)
	}
	args = append(args, acc)
	q := fmt.Sprintf(`UPDATE books SET %s WHERE accession_number = ?`, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetBookByAccession(ctx, acc)
}

func (s *Store) ListBooks(ctx context.Context, q BookSearchQuery, p Page) ([]BookResponse, int64, error) {
	var sb strings.Builder
	args := []any{}

	sb.WriteString(`SELECT ` + selectBookCols + ` FROM books b WHERE 1=1`)

	if q.Title != nil && *q.Title != "" {
		sb.WriteString(" AND b.title LIKE ?")
		args = append(args, "%"+*q.Title+"%")
	}
	if q.Author != nil && *q.Author != "" {
		sb.WriteString(" AND b.author LIKE ?")
		args = append(args, "%"+*q.Author+"%")
	}
	if q.Genre != nil && *q.Genre != "" {
		sb.WriteString(" AND b.genre = ?")
		args = append(args, *q.Genre)
	}
	if q.OnlyAvailable {
		sb.WriteString(" AND b.total_copies > (SELECT COUNT(*) FROM loans l WHERE l.book_id = b.book_id AND l.returned = 0)")
	}

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb.WriteString(" ORDER BY b.created_at " + order)

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

	list := []BookResponse{}
	for rows.Next() {
		var r BookResponse
		var scan sql.NullString
		if err := rows.Scan(
			&r.BookID, &r.BookULID, &r.AccessionNumber, &r.Title, &r.Author, &r.Genre,
			&r.TotalCopies, &r.AvailableCopies, &scan, &r.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		if scan.Valid {
			v := scan.String
			r.ScanCode = &v
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// 総件数（フィルタを反映、LIMITは除く）
	var cb strings.Builder
	countArgs := []any{}
	cb.WriteString("SELECT COUNT(*) FROM books b WHERE 1=1")
	if q.Title != nil && *q.Title != "" {
		cb.WriteString(" AND b.title LIKE ?")
		countArgs = append(countArgs, "%"+*q.Title+"%")
	}
	if q.Author != nil && *q.Author != "" {
		cb.WriteString(" AND b.author LIKE ?")
		countArgs = append(countArgs, "%"+*q.Author+"%")
	}
	if q.Genre != nil && *q.Genre != "" {
		cb.WriteString(" AND b.genre = ?")
		countArgs = append(countArgs, *q.Genre)
	}
	if q.OnlyAvailable {
		cb.WriteString(" AND b.total_copies > (SELECT COUNT(*) FROM loans l WHERE l.book_id = b.book_id AND l.returned = 0)")
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cb.String(), countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return list, total, nil
}

func strPtrOrNil(p *string) any {
	if p != nil && *p != "" {
		return *p
	}
	return nil
}
