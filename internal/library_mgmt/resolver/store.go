package resolver

import (
	"context"
	"database/sql"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// 解決は読み取り専用。見つからない場合は (nil, nil) を返し、戦略の続行を許す。

func (s *Store) lookup(ctx context.Context, q, v string) (*Ref, error) {
	var r Ref
	err := s.db.QueryRowContext(ctx, q, v).Scan(&r.ID, &r.ULID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) StudentByULID(ctx context.Context, u string) (*Ref, error) {
	return s.lookup(ctx, `SELECT student_id, student_ulid FROM students WHERE student_ulid = ?`, u)
}

func (s *Store) StudentByLegacyID(ctx context.Context, hexID string) (*Ref, error) {
	return s.lookup(ctx, `SELECT student_id, student_ulid FROM students WHERE legacy_id = ?`, hexID)
}

func (s *Store) StudentByScanCode(ctx context.Context, code string) (*Ref, error) {
	return s.lookup(ctx, `SELECT student_id, student_ulid FROM students WHERE scan_code = ?`, code)
}

func (s *Store) StudentByNumber(ctx context.Context, num string) (*Ref, error) {
	return s.lookup(ctx, `SELECT student_id, student_ulid FROM students WHERE student_number = ?`, num)
}

func (s *Store) BookByULID(ctx context.Context, u string) (*Ref, error) {
	return s.lookup(ctx, `SELECT book_id, book_ulid FROM books WHERE book_ulid = ?`, u)
}

func (s *Store) BookByLegacyID(ctx context.Context, hexID string) (*Ref, error) {
	return s.lookup(ctx, `SELECT book_id, book_ulid FROM books WHERE legacy_id = ?`, hexID)
}

func (s *Store) BookByScanCode(ctx context.Context, code string) (*Ref, error) {
	return s.lookup(ctx, `SELECT book_id, book_ulid FROM books WHERE scan_code = ?`, code)
}

func (s *Store) BookByAccession(ctx context.Context, acc string) (*Ref, error) {
	return s.lookup(ctx, `SELECT book_id, book_ulid FROM books WHERE accession_number = ?`, acc)
}
