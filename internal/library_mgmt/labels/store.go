package labels

import (
	"context"
	"database/sql"
)

type BookLabelSource struct {
	ULID            string
	AccessionNumber string
	Title           string
	Author          string
}

type StudentLabelSource struct {
	ULID          string
	StudentNumber string
	FullName      string
	GradeLevel    string
	Section       string
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) BookByAccession(ctx context.Context, accessionNumber string) (*BookLabelSource, error) {
	var b BookLabelSource
	err := s.db.QueryRowContext(ctx,
		`SELECT book_ulid, accession_number, title, author
		   FROM books WHERE accession_number = ?`, accessionNumber,
	).Scan(&b.ULID, &b.AccessionNumber, &b.Title, &b.Author)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ErrInternal("failed to query book: " + err.Error())
	}
	return &b, nil
}

func (s *Store) StudentByNumber(ctx context.Context, studentNumber string) (*StudentLabelSource, error) {
	var st StudentLabelSource
	var section sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT student_ulid, student_number, full_name, grade_level, section
		   FROM students WHERE student_number = ?`, studentNumber,
	).Scan(&st.ULID, &st.StudentNumber, &st.FullName, &st.GradeLevel, &section)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ErrInternal("failed to query student: " + err.Error())
	}
	if section.Valid {
		st.Section = section.String
	}
	return &st, nil
}
