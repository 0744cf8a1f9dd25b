package students

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"LIBRA-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

const selectStudentCols = `
	student_id, student_ulid, student_number, full_name, grade_level, section,
	email, mobile, scan_code, created_at`

// 仮番号でINSERTし、同一Txで学籍番号を確定させる。
// 確定形式: <登録年YYYY>-<student_idを4桁0詰め>（例 2026-0042）
func (s *Store) InsertStudentFinalized(ctx context.Context, in CreateStudentRequest, studentULID, tmpNum string) (int64, error) {
	var id int64
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		const ins = `
		INSERT INTO students
		(student_ulid, student_number, legacy_id, full_name, grade_level, section, email, mobile, scan_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`
		res, err := tx.ExecContext(ctx, ins,
			studentULID, tmpNum, strPtrOrNil(in.LegacyID),
			in.FullName, in.GradeLevel, in.Section,
			strPtrOrNil(in.Email), strPtrOrNil(in.Mobile), strPtrOrNil(in.ScanCode),
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}

		const fin = `
		UPDATE students
		SET student_number = CONCAT(DATE_FORMAT(created_at, '%Y'), '-', LPAD(student_id, 4, '0'))
		WHERE student_id = ? AND student_number = ?`
		r2, err := tx.ExecContext(ctx, fin, id, tmpNum)
		if err != nil {
			return err
		}
		if aff, _ := r2.RowsAffected(); aff != 1 {
			return ErrConflict("no row updated while finalizing student_number")
		}
		return nil
	})
	return id, err
}

func (s *Store) GetStudentByID(ctx context.Context, id int64) (*StudentResponse, error) {
	q := `SELECT ` + selectStudentCols + ` FROM students WHERE student_id = ?`
	return scanStudent(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) GetStudentByNumber(ctx context.Context, num string) (*StudentResponse, error) {
	q := `SELECT ` + selectStudentCols + ` FROM students WHERE student_number = ?`
	return scanStudent(s.db.QueryRowContext(ctx, q, num))
}

func scanStudent(row *sql.Row) (*StudentResponse, error) {
	var r StudentResponse
	var email, mobile, scan sql.NullString
	if err := row.Scan(
		&r.StudentID, &r.StudentULID, &r.StudentNumber, &r.FullName, &r.GradeLevel, &r.Section,
		&email, &mobile, &scan, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	r.Email = nullStrPtr(email)
	r.Mobile = nullStrPtr(mobile)
	r.ScanCode = nullStrPtr(scan)
	return &r, nil
}

func (s *Store) UpdateStudentByNumber(ctx context.Context, num string, in UpdateStudentRequest) (*StudentResponse, error) {
	// 動的アップデート
	sets := []string{}
	args := []any{}
	if in.FullName != nil {
		sets = append(sets, "full_name = ?")
		args = append(args, *in.FullName)
	}
	if in.GradeLevel != nil {
		sets = append(sets, "grade_level = ?")
		args = append(args, *in.GradeLevel)
	}
	if in.Section != nil {
		sets = append(sets, "section = ?")
		args = append(args, *in.Section)
	}
	if in.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *in.Email)
	}
	if in.Mobile != nil {
		sets = append(sets, "mobile = ?")
		args = append(args, *in.Mobile)
	}
	if in.ScanCode != nil {
		sets = append(sets, "scan_code = ?")
		args = append(args, *in.ScanCode)
	}
	if len(sets) == 0 {
		return s.GetStudentByNumber(ctx, num)
	}
	args = append(args, num)
	q := fmt.Sprintf(`UPDATE students SET %s WHERE student_number = ?`, strings.Join(sets, ", "))

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetStudentByNumber(ctx, num)
}

func (s *Store) ListStudents(ctx context.Context, q StudentSearchQuery, p Page) ([]StudentResponse, int64, error) {
	var sb strings.Builder
	args := []any{}

	sb.WriteString(`SELECT ` + selectStudentCols + ` FROM students WHERE 1=1`)

	if q.Name != nil && *q.Name != "" {
		sb.WriteString(" AND full_name LIKE ?")
		args = append(args, "%"+*q.Name+"%")
	}
	if q.GradeLevel != nil && *q.GradeLevel != "" {
		sb.WriteString(" AND grade_level = ?")
		args = append(args, *q.GradeLevel)
	}
	if q.Section != nil && *q.Section != "" {
		sb.WriteString(" AND section = ?")
		args = append(args, *q.Section)
	}

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	sb.WriteString(" ORDER BY created_at " + order)

	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
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

	list := []StudentResponse{}
	for rows.Next() {
		var r StudentResponse
		var email, mobile, scan sql.NullString
		if err := rows.Scan(
			&r.StudentID, &r.StudentULID, &r.StudentNumber, &r.FullName, &r.GradeLevel, &r.Section,
			&email, &mobile, &scan, &r.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		r.Email = nullStrPtr(email)
		r.Mobile = nullStrPtr(mobile)
		r.ScanCode = nullStrPtr(scan)
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var cb strings.Builder
	countArgs := []any{}
	cb.WriteString("SELECT COUNT(*) FROM students WHERE 1=1")
	if q.Name != nil && *q.Name != "" {
		cb.WriteString(" AND full_name LIKE ?")
		countArgs = append(countArgs, "%"+*q.Name+"%")
	}
	if q.GradeLevel != nil && *q.GradeLevel != "" {
		cb.WriteString(" AND grade_level = ?")
		countArgs = append(countArgs, *q.GradeLevel)
	}
	if q.Section != nil && *q.Section != "" {
		cb.WriteString(" AND section = ?")
		countArgs = append(countArgs, *q.Section)
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

func nullStrPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}
