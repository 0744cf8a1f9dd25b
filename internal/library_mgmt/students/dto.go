package students

import "time"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// ===== Requests =====

type CreateStudentRequest struct {
	FullName   string  `json:"full_name" binding:"required"`
	GradeLevel string  `json:"grade_level" binding:"required"` // 学年（"1年" など）
	Section    string  `json:"section" binding:"required"`     // 組・担任
	Email      *string `json:"email,omitempty"`
	Mobile     *string `json:"mobile,omitempty"`
	ScanCode   *string `json:"scan_code,omitempty"` // 学生証バーコード用の外部ID
	LegacyID   *string `json:"legacy_id,omitempty"` // 旧システム(24桁hex)から移行した場合のみ
}

type UpdateStudentRequest struct {
	FullName   *string `json:"full_name,omitempty"`
	GradeLevel *string `json:"grade_level,omitempty"`
	Section    *string `json:"section,omitempty"`
	Email      *string `json:"email,omitempty"`
	Mobile     *string `json:"mobile,omitempty"`
	ScanCode   *string `json:"scan_code,omitempty"`
}

// ===== Responses =====

type StudentResponse struct {
	StudentID     int64     `json:"student_id"`
	StudentULID   string    `json:"student_ulid"`
	StudentNumber string    `json:"student_number"` // YYYY-NNNN
	FullName      string    `json:"full_name"`
	GradeLevel    string    `json:"grade_level"`
	Section       string    `json:"section"`
	Email         *string   `json:"email,omitempty"`
	Mobile        *string   `json:"mobile,omitempty"`
	ScanCode      *string   `json:"scan_code,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ===== Listing helpers =====

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

type StudentSearchQuery struct {
	Name       *string // 部分一致
	GradeLevel *string
	Section    *string
}
