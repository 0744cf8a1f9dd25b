package books

import "time"

// ===== Requests =====

type CreateBookRequest struct {
	Title       string  `json:"title" binding:"required"`
	Author      string  `json:"author" binding:"required"`
	Genre       string  `json:"genre" binding:"required"`
	TotalCopies int     `json:"total_copies" binding:"required"`
	ScanCode    *string `json:"scan_code,omitempty"` // バーコード／QRスキャナ用の外部ID
	LegacyID    *string `json:"legacy_id,omitempty"` // 旧システム(24桁hex)から移行した場合のみ
}

type UpdateBookRequest struct {
	Title       *string `json:"title,omitempty"`
	Author      *string `json:"author,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	TotalCopies *int    `json:"total_copies,omitempty"`
	ScanCode    *string `json:"scan_code,omitempty"`
}

// ===== Responses =====

type BookResponse struct {
	BookID          int64     `json:"book_id"`
	BookULID        string    `json:"book_ulid"`
	AccessionNumber string    `json:"accession_number"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Genre           string    `json:"genre"`
	TotalCopies     int       `json:"total_copies"`
	// 蔵書数 − 貸出中件数。常にDB側で導出する（キャッシュしない）
	AvailableCopies int       `json:"available_copies"`
	ScanCode        *string   `json:"scan_code,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ===== Listing helpers =====

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" or "desc"
}

type BookSearchQuery struct {
	Title  *string // 部分一致
	Author *string
	Genre  *string
	// true なら貸出可能(available>0)のみ
	OnlyAvailable bool
}
