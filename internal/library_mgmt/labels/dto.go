package labels

// ===== Requests =====
// BatchLabelRequest: /labels/preview, /labels/export
type BatchLabelRequest struct {
	Kind   string   `json:"kind"   binding:"required"` // "student" | "book"
	Tokens []string `json:"tokens" binding:"required"` // accession_number / student_number の列
}

// ===== Responses =====
type LabelRow struct {
	DisplayName string `json:"display_name"` // 書名 or 氏名
	SubText     string `json:"sub_text"`     // 著者 or 学年・組
	Number      string `json:"number"`       // accession_number or student_number
	QRPayload   string `json:"qr_payload"`   // {"kind":"...","id":"..."}
}

type PreviewResponse struct {
	Rows []LabelRow `json:"rows"`
}

// リクエスト例
/*
	{
		"kind": "book",
		"tokens": ["BK-20250401-00012", "BK-20250401-00013"]
	}
*/
