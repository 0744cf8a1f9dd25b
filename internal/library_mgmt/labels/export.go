package labels

import (
	"bytes"
	"encoding/csv"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// ラベル印刷ソフトに読み込ませる CSV を生成する。
// 取り込み側が Shift_JIS 前提のため cp932 で書き出す。
func ExportCSV(rows []LabelRow) ([]byte, error) {
	var raw bytes.Buffer
	w := csv.NewWriter(&raw)
	if err := w.Write([]string{"表示名", "補助", "番号", "QR"}); err != nil {
		return nil, ErrInternal("failed to write csv header: " + err.Error())
	}
	for _, r := range rows {
		if err := w.Write([]string{r.DisplayName, r.SubText, r.Number, r.QRPayload}); err != nil {
			return nil, ErrInternal("failed to write csv row: " + err.Error())
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, ErrInternal("failed to flush csv: " + err.Error())
	}

	var out bytes.Buffer
	enc := transform.NewWriter(&out, japanese.ShiftJIS.NewEncoder())
	if _, err := enc.Write(raw.Bytes()); err != nil {
		return nil, ErrInternal("failed to encode cp932: " + err.Error())
	}
	if err := enc.Close(); err != nil {
		return nil, ErrInternal("failed to finish cp932 encoding: " + err.Error())
	}
	return out.Bytes(), nil
}
