package labels

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func TestExportCSVRoundTrip(t *testing.T) {
	rows := []LabelRow{
		{
			DisplayName: "坊っちゃん",
			SubText:     "夏目漱石",
			Number:      "BK-20250401-00012",
			QRPayload:   `{"kind":"book","id":"01HQ5TESTB00K000000000000A"}`,
		},
	}

	data, err := ExportCSV(rows)
	require.NoError(t, err)

	// cp932 で書き出されているので、UTF-8に戻してから検証する
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(decoded)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"表示名", "補助", "番号", "QR"}, records[0])
	assert.Equal(t, "坊っちゃん", records[1][0])
	assert.Equal(t, "BK-20250401-00012", records[1][2])
}

func TestEncodePayload(t *testing.T) {
	p, err := encodePayload("student", "01HQ5TESTSTVDENT000000000A")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"student","id":"01HQ5TESTSTVDENT000000000A"}`, p)
}
