package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	studentULID   map[string]Ref
	studentLegacy map[string]Ref
	studentScan   map[string]Ref
	studentNum    map[string]Ref
	bookULID      map[string]Ref
	bookLegacy    map[string]Ref
	bookScan      map[string]Ref
	bookAcc       map[string]Ref
}

func find(m map[string]Ref, k string) (*Ref, error) {
	if r, ok := m[k]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *fakeLookup) StudentByULID(_ context.Context, u string) (*Ref, error) {
	return find(f.studentULID, u)
}
func (f *fakeLookup) StudentByLegacyID(_ context.Context, h string) (*Ref, error) {
	return find(f.studentLegacy, h)
}
func (f *fakeLookup) StudentByScanCode(_ context.Context, c string) (*Ref, error) {
	return find(f.studentScan, c)
}
func (f *fakeLookup) StudentByNumber(_ context.Context, n string) (*Ref, error) {
	return find(f.studentNum, n)
}
func (f *fakeLookup) BookByULID(_ context.Context, u string) (*Ref, error) {
	return find(f.bookULID, u)
}
func (f *fakeLookup) BookByLegacyID(_ context.Context, h string) (*Ref, error) {
	return find(f.bookLegacy, h)
}
func (f *fakeLookup) BookByScanCode(_ context.Context, c string) (*Ref, error) {
	return find(f.bookScan, c)
}
func (f *fakeLookup) BookByAccession(_ context.Context, a string) (*Ref, error) {
	return find(f.bookAcc, a)
}

const (
	studentULID = "01HQ5TESTSTVDENT000000000A"
	bookULID    = "01HQ5TESTB00K000000000000A"
)

func newTestResolver() *Service {
	return NewService(&fakeLookup{
		studentULID:   map[string]Ref{studentULID: {ID: 1, ULID: studentULID}},
		studentLegacy: map[string]Ref{"5f1a2b3c4d5e6f7a8b9c0d1e": {ID: 1, ULID: studentULID}},
		studentScan:   map[string]Ref{"490000000000001": {ID: 1, ULID: studentULID}},
		studentNum:    map[string]Ref{"2025-0012": {ID: 1, ULID: studentULID}},
		bookULID:      map[string]Ref{bookULID: {ID: 10, ULID: bookULID}},
		bookLegacy:    map[string]Ref{"aaaabbbbccccddddeeeeffff": {ID: 10, ULID: bookULID}},
		bookScan:      map[string]Ref{"9784000000000001": {ID: 10, ULID: bookULID}},
		bookAcc:       map[string]Ref{"BK-20250401-00012": {ID: 10, ULID: bookULID}},
	})
}

func TestResolveByEachStrategy(t *testing.T) {
	testCases := []struct {
		name     string
		token    string
		kind     Kind
		wantKind Kind
		wantID   int64
	}{
		{"student ulid", studentULID, KindAny, KindStudent, 1},
		{"book ulid", bookULID, KindAny, KindBook, 10},
		{"ulid is case-insensitive", "01hq5testb00k000000000000a", KindAny, KindBook, 10},
		{"student legacy hex", "5F1A2B3C4D5E6F7A8B9C0D1E", KindAny, KindStudent, 1},
		{"book legacy hex", "aaaabbbbccccddddeeeeffff", KindAny, KindBook, 10},
		{"student scan code", "490000000000001", KindAny, KindStudent, 1},
		{"book scan code", "9784000000000001", KindAny, KindBook, 10},
		{"student number", "2025-0012", KindAny, KindStudent, 1},
		{"accession number", "BK-20250401-00012", KindAny, KindBook, 10},
		{"kind hint narrows search", "2025-0012", KindStudent, KindStudent, 1},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestResolver().Resolve(context.Background(), tt.token, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantID, res.ID)
		})
	}
}

func TestResolveStructuredPayload(t *testing.T) {
	svc := newTestResolver()

	res, err := svc.Resolve(context.Background(), `{"kind":"book","id":"`+bookULID+`"}`, KindAny)
	require.NoError(t, err)
	assert.Equal(t, KindBook, res.Kind)
	assert.Equal(t, int64(10), res.ID)
}

func TestResolvePayloadKindMismatch(t *testing.T) {
	svc := newTestResolver()

	// 学生を期待しているのにラベルは book を名乗っている：黙って解決せず失敗させる
	_, err := svc.Resolve(context.Background(), `{"kind":"book","id":"`+bookULID+`"}`, KindStudent)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Invalid)
}

func TestResolveUnknownPayloadKind(t *testing.T) {
	_, err := newTestResolver().Resolve(context.Background(), `{"kind":"shelf","id":"x"}`, KindAny)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Invalid)
}

func TestResolveStripsScannerNoise(t *testing.T) {
	testCases := []struct {
		name  string
		token string
	}{
		{"semicolon prefix", ";2025-0012"},
		{"trailing newline", "2025-0012\n"},
		{"both ends", "%%2025-0012;\r\n"},
	}
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestResolver().Resolve(context.Background(), tt.token, KindAny)
			require.NoError(t, err)
			assert.Equal(t, KindStudent, res.Kind)
			assert.Equal(t, int64(1), res.ID)
		})
	}
}

func TestResolveFailureListsAttempts(t *testing.T) {
	// スキャンコード書式だが未登録：試した戦略が報告される
	_, err := newTestResolver().Resolve(context.Background(), "999999999999999", KindAny)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.False(t, re.Invalid)
	assert.Contains(t, re.Attempted, "scan_code")
}

func TestResolveEmptyToken(t *testing.T) {
	_, err := newTestResolver().Resolve(context.Background(), "   ", KindAny)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Invalid)
}

func TestResolveKindHintExcludesOtherTable(t *testing.T) {
	// book を要求しているので学籍番号書式は試されない
	_, err := newTestResolver().Resolve(context.Background(), "2025-0012", KindBook)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.False(t, re.Invalid)
	assert.NotContains(t, re.Attempted, "student_number")
}
