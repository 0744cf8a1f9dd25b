package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	ulid "github.com/oklog/ulid/v2"
)

// スキャナ入力は信頼できない。どの解決戦略を試したかを失敗時に必ず返す。

type Kind string

const (
	KindAny     Kind = "any"
	KindStudent Kind = "student"
	KindBook    Kind = "book"
)

type Resolved struct {
	Kind Kind
	ID   int64
	ULID string
}

// Ref: store側の検索結果（見つからなければ nil, nil）
type Ref struct {
	ID   int64
	ULID string
}

type Lookup interface {
	StudentByULID(ctx context.Context, u string) (*Ref, error)
	StudentByLegacyID(ctx context.Context, hexID string) (*Ref, error)
	StudentByScanCode(ctx context.Context, code string) (*Ref, error)
	StudentByNumber(ctx context.Context, num string) (*Ref, error)
	BookByULID(ctx context.Context, u string) (*Ref, error)
	BookByLegacyID(ctx context.Context, hexID string) (*Ref, error)
	BookByScanCode(ctx context.Context, code string) (*Ref, error)
	BookByAccession(ctx context.Context, acc string) (*Ref, error)
}

// ResolveError: 解決失敗。試行済み戦略の一覧を持つ。
type ResolveError struct {
	Token     string
	Kind      Kind
	Attempted []string
	// true なら書式自体が不正（kindタグの矛盾など）
	Invalid bool
	Reason  string
}

func (e *ResolveError) Error() string {
	if e.Invalid {
		return fmt.Sprintf("invalid token: %s", e.Reason)
	}
	return fmt.Sprintf("token did not resolve (tried: %s)", strings.Join(e.Attempted, ", "))
}

var (
	hex24Re      = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	scanCodeRe   = regexp.MustCompile(`^[0-9]{15,}$`)
	studentNumRe = regexp.MustCompile(`^[0-9]{4}-[0-9]{4,}$`)
	accessionRe  = regexp.MustCompile(`^[A-Z]{1,4}(-[0-9]{3,})+$`)
)

// QRラベルに焼き込む構造化ペイロード（labelsパッケージが生成する）
type structuredPayload struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type Service struct {
	store Lookup
}

func NewService(store Lookup) *Service { return &Service{store: store} }

// Resolve は生トークンを Student / Book のどちらか1件に解決する。
// 戦略は順に: 内部ID → 構造化ペイロード → スキャンコード → 番号書式 →
// ノイズ除去リトライ。最初に当たったものが勝ち。読み取り専用で副作用はない。
func (s *Service) Resolve(ctx context.Context, token string, kind Kind) (*Resolved, error) {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return nil, &ResolveError{Token: token, Kind: kind, Invalid: true, Reason: "empty token"}
	}

	attempted := []string{}

	res, err := s.resolveOnce(ctx, tok, kind, &attempted)
	if err != nil || res != nil {
		return res, err
	}

	// ノイズ除去リトライ：スキャナが付けがちなゴミ文字を両端から落として1回だけ再試行
	stripped := stripScannerNoise(tok)
	if stripped != "" && stripped != tok {
		attempted = append(attempted, "noise_strip")
		res, err = s.resolveOnce(ctx, stripped, kind, &attempted)
		if err != nil || res != nil {
			return res, err
		}
	}

	return nil, &ResolveError{Token: token, Kind: kind, Attempted: attempted}
}

func (s *Service) resolveOnce(ctx context.Context, tok string, kind Kind, attempted *[]string) (*Resolved, error) {
	// 1. 内部ID（ULID、または旧システムの24桁hex）
	if _, err := ulid.ParseStrict(strings.ToUpper(tok)); err == nil {
		*attempted = appendOnce(*attempted, "internal_id")
		if r, err := s.lookupBoth(ctx, kind, s.store.StudentByULID, s.store.BookByULID, strings.ToUpper(tok)); err != nil || r != nil {
			return r, err
		}
	} else if hex24Re.MatchString(tok) {
		*attempted = appendOnce(*attempted, "legacy_id")
		if r, err := s.lookupBoth(ctx, kind, s.store.StudentByLegacyID, s.store.BookByLegacyID, strings.ToLower(tok)); err != nil || r != nil {
			return r, err
		}
	}

	// 2. 構造化ペイロード
	if strings.HasPrefix(tok, "{") {
		var p structuredPayload
		if err := json.Unmarshal([]byte(tok), &p); err == nil && p.ID != "" {
			*attempted = appendOnce(*attempted, "structured_payload")
			pk := Kind(p.Kind)
			if pk != KindStudent && pk != KindBook {
				return nil, &ResolveError{Token: tok, Kind: kind, Invalid: true, Reason: "unknown kind in payload"}
			}
			// 呼び出し側のヒントとタグが矛盾していたら失敗させる（黙って無視しない）
			if kind != KindAny && kind != pk {
				return nil, &ResolveError{Token: tok, Kind: kind, Invalid: true,
					Reason: fmt.Sprintf("payload kind %q does not match expected %q", pk, kind)}
			}
			return s.resolveOnce(ctx, p.ID, pk, attempted)
		}
	}

	// 3. 外部スキャナID（15桁以上の数字列）
	if scanCodeRe.MatchString(tok) {
		*attempted = appendOnce(*attempted, "scan_code")
		if r, err := s.lookupBoth(ctx, kind, s.store.StudentByScanCode, s.store.BookByScanCode, tok); err != nil || r != nil {
			return r, err
		}
	}

	// 4. 人間可読の番号書式
	if kind != KindBook && studentNumRe.MatchString(tok) {
		*attempted = appendOnce(*attempted, "student_number")
		if r, err := s.lookupStudent(ctx, s.store.StudentByNumber, tok); err != nil || r != nil {
			return r, err
		}
	}
	if kind != KindStudent && accessionRe.MatchString(tok) {
		*attempted = appendOnce(*attempted, "accession_number")
		if r, err := s.lookupBook(ctx, s.store.BookByAccession, tok); err != nil || r != nil {
			return r, err
		}
	}

	return nil, nil
}

type lookupFn func(ctx context.Context, v string) (*Ref, error)

func (s *Service) lookupBoth(ctx context.Context, kind Kind, st, bk lookupFn, v string) (*Resolved, error) {
	if kind != KindBook {
		if r, err := s.lookupStudent(ctx, st, v); err != nil || r != nil {
			return r, err
		}
	}
	if kind != KindStudent {
		if r, err := s.lookupBook(ctx, bk, v); err != nil || r != nil {
			return r, err
		}
	}
	return nil, nil
}

func (s *Service) lookupStudent(ctx context.Context, fn lookupFn, v string) (*Resolved, error) {
	ref, err := fn(ctx, v)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, nil
	}
	return &Resolved{Kind: KindStudent, ID: ref.ID, ULID: ref.ULID}, nil
}

func (s *Service) lookupBook(ctx context.Context, fn lookupFn, v string) (*Resolved, error) {
	ref, err := fn(ctx, v)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, nil
	}
	return &Resolved{Kind: KindBook, ID: ref.ID, ULID: ref.ULID}, nil
}

// stripScannerNoise: 両端から英数字・'-'・JSON区切り以外の文字を落とす。
// ハード由来のゴミ（制御文字、';'、'%'、全角の混入など）対策。中身には触らない。
func stripScannerNoise(tok string) string {
	isNoise := func(r rune) bool {
		switch {
		case r >= '0' && r <= '9':
			return false
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			return false
		case r == '-' || r == '{' || r == '}':
			return false
		}
		return true
	}
	return strings.TrimFunc(tok, isNoise)
}

func appendOnce(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
