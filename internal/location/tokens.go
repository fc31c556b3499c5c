package location

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var adminSuffixes = []string{"시", "군", "구", "동", "읍", "면"}

// Longest first so "에서" is stripped before "에".
var particles = []string{
	"으로", "에서", "근처", "부근", "쪽에", "하고",
	"에", "의", "은", "는", "이", "가", "을", "를", "로", "도", "만", "랑", "와", "과", "쪽",
}

// Ordinary words that end in an administrative suffix but are not places.
var defaultStopwords = []string{
	// -시
	"도시", "전시", "당시", "표시", "임시", "정시", "동시", "역시", "감시", "지시", "무시", "다시", "혹시", "수시",
	// -동
	"운동", "활동", "이동", "자동", "행동", "감동", "노동", "아동", "공동", "협동", "체험활동", "야외활동",
	// -구
	"가구", "도구", "친구", "연구", "입구", "출구", "기구", "놀이기구", "요구", "완구", "야구", "축구", "농구", "배구", "탁구",
	// -면
	"장면", "측면", "화면", "방면", "반면", "정면", "전면", "평면", "수면", "지면", "라면", "냉면",
	// -군
	"장군",
}

// AdminTokens extracts fine-grained administrative tokens (e.g. 수영구, 우동, 기장읍) from a query.
// A token must end in 시/군/구/동/읍/면 after particles are stripped, be at least two runes long
// and not be a stop word. Names from the location table are never treated as stop words.
func (r *Resolver) AdminTokens(query string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, raw := range strings.Fields(query) {
		tok := r.adminToken(raw)
		if tok == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func (r *Resolver) adminToken(raw string) string {
	tok := strings.TrimRightFunc(raw, func(c rune) bool {
		return unicode.IsPunct(c) || unicode.IsSymbol(c)
	})

	candidates := []string{tok}
	for _, p := range particles {
		if strings.HasSuffix(tok, p) {
			candidates = append(candidates, strings.TrimSuffix(tok, p))
		}
	}

	for _, c := range candidates {
		if r.isAdminToken(c) {
			return c
		}
	}
	return ""
}

func (r *Resolver) isAdminToken(tok string) bool {
	if utf8.RuneCountInString(tok) < 2 || !hasAdminSuffix(tok) {
		return false
	}
	if _, known := r.known[normalize(tok)]; known {
		return true
	}
	_, stop := r.stopwords[tok]
	return !stop
}

func hasAdminSuffix(tok string) bool {
	for _, s := range adminSuffixes {
		if strings.HasSuffix(tok, s) {
			return true
		}
	}
	return false
}
