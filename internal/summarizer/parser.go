package summarizer

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/hitoshi/briefly/internal/model"
)

// Stage はAI応答の解析に成功した段階を表す。
type Stage string

const (
	// StageJSON は厳密なJSONとして解析できたことを表す。
	StageJSON Stage = "json"
	// StageMarkers は "Title:" / "Summary:" マーカーでの分割にフォールバックしたことを表す。
	StageMarkers Stage = "markers"
)

const (
	titleMarker   = "Title:"
	summaryMarker = "Summary:"
)

// Parsed はAI応答の解析結果。
type Parsed struct {
	Title string
	Body  string
	Stage Stage
}

// aiPayload はAIに要求するJSONの形。
type aiPayload struct {
	Title   *string `json:"Title"`
	Summary *string `json:"Summary"`
}

// ParseResponse はAIの生応答からタイトルと本文を取り出す。
// まず厳密なJSONとして解析し、失敗した場合のみマーカー分割を試みる。
// どちらの段階でも両フィールドが得られない場合はMalformedAIResponseErrorを返す。
func ParseResponse(raw string) (Parsed, error) {
	if title, body, ok := parseJSON(raw); ok {
		return Parsed{Title: title, Body: body, Stage: StageJSON}, nil
	}
	if title, body, ok := parseMarkers(raw); ok {
		return Parsed{Title: title, Body: body, Stage: StageMarkers}, nil
	}
	return Parsed{}, model.NewMalformedAIResponseError()
}

// parseJSON はコードフェンスや前置きの文章を取り除いた最初のJSONオブジェクトを解析する。
func parseJSON(raw string) (string, string, bool) {
	candidate := findFirstJSON(stripCodeFences(raw))
	if candidate == "" {
		return "", "", false
	}

	var p aiPayload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		return "", "", false
	}
	if p.Title == nil || p.Summary == nil {
		return "", "", false
	}

	title := strings.TrimSpace(*p.Title)
	body := strings.TrimSpace(*p.Summary)
	if title == "" || body == "" {
		return "", "", false
	}
	return title, body, true
}

// parseMarkers は "Title:" と "Summary:" の位置で生テキストを分割する。
// 各区間の前後にある単語構成文字以外（記号、空白、マークダウン装飾）は除去する。
func parseMarkers(raw string) (string, string, bool) {
	ti := strings.Index(raw, titleMarker)
	if ti < 0 {
		return "", "", false
	}
	afterTitle := raw[ti+len(titleMarker):]

	si := strings.Index(afterTitle, summaryMarker)
	if si < 0 {
		return "", "", false
	}

	title := trimNonWord(afterTitle[:si])
	body := trimNonWord(afterTitle[si+len(summaryMarker):])
	if title == "" || body == "" {
		return "", "", false
	}
	return title, body, true
}

// trimNonWord は文字列の両端から単語構成文字（文字、数字、アンダースコア）以外を除去する。
func trimNonWord(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}

// stripCodeFences は ```json などのコードフェンスを除去する。
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl != -1 {
			s = s[nl+1:]
		}
	}
	if strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

// findFirstJSON は最初の釣り合った {...} を返す。文字列リテラル内の括弧は数えない。
func findFirstJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start != -1 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
