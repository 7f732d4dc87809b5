// Package security はアプリケーションのセキュリティ機能を提供する。
//
// SummarySanitizer はAIが生成したタイトルと本文を保存前に検査し、
// 生成結果に紛れ込んだスクリプトやイベント属性がクライアントに届かないようにする。
// 本文はMarkdownとして表示されるため、HTMLタグ以外の文字列はエスケープせずそのまま残す。
// 属性付きのタグだけをbluemondayの許可リストポリシーに通す。
package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SummarySanitizer はAI生成テキストのサニタイズ機能のインターフェースを定義する。
type SummarySanitizer interface {
	// SanitizeTitle はHTML要素のタグを除去したプレーンテキストのタイトルを返す。
	// `List<T>` のようなHTML要素名でない山括弧はそのまま残す。
	SanitizeTitle(raw string) string
	// SanitizeBody は実行可能なマークアップだけを除去した本文を返す。
	// script, iframe, style等は内容ごと除去され、on*イベント属性とjavascript: URLは常に除去される。
	// コードスパンとフェンスドコードブロックの中身は変更しない。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeBody(raw string) string
}

var (
	// codeRegion はフェンスドコードブロックとインラインコードスパン。
	codeRegion = regexp.MustCompile("(?s)```.*?```|`[^`\n]*`")
	tagSpan    = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9-]*)(\s[^<>]*)?/?>`)
	activeAttr = regexp.MustCompile(`(?i)(^|[\s"'/])on[a-z]+\s*=|javascript:|vbscript:|data:text/html`)
	attrSyntax = regexp.MustCompile(`^([a-zA-Z_:][\w:.-]*(\s*=\s*("[^"]*"|'[^']*'|[^\s"'=<>` + "`" + `]+))?\s*)*$`)
)

// containerElements は内容ごと除去する要素。
var containerElements = []string{"script", "style", "iframe", "noscript", "template", "object"}

var containerPatterns = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(containerElements))
	for _, name := range containerElements {
		res = append(res, regexp.MustCompile(`(?is)<`+name+`\b[^>]*>.*?</`+name+`\s*>`))
	}
	return res
}()

var blockedElements = map[string]bool{
	"script": true, "style": true, "iframe": true, "frame": true, "frameset": true,
	"object": true, "embed": true, "applet": true, "noscript": true, "template": true,
	"base": true, "link": true, "meta": true,
}

// htmlElements はHTML要素として扱う小文字のタグ名。これ以外はジェネリクス等の本文として残す。
var htmlElements = map[string]bool{
	"a": true, "abbr": true, "area": true, "audio": true, "b": true, "blockquote": true,
	"body": true, "br": true, "button": true, "canvas": true, "caption": true, "code": true,
	"col": true, "dd": true, "del": true, "details": true, "div": true, "dl": true, "dt": true,
	"em": true, "form": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "head": true, "hr": true, "html": true, "i": true, "img": true, "input": true,
	"ins": true, "kbd": true, "label": true, "li": true, "math": true, "ol": true, "p": true,
	"picture": true, "pre": true, "s": true, "section": true, "select": true, "small": true,
	"source": true, "span": true, "strong": true, "sub": true, "summary": true, "sup": true,
	"svg": true, "table": true, "tbody": true, "td": true, "textarea": true, "th": true,
	"thead": true, "tr": true, "u": true, "ul": true, "video": true,
}

// summarySanitizer はSummarySanitizerの実装。
// ポリシーは生成後に変更しないため、複数goroutineから安全に利用できる。
type summarySanitizer struct {
	tags *bluemonday.Policy
}

var _ SummarySanitizer = (*summarySanitizer)(nil)

// NewSummarySanitizer はSummarySanitizerの新しいインスタンスを生成する。
// 属性付きタグに適用するポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, h1-h4
//   - aタグ: httpsのみ、target="_blank" と rel="noopener noreferrer" を自動付与
func NewSummarySanitizer() *summarySanitizer {
	tags := bluemonday.NewPolicy()

	tags.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
		"h1", "h2", "h3", "h4",
	)

	tags.AllowAttrs("href").OnElements("a")
	tags.AllowRelativeURLs(false)
	tags.AllowURLSchemes("https")
	tags.AddTargetBlankToFullyQualifiedLinks(true)
	tags.RequireNoReferrerOnLinks(true)

	return &summarySanitizer{tags: tags}
}

// SanitizeTitle はタイトルからHTML要素のタグを除去する。
func (s *summarySanitizer) SanitizeTitle(raw string) string {
	return s.clean(raw, false)
}

// SanitizeBody は本文から実行可能なマークアップを除去する。
func (s *summarySanitizer) SanitizeBody(raw string) string {
	return s.clean(raw, true)
}

// clean はコード領域を除いた部分にだけcleanMarkupを適用する。
func (s *summarySanitizer) clean(raw string, keepMarkup bool) string {
	var b strings.Builder
	last := 0
	for _, loc := range codeRegion.FindAllStringIndex(raw, -1) {
		b.WriteString(s.cleanMarkup(raw[last:loc[0]], keepMarkup))
		b.WriteString(raw[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(s.cleanMarkup(raw[last:], keepMarkup))
	return strings.TrimSpace(b.String())
}

func (s *summarySanitizer) cleanMarkup(seg string, keepMarkup bool) string {
	for _, re := range containerPatterns {
		seg = re.ReplaceAllString(seg, "")
	}
	return tagSpan.ReplaceAllStringFunc(seg, func(tag string) string {
		m := tagSpan.FindStringSubmatch(tag)
		name := strings.ToLower(m[2])
		attrs := strings.Trim(m[3], " \t\r\n/")
		// 大文字を含む名前（List<T> の T 等）はHTML要素とみなさない
		element := htmlElements[name] && name == m[2]

		switch {
		case blockedElements[name]:
			return ""
		case !keepMarkup && element:
			return ""
		case activeAttr.MatchString(attrs):
			return s.tags.Sanitize(tag)
		case attrs != "" && element && attrSyntax.MatchString(attrs):
			return s.tags.Sanitize(tag)
		}
		return tag
	})
}
