package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hitoshi/briefly/internal/model"
	rpdf "rsc.io/pdf"
)

// extractPDF はページ順にテキストを抽出し、ページ間を改行で連結する。
// テキストを持たないページは空文字列として扱い、エラーにしない。
func extractPDF(raw []byte) (text string, err error) {
	// rsc.io/pdfは壊れた入力に対してpanicすることがあるため、入力エラーに変換する
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
			err = model.NewValidationError(fmt.Sprintf("unreadable PDF: %v", rec))
		}
	}()

	doc, err := rpdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", model.NewValidationError(fmt.Sprintf("unreadable PDF: %v", err))
	}

	pages := make([]string, doc.NumPage())
	for i := range pages {
		pages[i] = pageText(doc.Page(i + 1))
	}
	return strings.Join(pages, "\n"), nil
}

// spaceGap は同じ行の文字間を単語区切りとみなす隙間の大きさ（フォントサイズ比）。
// rsc.io/pdfは空白文字をTextに含めないため、グリフ間の隙間から空白を復元する。
const spaceGap = 0.15

// pageText は1ページ分のテキストを返す。
// Y座標が変わったら改行を挟み、同じ行で前の文字の右端から離れていれば空白を挟む。
func pageText(p rpdf.Page) string {
	if p.V.IsNull() || p.V.Key("Contents").IsNull() {
		return ""
	}
	var sb strings.Builder
	var prev rpdf.Text
	for i, t := range p.Content().Text {
		if i > 0 {
			switch {
			case t.Y != prev.Y:
				sb.WriteByte('\n')
			case t.X > prev.X+prev.W+spaceGap*t.FontSize, t.X < prev.X:
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.S)
		prev = t
	}
	return sb.String()
}
