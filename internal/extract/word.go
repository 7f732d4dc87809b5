package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hitoshi/briefly/internal/model"
)

// documentPart はWord文書本体のXMLパス。
const documentPart = "word/document.xml"

// extractWord は段落（w:p）ごとのテキストを文書順に改行で連結する。
// w:tab はタブ、w:br / w:cr は段落内改行として扱う。
// テキストボックス内の段落は、それを含む段落の後に続けて出力する。
func extractWord(raw []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", model.NewValidationError("unreadable Word document (only .docx packages are supported)")
	}

	var part *zip.File
	for _, f := range zr.File {
		if f.Name == documentPart {
			part = f
			break
		}
	}
	if part == nil {
		return "", model.NewValidationError("Word document has no " + documentPart)
	}

	rc, err := part.Open()
	if err != nil {
		return "", model.NewValidationError(fmt.Sprintf("unreadable Word document: %v", err))
	}
	defer rc.Close()

	paragraphs, err := readParagraphs(rc)
	if err != nil {
		return "", model.NewValidationError(fmt.Sprintf("malformed Word document: %v", err))
	}
	return strings.Join(paragraphs, "\n"), nil
}

// paragraph は読み取り中の段落。テキストボックス等で入れ子になった段落はnestedに溜め、
// 外側の段落の直後に出力する。
type paragraph struct {
	text   strings.Builder
	nested []string
}

// readParagraphs はdocument.xmlを走査して段落テキストを順に返す。
// mc:Fallback はmc:Choiceと同じ内容の代替表現なので読み飛ばす。
func readParagraphs(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		stack      []*paragraph
		inText     bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		var cur *paragraph
		if len(stack) > 0 {
			cur = stack[len(stack)-1]
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "Fallback":
				if err := dec.Skip(); err != nil {
					return nil, err
				}
			case "p":
				stack = append(stack, &paragraph{})
			case "t":
				inText = true
			case "tab":
				if cur != nil {
					cur.text.WriteByte('\t')
				}
			case "br", "cr":
				if cur != nil {
					cur.text.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "p":
				if cur == nil {
					continue
				}
				stack = stack[:len(stack)-1]
				done := append([]string{cur.text.String()}, cur.nested...)
				if len(stack) > 0 {
					parent := stack[len(stack)-1]
					parent.nested = append(parent.nested, done...)
				} else {
					paragraphs = append(paragraphs, done...)
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if cur != nil && inText {
				cur.text.Write(el)
			}
		}
	}

	return paragraphs, nil
}
