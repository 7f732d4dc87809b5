// Package extract はアップロードされたファイルのバイト列からプレーンテキストを取り出す。
// 副作用を持たない純粋関数として実装し、同一入力には常に同一の出力を返す。
package extract

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/briefly/internal/model"
)

// Format は抽出方式を表す。
type Format string

const (
	// FormatPDF はページ単位でテキストを抽出する。
	FormatPDF Format = "pdf"
	// FormatWord は段落構造のWord文書として抽出する。
	FormatWord Format = "word"
	// FormatText はUTF-8テキストとしてデコードする。
	FormatText Format = "text"
)

// Detect はファイル名の拡張子から抽出方式を判定する。
// 拡張子がない場合のみmimeHintを参照する。未知の拡張子はテキスト扱い。
func Detect(filename, mimeHint string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FormatPDF
	case ".doc", ".docx":
		return FormatWord
	case "":
		return detectByMime(mimeHint)
	default:
		// .txt .py .js .html .css .json .md および未知の拡張子
		return FormatText
	}
}

func detectByMime(mimeHint string) Format {
	m := strings.ToLower(mimeHint)
	switch {
	case strings.HasPrefix(m, "application/pdf"):
		return FormatPDF
	case strings.Contains(m, "wordprocessingml"), strings.HasPrefix(m, "application/msword"):
		return FormatWord
	default:
		return FormatText
	}
}

// Extract はファイル名・MIMEヒント・生バイト列からプレーンテキストを返す。
// テキスト経路でUTF-8として不正なバイト列はUnsupportedEncodingErrorとなる。
// 別エンコーディングへの自動フォールバックは行わない。
func Extract(filename, mimeHint string, raw []byte) (string, error) {
	switch Detect(filename, mimeHint) {
	case FormatPDF:
		return extractPDF(raw)
	case FormatWord:
		return extractWord(raw)
	default:
		return decodeText(filename, raw)
	}
}

func decodeText(filename string, raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", model.NewUnsupportedEncodingError(filename)
	}
	return string(raw), nil
}
