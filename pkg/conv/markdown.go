package conv

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock

	// telegramPolicy keeps only the tags Telegram accepts in HTML parse mode.
	telegramPolicy = newTelegramPolicy()
)

func newTelegramPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote")
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("class").OnElements("code")
	return p
}

func renderHTML(md []byte, flags html.Flags) []byte {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: flags})
	return markdown.Render(p.Parse(md), renderer)
}

// MarkdownToTelegramHTML renders an answer for Telegram. Headings, lists and
// anything else Telegram rejects are reduced to their text.
func MarkdownToTelegramHTML(md []byte) string {
	return string(telegramPolicy.SanitizeBytes(renderHTML(md, html.CommonFlags|html.HrefTargetBlank)))
}
