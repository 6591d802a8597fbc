package conv

import (
	"io"
	"strings"

	"github.com/gomarkdown/markdown/html"
	"github.com/inbucket/html2text"
)

var textOptions = html2text.Options{
	OmitLinks: true,
}

// HTMLToText flattens an HTML document into plain text.
func HTMLToText(r io.Reader) (string, error) {
	text, err := html2text.FromReader(r, textOptions)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// MarkdownToText renders markdown and strips all formatting.
func MarkdownToText(md []byte) (string, error) {
	return HTMLToText(strings.NewReader(string(renderHTML(md, html.CommonFlags))))
}
