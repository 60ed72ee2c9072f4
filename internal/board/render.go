package board

import (
	"bytes"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownOnce     sync.Once
	markdownInstance goldmark.Markdown
)

// markdown returns the shared converter. Raw HTML in post content is
// dropped rather than passed through.
func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownInstance
}

// RenderContent converts markdown post content to HTML.
func RenderContent(content string) (string, error) {
	if content == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := markdown().Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
