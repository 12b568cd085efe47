package api

import (
	"bytes"
	"embed"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed docs/*.md
var docFS embed.FS

var docTypes = map[string]bool{
	"security": true,
	"privacy":  true,
	"terms":    true,
}

// DocStore renders the embedded legal/help documents to HTML on demand.
// Documents ship per language as docs/{type}_{lang}.md; Chinese is the
// canonical copy and the fallback when a translation is missing.
type DocStore struct {
	md goldmark.Markdown
}

func NewDocStore() *DocStore {
	return &DocStore{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

// Render returns the document title and its HTML body. Unknown document
// types are an error; unknown languages fall back to Chinese.
func (d *DocStore) Render(docType, lang string) (title, html string, err error) {
	if !docTypes[docType] {
		return "", "", fmt.Errorf("unknown document type %q", docType)
	}
	if lang == "" {
		lang = "zh"
	}
	raw, readErr := docFS.ReadFile("docs/" + docType + "_" + lang + ".md")
	if readErr != nil && lang != "zh" {
		raw, readErr = docFS.ReadFile("docs/" + docType + "_zh.md")
	}
	if readErr != nil {
		return "", "", fmt.Errorf("document %s: %w", docType, readErr)
	}

	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(line, "# ") {
			title = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			break
		}
	}
	var buf bytes.Buffer
	if err := d.md.Convert(raw, &buf); err != nil {
		return "", "", fmt.Errorf("render %s: %w", docType, err)
	}
	return title, buf.String(), nil
}
