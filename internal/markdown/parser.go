package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

const frontmatterDelim = "---"

// Parser renders Markdown documents with optional YAML frontmatter.
// Raw HTML in the source is dropped, so interpolated user input cannot inject markup.
type Parser struct {
	md goldmark.Markdown
}

func NewParser() *Parser {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			&frontmatter.Extender{},
		),
		goldmark.WithRendererOptions(
			goldmarkhtml.WithHardWraps(),
			goldmarkhtml.WithXHTML(),
		),
	)

	return &Parser{md: md}
}

// Render converts source to HTML and returns its frontmatter.
// A missing or undecodable frontmatter block yields an empty map.
func (p *Parser) Render(source []byte) (html []byte, meta map[string]any, err error) {
	ctx := parser.NewContext()
	var buf bytes.Buffer

	err = p.md.Convert(source, &buf, parser.WithContext(ctx))
	if err != nil {
		return nil, nil, err
	}

	meta = map[string]any{}
	data := frontmatter.Get(ctx)
	if data != nil {
		decodeErr := data.Decode(&meta)
		if decodeErr != nil {
			meta = map[string]any{}
		}
	}

	return buf.Bytes(), meta, nil
}

// Body returns source without its leading frontmatter block.
func Body(source []byte) []byte {
	rest, ok := bytes.CutPrefix(source, []byte(frontmatterDelim+"\n"))
	if !ok {
		return source
	}

	for len(rest) > 0 {
		line, tail, _ := bytes.Cut(rest, []byte("\n"))
		if string(bytes.TrimRight(line, " \r")) == frontmatterDelim {
			return bytes.TrimLeft(tail, "\r\n")
		}
		rest = tail
	}

	// Unterminated frontmatter is treated as plain content.
	return source
}
