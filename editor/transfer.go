package editor

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/tdewolff/minify/v2"
	minhtml "github.com/tdewolff/minify/v2/html"

	"github.com/hazyhaar/vedit/htmldoc"
	"github.com/hazyhaar/vedit/journal"
)

// Export formats.
const (
	FormatHTML      = "html"
	FormatMinified  = "html+minified"
	FormatMarkdown  = "markdown"
	FormatSanitized = "html+sanitized"
)

// Formats lists the accepted export formats.
var Formats = []string{FormatHTML, FormatMinified, FormatMarkdown, FormatSanitized}

var (
	minifier    = newMinifier()
	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

func newMinifier() *minify.M {
	m := minify.New()
	m.Add("text/html", &minhtml.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	return m
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// checkText rejects content that cannot be an HTML text file.
func checkText(name string, data []byte, max int64) error {
	if max > 0 && int64(len(data)) > max {
		return &ImportFormatError{Name: name, Reason: fmt.Sprintf("larger than %d bytes", max)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &ImportFormatError{Name: name, Reason: "empty file"}
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return &ImportFormatError{Name: name, Reason: "binary content"}
	}
	if !utf8.Valid(data) {
		return &ImportFormatError{Name: name, Reason: "not UTF-8 text"}
	}
	return nil
}

// Import replaces the document with the content of a user file. Fragments and
// plain text are wrapped into a complete document; every element is tagged
// before the single commit.
func (s *Session) Import(ctx context.Context, name string, data []byte) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	ev := journal.Event{Key: name}
	data = bytes.TrimPrefix(data, utf8BOM)
	if err := checkText(name, data, s.importCfg.MaxBytes); err != nil {
		return s.rejectLocked(ctx, "import", err, ev)
	}
	doc, err := htmldoc.Normalize(string(data))
	if err != nil {
		return s.rejectLocked(ctx, "import", &ImportFormatError{Name: name, Reason: err.Error()}, ev)
	}
	if s.importCfg.Sanitize {
		if doc, err = htmldoc.Sanitize(doc); err != nil {
			return s.rejectLocked(ctx, "import", err, ev)
		}
	}
	prev := s.selection
	s.selection = ""
	st, err := s.commitLocked(ctx, "import", doc, ev)
	if err != nil {
		s.selection = prev
		st.Selection = prev
	}
	return st, err
}

// Export is a downloadable rendition of the document.
type Export struct {
	Format      string `json:"format"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"-"`
}

// Export renders the document without editor markup in the given format.
// An empty format means FormatHTML.
func (s *Session) Export(ctx context.Context, format string) (*Export, error) {
	if format == "" {
		format = FormatHTML
	}
	doc, pos := s.snapshot()
	clean, err := htmldoc.StripEditorMarkup(doc)
	if err != nil {
		return nil, fmt.Errorf("editor: export: %w", err)
	}

	out := &Export{Format: format, Filename: "index.html", ContentType: "text/html; charset=utf-8"}
	switch format {
	case FormatHTML:
		out.Body = []byte(clean)
	case FormatMinified:
		b, err := minifier.Bytes("text/html", []byte(clean))
		if err != nil {
			return nil, fmt.Errorf("editor: minify: %w", err)
		}
		out.Body = b
	case FormatSanitized:
		san, err := htmldoc.Sanitize(clean)
		if err != nil {
			return nil, fmt.Errorf("editor: sanitize: %w", err)
		}
		out.Body = []byte(san)
	case FormatMarkdown:
		md, err := mdConverter.ConvertString(clean)
		if err != nil {
			return nil, fmt.Errorf("editor: markdown: %w", err)
		}
		out.Filename = "index.md"
		out.ContentType = "text/markdown; charset=utf-8"
		out.Body = []byte(md)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	exportsTotal.WithLabelValues(format).Inc()
	s.record(ctx, "export", journal.Event{Key: format}, pos, nil)
	return out, nil
}
