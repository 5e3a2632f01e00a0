// Package ingest turns uploaded and fetched documents into plain-text
// corpora and runs queued learning jobs.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/learnbot/internal/annotate"
)

// File is a document whose text should be learned.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Format is a supported document format.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// DetectFormat picks a format from the file name, then the declared
// content type, then the content itself.
func DetectFormat(f File) (Format, error) {
	switch strings.ToLower(path.Ext(f.Name)) {
	case ".pdf":
		return FormatPDF, nil
	case ".html", ".htm", ".xhtml":
		return FormatHTML, nil
	case ".txt", ".text", ".md":
		return FormatText, nil
	}

	ct := f.ContentType
	if ct == "" {
		ct = http.DetectContentType(f.Data)
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("%w: content type %q: %v", annotate.ErrCorpusFormat, ct, err)
	}
	switch {
	case mt == "application/pdf":
		return FormatPDF, nil
	case mt == "text/html" || mt == "application/xhtml+xml":
		return FormatHTML, nil
	case strings.HasPrefix(mt, "text/"):
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unsupported content type %q", annotate.ErrCorpusFormat, mt)
}

// ExtractText returns the plain text of f. Documents that cannot be read
// fail with an error wrapping annotate.ErrCorpusFormat.
func ExtractText(f File) (string, error) {
	format, err := DetectFormat(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", f.Name, err)
	}

	var text string
	switch format {
	case FormatPDF:
		text, err = ExtractPDF(bytes.NewReader(f.Data), int64(len(f.Data)))
	case FormatHTML:
		text, err = ExtractHTML(bytes.NewReader(f.Data))
	default:
		if !utf8.Valid(f.Data) {
			err = fmt.Errorf("%w: text is not valid UTF-8", annotate.ErrCorpusFormat)
		}
		text = string(f.Data)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", f.Name, err)
	}
	return strings.TrimSpace(text), nil
}

// ExtractAll extracts every file concurrently, at most limit at a time,
// and returns the texts in input order.
func ExtractAll(ctx context.Context, files []File, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 4
	}
	texts := make([]string, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			text, err := ExtractText(f)
			if err != nil {
				return err
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"template": true,
	"svg":      true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

// ExtractHTML returns the visible text of an HTML document with one line
// per block element.
func ExtractHTML(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("%w: parsing html: %v", annotate.ErrCorpusFormat, err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			b.WriteByte('\n')
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		if t := strings.Join(strings.Fields(line), " "); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// ExtractPDF returns the plain text of a PDF document.
func ExtractPDF(r io.ReaderAt, size int64) (text string, err error) {
	// The PDF reader panics on some malformed documents.
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("%w: reading pdf: %v", annotate.ErrCorpusFormat, p)
		}
	}()

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("%w: opening pdf: %v", annotate.ErrCorpusFormat, err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extracting pdf text: %v", annotate.ErrCorpusFormat, err)
	}
	data, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("%w: reading pdf text: %v", annotate.ErrCorpusFormat, err)
	}
	return string(data), nil
}
