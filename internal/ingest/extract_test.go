package ingest

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/learnbot/internal/annotate"
)

const page = `<!DOCTYPE html>
<html>
<head><title>Pets</title><style>p { color: red }</style></head>
<body>
  <h1>Cats</h1>
  <p>I love <b>cats</b>.</p>
  <script>var x = "hidden";</script>
  <ul>
    <li>one</li>
    <li>two</li>
  </ul>
</body>
</html>`

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		file File
		want Format
	}{
		{"pdf extension", File{Name: "notes.PDF"}, FormatPDF},
		{"html extension", File{Name: "page.htm"}, FormatHTML},
		{"markdown", File{Name: "README.md"}, FormatText},
		{"declared html", File{Name: "index", ContentType: "text/html; charset=utf-8"}, FormatHTML},
		{"declared pdf", File{Name: "download", ContentType: "application/pdf"}, FormatPDF},
		{"sniffed html", File{Name: "x", Data: []byte("<html><body>hi</body></html>")}, FormatHTML},
		{"sniffed text", File{Name: "x", Data: []byte("plain words")}, FormatText},
		{"sniffed pdf", File{Name: "x", Data: []byte("%PDF-1.4\n")}, FormatPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat(tt.file)
			if err != nil {
				t.Fatalf("DetectFormat: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFormat = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectFormat_Unsupported(t *testing.T) {
	_, err := DetectFormat(File{Name: "photo", ContentType: "image/png"})
	if !errors.Is(err, annotate.ErrCorpusFormat) {
		t.Errorf("err = %v, want ErrCorpusFormat", err)
	}
}

func TestExtractHTML(t *testing.T) {
	got, err := ExtractHTML(strings.NewReader(page))
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}
	want := "Cats\nI love cats.\none\ntwo"
	if got != want {
		t.Errorf("ExtractHTML = %q, want %q", got, want)
	}
}

func TestExtractText_Plain(t *testing.T) {
	got, err := ExtractText(File{Name: "notes.txt", Data: []byte("  I love cats.\n")})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "I love cats." {
		t.Errorf("ExtractText = %q", got)
	}
}

func TestExtractText_InvalidUTF8(t *testing.T) {
	_, err := ExtractText(File{Name: "bad.txt", Data: []byte{0xff, 0xfe, 'a'}})
	if !errors.Is(err, annotate.ErrCorpusFormat) {
		t.Errorf("err = %v, want ErrCorpusFormat", err)
	}
}

func TestExtractPDF_Malformed(t *testing.T) {
	data := []byte("%PDF-1.4\nthis is not really a pdf")
	_, err := ExtractPDF(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, annotate.ErrCorpusFormat) {
		t.Errorf("err = %v, want ErrCorpusFormat", err)
	}
}

func TestExtractAll_PreservesOrder(t *testing.T) {
	files := []File{
		{Name: "a.txt", Data: []byte("first")},
		{Name: "b.html", Data: []byte("<p>second</p>")},
		{Name: "c.txt", Data: []byte("third")},
	}
	got, err := ExtractAll(context.Background(), files, 2)
	if err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	if want := []string{"first", "second", "third"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractAll = %q, want %q", got, want)
	}
}

func TestExtractAll_FailsOnBadFile(t *testing.T) {
	files := []File{
		{Name: "a.txt", Data: []byte("fine")},
		{Name: "b.png", ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
	}
	_, err := ExtractAll(context.Background(), files, 0)
	if !errors.Is(err, annotate.ErrCorpusFormat) {
		t.Errorf("err = %v, want ErrCorpusFormat", err)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(page))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, err := Fetch(context.Background(), srv.Client(), srv.URL+"/article")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if f.Name != "article" {
		t.Errorf("Name = %q, want article", f.Name)
	}
	text, err := ExtractText(f)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(text, "I love cats.") {
		t.Errorf("text = %q", text)
	}

	if _, err := Fetch(context.Background(), srv.Client(), srv.URL+"/missing"); !errors.Is(err, ErrFetch) {
		t.Errorf("missing page err = %v, want ErrFetch", err)
	}
}

func TestFetch_RejectsBadURLs(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com/x", "file:///etc/passwd", "http://"} {
		if _, err := Fetch(context.Background(), nil, u); !errors.Is(err, ErrFetch) {
			t.Errorf("Fetch(%q) err = %v, want ErrFetch", u, err)
		}
	}
}
