package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"mvdan.cc/xurls/v2"
)

// ErrExtraction reports an unreadable, corrupt or text-less PDF.
var ErrExtraction = errors.New("text extraction failed")

var (
	horizontalSpaceRe = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	blankLinesRe      = regexp.MustCompile(`\n{3,}`)

	linkRe = xurls.Strict()

	infoFields = []string{"Title", "Author", "Subject", "Creator", "Producer"}
)

type Extraction struct {
	Text      string
	PageCount int
	Metadata  map[string]string
}

// Extractor turns a stored file into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
}

type PDF struct {
	log *slog.Logger
}

func NewPDF(log *slog.Logger) *PDF {
	return &PDF{log: log}
}

func (p *PDF) Extract(ctx context.Context, path string) (ext *Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext = nil
			err = fmt.Errorf("%w: parser panic: %v", ErrExtraction, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open PDF: %w", ErrExtraction, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			p.log.WarnContext(ctx, "Failed to close PDF file",
				"error", closeErr,
				"path", path)
		}
	}()

	pageCount := r.NumPage()
	pages := make([]string, 0, pageCount)

	for i := 1; i <= pageCount; i++ {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			p.log.WarnContext(ctx, "Failed to extract page text",
				"error", pageErr,
				"path", path,
				"page", i)

			continue
		}

		if text = normalize(text); text != "" {
			pages = append(pages, text)
		}
	}

	text := strings.Join(pages, "\n\n")
	if text == "" {
		return nil, fmt.Errorf("%w: no extractable text in %d pages", ErrExtraction, pageCount)
	}

	metadata := info(r)
	metadata["pages"] = strconv.Itoa(pageCount)
	metadata["characters"] = strconv.Itoa(utf8.RuneCountInString(text))
	metadata["links"] = strconv.Itoa(len(linkRe.FindAllString(text, -1)))

	return &Extraction{
		Text:      text,
		PageCount: pageCount,
		Metadata:  metadata,
	}, nil
}

func info(r *pdf.Reader) map[string]string {
	metadata := make(map[string]string)

	infoDict := r.Trailer().Key("Info")
	if infoDict.IsNull() {
		return metadata
	}

	for _, field := range infoFields {
		if v := strings.TrimSpace(infoDict.Key(field).Text()); v != "" {
			metadata[strings.ToLower(field)] = v
		}
	}

	return metadata
}

// normalize collapses horizontal whitespace, trims every line and keeps at
// most one blank line between paragraphs.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpaceRe.ReplaceAllString(line, " "))
	}

	text = strings.Join(lines, "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}
