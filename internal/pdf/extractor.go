// Package pdfutil pulls plain text out of PDF documents.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNoText is returned when a PDF has pages but none of them carry
// extractable text, which usually means it is a scan.
var ErrNoText = errors.New("pdf contains no extractable text")

// ExtractPages returns the plain text of every page, in page order.
func ExtractPages(data []byte) (pages []string, err error) {
	// ledongthuc/pdf panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("new pdf reader: %w", err)
	}
	total := doc.NumPage()
	pages = make([]string, 0, total)
	for n := 1; n <= total; n++ {
		p := doc.Page(n)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		pages = append(pages, content)
	}
	return pages, nil
}

// ExtractText joins the text of all pages with newlines. It returns ErrNoText
// when nothing readable was found.
func ExtractText(data []byte) (string, error) {
	pages, err := ExtractPages(data)
	if err != nil {
		return "", err
	}
	text := strings.Join(pages, "\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}
