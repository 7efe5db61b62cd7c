package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxHTMLBodyBytes = 1 << 20 // 1 MiB

// Texts returns the trimmed text of every node in body matching selector.
// Empty matches are skipped.
func Texts(body, selector string) ([]string, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("empty selector")
	}
	if len(body) > maxHTMLBodyBytes {
		body = body[:maxHTMLBodyBytes]
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if txt := strings.TrimSpace(s.Text()); txt != "" {
			out = append(out, txt)
		}
	})
	return out, nil
}
