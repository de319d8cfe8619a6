package fetcher

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"trendwatch/internal/trend"
)

// Selectors locate the ranked rows on an HTML page. Name, Symbol and Change
// are evaluated inside each Row match; Symbol and Change are optional.
type Selectors struct {
	Row    string
	Name   string
	Symbol string
	Change string
}

// Scrape reads a ranked list from an HTML page.
type Scrape struct {
	opt Options
	sel Selectors
}

func NewScrape(opt Options, sel Selectors) (*Scrape, error) {
	if strings.TrimSpace(opt.URL) == "" {
		return nil, errors.New("scrape: url is required")
	}
	if strings.TrimSpace(sel.Row) == "" || strings.TrimSpace(sel.Name) == "" {
		return nil, errors.New("scrape: row and name selectors are required")
	}
	return &Scrape{opt: opt, sel: sel}, nil
}

func (s *Scrape) Name() string { return "scrape" }

func (s *Scrape) Fetch(ctx context.Context) (trend.RankedList, error) {
	resp, err := get(ctx, s.Name(), s.opt, "text/html")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, classify(s.Name(), ctx.Err())
		}
		return nil, &Error{Source: s.Name(), Kind: KindParse, Err: err}
	}

	var out trend.RankedList
	doc.Find(s.sel.Row).Each(func(_ int, row *goquery.Selection) {
		name := cleanText(row.Find(s.sel.Name).First().Text())
		if name == "" {
			return
		}
		e := trend.Entry{Name: name}
		if s.sel.Symbol != "" {
			e.Symbol = cleanText(row.Find(s.sel.Symbol).First().Text())
		}
		if s.sel.Change != "" {
			if v, ok := parsePct(row.Find(s.sel.Change).First().Text()); ok {
				e.ChangePct = &v
			}
		}
		out = append(out, e)
	})
	if len(out) == 0 {
		return nil, &Error{Source: s.Name(), Kind: KindEmpty}
	}
	return out, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parsePct accepts "3.2%", "+3.2 %", "-0.5", "1,234.5%".
func parsePct(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
