package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Candidate is one result-looking block pulled out of a results page before
// link validation and filtering.
type Candidate struct {
	Title   string
	Href    string
	Snippet string
}

// Strategy locates result candidates in a parsed results page. matched reports
// whether the strategy recognized the page layout, even when none of the
// matched blocks yielded a usable candidate.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document) (cands []Candidate, matched bool)
}

// ContainerSelectors lists the result container selectors, most specific first.
var ContainerSelectors = []string{
	"div.g",
	"div[data-hveid]",
	"div[data-sokoban-container]",
	"div[data-ved]",
	"div[data-q]",
	"div.yuRUbf",
	"div.g > div",
	"div[data-snf]",
	"div[data-async-context]",
}

// SnippetSelectors lists the snippet block selectors tried inside a container.
var SnippetSelectors = []string{
	".VwiC3b",
	".lyLwlc",
	"[data-snf]",
	".s3v9rd",
	".MUxGbd",
	".yDYNvb",
	".wDYxhc",
}

// DefaultStrategies returns one container strategy per selector followed by
// the heading-link heuristic.
func DefaultStrategies() []Strategy {
	out := make([]Strategy, 0, len(ContainerSelectors)+1)
	for _, sel := range ContainerSelectors {
		out = append(out, ContainerStrategy{Selector: sel})
	}
	return append(out, HeadingLinkStrategy{})
}

// ContainerStrategy treats every element matching Selector as one result.
type ContainerStrategy struct {
	Selector string
}

func (s ContainerStrategy) Name() string { return "container:" + s.Selector }

func (s ContainerStrategy) Extract(doc *goquery.Document) ([]Candidate, bool) {
	found := doc.Find(s.Selector)
	if found.Length() == 0 {
		return nil, false
	}
	cands := make([]Candidate, 0, found.Length())
	found.Each(func(_ int, c *goquery.Selection) {
		titleEl := c.Find("h3").First()
		title := collapse(titleEl.Text())
		if titleEl.Length() == 0 || title == "" {
			return
		}
		href, ok := c.Find("a[href]").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		cands = append(cands, Candidate{Title: title, Href: href, Snippet: containerSnippet(c, title)})
	})
	return cands, true
}

// HeadingLinkStrategy is the layout-agnostic fallback: any link that wraps a
// heading is taken as a result, with the nearest enclosing div as context.
type HeadingLinkStrategy struct{}

func (HeadingLinkStrategy) Name() string { return "heading-link" }

func (HeadingLinkStrategy) Extract(doc *goquery.Document) ([]Candidate, bool) {
	var cands []Candidate
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		h3 := a.Find("h3").First()
		if h3.Length() == 0 {
			return
		}
		title := collapse(h3.Text())
		href, _ := a.Attr("href")
		if title == "" || strings.TrimSpace(href) == "" {
			return
		}
		snippet := ""
		if parent := a.Closest("div"); parent.Length() > 0 {
			snippet = withoutTitle(collapse(parent.Text()), title)
		}
		cands = append(cands, Candidate{Title: title, Href: href, Snippet: snippet})
	})
	return cands, len(cands) > 0
}

// containerSnippet returns the first non-empty snippet block, else the
// container text with the title removed.
func containerSnippet(c *goquery.Selection, title string) string {
	for _, sel := range SnippetSelectors {
		if text := collapse(c.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return withoutTitle(collapse(c.Text()), title)
}

func withoutTitle(text, title string) string {
	return strings.TrimSpace(strings.Replace(text, title, "", 1))
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
