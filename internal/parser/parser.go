package parser

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

const (
	ModeBody        = "body"
	ModeReadability = "readability"
)

// minContentLength is the amount of text below which a page is considered
// to need a rendered (javascript) fetch.
const minContentLength = 100

const maxContentLength = 1000000

type Document struct {
	Title   string
	Content string
	Links   []string
}

// HasSufficientContent reports whether the extracted text is long enough to
// be worth indexing without rendering the page in a browser.
func (d *Document) HasSufficientContent() bool {
	return len(strings.TrimSpace(d.Content)) >= minContentLength
}

type Parser struct {
	mode string
}

func New(mode string) *Parser {
	if mode == "" {
		mode = ModeBody
	}
	return &Parser{mode: mode}
}

// Parse extracts the title, text content and normalized outgoing links of
// an HTML document fetched from pageURL.
func (p *Parser) Parse(body []byte, pageURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	links := p.extractLinks(doc, pageURL)

	content := ""
	if p.mode == ModeReadability {
		content = p.extractArticle(body, pageURL)
	}
	if content == "" {
		content = p.extractContent(doc)
	}

	return &Document{
		Title:   title,
		Content: content,
		Links:   links,
	}, nil
}

func (p *Parser) extractLinks(doc *goquery.Document, pageURL string) []string {
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}

		link, ok := Resolve(pageURL, href)
		if !ok || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})

	return links
}

func (p *Parser) extractContent(doc *goquery.Document) string {
	return cleanText(nodeText(doc.Find("body")))
}

// extractArticle returns the main article text, or "" when readability
// cannot find one.
func (p *Parser) extractArticle(body []byte, pageURL string) string {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	articleParser := readability.NewParser()
	article, err := articleParser.Parse(bytes.NewReader(body), parsedURL)
	if err != nil {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return ""
	}
	return cleanText(nodeText(doc.Selection))
}

// nodeText joins every text node under sel with a space, so adjacent
// elements never run together. Script, style and noscript are skipped.
func nodeText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

func cleanText(text string) string {
	content := strings.Join(strings.Fields(text), " ")
	if len(content) > maxContentLength {
		content = strings.ToValidUTF8(content[:maxContentLength], "")
	}
	return content
}
