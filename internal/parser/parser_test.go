package parser_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/deidaraiorek/sitesearch/internal/parser"
)

const samplePage = `<html>
<head><title> Cats &amp; Dogs </title><style>.x{color:red}</style></head>
<body>
  <script>var hidden = "secret";</script>
  <h1>Pets</h1>
  <p>The   cat sat.</p>
  <noscript>enable js</noscript>
  <a href="/about/">About</a>
  <a href="https://www.example.com/blog?page=2#top">Blog</a>
  <a href="#section">Jump</a>
  <a href="mailto:me@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
  <a href="/files/report.pdf">Report</a>
  <a href="https://other.org/x">Other</a>
  <a href="/about">About again</a>
</body>
</html>`

func TestParse(t *testing.T) {
	p := parser.New(parser.ModeBody)

	doc, err := p.Parse([]byte(samplePage), "https://example.com/")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if doc.Title != "Cats & Dogs" {
		t.Errorf("Title = %q", doc.Title)
	}
	if strings.Contains(doc.Content, "secret") || strings.Contains(doc.Content, "enable js") {
		t.Errorf("script/noscript text leaked into content: %q", doc.Content)
	}
	if !strings.Contains(doc.Content, "Pets The cat sat.") {
		t.Errorf("whitespace not collapsed: %q", doc.Content)
	}

	want := []string{
		"https://example.com/about",
		"https://example.com/blog",
		"https://other.org/x",
	}
	if !reflect.DeepEqual(doc.Links, want) {
		t.Errorf("Links = %q, want %q", doc.Links, want)
	}
	t.Logf("content: %s", doc.Content)
}

func TestParseSeparatesAdjacentElements(t *testing.T) {
	page := `<html><body><ul><li>Home</li><li>About</li></ul><p>cats</p><a href="/x">dogs</a><script>x()</script><div><span>big</span><b>bird</b></div></body></html>`

	doc, err := parser.New(parser.ModeBody).Parse([]byte(page), "https://example.com/")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if doc.Content != "Home About cats dogs big bird" {
		t.Errorf("Content = %q, want %q", doc.Content, "Home About cats dogs big bird")
	}

	doc, err = parser.New(parser.ModeReadability).Parse([]byte(page), "https://example.com/")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	for _, merged := range []string{"HomeAbout", "catsdogs", "bigbird", "Aboutcats", "dogsbig"} {
		if strings.Contains(doc.Content, merged) {
			t.Errorf("readability content %q merges words into %q", doc.Content, merged)
		}
	}
	t.Logf("readability content: %s", doc.Content)
}

func TestParseReadabilityFallsBackToBody(t *testing.T) {
	p := parser.New(parser.ModeReadability)

	doc, err := p.Parse([]byte(`<html><body><p>tiny</p></body></html>`), "https://example.com/")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !strings.Contains(doc.Content, "tiny") {
		t.Errorf("Content = %q, want body text", doc.Content)
	}
	if doc.HasSufficientContent() {
		t.Error("short page should not have sufficient content")
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"/a/b/", "https://example.com/a/b", true},
		{"c", "https://example.com/docs/c", true},
		{"https://WWW.Example.com/x?y=1", "https://example.com/x", true},
		{"/", "https://example.com", true},
		{"#frag", "", false},
		{"tel:+123", "", false},
		{"ftp://example.com/file", "", false},
		{"/img/logo.PNG", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			got, ok := parser.Resolve("https://example.com/docs/index", tt.href)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Resolve(%q) = %q, %v; want %q, %v", tt.href, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDomainHelpers(t *testing.T) {
	domain := parser.Domain("https://www.example.com/")
	if domain != "https://example.com" {
		t.Fatalf("Domain = %q", domain)
	}

	if !parser.InDomain("https://example.com", domain) {
		t.Error("root should be in domain")
	}
	if !parser.InDomain("https://example.com/a", domain) {
		t.Error("child should be in domain")
	}
	if parser.InDomain("https://example.com.evil.org/a", domain) {
		t.Error("lookalike host should not be in domain")
	}

	if got := parser.Path("https://example.com"); got != "/" {
		t.Errorf("Path(root) = %q", got)
	}
	if got := parser.Path("https://example.com/a/b"); got != "/a/b" {
		t.Errorf("Path = %q", got)
	}
	if got := parser.Normalize("https://www.example.com/a/?q=1#x"); got != "https://example.com/a" {
		t.Errorf("Normalize = %q", got)
	}

	if !parser.IsHTML("text/html; charset=utf-8") || parser.IsHTML("application/pdf") {
		t.Error("IsHTML misclassified content types")
	}
}
