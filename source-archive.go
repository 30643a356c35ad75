package gwygb

import (
	"context"
	"io"
	nurl "net/url"
	"path"
	"regexp"
	"strings"

	"github.com/go-shiori/dom"
	"github.com/kennygrant/sanitize"
	"github.com/pkg/errors"
	"github.com/tdewolff/parse/v2"
	hlex "github.com/tdewolff/parse/v2/html"
	"golang.org/x/net/html"
)

// DefaultArchiveIndexURL lists one page per year for the 1954-1999 gazettes,
// each of them linking the scanned issues as PDF.
const DefaultArchiveIndexURL = "http://www.gov.cn/zhengce/gongbao/guowuyuan1954-1999.htm"

var rxArchiveYear = regexp.MustCompile(`^中华人民共和国国务院公报（(\d{4})年）`)

// ArchiveSource enumerates the PDF issues of the 1954-1999 archive. Targets
// are named gwygb/<year>/<file> where file is the PDF name without its
// "gwyb" prefix.
type ArchiveSource struct {
	IndexURL  string
	Session   Session
	UserAgent string
	Pacer     *Pacer
	EnableLog bool
}

type yearPage struct {
	Year string
	URL  string
}

type pdfLink struct {
	Href  string
	Title string
}

// Targets implements Source.
func (src *ArchiveSource) Targets(ctx context.Context, visit func(Target) error) error {
	session := src.Session
	if isNilSession(session) {
		session = NewSession(SessionOptions{})
	}

	indexURL := src.IndexURL
	if indexURL == "" {
		indexURL = DefaultArchiveIndexURL
	}

	if !isValidURL(indexURL) {
		return errors.Wrapf(ErrInvalidURL, "%q", indexURL)
	}

	years, err := src.fetchYears(ctx, session, indexURL)
	if err != nil {
		return err
	}

	for _, year := range years {
		if err := src.yearTargets(ctx, session, year, visit); err != nil {
			return err
		}

		if err := src.Pacer.Wait(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (src *ArchiveSource) fetchYears(ctx context.Context, session Session, indexURL string) ([]yearPage, error) {
	resp, err := doGet(ctx, session, indexURL, src.UserAgent)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(&sourceReader{r: resp.Body, url: indexURL})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse archive index %s", indexURL)
	}

	return yearPages(doc, finalURL(resp, indexURL)), nil
}

// yearPages finds the links whose text names a yearly volume.
func yearPages(doc *html.Node, baseURL *nurl.URL) []yearPage {
	var pages []yearPage
	for _, link := range dom.GetElementsByTagName(doc, "a") {
		m := rxArchiveYear.FindStringSubmatch(strings.TrimSpace(dom.TextContent(link)))
		if m == nil {
			continue
		}

		href := createAbsoluteURL(dom.GetAttribute(link, "href"), baseURL)
		if href == "" {
			continue
		}

		pages = append(pages, yearPage{Year: m[1], URL: href})
	}
	return pages
}

func (src *ArchiveSource) yearTargets(ctx context.Context, session Session, year yearPage, visit func(Target) error) error {
	links, pageURL, err := src.fetchYear(ctx, session, year)
	if err != nil {
		return err
	}

	for _, link := range links {
		t, ok := archiveTarget(year.Year, link, pageURL)
		if !ok {
			logf(src.EnableLog, "skipping %s: no usable file name", link.Href)
			continue
		}

		logf(src.EnableLog, "%s", t.Title)
		if err := emit(ctx, visit, t); err != nil {
			return err
		}
	}

	return nil
}

func (src *ArchiveSource) fetchYear(ctx context.Context, session Session, year yearPage) ([]pdfLink, *nurl.URL, error) {
	resp, err := doGet(ctx, session, year.URL, src.UserAgent)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	links, err := scanPDFLinks(&sourceReader{r: resp.Body, url: year.URL})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to scan year page %s", year.URL)
	}

	return links, finalURL(resp, year.URL), nil
}

func archiveTarget(year string, link pdfLink, pageURL *nurl.URL) (Target, bool) {
	href := createAbsoluteURL(link.Href, pageURL)
	u, err := nurl.Parse(href)
	if err != nil {
		return Target{}, false
	}

	name := strings.TrimPrefix(path.Base(u.Path), "gwyb")
	if name == "" || name == "/" || strings.HasPrefix(name, ".") {
		return Target{}, false
	}

	name = sanitize.Name(name)
	if name == "" {
		return Target{}, false
	}

	return Target{
		URL:   href,
		Path:  path.Join(CollectionDir, year, name),
		Title: link.Title,
	}, true
}

// scanPDFLinks walks the page token by token and collects every anchor
// whose href ends with .pdf, along with the first piece of text inside it.
func scanPDFLinks(r io.Reader) ([]pdfLink, error) {
	lexer := hlex.NewLexer(parse.NewInput(r))

	var links []pdfLink
	var current *pdfLink
	openTag := ""

	for {
		token, data := lexer.Next()
		switch token {
		case hlex.ErrorToken:
			if err := lexer.Err(); err != nil && err != io.EOF {
				return links, err
			}
			return links, nil

		case hlex.StartTagToken:
			openTag = strings.ToLower(string(lexer.Text()))
			if openTag == "a" {
				current = &pdfLink{}
			}

		case hlex.StartTagCloseToken, hlex.StartTagVoidToken:
			openTag = ""

		case hlex.AttributeToken:
			if openTag == "a" && current != nil && strings.EqualFold(string(lexer.Text()), "href") {
				current.Href = html.UnescapeString(unquoteAttr(lexer.AttrVal()))
			}

		case hlex.TextToken:
			if current != nil && current.Title == "" {
				current.Title = strings.TrimSpace(html.UnescapeString(string(data)))
			}

		case hlex.EndTagToken:
			if current != nil && strings.EqualFold(string(lexer.Text()), "a") {
				if strings.HasSuffix(strings.TrimSpace(current.Href), ".pdf") {
					current.Href = strings.TrimSpace(current.Href)
					links = append(links, *current)
				}
				current = nil
			}
		}
	}
}

func unquoteAttr(val []byte) string {
	s := string(val)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
