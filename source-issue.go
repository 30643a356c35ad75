package gwygb

import (
	"context"
	"encoding/json"
	"io"
	nurl "net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-shiori/dom"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

// DefaultIssueIndexURL is the JSON index listing every issue published
// since 2000.
const DefaultIssueIndexURL = "http://www.gov.cn/gbgl/xhtml/js/gbgl.json"

// Class names of the lists holding article links on an issue page. The
// site switched layout at some point, so both are in use.
var articleListClasses = []string{"table_contents_list", "list01"}

// IssueSource enumerates the HTML articles of every issue found in the JSON
// index. Each issue page is fetched and its table of contents turned into
// targets named gwygb/<year>/<issue-id>/<article-id>.html.
type IssueSource struct {
	IndexURL  string
	Session   Session
	UserAgent string
	Pacer     *Pacer
	EnableLog bool
}

type issue struct {
	Year   string
	Number int
	Serial int
	URL    string
}

type indexEntry struct {
	Issue  flexInt `json:"issue"`
	GName  string  `json:"gname"`
	Serial flexInt `json:"serial"`
}

type indexGroup struct {
	Values map[string]map[string]indexEntry `json:"values"`
}

// flexInt accepts both 12 and "12".
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return errors.Errorf("invalid number %s", b)
	}

	*n = flexInt(v)
	return nil
}

// Targets implements Source.
func (src *IssueSource) Targets(ctx context.Context, visit func(Target) error) error {
	session := src.Session
	if isNilSession(session) {
		session = NewSession(SessionOptions{})
	}

	indexURL := src.IndexURL
	if indexURL == "" {
		indexURL = DefaultIssueIndexURL
	}

	base, err := nurl.Parse(indexURL)
	if err != nil || !isValidURL(indexURL) {
		return errors.Wrapf(ErrInvalidURL, "%q", indexURL)
	}

	issues, err := src.fetchIndex(ctx, session, indexURL)
	if err != nil {
		return err
	}

	for _, is := range issues {
		logf(src.EnableLog, "%s年第%d号（总号：%d）", is.Year, is.Number, is.Serial)

		is.URL = createAbsoluteURL(is.URL, base)
		if err := src.issueTargets(ctx, session, is, visit); err != nil {
			return err
		}

		if err := src.Pacer.Wait(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (src *IssueSource) fetchIndex(ctx context.Context, session Session, indexURL string) ([]issue, error) {
	resp, err := doGet(ctx, session, indexURL, src.UserAgent)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return parseIssueIndex(&sourceReader{r: resp.Body, url: indexURL})
}

// parseIssueIndex decodes the index and returns its issues sorted by year,
// then by issue number.
func parseIssueIndex(r io.Reader) ([]issue, error) {
	var groups []indexGroup
	if err := json.NewDecoder(r).Decode(&groups); err != nil {
		return nil, errors.Wrap(err, "failed to decode issue index")
	}

	if len(groups) == 0 {
		return nil, errors.New("issue index is empty")
	}

	var issues []issue
	for yearKey, entries := range groups[0].Values {
		year := strings.TrimPrefix(yearKey, "y")
		for _, entry := range entries {
			issues = append(issues, issue{
				Year:   year,
				Number: int(entry.Issue),
				Serial: int(entry.Serial),
				URL:    entry.GName,
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Year != issues[j].Year {
			return issues[i].Year < issues[j].Year
		}
		return issues[i].Number < issues[j].Number
	})

	return issues, nil
}

func (src *IssueSource) issueTargets(ctx context.Context, session Session, is issue, visit func(Target) error) error {
	targets, err := src.fetchIssue(ctx, session, is)
	if err != nil {
		return err
	}

	for _, t := range targets {
		if err := emit(ctx, visit, t); err != nil {
			return err
		}
	}

	return nil
}

func (src *IssueSource) fetchIssue(ctx context.Context, session Session, is issue) ([]Target, error) {
	if is.URL == "" {
		return nil, errors.Wrapf(ErrInvalidURL, "issue %s/%d has no page", is.Year, is.Number)
	}

	resp, err := doGet(ctx, session, is.URL, src.UserAgent)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(&sourceReader{r: resp.Body, url: is.URL})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse issue page %s", is.URL)
	}

	return articleTargets(doc, finalURL(resp, is.URL), is), nil
}

// articleTargets numbers the article links of an issue page in document
// order. Links that don't sit inside one of the article lists are skipped.
func articleTargets(doc *html.Node, pageURL *nurl.URL, is issue) []Target {
	var targets []Target

	articleNo := 1
	for _, link := range dom.QuerySelectorAll(doc, "ul a") {
		if !inArticleList(link) {
			continue
		}

		no := articleNo
		articleNo++

		href := createAbsoluteURL(dom.GetAttribute(link, "href"), pageURL)
		if href == "" {
			continue
		}

		targets = append(targets, Target{
			URL:   href,
			Path:  articlePath(is.Year, is.Number, no),
			Title: strings.TrimSpace(dom.TextContent(link)),
		})
	}

	return targets
}

// inArticleList checks the class of the link's grandparent, which is the
// <ul> when the link is wrapped in a <li>.
func inArticleList(link *html.Node) bool {
	if link.Parent == nil || link.Parent.Parent == nil {
		return false
	}

	list := link.Parent.Parent
	if list.Type != html.ElementNode || !dom.HasAttribute(list, "class") {
		return false
	}

	for _, class := range strings.Fields(dom.GetAttribute(list, "class")) {
		for _, wanted := range articleListClasses {
			if class == wanted {
				return true
			}
		}
	}

	return false
}
