package gwygb

import (
	"context"
	"fmt"
	"path"
)

// CollectionDir is the top directory every gazette document is stored under.
const CollectionDir = "gwygb"

// Target is a single document to download. Path is slash separated and
// relative to the output directory.
type Target struct {
	URL   string
	Path  string
	Title string
}

// Source enumerates the documents of a crawl. Targets calls visit for every
// target, in order, and only moves on once visit has returned. The first
// error returned by visit stops the enumeration and is returned as is.
type Source interface {
	Targets(ctx context.Context, visit func(Target) error) error
}

func emit(ctx context.Context, visit func(Target) error, t Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return visit(t)
}

// issueID formats the id of an issue, e.g. 202403 for the third issue of 2024.
func issueID(year string, issue int) string {
	return fmt.Sprintf("%s%02d", year, issue)
}

// articlePath returns gwygb/<year>/<issue-id>/<article-id>.html.
func articlePath(year string, issue, article int) string {
	id := issueID(year, issue)
	return path.Join(CollectionDir, year, id, fmt.Sprintf("%s%02d.html", id, article))
}
