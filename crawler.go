package gwygb

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stats summarizes a crawl run.
type Stats struct {
	Downloaded int
	Skipped    int
	Bytes      int64
	Elapsed    time.Duration
}

// Crawler feeds the targets of a Source into a Fetcher, one at a time.
type Crawler struct {
	Fetcher   *Fetcher
	OutputDir string
	Pacer     *Pacer
	EnableLog bool
}

// Run crawls src until it is exhausted. Every target is downloaded before
// the source goes on, so at most one request is in flight at any time.
// The first error, either from the source or from a download, stops the
// whole run. Files fetched so far stay on disk, so running again picks up
// where this run stopped.
func (c *Crawler) Run(ctx context.Context, src Source) (Stats, error) {
	var stats Stats
	if c.Fetcher == nil {
		return stats, errors.New("crawler has no fetcher")
	}

	start := time.Now()
	err := src.Targets(ctx, func(t Target) error {
		dst := filepath.Join(c.OutputDir, filepath.FromSlash(t.Path))
		downloaded, err := c.Fetcher.Fetch(ctx, t.URL, dst)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch %s", t.URL)
		}

		if !downloaded {
			stats.Skipped++
			return nil
		}

		stats.Downloaded++
		if info, err := os.Stat(dst); err == nil {
			stats.Bytes += info.Size()
		}

		return c.Pacer.Wait(ctx)
	})

	stats.Elapsed = time.Since(start)

	if c.EnableLog {
		logrus.WithFields(logrus.Fields{
			"downloaded": stats.Downloaded,
			"skipped":    stats.Skipped,
			"size":       humanize.Bytes(uint64(stats.Bytes)),
			"elapsed":    stats.Elapsed.Round(time.Millisecond),
		}).Info("crawl finished")
	}

	return stats, err
}
