package gwygb

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource yields a fixed list of targets, then returns err.
type sliceSource struct {
	targets []Target
	err     error
}

func (s *sliceSource) Targets(ctx context.Context, visit func(Target) error) error {
	for _, t := range s.targets {
		if err := emit(ctx, visit, t); err != nil {
			return err
		}
	}
	return s.err
}

func TestCrawler_Run(t *testing.T) {
	server, count := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("article " + r.URL.Path))
	})

	src := &sliceSource{targets: []Target{
		{URL: server.URL + "/a1", Path: "gwygb/2024/202401/20240101.html"},
		{URL: server.URL + "/a2", Path: "gwygb/2024/202401/20240102.html"},
		{URL: server.URL + "/a3", Path: "gwygb/2024/202402/20240201.html"},
	}}

	outputDir := t.TempDir()
	crawler := &Crawler{
		Fetcher:   newValidatedFetcher(),
		OutputDir: outputDir,
	}

	stats, err := crawler.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Downloaded)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, int64(len("article /a1")*3), stats.Bytes)

	content, err := os.ReadFile(filepath.Join(outputDir, "gwygb", "2024", "202402", "20240201.html"))
	require.NoError(t, err)
	assert.Equal(t, "article /a3", string(content))

	// Running again only checks the files on disk
	stats, err = crawler.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Downloaded)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, int32(3), atomic.LoadInt32(count))
}

func TestCrawler_RunStopsOnFetchError(t *testing.T) {
	server, count := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Write([]byte("ok"))
	})

	src := &sliceSource{targets: []Target{
		{URL: server.URL + "/a1", Path: "gwygb/1999/199901.pdf"},
		{URL: server.URL + "/broken", Path: "gwygb/1999/199902.pdf"},
		{URL: server.URL + "/a3", Path: "gwygb/1999/199903.pdf"},
	}}

	outputDir := t.TempDir()
	crawler := &Crawler{
		Fetcher:   newValidatedFetcher(),
		OutputDir: outputDir,
	}

	stats, err := crawler.Run(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, http.StatusGone, StatusCode(err))
	assert.Contains(t, err.Error(), server.URL+"/broken")
	assert.Equal(t, 1, stats.Downloaded)
	assert.Equal(t, int32(2), atomic.LoadInt32(count))

	assert.FileExists(t, filepath.Join(outputDir, "gwygb", "1999", "199901.pdf"))
	assert.NoFileExists(t, filepath.Join(outputDir, "gwygb", "1999", "199902.pdf"))
	assert.NoFileExists(t, filepath.Join(outputDir, "gwygb", "1999", "199903.pdf"))
}

func TestCrawler_RunSourceError(t *testing.T) {
	server, _ := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	sourceErr := errors.New("index is broken")
	src := &sliceSource{
		targets: []Target{{URL: server.URL + "/a1", Path: "gwygb/2000/200001/20000101.html"}},
		err:     sourceErr,
	}

	crawler := &Crawler{
		Fetcher:   newValidatedFetcher(),
		OutputDir: t.TempDir(),
	}

	_, err := crawler.Run(context.Background(), src)
	assert.ErrorIs(t, err, sourceErr)
}

func TestCrawler_RunWithoutFetcher(t *testing.T) {
	_, err := (&Crawler{}).Run(context.Background(), &sliceSource{})
	assert.Error(t, err)
}

func TestCrawler_RunIssueSource(t *testing.T) {
	server := newGazetteServer(t, map[string]string{
		"/gbgl/xhtml/js/gbgl.json": `[{"values": {"y2024": {"0": {"issue": 1, "gname": "/issue/2024-01.htm", "serial": 1}}}}]`,
		"/issue/2024-01.htm":       `<ul class="list01"><li><a href="/content/a1.htm">a1</a></li><li><a href="/content/a2.htm">a2</a></li></ul>`,
		"/content/a1.htm":          "<html>a1</html>",
		"/content/a2.htm":          "<html>a2</html>",
	})

	session := NewSession(SessionOptions{})
	fetcher := &Fetcher{Session: session}
	fetcher.Validate()

	outputDir := t.TempDir()
	crawler := &Crawler{Fetcher: fetcher, OutputDir: outputDir}
	src := &IssueSource{IndexURL: server.URL + "/gbgl/xhtml/js/gbgl.json", Session: session}

	stats, err := crawler.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Downloaded)

	content, err := os.ReadFile(filepath.Join(outputDir, "gwygb", "2024", "202401", "20240102.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>a2</html>", string(content))
}

func TestCrawler_RunOneRequestAtATime(t *testing.T) {
	pages := map[string]string{
		"/gbgl/xhtml/js/gbgl.json": `[{"values": {"y2024": {
			"0": {"issue": 1, "gname": "/issue/2024-01.htm", "serial": 1},
			"1": {"issue": 2, "gname": "/issue/2024-02.htm", "serial": 2}
		}}}]`,
		"/issue/2024-01.htm": `<ul class="list01"><li><a href="/content/a1.htm">a1</a></li></ul>`,
		"/issue/2024-02.htm": `<ul class="list01"><li><a href="/content/b1.htm">b1</a></li></ul>`,
		"/content/a1.htm":    "<html>a1</html>",
		"/content/b1.htm":    "<html>b1</html>",
	}

	var inflight, maxInflight int32
	server, _ := newCountingServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			seen := atomic.LoadInt32(&maxInflight)
			if n <= seen || atomic.CompareAndSwapInt32(&maxInflight, seen, n) {
				break
			}
		}

		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		// Articles are slower than the pause between two issues
		if strings.HasPrefix(r.URL.Path, "/content/") {
			time.Sleep(200 * time.Millisecond)
		}
		w.Write([]byte(page))
	})

	session := NewSession(SessionOptions{})
	fetcher := &Fetcher{Session: session}
	fetcher.Validate()

	crawler := &Crawler{
		Fetcher:   fetcher,
		OutputDir: t.TempDir(),
		Pacer:     NewPacer(20 * time.Millisecond),
	}
	src := &IssueSource{
		IndexURL: server.URL + "/gbgl/xhtml/js/gbgl.json",
		Session:  session,
		Pacer:    NewPacer(20 * time.Millisecond),
	}

	stats, err := crawler.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Downloaded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInflight))
}
