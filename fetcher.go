package gwygb

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var defaultTempSuffix = ".tmp"

// Session is anything that can perform an HTTP request and hand back a
// streamed response. *http.Client satisfies it, so a single client with a
// cookie jar can be reused across many fetches.
type Session interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProgressFunc is called once per download, before the body is copied.
// Total is the advertised size in bytes, or -1 when it is unknown.
// Every written byte is mirrored to the returned writer; if the writer is
// also an io.Closer it's closed once the copy ends.
type ProgressFunc func(name string, total int64) io.Writer

// Fetcher downloads a URL into a local file exactly once. A destination
// that already exists is never touched, and a destination that doesn't
// exist only appears once its whole content has been written.
type Fetcher struct {
	Session        Session
	Transport      http.RoundTripper
	RequestTimeout time.Duration
	UserAgent      string
	TempSuffix     string
	Progress       ProgressFunc

	EnableLog        bool
	EnableVerboseLog bool

	isValidated bool
	session     Session
	inflight    singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// Validate prepares Fetcher to make sure its configurations
// are valid and ready to use. Must be run at least once before
// the first fetch.
func (f *Fetcher) Validate() {
	if f.TempSuffix == "" {
		f.TempSuffix = defaultTempSuffix
	}

	if f.Transport == nil {
		f.Transport = http.DefaultTransport
	}

	f.session = f.Session
	if isNilSession(f.session) {
		f.session = &http.Client{
			Timeout:   f.RequestTimeout,
			Transport: f.Transport,
		}
	}

	f.isValidated = true
}

// Fetch downloads sourceURL into dstPath using a one-off fetcher. When
// session is nil a fresh client is used for this single call.
func Fetch(ctx context.Context, sourceURL, dstPath string, session Session) (bool, error) {
	f := &Fetcher{Session: session}
	f.Validate()
	return f.Fetch(ctx, sourceURL, dstPath)
}

// Fetch makes sure dstPath holds the content of sourceURL. It returns true
// if a download happened, and false if dstPath already existed, in which
// case no request is made at all.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL, dstPath string) (bool, error) {
	// Make sure fetcher has been validated
	if !f.isValidated {
		return false, ErrNotValidated
	}

	if !isValidURL(sourceURL) {
		return false, errors.Wrapf(ErrInvalidURL, "%q", sourceURL)
	}

	path, err := resolvePath(dstPath)
	if err != nil {
		return false, errors.Wrapf(err, "failed to resolve %s", dstPath)
	}

	for {
		downloaded, err := f.share(ctx, sourceURL, path)
		// The call we joined was abandoned by the callers that started it
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			continue
		}
		return downloaded, err
	}
}

// share runs the download of path, or joins the one already running.
// Only the caller whose function actually ran reports it as its own.
// The download runs under the flight's context, so it goes on as long as
// one caller still waits for it.
func (f *Fetcher) share(ctx context.Context, url, path string) (bool, error) {
	fl := f.join(ctx, path)
	defer f.leave(path, fl)

	executed := false
	ch := f.inflight.DoChan(path, func() (interface{}, error) {
		executed = true
		return f.fetch(fl.ctx, url, path)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return executed && res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// flight is the context shared by every caller waiting on one destination.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (f *Fetcher) join(ctx context.Context, path string) *flight {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.flights == nil {
		f.flights = make(map[string]*flight)
	}

	fl, ok := f.flights[path]
	if !ok {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: flightCtx, cancel: cancel}
		f.flights[path] = fl
	}

	fl.waiters++
	return fl
}

func (f *Fetcher) leave(path string, fl *flight) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fl.waiters--
	if fl.waiters > 0 {
		return
	}

	fl.cancel()
	if f.flights[path] == fl {
		delete(f.flights, path)
	}
}

func (f *Fetcher) fetch(ctx context.Context, url, path string) (bool, error) {
	// Skip files which already downloaded
	exists, err := fileExists(path)
	if err != nil {
		return false, err
	}

	if exists {
		f.logFetch(url, path, true)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, errors.Wrap(err, "failed to create parent directory")
	}

	tmpPath := path + f.TempSuffix

	resp, err := doGet(ctx, f.session, url, f.UserAgent)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, decoded, err := decodeBody(resp)
	if err != nil {
		return false, &ReadError{URL: url, Err: err}
	}

	// Once we decode the body ourselves, Content-Length counts encoded bytes
	total := resp.ContentLength
	if decoded {
		total = -1
	}

	src := &sourceReader{r: body, url: url}
	if err := f.writeFile(tmpPath, src, filepath.Base(path), total); err != nil {
		os.Remove(tmpPath)
		return false, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return false, errors.Wrap(err, "failed to move downloaded file")
	}

	f.logFetch(url, path, false)
	return true, nil
}

func (f *Fetcher) writeFile(path string, r io.Reader, name string, total int64) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "failed to close temporary file")
		}
	}()

	var w io.Writer = file
	if f.Progress != nil {
		if pw := f.Progress(name, total); pw != nil {
			w = io.MultiWriter(file, pw)
			if c, ok := pw.(io.Closer); ok {
				defer c.Close()
			}
		}
	}

	if _, err = io.Copy(w, r); err != nil {
		return errors.Wrap(err, "failed to copy response body")
	}

	if err = file.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync temporary file")
	}

	return nil
}
