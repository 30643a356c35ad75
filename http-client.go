package gwygb

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/cookiejar"
	nurl "net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"
)

// SessionOptions configures the client returned by NewSession.
type SessionOptions struct {
	Timeout             time.Duration
	SkipTLSVerification bool
}

// NewSession creates an HTTP client with a cookie jar, meant to be shared
// by every request of one crawl run.
func NewSession(opts SessionOptions) *http.Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.SkipTLSVerification {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		Jar:       jar,
	}
}

// isNilSession reports whether s is unset, including a nil *http.Client
// stored in the interface.
func isNilSession(s Session) bool {
	if s == nil {
		return true
	}
	c, ok := s.(*http.Client)
	return ok && c == nil
}

// doGet sends a GET request and fails on any non-2xx status. The caller owns
// the response body.
func doGet(ctx context.Context, session Session, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidURL, "%q: %v", url, err)
	}

	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := session.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", url)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

// finalURL returns the URL the response was actually served from, after
// redirects. Links on that page are relative to it.
func finalURL(resp *http.Response, requested string) *nurl.URL {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL
	}

	u, _ := nurl.Parse(requested)
	return u
}
