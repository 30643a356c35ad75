package gwygb

import (
	"io/fs"
	nurl "net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// isValidURL checks if URL is an absolute URL which can be requested.
func isValidURL(s string) bool {
	u, err := nurl.ParseRequestURI(s)
	return err == nil && u.Scheme != "" && u.Hostname() != ""
}

// createAbsoluteURL convert url to absolute path based on base.
// The fragment is dropped.
func createAbsoluteURL(url string, base *nurl.URL) string {
	url = strings.TrimSpace(url)
	if url == "" || base == nil {
		return ""
	}

	tmp, err := nurl.Parse(url)
	if err != nil {
		return url
	}

	tmp.Fragment = ""
	tmp.RawFragment = ""
	return base.ResolveReference(tmp).String()
}

// resolvePath expands a leading "~" and returns the absolute, cleaned path
// with the symlinks of its existing part resolved.
func resolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return evalSymlinks(abs)
}

// evalSymlinks resolves the longest prefix of path that exists on disk and
// appends the missing elements to it as they are.
func evalSymlinks(path string) (string, error) {
	var missing []string
	for current := path; ; {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}

		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return path, nil
		}

		missing = append([]string{filepath.Base(current)}, missing...)
		current = parent
	}
}

// fileExists reports whether anything is present at path.
func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errors.Wrapf(err, "failed to check %s", path)
	}
}
