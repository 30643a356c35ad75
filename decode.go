package gwygb

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/pkg/errors"
)

// decodeBody returns the response body with its Content-Encoding removed.
// The boolean reports whether any decoding was applied here, which means the
// advertised Content-Length no longer describes the bytes we will write.
//
// net/http already strips gzip when it negotiated it itself (resp.Uncompressed),
// so this only matters for servers that compress unasked or for encodings the
// transport doesn't handle.
func decodeBody(resp *http.Response) (io.Reader, bool, error) {
	var body io.Reader = resp.Body
	if resp.Uncompressed {
		return body, false, nil
	}

	encodings := parseContentEncoding(resp.Header.Get("Content-Encoding"))
	if len(encodings) == 0 {
		return body, false, nil
	}

	// Encodings are listed in the order they were applied
	decoded := false
	for i := len(encodings) - 1; i >= 0; i-- {
		switch encodings[i] {
		case "gzip", "x-gzip":
			gz, err := gzip.NewReader(body)
			if err != nil {
				return nil, false, errors.Wrap(err, "failed to open gzip stream")
			}
			body = gz

		case "deflate":
			body = newDeflateReader(body)

		case "br":
			body = brotli.NewReader(body)

		default:
			// Unknown encodings are written out as they are
			continue
		}
		decoded = true
	}

	return body, decoded, nil
}

func parseContentEncoding(header string) []string {
	var encodings []string
	for _, part := range strings.Split(header, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == "identity" {
			continue
		}
		encodings = append(encodings, part)
	}
	return encodings
}

// newDeflateReader handles both zlib-wrapped and raw deflate streams.
func newDeflateReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err == nil && isZlibHeader(header) {
		zr, err := zlib.NewReader(br)
		if err == nil {
			return zr
		}
	}
	return flate.NewReader(br)
}

func isZlibHeader(b []byte) bool {
	cmf, flg := b[0], b[1]
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// sourceReader marks read failures of a response body as transport errors.
type sourceReader struct {
	r   io.Reader
	url string
}

func (sr *sourceReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	if err != nil && err != io.EOF {
		err = &ReadError{URL: sr.url, Err: err}
	}
	return n, err
}
