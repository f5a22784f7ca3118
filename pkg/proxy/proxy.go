// Package proxy forwards requests to the upstream Anthropic API over a
// single pooled HTTP client, passing Server-Sent Event streams through
// chunk-by-chunk.
package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

var hopByHopRequestHeaders = map[string]bool{
	"host":           true,
	"content-length": true,
}

var hopByHopResponseHeaders = map[string]bool{
	"content-encoding":  true,
	"content-length":    true,
	"transfer-encoding": true,
}

// Engine forwards requests to a fixed upstream base URL.
type Engine struct {
	UpstreamURL string
	Client      *http.Client
}

// NewEngine builds an Engine with connect/total timeouts matching the
// original proxy: ~10s to establish a connection, ~300s for the whole
// request including any streamed body.
func NewEngine(upstreamURL string) *Engine {
	return &Engine{
		UpstreamURL: upstreamURL,
		Client: &http.Client{
			Timeout: 300 * time.Second,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Forward issues method+path+query to the upstream with the given headers
// and body, returning the raw upstream response. The caller is responsible
// for closing resp.Body.
func (e *Engine) Forward(ctx context.Context, method, path, query string, headers http.Header, body io.Reader) (*http.Response, error) {
	url := e.UpstreamURL + path
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header = FilterRequestHeaders(headers)
	return e.Client.Do(req)
}

// FilterRequestHeaders strips hop-by-hop headers before forwarding.
func FilterRequestHeaders(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for k, v := range headers {
		if hopByHopRequestHeaders[strings.ToLower(k)] {
			continue
		}
		out[k] = v
	}
	return out
}

// FilterResponseHeaders strips headers that would otherwise conflict with
// Go's own response-writing (content-length recomputed, chunked transfer
// handled by net/http, content-encoding invalid once re-chunked).
func FilterResponseHeaders(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for k, v := range headers {
		if hopByHopResponseHeaders[strings.ToLower(k)] {
			continue
		}
		out[k] = v
	}
	return out
}

// StreamSSE copies the upstream body to w chunk-by-chunk, flushing after
// each write so the client sees each event as it arrives. onChunk is
// invoked with every raw chunk so the caller can accumulate it for
// post-stream processing (e.g. a pattern's Response hook).
func StreamSSE(w http.ResponseWriter, upstream io.Reader, onChunk func([]byte)) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_, err := io.Copy(w, upstream)
		return err
	}

	buf := make([]byte, 4096)
	for {
		n, err := upstream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if _, werr := w.Write(chunk); werr != nil {
				return werr
			}
			flusher.Flush()
			if onChunk != nil {
				onChunk(chunk)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
