package llm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// maxLineBytes bounds a single stream line; Ollama's final chunk with
// context arrays can exceed bufio's 64 KiB default.
const maxLineBytes = 1 << 20

// streamLineScanner reads payload lines from either an NDJSON body or a
// server-sent event body.
type streamLineScanner struct {
	scanner *bufio.Scanner
	data    string

	// keepAlive, when set, is called for every line that is skipped.
	keepAlive func()
}

func newStreamLineScanner(r io.Reader) *streamLineScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &streamLineScanner{scanner: sc}
}

// Scan advances to the next line that carries a payload. Blank lines,
// ":" keep-alives and SSE "event:"/"id:"/"retry:" fields are skipped.
func (s *streamLineScanner) Scan() bool {
	for s.scanner.Scan() {
		if line, ok := payload(s.scanner.Text()); ok {
			s.data = line
			return true
		}
		if s.keepAlive != nil {
			s.keepAlive()
		}
	}
	return false
}

func payload(raw string) (string, bool) {
	line := strings.TrimSpace(raw)
	switch {
	case line == "", strings.HasPrefix(line, ":"):
		return "", false
	case strings.HasPrefix(line, "event:"), strings.HasPrefix(line, "id:"), strings.HasPrefix(line, "retry:"):
		return "", false
	case strings.HasPrefix(line, "data:"):
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		return line, line != ""
	}
	return line, true
}

// heartbeats returns a keepAlive func that forwards skipped lines to ch as
// EventHeartbeat.
func heartbeats(ctx context.Context, ch chan<- StreamEvent) func() {
	return func() { emit(ctx, ch, StreamEvent{Type: EventHeartbeat}) }
}

// Data returns the payload of the last scanned line.
func (s *streamLineScanner) Data() string { return s.data }

// Err returns the read error that stopped scanning, or nil at clean EOF.
func (s *streamLineScanner) Err() error { return s.scanner.Err() }

// newHTTPClient builds a client whose timeout covers connection setup and
// response headers only; the body is a long-lived stream.
func newHTTPClient(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = 120 * time.Second
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
			ResponseHeaderTimeout: headerTimeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// openStream issues the request and checks the status. Every failure here
// happens before a byte of the stream is read and wraps ErrBackendUnavailable.
func openStream(ctx context.Context, client *http.Client, provider string, httpReq *http.Request) (io.ReadCloser, error) {
	resp, err := client.Do(httpReq.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %s request failed: %v", ErrBackendUnavailable, provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{
			Provider: provider,
			Code:     resp.StatusCode,
			Message:  strings.TrimSpace(string(body)),
		}
	}
	return resp.Body, nil
}

// interrupted builds the terminal error for a stream that ended without
// its success marker.
func interrupted(provider string, err error) error {
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %s stream ended without completion: %v", ErrStreamInterrupted, provider, err)
}
