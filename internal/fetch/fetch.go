// Package fetch downloads remote payloads into memory under a hard size
// ceiling. The ceiling is enforced twice: against the declared
// Content-Length before any body bytes are read, and against a running
// counter while streaming, so an undeclared or lying source can never
// hand back more than the cap.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const fetchChunkSize = 16 * 1024

var (
	// ErrDeclaredSizeExceeded indicates the source announced a payload
	// larger than the cap; no body bytes were transferred.
	ErrDeclaredSizeExceeded = errors.New("declared payload size exceeds limit")
	// ErrStreamedSizeExceeded indicates the streamed body crossed the cap;
	// buffered bytes are discarded and no payload is returned.
	ErrStreamedSizeExceeded = errors.New("streamed payload size exceeds limit")
)

// TransportError reports a network-level or non-success HTTP failure.
// StatusCode is zero when no response was received.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport failure: status %d", e.StatusCode)
	}
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFound reports whether the failure was an HTTP 404.
func (e *TransportError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Fetcher retrieves byte payloads with a fixed size ceiling per fetch.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher capped at maxBytes per download. A
// non-positive timeout falls back to 30 seconds.
func NewFetcher(log *slog.Logger, maxBytes int64, timeout time.Duration) (*Fetcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0, got %d", maxBytes)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		logger:   log.With(slog.String("component", "fetcher")),
	}, nil
}

// MaxBytes returns the configured size ceiling.
func (f *Fetcher) MaxBytes() int64 {
	return f.maxBytes
}

// Fetch downloads url into memory. On success it returns the complete
// payload; every failure path returns a nil payload.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("build request: %w", err)}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if resp.ContentLength > f.maxBytes {
		f.logger.Warn("declared size over limit",
			slog.Int64("declared", resp.ContentLength),
			slog.Int64("max", f.maxBytes))
		return nil, fmt.Errorf("%w: declared %d, max %d bytes", ErrDeclaredSizeExceeded, resp.ContentLength, f.maxBytes)
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	chunk := make([]byte, fetchChunkSize)
	var downloaded int64
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			downloaded += int64(n)
			if downloaded > f.maxBytes {
				f.logger.Warn("streamed size over limit",
					slog.Int64("downloaded", downloaded),
					slog.Int64("max", f.maxBytes))
				return nil, fmt.Errorf("%w: max %d bytes", ErrStreamedSizeExceeded, f.maxBytes)
			}
			buf.Write(chunk[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, &TransportError{Err: readErr}
		}
	}

	f.logger.Debug("fetch complete", slog.Int64("bytes", downloaded))
	return buf.Bytes(), nil
}
