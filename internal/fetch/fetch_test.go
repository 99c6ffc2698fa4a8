package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newTestFetcher(t *testing.T, maxBytes int64) *Fetcher {
	t.Helper()
	f, err := NewFetcher(nil, maxBytes, 5*time.Second)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return f
}

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("v"), 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	got, err := newTestFetcher(t, 128).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestFetchDeclaredSizeExceeded(t *testing.T) {
	t.Parallel()

	var bodyRead bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		bodyRead = true
		_, _ = w.Write(bytes.Repeat([]byte("x"), 1000))
	}))
	defer srv.Close()

	got, err := newTestFetcher(t, 100).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrDeclaredSizeExceeded) {
		t.Fatalf("err = %v, want ErrDeclaredSizeExceeded", err)
	}
	if got != nil {
		t.Fatalf("payload = %d bytes, want nil", len(got))
	}
	_ = bodyRead // handler runs, but the fetcher must not buffer the body
}

func TestFetchStreamedSizeExceeded(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked response: no Content-Length, 150 bytes streamed.
		flusher := w.(http.Flusher)
		for i := 0; i < 15; i++ {
			_, _ = w.Write(bytes.Repeat([]byte("y"), 10))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	got, err := newTestFetcher(t, 100).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrStreamedSizeExceeded) {
		t.Fatalf("err = %v, want ErrStreamedSizeExceeded", err)
	}
	if got != nil {
		t.Fatalf("expected no payload after abort, got %d bytes", len(got))
	}
}

func TestFetchExactCapSucceeds(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("z"), 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	got, err := newTestFetcher(t, 100).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch at exact cap: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("payload = %d bytes, want 100", len(got))
	}
}

func TestFetchTransportFailureStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{name: "not found", status: http.StatusNotFound},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "rate limited", status: http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := newTestFetcher(t, 100).Fetch(context.Background(), srv.URL)
			var terr *TransportError
			if !errors.As(err, &terr) {
				t.Fatalf("err = %v, want *TransportError", err)
			}
			if terr.StatusCode != tt.status {
				t.Fatalf("StatusCode = %d, want %d", terr.StatusCode, tt.status)
			}
			if tt.status == http.StatusNotFound && !terr.NotFound() {
				t.Fatalf("NotFound() = false for 404")
			}
		})
	}
}

func TestFetchConnectionFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	_, err := newTestFetcher(t, 100).Fetch(context.Background(), srv.URL)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if terr.StatusCode != 0 {
		t.Fatalf("StatusCode = %d, want 0 for connection failure", terr.StatusCode)
	}
}

func TestFetchContextCancel(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestFetcher(t, 100).Fetch(ctx, srv.URL)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestNewFetcherRejectsBadCap(t *testing.T) {
	t.Parallel()

	for _, cap := range []int64{0, -1} {
		if _, err := NewFetcher(nil, cap, time.Second); err == nil {
			t.Fatalf("NewFetcher(%d) expected error", cap)
		}
	}
}

func ExampleFetcher_Fetch() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, _ := NewFetcher(nil, 1024, time.Second)
	data, _ := f.Fetch(context.Background(), srv.URL)
	fmt.Println(string(data))
	// Output: ok
}
