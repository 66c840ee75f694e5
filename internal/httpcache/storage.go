// Package httpcache is the worker-resident HTTP cache: named response stores plus a
// stale-while-revalidate http.RoundTripper that sits under the weather client.
package httpcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Store names owned by this version of the app. Activation deletes every other store.
const (
	StaticStoreName  = "static-v1"
	RuntimeStoreName = "runtime-v1"
)

// Entry is a stored response.
type Entry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// Response builds a fresh *http.Response for req from the entry. Each call gets its own body reader.
func (e *Entry) Response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func (e *Entry) ok() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}

func (e *Entry) clone() *Entry {
	return &Entry{
		StatusCode: e.StatusCode,
		Header:     e.Header.Clone(),
		Body:       append([]byte(nil), e.Body...),
		StoredAt:   e.StoredAt,
	}
}

// readEntry drains and closes resp.Body.
func readEntry(resp *http.Response, now time.Time) (*Entry, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   now,
	}, nil
}

// Store is one named response store. Put overwrites atomically per key.
type Store interface {
	Match(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, key string, e *Entry) error
}

// Storage is the set of named stores.
type Storage interface {
	// Open returns the named store, creating it if needed.
	Open(ctx context.Context, name string) (Store, error)
	Keys(ctx context.Context) ([]string, error)
	// Delete removes a store and its entries. Reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
}

// varyHeaders are the request headers that change the stored representation.
var varyHeaders = []string{"Accept", "Accept-Language"}

// RequestKey identifies a request for cache lookups: method, full URL, then any vary headers present.
func RequestKey(req *http.Request) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte(' ')
	b.WriteString(req.URL.String())
	for _, h := range varyHeaders {
		if v := req.Header.Get(h); v != "" {
			b.WriteByte('\n')
			b.WriteString(h)
			b.WriteString(": ")
			b.WriteString(v)
		}
	}
	return b.String()
}
