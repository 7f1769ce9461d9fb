// Package storage abstracts where source images and extraction artifacts
// live. The engine only ever needs two operations, fetch by locator and
// store with a returned locator, so the interface stays that small.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ObjectStore fetches and stores opaque binary objects by locator (a URL or
// provider-specific key).
type ObjectStore interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
	Store(ctx context.Context, data []byte, contentType string) (string, error)
}

// httpStore reads objects over plain HTTP GET and writes them with PUT to a
// base upload URL. Suitable for pre-signed URL schemes where the locator is
// the full URL.
type httpStore struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewHTTPStore creates an ObjectStore backed by plain HTTP. baseURL is where
// Store PUTs new objects; Fetch treats the locator as a full URL.
func NewHTTPStore(baseURL string, logger *zap.Logger) ObjectStore {
	return &httpStore{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: baseURL,
		logger:  logger.Named("storage"),
	}
}

var _ ObjectStore = (*httpStore)(nil)

func (s *httpStore) Fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch object: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body: %w", err)
	}

	s.logger.Debug("fetched object", zap.String("locator", locator), zap.Int("bytes", len(data)))
	return data, nil
}

func (s *httpStore) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build store request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("store object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("store object: unexpected status %d", resp.StatusCode)
	}

	locator := resp.Header.Get("Location")
	if locator == "" {
		locator = s.baseURL
	}
	return locator, nil
}
