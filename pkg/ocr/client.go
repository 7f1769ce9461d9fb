// Package ocr implements the client for the external transcription service.
//
// The service uses a three-step batch protocol: declare the batch and
// receive one upload URL per file, upload each file, then poll the batch
// until every file reaches a terminal state. Results arrive as per-file ZIP
// archives each containing a single markdown document.
package ocr

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Per-file extraction states reported by the service.
const (
	StateWaitingFile = "waiting-file"
	StatePending     = "pending"
	StateRunning     = "running"
	StateConverting  = "converting"
	StateDone        = "done"
	StateFailed      = "failed"
)

var (
	// ErrBatchFailed indicates at least one file in the batch failed to
	// extract. The batch result is all-or-nothing, so callers discard any
	// partial output.
	ErrBatchFailed = errors.New("ocr batch extraction failed")

	// ErrPollTimeout indicates the batch did not reach a terminal state
	// within the configured polling window.
	ErrPollTimeout = errors.New("ocr batch polling timed out")
)

// Config holds connection settings for the transcription service.
type Config struct {
	BaseURL      string
	APIKey       string
	ModelVersion string
	PollInterval time.Duration
	MaxWait      time.Duration
}

// File is a single source image submitted for extraction.
type File struct {
	Name string
	Data []byte
}

// Batch identifies a submitted extraction batch.
type Batch struct {
	ID    string
	Files []string
}

// FileResult is the terminal outcome for one file in a batch.
type FileResult struct {
	FileName   string `json:"file_name"`
	State      string `json:"state"`
	FullZipURL string `json:"full_zip_url"`
	ErrMsg     string `json:"err_msg"`
}

// Client talks to the transcription service.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a transcription service client. Zero polling settings
// fall back to 5s interval and a 10 minute ceiling.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 10 * time.Minute
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger.Named("ocr"),
	}
}

type batchRequest struct {
	EnableFormula bool            `json:"enable_formula"`
	Language      string          `json:"language"`
	ModelVersion  string          `json:"model_version,omitempty"`
	Files         []batchFileSpec `json:"files"`
}

type batchFileSpec struct {
	Name  string `json:"name"`
	IsOCR bool   `json:"is_ocr"`
}

type batchResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		BatchID  string   `json:"batch_id"`
		FileURLs []string `json:"file_urls"`
	} `json:"data"`
}

type resultsResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		ExtractResult []FileResult `json:"extract_result"`
	} `json:"data"`
}

// Submit declares a batch for the given files and uploads each one to its
// assigned URL. Uploads run in parallel.
func (c *Client) Submit(ctx context.Context, files []File) (Batch, error) {
	if len(files) == 0 {
		return Batch{}, errors.New("no files to submit")
	}

	specs := make([]batchFileSpec, len(files))
	names := make([]string, len(files))
	for i, f := range files {
		specs[i] = batchFileSpec{Name: f.Name, IsOCR: true}
		names[i] = f.Name
	}

	body, err := json.Marshal(batchRequest{
		EnableFormula: true,
		Language:      "en",
		ModelVersion:  c.cfg.ModelVersion,
		Files:         specs,
	})
	if err != nil {
		return Batch{}, fmt.Errorf("marshal batch request: %w", err)
	}

	var decoded batchResponse
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.BaseURL+"/file-urls/batch", body, &decoded); err != nil {
		return Batch{}, fmt.Errorf("declare batch: %w", err)
	}
	if decoded.Code != 0 || decoded.Data.BatchID == "" {
		return Batch{}, fmt.Errorf("declare batch: service error %d: %s", decoded.Code, decoded.Msg)
	}
	if len(decoded.Data.FileURLs) != len(files) {
		return Batch{}, fmt.Errorf("declare batch: got %d upload urls for %d files",
			len(decoded.Data.FileURLs), len(files))
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range files {
		file, uploadURL := files[i], decoded.Data.FileURLs[i]
		g.Go(func() error {
			return c.upload(gctx, uploadURL, file)
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}

	c.logger.Info("submitted ocr batch",
		zap.String("batch_id", decoded.Data.BatchID),
		zap.Int("files", len(files)))
	return Batch{ID: decoded.Data.BatchID, Files: names}, nil
}

func (c *Client) upload(ctx context.Context, uploadURL string, file File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(file.Data))
	if err != nil {
		return fmt.Errorf("build upload request for %s: %w", file.Name, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload %s: unexpected status %d", file.Name, resp.StatusCode)
	}
	return nil
}

// Poll waits for every file in the batch to reach a terminal state. It
// returns ErrPollTimeout when the window elapses first and ErrBatchFailed
// (with per-file detail) when any file failed.
func (c *Client) Poll(ctx context.Context, batchID string) ([]FileResult, error) {
	deadline := time.Now().Add(c.cfg.MaxWait)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		results, settled, err := c.checkBatch(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if settled {
			for _, r := range results {
				if r.State == StateFailed {
					return nil, fmt.Errorf("%w: file %s: %s", ErrBatchFailed, r.FileName, r.ErrMsg)
				}
			}
			return results, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: batch %s after %s", ErrPollTimeout, batchID, c.cfg.MaxWait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) checkBatch(ctx context.Context, batchID string) ([]FileResult, bool, error) {
	var decoded resultsResponse
	url := c.cfg.BaseURL + "/extract-results/batch/" + batchID
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &decoded); err != nil {
		return nil, false, fmt.Errorf("poll batch %s: %w", batchID, err)
	}
	if decoded.Code != 0 {
		return nil, false, fmt.Errorf("poll batch %s: service error %d: %s", batchID, decoded.Code, decoded.Msg)
	}

	results := decoded.Data.ExtractResult
	if len(results) == 0 {
		return nil, false, nil
	}
	for _, r := range results {
		if r.State != StateDone && r.State != StateFailed {
			return results, false, nil
		}
	}
	return results, true, nil
}

// FetchDocument downloads a result archive and returns the markdown document
// inside it. Each archive is expected to contain exactly one .md entry.
func (c *Client) FetchDocument(ctx context.Context, zipURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return "", fmt.Errorf("build archive request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download archive: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read archive: %w", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	for _, entry := range reader.File {
		if !strings.HasSuffix(entry.Name, ".md") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return "", fmt.Errorf("open archive entry %s: %w", entry.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read archive entry %s: %w", entry.Name, err)
		}
		return string(content), nil
	}
	return "", errors.New("archive contains no markdown document")
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
