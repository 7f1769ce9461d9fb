package ocr

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubmitUploadsEveryFile(t *testing.T) {
	var mu sync.Mutex
	uploaded := map[string][]byte{}

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("POST /file-urls/batch", func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Files, 2)

		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"batch_id":  "batch-7",
				"file_urls": []string{server.URL + "/up/0", server.URL + "/up/1"},
			},
		})
	})
	mux.HandleFunc("PUT /up/{n}", func(w http.ResponseWriter, r *http.Request) {
		body := new(bytes.Buffer)
		body.ReadFrom(r.Body)
		mu.Lock()
		uploaded[r.PathValue("n")] = body.Bytes()
		mu.Unlock()
	})

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	batch, err := client.Submit(context.Background(), []File{
		{Name: "page1.png", Data: []byte("aaa")},
		{Name: "page2.png", Data: []byte("bbb")},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-7", batch.ID)
	assert.Equal(t, []string{"page1.png", "page2.png"}, batch.Files)
	assert.Equal(t, []byte("aaa"), uploaded["0"])
	assert.Equal(t, []byte("bbb"), uploaded["1"])
}

func TestSubmitRejectsURLCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{"batch_id": "b", "file_urls": []string{"only-one"}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	_, err := client.Submit(context.Background(), []File{
		{Name: "a.png", Data: []byte("x")},
		{Name: "b.png", Data: []byte("y")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload urls")
}

func TestPollWaitsForTerminalStates(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		state := StateRunning
		if calls >= 3 {
			state = StateDone
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"extract_result": []map[string]any{
					{"file_name": "p.png", "state": state, "full_zip_url": "http://x/r.zip"},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:      server.URL,
		PollInterval: 5 * time.Millisecond,
		MaxWait:      time.Second,
	}, zap.NewNop())

	results, err := client.Poll(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateDone, results[0].State)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestPollFailsWhenAnyFileFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"extract_result": []map[string]any{
					{"file_name": "p1.png", "state": StateDone, "full_zip_url": "http://x/1.zip"},
					{"file_name": "p2.png", "state": StateDone, "full_zip_url": "http://x/2.zip"},
					{"file_name": "p3.png", "state": StateFailed, "err_msg": "unreadable scan"},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:      server.URL,
		PollInterval: 5 * time.Millisecond,
		MaxWait:      time.Second,
	}, zap.NewNop())

	_, err := client.Poll(context.Background(), "batch-2")
	require.ErrorIs(t, err, ErrBatchFailed)
	assert.Contains(t, err.Error(), "p3.png")
	assert.Contains(t, err.Error(), "unreadable scan")
}

func TestPollTimesOutDistinctly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": map[string]any{
				"extract_result": []map[string]any{
					{"file_name": "p.png", "state": StateConverting},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:      server.URL,
		PollInterval: 5 * time.Millisecond,
		MaxWait:      20 * time.Millisecond,
	}, zap.NewNop())

	_, err := client.Poll(context.Background(), "batch-3")
	require.ErrorIs(t, err, ErrPollTimeout)
	assert.False(t, errors.Is(err, ErrBatchFailed))
}

func TestFetchDocumentExtractsMarkdown(t *testing.T) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	meta, err := zw.Create("layout.json")
	require.NoError(t, err)
	meta.Write([]byte("{}"))
	doc, err := zw.Create("full.md")
	require.NoError(t, err)
	doc.Write([]byte("# Question\n\nSolve $x^2 = 4$."))
	require.NoError(t, zw.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	content, err := client.FetchDocument(context.Background(), server.URL+"/r.zip")
	require.NoError(t, err)
	assert.Equal(t, "# Question\n\nSolve $x^2 = 4$.", content)
}

func TestFetchDocumentRequiresMarkdownEntry(t *testing.T) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	meta, err := zw.Create("layout.json")
	require.NoError(t, err)
	meta.Write([]byte("{}"))
	require.NoError(t, zw.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL}, zap.NewNop())
	_, err = client.FetchDocument(context.Background(), server.URL+"/r.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no markdown")
}
