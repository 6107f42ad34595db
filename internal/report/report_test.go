package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]any
}

func newTestServer(t *testing.T, status int) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var recorded []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		recorded = append(recorded, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			body:   body,
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &recorded
}

func TestPostStatusUpdate(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK)
	c := NewClient(srv.URL)

	err := c.PostStatusUpdate(context.Background(), "file-7", StatusRetry, "Try: 1 error: boom")
	require.NoError(t, err)

	require.Len(t, *recorded, 1)
	got := (*recorded)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/status", got.path)
	assert.Equal(t, "file-7", got.body["file-id"])
	assert.Equal(t, "retry", got.body["status"])
	assert.Equal(t, "Try: 1 error: boom", got.body["info"])
}

func TestPutFileComplete(t *testing.T) {
	srv, recorded := newTestServer(t, http.StatusOK)
	c := NewClient(srv.URL)

	err := c.PutFileComplete(context.Background(), FileCompleteRecord{
		FilePath:  "/data/run1.root",
		FileID:    "file-7",
		Status:    FileSuccess,
		TotalTime: 12.5,
	})
	require.NoError(t, err)

	require.Len(t, *recorded, 1)
	got := (*recorded)[0]
	assert.Equal(t, http.MethodPut, got.method)
	assert.Equal(t, "/file-complete", got.path)
	assert.Equal(t, "/data/run1.root", got.body["file-path"])
	assert.Equal(t, "success", got.body["status"])
	assert.Equal(t, float64(0), got.body["total-events"])
	assert.Equal(t, float64(0), got.body["total-bytes"])
}

func TestSend_Non2xxSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL)

	err := c.PostStatusUpdate(context.Background(), "file-7", StatusStart, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream unavailable")
}
