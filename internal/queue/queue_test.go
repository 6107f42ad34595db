package queue

import (
	"testing"
)

func TestDecodeRequest_Valid(t *testing.T) {
	payload := []byte(`{
		"request-id": "req-1",
		"file-path": "/data/run1.root",
		"file-id": "file-9",
		"service-endpoint": "http://servicex.test/servicex/transformation/req-1",
		"chunk-size": 2000
	}`)

	req, err := decodeRequest(payload)
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	if req.RequestID != "req-1" {
		t.Errorf("request id = %q", req.RequestID)
	}
	if req.FilePath != "/data/run1.root" {
		t.Errorf("file path = %q", req.FilePath)
	}
	if req.ChunkSize != 2000 {
		t.Errorf("chunk size = %d", req.ChunkSize)
	}
}

func TestDecodeRequest_MalformedJSON(t *testing.T) {
	if _, err := decodeRequest([]byte(`{"request-id": `)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecodeRequest_MissingFields(t *testing.T) {
	cases := map[string]string{
		"no request id":       `{"file-path":"/d/f.root","file-id":"f","service-endpoint":"http://x","chunk-size":10}`,
		"no file path":        `{"request-id":"r","file-id":"f","service-endpoint":"http://x","chunk-size":10}`,
		"no file id":          `{"request-id":"r","file-path":"/d/f.root","service-endpoint":"http://x","chunk-size":10}`,
		"no service endpoint": `{"request-id":"r","file-path":"/d/f.root","file-id":"f","chunk-size":10}`,
	}
	for name, payload := range cases {
		if _, err := decodeRequest([]byte(payload)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestDecodeRequest_RejectsNonPositiveChunkSize(t *testing.T) {
	for _, size := range []string{"0", "-5"} {
		payload := []byte(`{"request-id":"r","file-path":"/d/f.root","file-id":"f","service-endpoint":"http://x","chunk-size":` + size + `}`)
		if _, err := decodeRequest(payload); err == nil {
			t.Errorf("chunk-size %s: expected validation error", size)
		}
	}
}
