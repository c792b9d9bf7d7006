package remote

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func encodedResponse(t *testing.T, encoding string, body []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	switch encoding {
	case "gzip":
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			t.Fatalf("gzip write: %v", err)
		}
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip close: %v", err)
		}
	case "zstd":
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		if _, err := enc.Write(body); err != nil {
			t.Fatalf("zstd write: %v", err)
		}
		if err := enc.Close(); err != nil {
			t.Fatalf("zstd close: %v", err)
		}
	default:
		buf.Write(body)
	}
	resp := &http.Response{Header: make(http.Header), Body: io.NopCloser(&buf)}
	if encoding != "" {
		resp.Header.Set("Content-Encoding", encoding)
	}
	return resp
}

func TestResponseBodyDecodes(t *testing.T) {
	want := bytes.Repeat([]byte("0032want ce013625030ba8dba906f756967f9e9ca394464a\n"), 50)
	for _, enc := range []string{"", "identity", "gzip", "zstd"} {
		t.Run("enc="+enc, func(t *testing.T) {
			rc, err := responseBody(encodedResponse(t, enc, want))
			if err != nil {
				t.Fatalf("responseBody: %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("decoded %d bytes, want %d", len(got), len(want))
			}
		})
	}
}

func TestResponseBodyRejectsUnknownEncoding(t *testing.T) {
	resp := encodedResponse(t, "", []byte("x"))
	resp.Header.Set("Content-Encoding", "br")
	if _, err := responseBody(resp); err == nil {
		t.Fatal("responseBody accepted br")
	}
}
