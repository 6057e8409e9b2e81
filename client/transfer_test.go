package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uploadHandler fails the first failures attempts with 503 and records
// every file body it receives.
func uploadHandler(t *testing.T, failures int32, got *[]string, fields map[string]string) http.Handler {
	var calls atomic.Int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		_ = f.Close()
		*got = append(*got, hdr.Filename+"="+string(data))
		for k := range r.MultipartForm.Value {
			fields[k] = r.FormValue(k)
		}
		if calls.Add(1) <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": "f-1"})
	})
}

func TestUpload_FromPathIsReopenedOnRetry(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n1,2\n"), 0o600))

	var got []string
	fields := map[string]string{}
	c, _ := newTestClient(t, uploadHandler(t, 1, &got, fields), "A1", "R1")

	var out map[string]string
	err := c.Upload(context.Background(), "/files", FileUpload{Path: src, Fields: map[string]string{"folder": "reports"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "f-1", out["id"])
	assert.Equal(t, []string{"report.csv=a,b\n1,2\n", "report.csv=a,b\n1,2\n"}, got, "each attempt sends the full file")
	assert.Equal(t, "reports", fields["folder"])
}

func TestUpload_FileRemovedBeforeRetryIsNotRetried(t *testing.T) {
	src := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n"), 0o600))

	var got []string
	inner := uploadHandler(t, 5, &got, map[string]string{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = os.Remove(src)
		inner.ServeHTTP(w, r)
	})
	c, _ := newTestClient(t, handler, "A1", "R1")

	err := c.Upload(context.Background(), "/files", FileUpload{Path: src}, nil)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, []string{"report.csv=a,b\n"}, got, "no attempt after the file went missing")
}

func TestUpload_FromData(t *testing.T) {
	var got []string
	c, _ := newTestClient(t, uploadHandler(t, 0, &got, map[string]string{}), "A1", "R1")

	err := c.Upload(context.Background(), "/files", FileUpload{FileName: "note.txt", Data: []byte("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"note.txt=hi"}, got)
}

func TestUpload_Validation(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	c, _ := newTestClient(t, handler, "A1", "R1")
	ctx := context.Background()

	err := c.Upload(ctx, "/files", FileUpload{Path: filepath.Join(t.TempDir(), "missing.bin")}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	err = c.Upload(ctx, "/files", FileUpload{Path: t.TempDir()}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	err = c.Upload(ctx, "/files", FileUpload{Data: []byte("x")}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDownload_Bytes(t *testing.T) {
	var accept string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		_, _ = w.Write([]byte("binary-content"))
	})
	c, _ := newTestClient(t, handler, "A1", "R1")

	data, err := c.Download(context.Background(), "/exports/1")
	require.NoError(t, err)
	assert.Equal(t, "binary-content", string(data))
	assert.Equal(t, "*/*", accept)
}

func TestDownloadTo_WritesFileAfterRetry(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 100)
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	})
	c, _ := newTestClient(t, handler, "A1", "R1")

	dest := filepath.Join(t.TempDir(), "nested", "export.bin")
	var progress bytes.Buffer
	var sizes []int64
	n, err := c.DownloadTo(context.Background(), "/exports/1", dest, DownloadOptions{
		Progress: func(total int64) io.Writer {
			sizes = append(sizes, total)
			progress.Reset()
			return &progress
		},
	})
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), n)
	assert.Equal(t, []int64{int64(len(payload))}, sizes)
	assert.Equal(t, len(payload), progress.Len())

	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, written)

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary file left behind")
}

func TestDownloadTo_FailureLeavesNothing(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "no such export"})
	})
	c, _ := newTestClient(t, handler, "A1", "R1")

	dir := t.TempDir()
	dest := filepath.Join(dir, "export.bin")
	_, err := c.DownloadTo(context.Background(), "/exports/404", dest, DownloadOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadTo_DestinationParentIsFile(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	c, _ := newTestClient(t, handler, "A1", "R1")

	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o600))
	_, err := c.DownloadTo(context.Background(), "/exports/1", filepath.Join(parent, "out.bin"), DownloadOptions{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFileNameFor(t *testing.T) {
	tests := []struct {
		source      string
		disposition string
		want        string
	}{
		{"/exports/Report 2026.csv", "", "report-2026.csv"},
		{"/exports/1?format=csv", "", "1"},
		{"/exports/1", `attachment; filename="Users (Q1).csv"`, "users-q1.csv"},
		{"/exports/1", "attachment", "1"},
		{"/", "", "download"},
		{"", "", "download"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileNameFor(tt.source, tt.disposition), tt.source)
	}
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "acme-corp-export.json", SanitizeFileName("  Acme® Corp™ Export.json "))
	assert.Equal(t, "-etc-passwd", SanitizeFileName("../etc/passwd"))
	assert.Equal(t, "a-b", SanitizeFileName(`a\b`))
	assert.Equal(t, "download", SanitizeFileName("  "))
}
