package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// FileUpload describes a single-file multipart upload. Either Path or Data supplies the content.
type FileUpload struct {
	FieldName string
	FileName  string
	Path      string
	Data      []byte
	Fields    map[string]string
}

// Upload posts file as multipart/form-data to path and decodes the JSON reply into out.
// A file given by Path is opened per attempt and closed on every exit path.
func (c *Client) Upload(ctx context.Context, target string, file FileUpload, out any) error {
	part := FilePart{FieldName: file.FieldName, FileName: file.FileName, Data: file.Data}
	if file.Path != "" {
		info, err := os.Stat(file.Path)
		if err != nil {
			return newError(KindValidation, 0, fmt.Sprintf("cannot read upload file: %v", err), err)
		}
		if info.IsDir() {
			return newError(KindValidation, 0, fmt.Sprintf("%s is a directory", file.Path), nil)
		}
		if part.FileName == "" {
			part.FileName = filepath.Base(file.Path)
		}
		p := file.Path
		part.Open = func() (io.ReadCloser, error) { return os.Open(p) }
	}
	if part.FileName == "" {
		return newError(KindValidation, 0, "upload needs a file name", nil)
	}

	return c.call(ctx, Call{
		Method:    http.MethodPost,
		Path:      target,
		Multipart: &Multipart{Fields: file.Fields, Files: []FilePart{part}},
	}, out)
}

// DownloadOptions tunes DownloadTo.
type DownloadOptions struct {
	// Progress, when set, is called at the start of every attempt with the
	// expected size (-1 if unknown); the returned writer receives a copy of the bytes.
	Progress func(total int64) io.Writer
	// RateLimit overrides the client's download limit when positive.
	RateLimit int64
	// Timeout overrides the per-attempt timeout; large exports usually need more.
	Timeout time.Duration
}

// Download fetches path and returns the raw bytes.
func (c *Client) Download(ctx context.Context, source string) ([]byte, error) {
	resp, err := c.exec.Do(ctx, Call{Method: http.MethodGet, Path: source, Header: http.Header{headerAccept: {"*/*"}}})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DownloadTo streams path into the file dest. The content lands in a
// temporary file next to dest that is renamed on success and removed on failure.
func (c *Client) DownloadTo(ctx context.Context, source, dest string, opts DownloadOptions) (int64, error) {
	if err := ensureDirExists(filepath.Dir(dest)); err != nil {
		return 0, newError(KindValidation, 0, err.Error(), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tenantctl-download-*")
	if err != nil {
		return 0, newError(KindValidation, 0, fmt.Sprintf("cannot create download file: %v", err), err)
	}
	done := false
	defer func() {
		if !done {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	limiter := c.limiter
	if opts.RateLimit > 0 {
		limiter = NewRateLimiter(opts.RateLimit)
	}

	var written int64
	consume := func(res *http.Response) error {
		if err := tmp.Truncate(0); err != nil {
			return err
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		var w io.Writer = tmp
		if opts.Progress != nil {
			if pw := opts.Progress(res.ContentLength); pw != nil {
				w = io.MultiWriter(tmp, pw)
			}
		}
		n, err := io.Copy(w, limiter.Reader(ctx, res.Body))
		written = n
		return err
	}

	_, err = c.exec.Stream(ctx, Call{
		Method:  http.MethodGet,
		Path:    source,
		Header:  http.Header{headerAccept: {"*/*"}},
		Timeout: opts.Timeout,
	}, consume)
	if err != nil {
		return 0, err
	}

	if err := tmp.Close(); err != nil {
		return 0, newError(KindUnknown, 0, fmt.Sprintf("cannot finish download: %v", err), err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, newError(KindUnknown, 0, fmt.Sprintf("cannot move download into place: %v", err), err)
	}
	done = true
	log.Info().Str("path", source).Str("dest", dest).Int64("bytes", written).Msg("Download finished")
	return written, nil
}

// FileNameFor suggests a local file name for a download, preferring the
// Content-Disposition filename over the last path segment.
func FileNameFor(source, contentDisposition string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil && params["filename"] != "" {
			return SanitizeFileName(params["filename"])
		}
	}
	p, _, _ := strings.Cut(source, "?")
	base := path.Base(strings.TrimRight(p, "/"))
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	return SanitizeFileName(base)
}

// SanitizeFileName strips characters that are awkward in file names.
func SanitizeFileName(name string) string {
	replacements := []struct {
		old string
		new string
	}{
		{"®", ""}, {":", ""}, {" ", "-"}, {"(", ""}, {")", ""}, {"™", ""},
		{"/", "-"}, {"\\", "-"}, {"..", ""},
	}
	name = strings.ToLower(strings.TrimSpace(name))
	for _, r := range replacements {
		name = strings.ReplaceAll(name, r.old, r.new)
	}
	if name == "" {
		return "download"
	}
	return name
}

// ensureDirExists creates path if needed and fails if it exists as a file.
func ensureDirExists(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path %s exists but is not a directory", path)
		}
		return nil
	}
	if os.IsNotExist(err) {
		log.Info().Msgf("Creating directory: %s", path)
		return os.MkdirAll(path, 0o750)
	}
	return err
}
