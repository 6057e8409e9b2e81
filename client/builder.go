package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerCacheControl  = "Cache-Control"
	headerAccept        = "Accept"
	headerRequestID     = "X-Request-ID"
	headerTenantID      = "X-Tenant-ID"

	contentTypeJSON = "application/json"
	noCache         = "no-cache, no-store, must-revalidate"
)

// ErrInvalidPath is returned by Build for paths that cannot address a resource.
var ErrInvalidPath = errors.New("invalid request path")

// AccessTokenSource exposes the current access token; auth.TokenStore satisfies it.
type AccessTokenSource interface {
	AccessToken() (string, bool)
}

// Call is one logical API request as written by feature code.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	// JSON is marshaled as the request body when non-nil.
	JSON any
	// Multipart takes precedence over JSON.
	Multipart *Multipart
	Header    http.Header
	// Timeout, Retries and RetryDelay override the client defaults when positive.
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	// Anonymous calls never carry an Authorization header.
	Anonymous bool
}

// Multipart is a form-data payload. It is encoded per attempt so that retries
// send the complete body again.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is one file of a multipart payload. Open is called once per attempt
// and the returned reader is always closed; Data is used when Open is nil.
type FilePart struct {
	FieldName string
	FileName  string
	Data      []byte
	Open      func() (io.ReadCloser, error)
}

// RequestDescriptor is a wire-ready request for one attempt.
type RequestDescriptor struct {
	Method     string
	URL        string
	Path       string
	Header     http.Header
	Body       []byte
	Multipart  *Multipart
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	RequestID  string
}

// WithBearer returns a copy of d carrying token as its bearer credential.
func (d *RequestDescriptor) WithBearer(token string) *RequestDescriptor {
	next := *d
	next.Header = d.Header.Clone()
	next.Header.Set(headerAuthorization, "Bearer "+token)
	return &next
}

// Bearer returns the access token the descriptor authenticates with.
func (d *RequestDescriptor) Bearer() string {
	return strings.TrimPrefix(d.Header.Get(headerAuthorization), "Bearer ")
}

// newHTTPRequest encodes the descriptor into a request bound to ctx. A
// multipart body is streamed through a pipe. Its files are opened up front, so
// a file that has gone missing fails the attempt before anything is sent, and
// they are closed when the writer finishes or the transport stops reading.
func (d *RequestDescriptor) newHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}

	var contentType string
	var pr *io.PipeReader
	if d.Multipart != nil {
		files, err := d.Multipart.open()
		if err != nil {
			return nil, err
		}
		var pw *io.PipeWriter
		pr, pw = io.Pipe()
		mw := multipart.NewWriter(pw)
		contentType = mw.FormDataContentType()
		go func() {
			defer closeAll(files)
			pw.CloseWithError(d.Multipart.encode(mw, files))
		}()
		body = pr
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, body)
	if err != nil {
		if pr != nil {
			_ = pr.Close()
		}
		return nil, err
	}
	req.Header = d.Header.Clone()
	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}
	return req, nil
}

// open returns one reader per file part, nil for parts backed by Data.
func (m *Multipart) open() ([]io.ReadCloser, error) {
	files := make([]io.ReadCloser, len(m.Files))
	for i, part := range m.Files {
		if part.Open == nil {
			continue
		}
		rc, err := part.Open()
		if err != nil {
			closeAll(files)
			return nil, fmt.Errorf("failed to open upload %q: %w", part.FileName, err)
		}
		files[i] = rc
	}
	return files, nil
}

func (m *Multipart) encode(mw *multipart.Writer, files []io.ReadCloser) error {
	for name, value := range m.Fields {
		if err := mw.WriteField(name, value); err != nil {
			return err
		}
	}
	for i, part := range m.Files {
		if err := part.write(mw, files[i]); err != nil {
			return err
		}
	}
	return mw.Close()
}

func (p FilePart) write(mw *multipart.Writer, r io.Reader) error {
	field := p.FieldName
	if field == "" {
		field = "file"
	}
	w, err := mw.CreateFormFile(field, p.FileName)
	if err != nil {
		return err
	}
	if r == nil {
		_, err = w.Write(p.Data)
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

func closeAll(files []io.ReadCloser) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// BuilderOptions carries the defaults applied to every descriptor.
type BuilderOptions struct {
	TenantID   string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

// RequestBuilder assembles descriptors. It performs no I/O.
type RequestBuilder struct {
	baseURL string
	tokens  AccessTokenSource
	opts    BuilderOptions
	newID   func() string
}

// NewRequestBuilder validates baseURL and returns a builder bound to tokens.
func NewRequestBuilder(baseURL string, tokens AccessTokenSource, opts BuilderOptions) (*RequestBuilder, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute, got %q", baseURL)
	}
	return &RequestBuilder{
		baseURL: strings.TrimRight(u.String(), "/"),
		tokens:  tokens,
		opts:    opts,
		newID:   uuid.NewString,
	}, nil
}

// Build turns a call into a descriptor.
func (b *RequestBuilder) Build(call Call) (*RequestDescriptor, error) {
	method := strings.ToUpper(strings.TrimSpace(call.Method))
	if method == "" {
		method = http.MethodGet
	}

	path, query, err := normalizePath(call.Path)
	if err != nil {
		return nil, err
	}
	for k, vs := range call.Query {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	fullURL := b.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	d := &RequestDescriptor{
		Method:     method,
		URL:        fullURL,
		Path:       path,
		Header:     make(http.Header),
		Timeout:    pick(call.Timeout, b.opts.Timeout),
		Retries:    call.Retries,
		RetryDelay: pick(call.RetryDelay, b.opts.RetryDelay),
		RequestID:  b.newID(),
	}
	if d.Retries <= 0 {
		d.Retries = b.opts.Retries
	}

	d.Header.Set(headerAccept, contentTypeJSON)
	d.Header.Set(headerCacheControl, noCache)
	d.Header.Set(headerRequestID, d.RequestID)
	if b.opts.TenantID != "" {
		d.Header.Set(headerTenantID, b.opts.TenantID)
	}

	switch {
	case call.Multipart != nil:
		// The transport sets multipart/form-data with its boundary.
		d.Multipart = call.Multipart
	case call.JSON != nil:
		raw, err := json.Marshal(call.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		d.Body = raw
		d.Header.Set(headerContentType, contentTypeJSON)
	default:
		d.Header.Set(headerContentType, contentTypeJSON)
	}

	if !call.Anonymous && b.tokens != nil {
		if token, ok := b.tokens.AccessToken(); ok && token != "" {
			d.Header.Set(headerAuthorization, "Bearer "+token)
		}
	}

	for k, vs := range call.Header {
		if d.Multipart != nil && strings.EqualFold(k, headerContentType) {
			continue
		}
		d.Header.Del(k)
		for _, v := range vs {
			d.Header.Add(k, v)
		}
	}
	return d, nil
}

// normalizePath returns a path starting with a single "/", with empty segments
// collapsed, plus any query string that was embedded in it.
func normalizePath(raw string) (string, url.Values, error) {
	raw = strings.TrimSpace(raw)
	rawPath, rawQuery, _ := strings.Cut(raw, "?")

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("%w: bad query %q: %v", ErrInvalidPath, rawQuery, err)
	}

	segments := strings.Split(rawPath, "/")
	kept := segments[:0]
	for _, s := range segments {
		switch s {
		case "":
			continue
		case "undefined", "null":
			return "", nil, fmt.Errorf("%w: %q contains a %q segment", ErrInvalidPath, raw, s)
		}
		kept = append(kept, s)
	}

	path := "/" + strings.Join(kept, "/")
	if len(kept) > 0 && strings.HasSuffix(rawPath, "/") {
		path += "/"
	}
	return path, query, nil
}

func pick(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
