package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/api/response"
)

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit.
// Pass nil when metrics are disabled.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody returns a middleware that limits request body size to maxBytes and answers 413 when
// the limit is exceeded. A declared Content-Length over the limit is rejected before the handler
// runs. Otherwise the handler's response to a POST, PUT or PATCH is buffered so it can be replaced
// by the 413 when the handler hit the limit while reading. Use 0 or negative to disable.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				rejectTooLarge(w, r, recorder)
				return
			}

			body := &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = body

			if !mayHaveBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			buf := &responseBuffer{ResponseWriter: w}
			next.ServeHTTP(buf, r)

			if body.exceeded {
				rejectTooLarge(w, r, recorder)
				return
			}

			buf.flush()
		})
	}
}

func rejectTooLarge(w http.ResponseWriter, r *http.Request, recorder RequestBodyTooLargeRecorder) {
	if recorder != nil {
		recorder.RecordRequestBodyTooLarge(r.Context())
	}

	response.RespondError(w, http.StatusRequestEntityTooLarge,
		"Request Entity Too Large", "request body exceeds maximum allowed size")
}

func mayHaveBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// limitedBody notes whether the MaxBytesReader it wraps refused to read past the limit.
type limitedBody struct {
	io.ReadCloser

	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}

	return n, err //nolint:wrapcheck // io.Reader contract: io.EOF must pass through unwrapped
}

// responseBuffer captures status, headers and body so they can be discarded in favor of a 413.
type responseBuffer struct {
	http.ResponseWriter

	status int
	header http.Header
	buf    bytes.Buffer
}

func (b *responseBuffer) Header() http.Header {
	if b.header == nil {
		b.header = make(http.Header)
	}

	return b.header
}

func (b *responseBuffer) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *responseBuffer) Write(p []byte) (int, error) {
	return b.buf.Write(p) //nolint:wrapcheck // bytes.Buffer never fails
}

func (b *responseBuffer) flush() {
	dst := b.ResponseWriter.Header()
	for k, v := range b.header {
		dst[k] = v
	}

	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.buf.WriteTo(b.ResponseWriter)
}
