package http

import (
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Response is what a handler produces. It is serialized exactly as built:
// nothing is added on the way to the socket.
type Response struct {
	Status  int
	Headers []Header
	Body    []byte
}

// NewResponse returns an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{Status: status}
}

// Header returns the first value of the named header (case-insensitive).
func (r *Response) Header(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// SetHeader replaces every header named key with a single value.
func (r *Response) SetHeader(key, value string) *Response {
	kept := r.Headers[:0]
	for _, h := range r.Headers {
		if !strings.EqualFold(h.Key, key) {
			kept = append(kept, h)
		}
	}
	r.Headers = append(kept, Header{Key: key, Value: value})
	return r
}

// AddHeader appends a header line, keeping any existing ones.
func (r *Response) AddHeader(key, value string) *Response {
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
	return r
}

// SetBody replaces the body and sets Content-Type and Content-Length to match.
func (r *Response) SetBody(contentType string, body []byte) *Response {
	r.Body = body
	if contentType != "" {
		r.SetHeader("Content-Type", contentType)
	}
	r.SetHeader("Content-Length", strconv.Itoa(len(body)))
	return r
}

var (
	proto = "HTTP/1.1 "
	crlf  = "\r\n"
	colon = ": "
)

// AppendTo appends the wire form of r to dst: status line, headers, blank
// line, body. Header lines whose key or value could not be sent verbatim,
// such as a value carrying CR or LF, are left out.
func (r *Response) AppendTo(dst []byte) []byte {
	status := r.Status
	if status < 100 || status > 999 {
		status = StatusInternalServerError
	}

	dst = append(dst, proto...)
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	dst = append(dst, StatusText(status)...)
	dst = append(dst, crlf...)

	for _, h := range r.Headers {
		if !httpguts.ValidHeaderFieldName(h.Key) || !httpguts.ValidHeaderFieldValue(h.Value) {
			continue
		}
		dst = append(dst, h.Key...)
		dst = append(dst, colon...)
		dst = append(dst, h.Value...)
		dst = append(dst, crlf...)
	}

	dst = append(dst, crlf...)
	return append(dst, r.Body...)
}

// Bytes returns the wire form of r.
func (r *Response) Bytes() []byte {
	size := len(proto) + 32 + len(r.Body)
	for _, h := range r.Headers {
		size += len(h.Key) + len(h.Value) + 4
	}
	return r.AppendTo(make([]byte, 0, size))
}

// Text builds a text/plain response.
func Text(status int, body string) *Response {
	return NewResponse(status).SetBody("text/plain; charset=utf-8", []byte(body))
}

// HTML builds a text/html response.
func HTML(status int, body string) *Response {
	return NewResponse(status).SetBody("text/html; charset=utf-8", []byte(body))
}

// Data builds a response with an arbitrary content type.
func Data(status int, contentType string, body []byte) *Response {
	return NewResponse(status).SetBody(contentType, body)
}

// Error builds a plain text response whose body is the reason phrase.
func Error(status int) *Response {
	text := StatusText(status)
	if text == "" {
		text = strconv.Itoa(status)
	}
	return Text(status, text+"\n")
}
