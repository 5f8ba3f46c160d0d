package http

import (
	"strings"

	"github.com/searchktools/canteen/core/codec"
)

// Handler produces the response for a request. Handlers run on the reactor
// goroutine; a slow handler stalls every connection.
type Handler interface {
	Handle(req *Request) *Response
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(req *Request) *Response

// Handle calls f(req).
func (f HandlerFunc) Handle(req *Request) *Response {
	return f(req)
}

// NotFoundHandler is the default handler: every request gets a 404.
var NotFoundHandler Handler = HandlerFunc(func(*Request) *Response {
	return Error(StatusNotFound)
})

// MethodNotAllowed returns a 405 response listing the allowed methods.
func MethodNotAllowed(allowed []string) *Response {
	return Error(StatusMethodNotAllowed).SetHeader("Allow", strings.Join(allowed, ", "))
}

// Encode serializes v with the codec negotiated from the request's Accept
// header. An encoding failure yields a 500 response.
func Encode(req *Request, status int, v any) *Response {
	c := codec.Negotiate(req.Header("Accept"))
	body, err := c.Marshal(v)
	if err != nil {
		return Error(StatusInternalServerError)
	}
	return Data(status, c.ContentType(), body)
}

// JSON serializes v as JSON regardless of the Accept header.
func JSON(status int, v any) *Response {
	body, err := codec.JSON.Marshal(v)
	if err != nil {
		return Error(StatusInternalServerError)
	}
	return Data(status, codec.JSON.ContentType(), body)
}
