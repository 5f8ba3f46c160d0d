// Package middleware provides handler decorators composed into a Pipeline.
package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/searchktools/canteen/core/http"
)

// Middleware wraps a handler.
type Middleware func(next http.Handler) http.Handler

// Pipeline is an ordered list of middleware. The first one added is the
// outermost.
type Pipeline struct {
	middleware []Middleware
}

// NewPipeline creates a pipeline from mw.
func NewPipeline(mw ...Middleware) *Pipeline {
	p := &Pipeline{}
	return p.Use(mw...)
}

// Use appends middleware to the pipeline.
func (p *Pipeline) Use(mw ...Middleware) *Pipeline {
	for _, m := range mw {
		if m != nil {
			p.middleware = append(p.middleware, m)
		}
	}
	return p
}

// Len returns the number of middleware in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.middleware)
}

// Then wraps final with every middleware of the pipeline.
func (p *Pipeline) Then(final http.Handler) http.Handler {
	h := final
	for i := len(p.middleware) - 1; i >= 0; i-- {
		h = p.middleware[i](h)
	}
	return h
}

// Recovery turns a handler panic into a 500 response. A nil response is
// treated the same way.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) (resp *http.Response) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panic",
						"method", req.Method,
						"path", req.Path,
						"panic", fmt.Sprint(v),
						"stack", string(debug.Stack()))
					resp = http.Error(http.StatusInternalServerError)
				}
			}()

			resp = next.Handle(req)
			if resp == nil {
				logger.Error("handler returned no response", "method", req.Method, "path", req.Path)
				resp = http.Error(http.StatusInternalServerError)
			}
			return resp
		})
	}
}

// Logger writes one access log line per request.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) *http.Response {
			start := time.Now()
			resp := next.Handle(req)

			status := 0
			size := 0
			if resp != nil {
				status = resp.Status
				size = len(resp.Body)
			}
			logger.Info("request",
				"method", req.Method,
				"path", req.Path,
				"status", status,
				"bytes", size,
				"remote", req.RemoteAddr,
				"duration", time.Since(start))
			return resp
		})
	}
}

// RequestIDHeader carries the request id.
const RequestIDHeader = "X-Request-Id"

// RequestID echoes the client's X-Request-Id, or a fresh UUID when absent,
// on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) *http.Response {
			id := req.Header(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
				req.Headers = append(req.Headers, http.Header{Key: RequestIDHeader, Value: id})
			}
			resp := next.Handle(req)
			if resp != nil {
				resp.SetHeader(RequestIDHeader, id)
			}
			return resp
		})
	}
}

// CORS adds permissive CORS headers for origin and answers preflight
// requests itself.
func CORS(origin string) Middleware {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(req *http.Request) *http.Response {
			var resp *http.Response
			if req.Method == "OPTIONS" {
				resp = http.NewResponse(http.StatusNoContent)
			} else if resp = next.Handle(req); resp == nil {
				return nil
			}
			resp.SetHeader("Access-Control-Allow-Origin", origin)
			resp.SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			resp.SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization")
			return resp
		})
	}
}
