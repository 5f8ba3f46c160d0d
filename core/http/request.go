package http

import (
	"net/url"
	"strconv"
	"strings"
)

// Header is one header line. Requests keep headers in arrival order and
// may carry the same name more than once.
type Header struct {
	Key   string
	Value string
}

// Request is a decoded HTTP request.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Proto    string

	Headers []Header
	Query   url.Values
	Body    []byte

	// Params holds the path parameters captured by the matching route.
	Params Params

	// RemoteAddr is the peer address, empty when unknown.
	RemoteAddr string
}

// Header returns the first value of the named header (case-insensitive).
func (r *Request) Header(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

// Values returns every value of the named header in arrival order.
func (r *Request) Values(key string) []string {
	var vals []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			vals = append(vals, h.Value)
		}
	}
	return vals
}

// QueryValue returns the first value of the query parameter key.
func (r *Request) QueryValue(key string) string {
	if r.Query == nil {
		return ""
	}
	return r.Query.Get(key)
}

// Param returns a path parameter formatted as a string.
func (r *Request) Param(name string) string {
	return r.Params.String(name)
}

// Params holds path parameters, already converted to the type declared in
// the route pattern: int64, uint64, float64 or string.
type Params map[string]any

// String returns the parameter formatted as a string, "" when absent.
func (p Params) String(name string) string {
	switch v := p[name].(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// Int returns an int parameter.
func (p Params) Int(name string) (int64, bool) {
	v, ok := p[name].(int64)
	return v, ok
}

// Uint returns a uint parameter.
func (p Params) Uint(name string) (uint64, bool) {
	v, ok := p[name].(uint64)
	return v, ok
}

// Float returns a float parameter.
func (p Params) Float(name string) (float64, bool) {
	v, ok := p[name].(float64)
	return v, ok
}
