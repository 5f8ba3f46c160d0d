package http

import (
	"bytes"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var (
	// ErrIncomplete means more bytes are needed before the request can be decoded.
	ErrIncomplete = errors.New("http: incomplete request")
	// ErrMalformed means the bytes can never form a valid request.
	ErrMalformed = errors.New("http: malformed request")
	// ErrUnsupported means the request uses a feature this server does not implement.
	ErrUnsupported = errors.New("http: unsupported request")
)

var headerEnd = []byte("\r\n\r\n")

// Decode decodes one request from the bytes accumulated so far. It returns
// ErrIncomplete until the request line, all headers and a Content-Length
// body are buffered. Bytes past the end of the first request are ignored.
func Decode(data []byte) (*Request, error) {
	end := bytes.Index(data, headerEnd)
	if end == -1 {
		// Reject a garbage request line early instead of waiting forever.
		if line := bytes.IndexByte(data, '\n'); line != -1 {
			if _, err := parseRequestLine(data[:line]); err != nil {
				return nil, err
			}
		}
		return nil, ErrIncomplete
	}

	head := data[:end]
	lineEnd := bytes.IndexByte(head, '\n')
	if lineEnd == -1 {
		lineEnd = len(head)
	}

	req, err := parseRequestLine(head[:lineEnd])
	if err != nil {
		return nil, err
	}

	contentLength := 0
	if lineEnd < len(head) {
		if contentLength, err = parseHeaders(req, head[lineEnd+1:]); err != nil {
			return nil, err
		}
	}

	body := data[end+len(headerEnd):]
	if len(body) < contentLength {
		return nil, ErrIncomplete
	}
	if contentLength > 0 {
		req.Body = append([]byte(nil), body[:contentLength]...)
	}

	return req, nil
}

func parseRequestLine(line []byte) (*Request, error) {
	line = bytes.TrimSuffix(line, []byte("\r"))

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return nil, ErrMalformed
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 == -1 {
		return nil, ErrMalformed
	}
	sp2 += sp1 + 1

	method := string(line[:sp1])
	target := string(line[sp1+1 : sp2])
	proto := string(line[sp2+1:])

	if !httpguts.ValidHeaderFieldName(method) {
		return nil, ErrMalformed
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return nil, ErrMalformed
	}
	if target == "" || target[0] != '/' {
		return nil, ErrMalformed
	}

	req := &Request{
		Method: method,
		Path:   target,
		Proto:  proto,
	}
	if i := strings.IndexByte(target, '?'); i != -1 {
		req.Path = target[:i]
		req.RawQuery = target[i+1:]
		// A partially broken query still yields the pairs that did parse.
		req.Query, _ = url.ParseQuery(req.RawQuery)
	}

	return req, nil
}

// parseHeaders fills req.Headers and returns the declared body length.
func parseHeaders(req *Request, data []byte) (int, error) {
	contentLength := -1

	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i != -1 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		line = bytes.TrimSuffix(line, []byte("\r"))

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return 0, ErrMalformed
		}

		key := string(line[:colon])
		value := string(bytes.Trim(line[colon+1:], " \t"))
		if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
			return 0, ErrMalformed
		}
		req.Headers = append(req.Headers, Header{Key: key, Value: value})

		switch {
		case strings.EqualFold(key, "Content-Length"):
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return 0, ErrMalformed
			}
			if contentLength != -1 && contentLength != n {
				return 0, ErrMalformed
			}
			contentLength = n
		case strings.EqualFold(key, "Transfer-Encoding"):
			if !strings.EqualFold(value, "identity") {
				return 0, ErrUnsupported
			}
		}
	}

	if contentLength < 0 {
		return 0, nil
	}
	return contentLength, nil
}
