package router

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/searchktools/canteen/core/http"
)

type paramKind uint8

const (
	kindStr paramKind = iota
	kindInt
	kindUint
	kindFloat
	kindPath
)

var kinds = map[string]paramKind{
	"str":   kindStr,
	"int":   kindInt,
	"uint":  kindUint,
	"float": kindFloat,
	"path":  kindPath,
}

var kindExpr = [...]string{
	kindStr:   `[^/]+`,
	kindInt:   `-?[0-9]+`,
	kindUint:  `[0-9]+`,
	kindFloat: `-?[0-9]+(?:\.[0-9]+)?`,
	kindPath:  `.+`,
}

type param struct {
	name string
	kind paramKind
}

// pattern is a compiled path pattern. Parameters are written <kind:name>
// or <name> (same as <str:name>); a pattern without parameters is matched
// by plain string comparison.
type pattern struct {
	raw    string
	re     *regexp.Regexp
	params []param
}

func compilePattern(path string) (*pattern, error) {
	if path == "" || path[0] != '/' {
		return nil, fmt.Errorf("%w: %q must begin with '/'", ErrInvalidPattern, path)
	}

	p := &pattern{raw: path}
	if !strings.ContainsAny(path, "<>") {
		return p, nil
	}

	var expr strings.Builder
	expr.WriteByte('^')
	seen := make(map[string]bool)

	rest := path
	for rest != "" {
		open := strings.IndexByte(rest, '<')
		if open == -1 {
			if strings.IndexByte(rest, '>') != -1 {
				return nil, fmt.Errorf("%w: %q has an unmatched '>'", ErrInvalidPattern, path)
			}
			expr.WriteString(regexp.QuoteMeta(rest))
			break
		}
		if strings.IndexByte(rest[:open], '>') != -1 {
			return nil, fmt.Errorf("%w: %q has an unmatched '>'", ErrInvalidPattern, path)
		}
		expr.WriteString(regexp.QuoteMeta(rest[:open]))

		end := strings.IndexByte(rest[open:], '>')
		if end == -1 {
			return nil, fmt.Errorf("%w: %q has an unterminated parameter", ErrInvalidPattern, path)
		}
		inner := rest[open+1 : open+end]
		rest = rest[open+end+1:]

		prm, err := parseParam(inner)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, path, err)
		}
		if seen[prm.name] {
			return nil, fmt.Errorf("%w: %q repeats parameter %q", ErrInvalidPattern, path, prm.name)
		}
		seen[prm.name] = true
		p.params = append(p.params, prm)

		expr.WriteByte('(')
		expr.WriteString(kindExpr[prm.kind])
		expr.WriteByte(')')
	}
	expr.WriteByte('$')

	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, path, err)
	}
	p.re = re

	return p, nil
}

func parseParam(inner string) (param, error) {
	kindName, name, typed := strings.Cut(inner, ":")
	if !typed {
		kindName, name = "str", inner
	}
	kind, ok := kinds[kindName]
	if !ok {
		return param{}, fmt.Errorf("unknown parameter type %q", kindName)
	}
	if !validName(name) {
		return param{}, fmt.Errorf("invalid parameter name %q", name)
	}
	return param{name: name, kind: kind}, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, c := range name {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// match reports whether path matches and returns the converted parameters.
func (p *pattern) match(path string) (http.Params, bool) {
	if p.re == nil {
		return nil, path == p.raw
	}

	groups := p.re.FindStringSubmatch(path)
	if groups == nil {
		return nil, false
	}

	params := make(http.Params, len(p.params))
	for i, prm := range p.params {
		v, ok := convert(prm.kind, groups[i+1])
		if !ok {
			return nil, false
		}
		params[prm.name] = v
	}
	return params, true
}

// convert fails only on overflow; the expression already vetted the syntax.
func convert(kind paramKind, s string) (any, bool) {
	switch kind {
	case kindInt:
		v, err := strconv.ParseInt(s, 10, 64)
		return v, err == nil
	case kindUint:
		v, err := strconv.ParseUint(s, 10, 64)
		return v, err == nil
	case kindFloat:
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}
	return s, true
}
