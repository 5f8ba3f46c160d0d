package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/canteen/core/http"
)

func text(body string) http.Handler {
	return http.HandlerFunc(func(*http.Request) *http.Response {
		return http.Text(http.StatusOK, body)
	})
}

func resolveBody(t *testing.T, tbl *Table, method, path string) (*http.Response, http.Params) {
	t.Helper()
	h, params := tbl.Resolve(&http.Request{Method: method, Path: path})
	require.NotNil(t, h)
	return h.Handle(&http.Request{Method: method, Path: path, Params: params}), params
}

func TestHelloAndDefault(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("/hello", []string{"GET"}, text("hi")))

	resp, _ := resolveBody(t, tbl, "GET", "/hello")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "hi", string(resp.Body))

	resp, _ = resolveBody(t, tbl, "GET", "/other")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestResolveNonOverlapping(t *testing.T) {
	tbl := NewTable(text("default"))
	require.NoError(t, tbl.Register("/", []string{"GET"}, text("root")))
	require.NoError(t, tbl.Register("/users", []string{"GET", "post"}, text("users")))
	require.NoError(t, tbl.Register("/users/<int:id>", []string{"GET"}, text("user")))
	require.NoError(t, tbl.Register("/files/<path:rest>", []string{"GET"}, text("file")))

	tests := []struct {
		method, path, want string
	}{
		{"GET", "/", "root"},
		{"GET", "/users", "users"},
		{"POST", "/users", "users"},
		{"DELETE", "/users", "default"},
		{"GET", "/users/42", "user"},
		{"GET", "/users/abc", "default"},
		{"GET", "/users/42/extra", "default"},
		{"GET", "/files/a/b/c.txt", "file"},
		{"GET", "/files/", "default"},
		{"GET", "/nope", "default"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			resp, _ := resolveBody(t, tbl, tt.method, tt.path)
			assert.Equal(t, tt.want, string(resp.Body))
		})
	}
}

func TestDuplicateRegistrationLeavesTableUnchanged(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("/a", []string{"GET"}, text("first")))

	err := tbl.Register("/a", []string{"POST"}, text("second"))
	require.ErrorIs(t, err, ErrDuplicateRoute)

	assert.Equal(t, 1, tbl.Len())
	resp, _ := resolveBody(t, tbl, "GET", "/a")
	assert.Equal(t, "first", string(resp.Body))
	resp, _ = resolveBody(t, tbl, "POST", "/a")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestRegistrationOrderWins(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("/user/admin", []string{"GET"}, text("exact")))
	require.NoError(t, tbl.Register("/user/<name>", []string{"GET"}, text("param")))

	resp, params := resolveBody(t, tbl, "GET", "/user/admin")
	assert.Equal(t, "exact", string(resp.Body))
	assert.Nil(t, params)

	resp, params = resolveBody(t, tbl, "GET", "/user/bob")
	assert.Equal(t, "param", string(resp.Body))
	assert.Equal(t, "bob", params.String("name"))

	// Reversed registration: the parameter route shadows the literal one.
	tbl = NewTable(nil)
	require.NoError(t, tbl.Register("/user/<name>", []string{"GET"}, text("param")))
	require.NoError(t, tbl.Register("/user/admin", []string{"GET"}, text("exact")))
	resp, _ = resolveBody(t, tbl, "GET", "/user/admin")
	assert.Equal(t, "param", string(resp.Body))
}

func TestTypedParams(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("/m/<int:i>/<uint:u>/<float:f>/<str:s>", []string{"GET"}, text("ok")))

	_, params := resolveBody(t, tbl, "GET", "/m/-3/7/2.5/x.y")
	require.NotNil(t, params)

	i, ok := params.Int("i")
	assert.True(t, ok)
	assert.Equal(t, int64(-3), i)

	u, ok := params.Uint("u")
	assert.True(t, ok)
	assert.Equal(t, uint64(7), u)

	f, ok := params.Float("f")
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	assert.Equal(t, "x.y", params.String("s"))

	// uint rejects a sign; int overflow does not match.
	resp, _ := resolveBody(t, tbl, "GET", "/m/1/-7/2/x")
	assert.Equal(t, http.StatusNotFound, resp.Status)
	resp, _ = resolveBody(t, tbl, "GET", "/m/99999999999999999999/1/2/x")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestLiteralsAreQuoted(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("/v1.0/<id>", []string{"GET"}, text("ok")))

	resp, _ := resolveBody(t, tbl, "GET", "/v1.0/a")
	assert.Equal(t, "ok", string(resp.Body))
	resp, _ = resolveBody(t, tbl, "GET", "/v1x0/a")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		methods []string
		handler http.Handler
		wantErr error
	}{
		{"relative path", "hello", []string{"GET"}, text("x"), ErrInvalidPattern},
		{"empty path", "", []string{"GET"}, text("x"), ErrInvalidPattern},
		{"unterminated param", "/a/<id", []string{"GET"}, text("x"), ErrInvalidPattern},
		{"stray close", "/a/id>", []string{"GET"}, text("x"), ErrInvalidPattern},
		{"unknown kind", "/a/<uuid:id>", []string{"GET"}, text("x"), ErrInvalidPattern},
		{"repeated name", "/<a>/<int:a>", []string{"GET"}, text("x"), ErrInvalidPattern},
		{"bad name", "/<1abc>", []string{"GET"}, text("x"), ErrInvalidPattern},
		{"no methods", "/a", nil, text("x"), ErrNoMethods},
		{"bad method", "/a", []string{"GE T"}, text("x"), ErrInvalidMethod},
		{"nil handler", "/a", []string{"GET"}, nil, ErrNilHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable(nil)
			err := tbl.Register(tt.path, tt.methods, tt.handler)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, tbl.Len())
		})
	}
}

func TestMethodsNormalized(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("/a", []string{"post", "GET", "get"}, text("x")))

	routes := tbl.Routes()
	require.Len(t, routes, 1)
	assert.Equal(t, []string{"GET", "POST"}, routes[0].Methods)
}

func TestMethodNotAllowedDefault(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("/items", []string{"GET"}, text("list")))
	require.NoError(t, tbl.Register("/items/<int:id>", []string{"PUT", "DELETE"}, text("item")))
	tbl.SetDefault(tbl.MethodNotAllowed(nil))

	resp, _ := resolveBody(t, tbl, "POST", "/items/3")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Status)
	assert.Equal(t, "DELETE, PUT", resp.Header("Allow"))

	resp, _ = resolveBody(t, tbl, "GET", "/missing")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestSetDefaultNil(t *testing.T) {
	tbl := NewTable(text("custom"))
	resp, _ := resolveBody(t, tbl, "GET", "/x")
	assert.Equal(t, "custom", string(resp.Body))

	tbl.SetDefault(nil)
	resp, _ = resolveBody(t, tbl, "GET", "/x")
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestLookup(t *testing.T) {
	tbl := NewTable(nil)
	require.NoError(t, tbl.Register("/a/<int:n>", []string{"GET"}, text("a")))

	r, params := tbl.Lookup(&http.Request{Method: "GET", Path: "/a/7"})
	require.NotNil(t, r)
	assert.Equal(t, "/a/<int:n>", r.Path)
	n, ok := params.Int("n")
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	r, params = tbl.Lookup(&http.Request{Method: "POST", Path: "/a/7"})
	assert.Nil(t, r)
	assert.Nil(t, params)
}

func BenchmarkResolveStatic(b *testing.B) {
	tbl := NewTable(nil)
	_ = tbl.Register("/hello/world", []string{"GET"}, text("x"))
	req := &http.Request{Method: "GET", Path: "/hello/world"}

	for b.Loop() {
		tbl.Resolve(req)
	}
}

func BenchmarkResolveParam(b *testing.B) {
	tbl := NewTable(nil)
	_ = tbl.Register("/user/<int:id>", []string{"GET"}, text("x"))
	req := &http.Request{Method: "GET", Path: "/user/123"}

	for b.Loop() {
		tbl.Resolve(req)
	}
}
