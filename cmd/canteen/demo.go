package main

import (
	"errors"
	"strings"

	"github.com/searchktools/canteen/core"
	"github.com/searchktools/canteen/core/http"
	"github.com/searchktools/canteen/core/middleware"
)

func registerDemoRoutes(e *core.Engine) error {
	e.Use(middleware.RequestID(), middleware.Logger(e.Logger()))
	e.SetDefault(e.Routes().MethodNotAllowed(nil))

	return errors.Join(
		e.GET("/", func(*http.Request) *http.Response {
			return http.HTML(http.StatusOK, "<h1>canteen</h1>\n")
		}),
		e.GET("/hello/<str:name>", func(req *http.Request) *http.Response {
			return http.Text(http.StatusOK, "hello, "+req.Param("name")+"\n")
		}),
		e.GET("/add/<int:a>/<int:b>", func(req *http.Request) *http.Response {
			a, _ := req.Params.Int("a")
			b, _ := req.Params.Int("b")
			return http.Encode(req, http.StatusOK, map[string]int64{"a": a, "b": b, "sum": a + b})
		}),
		e.POST("/echo", func(req *http.Request) *http.Response {
			ct := req.Header("Content-Type")
			if ct == "" {
				ct = "application/octet-stream"
			}
			return http.Data(http.StatusOK, ct, req.Body)
		}),
		e.HandleFunc("/files/<path:rest>", []string{"GET", "HEAD"}, func(req *http.Request) *http.Response {
			parts := strings.Split(req.Param("rest"), "/")
			return http.JSON(http.StatusOK, map[string]any{"segments": parts})
		}),
	)
}
