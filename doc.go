/*
Package canteen is a single-threaded, event-driven HTTP/1.x server.

One goroutine owns the listening socket, every client socket and the OS
readiness notifier (epoll on Linux, kqueue on BSD and macOS). Each client
connection reads exactly one request, dispatches it to the first matching
route, writes the response, possibly across several partial writes, and is
closed. There is no keep-alive and no pipelining.

Quick Start

	package main

	import (
		"context"
		"log"

		"github.com/searchktools/canteen/app"
		"github.com/searchktools/canteen/config"
		"github.com/searchktools/canteen/core/http"
	)

	func main() {
		cfg, err := config.Load("")
		if err != nil {
			log.Fatal(err)
		}
		a, err := app.New(cfg)
		if err != nil {
			log.Fatal(err)
		}

		e := a.Engine()
		e.GET("/hello/<str:name>", func(req *http.Request) *http.Response {
			return http.Text(http.StatusOK, "hello, "+req.Param("name"))
		})

		if err := a.Run(context.Background()); err != nil {
			log.Fatal(err)
		}
	}

Modules

  - app: application lifecycle and the statistics route
  - config: YAML configuration with environment overrides
  - logging: slog construction
  - core: connection state machine, registry and the event loop
  - core/http: request decoding and response serialization
  - core/router: the ordered route table with typed path parameters
  - core/middleware: handler decorators
  - core/codec: JSON and protobuf body codecs
  - core/observability: per-route latency metrics
  - core/pools: input buffer pool
  - core/poller: epoll and kqueue
  - core/socket: non-blocking TCP sockets
  - cmd/canteen: the command line server
*/
package canteen
