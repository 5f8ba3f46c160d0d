package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/searchktools/canteen/core/http"
	"github.com/searchktools/canteen/core/middleware"
	"github.com/searchktools/canteen/core/observability"
	"github.com/searchktools/canteen/core/poller"
	"github.com/searchktools/canteen/core/pools"
	"github.com/searchktools/canteen/core/router"
	"github.com/searchktools/canteen/core/socket"
)

// Engine is a single-threaded HTTP/1.x server driven by the OS readiness
// notifier. Every connection serves exactly one request and is closed once
// the response is written.
//
// Routes and middleware are configured before Run. Handlers execute on the
// reactor goroutine.
type Engine struct {
	routes   *router.Table
	pipeline *middleware.Pipeline

	poller   poller.Poller
	owned    bool
	listener socket.Listener
	serving  socket.Listener
	bound    atomic.Pointer[boundAddr]
	conns    *Registry
	bytePool *pools.BytePool
	scratch  []byte
	events   []poller.Event

	capacity       int
	readBufferSize int
	maxEvents      int
	backlog        int
	idleTimeout    time.Duration
	pollInterval   time.Duration

	logger   *slog.Logger
	monitor  *observability.Monitor
	chains   map[*router.Route]http.Handler
	fallback http.Handler
	clock    func() time.Time
	running  atomic.Bool
	stats    counters
}

// Option configures an Engine.
type Option func(*Engine)

// WithCapacity sets the maximum number of simultaneous client connections.
func WithCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.capacity = n
		}
	}
}

// WithReadBufferSize sets the size of the scratch buffer used for each read.
func WithReadBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.readBufferSize = n
		}
	}
}

// WithMaxEvents sets how many events one wait may return.
func WithMaxEvents(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxEvents = n
		}
	}
}

// WithBacklog sets the listen backlog used by Listen.
func WithBacklog(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.backlog = n
		}
	}
}

// WithIdleTimeout closes connections that see no event for d. Zero
// disables the sweep.
func WithIdleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.idleTimeout = d
		}
	}
}

// WithPollInterval bounds how long one wait blocks when the engine has a
// reason to wake up on its own.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithDefault sets the handler used when no route matches.
func WithDefault(h http.Handler) Option {
	return func(e *Engine) {
		e.routes.SetDefault(h)
	}
}

// WithMonitor records per-route handler latency in m.
func WithMonitor(m *observability.Monitor) Option {
	return func(e *Engine) {
		e.monitor = m
	}
}

// WithPoller makes the engine use p instead of creating the platform
// poller. The engine does not close p.
func WithPoller(p poller.Poller) Option {
	return func(e *Engine) {
		e.poller = p
	}
}

// NewEngine creates a new engine instance
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		routes:         router.NewTable(nil),
		pipeline:       middleware.NewPipeline(),
		bytePool:       pools.New(),
		capacity:       DefaultCapacity,
		readBufferSize: DefaultReadBufferSize,
		maxEvents:      DefaultMaxEvents,
		backlog:        socket.DefaultBacklog,
		pollInterval:   DefaultPollInterval,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle registers h for path under methods. Registration fails with a
// *ConfigError on a duplicate path, an invalid pattern or an empty method
// set, and while the engine is running.
func (e *Engine) Handle(path string, methods []string, h http.Handler) error {
	if e.running.Load() {
		return &ConfigError{Op: "register " + path, Err: ErrRunning}
	}
	if err := e.routes.Register(path, methods, h); err != nil {
		return &ConfigError{Op: "register " + path, Err: err}
	}
	return nil
}

// HandleFunc registers an ordinary function for path under methods.
func (e *Engine) HandleFunc(path string, methods []string, fn func(*http.Request) *http.Response) error {
	if fn == nil {
		return e.Handle(path, methods, nil)
	}
	return e.Handle(path, methods, http.HandlerFunc(fn))
}

// GET registers a GET route
func (e *Engine) GET(path string, handler http.HandlerFunc) error {
	return e.HandleFunc(path, []string{"GET"}, handler)
}

// POST registers a POST route
func (e *Engine) POST(path string, handler http.HandlerFunc) error {
	return e.HandleFunc(path, []string{"POST"}, handler)
}

// PUT registers a PUT route
func (e *Engine) PUT(path string, handler http.HandlerFunc) error {
	return e.HandleFunc(path, []string{"PUT"}, handler)
}

// DELETE registers a DELETE route
func (e *Engine) DELETE(path string, handler http.HandlerFunc) error {
	return e.HandleFunc(path, []string{"DELETE"}, handler)
}

// PATCH registers a PATCH route
func (e *Engine) PATCH(path string, handler http.HandlerFunc) error {
	return e.HandleFunc(path, []string{"PATCH"}, handler)
}

// HEAD registers a HEAD route
func (e *Engine) HEAD(path string, handler http.HandlerFunc) error {
	return e.HandleFunc(path, []string{"HEAD"}, handler)
}

// OPTIONS registers an OPTIONS route
func (e *Engine) OPTIONS(path string, handler http.HandlerFunc) error {
	return e.HandleFunc(path, []string{"OPTIONS"}, handler)
}

// SetDefault replaces the handler used when no route matches. nil restores
// the 404 handler. A change made while the engine is running applies from
// the next run.
func (e *Engine) SetDefault(h http.Handler) {
	e.routes.SetDefault(h)
}

// Use appends middleware wrapped around every handler, the default one
// included. The first one added runs first. Handlers are wrapped once when
// the engine starts serving.
func (e *Engine) Use(mw ...middleware.Middleware) {
	e.pipeline.Use(mw...)
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Routes returns the route table.
func (e *Engine) Routes() *router.Table {
	return e.routes
}

// Listen binds the listening socket. It must be called before Run.
func (e *Engine) Listen(addr string) error {
	if e.listener != nil {
		return &ConfigError{Op: "listen " + addr, Err: errors.New("already listening")}
	}
	ln, err := socket.Listen(addr, e.backlog)
	if err != nil {
		return &ConfigError{Op: "listen " + addr, Err: err}
	}
	e.listener = ln
	e.bound.Store(&boundAddr{ln.Addr()})
	return nil
}

type boundAddr struct{ net.Addr }

// Addr returns the bound address, or nil when the engine is not listening.
// It is safe to call from any goroutine.
func (e *Engine) Addr() net.Addr {
	if b := e.bound.Load(); b != nil {
		return b.Addr
	}
	return nil
}

// Run serves on the socket bound by Listen until ctx is cancelled, then
// closes every connection and the listener and returns nil. Any other
// return is fatal.
func (e *Engine) Run(ctx context.Context) error {
	if e.listener == nil {
		return &ConfigError{Op: "run", Err: ErrNotListening}
	}
	ln := e.listener
	defer func() {
		ln.Close()
		e.listener = nil
		e.bound.Store(nil)
	}()
	return e.Serve(ctx, ln)
}

// Serve runs the event loop on ln. The caller keeps ownership of ln.
func (e *Engine) Serve(ctx context.Context, ln socket.Listener) error {
	if !e.running.CompareAndSwap(false, true) {
		return &ConfigError{Op: "serve", Err: ErrRunning}
	}
	defer e.running.Store(false)

	if err := e.start(ln); err != nil {
		return err
	}
	defer e.stop()

	e.logger.Info("listening",
		"addr", addrString(ln.Addr()),
		"capacity", e.capacity,
		"idle_timeout", e.idleTimeout)

	timeout := -1
	if ctx.Done() != nil || e.idleTimeout > 0 {
		timeout = max(int(e.pollInterval/time.Millisecond), 1)
	}

	for {
		if ctx.Err() != nil {
			e.logger.Info("shutting down", "active", e.conns.Len())
			return nil
		}

		n, err := e.poller.Wait(e.events, timeout)
		if err != nil {
			return fmt.Errorf("canteen: wait for events: %w", err)
		}
		if err := e.step(e.events[:n]); err != nil {
			return err
		}
	}
}

// start prepares the per-run state and arms the listener.
func (e *Engine) start(ln socket.Listener) error {
	if e.poller == nil {
		p, err := poller.New()
		if err != nil {
			return &ConfigError{Op: "create poller", Err: err}
		}
		e.poller = p
		e.owned = true
	}

	e.serving = ln
	e.compose()
	e.conns = NewRegistry(e.capacity, e.poller, e.bytePool, e.readBufferSize)
	e.scratch = make([]byte, e.readBufferSize)
	e.events = make([]poller.Event, e.maxEvents)

	if err := e.poller.Register(ln.Fd(), ListenerToken, poller.Readable); err != nil {
		e.release()
		return &ConfigError{Op: "register listener", Err: err}
	}
	return nil
}

// stop closes every connection and disarms the listener.
func (e *Engine) stop() {
	var open []poller.Token
	e.conns.Each(func(c *Connection) bool {
		open = append(open, c.token)
		return true
	})
	for _, tok := range open {
		e.remove(tok, "shutdown")
	}
	e.conns.Recycle()

	if err := e.poller.Deregister(e.serving.Fd()); err != nil {
		e.logger.Debug("deregister listener", "error", err)
	}
	e.release()
}

// compose wraps every route and the default handler in the middleware
// pipeline, with recovery outermost.
func (e *Engine) compose() {
	recovery := middleware.Recovery(e.logger)
	routes := e.routes.Routes()
	e.chains = make(map[*router.Route]http.Handler, len(routes))
	for _, r := range routes {
		e.chains[r] = recovery(e.pipeline.Then(r.Handler))
	}
	e.fallback = recovery(e.pipeline.Then(e.routes.Default()))
}

func (e *Engine) release() {
	e.serving = nil
	if e.owned {
		e.poller.Close()
		e.poller = nil
		e.owned = false
	}
}

// step handles one batch of events, then frees the tokens removed during
// it and sweeps idle connections.
func (e *Engine) step(events []poller.Event) error {
	for _, ev := range events {
		if err := e.handle(ev); err != nil {
			return err
		}
	}
	e.conns.Recycle()

	if e.idleTimeout > 0 {
		e.sweepIdle()
	}
	return nil
}

func (e *Engine) handle(ev poller.Event) error {
	if ev.Token == ListenerToken {
		return e.onListener(ev)
	}

	c, err := e.conns.Get(ev.Token)
	if err != nil {
		e.logger.Debug("event for unknown token", "token", ev.Token)
		return nil
	}
	c.touch(e.clock())

	switch {
	case ev.Hangup || ev.Error:
		e.remove(c.token, "hangup")
	case ev.Readable && c.state == StateAwaitingRead:
		e.onReadable(c)
	case ev.Writable && c.state == StateAwaitingWrite:
		e.onWritable(c)
	default:
		e.rearm(c)
	}
	return nil
}

func (e *Engine) onListener(ev poller.Event) error {
	if ev.Error {
		e.logger.Warn("listener reported an error")
	}
	if ev.Readable {
		e.accept()
	}
	if err := e.poller.Reregister(e.serving.Fd(), ListenerToken, poller.Readable); err != nil {
		return fmt.Errorf("canteen: re-arm listener: %w", err)
	}
	return nil
}

// accept takes one pending connection.
func (e *Engine) accept() {
	sock, err := e.serving.Accept()
	if err != nil {
		if !errors.Is(err, socket.ErrWouldBlock) {
			e.logger.Warn("accept failed", "error", err)
		}
		return
	}

	tok, err := e.conns.Insert(sock, e.clock())
	if err != nil {
		e.stats.rejected.Add(1)
		e.logger.Warn("connection rejected",
			"remote", addrString(sock.RemoteAddr()),
			"error", err)
		sock.Close()
		return
	}
	e.stats.accepted.Add(1)
	e.stats.active.Add(1)

	c, _ := e.conns.Get(tok)
	if err := e.poller.Register(sock.Fd(), tok, c.interest); err != nil {
		e.fault(c, &ConnectionFault{Token: tok, Op: "register", Err: err})
		return
	}
	e.logger.Debug("connection accepted", "token", tok, "remote", addrString(sock.RemoteAddr()))
}

func (e *Engine) onReadable(c *Connection) {
	req, err := c.OnReadable(e.scratch)

	var fault *ConnectionFault
	switch {
	case errors.As(err, &fault):
		e.fault(c, err)
		return
	case err != nil:
		e.logger.Debug("bad request", "token", c.token, "error", err)
		c.Respond(decodeError(err))
	case req != nil:
		req.RemoteAddr = addrString(c.sock.RemoteAddr())
		c.Respond(e.dispatch(req))
	}
	e.rearm(c)
}

func (e *Engine) onWritable(c *Connection) {
	done, err := c.OnWritable()
	if err != nil {
		e.fault(c, err)
		return
	}
	if done {
		e.stats.completed.Add(1)
		e.remove(c.token, "response written")
		return
	}
	e.rearm(c)
}

// dispatch runs the request through the middleware and the matched
// handler. Panics and missing responses become 500s.
func (e *Engine) dispatch(req *http.Request) *http.Response {
	e.stats.requests.Add(1)

	h, name := e.fallback, "default"
	route, params := e.routes.Lookup(req)
	if route != nil {
		h, name = e.chains[route], route.Path
	}
	req.Params = params

	if e.monitor == nil {
		return h.Handle(req)
	}

	start := time.Now()
	resp := h.Handle(req)
	e.monitor.Record(req.Method+" "+name, time.Since(start), resp.Status >= http.StatusInternalServerError)
	return resp
}

// Monitor returns the route monitor, or nil.
func (e *Engine) Monitor() *observability.Monitor {
	return e.monitor
}

func (e *Engine) rearm(c *Connection) {
	if err := e.poller.Reregister(c.sock.Fd(), c.token, c.interest); err != nil {
		e.fault(c, &ConnectionFault{Token: c.token, Op: "re-arm", Err: err})
	}
}

func (e *Engine) fault(c *Connection, err error) {
	e.stats.faults.Add(1)
	e.logger.Warn("connection fault", "token", c.token, "error", err)
	e.remove(c.token, "fault")
}

func (e *Engine) remove(tok poller.Token, reason string) {
	err := e.conns.Remove(tok)
	if errors.Is(err, ErrUnknownToken) {
		return
	}
	if err != nil {
		e.logger.Debug("connection cleanup", "token", tok, "error", err)
	}
	e.stats.active.Add(-1)
	e.logger.Debug("connection closed", "token", tok, "reason", reason)
}

// sweepIdle closes connections that have not seen an event within the
// idle timeout.
func (e *Engine) sweepIdle() {
	cutoff := e.clock().Add(-e.idleTimeout)

	var idle []poller.Token
	e.conns.Each(func(c *Connection) bool {
		if c.lastActive.Before(cutoff) {
			idle = append(idle, c.token)
		}
		return true
	})

	for _, tok := range idle {
		e.stats.idleClosed.Add(1)
		e.remove(tok, "idle timeout")
	}
}

func decodeError(err error) *http.Response {
	if errors.Is(err, http.ErrUnsupported) {
		return http.Error(http.StatusNotImplemented)
	}
	return http.Error(http.StatusBadRequest)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
