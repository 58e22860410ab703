// Package httpapi serves the engine over JSON/HTTP next to the line protocol.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	match "github.com/0x5487/tradesim"
	"github.com/0x5487/tradesim/internal/metrics"
	"github.com/0x5487/tradesim/internal/server"
	"github.com/0x5487/tradesim/protocol"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeProblem = "application/problem+json"

	maxBodyBytes   = 1 << 16
	defaultTimeout = 3 * time.Second
)

var errOrderNotFound = errors.New("order not found")

type API struct {
	dispatcher *server.Dispatcher
	levels     *match.AggregatedBook
	metrics    *metrics.Metrics
	logger     *slog.Logger
	timeout    time.Duration
}

type Option func(*API)

// WithMetrics times every request and exposes GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

// WithLevels serves GET /levels from an aggregated book fed by the engine's
// event stream.
func WithLevels(ab *match.AggregatedBook) Option {
	return func(a *API) { a.levels = ab }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

func WithTimeout(d time.Duration) Option {
	return func(a *API) { a.timeout = d }
}

func New(dispatcher *server.Dispatcher, opts ...Option) *API {
	a := &API{
		dispatcher: dispatcher,
		logger:     slog.Default(),
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "http")
	return a
}

// Routes builds the router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.timeout))

	r.Post("/orders", a.placeOrder)
	r.Delete("/orders/{id}", a.cancelOrder)
	r.Get("/book", a.getBook)
	r.Get("/depth", a.getDepth)
	r.Get("/trades", a.getTrades)

	if a.levels != nil {
		r.Get("/levels", a.getLevels)
	}
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeProblem(w, r, http.StatusNotFound, protocol.RejectReasonNone, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeProblem(w, r, http.StatusMethodNotAllowed, protocol.RejectReasonNone, r.Method+" is not allowed here")
	})

	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		if a.metrics != nil {
			a.metrics.ObserveCommand(r.Method+" "+pattern, start)
		}
		a.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (a *API) placeOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req protocol.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.dispatcher.Reject(err)
		a.writeError(w, r, err)
		return
	}

	exec, err := a.dispatcher.Submit(req.Type, req.Client, req.Side, req.Qty, req.Price)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.writeJSON(w, r, http.StatusCreated, exec)
}

func (a *API) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		err = fmt.Errorf("%w: order id must be an unsigned integer", match.ErrInvalidParam)
		a.dispatcher.Reject(err)
		a.writeError(w, r, err)
		return
	}

	if !a.dispatcher.Cancel(id) {
		a.writeError(w, r, errOrderNotFound)
		return
	}

	a.writeJSON(w, r, http.StatusOK, protocol.CancelOrderResponse{OrderID: id, Cancelled: true})
}

func (a *API) getBook(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, r, http.StatusOK, a.dispatcher.Book())
}

func (a *API) getDepth(w http.ResponseWriter, r *http.Request) {
	limit := uint64(protocol.DefaultDepthLevels)
	if s := r.URL.Query().Get("limit"); s != "" {
		var err error
		limit, err = strconv.ParseUint(s, 10, 32)
		if err != nil {
			err = fmt.Errorf("%w: limit must be an unsigned integer", match.ErrInvalidParam)
			a.dispatcher.Reject(err)
			a.writeError(w, r, err)
			return
		}
	}

	depth, err := a.dispatcher.Engine().Depth(uint32(limit))
	if err != nil {
		a.dispatcher.Reject(err)
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, depth)
}

func (a *API) getLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	side, err := match.ParseSide(q.Get("side"))
	if err != nil {
		a.dispatcher.Reject(err)
		a.writeError(w, r, err)
		return
	}

	limit := int(protocol.DefaultDepthLevels)
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			err = fmt.Errorf("%w: limit must be a positive integer", match.ErrInvalidParam)
			a.dispatcher.Reject(err)
			a.writeError(w, r, err)
			return
		}
		limit = n
	}

	a.writeJSON(w, r, http.StatusOK, protocol.GetLevelsResponse{
		SequenceID: a.levels.SequenceID(),
		Side:       side,
		Levels:     a.levels.Levels(side, limit),
	})
}

func (a *API) getTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			err = fmt.Errorf("%w: limit must be a non-negative integer", match.ErrInvalidParam)
			a.dispatcher.Reject(err)
			a.writeError(w, r, err)
			return
		}
		limit = n
	}

	a.writeJSON(w, r, http.StatusOK, protocol.GetTradesResponse{Trades: a.dispatcher.History().Recent(limit)})
}

func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errOrderNotFound) {
		a.writeProblem(w, r, http.StatusNotFound, protocol.RejectReasonOrderNotFound, err.Error())
		return
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		a.writeProblem(w, r, http.StatusRequestEntityTooLarge, protocol.RejectReasonInvalidPayload, err.Error())
		return
	}

	a.writeProblem(w, r, http.StatusBadRequest, protocol.RejectReasonOf(err), err.Error())
}

func (a *API) writeProblem(w http.ResponseWriter, r *http.Request, status int, reason protocol.RejectReason, detail string) {
	reqID := middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", contentTypeProblem)
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(protocol.Problem{
		Type:      "about:blank",
		Title:     http.StatusText(status),
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		Reason:    reason,
		RequestID: reqID,
	})
}
