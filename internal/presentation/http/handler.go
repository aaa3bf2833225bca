package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application/catalog"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-catalog/internal/presentation/worker"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Reconciler rebuilds projections from the ledger.
type Reconciler interface {
	Resync(ctx context.Context, id int64) error
	ReconcileAll(ctx context.Context, pageSize int) (catalog.ReconcileReport, error)
}

type Handler struct {
	reconciler Reconciler
	inbound    domoutbox.Publisher
	metrics    http.Handler
	log        observability.Logger
	tel        observability.Observability
}

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerTenantID       = "X-Tenant-ID"

	defaultReconcilePage = 500
	maxReconcilePage     = 5000
	maxInjectBytes       = 1 << 20
)

// NewHandler builds the ops API. inbound receives messages posted to /admin/messages/{channel};
// a nil inbound leaves that route out.
func NewHandler(reconciler Reconciler, inbound domoutbox.Publisher, metrics http.Handler,
	logger observability.Logger, tel observability.Observability,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	return &Handler{
		reconciler: reconciler,
		inbound:    inbound,
		metrics:    metrics,
		log:        baseLogger.With(observability.F("component", componentHTTPHandler)),
		tel:        tel,
	}
}

func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// Trace → ObservabilityMiddleware (request logger) → HTTP metrics → Access log → Handler
	h.muxHandle(mux, http.MethodGet, "/health", h.handleHealth)
	h.muxHandle(mux, http.MethodPost, "/admin/items/{id}/resync", h.handleResync)
	h.muxHandle(mux, http.MethodPost, "/admin/reconcile", h.handleReconcile)
	if h.inbound != nil {
		h.muxHandle(mux, http.MethodPost, "/admin/messages/{channel}", h.handleInject)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return mux
}

func (h *Handler) muxHandle(mux *http.ServeMux, method, route string, handler http.HandlerFunc) {
	mux.HandleFunc(method+" "+route, func(w http.ResponseWriter, r *http.Request) {
		// Store stable route template for low-cardinality labels
		ctx := contextWithRoute(r.Context(), route)
		r = r.WithContext(ctx)

		wrapped := h.withTrace(
			ObservabilityMiddleware(
				logctx.FromOr(ctx, h.log),
				func(r *http.Request) string {
					return r.Header.Get(headerRequestID)
				},
				func(r *http.Request) string {
					return r.Header.Get(headerTenantID)
				},
				h.tel,
			)(
				h.withAccessLog(
					h.withHTTPMetrics(handler),
				),
			),
		)
		wrapped.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type resyncResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) handleResync(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("id must be a positive integer"))
		return
	}
	if err := h.reconciler.Resync(r.Context(), id); err != nil {
		logctx.FromOr(r.Context(), h.log).Error("resync_failed",
			observability.F("item_id", id),
			observability.Err(err),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resyncResponse{ID: id, Status: "synced"})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	pageSize := defaultReconcilePage
	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxReconcilePage {
			writeError(w, http.StatusBadRequest, errors.New("pageSize must be between 1 and 5000"))
			return
		}
		pageSize = n
	}

	report, err := h.reconciler.ReconcileAll(r.Context(), pageSize)
	logger := logctx.FromOr(r.Context(), h.log)
	if err != nil {
		logger.Error("reconcile_failed",
			observability.F("scanned", report.Scanned),
			observability.Err(err),
		)
		writeDomainError(w, err)
		return
	}
	logger.Info("reconcile_done",
		observability.F("scanned", report.Scanned),
		observability.F("upserts", report.Upserts),
		observability.F("deletes", report.Deletes),
		observability.F("failed", report.Failed),
	)
	writeJSON(w, http.StatusOK, report)
}

type injectResponse struct {
	Channel string `json:"channel"`
	EventID string `json:"eventId"`
}

// handleInject validates a payload for an inbound channel and hands it to the transport as if a
// producer had sent it. It is the only inbound source when TRANSPORT=memory.
func (h *Handler) handleInject(w http.ResponseWriter, r *http.Request) {
	ch := message.Channel(r.PathValue("channel"))
	if !slices.Contains(message.Inbound, ch) {
		writeError(w, http.StatusNotFound, errors.New("unknown inbound channel"))
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInjectBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, err)
		return
	}
	msg, err := message.Decode(ch, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	eventID := uuid.NewString()
	env := message.Envelope{
		Channel: ch,
		Key:     []byte(strconv.FormatInt(msg.ItemKey(), 10)),
		Payload: body,
		Headers: map[string]string{workerpresentation.HeaderEventID: eventID},
	}
	if err := h.inbound.Publish(r.Context(), env); err != nil {
		logctx.FromOr(r.Context(), h.log).Error("inject_failed",
			observability.F("channel", string(ch)),
			observability.Err(err),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, injectResponse{Channel: string(ch), EventID: eventID})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("minishop.catalog.http")
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := r.Method + " " + route
		if route == "unknown" {
			spanName = r.Method + " " + r.URL.Path
			route = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected vectors.
// DO NOT new metrics inside the middleware.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	requests := h.tel.Metrics().Counter(observability.MHTTPRequests)
	duration := h.tel.Metrics().Histogram(observability.MHTTPRequestDuration)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		route := routeFromContext(r.Context())
		requests.Add(1, observability.L("method", r.Method), observability.L("route", route), observability.L("status", strconv.Itoa(lrw.status)))
		duration.Observe(time.Since(start).Seconds(), observability.L("method", r.Method), observability.L("route", route))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, item.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
