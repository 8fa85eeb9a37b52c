// Package telemetry wires Sentry tracing and error capture into the chat and
// indexing paths.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

const (
	serverName   = "helpdeskd"
	flushTimeout = 5 * time.Second

	// OpIndex marks background re-index transactions.
	OpIndex = "index"
)

type Config struct {
	DSN         string
	Environment string
	// TracesSampleRate overrides SampleRate(Environment) when non-zero.
	TracesSampleRate float64
	Debug            bool
	Logger           *zap.Logger
}

// SampleRate is the fraction of request transactions traced in an environment.
func SampleRate(environment string) float64 {
	switch environment {
	case "", "development", "test":
		return 1.0
	default:
		return 0.1
	}
}

// Init configures the global Sentry client and returns a flush function.
// An empty DSN or a client error leaves Sentry disabled; the returned function
// is always safe to call.
func Init(cfg Config) (func(), error) {
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	rate := cfg.TracesSampleRate
	if rate == 0 {
		rate = SampleRate(cfg.Environment)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		ServerName:       serverName,
		Debug:            cfg.Debug,
		EnableTracing:    true,
		TracesSampleRate: rate,
		TracesSampler: sentry.TracesSampler(func(sc sentry.SamplingContext) float64 {
			return sampleSpan(sc.Span, rate)
		}),
	})
	if err != nil {
		logger.Warn("sentry.init_failed", zap.Error(err))
		return noop, nil
	}

	logger.Info("sentry.initialized",
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_rate", rate))
	return func() { sentry.Flush(flushTimeout) }, nil
}

// sampleSpan keeps child spans with their parent and always traces index runs,
// which happen once per interval.
func sampleSpan(span *sentry.Span, rate float64) float64 {
	if span == nil {
		return rate
	}
	var root sentry.SpanID
	if span.ParentSpanID != root {
		if span.Sampled.Bool() {
			return 1.0
		}
		return 0.0
	}
	if span.Op == OpIndex {
		return 1.0
	}
	return rate
}

// SpanAttributes are tagged on spans so events can be filtered by
// conversation, document or locale.
type SpanAttributes struct {
	ConversationID string
	DocumentID     string
	Locale         string
	Operation      string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if a.ConversationID != "" {
		span.SetTag("conversation_id", a.ConversationID)
	}
	if a.DocumentID != "" {
		span.SetTag("document_id", a.DocumentID)
	}
	if a.Locale != "" {
		span.SetTag("locale", a.Locale)
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

type Span struct {
	inner *sentry.Span
}

func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports err on the span's hub.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// StartSpan opens a child of the span already in ctx, or a new transaction
// named after the operation when there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// StartTransaction opens a root transaction for work outside an HTTP request.
func StartTransaction(ctx context.Context, name, op string) (context.Context, *Span) {
	opts := []sentry.SpanOption{sentry.WithTransactionName(name)}
	if op != "" {
		opts = append(opts, sentry.WithOpName(op))
	}
	span := sentry.StartSpan(ctx, op, opts...)
	return span.Context(), &Span{inner: span}
}

func CaptureError(ctx context.Context, err error) {
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// AddBreadcrumb records a step on the request's scope for later events.
func AddBreadcrumb(ctx context.Context, category, message string) {
	crumb := &sentry.Breadcrumb{
		Type:      "default",
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(crumb, nil)
		return
	}
	sentry.AddBreadcrumb(crumb)
}
