package tracing

import (
	"time"

	"example.com/admissions/services/pipeline/config"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Tracer brackets units of work with New Relic transactions and segments.
// Every method tolerates a nil transaction so callers never have to guard
// for the disabled case.
type Tracer interface {
	StartTransaction(name string) *newrelic.Transaction
	StartSpan(name string, txn *newrelic.Transaction) *newrelic.Segment
	EndTransaction(txn *newrelic.Transaction)
	RecordError(txn *newrelic.Transaction, err error)
	AddAttribute(txn *newrelic.Transaction, key string, value interface{})
	Application() *newrelic.Application
	Close()
}

// NewRelicTracer implements Tracer on the New Relic agent. Without a
// license key the tracer runs with a nil agent and every call is a no-op.
type NewRelicTracer struct {
	app *newrelic.Application
}

// NewTracer builds the tracer from config. A missing license key is not
// an error; it produces a disabled tracer.
func NewTracer(cfg config.TracingConfig) (Tracer, error) {
	if cfg.LicenseKey == "" {
		log.Warn().Msg("New Relic license key not provided, tracing will be disabled")
		return &NewRelicTracer{}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(cfg.DistribTracing),
		newrelic.ConfigAppLogForwardingEnabled(cfg.LogEnabled),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize New Relic")
	}

	log.Info().Str("app_name", cfg.AppName).Msg("New Relic tracing enabled")
	return &NewRelicTracer{app: app}, nil
}

// StartTransaction opens a named transaction, or returns nil when disabled.
func (t *NewRelicTracer) StartTransaction(name string) *newrelic.Transaction {
	if t.app == nil {
		return nil
	}
	return t.app.StartTransaction(name)
}

// StartSpan opens a segment inside txn. A nil txn yields an inert segment
// whose End is safe to call.
func (t *NewRelicTracer) StartSpan(name string, txn *newrelic.Transaction) *newrelic.Segment {
	if txn == nil {
		return &newrelic.Segment{}
	}
	return txn.StartSegment(name)
}

// EndTransaction finishes txn if one is open.
func (t *NewRelicTracer) EndTransaction(txn *newrelic.Transaction) {
	if txn != nil {
		txn.End()
	}
}

// RecordError attaches err to txn.
func (t *NewRelicTracer) RecordError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

// AddAttribute tags txn with a custom attribute.
func (t *NewRelicTracer) AddAttribute(txn *newrelic.Transaction, key string, value interface{}) {
	if txn != nil {
		txn.AddAttribute(key, value)
	}
}

// Application exposes the underlying agent so HTTP middleware can hook in.
// Returns nil when tracing is disabled.
func (t *NewRelicTracer) Application() *newrelic.Application {
	return t.app
}

// Close flushes buffered data and shuts the agent down.
func (t *NewRelicTracer) Close() {
	if t.app == nil {
		return
	}
	t.app.Shutdown(10 * time.Second)
	log.Info().Msg("New Relic tracer shutdown")
}
