// Package widget implements the visit counter shown on the site's pages.
package widget

import (
	"context"
	"fmt"
	"strconv"

	"visitcounter/internal/components/chrono"
	"visitcounter/internal/components/telemetry"
	"visitcounter/internal/counterapi"
	"visitcounter/internal/page"
	"visitcounter/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("visitcounter/internal/widget")

const (
	YearElementID  = "year"
	CountElementID = "visitCount"

	// SessionFlagKey is where the widget records that the current session
	// has already been counted.
	SessionFlagKey = "cv_counted_this_session_v1"
	sessionFlagSet = "1"

	// FallbackGlyph is shown instead of a count when anything goes wrong.
	FallbackGlyph = "—"
)

const (
	report_visit_counter = "visit-counter"
	report_session_flag  = "session-flag"
)

// CounterAPI is the remote counting service.
//
// note: fault injection point
type CounterAPI interface {
	Fetch(ctx context.Context, mode counterapi.Mode) (counterapi.Response, error)
}

type Widget struct {
	dom     page.DOM
	store   session.Store
	counter CounterAPI
	time    chrono.TimeAPI
	tel     telemetry.API
}

type widgetConfig struct {
	time chrono.TimeAPI
	tel  telemetry.API
}

type Option func(cfg *widgetConfig)

func WithTimeAPI(time chrono.TimeAPI) Option {
	return func(cfg *widgetConfig) {
		cfg.time = time
	}
}

func WithTelemetryAPI(tel telemetry.API) Option {
	return func(cfg *widgetConfig) {
		cfg.tel = tel
	}
}

func New(dom page.DOM, store session.Store, counter CounterAPI, options ...Option) Widget {
	cfg := widgetConfig{
		time: chrono.NewStandardTime(nil),
		tel:  telemetry.SlogAPI{},
	}
	for _, opt := range options {
		opt(&cfg)
	}

	return Widget{
		dom:     dom,
		store:   store,
		counter: counter,
		time:    cfg.time,
		tel:     telemetry.NewScopedAPI("widget", cfg.tel),
	}
}

// Result describes what a single Run did.
type Result struct {
	// Year is 0 when there was no year element.
	Year int
	// Requested is false when no request was made because there was no
	// count element or the session flag could not be read.
	Requested bool
	Mode      counterapi.Mode
	// Text is what ended up in the count element, empty when there was no
	// count element.
	Text string
	// Err is the failure that caused the fallback glyph to be shown.
	Err error
}

// Run renders the year and the visit count into the document, it is meant to
// be called exactly once after the document has finished loading. Failures
// never propagate, they are reported and replaced with FallbackGlyph.
func (w Widget) Run(ctx context.Context) Result {
	ctx, span := tracer.Start(ctx, "widget:Run")
	defer span.End()

	var result Result
	result.Year = w.renderYear()

	el, ok := w.dom.Element(CountElementID)
	if !ok {
		span.AddEvent("no count element")
		return result
	}

	w.renderCount(ctx, el, &result)

	span.SetAttributes(result.attributes()...)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "visit count unavailable")
	}
	return result
}

// attributes describes the result on a span, the mode only when a request
// was actually made.
func (r Result) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool("requested", r.Requested),
		attribute.String("text", r.Text),
	}
	if r.Requested {
		attrs = append(attrs, attribute.String("mode", r.Mode.String()))
	}
	return attrs
}

func (w Widget) renderYear() int {
	el, ok := w.dom.Element(YearElementID)
	if !ok {
		return 0
	}
	year := w.time.Now().Year()
	el.SetText(fmt.Sprintf("%04d", year))
	return year
}

func (w Widget) renderCount(ctx context.Context, el page.Element, result *Result) {
	flag, _, err := w.store.Get(ctx, SessionFlagKey)
	if err != nil {
		w.fail(el, result, fmt.Errorf("read session flag: %w", err))
		return
	}

	mode := counterapi.ModeIncrement
	if flag == sessionFlagSet {
		mode = counterapi.ModeRead
	}
	result.Mode = mode
	result.Requested = true

	res, err := w.counter.Fetch(ctx, mode)
	if err != nil {
		w.fail(el, result, err)
		return
	}

	result.Text = strconv.FormatInt(res.Count, 10)
	el.SetText(result.Text)
	w.tel.ReportCount(report_visit_counter, res.Count)

	if mode != counterapi.ModeIncrement {
		return
	}
	err = w.store.Set(ctx, SessionFlagKey, sessionFlagSet)
	if err != nil {
		// the visit was counted, the next run in this session will count it again
		w.tel.ReportWarning(report_session_flag, err)
	}
}

func (w Widget) fail(el page.Element, result *Result, err error) {
	w.tel.ReportBroken(report_visit_counter, err)
	result.Err = err
	result.Text = FallbackGlyph
	el.SetText(FallbackGlyph)
}
