// Package counterapi is the client of the visit counting endpoint.
package counterapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"visitcounter/internal/components/telemetry"
	"visitcounter/lib/restyutil"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("visitcounter/internal/counterapi")

var (
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrMalformedBody    = errors.New("malformed response body")
	ErrMissingCount     = errors.New("response has no count")
	ErrInvalidCount     = errors.New("response count is not a non-negative integer")
)

// Mode selects whether a request adds a visit before returning the count.
type Mode int

const (
	ModeIncrement Mode = iota
	ModeRead
)

// Method is the HTTP method the endpoint interprets as this mode.
func (m Mode) Method() string {
	if m == ModeRead {
		return http.MethodGet
	}
	return http.MethodPost
}

func (m Mode) String() string {
	switch m {
	case ModeIncrement:
		return "increment"
	case ModeRead:
		return "read"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

type Response struct {
	// ID is the name of the counter on the service side, it may be empty.
	ID    string
	Count int64
}

type Client struct {
	endpoint string
	http     *resty.Client
}

type clientConfig struct {
	tel    telemetry.API
	output restyutil.InstrumentOutput
	http   *resty.Client
}

type ClientOption func(cfg *clientConfig)

func WithTelemetry(tel telemetry.API) ClientOption {
	return func(cfg *clientConfig) {
		cfg.tel = tel
	}
}

// WithInstrumentOutput dumps full request/response pairs to the output
// while debug logging is enabled.
func WithInstrumentOutput(output restyutil.InstrumentOutput) ClientOption {
	return func(cfg *clientConfig) {
		cfg.output = output
	}
}

// WithRestyClient replaces the underlying http client.
func WithRestyClient(client *resty.Client) ClientOption {
	return func(cfg *clientConfig) {
		cfg.http = client
	}
}

// NewClient creates a client for the counting endpoint at endpointUrl. No
// timeout is set on the client, requests are bounded by their context.
func NewClient(endpointUrl string, options ...ClientOption) (Client, error) {
	parsed, err := url.Parse(endpointUrl)
	if err != nil {
		return Client{}, fmt.Errorf("parse endpoint url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Client{}, fmt.Errorf("endpoint url %q must be http or https", endpointUrl)
	}
	if parsed.Host == "" {
		return Client{}, fmt.Errorf("endpoint url %q has no host", endpointUrl)
	}

	cfg := clientConfig{tel: telemetry.SlogAPI{}}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.http == nil {
		cfg.http = resty.New()
	}

	telemetry.InstrumentResty(cfg.http, telemetry.NewScopedAPI("counterapi", cfg.tel))
	restyutil.InstrumentClient(cfg.http, tracer, cfg.output, describeExchange)

	return Client{
		endpoint: parsed.String(),
		http:     cfg.http,
	}, nil
}

// Fetch makes exactly one request to the endpoint, the request carries no
// body, headers or query of its own.
func (c Client) Fetch(ctx context.Context, mode Mode) (Response, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Execute(mode.Method(), c.endpoint)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", mode.Method(), c.endpoint, err)
	}
	if !res.IsSuccess() {
		return Response{}, fmt.Errorf("%w: HTTP %d", ErrUnexpectedStatus, res.StatusCode())
	}

	return parseResponse(res.Body())
}

// describeExchange annotates debug dumps with what the widget made of the
// response.
func describeExchange(res *resty.Response) []restyutil.Note {
	mode := ModeIncrement
	if res.Request.Method == ModeRead.Method() {
		mode = ModeRead
	}
	notes := []restyutil.Note{{Key: "mode", Value: mode.String()}}

	if !res.IsSuccess() {
		return append(notes, restyutil.Note{Key: "outcome", Value: ErrUnexpectedStatus.Error()})
	}
	parsed, err := parseResponse(res.Body())
	if err != nil {
		return append(notes, restyutil.Note{Key: "outcome", Value: err.Error()})
	}
	return append(notes,
		restyutil.Note{Key: "counter", Value: parsed.ID},
		restyutil.Note{Key: "count", Value: strconv.FormatInt(parsed.Count, 10)},
	)
}

// parseResponse fails closed: anything other than an object with an
// integral, non-negative count is an error.
func parseResponse(body []byte) (Response, error) {
	var fields map[string]json.RawMessage
	err := json.Unmarshal(body, &fields)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrMalformedBody, err)
	}

	raw := bytes.TrimSpace(fields["count"])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Response{}, ErrMissingCount
	}

	count, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s", ErrInvalidCount, raw)
	}
	if count < 0 {
		return Response{}, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	// the id is informational, a missing or non-string id is not an error
	var id string
	_ = json.Unmarshal(fields["id"], &id)

	return Response{ID: id, Count: count}, nil
}
