package counterapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"visitcounter/internal/components/telemetry/telemetrytest"
	"visitcounter/lib/telemetry"

	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	query  string
	body   string
}

type fakeEndpoint struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
	body     string
}

func (f *fakeEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method: r.Method,
		query:  r.URL.RawQuery,
		body:   string(body),
	})
	status, responseBody := f.status, f.body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(responseBody))
}

func (f *fakeEndpoint) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func setup(t *testing.T, status int, body string) (*fakeEndpoint, Client) {
	cleanup := telemetry.SetupForTesting(t, "test:counterapi")
	t.Cleanup(cleanup)

	endpoint := &fakeEndpoint{status: status, body: body}
	server := httptest.NewServer(endpoint)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/", WithTelemetry(&telemetrytest.Recorder{}))
	require.NoError(t, err)
	return endpoint, client
}

func TestFetchModes(t *testing.T) {
	endpoint, client := setup(t, http.StatusOK, `{"id": "cv.brtz1.com", "count": 42}`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	res, err := client.Fetch(ctx, ModeIncrement)
	require.NoError(t, err)
	require.Equal(t, Response{ID: "cv.brtz1.com", Count: 42}, res)

	_, err = client.Fetch(ctx, ModeRead)
	require.NoError(t, err)

	requests := endpoint.recorded()
	require.Len(t, requests, 2)
	require.Equal(t, http.MethodPost, requests[0].method)
	require.Equal(t, http.MethodGet, requests[1].method)
	for _, req := range requests {
		require.Empty(t, req.query)
		require.Empty(t, req.body)
	}
}

func TestFetchFailures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		err    error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"count": 1}`, err: ErrUnexpectedStatus},
		{name: "method not allowed", status: http.StatusMethodNotAllowed, body: `{"error": "Method not allowed"}`, err: ErrUnexpectedStatus},
		{name: "not json", status: http.StatusOK, body: `<html></html>`, err: ErrMalformedBody},
		{name: "array", status: http.StatusOK, body: `[42]`, err: ErrMalformedBody},
		{name: "missing count", status: http.StatusOK, body: `{"id": "x"}`, err: ErrMissingCount},
		{name: "null count", status: http.StatusOK, body: `{"count": null}`, err: ErrMissingCount},
		{name: "null body", status: http.StatusOK, body: `null`, err: ErrMissingCount},
		{name: "string count", status: http.StatusOK, body: `{"count": "42"}`, err: ErrInvalidCount},
		{name: "fractional count", status: http.StatusOK, body: `{"count": 4.2}`, err: ErrInvalidCount},
		{name: "negative count", status: http.StatusOK, body: `{"count": -1}`, err: ErrInvalidCount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, client := setup(t, tc.status, tc.body)
			_, err := client.Fetch(context.Background(), ModeRead)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(url, WithTelemetry(&telemetrytest.Recorder{}))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), ModeIncrement)
	require.Error(t, err)
}

func TestParseResponseIgnoresOddID(t *testing.T) {
	res, err := parseResponse([]byte(`{"id": 7, "count": 0}`))
	require.NoError(t, err)
	require.Equal(t, Response{Count: 0}, res)
}

func TestNewClientRejectsBadUrls(t *testing.T) {
	for _, endpoint := range []string{"", "ftp://example.com", "example.com/count", "http://"} {
		_, err := NewClient(endpoint)
		require.Error(t, err, endpoint)
	}
}

type memoryOutput struct {
	mu    sync.Mutex
	dumps []string
}

func (o *memoryOutput) Write(_ string, contents string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dumps = append(o.dumps, contents)
}

func (o *memoryOutput) written() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.dumps...)
}

func debugLogging(t *testing.T) {
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(previous) })
}

func TestDumpsDescribeExchange(t *testing.T) {
	debugLogging(t)

	endpoint := &fakeEndpoint{status: http.StatusOK, body: `{"id": "cv.brtz1.com", "count": 42}`}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	output := &memoryOutput{}
	client, err := NewClient(
		server.URL+"/",
		WithTelemetry(&telemetrytest.Recorder{}),
		WithInstrumentOutput(output),
	)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), ModeIncrement)
	require.NoError(t, err)

	endpoint.mu.Lock()
	endpoint.body = `{"count": "many"}`
	endpoint.mu.Unlock()
	_, err = client.Fetch(context.Background(), ModeRead)
	require.ErrorIs(t, err, ErrInvalidCount)

	dumps := output.written()
	require.Len(t, dumps, 2)

	require.Contains(t, dumps[0], "mode: increment\n")
	require.Contains(t, dumps[0], "counter: cv.brtz1.com\n")
	require.Contains(t, dumps[0], "count: 42\n")
	require.Contains(t, dumps[0], "POST "+server.URL+"/\n")
	require.Contains(t, dumps[0], "200 OK")

	require.Contains(t, dumps[1], "mode: read\n")
	require.Contains(t, dumps[1], "outcome: "+ErrInvalidCount.Error())
	require.Contains(t, dumps[1], "GET "+server.URL+"/\n")
}

func TestNoDumpsWithoutDebug(t *testing.T) {
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(previous) })

	endpoint := &fakeEndpoint{status: http.StatusOK, body: `{"count": 1}`}
	server := httptest.NewServer(endpoint)
	defer server.Close()

	output := &memoryOutput{}
	client, err := NewClient(server.URL+"/", WithTelemetry(&telemetrytest.Recorder{}), WithInstrumentOutput(output))
	require.NoError(t, err)
	_, err = client.Fetch(context.Background(), ModeRead)
	require.NoError(t, err)
	require.Empty(t, output.written())
}
