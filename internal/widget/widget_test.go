package widget

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"visitcounter/internal/components/chrono"
	"visitcounter/internal/components/telemetry/telemetrytest"
	"visitcounter/internal/counterapi"
	"visitcounter/internal/page"
	"visitcounter/internal/session"
	"visitcounter/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const fullPage = `<html><body>
<span id="visitCount">…</span>
<span id="year">1999</span>
</body></html>`

const countOnlyPage = `<html><body><span id="visitCount">…</span></body></html>`

const yearOnlyPage = `<html><body><span id="year">1999</span></body></html>`

type fakeCounter struct {
	mu    sync.Mutex
	modes []counterapi.Mode
	count int64
	err   error
}

func (f *fakeCounter) Fetch(_ context.Context, mode counterapi.Mode) (counterapi.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return counterapi.Response{}, f.err
	}
	return counterapi.Response{ID: "test", Count: f.count}, nil
}

func (f *fakeCounter) calls() []counterapi.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]counterapi.Mode(nil), f.modes...)
}

type brokenStore struct {
	getErr error
	setErr error
	values map[string]string
}

func (s *brokenStore) Get(_ context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *brokenStore) Set(_ context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

var fixedClock = chrono.FixedTime(time.Date(2031, time.March, 4, 12, 0, 0, 0, time.UTC))

type harness struct {
	doc     *page.Document
	store   session.Store
	counter *fakeCounter
	tel     *telemetrytest.Recorder
	widget  Widget
}

func setup(t *testing.T, html string, store session.Store, counter *fakeCounter) harness {
	cleanup := telemetry.SetupForTesting(t, "test:widget")
	t.Cleanup(cleanup)

	doc, err := page.Load(strings.NewReader(html))
	require.NoError(t, err)

	tel := &telemetrytest.Recorder{}
	return harness{
		doc:     doc,
		store:   store,
		counter: counter,
		tel:     tel,
		widget: New(
			doc, store, counter,
			WithTimeAPI(fixedClock),
			WithTelemetryAPI(tel),
		),
	}
}

func (h harness) text(t *testing.T, id string) string {
	el, ok := h.doc.Element(id)
	require.True(t, ok, id)
	return el.Text()
}

func (h harness) flag(t *testing.T) (string, bool) {
	value, ok, err := h.store.Get(context.Background(), SessionFlagKey)
	require.NoError(t, err)
	return value, ok
}

func TestFreshSessionSuccess(t *testing.T) {
	h := setup(t, fullPage, session.NewMemoryStore(), &fakeCounter{count: 42})

	result := h.widget.Run(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, counterapi.ModeIncrement, result.Mode)
	require.Equal(t, "42", h.text(t, CountElementID))
	require.Equal(t, []counterapi.Mode{counterapi.ModeIncrement}, h.counter.calls())

	value, ok := h.flag(t)
	require.True(t, ok)
	require.Equal(t, "1", value)
	require.Empty(t, h.tel.Reports(telemetrytest.KindBroken))
}

func TestReloadSuccess(t *testing.T) {
	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), SessionFlagKey, "1"))
	h := setup(t, fullPage, store, &fakeCounter{count: 43})

	result := h.widget.Run(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, counterapi.ModeRead, result.Mode)
	require.Equal(t, "43", h.text(t, CountElementID))
	require.Equal(t, []counterapi.Mode{counterapi.ModeRead}, h.counter.calls())

	value, ok := h.flag(t)
	require.True(t, ok)
	require.Equal(t, "1", value)
}

func TestServiceDown(t *testing.T) {
	down := errors.New("connection refused")
	h := setup(t, fullPage, session.NewMemoryStore(), &fakeCounter{err: down})

	result := h.widget.Run(context.Background())
	require.ErrorIs(t, result.Err, down)
	require.Equal(t, FallbackGlyph, h.text(t, CountElementID))
	require.Equal(t, "—", result.Text)

	_, ok := h.flag(t)
	require.False(t, ok, "failures must not mark the session as counted")

	broken := h.tel.Reports(telemetrytest.KindBroken)
	require.Len(t, broken, 1)
	require.Equal(t, "widget: visit-counter", broken[0].ID)
	require.ErrorIs(t, broken[0].Params[0].(error), down)
}

func TestNonSuccessStatusKeepsIncrementMode(t *testing.T) {
	failure := &fakeCounter{err: counterapi.ErrUnexpectedStatus}
	store := session.NewMemoryStore()
	h := setup(t, fullPage, store, failure)

	h.widget.Run(context.Background())
	require.Equal(t, FallbackGlyph, h.text(t, CountElementID))

	// the next page load in the same session tries to count again
	failure.err = nil
	failure.count = 7
	next := setup(t, fullPage, store, failure)
	result := next.widget.Run(context.Background())
	require.Equal(t, counterapi.ModeIncrement, result.Mode)
	require.Equal(t, "7", next.text(t, CountElementID))
	require.Equal(t, []counterapi.Mode{counterapi.ModeIncrement, counterapi.ModeIncrement}, failure.calls())
}

func TestMalformedResponseFallsBack(t *testing.T) {
	h := setup(t, fullPage, session.NewMemoryStore(), &fakeCounter{err: counterapi.ErrMissingCount})

	result := h.widget.Run(context.Background())
	require.ErrorIs(t, result.Err, counterapi.ErrMissingCount)
	require.Equal(t, FallbackGlyph, h.text(t, CountElementID))
	_, ok := h.flag(t)
	require.False(t, ok)
}

func TestMissingCountElement(t *testing.T) {
	h := setup(t, yearOnlyPage, session.NewMemoryStore(), &fakeCounter{count: 1})

	result := h.widget.Run(context.Background())
	require.False(t, result.Requested)
	require.Empty(t, h.counter.calls())
	require.Empty(t, h.tel.Reports(telemetrytest.KindBroken))
	require.Empty(t, h.tel.Reports(telemetrytest.KindWarning))
	require.Equal(t, "2031", h.text(t, YearElementID))
}

func TestYearIndependentOfCounter(t *testing.T) {
	for _, counter := range []*fakeCounter{{count: 5}, {err: errors.New("down")}} {
		h := setup(t, fullPage, session.NewMemoryStore(), counter)
		result := h.widget.Run(context.Background())
		require.Equal(t, 2031, result.Year)
		require.Equal(t, "2031", h.text(t, YearElementID))
	}
}

func TestMissingYearElement(t *testing.T) {
	h := setup(t, countOnlyPage, session.NewMemoryStore(), &fakeCounter{count: 3})

	result := h.widget.Run(context.Background())
	require.Zero(t, result.Year)
	require.Equal(t, "3", h.text(t, CountElementID))

	var out bytes.Buffer
	require.NoError(t, h.doc.Render(&out))
	require.NotContains(t, out.String(), "2031")
}

func TestModeFollowsSessionFlag(t *testing.T) {
	store := session.NewMemoryStore()
	counter := &fakeCounter{count: 10}

	for i := 0; i < 4; i++ {
		h := setup(t, fullPage, store, counter)
		h.widget.Run(context.Background())
	}
	require.Equal(t, []counterapi.Mode{
		counterapi.ModeIncrement,
		counterapi.ModeRead,
		counterapi.ModeRead,
		counterapi.ModeRead,
	}, counter.calls())

	// a read failure later in the session never clears the flag
	counter.err = errors.New("down")
	h := setup(t, fullPage, store, counter)
	h.widget.Run(context.Background())
	value, ok := h.flag(t)
	require.True(t, ok)
	require.Equal(t, "1", value)
}

func TestSessionFlagReadFailure(t *testing.T) {
	store := &brokenStore{getErr: errors.New("disk gone"), values: map[string]string{}}
	h := setup(t, fullPage, store, &fakeCounter{count: 1})

	result := h.widget.Run(context.Background())
	require.False(t, result.Requested)
	require.Error(t, result.Err)
	require.Empty(t, h.counter.calls())
	require.Len(t, h.tel.Reports(telemetrytest.KindBroken), 1)
	require.Equal(t, FallbackGlyph, h.text(t, CountElementID))
}

func TestSessionFlagWriteFailure(t *testing.T) {
	store := &brokenStore{setErr: errors.New("read-only"), values: map[string]string{}}
	h := setup(t, fullPage, store, &fakeCounter{count: 9})

	result := h.widget.Run(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, "9", h.text(t, CountElementID))
	require.Empty(t, h.tel.Reports(telemetrytest.KindBroken))
	require.Len(t, h.tel.Reports(telemetrytest.KindWarning), 1)
}

func attributeMap(result Result) map[string]string {
	out := map[string]string{}
	for _, kv := range result.attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestResultAttributes(t *testing.T) {
	{
		h := setup(t, yearOnlyPage, session.NewMemoryStore(), &fakeCounter{count: 1})
		attrs := attributeMap(h.widget.Run(context.Background()))
		require.Equal(t, "false", attrs["requested"])
		require.NotContains(t, attrs, "mode", "no request, no mode")
	}
	{
		store := session.NewMemoryStore()
		require.NoError(t, store.Set(context.Background(), SessionFlagKey, "1"))
		h := setup(t, fullPage, store, &fakeCounter{count: 7})
		attrs := attributeMap(h.widget.Run(context.Background()))
		require.Equal(t, "true", attrs["requested"])
		require.Equal(t, "read", attrs["mode"])
		require.Equal(t, "7", attrs["text"])
	}
}
