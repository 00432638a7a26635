// Package counter implements the HTTP endpoint that stores the visit count.
//
// GET returns the count, POST adds one visit and returns the new count,
// OPTIONS answers CORS preflights, every other method is rejected.
package counter

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"visitcounter/internal/components/telemetry"
	"visitcounter/services/counter/db"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("visitcounter/services/counter")

const (
	DefaultCounterID     = "cv.brtz1.com"
	DefaultAllowedOrigin = "*"
	defaultCacheTTL      = time.Second * 5
)

const (
	report_db_query       = "db.query"
	report_visit_count    = "visits"
	report_write_response = "write-response"
)

type countResponse struct {
	ID    string `json:"id"`
	Count int64  `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Service struct {
	qry           *db.Queries
	counterID     string
	allowedOrigin string
	tel           telemetry.API

	// lock orders cache fills against increments so a slow read can never
	// overwrite a newer count
	lock  sync.Mutex
	cache *cache.Cache
}

type serviceConfig struct {
	counterID     string
	allowedOrigin string
	cacheTTL      time.Duration
	tel           telemetry.API
}

type Option func(cfg *serviceConfig)

func WithCounterID(id string) Option {
	return func(cfg *serviceConfig) {
		cfg.counterID = id
	}
}

func WithAllowedOrigin(origin string) Option {
	return func(cfg *serviceConfig) {
		cfg.allowedOrigin = origin
	}
}

// WithCacheTTL sets how long a read count is served from memory, 0 disables
// the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cfg *serviceConfig) {
		cfg.cacheTTL = ttl
	}
}

func WithTelemetryAPI(tel telemetry.API) Option {
	return func(cfg *serviceConfig) {
		cfg.tel = tel
	}
}

func NewService(database *sql.DB, options ...Option) *Service {
	cfg := serviceConfig{
		counterID:     DefaultCounterID,
		allowedOrigin: DefaultAllowedOrigin,
		cacheTTL:      defaultCacheTTL,
		tel:           telemetry.SlogAPI{},
	}
	for _, opt := range options {
		opt(&cfg)
	}

	var counts *cache.Cache
	if cfg.cacheTTL > 0 {
		counts = cache.New(cfg.cacheTTL, cfg.cacheTTL*2)
	}

	return &Service{
		qry:           db.New(database),
		counterID:     cfg.counterID,
		allowedOrigin: cfg.allowedOrigin,
		tel:           telemetry.NewScopedAPI("counter", cfg.tel),
		cache:         counts,
	}
}

// CounterID is the name of the counter this service reads and increments.
func (s *Service) CounterID() string {
	return s.counterID
}

// Count returns the current count, a counter that was never incremented
// reads as 0.
func (s *Service) Count(ctx context.Context) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cache != nil {
		cached, hit := s.cache.Get(s.counterID)
		if hit {
			return cached.(int64), nil
		}
	}

	count, err := s.qry.GetCount(ctx, s.counterID)
	if errors.Is(err, sql.ErrNoRows) {
		count, err = 0, nil
	}
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		s.cache.SetDefault(s.counterID, count)
	}
	return count, nil
}

// Increment adds one visit and returns the new count.
func (s *Service) Increment(ctx context.Context) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	count, err := s.qry.IncrementCount(ctx, s.counterID)
	if err != nil {
		if s.cache != nil {
			s.cache.Delete(s.counterID)
		}
		return 0, err
	}

	if s.cache != nil {
		s.cache.SetDefault(s.counterID, count)
	}
	s.tel.ReportCount(report_visit_count, count)
	return count, nil
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "counter:ServeHTTP")
	defer span.End()
	span.SetAttributes(attribute.String("method", r.Method))

	w.Header().Set("Access-Control-Allow-Origin", s.allowedOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

	var (
		count int64
		err   error
	)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
		count, err = s.Count(ctx)
	case http.MethodPost:
		count, err = s.Increment(ctx)
	default:
		s.writeJson(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}

	if err != nil {
		s.tel.ReportBroken(report_db_query, err, r.Method)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query counter")
		s.writeJson(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int64("count", count))
	s.writeJson(w, http.StatusOK, countResponse{ID: s.counterID, Count: count})
}

func (s *Service) writeJson(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.tel.ReportWarning(report_write_response, err)
	}
}
