package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"visitcounter/internal/components/chrono"
	"visitcounter/internal/session/db"
)

// SQLStore keeps the values of one session in the session_flags table, see
// db.Schema.
type SQLStore struct {
	qry       *db.Queries
	sessionID string
	time      chrono.TimeAPI
}

func NewSQLStore(database *sql.DB, sessionID string) SQLStore {
	return SQLStore{
		qry:       db.New(database),
		sessionID: sessionID,
		time:      chrono.NewStandardTime(nil),
	}
}

func (s SQLStore) SessionID() string {
	return s.sessionID
}

func (s SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.qry.GetFlag(ctx, db.GetFlagParams{
		SessionID: s.sessionID,
		Key:       key,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session flag %q: %w", key, err)
	}
	return value, true, nil
}

func (s SQLStore) Set(ctx context.Context, key, value string) error {
	err := s.qry.SetFlag(ctx, db.SetFlagParams{
		SessionID: s.sessionID,
		Key:       key,
		Value:     value,
		UpdatedAt: s.time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("set session flag %q: %w", key, err)
	}
	return nil
}

// Clear ends the session by deleting everything stored in it, it returns
// the amount of values removed.
func (s SQLStore) Clear(ctx context.Context) (int64, error) {
	return s.qry.DeleteSession(ctx, s.sessionID)
}

// ListFlags returns every value of every session in the database, most
// recently written first.
func ListFlags(ctx context.Context, database *sql.DB) ([]db.SessionFlag, error) {
	return db.New(database).ListFlags(ctx)
}
