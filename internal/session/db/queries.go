package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type SessionFlag struct {
	SessionID string
	Key       string
	Value     string
	UpdatedAt int64
}

const getFlag = `select value from session_flags
where session_id = ? and key = ?`

type GetFlagParams struct {
	SessionID string
	Key       string
}

func (q *Queries) GetFlag(ctx context.Context, arg GetFlagParams) (string, error) {
	row := q.db.QueryRowContext(ctx, getFlag, arg.SessionID, arg.Key)
	var value string
	err := row.Scan(&value)
	return value, err
}

const setFlag = `insert into session_flags (session_id, key, value, updated_at)
values (?, ?, ?, ?)
on conflict (session_id, key) do update set
    value = excluded.value,
    updated_at = excluded.updated_at`

type SetFlagParams struct {
	SessionID string
	Key       string
	Value     string
	UpdatedAt int64
}

func (q *Queries) SetFlag(ctx context.Context, arg SetFlagParams) error {
	_, err := q.db.ExecContext(ctx, setFlag,
		arg.SessionID,
		arg.Key,
		arg.Value,
		arg.UpdatedAt,
	)
	return err
}

const deleteSession = `delete from session_flags where session_id = ?`

func (q *Queries) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSession, sessionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listFlags = `select session_id, key, value, updated_at from session_flags
order by updated_at desc, session_id, key`

func (q *Queries) ListFlags(ctx context.Context) ([]SessionFlag, error) {
	rows, err := q.db.QueryContext(ctx, listFlags)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SessionFlag
	for rows.Next() {
		var i SessionFlag
		if err := rows.Scan(
			&i.SessionID,
			&i.Key,
			&i.Value,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
