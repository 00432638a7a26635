package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

const getCount = `select count from counter where id = ?`

func (q *Queries) GetCount(ctx context.Context, id string) (int64, error) {
	row := q.db.QueryRowContext(ctx, getCount, id)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const incrementCount = `insert into counter (id, count) values (?, 1)
on conflict (id) do update set count = counter.count + 1
returning count`

func (q *Queries) IncrementCount(ctx context.Context, id string) (int64, error) {
	row := q.db.QueryRowContext(ctx, incrementCount, id)
	var count int64
	err := row.Scan(&count)
	return count, err
}
