package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// AppendRows streams rows into table over the COPY protocol. Every row must
// carry one value per column; a short or long row fails the whole batch
// before anything is sent.
func AppendRows(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, eris.Errorf("db: append %s: row %d has %d values, want %d", table, i, len(r), len(columns))
		}
	}

	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) { return rows[i], nil })
	n, err := pool.CopyFrom(ctx, identifier(table), columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: append %s", table)
	}
	return n, nil
}
