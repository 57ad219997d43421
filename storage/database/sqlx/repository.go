// Package sqlxrepos implements the domain repositories on top of jmoiron/sqlx.
// Queries are written with `?` bind vars and rebound for the driver in use (postgres or sqlite).
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/fieldtrack/fieldtrack/core"
)

type repository struct {
	exec core.DBExecutor
}

// getExec returns the executor passed by the service (usually a transaction), or the default one.
func (repo repository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// whereClause accumulates AND-ed conditions and their args.
type whereClause struct {
	conds []string
	args  []interface{}
}

func (w *whereClause) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// selectAll expands IN clauses, rebinds the query and scans every row into dest.
func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return errors.Wrap(err, "expanding query")
	}
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(query), args...)
}

func getOne(ctx context.Context, exec core.DBExecutor, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, exec, dest, exec.Rebind(query), args...)
}

// execAffected runs a statement and returns the number of affected rows.
func execAffected(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (int, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "expanding query")
	}
	res, err := exec.ExecContext(ctx, exec.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	cnt, err := res.RowsAffected()
	return int(cnt), err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
