package repository

import (
	"context"
	"database/sql"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/orders-tracker/internal/common"
)

// builder returns an ent SQL builder bound to the store's dialect.
func (db *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(db.drv.Dialect())
}

// exec runs a write statement and reports the affected row count.
// Driver failures are marked common.ErrDatabase.
func (db *DB) exec(ctx context.Context, query string, args []any) (int64, error) {
	var res sql.Result
	if err := db.drv.Exec(ctx, query, args, &res); err != nil {
		return 0, storeError(err)
	}
	n, err := res.RowsAffected()
	return n, storeError(err)
}

// query runs a read statement; the caller closes the rows.
func (db *DB) query(ctx context.Context, query string, args []any) (*entsql.Rows, error) {
	rows := &entsql.Rows{}
	if err := db.drv.Query(ctx, query, args, rows); err != nil {
		return nil, storeError(err)
	}
	return rows, nil
}

func storeError(err error) error {
	return common.WrapError(err, common.ErrDatabase)
}

type scanner interface {
	Scan(dest ...any) error
}
