package sqlstore

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

// Migrate applies every pending migration of the dialect.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	if d.Migrations == nil {
		return errors.Errorf("dialect %s has no migrations", d.Name)
	}
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(d.Migrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(d.Name); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Wrapf(err, "migrate %s", d.Name)
	}
	return nil
}
