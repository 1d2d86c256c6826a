// Package storage picks the library data backend from the configuration.
package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	"github.com/trezcool/schoolerp/storage/database"
	inmemdb "github.com/trezcool/schoolerp/storage/database/inmem"
	"github.com/trezcool/schoolerp/storage/database/sqlxrepos"
	"github.com/trezcool/schoolerp/storage/restdb"
)

// Backends
const (
	SQL    = "sql"
	REST   = "rest"
	Memory = "memory"
)

// NewLibraryRepository sets up the configured backend.
// db is only returned for the SQL backend; the caller closes it.
func NewLibraryRepository(conf *core.Config, logger core.Logger) (repo library.Repository, db *sqlx.DB, err error) {
	switch conf.Storage {
	case SQL:
		if db, err = database.Setup(conf); err != nil {
			return nil, nil, errors.Wrap(err, "setting up database")
		}
		logger.Info(fmt.Sprintf("using %s database %q", conf.Database.Engine, conf.Database.Name))
		return sqlxrepos.NewLibraryRepository(db), db, nil
	case REST:
		if conf.Rest.URL == "" {
			return nil, nil, errors.New("rest storage: REST_URL is not set")
		}
		logger.Info(fmt.Sprintf("using the REST data API at %s", conf.Rest.URL))
		return restdb.NewLibraryRepository(conf, logger), nil, nil
	case Memory:
		logger.Warn("using in-memory storage: nothing will be persisted")
		mem, err := inmemdb.Open()
		if err != nil {
			return nil, nil, err
		}
		return inmemdb.NewLibraryRepository(mem), nil, nil
	}
	return nil, nil, errors.Errorf("unknown storage %q (want sql, rest or memory)", conf.Storage)
}
