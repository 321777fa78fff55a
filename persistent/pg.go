package persistent

import (
	"context"
	"database/sql"
	"os"
	"reflect"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

func PgOpen(ctx context.Context, pgDsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(pgDsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		logrus.WithError(err).Fatalln("Could not ping pg database.")
	}

	bdb := bun.NewDB(sqldb, pgdialect.New())
	if os.Getenv("DB_VERBOSE") == "true" {
		bdb.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return bdb
}

func CreatePgSchema(ctx context.Context, db bun.IDB) error {
	models := []interface{}{
		(*PgProfile)(nil),
		(*PgCategory)(nil),
	}
	for _, model := range models {
		modelType := reflect.TypeOf(model)
		logrus.WithField("model", modelType).Debugln("Creating table.")
		_, err := db.NewCreateTable().IfNotExists().Model(model).Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Running integration tests requires a real pg instance. testenv starts one
// container and passes its dsn to every test through the environment.

func PgOpenTest(ctx context.Context) *bun.DB {
	db := PgOpen(ctx, PgTestEnvDsn())
	if err := CreatePgSchema(ctx, db); err != nil {
		logrus.WithError(err).Fatalln("Could not create pg schema.")
	}
	_, err := db.NewTruncateTable().Model((*PgProfile)(nil)).Exec(ctx)
	if err == nil {
		_, err = db.NewTruncateTable().Model((*PgCategory)(nil)).Exec(ctx)
	}
	if err != nil {
		logrus.WithError(err).Fatalln("Could not truncate test tables.")
	}
	return db
}

func PgTestEnvDsn() string {
	return os.Getenv("PGDB_DSN")
}

func SetPgTestEnvDsn(dsn string) {
	os.Setenv("PGDB_DSN", dsn)
}
