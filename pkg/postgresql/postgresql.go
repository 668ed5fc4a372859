package postgresql

import (
	"database/sql"
	"sync"

	_ "github.com/lib/pq"

	"github.com/fuegoaustral/ticketera-sub000/config"
	"github.com/fuegoaustral/ticketera-sub000/pkg/applogger"
)

var (
	db   *sql.DB
	once sync.Once
)

func GetDatabase() *sql.DB {
	once.Do(func() {
		c := config.Get()

		d, err := sql.Open("postgres", c.Postgres.DSN)
		if err != nil {
			applogger.GetLogrus().WithError(err).Fatal("failed to open postgres connection")
		}

		d.SetMaxOpenConns(c.Postgres.MaxOpenConns)
		d.SetMaxIdleConns(c.Postgres.MaxIdleConns)
		d.SetConnMaxLifetime(c.Postgres.MaxLifetime)

		db = d
	})

	return db
}
