package main

import (
	"database/sql"

	"github.com/trezcool/schoolerp/storage/database"
)

// migrator runs goose commands against the embedded migrations.
type migrator func(command string, args ...string) error

var runMigrationsFunc = database.RunMigrations // mockable

func newMigrator(db *sql.DB, engine string) migrator {
	return func(command string, args ...string) error {
		return runMigrationsFunc(db, engine, command, args...)
	}
}

func (cli *commandLine) migrate(args []string) error {
	return cli.migrator(args[0], args[1:]...)
}
