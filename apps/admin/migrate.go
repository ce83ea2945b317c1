package main

import (
	"database/sql"
	"errors"
	"io/fs"

	"github.com/trezcool/goose"

	appfs "github.com/trezcool/darasa/fs"
)

var (
	errPostgresOnly = errors.New("migrations require the postgres store engine")

	// mockable
	gooseUpFunc   = goose.Up
	gooseDownFunc = goose.Down
	gooseRedoFunc = goose.Redo
)

func (cli *commandLine) migrate(args []string) error {
	if cli.pg == nil {
		return errPostgresOnly
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	run := func(fn func(*sql.DB, fs.FS, string) error) error {
		return fn(cli.pg.DB(), appfs.FS, "migrations")
	}

	switch command {
	case "up":
		return run(gooseUpFunc)
	case "down":
		return run(gooseDownFunc)
	case "redo":
		return run(gooseRedoFunc)
	default:
		cli.printUsage()
		return errHelp
	}
}
