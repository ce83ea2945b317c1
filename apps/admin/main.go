package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/ledger"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/docstore"
	"github.com/trezcool/darasa/storage/docstore/memstore"
	"github.com/trezcool/darasa/storage/docstore/mongostore"
	"github.com/trezcool/darasa/storage/docstore/pgstore"
	"github.com/trezcool/darasa/storage/ledgerdb"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	appLogger := logsvc.NewRollbarLogger(logger, core.Conf)
	appLogger.Enable(false)

	// set up the record store
	var (
		store   docstore.Store
		pg      *pgstore.Store
		cleanup = func() {}
	)
	switch core.Conf.Store.Engine {
	case "postgres":
		s, err := pgstore.Open(core.Conf)
		errAndDie(err)
		pg = s
		store = s
		cleanup = func() { _ = s.Close() }
	case "mongo":
		s, err := mongostore.Open(core.Conf)
		errAndDie(err)
		store = s
		cleanup = func() { _ = s.Close(context.Background()) }
	default:
		store = memstore.Open()
	}
	defer cleanup()

	svc := ledger.NewService(
		ledgerdb.NewLedgerRepository(store),
		ledgerdb.NewCourseProvider(store),
		appLogger,
		emailsvc.NewConsoleService(),
	)

	// start CLI
	cli := commandLine{
		store: store,
		pg:    pg,
		svc:   svc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
