package main

import (
	"context"
	"log"
	"os"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
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

func main() {
	std := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(std, core.Conf)
	logger.Enable(!core.Conf.Debug)

	// set up the record store
	store, cleanup, err := openStore()
	errAndDie(logger, err)
	defer cleanup()

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	ledgerSvc := ledger.NewService(
		ledgerdb.NewLedgerRepository(store),
		ledgerdb.NewCourseProvider(store),
		logger,
		mailSvc,
	)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:   core.Conf.Server.Address(),
			LedgerSvc: ledgerSvc,
			Logger:    logger,
		},
	)
	app.Start()
}

func openStore() (docstore.Store, func(), error) {
	switch core.Conf.Store.Engine {
	case "postgres":
		store, err := pgstore.Open(core.Conf)
		if err != nil {
			return nil, nil, err
		}
		if err = store.Migrate(); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "mongo":
		store, err := mongostore.Open(core.Conf)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close(context.Background()) }, nil
	default:
		return memstore.Open(), func() {}, nil
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
