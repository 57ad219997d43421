package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/training"
	logsvc "github.com/fieldtrack/fieldtrack/services/logger"
	"github.com/fieldtrack/fieldtrack/storage/database"
	sqlxrepos "github.com/fieldtrack/fieldtrack/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Ping(ctx, db); err != nil {
		logger.Fatal(fmt.Sprintf("pinging database: %v", err), err)
	}

	program, err := training.LoadConfiguredProgram(conf.ProgramFile)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading training program: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		conf:    conf,
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(db),
		trainingSvc: training.NewService(
			program, db,
			sqlxrepos.NewSubmissionRepository(db),
			sqlxrepos.NewCompletionRepository(db),
			nil, // nobody listens to events here
		),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
