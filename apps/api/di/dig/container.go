package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/fieldtrack/fieldtrack/apps/api/echo"
	"github.com/fieldtrack/fieldtrack/core"
	"github.com/fieldtrack/fieldtrack/core/audit"
	"github.com/fieldtrack/fieldtrack/core/notify"
	"github.com/fieldtrack/fieldtrack/core/training"
	"github.com/fieldtrack/fieldtrack/core/user"
	emailsvc "github.com/fieldtrack/fieldtrack/services/email"
	logsvc "github.com/fieldtrack/fieldtrack/services/logger"
	reportsvc "github.com/fieldtrack/fieldtrack/services/report"
	"github.com/fieldtrack/fieldtrack/storage/database"
	sqlxrepos "github.com/fieldtrack/fieldtrack/storage/database/sqlx"
)

const eventsBuffer = 64

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type ServerParams struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	Validate    *validator.Validate
	Translator  ut.Translator
	UserSvc     user.Service
	TrainingSvc training.Service
	AuditSvc    audit.Service
	MailSvc     core.EmailService
	Renderer    training.ReportRenderer
	Broker      *notify.Broker
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db, conf.Database.Engine); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db, db
}

func newProgram(conf *core.Config, logger core.Logger) *training.Program {
	program, err := training.LoadConfiguredProgram(conf.ProgramFile)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading training program: %v", err), err)
	}
	return program
}

func newBroker() *notify.Broker {
	return notify.NewBroker(eventsBuffer)
}

func newPublisher(broker *notify.Broker) notify.Publisher {
	return broker
}

func newRenderer(conf *core.Config) training.ReportRenderer {
	return reportsvc.NewPDFRenderer(conf.AppName)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Options{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		UserSvc:     p.UserSvc,
		TrainingSvc: p.TrainingSvc,
		AuditSvc:    p.AuditSvc,
		MailSvc:     p.MailSvc,
		Renderer:    p.Renderer,
		Broker:      p.Broker,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewSubmissionRepository))
	must(c.Provide(sqlxrepos.NewCompletionRepository))
	must(c.Provide(sqlxrepos.NewAuditRepository))

	// training
	must(c.Provide(newProgram))
	must(c.Provide(newBroker))
	must(c.Provide(newPublisher))
	must(c.Provide(newRenderer))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(training.NewService))
	must(c.Provide(audit.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
