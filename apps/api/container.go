package main

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/schoolerp/apps/api/echo"
	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	emailsvc "github.com/trezcool/schoolerp/services/email"
	logsvc "github.com/trezcool/schoolerp/services/logger"
	"github.com/trezcool/schoolerp/storage"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type (
	storageResult struct {
		dig.Out
		Repo library.Repository
		DB   *sqlx.DB // nil unless the storage is "sql"
	}

	serviceParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Repo       library.Repository
		MailSvc    core.EmailService
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	return logsvc.New("API", conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.New("DB", conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) storageResult {
	repo, db, err := storage.NewLibraryRepository(conf, loggerParam.Logger)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	return storageResult{Repo: repo, DB: db}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newLibraryService(p serviceParams) *library.Service {
	return library.NewService(library.Deps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Repo:       p.Repo,
		MailSvc:    p.MailSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	svc *library.Service,
	validate *validator.Validate,
	translator ut.Translator,
) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		LibrarySvc: svc,
		Validate:   validate,
		Translator: translator,
	})
}

// newContainer returns the dependency injection dig.Container of the API.
func newContainer() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(core.NewValidate))
	must(c.Provide(newLibraryService))
	must(c.Provide(newServer))

	if os.Getenv("DIG_VISUALIZE") != "" {
		_ = dig.Visualize(c, os.Stdout)
	}
	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
