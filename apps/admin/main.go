package main

import (
	"fmt"
	"os"

	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
	emailsvc "github.com/trezcool/schoolerp/services/email"
	logsvc "github.com/trezcool/schoolerp/services/logger"
	"github.com/trezcool/schoolerp/storage"
	"github.com/trezcool/schoolerp/storage/database"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewWithOutput(os.Stderr, "ADMIN", conf) // stdout is for command output

	cli := &commandLine{conf: conf, logger: logger, out: os.Stdout}
	cleanup, err := cli.setup(os.Args)
	if err != nil {
		logger.Fatal(fmt.Sprintf("error: %v", err), err)
	}

	err = cli.run(os.Args)
	cleanup()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}

// setup only opens what the subcommand needs. The returned func releases it.
func (cli *commandLine) setup(args []string) (func(), error) {
	noop := func() {}
	if len(args) < 2 {
		return noop, nil
	}

	switch args[1] {
	case "migrate":
		db, err := database.Open(cli.conf)
		if err != nil {
			return noop, err
		}
		if err = database.Ping(db, 10); err != nil {
			_ = db.Close()
			return noop, err
		}
		cli.migrator = newMigrator(db.DB, cli.conf.Database.Engine)
		return func() { _ = db.Close() }, nil

	case "notify":
		repo, db, err := storage.NewLibraryRepository(cli.conf, cli.logger)
		if err != nil {
			return noop, err
		}
		core.ParseEmailTemplates(cli.logger, cli.conf.Debug || cli.conf.TestMode)

		var mailSvc core.EmailService
		if cli.conf.Debug {
			mailSvc = emailsvc.NewConsoleService(cli.conf)
		} else {
			mailSvc = emailsvc.NewSendgridService(cli.conf, cli.logger)
		}
		translator := core.NewTranslator()
		cli.librarySvc = library.NewService(library.Deps{
			Conf:       cli.conf,
			Logger:     cli.logger,
			Repo:       repo,
			MailSvc:    mailSvc,
			Validate:   core.NewValidate(translator),
			Translator: translator,
		})
		if db == nil {
			return noop, nil
		}
		return func() { _ = db.Close() }, nil
	}
	return noop, nil
}
