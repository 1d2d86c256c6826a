package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/schoolerp/apps/api/echo"
	"github.com/trezcool/schoolerp/core"
	"github.com/trezcool/schoolerp/core/library"
)

type runParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	DBLogger   core.Logger `name:"dbLogger"`
	DB         *sqlx.DB
	LibrarySvc *library.Service
	Server     *echoapi.Server
}

func main() {
	must(newContainer().Invoke(run))
}

func run(p runParams) {
	conf, apiLogger := p.Conf, p.Logger

	// =========================================================================
	// Initialize App

	apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

	core.ParseEmailTemplates(apiLogger, conf.Debug || conf.TestMode)

	if p.DB != nil {
		defer func() {
			if err := p.DB.Close(); err != nil {
				p.DBLogger.Error(fmt.Sprintf("Failed to close: %v", err), err)
			}
		}()
	}
	defer apiLogger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Library Notifications Schedule (optional)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if conf.Library.NotifyInterval > 0 {
		apiLogger.Info(fmt.Sprintf("library notifications scheduled every %v", conf.Library.NotifyInterval))
		sched := library.NewScheduler(p.LibrarySvc, conf.Library.NotifyInterval)
		sched.Start(ctx)
		defer func() {
			cancel()
			<-sched.Done()
		}()
	}

	// =========================================================================
	// Start API Service

	go func() {
		p.Server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-p.Server.Errors():
		apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-p.Server.ShutdownSignal():
		apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := p.Server.Shutdown(ctx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = p.Server.Close(); err != nil {
				apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
