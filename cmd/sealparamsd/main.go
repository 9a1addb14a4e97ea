package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"
	sealparams "github.com/opst/sealparams/pkg"
	"github.com/opst/sealparams/pkg/configs"
	"github.com/opst/sealparams/pkg/utils/echoutil"
)

func main() {
	pconfig := flag.String(
		"config", os.Getenv("SEALPARAMS_CONFIG"), "path to config file",
	)
	loglevel := flag.String("loglevel", "", "log level. debug|info|warn|error|off. overrides config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conf, err := configs.LoadConfig(*pconfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can not read configuration: %s\n", err)
		os.Exit(1)
	}

	logger := log.New("sealparamsd")
	level := conf.LogLevel()
	if *loglevel != "" {
		level = *loglevel
	}
	lvl, ok := echoutil.ParseLevel(level)
	logger.SetLevel(lvl)
	if !ok {
		logger.Warnf("unknown loglevel: %s . fall-backed to warn", level)
	}

	comps, err := sealparams.Attach(ctx, conf, logger)
	if err != nil {
		logger.Fatalf("can not start: %+v", err)
	}

	if conf.Training().Secret() == "" {
		logger.Warn("training.secret is not set. POST /api/train refuses all requests.")
	}

	comps.Warm(ctx)
	if watching, err := comps.Watch(ctx); err != nil {
		logger.Fatalf("can not watch models: %+v", err)
	} else if watching {
		logger.Info("models are reloaded when another process installs one.")
	}

	server := BuildServer(comps.Service(), logger, ServerConfig{
		AllowOrigins:    conf.CORS().AllowOrigins(),
		TrainingSecret:  conf.Training().Secret(),
		TrainingTimeout: conf.Training().Timeout(),
	})
	for _, r := range server.Routes() {
		server.Logger.Debugf("- mount handler: %s %s", strings.ToUpper(r.Method), r.Path)
	}

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if err := server.Start(fmt.Sprintf(":%d", conf.Port())); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
		server.Logger.Infof("context has been done: %s, cause: %s", ctx.Err(), context.Cause(ctx))
	case err := <-ch:
		if err != nil {
			server.Logger.Error("server stops with error:", err)
			exit = 1
		}
	}

	server.Logger.Info("shutting down...")
	qctx, qcancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer qcancel()
	if err := server.Shutdown(qctx); err != nil {
		server.Logger.Errorf("Shutdown with error. %+v", err)
		exit = 1
	}
	comps.Close()
	os.Exit(exit)
}
