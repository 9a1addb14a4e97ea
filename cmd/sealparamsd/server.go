package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/opst/sealparams/cmd/sealparamsd/handlers"
	"github.com/opst/sealparams/pkg/auth"
	"github.com/opst/sealparams/pkg/utils/echoutil"
)

var API_ROOT = "/api"

func api(subpath string) string {
	return fmt.Sprintf("%s/%s", API_ROOT, strings.TrimPrefix(subpath, "/"))
}

type Service interface {
	handlers.Predictor
	handlers.Trainer
	handlers.ModelInspector
}

type ServerConfig struct {
	AllowOrigins    []string
	TrainingSecret  string
	TrainingTimeout time.Duration
}

func BuildServer(svc Service, logger *log.Logger, conf ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger = logger

	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(echoutil.LogHandlerFunc)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.AllowOrigins,
		AllowHeaders: []string{
			echo.HeaderContentType, echo.HeaderAuthorization, auth.HeaderAPIKey,
		},
	}))

	e.POST(api("predict"), handlers.PredictHandler(svc))
	e.POST(
		api("train"),
		handlers.TrainHandler(svc, conf.TrainingTimeout),
		auth.Middleware(conf.TrainingSecret),
	)
	e.GET(api("health"), handlers.HealthHandler(svc))
	e.GET(api("model"), handlers.ModelInfoHandler(svc))

	return e
}
