package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	bindmodels "github.com/opst/sealparams/pkg/api-types-binding/models"
	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/serving"
)

type ModelInspector interface {
	Info(context.Context) (serving.Info, error)
	Installed() (*model.Artifact, bool)
}

// HealthHandler reports the installed model. It never loads one.
func HealthHandler(inspector ModelInspector) echo.HandlerFunc {
	return func(c echo.Context) error {
		a, _ := inspector.Installed()
		return c.JSON(http.StatusOK, bindmodels.ComposeHealth(a))
	}
}

func ModelInfoHandler(inspector ModelInspector) echo.HandlerFunc {
	return func(c echo.Context) error {
		info, err := inspector.Info(c.Request().Context())
		if err != nil {
			return predictionError(err)
		}
		return c.JSON(http.StatusOK, bindmodels.ComposeInfo(info))
	}
}
