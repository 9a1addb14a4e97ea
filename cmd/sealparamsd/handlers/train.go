package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	bindtraining "github.com/opst/sealparams/pkg/api-types-binding/training"
	apierr "github.com/opst/sealparams/pkg/api/types/errors"
	"github.com/opst/sealparams/pkg/serving"
	"github.com/opst/sealparams/pkg/training"
)

type Trainer interface {
	Train(context.Context) (*training.Report, error)
}

// TrainHandler retrains the model.
//
// Training goes on when the client disconnects, but stops after timeout.
func TrainHandler(trainer Trainer, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), timeout)
		defer cancel()

		report, err := trainer.Train(ctx)
		if err != nil {
			return trainingError(err)
		}

		return c.JSON(http.StatusOK, bindtraining.ComposeResponse(report))
	}
}

func trainingError(err error) error {
	if errors.Is(err, serving.ErrTrainingInProgress) {
		return apierr.Conflict("training is in progress", apierr.WithAdvice("retry later"), apierr.WithError(err))
	}
	if ierr := new(training.InsufficientDataError); errors.As(err, &ierr) {
		return apierr.BadRequest(
			ierr.Error(),
			"record more successful attempts before training",
			err,
		)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.NewErrorMessage(
			http.StatusInternalServerError,
			"training timed out",
			apierr.WithAdvice("the previous model is still in service."),
			apierr.WithError(err),
		)
	}
	return apierr.InternalServerError(err)
}
