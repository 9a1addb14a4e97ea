package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	bindpred "github.com/opst/sealparams/pkg/api-types-binding/predictions"
	apierr "github.com/opst/sealparams/pkg/api/types/errors"
	apipred "github.com/opst/sealparams/pkg/api/types/predictions"
	"github.com/opst/sealparams/pkg/category"
	"github.com/opst/sealparams/pkg/model"
	"github.com/opst/sealparams/pkg/params"
	"github.com/opst/sealparams/pkg/serving"
)

type Predictor interface {
	Predict(context.Context, params.Request) (serving.Prediction, error)
}

func PredictHandler(predictor Predictor) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := apipred.Request{}
		if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
			return apierr.BadRequest(
				"invalid request",
				`request body should be a JSON object with "material_type", "print_coverage", "package_size" and "machine_id"`,
				err,
			)
		}

		req, err := body.Bind()
		if err != nil {
			return predictionError(err)
		}

		pred, err := predictor.Predict(c.Request().Context(), req)
		if err != nil {
			return predictionError(err)
		}

		return c.JSON(http.StatusOK, bindpred.ComposeResponse(pred))
	}
}

func predictionError(err error) error {
	if verr := new(params.ValidationError); errors.As(err, &verr) {
		return apierr.BadRequest("invalid request", strings.Join(verr.Problems, "; "), err)
	}
	if uerr := new(category.UnknownCategoryError); errors.As(err, &uerr) {
		return apierr.BadRequest(
			fmt.Sprintf("unknown %s: %s", uerr.Field, uerr.Value),
			fmt.Sprintf("available values for %s: %s", uerr.Field, strings.Join(uerr.Classes, ", ")),
			err,
		)
	}
	if errors.Is(err, category.ErrUnknownCategory) {
		return apierr.BadRequest("unknown category", "", err)
	}
	if errors.Is(err, model.ErrUnavailable) {
		return apierr.ServiceUnavailable(
			"model is not available",
			"train the model first with POST /api/train",
			err,
		)
	}
	if errors.Is(err, params.ErrInvalidCategoryCode) {
		return apierr.NewErrorMessage(
			http.StatusInternalServerError,
			"model predicted an invalid setup",
			apierr.WithAdvice("retrain the model. if it persists, ask your system admin."),
			apierr.WithError(err),
		)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierr.ServiceUnavailable("model is being loaded", "retry later", err)
	}
	return apierr.InternalServerError(err)
}
