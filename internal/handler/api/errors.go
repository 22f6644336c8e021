package api

import (
	"errors"
	"net/http"

	"SignalFuse/internal/domain/models"
	xhttp "SignalFuse/pkg/http"
)

// Engine error codes.
const (
	CodeInvalidParameter = xhttp.CodeInvalidParameter
	CodeStaleState       = "ERR_STALE_STATE"
	CodeUnknownDetector  = "ERR_UNKNOWN_DETECTOR"
	CodeInsufficientData = "ERR_INSUFFICIENT_DATA"
)

// toAppError maps the domain error taxonomy onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var (
		appErr *xhttp.AppError
		ipe    *models.InvalidParameterError
		stale  *models.StaleStateError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &ipe):
		return xhttp.NewAppError(CodeInvalidParameter, ipe.Param, ipe.Error(), http.StatusBadRequest).
			WithParam("detector", ipe.Detector).
			WithParam("value", ipe.Value).
			WithError(err)
	case errors.As(err, &stale):
		return xhttp.NewAppError(CodeStaleState, "", stale.Error(), http.StatusConflict).
			WithParam("symbol", stale.Symbol).
			WithParam("last_trade_date", stale.LastTradeDate.Format("2006-01-02")).
			WithError(err)
	case errors.Is(err, models.ErrUnknownDetector):
		return xhttp.NewAppError(CodeUnknownDetector, "name", err.Error(), http.StatusNotFound).WithError(err)
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.NewAppError(CodeInsufficientData, "", err.Error(), http.StatusNotFound).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
