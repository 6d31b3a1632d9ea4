package http_server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/gologger"
	"github.com/danthegoodman1/parquetlayout/metastore"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type CustomContext struct {
	echo.Context
	RequestID string
}

func CreateReqContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := utils.GenRandomID("req_")
		ctx := context.WithValue(c.Request().Context(), gologger.ReqIDKey, reqID)
		l := logger.With().Str(string(gologger.ReqIDKey), reqID).Logger()
		ctx = l.WithContext(ctx)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(echo.HeaderXRequestID, reqID)
		cc := &CustomContext{
			Context:   c,
			RequestID: reqID,
		}
		return next(cc)
	}
}

// Casts to custom context for the handler, so this doesn't have to be done per handler
func ccHandler(h func(*CustomContext) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h(c.(*CustomContext))
	}
}

func (c *CustomContext) internalErrorMessage() string {
	return "internal error, request id: " + c.RequestID
}

func (c *CustomContext) InternalError(err error, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		zerolog.Ctx(c.Request().Context()).Warn().CallerSkipFrame(1).Msg(err.Error())
	} else {
		zerolog.Ctx(c.Request().Context()).Error().CallerSkipFrame(1).Err(err).Msg(msg)
	}
	return c.String(http.StatusInternalServerError, c.internalErrorMessage())
}

// RequestError answers with the status for a caller-caused error, and falls
// back to InternalError for anything else.
func (c *CustomContext) RequestError(err error, msg string) error {
	if status, ok := statusFor(err); ok {
		return c.String(status, err.Error())
	}
	return c.InternalError(err, msg)
}

func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, utils.ErrPathOutsideRoot):
		return http.StatusForbidden, true
	case errors.Is(err, utils.ErrFileNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, datastore.ErrNoParquetFiles):
		return http.StatusNotFound, true
	case errors.Is(err, utils.ErrColumnNotFound),
		errors.Is(err, utils.ErrIncomparableKeyType),
		errors.Is(err, utils.ErrUnreadableFile),
		errors.Is(err, utils.ErrNoStatistics):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, metastore.ErrCatalogNotMigrated):
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}
