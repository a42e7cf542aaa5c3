package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/smks17/feed_distribution/lib/distribution"
)

func (app *APP) requestLog(r *http.Request, err error) *logrus.Entry {
	return app.log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).WithError(err)
}

func (app *APP) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	app.requestLog(r, err).Debug("bad request")

	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *APP) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	app.requestLog(r, err).Warn("dependency unavailable")

	writeJSONError(w, http.StatusServiceUnavailable, "the feed store is unavailable")
}

func (app *APP) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.requestLog(r, err).Error("internal error")

	writeJSONError(w, http.StatusInternalServerError, "the server has a problem")
}

// engineError maps an error from the distribution engine to a response.
func (app *APP) engineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, distribution.ErrInvalidArgument):
		app.badRequest(w, r, err)
	case errors.Is(err, distribution.ErrStoreUnavailable):
		app.unavailable(w, r, err)
	case errors.Is(err, context.DeadlineExceeded):
		app.requestLog(r, err).Warn("request timed out")
		writeJSONError(w, http.StatusGatewayTimeout, "the request timed out")
	case errors.Is(err, context.Canceled):
		// the client is gone
		app.requestLog(r, err).Debug("request cancelled")
	default:
		app.internalServerError(w, r, err)
	}
}
