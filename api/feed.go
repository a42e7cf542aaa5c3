package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smks17/feed_distribution/lib/distribution"
	"github.com/smks17/feed_distribution/lib/feed"
)

const defaultPageSize = 20

type GetFeedPayload struct {
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Posts []feed.Post `json:"posts"`
}

type PostPayload struct {
	ID        uint32    `json:"id" validate:"required"`
	Author    uint32    `json:"author" validate:"required"`
	CreatedAt time.Time `json:"created_at" validate:"required"`
}

func (p PostPayload) ref() feed.PostRef {
	return feed.PostRef{ID: p.ID, Author: p.Author, CreatedAt: p.CreatedAt}
}

type FollowPayload struct {
	Follower uint32 `json:"follower" validate:"required"`
	Followee uint32 `json:"followee" validate:"required,nefield=Follower"`
}

type DeliveryPayload struct {
	Recipients int      `json:"recipients"`
	Failed     []uint32 `json:"failed"`
	Error      string   `json:"error,omitempty"`
}

func newDeliveryPayload(d distribution.Delivery) DeliveryPayload {
	ret := DeliveryPayload{Recipients: d.Recipients, Failed: d.Failed}
	if ret.Failed == nil {
		ret.Failed = []uint32{}
	}
	if d.Err != nil {
		ret.Error = d.Err.Error()
	}
	return ret
}

func (app *APP) getHomeFeedHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(chi.URLParam(r, "userID"), 10, 32)
	if err != nil {
		app.badRequest(w, r, fmt.Errorf("invalid user id: %w", err))
		return
	}
	page, limit, err := pagination(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	ids, err := app.engine.UserFeed(r.Context(), uint32(userID), page, limit)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.writeFeed(w, r, page, limit, ids)
}

func (app *APP) getGlobalFeedHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pagination(r)
	if err != nil {
		app.badRequest(w, r, err)
		return
	}

	ids, err := app.engine.GlobalFeed(r.Context(), page, limit)
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	app.writeFeed(w, r, page, limit, ids)
}

// writeFeed resolves ids into posts. Posts deleted from the store since they
// were cached are left out.
func (app *APP) writeFeed(w http.ResponseWriter, r *http.Request, page, limit int, ids []uint32) {
	posts, err := app.posts.FindPostsByIDs(r.Context(), ids)
	if err != nil {
		app.engineError(w, r, feed.Unavailable(err))
		return
	}
	if posts == nil {
		posts = []feed.Post{}
	}
	jsonResponse(w, http.StatusOK, GetFeedPayload{Page: page, Limit: limit, Posts: posts})
}

func (app *APP) publishPostHandler(w http.ResponseWriter, r *http.Request) {
	var payload PostPayload
	if !app.decode(w, r, &payload) {
		return
	}

	delivery, err := app.engine.Publish(r.Context(), payload.ref())
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, newDeliveryPayload(delivery))
}

func (app *APP) retractPostHandler(w http.ResponseWriter, r *http.Request) {
	var payload PostPayload
	if !app.decode(w, r, &payload) {
		return
	}

	delivery, err := app.engine.Retract(r.Context(), payload.ref())
	if err != nil {
		app.engineError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, newDeliveryPayload(delivery))
}

func (app *APP) followHandler(w http.ResponseWriter, r *http.Request) {
	var payload FollowPayload
	if !app.decode(w, r, &payload) {
		return
	}

	if err := app.engine.OnFollow(r.Context(), payload.Follower, payload.Followee); err != nil {
		app.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *APP) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	var payload FollowPayload
	if !app.decode(w, r, &payload) {
		return
	}

	if err := app.engine.OnUnfollow(r.Context(), payload.Follower, payload.Followee); err != nil {
		app.engineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *APP) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.cache.Ping(r.Context()); err != nil {
		app.requestLog(r, err).Warn("cache ping failed")
		writeJSONError(w, http.StatusServiceUnavailable, "cache unreachable")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads and validates a request body, answering 400 on failure.
func (app *APP) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := readJSON(w, r, payload); err != nil {
		app.badRequest(w, r, fmt.Errorf("invalid body: %w", err))
		return false
	}
	if err := app.validate.Struct(payload); err != nil {
		app.badRequest(w, r, err)
		return false
	}
	return true
}

func pagination(r *http.Request) (page, limit int, err error) {
	page, err = queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	limit, err = queryInt(r, "limit", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

var errBadQuery = errors.New("invalid query parameter")

func queryInt(r *http.Request, name string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w %s: %q", errBadQuery, name, raw)
	}
	return v, nil
}
