package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"schedule-planner/board"
	"schedule-planner/domain"
)

// parseTags accepts both repeated and comma separated tags parameters.
func parseTags(values []string) []string {
	var tags []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	return tags
}

func getBoard(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, spanCtx := newBoardRequestMetrics(c.Request().Context(), logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx := spanCtx
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, status, authErr := authorize(c, auth, store)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			return fail(c, status, authErr.Error())
		}

		filterStatus, parseErr := board.ParseStatus(c.QueryParam("status"))
		if parseErr != nil {
			metrics.SetErrorStage("invalid_status")
			return fail(c, http.StatusBadRequest, parseErr.Error())
		}
		filter := board.Filter{Status: filterStatus, Tags: parseTags(c.QueryParams()["tags"])}
		metrics.SetFilter(string(filter.Status), len(filter.Tags))

		now := clock()
		if raw := c.QueryParam("now"); raw != "" {
			t, tsErr := domain.ParseTimestamp(raw)
			if tsErr != nil {
				metrics.SetErrorStage("invalid_now")
				return fail(c, http.StatusBadRequest, "invalid now")
			}
			now = t
		}

		fetchStart := time.Now()
		records, fetchErr := store.FetchTasks(ctx, userID)
		var settings domain.Settings
		if fetchErr == nil {
			settings, fetchErr = store.FetchSettings(ctx, userID)
		}
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			return fail(c, http.StatusInternalServerError, "failed to load board")
		}

		arrangeStart := time.Now()
		view := board.Arrange(records, filter, now, board.OptionsFromSettings(settings))
		metrics.ObserveArrange(time.Since(arrangeStart))
		metrics.SetResult(len(view.Tasks), view.Excluded)
		if view.Excluded > 0 {
			logger.WithFields(log.Fields{"user": userID, "excluded": view.Excluded}).Debug("board excluded malformed records")
		}

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, view)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getSettings(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, status, err := authorize(c, auth, store)
		if err != nil {
			return fail(c, status, err.Error())
		}
		settings, err := store.FetchSettings(c.Request().Context(), userID)
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "failed to fetch settings")
		}
		return c.JSON(http.StatusOK, settings)
	}
}

func putSettings(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, status, err := authorize(c, auth, store)
		if err != nil {
			return fail(c, status, err.Error())
		}
		var settings domain.Settings
		if err := decodeBody(c, &settings, true); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
		if err := settings.Validate(); err != nil {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		if err := store.SaveSettings(c.Request().Context(), userID, settings); err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "failed to save settings")
		}
		return c.JSON(http.StatusOK, settings)
	}
}
