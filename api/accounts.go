package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"schedule-planner/domain"
	"schedule-planner/storage"
)

const invalidCredentials = "invalid username or password"

type registerResponse struct {
	Message string      `json:"message"`
	User    domain.User `json:"user"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      domain.User `json:"user"`
}

func register(store UserStore, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		var creds domain.Credentials
		if err := decodeBody(c, &creds, true); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
		if err := creds.ValidateRegistration(); err != nil {
			return fail(c, http.StatusBadRequest, err.Error())
		}

		if _, err := store.GetUserByName(ctx, creds.Username); err == nil {
			return fail(c, http.StatusConflict, "username already exists")
		} else if !errors.Is(err, storage.ErrNotFound) {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "failed to create user")
		}

		now := clock().UTC()
		u := domain.User{
			ID:        uuid.NewString(),
			Username:  creds.Username,
			Role:      domain.RoleUser,
			Status:    domain.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := u.SetPassword(creds.Password); err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "failed to create user")
		}
		if err := store.InsertUser(ctx, u); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return fail(c, http.StatusConflict, "username already exists")
			}
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "failed to create user")
		}
		logger.WithField("user", u.ID).Info("user registered")
		return c.JSON(http.StatusCreated, registerResponse{Message: "registered", User: u})
	}
}

func login(store UserStore, tokens TokenIssuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var creds domain.Credentials
		if err := decodeBody(c, &creds, true); err != nil {
			return fail(c, http.StatusBadRequest, "invalid body")
		}
		u, err := store.GetUserByName(c.Request().Context(), strings.TrimSpace(creds.Username))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fail(c, http.StatusUnauthorized, invalidCredentials)
			}
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "login failed")
		}
		if err := u.CheckPassword(creds.Password); err != nil {
			return fail(c, http.StatusUnauthorized, invalidCredentials)
		}
		if !u.IsActive() {
			return fail(c, http.StatusForbidden, "account is "+u.Status)
		}
		token, exp, err := tokens.IssueToken(u.ID)
		if err != nil {
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "failed to issue token")
		}
		return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: exp.UTC(), User: u})
	}
}
