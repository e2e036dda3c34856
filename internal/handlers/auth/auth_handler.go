// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"
	"time"

	"questa-service/internal/account"
	authdomain "questa-service/internal/domain/auth"
	"questa-service/internal/domain/profile"
	"questa-service/internal/middleware"
	xerrors "questa-service/internal/pkg/errors"
	"questa-service/internal/pkg/response"
	"questa-service/internal/provider"
	"questa-service/internal/provider/local"
	ws "questa-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler exposes the account workflows over REST. Pre-auth requests
// run on a request-scoped manager whose recorded notices travel back in
// the response; authenticated requests go through the live manager in the
// registry, which also pushes over the websocket.
type AuthHandler struct {
	provider           *local.Provider
	profiles           provider.ProfileStore
	registry           *account.Registry
	hub                *ws.Hub
	logger             *zap.Logger
	confirmRedirectURL string
}

func NewAuthHandler(
	prov *local.Provider,
	profiles provider.ProfileStore,
	registry *account.Registry,
	hub *ws.Hub,
	logger *zap.Logger,
	confirmRedirectURL string,
) *AuthHandler {
	return &AuthHandler{
		provider:           prov,
		profiles:           profiles,
		registry:           registry,
		hub:                hub,
		logger:             logger,
		confirmRedirectURL: confirmRedirectURL,
	}
}

// transientManager builds a manager for one request: no broker
// subscription, notices and navigation recorded for the response.
func (h *AuthHandler) transientManager() (*account.Manager, *account.NoticeLog, *account.RouteLog) {
	notices := &account.NoticeLog{}
	routes := &account.RouteLog{}
	mgr := account.NewManager(account.Config{
		Provider:           h.provider,
		Profiles:           h.profiles,
		Notifier:           notices,
		Navigator:          routes,
		Logger:             h.logger,
		ConfirmRedirectURL: h.confirmRedirectURL,
	})
	return mgr, notices, routes
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req authdomain.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid signup payload", err)
		return
	}

	mgr, notices, _ := h.transientManager()
	if err := mgr.SignUp(c.Request.Context(), req.Email, req.Password, req.Username); err != nil {
		response.ErrorWithNotices(c, statusFor(err), "signup failed", err, notices.Notices())
		return
	}

	response.SuccessWithNotices(c, http.StatusCreated, "signup accepted", nil, notices.Notices(), "")
}

// SignIn handles POST /auth/signin
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req authdomain.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid signin payload", err)
		return
	}

	mgr, notices, routes := h.transientManager()
	if err := mgr.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		response.ErrorWithNotices(c, http.StatusUnauthorized, "signin failed", err, notices.Notices())
		return
	}

	sess := mgr.Session()
	prof := mgr.Profile()

	// Promote to a live manager so auth events reach this identity's
	// websocket connections from now on.
	if _, err := h.registry.Attach(c.Request.Context(), sess.Identity.ID, sess.AccessToken); err != nil {
		h.logger.Warn("failed to attach live manager",
			zap.String("identity_id", sess.Identity.ID),
			zap.Error(err),
		)
	}

	h.hub.PushAuthEvent(authdomain.Event{
		Type:       authdomain.EventSignedIn,
		IdentityID: sess.Identity.ID,
		OccurredAt: time.Now(),
	})

	route := ""
	if recorded := routes.Routes(); len(recorded) > 0 {
		route = recorded[len(recorded)-1]
	}

	response.SuccessWithNotices(c, http.StatusOK, "signed in", authdomain.SessionResponse{
		Session: sess,
		Profile: profile.NewView(prof),
	}, notices.Notices(), route)
}

// SignOut handles POST /auth/signout
func (h *AuthHandler) SignOut(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	token, _ := middleware.GetAccessToken(c)

	notices := &account.NoticeLog{}
	routes := &account.RouteLog{}

	if mgr, ok := h.registry.Get(identityID); ok {
		if err := mgr.SignOut(c.Request.Context()); err != nil {
			response.Error(c, statusFor(err), "signout failed", err)
			return
		}
		h.registry.Remove(identityID)
	} else {
		mgr := account.NewManager(account.Config{
			Provider:  h.provider,
			Profiles:  h.profiles,
			Notifier:  notices,
			Navigator: routes,
			Logger:    h.logger,
		})
		if err := mgr.RestoreSession(c.Request.Context(), token); err == nil {
			if err := mgr.SignOut(c.Request.Context()); err != nil {
				response.Error(c, statusFor(err), "signout failed", err)
				return
			}
		}
	}

	h.hub.PushAuthEvent(authdomain.Event{
		Type:       authdomain.EventSignedOut,
		IdentityID: identityID,
		OccurredAt: time.Now(),
	})
	h.hub.DisconnectIdentity(identityID, "signed out")

	route := "login"
	response.SuccessWithNotices(c, http.StatusOK, "signed out", nil, notices.Notices(), route)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, ok := middleware.GetAccessToken(c)
	if !ok {
		response.Unauthorized(c, "missing authorization token")
		return
	}

	sess, err := h.provider.Refresh(c.Request.Context(), token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "refresh failed", err)
		return
	}

	h.hub.PushAuthEvent(authdomain.Event{
		Type:       authdomain.EventTokenRefreshed,
		IdentityID: sess.Identity.ID,
		OccurredAt: time.Now(),
	})

	response.Success(c, http.StatusOK, "token refreshed", authdomain.SessionResponse{Session: sess})
}

// Session handles GET /auth/session
func (h *AuthHandler) Session(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	token, _ := middleware.GetAccessToken(c)

	mgr, err := h.registry.Attach(c.Request.Context(), identityID, token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "no live session", err)
		return
	}

	response.Success(c, http.StatusOK, "session", authdomain.SessionResponse{
		Session: mgr.Session(),
		Profile: profile.NewView(mgr.Profile()),
	})
}

// ConfirmEmail handles GET /auth/confirm?token=...&redirect_to=...
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.ValidationError(c, "missing confirmation token", nil)
		return
	}

	identity, err := h.provider.ConfirmEmail(c.Request.Context(), token)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "confirmation failed", err)
		return
	}

	if redirect := c.Query("redirect_to"); redirect != "" {
		c.Redirect(http.StatusFound, redirect)
		return
	}

	response.Success(c, http.StatusOK, "email confirmed", gin.H{
		"identity_id": identity.ID,
		"email":       identity.EmailAddress(),
	})
}

// statusFor maps workflow errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case xerrors.Is(err, xerrors.ErrUsernameTaken), xerrors.Is(err, xerrors.ErrAccountExists), xerrors.Is(err, xerrors.ErrConflict):
		return http.StatusConflict
	case xerrors.Is(err, xerrors.ErrNotAuthenticated), xerrors.Is(err, xerrors.ErrUnauthorized), xerrors.Is(err, xerrors.ErrSessionExpired):
		return http.StatusUnauthorized
	case xerrors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case xerrors.Is(err, xerrors.ErrInvalidInput), xerrors.Is(err, xerrors.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
