// internal/handlers/profile/profile_handler.go
package profile

import (
	"net/http"

	"questa-service/internal/account"
	profiledomain "questa-service/internal/domain/profile"
	"questa-service/internal/middleware"
	xerrors "questa-service/internal/pkg/errors"
	"questa-service/internal/pkg/response"
	"questa-service/internal/profileedit"
	"questa-service/internal/provider"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProfileHandler serves the signed-in user's profile and runs the edit
// workflow over a multipart form: text fields plus an optional avatar part.
type ProfileHandler struct {
	registry *account.Registry
	profiles provider.ProfileStore
	bucket   provider.Bucket
	logger   *zap.Logger
}

func NewProfileHandler(
	registry *account.Registry,
	profiles provider.ProfileStore,
	bucket provider.Bucket,
	logger *zap.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		registry: registry,
		profiles: profiles,
		bucket:   bucket,
		logger:   logger,
	}
}

// GetMe handles GET /profiles/me
func (h *ProfileHandler) GetMe(c *gin.Context) {
	mgr, ok := h.attach(c)
	if !ok {
		return
	}

	prof := mgr.Profile()
	if prof == nil {
		response.NotFound(c, "profile not found")
		return
	}

	response.Success(c, http.StatusOK, "profile", profiledomain.NewView(prof))
}

// Submit handles PUT /profiles/me (multipart form)
func (h *ProfileHandler) Submit(c *gin.Context) {
	mgr, ok := h.attach(c)
	if !ok {
		return
	}

	var req profiledomain.SubmitRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ValidationError(c, "invalid profile payload", err)
		return
	}

	notices := &account.NoticeLog{}
	editor := profileedit.NewEditor(mgr, h.profiles, h.bucket, notices, h.logger)
	editor.SetUsername(req.Username)
	editor.SetDisplayName(req.DisplayName)
	editor.SetBio(req.Bio)

	if fileHeader, err := c.FormFile("avatar"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			response.ValidationError(c, "failed to read avatar upload", err)
			return
		}
		defer file.Close()

		editor.AttachAvatar(&profileedit.AvatarUpload{
			Filename:    fileHeader.Filename,
			ContentType: fileHeader.Header.Get("Content-Type"),
			Size:        fileHeader.Size,
			Content:     file,
		})
	}

	if err := editor.Submit(c.Request.Context()); err != nil {
		response.ErrorWithNotices(c, submitStatus(err), "profile update failed", err, notices.Notices())
		return
	}

	response.SuccessWithNotices(c, http.StatusOK, "profile updated",
		profiledomain.NewView(mgr.Profile()), notices.Notices(), "")
}

func (h *ProfileHandler) attach(c *gin.Context) (*account.Manager, bool) {
	identityID := middleware.MustGetIdentityID(c)
	token, _ := middleware.GetAccessToken(c)

	mgr, err := h.registry.Attach(c.Request.Context(), identityID, token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "no live session", err)
		return nil, false
	}
	return mgr, true
}

func submitStatus(err error) int {
	switch {
	case xerrors.Is(err, xerrors.ErrUsernameTaken):
		return http.StatusConflict
	case xerrors.Is(err, xerrors.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case xerrors.Is(err, profileedit.ErrUsernameRequired),
		xerrors.Is(err, profileedit.ErrUsernameLength),
		xerrors.Is(err, profileedit.ErrUsernameCharset),
		xerrors.Is(err, profileedit.ErrAvatarNotImage),
		xerrors.Is(err, profileedit.ErrAvatarTooBig),
		xerrors.Is(err, profileedit.ErrAvatarBadExt):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
