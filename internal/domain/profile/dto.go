// internal/domain/profile/dto.go
package profile

// SubmitRequest is the profile-edit form payload. The avatar file, when
// present, arrives as a multipart part next to this JSON-ish form data.
type SubmitRequest struct {
	Username    string `form:"username" json:"username"`
	DisplayName string `form:"display_name" json:"display_name"`
	Bio         string `form:"bio" json:"bio"`
}

// View is the wire shape of a profile row.
type View struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Coins       int64  `json:"coins"`
}

// NewView flattens the nullable columns for JSON consumers.
func NewView(p *Profile) *View {
	if p == nil {
		return nil
	}
	v := &View{ID: p.ID, Username: p.Username, Coins: p.Coins}
	if p.DisplayName.Valid {
		v.DisplayName = p.DisplayName.String
	}
	if p.AvatarURL.Valid {
		v.AvatarURL = p.AvatarURL.String
	}
	if p.Bio.Valid {
		v.Bio = p.Bio.String
	}
	return v
}
