// internal/domain/auth/dto.go
package auth

// SignInRequest for password sign-in
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SignUpRequest for account creation. Username and DisplayName travel as
// provider metadata, the same way the hosted backends carry signup options.
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Username string `json:"username" binding:"required"`
}

// SignUpParams is what the identity provider receives from the session
// manager: credentials plus arbitrary metadata and the address the
// confirmation email should link back to.
type SignUpParams struct {
	Email       string
	Password    string
	Metadata    map[string]interface{}
	RedirectURL string
}

// SessionResponse is returned from sign-in, refresh and session lookup.
type SessionResponse struct {
	Session *Session    `json:"session,omitempty"`
	Profile interface{} `json:"profile,omitempty"`
}
