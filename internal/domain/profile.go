package domain

import "errors"

const (
	MaxDisplayNameLen = 36

	// DefaultDisplayName is used whenever profile lookup fails or the
	// user never registered one.
	DefaultDisplayName = "guest"
)

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// Profile is the denormalized presentation data attached to a user,
// resolved at join time via the profile collaborator.
type Profile struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// DefaultProfile is the fail-soft fallback: a join never aborts because
// the profile lookup is unavailable.
func DefaultProfile() Profile {
	return Profile{DisplayName: DefaultDisplayName}
}

func (p *Profile) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.DisplayName = name
	return nil
}
