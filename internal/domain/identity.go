// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxLoginLen = 64

var (
	ErrIdentityNoID = errors.New("identity has no id")
	ErrLoginTooLong = errors.New("login too long")
)

type UserID string

// Identity is the verified view of a user supplied by the identity
// collaborator at connect time. The server never authenticates; it only
// carries these fields around.
type Identity struct {
	ID          UserID `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id UserID, login, displayName, avatarURL string) (Identity, error) {
	if id == "" {
		return Identity{}, ErrIdentityNoID
	}
	if len(login) > MaxLoginLen {
		return Identity{}, ErrLoginTooLong
	}
	return Identity{ID: id, Login: login, DisplayName: displayName, AvatarURL: avatarURL}, nil
}
