// Package domain contains entities without transport, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxIdentityIDLen  = 64
	MaxDisplayNameLen = 36
)

var (
	ErrIdentityIDEmpty    = errors.New("identity id empty")
	ErrIdentityIDTooLong  = errors.New("identity id too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

// IdentityID is the caller-supplied stable identifier of a participant.
type IdentityID string

// Identity is the public presence record of one participant.
// NotificationAddress is never serialized to other participants.
type Identity struct {
	ID                  IdentityID `json:"identityId"`
	DisplayName         string     `json:"displayName"`
	InCall              bool       `json:"inCall"`
	NotificationAddress string     `json:"-"`
}

// NewIdentity validates and trims the registration fields.
func NewIdentity(id, displayName string) (Identity, error) {
	id = strings.TrimSpace(id)
	displayName = strings.TrimSpace(displayName)
	if id == "" {
		return Identity{}, ErrIdentityIDEmpty
	}
	if len(id) > MaxIdentityIDLen {
		return Identity{}, ErrIdentityIDTooLong
	}
	if displayName == "" {
		return Identity{}, ErrDisplayNameEmpty
	}
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLen {
		return Identity{}, ErrDisplayNameTooLong
	}
	return Identity{ID: IdentityID(id), DisplayName: displayName}, nil
}
