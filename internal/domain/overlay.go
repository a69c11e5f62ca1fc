package domain

import (
	"context"
	"slices"
)

const (
	OverlayRoleOwner        = "owner"
	OverlayRoleCollaborator = "collaborator"
)

// Overlay is a broadcast overlay built on a catalog Model. Owner and Access
// hold Discord user ids: holder ids are minted per sign-in, Discord ids are
// stable across them.
type Overlay struct {
	UUID              string   `json:"uuid" yaml:"uuid"`
	Name              string   `json:"name" yaml:"name"`
	Image             string   `json:"image,omitempty" yaml:"image"`
	Model             string   `json:"model" yaml:"model"`
	TwitchChannelID   string   `json:"twitchChannelId" yaml:"twitchChannelId"`
	TwitchChannelName string   `json:"twitchChannelName" yaml:"twitchChannelName"`
	Owner             string   `json:"-" yaml:"owner"`
	Access            []string `json:"-" yaml:"access"`
}

// Role returns OverlayRoleOwner, OverlayRoleCollaborator, or "" when the
// member cannot see the overlay.
func (o *Overlay) Role(memberID string) string {
	switch {
	case memberID == "":
		return ""
	case o.Owner == memberID:
		return OverlayRoleOwner
	case slices.Contains(o.Access, memberID):
		return OverlayRoleCollaborator
	}
	return ""
}

func (o *Overlay) VisibleTo(memberID string) bool {
	return o.Role(memberID) != ""
}

type OverlayCatalog interface {
	// OverlaysFor lists the overlays memberID owns or was granted access to.
	OverlaysFor(ctx context.Context, memberID string) ([]Overlay, error)
	// GetOverlay returns ErrOverlayNotFound for unknown ids.
	GetOverlay(ctx context.Context, uuid string) (*Overlay, error)
}
