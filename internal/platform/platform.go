// Package platform defines the capability-style client the core calls
// into. The game engine and handlers depend only on this interface; the
// onebot subpackage provides the real transport.
package platform

import (
	"context"
	"fmt"
	"time"

	"group-roulette-bot/internal/model"
)

// Client is the set of platform capabilities the bot consumes.
type Client interface {
	// SendMessage sends a plaintext (optionally CQ-coded) message to a group.
	SendMessage(ctx context.Context, groupID int64, content string) error

	// RemoveMember kicks a member from a group.
	RemoveMember(ctx context.Context, groupID, userID int64) error

	// RestrictMember mutes a member for the given duration.
	RestrictMember(ctx context.Context, groupID, userID int64, duration time.Duration) error

	// LeaveGroup makes the bot leave a group.
	LeaveGroup(ctx context.Context, groupID int64) error

	// GetMemberInfo fetches a member's role and display names.
	GetMemberInfo(ctx context.Context, groupID, userID int64) (model.MemberInfo, error)

	// ApproveJoinRequest approves a pending group join request.
	ApproveJoinRequest(ctx context.Context, flag, subType string) error

	// SetMemberCard sets a member's group card (display name).
	SetMemberCard(ctx context.Context, groupID, userID int64, card string) error

	// Poke pokes a member in a group.
	Poke(ctx context.Context, groupID, userID int64) error
}

// EventSource delivers inbound platform events.
type EventSource interface {
	// Events returns the inbound event stream. The channel is closed
	// when the source shuts down.
	Events() <-chan model.Event
}

// At builds a CQ-code mention segment for the user.
func At(userID int64) string {
	return fmt.Sprintf("[CQ:at,qq=%d]", userID)
}
