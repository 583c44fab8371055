// Package model defines the data models shared across the roulette bot.
package model

import "time"

// Role is a member's role inside a group as reported by the platform.
type Role string

// Group roles, ordered from least to most privileged.
const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// IsPrivileged reports whether the role can manage other members.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleOwner
}

// RouletteMode selects the consequence applied to the roulette loser.
type RouletteMode int

// Roulette consequence modes. Kick is the persisted default.
const (
	ModeKick RouletteMode = 0
	ModeMute RouletteMode = 1
)

// BotConfig is the durable per-bot configuration document. Absent fields
// fall back to their zero value, so a missing document behaves like an
// all-defaults one.
type BotConfig struct {
	Security   bool    `json:"security,omitempty"`
	AutoAccept bool    `json:"auto_accept,omitempty"`
	Admins     []int64 `json:"admins,omitempty"`
}

// GroupConfig is the durable per-group configuration document.
type GroupConfig struct {
	RouletteMode RouletteMode `json:"roulette_mode,omitempty"`
	Banned       bool         `json:"banned,omitempty"`
}

// UserConfig is the durable per-user configuration document.
type UserConfig struct {
	Banned bool `json:"banned,omitempty"`
}

// GroupMessage is an inbound plaintext message from a group chat.
// SenderRole is the sender's group role as delivered with the event.
type GroupMessage struct {
	BotID      int64
	GroupID    int64
	UserID     int64
	SenderRole Role
	Text       string
	Time       time.Time
}

// AdminNotice signals that a member was promoted to or demoted from
// group admin. SubType is "set" or "unset".
type AdminNotice struct {
	BotID   int64
	GroupID int64
	UserID  int64
	SubType string
}

// CardNotice signals that a member's group card (display name) changed.
type CardNotice struct {
	BotID   int64
	GroupID int64
	UserID  int64
	Card    string
}

// JoinRequest is a request to join a group. SubType "add" is a direct
// application, "invite" an invitation of the bot itself.
type JoinRequest struct {
	BotID   int64
	GroupID int64
	UserID  int64
	SubType string
	Flag    string
}

// Event is an inbound platform event consumed by the bot dispatch loop.
type Event interface {
	isEvent()
}

func (GroupMessage) isEvent() {}
func (AdminNotice) isEvent()  {}
func (CardNotice) isEvent()   {}
func (JoinRequest) isEvent()  {}

// ActionKind tags a PendingAction variant.
type ActionKind int

// Pending action kinds produced by consequence resolution.
const (
	ActionLeaveGroup ActionKind = iota
	ActionRemoveMember
	ActionRestrictMember
)

// PendingAction is a resolved but not yet executed consequence. The
// resolver only decides and the dispatcher executes, so the two halves
// stay independently testable.
type PendingAction struct {
	Kind     ActionKind
	GroupID  int64
	UserID   int64
	Duration time.Duration // restrict only
}

// MemberInfo is the platform's view of a group member.
type MemberInfo struct {
	UserID   int64
	Role     Role
	Card     string
	Nickname string
}

// DisplayName returns the member's group card, falling back to the
// global nickname when no card is set.
func (m MemberInfo) DisplayName() string {
	if m.Card != "" {
		return m.Card
	}
	return m.Nickname
}
