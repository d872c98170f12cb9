package models

// RoomStatus lifecycle state of a room
type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusEnding RoomStatus = "ending"
)

// EndReason why a room terminated
type EndReason string

const (
	EndReasonSkip        EndReason = "skip"
	EndReasonDisconnect  EndReason = "disconnect"
	EndReasonTimeout     EndReason = "timeout"
	EndReasonMaxDuration EndReason = "max_duration"
)

// Room ephemeral two-party chat session
type Room struct {
	RoomID         string     `json:"roomId"`
	UserA          string     `json:"userA"`
	UserB          string     `json:"userB"`
	StartedAt      int64      `json:"startedAt"`      // unix ms
	LastActivityAt int64      `json:"lastActivityAt"` // unix ms
	Status         RoomStatus `json:"status"`
}

// PartnerOf returns the other member's user id, or "" if userID is not a member.
func (r *Room) PartnerOf(userID string) string {
	switch userID {
	case r.UserA:
		return r.UserB
	case r.UserB:
		return r.UserA
	default:
		return ""
	}
}

// HasMember reports whether userID is one of the room's two members.
func (r *Room) HasMember(userID string) bool {
	return r.UserA == userID || r.UserB == userID
}

// EndResult outcome of a successful room termination
type EndResult struct {
	Room   *Room
	Reason EndReason
}

// QueueEntry a user waiting to be paired
type QueueEntry struct {
	UserID     string `json:"userId"`
	EnqueuedAt int64  `json:"enqueuedAt"` // unix ms
}
