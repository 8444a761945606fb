// Package model defines the rows persisted by the scheduler and the
// values exchanged between the allocation engine and its callers.
package model

import (
	"time"
)

// SlotStatus is the lifecycle state of a GameSlot.
type SlotStatus string

const (
	SlotOpen      SlotStatus = "Open"
	SlotLocked    SlotStatus = "Locked"
	SlotBooked    SlotStatus = "Booked"
	SlotCancelled SlotStatus = "Cancelled"
)

// Valid reports whether s is a known slot status.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotOpen, SlotLocked, SlotBooked, SlotCancelled:
		return true
	}
	return false
}

// RequestStatus is the lifecycle state of a GameSlotRequest.
type RequestStatus string

const (
	RequestPending    RequestStatus = "Pending"
	RequestAssigned   RequestStatus = "Assigned"
	RequestWaitlisted RequestStatus = "Waitlisted"
	RequestRejected   RequestStatus = "Rejected"
	RequestCancelled  RequestStatus = "Cancelled"
)

// Active reports whether a request in this state still holds its
// participants' standing on the slot.
func (s RequestStatus) Active() bool {
	return s == RequestPending || s == RequestWaitlisted || s == RequestAssigned
}

// Contending reports whether the request still competes for seats.
func (s RequestStatus) Contending() bool {
	return s == RequestPending || s == RequestWaitlisted
}

// BookingStatus is the lifecycle state of a GameBooking.
type BookingStatus string

const (
	BookingBooked    BookingStatus = "Booked"
	BookingCompleted BookingStatus = "Completed"
	BookingCancelled BookingStatus = "Cancelled"
)

// User is an employee that can play.
type User struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email"`
	TelegramID *int64    `db:"telegram_id" json:"telegramId,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Game is a bookable recreational game. OperatingStart and OperatingEnd
// are offsets from midnight.
type Game struct {
	ID                  int64         `db:"id" json:"id"`
	Name                string        `db:"name" json:"name"`
	OperatingStart      time.Duration `db:"operating_start" json:"operatingStart"`
	OperatingEnd        time.Duration `db:"operating_end" json:"operatingEnd"`
	SlotDurationMinutes int           `db:"slot_duration_minutes" json:"slotDurationMinutes"`
	MaxPlayersPerSlot   int           `db:"max_players_per_slot" json:"maxPlayersPerSlot"`
	CreatedAt           time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updatedAt"`
}

// SlotDuration returns the configured slot length.
func (g *Game) SlotDuration() time.Duration {
	return time.Duration(g.SlotDurationMinutes) * time.Minute
}

// GameSlot is one bookable window of a game.
type GameSlot struct {
	ID        int64      `db:"id" json:"id"`
	GameID    int64      `db:"game_id" json:"gameId"`
	StartTime time.Time  `db:"start_time" json:"startTime"`
	EndTime   time.Time  `db:"end_time" json:"endTime"`
	Status    SlotStatus `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// Started reports whether play has begun at now.
func (s *GameSlot) Started(now time.Time) bool {
	return !s.StartTime.After(now)
}

// Overlaps reports whether the slot intersects [start, end).
func (s *GameSlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}

// SlotAvailability is a slot together with its seat usage.
type SlotAvailability struct {
	GameSlot
	SeatedCount int `json:"seatedCount"`
	FreeSeats   int `json:"freeSeats"`
}

// UserGameInterest records whether a user opted in to a game.
type UserGameInterest struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"userId"`
	GameID       int64     `db:"game_id" json:"gameId"`
	IsInterested bool      `db:"is_interested" json:"isInterested"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// GameSlotRequest is a user's ask for seats on a slot. Participants
// always include the requester.
type GameSlotRequest struct {
	ID           int64         `db:"id" json:"id"`
	SlotID       int64         `db:"slot_id" json:"slotId"`
	GameID       int64         `db:"game_id" json:"gameId"`
	RequestedBy  int64         `db:"requested_by" json:"requestedBy"`
	Status       RequestStatus `db:"status" json:"status"`
	RequestedAt  time.Time     `db:"requested_at" json:"requestedAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
	Participants []int64       `db:"-" json:"participants"`
}

// GameBooking is the materialized record of who plays a slot.
type GameBooking struct {
	ID           int64         `db:"id" json:"id"`
	SlotID       int64         `db:"slot_id" json:"slotId"`
	GameID       int64         `db:"game_id" json:"gameId"`
	RequestID    int64         `db:"request_id" json:"requestId"`
	CreatedBy    int64         `db:"created_by" json:"createdBy"`
	Status       BookingStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updatedAt"`
	Participants []int64       `db:"-" json:"participants"`
}

// HasParticipant reports whether userID is seated by the booking.
func (b *GameBooking) HasParticipant(userID int64) bool {
	for _, id := range b.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// GameHistory accumulates plays of one user on one game within a cycle.
type GameHistory struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"userId"`
	GameID         int64     `db:"game_id" json:"gameId"`
	CycleStart     time.Time `db:"cycle_start" json:"cycleStart"`
	CycleEnd       time.Time `db:"cycle_end" json:"cycleEnd"`
	SlotsPlayed    int       `db:"slots_played" json:"slotsPlayed"`
	LastPlayedDate time.Time `db:"last_played_date" json:"lastPlayedDate"`
}

// AllocationResult reports the outcome of one allocation pass.
// AssignedUserIDs are the users seated for the request that triggered the
// pass (RequestedBy); the request lists cover the whole slot.
type AllocationResult struct {
	SlotID             int64      `json:"slotId"`
	RequestedBy        int64      `json:"requestedBy"`
	AssignedUserIDs    []int64    `json:"assignedUserIds"`
	AssignedRequests   []int64    `json:"assignedRequests"`
	WaitlistedRequests []int64    `json:"waitlistedRequests"`
	RejectedRequests   []int64    `json:"rejectedRequests,omitempty"`
	BookingsCreated    []int64    `json:"bookingsCreated,omitempty"`
	SlotStatus         SlotStatus `json:"slotStatus"`
}

// Changed reports whether the pass mutated any state.
func (r *AllocationResult) Changed() bool {
	return len(r.BookingsCreated) > 0 || len(r.RejectedRequests) > 0
}
