// Package allocation decides which contending requests of a slot are
// seated. It is pure: callers rebuild the Input from persisted state on
// every pass, which makes repeated passes safe.
package allocation

import (
	"sort"
	"time"
)

// Decision is the outcome for one candidate request.
type Decision string

const (
	Assigned   Decision = "Assigned"
	Waitlisted Decision = "Waitlisted"
	// Rejected means every participant is already seated elsewhere on
	// the slot, so the request can never be fulfilled.
	Rejected Decision = "Rejected"
)

// Candidate is a Pending or Waitlisted request of the slot.
type Candidate struct {
	RequestID    int64
	RequestedBy  int64
	RequestedAt  time.Time
	Participants []int64
	// PlaysThisCycle is the requester's play count in the current
	// history cycle. It only breaks ties between identical timestamps.
	PlaysThisCycle int
}

// Input is the full state the engine needs for one slot.
type Input struct {
	Capacity   int
	Seated     []int64
	Candidates []Candidate
	// Hold seats nobody, used while the slot is locked or has started.
	Hold bool
}

// Outcome is the decision for one candidate plus the users it seats.
type Outcome struct {
	RequestID   int64
	RequestedBy int64
	Decision    Decision
	Seated      []int64
}

// Result is the output of one pass, in evaluation order.
type Result struct {
	Outcomes  []Outcome
	FreeSeats int
}

// Assigned returns the request IDs seated by the pass.
func (r Result) Assigned() []int64 {
	return r.ids(Assigned)
}

// Waitlisted returns the request IDs left waiting.
func (r Result) Waitlisted() []int64 {
	return r.ids(Waitlisted)
}

// Rejected returns the request IDs that cannot ever be seated.
func (r Result) Rejected() []int64 {
	return r.ids(Rejected)
}

// For returns the outcome of requestID, if it was evaluated.
func (r Result) For(requestID int64) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.RequestID == requestID {
			return o, true
		}
	}
	return Outcome{}, false
}

func (r Result) ids(d Decision) []int64 {
	var out []int64
	for _, o := range r.Outcomes {
		if o.Decision == d {
			out = append(out, o.RequestID)
		}
	}
	return out
}

// Order sorts candidates in evaluation order: submission time, then
// fewer plays this cycle, then request ID.
func Order(cs []Candidate) []Candidate {
	out := append([]Candidate(nil), cs...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.RequestedAt.Equal(b.RequestedAt) {
			return a.RequestedAt.Before(b.RequestedAt)
		}
		if a.PlaysThisCycle != b.PlaysThisCycle {
			return a.PlaysThisCycle < b.PlaysThisCycle
		}
		return a.RequestID < b.RequestID
	})
	return out
}

// Allocate walks the candidates in order and seats each one whole or
// not at all. A candidate that does not fit is waitlisted and the walk
// continues, so smaller later requests may still be seated.
func Allocate(in Input) Result {
	seated := make(map[int64]struct{}, in.Capacity)
	for _, id := range in.Seated {
		seated[id] = struct{}{}
	}

	free := in.Capacity - len(seated)
	if free < 0 {
		free = 0
	}

	res := Result{Outcomes: make([]Outcome, 0, len(in.Candidates))}
	for _, c := range Order(in.Candidates) {
		effective := effectiveParticipants(c, seated)

		out := Outcome{RequestID: c.RequestID, RequestedBy: c.RequestedBy}
		switch {
		case len(effective) == 0:
			out.Decision = Rejected
		case in.Hold || len(effective) > free:
			out.Decision = Waitlisted
		default:
			out.Decision = Assigned
			out.Seated = effective
			for _, id := range effective {
				seated[id] = struct{}{}
			}
			free -= len(effective)
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	res.FreeSeats = free
	return res
}

// effectiveParticipants returns the candidate's distinct participants,
// requester included, minus anyone already seated.
func effectiveParticipants(c Candidate, seated map[int64]struct{}) []int64 {
	seen := make(map[int64]struct{}, len(c.Participants)+1)
	out := make([]int64, 0, len(c.Participants)+1)

	add := func(id int64) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		if _, taken := seated[id]; taken {
			return
		}
		out = append(out, id)
	}

	add(c.RequestedBy)
	for _, id := range c.Participants {
		add(id)
	}
	return out
}
