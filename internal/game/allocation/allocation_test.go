package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func cand(id, by int64, at time.Duration, others ...int64) Candidate {
	return Candidate{
		RequestID:    id,
		RequestedBy:  by,
		RequestedAt:  t0.Add(at),
		Participants: append([]int64{by}, others...),
	}
}

func TestFIFOSeatsEarlierGroupFirst(t *testing.T) {
	res := Allocate(Input{
		Capacity: 2,
		Candidates: []Candidate{
			cand(2, 30, time.Minute),
			cand(1, 10, 0, 20),
		},
	})

	assert.Equal(t, []int64{1}, res.Assigned())
	assert.Equal(t, []int64{2}, res.Waitlisted())
	assert.Equal(t, 0, res.FreeSeats)

	o, ok := res.For(1)
	require.True(t, ok)
	assert.ElementsMatch(t, []int64{10, 20}, o.Seated)
}

func TestLargeGroupDoesNotBlockSmallerOnes(t *testing.T) {
	res := Allocate(Input{
		Capacity: 2,
		Seated:   []int64{99},
		Candidates: []Candidate{
			cand(1, 10, 0, 11, 12),
			cand(2, 20, time.Minute),
		},
	})

	assert.Equal(t, []int64{2}, res.Assigned())
	assert.Equal(t, []int64{1}, res.Waitlisted(), "three people never take two seats")
}

func TestNoPartialSeating(t *testing.T) {
	res := Allocate(Input{Capacity: 2, Candidates: []Candidate{cand(1, 10, 0, 11, 12)}})

	assert.Empty(t, res.Assigned())
	assert.Equal(t, []int64{1}, res.Waitlisted())
	assert.Equal(t, 2, res.FreeSeats)
}

func TestSingleRequesterThenFull(t *testing.T) {
	res := Allocate(Input{Capacity: 2, Candidates: []Candidate{cand(1, 10, 0, 11)}})
	require.Equal(t, []int64{1}, res.Assigned())
	require.Equal(t, 0, res.FreeSeats)

	res = Allocate(Input{Capacity: 2, Seated: []int64{10, 11}, Candidates: []Candidate{cand(2, 20, time.Minute)}})
	assert.Equal(t, []int64{2}, res.Waitlisted())
}

func TestBackfillAfterCancellation(t *testing.T) {
	// R1 seated {10,11} and R2 waitlisted; R1's booking is cancelled.
	res := Allocate(Input{Capacity: 2, Candidates: []Candidate{cand(2, 20, time.Minute, 21)}})

	assert.Equal(t, []int64{2}, res.Assigned())
}

func TestAlreadySeatedParticipantsAreSkipped(t *testing.T) {
	res := Allocate(Input{
		Capacity:   3,
		Seated:     []int64{11},
		Candidates: []Candidate{cand(1, 10, 0, 11)},
	})

	o, _ := res.For(1)
	assert.Equal(t, Assigned, o.Decision)
	assert.Equal(t, []int64{10}, o.Seated)
	assert.Equal(t, 1, res.FreeSeats)
}

func TestFullyOverlappingRequestIsRejected(t *testing.T) {
	res := Allocate(Input{
		Capacity:   4,
		Seated:     []int64{10, 11},
		Candidates: []Candidate{cand(1, 10, 0, 11)},
	})

	assert.Equal(t, []int64{1}, res.Rejected())
}

func TestHoldSeatsNobody(t *testing.T) {
	res := Allocate(Input{Capacity: 4, Hold: true, Candidates: []Candidate{cand(1, 10, 0), cand(2, 20, time.Second)}})

	assert.Empty(t, res.Assigned())
	assert.Equal(t, []int64{1, 2}, res.Waitlisted())
}

func TestHistoryBreaksTimestampTiesOnly(t *testing.T) {
	busy := cand(1, 10, 0)
	busy.PlaysThisCycle = 5
	fresh := cand(2, 20, 0)
	later := cand(3, 30, time.Millisecond)

	got := Order([]Candidate{later, busy, fresh})

	assert.Equal(t, int64(2), got[0].RequestID, "fewer plays wins an exact tie")
	assert.Equal(t, int64(1), got[1].RequestID)
	assert.Equal(t, int64(3), got[2].RequestID, "later submission stays later")
}

func TestDuplicateParticipantsCountOnce(t *testing.T) {
	c := Candidate{RequestID: 1, RequestedBy: 10, RequestedAt: t0, Participants: []int64{10, 11, 11}}

	res := Allocate(Input{Capacity: 2, Candidates: []Candidate{c}})
	assert.Equal(t, []int64{1}, res.Assigned())
}

func genInput(t *rapid.T) Input {
	capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
	users := rapid.IntRange(1, 20).Draw(t, "users")

	seated := rapid.SliceOfNDistinct(rapid.Int64Range(1, int64(users)), 0, min(capacity, users), rapid.ID[int64]).Draw(t, "seated")

	n := rapid.IntRange(0, 10).Draw(t, "candidates")
	cs := make([]Candidate, n)
	for i := range cs {
		by := rapid.Int64Range(1, int64(users)).Draw(t, "by")
		others := rapid.SliceOfN(rapid.Int64Range(1, int64(users)), 0, 4).Draw(t, "others")
		cs[i] = Candidate{
			RequestID:      int64(i + 1),
			RequestedBy:    by,
			RequestedAt:    t0.Add(time.Duration(rapid.IntRange(0, 5).Draw(t, "at")) * time.Second),
			Participants:   append([]int64{by}, others...),
			PlaysThisCycle: rapid.IntRange(0, 3).Draw(t, "plays"),
		}
	}

	return Input{Capacity: capacity, Seated: seated, Candidates: cs}
}

// Seats never exceed capacity, nobody is seated twice, and every seated
// request is seated whole.
func TestAllocateCapacityAndExclusivityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := genInput(t)
		res := Allocate(in)

		seen := map[int64]bool{}
		for _, id := range in.Seated {
			seen[id] = true
		}
		total := len(in.Seated)

		for _, o := range res.Outcomes {
			if o.Decision != Assigned {
				if len(o.Seated) != 0 {
					t.Fatalf("request %d not assigned but seats %v", o.RequestID, o.Seated)
				}
				continue
			}
			for _, id := range o.Seated {
				if seen[id] {
					t.Fatalf("user %d seated twice", id)
				}
				seen[id] = true
			}
			total += len(o.Seated)
		}

		if total > in.Capacity {
			t.Fatalf("seated %d over capacity %d", total, in.Capacity)
		}
		if res.FreeSeats != in.Capacity-total {
			t.Fatalf("free seats %d, expected %d", res.FreeSeats, in.Capacity-total)
		}
	})
}

// A second pass over the persisted outcome of the first changes nothing.
func TestAllocateIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := genInput(t)
		first := Allocate(in)

		next := Input{Capacity: in.Capacity, Seated: append([]int64(nil), in.Seated...)}
		for _, o := range first.Outcomes {
			next.Seated = append(next.Seated, o.Seated...)
		}
		for _, c := range in.Candidates {
			if o, _ := first.For(c.RequestID); o.Decision == Waitlisted {
				next.Candidates = append(next.Candidates, c)
			}
		}

		second := Allocate(next)
		if len(second.Assigned()) != 0 {
			t.Fatalf("second pass seated %v", second.Assigned())
		}
		if second.FreeSeats != first.FreeSeats {
			t.Fatalf("free seats changed from %d to %d", first.FreeSeats, second.FreeSeats)
		}
	})
}
