package handler

import (
	"fmt"
	"strings"
	"time"

	"game-slot-scheduler/internal/model"
)

// statusIcon is keyed by status text; slot, request and booking states
// that share a name share an icon.
var statusIcon = map[string]string{
	string(model.SlotOpen):          "🟢",
	string(model.SlotBooked):        "🔴",
	string(model.SlotLocked):        "🔒",
	string(model.SlotCancelled):     "🚫",
	string(model.RequestAssigned):   "✅",
	string(model.RequestWaitlisted): "⏳",
	string(model.RequestRejected):   "❌",
	string(model.RequestPending):    "…",
	string(model.BookingCompleted):  "🏁",
}

func icon(status string) string {
	if i, ok := statusIcon[status]; ok {
		return i
	}
	return "•"
}

func hhmm(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// FormatGames renders the game catalogue.
func FormatGames(games []*model.Game) string {
	if len(games) == 0 {
		return "No games are set up yet."
	}
	var sb strings.Builder
	sb.WriteString("🎮 Games\n")
	for _, g := range games {
		fmt.Fprintf(&sb, "\n%s  %s–%s, %d min, up to %d players",
			g.Name, hhmm(g.OperatingStart), hhmm(g.OperatingEnd), g.SlotDurationMinutes, g.MaxPlayersPerSlot)
	}
	return sb.String()
}

// FormatSlots renders one day of slots of a game.
func FormatSlots(game *model.Game, day time.Time, slots []*model.SlotAvailability, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 %s on %s\n", game.Name, day.Format("Mon 02 Jan"))
	if len(slots) == 0 {
		sb.WriteString("\nNo slots for this day.")
		return sb.String()
	}
	for _, s := range slots {
		fmt.Fprintf(&sb, "\n%s #%d  %s–%s  %d/%d free",
			icon(string(s.Status)), s.ID,
			s.StartTime.In(loc).Format("15:04"), s.EndTime.In(loc).Format("15:04"),
			s.FreeSeats, game.MaxPlayersPerSlot)
	}
	return sb.String()
}

// FormatRequestResult renders the outcome of /request.
func FormatRequestResult(req *model.GameSlotRequest, alloc *model.AllocationResult) string {
	switch req.Status {
	case model.RequestAssigned:
		return fmt.Sprintf("✅ Request #%d assigned. Seated: %s", req.ID, joinIDs(alloc.AssignedUserIDs))
	case model.RequestWaitlisted:
		return fmt.Sprintf("⏳ Slot #%d is full. Request #%d is on the waitlist.", req.SlotID, req.ID)
	default:
		return fmt.Sprintf("%s Request #%d is %s.", icon(string(req.Status)), req.ID, req.Status)
	}
}

// FormatBookings renders the caller's bookings.
func FormatBookings(bookings []*model.GameBooking) string {
	if len(bookings) == 0 {
		return "You have no bookings."
	}
	var sb strings.Builder
	sb.WriteString("🎟 Your bookings\n")
	for _, b := range bookings {
		fmt.Fprintf(&sb, "\n%s #%d  slot #%d  players %s  %s",
			icon(string(b.Status)), b.ID, b.SlotID, joinIDs(b.Participants), b.Status)
	}
	return sb.String()
}

// FormatRequests renders the caller's requests.
func FormatRequests(reqs []*model.GameSlotRequest) string {
	if len(reqs) == 0 {
		return "You have no requests."
	}
	var sb strings.Builder
	sb.WriteString("📝 Your requests\n")
	for _, r := range reqs {
		fmt.Fprintf(&sb, "\n%s #%d  slot #%d  players %s  %s",
			icon(string(r.Status)), r.ID, r.SlotID, joinIDs(r.Participants), r.Status)
	}
	return sb.String()
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

// helpText lists the user commands.
const helpText = `🎮 Game slot booking

/games - list games
/interest <game> on|off - opt in or out of a game
/slots <game> [YYYY-MM-DD] - slots of a day
/request <slot> [user ...] - request a slot, optionally with teammates
/cancelrequest <id> - withdraw a request
/cancelbooking <id> - cancel a booking
/mybookings - your bookings
/myrequests - your requests`
