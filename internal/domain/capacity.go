package domain

// Availability is the read-side capacity view derived from an event snapshot.
// It is pure computation over already-fetched data and is never what the
// commit path trusts for the capacity check.
type Availability struct {
	RegisteredCount    int     `json:"registered_count"`
	MaxParticipants    int     `json:"max_participants"`
	AvailableSlots     int     `json:"available_slots"`
	IsFull             bool    `json:"is_full"`
	CapacityPercentage float64 `json:"capacity_percentage"`

	// Closed mirrors EventStatus.AcceptsRegistrations so display code does
	// not need the whole event.
	Closed bool `json:"closed"`
}

// ComputeAvailability derives seats-remaining figures from counts.
// max <= 0 means unlimited: never full, zero percentage.
func ComputeAvailability(registered, max int) Availability {
	a := Availability{
		RegisteredCount: registered,
		MaxParticipants: max,
	}
	if max <= 0 {
		a.MaxParticipants = 0
		return a
	}

	a.AvailableSlots = max - registered
	if a.AvailableSlots < 0 {
		a.AvailableSlots = 0
	}
	a.IsFull = registered >= max

	pct := float64(registered) / float64(max) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	a.CapacityPercentage = pct
	return a
}

// Availability computes the capacity view for the event, including the
// closed flag.
func (e Event) Availability() Availability {
	a := ComputeAvailability(e.RegisteredCount, e.MaxParticipants)
	a.Closed = !e.Status.AcceptsRegistrations()
	return a
}
