package retrieval

// ThrottleState tracks the dispatch window of one request. It is owned by
// the coordinator's consumer goroutine and needs no locking.
type ThrottleState struct {
	// InFlight is the number of units submitted and not yet resolved.
	InFlight int `json:"in_flight"`

	// Backlog is the number of completed volume readers awaiting the consumer.
	Backlog int `json:"backlog"`

	// Pending is the number of split units not yet submitted.
	Pending int `json:"pending"`

	// Window is the maximum number of units in flight.
	Window int `json:"window"`

	// Trigger is the low-water mark at or below which dispatch is re-armed
	// after a reader is handed out.
	Trigger int `json:"trigger"`
}

// HasCapacity returns true if another unit may be submitted.
func (s *ThrottleState) HasCapacity() bool {
	return s.InFlight < s.Window
}

// NeedsRefill returns true if the window has drained to the trigger mark.
func (s *ThrottleState) NeedsRefill() bool {
	return s.InFlight <= s.Trigger
}

// Idle returns true if nothing is in flight, pending or waiting.
func (s *ThrottleState) Idle() bool {
	return s.InFlight == 0 && s.Pending == 0 && s.Backlog == 0
}
