package model

import "time"

// Ticket is a helpdesk ticket as seen by the analyzer. Passed by value.
type Ticket struct {
	ID        int64     `json:"id"`
	Number    string    `json:"number,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status,omitempty"`
	Priority  string    `json:"priority,omitempty"`
}

// TicketIDs returns the set of ids in tickets.
func TicketIDs(tickets []Ticket) map[int64]struct{} {
	ids := make(map[int64]struct{}, len(tickets))
	for _, t := range tickets {
		ids[t.ID] = struct{}{}
	}
	return ids
}
