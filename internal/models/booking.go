package models

import "time"

// ServiceLine is one priced line item copied onto a booking at creation
// time. Later price changes on the talent's catalog never touch open
// bookings.
type ServiceLine struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type Booking struct {
	ID          string        `json:"id"`
	ClientID    string        `json:"client_id"`
	TalentID    string        `json:"talent_id"`
	TotalPrice  int64         `json:"total_price"`
	Services    []ServiceLine `json:"services"`
	Status      string        `json:"status"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Notes       string        `json:"notes"`
	Version     int64         `json:"version"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsTerminal reports whether no further transitions are legal.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case BookingCompleted, BookingCancelled, BookingExpired:
		return true
	}
	return false
}
