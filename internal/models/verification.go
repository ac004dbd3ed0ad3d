package models

import "time"

// Verification is the identity-proof review gate created when a booking
// enters verification_pending. It is resolved exactly once.
type Verification struct {
	ID          string     `json:"id"`
	BookingID   string     `json:"booking_id"`
	Status      string     `json:"status"`
	FullName    string     `json:"full_name"`
	DocumentRef string     `json:"document_ref"`
	AdminNotes  string     `json:"admin_notes"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}
