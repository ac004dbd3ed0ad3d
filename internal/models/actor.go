package models

// Actor identifies who is requesting a transition. Authorization of the
// actor is checked separately from the state-machine guard; admin is an
// ambient capability that passes any per-row ownership check.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsClient() bool { return a.Role == RoleClient }
func (a Actor) IsTalent() bool { return a.Role == RoleTalent }

// System is the actor used by timer-driven transitions such as the
// expire sweep.
var System = Actor{ID: "system", Role: RoleAdmin}
