package model

// Candidate identifies a selectable drop target (a storage area).
// The ID is stable for the whole run; usage counters live in the selector.
type Candidate struct {
	ID    string `json:"id"`
	Group string `json:"group"`
}

// Group partitions candidates sharing a selection weight, typically one
// warehouse. Pickups lists the pickup location ids the engine cycles
// through when building tasks for this group.
type Group struct {
	ID         string      `json:"id"`
	Weight     float64     `json:"weight"`
	Pickups    []string    `json:"pickups"`
	Candidates []Candidate `json:"candidates"`
}

// CandidateIDs returns the ids of all candidates in the group.
func (g Group) CandidateIDs() []string {
	ids := make([]string, 0, len(g.Candidates))
	for _, c := range g.Candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

// Task couples a pickup location with the drop target it was dispatched to.
type Task struct {
	PickupID string `json:"pickup_id"`
	Area     string `json:"area"`
	Group    string `json:"group"`
}
