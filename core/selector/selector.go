package selector

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/warehousekit/dispatchd/core/model"
)

// ErrGroupExhausted is returned when every candidate in a group is blocked
// or excluded. The caller is expected to retry with a different group.
var ErrGroupExhausted = errors.New("selector: no eligible candidate in group")

// Blocklist gates candidate eligibility, typically the availability cache.
type Blocklist interface {
	IsBlocked(id string) bool
}

// FairSelector picks groups by weighted random sampling and candidates
// within a group by least-used-first with random tie breaking, so that
// usage stays even without becoming deterministic.
type FairSelector struct {
	groups  []model.Group
	byID    map[string]model.Group
	weights []float64
	blocked Blocklist
	rng     *rand.Rand
	usage   map[string]int
}

// New creates a FairSelector. src may be nil, in which case a time-seeded
// source is used. Weights need not sum to one; they only have to be
// positive.
func New(groups []model.Group, blocked Blocklist, src rand.Source) (*FairSelector, error) {
	if len(groups) == 0 {
		return nil, errors.New("selector: no groups configured")
	}
	byID := make(map[string]model.Group, len(groups))
	weights := make([]float64, len(groups))
	usage := make(map[string]int)
	for i, g := range groups {
		if g.ID == "" {
			return nil, fmt.Errorf("selector: group %d has no id", i)
		}
		if g.Weight <= 0 {
			return nil, fmt.Errorf("selector: group %s has non-positive weight %v", g.ID, g.Weight)
		}
		if len(g.Candidates) == 0 {
			return nil, fmt.Errorf("selector: group %s has no candidates", g.ID)
		}
		if _, dup := byID[g.ID]; dup {
			return nil, fmt.Errorf("selector: duplicate group id %s", g.ID)
		}
		byID[g.ID] = g
		weights[i] = g.Weight
		for _, c := range g.Candidates {
			usage[c.ID] = 0
		}
	}
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>21)
	}
	return &FairSelector{
		groups:  append([]model.Group(nil), groups...),
		byID:    byID,
		weights: weights,
		blocked: blocked,
		rng:     rand.New(src),
		usage:   usage,
	}, nil
}

// SelectGroup draws one group id according to the configured weights.
func (s *FairSelector) SelectGroup() string {
	w := sampleuv.NewWeighted(s.weights, s.rng)
	i, ok := w.Take()
	if !ok {
		return s.groups[0].ID
	}
	return s.groups[i].ID
}

// GroupOrder returns all group ids in a weighted random order. Sampling
// without replacement gives every iteration a full fallback sequence, so a
// group whose candidates are all blocked does not sink the whole round.
func (s *FairSelector) GroupOrder() []string {
	w := sampleuv.NewWeighted(s.weights, s.rng)
	order := make([]string, 0, len(s.groups))
	for {
		i, ok := w.Take()
		if !ok {
			break
		}
		order = append(order, s.groups[i].ID)
	}
	return order
}

// SelectWithinGroup picks a candidate among those tied for the minimum
// usage count, skipping blocked and explicitly excluded ids. It does not
// mutate usage; call MarkUsed once the task has actually been dispatched.
func (s *FairSelector) SelectWithinGroup(groupID string, excluding map[string]struct{}) (model.Candidate, error) {
	g, ok := s.byID[groupID]
	if !ok {
		return model.Candidate{}, fmt.Errorf("selector: unknown group %s", groupID)
	}

	minUsage := -1
	var tied []model.Candidate
	for _, c := range g.Candidates {
		if _, skip := excluding[c.ID]; skip {
			continue
		}
		if s.blocked != nil && s.blocked.IsBlocked(c.ID) {
			continue
		}
		u := s.usage[c.ID]
		switch {
		case minUsage < 0 || u < minUsage:
			minUsage = u
			tied = tied[:0]
			tied = append(tied, c)
		case u == minUsage:
			tied = append(tied, c)
		}
	}
	if len(tied) == 0 {
		return model.Candidate{}, ErrGroupExhausted
	}
	return tied[s.rng.IntN(len(tied))], nil
}

// MarkUsed increments the usage counter for a dispatched candidate.
func (s *FairSelector) MarkUsed(id string) {
	if _, ok := s.usage[id]; ok {
		s.usage[id]++
	}
}

// ResetUsage zeroes all usage counters, used at pacing window boundaries.
func (s *FairSelector) ResetUsage() {
	for id := range s.usage {
		s.usage[id] = 0
	}
}

// Usage returns a copy of the per-candidate usage counters.
func (s *FairSelector) Usage() map[string]int {
	out := make(map[string]int, len(s.usage))
	for id, n := range s.usage {
		out[id] = n
	}
	return out
}

// Groups exposes the configured groups in their original order.
func (s *FairSelector) Groups() []model.Group {
	return append([]model.Group(nil), s.groups...)
}
