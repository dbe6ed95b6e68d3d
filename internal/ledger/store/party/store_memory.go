// Package party maintains the responsible-party back-reference index: for
// each party, the set of assets it is responsible for.
package party

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"custodian/pkg/domain"
)

type InMemoryPartyIndex struct {
	mu      sync.RWMutex
	byParty map[domain.PartyID]map[domain.AssetID]struct{}
}

func New() *InMemoryPartyIndex {
	return &InMemoryPartyIndex{byParty: make(map[domain.PartyID]map[domain.AssetID]struct{})}
}

// Move removes asset from from's entry (unless from is nil) and adds it to to's.
func (s *InMemoryPartyIndex) Move(_ context.Context, asset domain.AssetID, from, to domain.PartyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !from.IsNil() {
		if set, ok := s.byParty[from]; ok {
			delete(set, asset)
			if len(set) == 0 {
				delete(s.byParty, from)
			}
		}
	}
	set, ok := s.byParty[to]
	if !ok {
		set = make(map[domain.AssetID]struct{})
		s.byParty[to] = set
	}
	set[asset] = struct{}{}
	return nil
}

// ListAssets returns the assets indexed under party, sorted for stable output.
func (s *InMemoryPartyIndex) ListAssets(_ context.Context, party domain.PartyID) ([]domain.AssetID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Collect(maps.Keys(s.byParty[party]))
	slices.SortFunc(ids, func(a, b domain.AssetID) int {
		return strings.Compare(a.String(), b.String())
	})
	return ids, nil
}

func (s *InMemoryPartyIndex) Snapshot() func() {
	s.mu.RLock()
	copied := make(map[domain.PartyID]map[domain.AssetID]struct{}, len(s.byParty))
	for p, set := range s.byParty {
		copied[p] = maps.Clone(set)
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.byParty = copied
	}
}
