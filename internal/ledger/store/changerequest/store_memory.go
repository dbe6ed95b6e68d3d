package changerequest

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryChangeRequestStore keeps change requests in memory, indexed by
// asset. Returned requests are copies.
type InMemoryChangeRequestStore struct {
	mu       sync.RWMutex
	requests map[domain.ChangeRequestID]*models.ChangeRequest
	byAsset  map[domain.AssetID][]domain.ChangeRequestID
	codes    map[string]domain.ChangeRequestID
}

func New() *InMemoryChangeRequestStore {
	return &InMemoryChangeRequestStore{
		requests: make(map[domain.ChangeRequestID]*models.ChangeRequest),
		byAsset:  make(map[domain.AssetID][]domain.ChangeRequestID),
		codes:    make(map[string]domain.ChangeRequestID),
	}
}

func (s *InMemoryChangeRequestStore) Create(_ context.Context, r *models.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return fmt.Errorf("change request %s: %w", r.ID, sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.codes[r.Code]; ok {
		return fmt.Errorf("change request code %s: %w", r.Code, sentinel.ErrAlreadyUsed)
	}
	s.requests[r.ID] = r.Clone()
	s.codes[r.Code] = r.ID
	s.byAsset[r.AssetID] = append(s.byAsset[r.AssetID], r.ID)
	return nil
}

func (s *InMemoryChangeRequestStore) FindByID(_ context.Context, id domain.ChangeRequestID) (*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// FindByIDForUpdate is FindByID; the in-memory transaction already
// serializes writers.
func (s *InMemoryChangeRequestStore) FindByIDForUpdate(ctx context.Context, id domain.ChangeRequestID) (*models.ChangeRequest, error) {
	return s.FindByID(ctx, id)
}

// Resolve persists a terminal state. It fails with ErrInvalidState unless the
// stored request is still pending, so a lost race can never overwrite a
// resolution.
func (s *InMemoryChangeRequestStore) Resolve(_ context.Context, r *models.ChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.State != models.StatePending {
		return sentinel.ErrInvalidState
	}
	if !r.State.IsTerminal() || r.Review == nil {
		return fmt.Errorf("resolve requires a terminal state and review: %w", sentinel.ErrInvalidState)
	}
	next := stored.Clone()
	next.State = r.State
	rv := *r.Review
	next.Review = &rv
	s.requests[r.ID] = next
	return nil
}

// Execute loads the request, runs validate, then mutate, and persists the
// audit notes mutate appended. Diffs and state are not writable here.
func (s *InMemoryChangeRequestStore) Execute(
	_ context.Context,
	id domain.ChangeRequestID,
	validate func(*models.ChangeRequest) error,
	mutate func(*models.ChangeRequest),
) (*models.ChangeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := stored.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)

	next := stored.Clone()
	next.AuditNotes = working.AuditNotes
	s.requests[id] = next
	return next.Clone(), nil
}

// ListByAsset returns every request referencing asset, in submission order.
func (s *InMemoryChangeRequestStore) ListByAsset(_ context.Context, asset domain.AssetID) ([]*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byAsset[asset]
	out := make([]*models.ChangeRequest, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.requests[id].Clone())
	}
	return out, nil
}

// ListByState returns every request in state, oldest submission first.
func (s *InMemoryChangeRequestStore) ListByState(_ context.Context, state models.State) ([]*models.ChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ChangeRequest
	for _, r := range s.requests {
		if r.State == state {
			out = append(out, r.Clone())
		}
	}
	sortBySubmission(out)
	return out, nil
}

func (s *InMemoryChangeRequestStore) Snapshot() func() {
	s.mu.RLock()
	requests := make(map[domain.ChangeRequestID]*models.ChangeRequest, len(s.requests))
	for id, r := range s.requests {
		requests[id] = r.Clone()
	}
	byAsset := make(map[domain.AssetID][]domain.ChangeRequestID, len(s.byAsset))
	for id, ids := range s.byAsset {
		byAsset[id] = append([]domain.ChangeRequestID(nil), ids...)
	}
	codes := maps.Clone(s.codes)
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests = requests
		s.byAsset = byAsset
		s.codes = codes
	}
}
