package asset

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// InMemoryAssetStore keeps canonical assets in memory. Returned assets are
// copies; callers persist changes through Create and Save.
type InMemoryAssetStore struct {
	mu     sync.RWMutex
	assets map[domain.AssetID]*models.Asset
	codes  map[string]domain.AssetID
}

func New() *InMemoryAssetStore {
	return &InMemoryAssetStore{
		assets: make(map[domain.AssetID]*models.Asset),
		codes:  make(map[string]domain.AssetID),
	}
}

func (s *InMemoryAssetStore) Create(_ context.Context, a *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[a.ID]; ok {
		return fmt.Errorf("asset %s: %w", a.ID, sentinel.ErrAlreadyUsed)
	}
	if _, ok := s.codes[a.Code]; ok {
		return fmt.Errorf("asset code %s: %w", a.Code, sentinel.ErrAlreadyUsed)
	}
	s.assets[a.ID] = a.Clone()
	s.codes[a.Code] = a.ID
	return nil
}

func (s *InMemoryAssetStore) Save(_ context.Context, a *models.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.assets[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if existing.Code != a.Code {
		return fmt.Errorf("asset code is immutable: %w", sentinel.ErrInvalidState)
	}
	s.assets[a.ID] = a.Clone()
	return nil
}

func (s *InMemoryAssetStore) FindByID(_ context.Context, id domain.AssetID) (*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

// FindByIDForUpdate is FindByID; the in-memory transaction already
// serializes writers.
func (s *InMemoryAssetStore) FindByIDForUpdate(ctx context.Context, id domain.AssetID) (*models.Asset, error) {
	return s.FindByID(ctx, id)
}

// FindByIDs returns the assets that exist among ids, in input order.
func (s *InMemoryAssetStore) FindByIDs(_ context.Context, ids []domain.AssetID) ([]*models.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Asset, 0, len(ids))
	for _, id := range ids {
		if a, ok := s.assets[id]; ok {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}

func (s *InMemoryAssetStore) AppendAnnotation(_ context.Context, id domain.AssetID, n models.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	a.Annotate(n)
	return nil
}

// Snapshot captures the store contents and returns a function restoring them.
func (s *InMemoryAssetStore) Snapshot() func() {
	s.mu.RLock()
	assets := make(map[domain.AssetID]*models.Asset, len(s.assets))
	for id, a := range s.assets {
		assets[id] = a.Clone()
	}
	codes := maps.Clone(s.codes)
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.assets = assets
		s.codes = codes
	}
}
