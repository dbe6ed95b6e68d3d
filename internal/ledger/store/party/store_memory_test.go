package party

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/pkg/domain"
)

func TestMove(t *testing.T) {
	ctx := context.Background()
	idx := New()
	alice, bob := domain.PartyID(uuid.New()), domain.PartyID(uuid.New())
	asset := domain.NewAssetID()

	require.NoError(t, idx.Move(ctx, asset, domain.PartyID{}, alice))
	got, err := idx.ListAssets(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []domain.AssetID{asset}, got)

	require.NoError(t, idx.Move(ctx, asset, alice, bob))
	got, err = idx.ListAssets(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = idx.ListAssets(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []domain.AssetID{asset}, got)
}

func TestListAssetsIsSorted(t *testing.T) {
	ctx := context.Background()
	idx := New()
	party := domain.PartyID(uuid.New())
	for range 5 {
		require.NoError(t, idx.Move(ctx, domain.NewAssetID(), domain.PartyID{}, party))
	}

	got, err := idx.ListAssets(ctx, party)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.IsNonDecreasing(t, stringsOf(got))
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	idx := New()
	alice, bob := domain.PartyID(uuid.New()), domain.PartyID(uuid.New())
	asset := domain.NewAssetID()
	require.NoError(t, idx.Move(ctx, asset, domain.PartyID{}, alice))

	restore := idx.Snapshot()
	require.NoError(t, idx.Move(ctx, asset, alice, bob))
	restore()

	got, err := idx.ListAssets(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []domain.AssetID{asset}, got)
	got, err = idx.ListAssets(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func stringsOf(ids []domain.AssetID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
