package party

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"custodian/pkg/domain"
	txcontext "custodian/pkg/platform/tx"
)

// PostgresIndex stores one row per asset naming its responsible party.
type PostgresIndex struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// Move points asset at party to. The from argument is implied by the row
// being replaced and is accepted for parity with the in-memory index.
func (s *PostgresIndex) Move(ctx context.Context, asset domain.AssetID, _ domain.PartyID, to domain.PartyID) error {
	query := `
		INSERT INTO party_assets (asset_id, party_id) VALUES ($1, $2)
		ON CONFLICT (asset_id) DO UPDATE SET party_id = EXCLUDED.party_id
	`
	if _, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, query, uuid.UUID(asset), uuid.UUID(to)); err != nil {
		return fmt.Errorf("move asset in party index: %w", err)
	}
	return nil
}

func (s *PostgresIndex) ListAssets(ctx context.Context, party domain.PartyID) ([]domain.AssetID, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx,
		`SELECT asset_id FROM party_assets WHERE party_id = $1 ORDER BY asset_id::text`, uuid.UUID(party))
	if err != nil {
		return nil, fmt.Errorf("list party assets: %w", err)
	}
	defer rows.Close()

	var out []domain.AssetID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan party asset: %w", err)
		}
		out = append(out, domain.AssetID(id))
	}
	return out, rows.Err()
}
