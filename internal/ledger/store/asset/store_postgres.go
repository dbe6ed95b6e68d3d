package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	txcontext "custodian/pkg/platform/tx"
)

// PostgresStore persists assets and their annotation log.
// It is pure I/O; apply semantics live in the apply package.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const assetColumns = `id, code, category, name, description, location, status, responsible_party, created_at, updated_at`

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Asset) error {
	query := `INSERT INTO assets (` + assetColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(a.ID), a.Code, string(a.Category), a.Name, a.Description, a.Location,
		string(a.Status), nullableParty(a.ResponsibleParty), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create asset %s: %w", a.Code, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create asset: %w", err)
	}
	return s.insertAnnotations(ctx, a.ID, a.Annotations)
}

// Save writes the mutable columns. The code column is never updated.
func (s *PostgresStore) Save(ctx context.Context, a *models.Asset) error {
	query := `
		UPDATE assets
		SET category = $2, name = $3, description = $4, location = $5,
		    status = $6, responsible_party = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(a.ID), string(a.Category), a.Name, a.Description, a.Location,
		string(a.Status), nullableParty(a.ResponsibleParty), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save asset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save asset rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.AssetID) (*models.Asset, error) {
	return s.find(ctx, id, "")
}

// FindByIDForUpdate locks the asset row for the rest of the transaction.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, id domain.AssetID) (*models.Asset, error) {
	return s.find(ctx, id, " FOR UPDATE")
}

func (s *PostgresStore) find(ctx context.Context, id domain.AssetID, lock string) (*models.Asset, error) {
	exec := txcontext.Execer(ctx, s.db)
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1` + lock
	a, err := scanAsset(exec.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find asset: %w", err)
	}
	notes, err := s.annotations(ctx, []uuid.UUID{uuid.UUID(id)})
	if err != nil {
		return nil, err
	}
	a.Annotations = notes[a.ID]
	return a, nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []domain.AssetID) ([]*models.Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]uuid.UUID, len(ids))
	for i, id := range ids {
		raw[i] = uuid.UUID(id)
	}
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = ANY($1) ORDER BY code`
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, pq.Array(uuidStrings(raw)))
	if err != nil {
		return nil, fmt.Errorf("find assets: %w", err)
	}
	defer rows.Close()

	var out []*models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets: %w", err)
	}

	notes, err := s.annotations(ctx, raw)
	if err != nil {
		return nil, err
	}
	for _, a := range out {
		a.Annotations = notes[a.ID]
	}
	return out, nil
}

func (s *PostgresStore) AppendAnnotation(ctx context.Context, id domain.AssetID, n models.Annotation) error {
	return s.insertAnnotations(ctx, id, []models.Annotation{n})
}

func (s *PostgresStore) insertAnnotations(ctx context.Context, id domain.AssetID, notes []models.Annotation) error {
	query := `
		INSERT INTO asset_annotations (asset_id, action, text, actor_id, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	exec := txcontext.Execer(ctx, s.db)
	for _, n := range notes {
		_, err := exec.ExecContext(ctx, query,
			uuid.UUID(id), string(n.Action), n.Text, uuid.UUID(n.ActorID), uuid.UUID(n.RequestID), n.CreatedAt)
		if err != nil {
			if isForeignKeyViolation(err) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("insert asset annotation: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) annotations(ctx context.Context, ids []uuid.UUID) (map[domain.AssetID][]models.Annotation, error) {
	query := `
		SELECT asset_id, action, text, actor_id, request_id, created_at
		FROM asset_annotations
		WHERE asset_id = ANY($1)
		ORDER BY id
	`
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("query asset annotations: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.AssetID][]models.Annotation)
	for rows.Next() {
		var (
			assetID, actorID, requestID uuid.UUID
			action                      string
			n                           models.Annotation
		)
		if err := rows.Scan(&assetID, &action, &n.Text, &actorID, &requestID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan asset annotation: %w", err)
		}
		n.Action = models.AnnotationAction(action)
		n.ActorID = domain.PrincipalID(actorID)
		n.RequestID = domain.ChangeRequestID(requestID)
		out[domain.AssetID(assetID)] = append(out[domain.AssetID(assetID)], n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate asset annotations: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*models.Asset, error) {
	var (
		a                models.Asset
		id               uuid.UUID
		party            uuid.NullUUID
		category, status string
	)
	if err := row.Scan(&id, &a.Code, &category, &a.Name, &a.Description, &a.Location,
		&status, &party, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.ID = domain.AssetID(id)
	a.Category = models.Category(category)
	a.Status = models.Status(status)
	a.ResponsibleParty = domain.PartyID(party.UUID)
	return &a, nil
}

func nullableParty(p domain.PartyID) uuid.NullUUID {
	return uuid.NullUUID{UUID: uuid.UUID(p), Valid: !p.IsNil()}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
