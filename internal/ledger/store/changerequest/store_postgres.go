package changerequest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"custodian/internal/ledger/models"
	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	txcontext "custodian/pkg/platform/tx"
)

// PostgresStore persists change requests, their diffs (as JSONB) and their
// audit notes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `id, code, created_at, state, kind, asset_id, proposer_id, justification, diffs, reviewer_id, reviewed_at, review_comment, approval_seq`

type diffRow struct {
	Field    string  `json:"field"`
	Previous *string `json:"previous"`
	New      string  `json:"new"`
}

func encodeDiffs(entries []models.DiffEntry) ([]byte, error) {
	rows := make([]diffRow, len(entries))
	for i, e := range entries {
		rows[i] = diffRow{Field: string(e.Field), Previous: e.Previous, New: e.New}
	}
	return json.Marshal(rows)
}

func decodeDiffs(raw []byte) ([]models.DiffEntry, error) {
	var rows []diffRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	out := make([]models.DiffEntry, len(rows))
	for i, r := range rows {
		out[i] = models.DiffEntry{Field: models.Field(r.Field), Previous: r.Previous, New: r.New}
	}
	return out, nil
}

func (s *PostgresStore) Create(ctx context.Context, r *models.ChangeRequest) error {
	diffs, err := encodeDiffs(r.Diffs)
	if err != nil {
		return fmt.Errorf("encode diffs: %w", err)
	}
	query := `
		INSERT INTO change_requests (id, code, created_at, state, kind, asset_id, proposer_id, justification, diffs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = txcontext.Execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.ID), r.Code, r.CreatedAt, string(r.State), string(r.Kind),
		uuid.UUID(r.AssetID), uuid.UUID(r.ProposerID), r.Justification, diffs,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create change request %s: %w", r.Code, sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ChangeRequestID) (*models.ChangeRequest, error) {
	return s.find(ctx, id, "")
}

// FindByIDForUpdate locks the request row for the rest of the transaction.
// A concurrent resolver blocks here and then observes the terminal state.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, id domain.ChangeRequestID) (*models.ChangeRequest, error) {
	return s.find(ctx, id, " FOR UPDATE")
}

func (s *PostgresStore) find(ctx context.Context, id domain.ChangeRequestID, lock string) (*models.ChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM change_requests WHERE id = $1` + lock
	r, err := scanRequest(txcontext.Execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find change request: %w", err)
	}
	if err := s.attachNotes(ctx, []*models.ChangeRequest{r}); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve writes the terminal state only if the row is still pending.
func (s *PostgresStore) Resolve(ctx context.Context, r *models.ChangeRequest) error {
	if !r.State.IsTerminal() || r.Review == nil {
		return fmt.Errorf("resolve requires a terminal state and review: %w", sentinel.ErrInvalidState)
	}
	query := `
		UPDATE change_requests
		SET state = $2, reviewer_id = $3, reviewed_at = $4, review_comment = $5, approval_seq = $6
		WHERE id = $1 AND state = 'pending'
	`
	res, err := txcontext.Execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(r.ID), string(r.State), uuid.UUID(r.Review.ReviewerID), r.Review.ReviewedAt, r.Review.Comment,
		nullSequence(r.Review.Sequence),
	)
	if err != nil {
		return fmt.Errorf("resolve change request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.FindByID(ctx, r.ID); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

// Execute runs validate and mutate against the locked row and inserts any
// audit notes mutate appended. It opens its own transaction unless one is
// already carried on ctx.
func (s *PostgresStore) Execute(
	ctx context.Context,
	id domain.ChangeRequestID,
	validate func(*models.ChangeRequest) error,
	mutate func(*models.ChangeRequest),
) (*models.ChangeRequest, error) {
	var result *models.ChangeRequest
	err := txcontext.Run(ctx, s.db, 0, func(txCtx context.Context) error {
		r, err := s.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := validate(r); err != nil {
			return err
		}
		before := len(r.AuditNotes)
		mutate(r)
		if err := s.insertNotes(txCtx, r.ID, r.AuditNotes[before:]); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) insertNotes(ctx context.Context, id domain.ChangeRequestID, notes []models.AuditNote) error {
	query := `
		INSERT INTO change_request_audit_notes (request_id, auditor_id, comment, created_at)
		VALUES ($1, $2, $3, $4)
	`
	exec := txcontext.Execer(ctx, s.db)
	for _, n := range notes {
		if _, err := exec.ExecContext(ctx, query, uuid.UUID(id), uuid.UUID(n.AuditorID), n.Comment, n.CreatedAt); err != nil {
			return fmt.Errorf("insert audit note: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListByAsset(ctx context.Context, asset domain.AssetID) ([]*models.ChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM change_requests WHERE asset_id = $1 ORDER BY created_at, code`
	return s.list(ctx, query, uuid.UUID(asset))
}

func (s *PostgresStore) ListByState(ctx context.Context, state models.State) ([]*models.ChangeRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM change_requests WHERE state = $1 ORDER BY created_at, code`
	return s.list(ctx, query, string(state))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.ChangeRequest, error) {
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query change requests: %w", err)
	}
	defer rows.Close()

	var out []*models.ChangeRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change request: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change requests: %w", err)
	}
	if err := s.attachNotes(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) attachNotes(ctx context.Context, reqs []*models.ChangeRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]string, len(reqs))
	byID := make(map[domain.ChangeRequestID]*models.ChangeRequest, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID.String()
		byID[r.ID] = r
	}
	query := `
		SELECT request_id, auditor_id, comment, created_at
		FROM change_request_audit_notes
		WHERE request_id = ANY($1)
		ORDER BY id
	`
	rows, err := txcontext.Execer(ctx, s.db).QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query audit notes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			requestID, auditorID uuid.UUID
			n                    models.AuditNote
		)
		if err := rows.Scan(&requestID, &auditorID, &n.Comment, &n.CreatedAt); err != nil {
			return fmt.Errorf("scan audit note: %w", err)
		}
		n.AuditorID = domain.PrincipalID(auditorID)
		if r, ok := byID[domain.ChangeRequestID(requestID)]; ok {
			r.AuditNotes = append(r.AuditNotes, n)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.ChangeRequest, error) {
	var (
		r                       models.ChangeRequest
		id, assetID, proposerID uuid.UUID
		state, kind             string
		diffs                   []byte
		reviewerID              uuid.NullUUID
		reviewedAt              sql.NullTime
		reviewComment           sql.NullString
		approvalSeq             sql.NullInt64
	)
	if err := row.Scan(&id, &r.Code, &r.CreatedAt, &state, &kind, &assetID, &proposerID,
		&r.Justification, &diffs, &reviewerID, &reviewedAt, &reviewComment, &approvalSeq); err != nil {
		return nil, err
	}
	entries, err := decodeDiffs(diffs)
	if err != nil {
		return nil, fmt.Errorf("decode diffs: %w", err)
	}
	r.ID = domain.ChangeRequestID(id)
	r.State = models.State(state)
	r.Kind = models.OperationKind(kind)
	r.AssetID = domain.AssetID(assetID)
	r.ProposerID = domain.PrincipalID(proposerID)
	r.Diffs = entries
	if reviewerID.Valid {
		r.Review = &models.Review{
			ReviewerID: domain.PrincipalID(reviewerID.UUID),
			ReviewedAt: reviewedAt.Time.In(time.UTC),
			Decision:   r.State,
			Comment:    reviewComment.String,
			Sequence:   approvalSeq.Int64,
		}
	}
	return &r, nil
}

func nullSequence(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n > 0}
}
