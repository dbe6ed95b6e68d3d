package codes

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "custodian/pkg/platform/tx"
)

// PostgresSequence issues codes from database sequences so that codes stay
// unique across server instances.
type PostgresSequence struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresSequence {
	return &PostgresSequence{db: db}
}

func (s *PostgresSequence) next(ctx context.Context, seq string) (int64, error) {
	var n int64
	if err := txcontext.Execer(ctx, s.db).QueryRowContext(ctx, `SELECT nextval($1::regclass)`, seq).Scan(&n); err != nil {
		return 0, fmt.Errorf("nextval %s: %w", seq, err)
	}
	return n, nil
}

func (s *PostgresSequence) NextAssetCode(ctx context.Context) (string, error) {
	n, err := s.next(ctx, "asset_code_seq")
	if err != nil {
		return "", err
	}
	return format(assetPrefix, n), nil
}

func (s *PostgresSequence) NextRequestCode(ctx context.Context) (string, error) {
	n, err := s.next(ctx, "change_request_code_seq")
	if err != nil {
		return "", err
	}
	return format(requestPrefix, n), nil
}

// NextApprovalSequence draws from change_request_approval_seq. Callers hold
// the asset row lock, so draws for one asset follow commit order.
func (s *PostgresSequence) NextApprovalSequence(ctx context.Context) (int64, error) {
	return s.next(ctx, "change_request_approval_seq")
}
