// Package ledger assembles the change-request ledger for a storage backend.
package ledger

import (
	"database/sql"
	"log/slog"
	"time"

	"custodian/internal/ledger/handler"
	"custodian/internal/ledger/service"
	assetstore "custodian/internal/ledger/store/asset"
	crstore "custodian/internal/ledger/store/changerequest"
	"custodian/internal/ledger/store/codes"
	partystore "custodian/internal/ledger/store/party"
	"custodian/pkg/platform/audit"
	auditmemory "custodian/pkg/platform/audit/store/memory"
	auditpostgres "custodian/pkg/platform/audit/store/postgres"
	"custodian/pkg/platform/tx"
)

// Service exposes the ledger operations.
type Service = service.Service

// Handler wires HTTP endpoints to the ledger service.
type Handler = handler.Handler

// Stores bundles the persistence of one backend. Audit receives compliance
// events inside the ledger transaction.
type Stores struct {
	Assets   service.AssetStore
	Requests service.ChangeRequestStore
	Parties  service.PartyIndex
	Codes    service.CodeGenerator
	Audit    audit.Store
	Tx       service.StoreTx
}

// NewMemoryStores builds in-memory stores sharing one snapshotting transaction.
func NewMemoryStores() Stores {
	assets := assetstore.New()
	requests := crstore.New()
	parties := partystore.New()
	events := auditmemory.NewInMemoryStore()
	return Stores{
		Assets:   assets,
		Requests: requests,
		Parties:  parties,
		Codes:    codes.NewSequence(),
		Audit:    events,
		Tx:       service.NewInMemoryTx(assets, requests, parties, events),
	}
}

// NewPostgresStores builds Postgres stores. Compliance events land in the
// outbox table within the ledger transaction.
func NewPostgresStores(db *sql.DB, txTimeout time.Duration) Stores {
	return Stores{
		Assets:   assetstore.NewPostgres(db),
		Requests: crstore.NewPostgres(db),
		Parties:  partystore.NewPostgres(db),
		Codes:    codes.NewPostgres(db),
		Audit:    auditpostgres.New(db),
		Tx:       tx.NewRunner(db, txTimeout),
	}
}

// NewService constructs the ledger service over st. Options are applied
// after the store transaction so callers may still override it.
func NewService(st Stores, opts ...service.Option) *Service {
	opts = append([]service.Option{service.WithTx(st.Tx)}, opts...)
	return service.New(st.Assets, st.Requests, st.Parties, st.Codes, opts...)
}

// NewHandler constructs the HTTP handler for ledger routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
