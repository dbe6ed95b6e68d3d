// Package service orchestrates the change-request ledger: submission,
// resolution, annotation, and the read projections over asset history.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"custodian/internal/ledger/metrics"
	"custodian/internal/ledger/models"
	"custodian/internal/ledger/policy"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/audit"
	"custodian/pkg/platform/sentinel"
)

type AssetStore interface {
	Create(ctx context.Context, a *models.Asset) error
	Save(ctx context.Context, a *models.Asset) error
	FindByID(ctx context.Context, id domain.AssetID) (*models.Asset, error)
	FindByIDForUpdate(ctx context.Context, id domain.AssetID) (*models.Asset, error)
	FindByIDs(ctx context.Context, ids []domain.AssetID) ([]*models.Asset, error)
	AppendAnnotation(ctx context.Context, id domain.AssetID, n models.Annotation) error
}

type ChangeRequestStore interface {
	Create(ctx context.Context, r *models.ChangeRequest) error
	FindByID(ctx context.Context, id domain.ChangeRequestID) (*models.ChangeRequest, error)
	FindByIDForUpdate(ctx context.Context, id domain.ChangeRequestID) (*models.ChangeRequest, error)
	Resolve(ctx context.Context, r *models.ChangeRequest) error
	Execute(ctx context.Context, id domain.ChangeRequestID, validate func(*models.ChangeRequest) error, mutate func(*models.ChangeRequest)) (*models.ChangeRequest, error)
	ListByAsset(ctx context.Context, asset domain.AssetID) ([]*models.ChangeRequest, error)
	ListByState(ctx context.Context, state models.State) ([]*models.ChangeRequest, error)
}

// PartyIndex is the responsible-party back-reference index.
type PartyIndex interface {
	Move(ctx context.Context, asset domain.AssetID, from, to domain.PartyID) error
	ListAssets(ctx context.Context, party domain.PartyID) ([]domain.AssetID, error)
}

type CodeGenerator interface {
	NextAssetCode(ctx context.Context) (string, error)
	NextRequestCode(ctx context.Context) (string, error)
	NextApprovalSequence(ctx context.Context) (int64, error)
}

// StoreTx runs fn atomically across every store. fn must use the context it
// is given so Postgres stores join the transaction. View runs read-only fn
// so that it never observes a write transaction that is still in progress.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
	View(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditPublisher persists compliance events. An error fails the operation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// SecurityPublisher buffers security events. It never fails the caller.
type SecurityPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// OpsTracker records sampled operational events.
type OpsTracker interface {
	Track(ctx context.Context, event audit.Event)
}

// VersionCache memoizes derived versions. It is never authoritative. Get
// reports the generation current at lookup; Put stores only if no Invalidate
// ran since, so a version derived before an approval cannot be written back
// after it.
type VersionCache interface {
	Get(ctx context.Context, id domain.AssetID) (version string, generation int64, ok bool, err error)
	Put(ctx context.Context, id domain.AssetID, generation int64, version string) (bool, error)
	Invalidate(ctx context.Context, id domain.AssetID) error
}

// Service orchestrates the ledger.
type Service struct {
	assets   AssetStore
	requests ChangeRequestStore
	parties  PartyIndex
	codes    CodeGenerator
	tx       StoreTx

	policy   policy.Policy
	logger   *slog.Logger
	audit    AuditPublisher
	security SecurityPublisher
	ops      OpsTracker
	cache    VersionCache
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func WithSecurityPublisher(p SecurityPublisher) Option {
	return func(s *Service) {
		s.security = p
	}
}

func WithOpsTracker(t OpsTracker) Option {
	return func(s *Service) {
		s.ops = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPolicy(p policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithVersionCache(c VersionCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithTx replaces the default in-memory transaction runner.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service. Without WithTx, the stores must be in-memory
// stores; any of them implementing Snapshotter is rolled back when a
// transaction fails.
func New(assets AssetStore, requests ChangeRequestStore, parties PartyIndex, codes CodeGenerator, opts ...Option) *Service {
	s := &Service{
		assets:   assets,
		requests: requests,
		parties:  parties,
		codes:    codes,
		policy:   policy.Default(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("custodian/ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewInMemoryTx(snapshotters(assets, requests, parties, s.audit)...)
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ledger."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// translate maps store sentinels onto domain errors. Domain errors pass through.
func translate(err error, notFound string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "record already exists")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, "change request already resolved")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "ledger storage failure")
}
