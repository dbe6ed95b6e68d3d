package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"custodian/internal/ledger/history"
	"custodian/internal/ledger/models"
	"custodian/internal/ledger/policy"
	"custodian/internal/ledger/versioning"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/audit"
)

// AssetView is an asset with its derived version, rendered as "vX.Y.Z" or
// versioning.Unversioned.
type AssetView struct {
	Asset   *models.Asset
	Version string
}

// GetAsset returns the asset and its current version.
func (s *Service) GetAsset(ctx context.Context, p domain.Principal, id domain.AssetID) (_ *AssetView, err error) {
	ctx, span := s.startSpan(ctx, "GetAsset", attribute.String("asset.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionViewApproved); err != nil {
		return nil, err
	}

	cached, gen, hit := s.cachedVersion(ctx, id)

	view := &AssetView{Version: cached}
	var reqs []*models.ChangeRequest
	err = s.tx.View(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			a, err := s.assets.FindByID(gctx, id)
			if err != nil {
				return translate(err, "asset not found")
			}
			view.Asset = a
			return nil
		})
		if !hit {
			g.Go(func() error {
				r, err := s.requests.ListByAsset(gctx, id)
				if err != nil {
					return translate(err, "asset not found")
				}
				reqs = r
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}
	if hit {
		return view, nil
	}

	models.SortBySequence(reqs)
	v, err := render(versioning.Derive(reqs))
	if err != nil {
		return nil, err
	}
	s.fillVersion(ctx, id, gen, v)
	view.Version = v
	return view, nil
}

// History returns the asset's timeline as visible to p, most recent first.
func (s *Service) History(ctx context.Context, p domain.Principal, id domain.AssetID) (_ []history.Entry, err error) {
	ctx, span := s.startSpan(ctx, "History", attribute.String("asset.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionViewApproved); err != nil {
		return nil, err
	}
	reqs, err := s.requestsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := history.Project(reqs, p.Capabilities)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to project history")
	}

	e := s.event(ctx, audit.EventHistoryViewed, p.ID, nil)
	e.AssetID = id
	s.trackOps(ctx, e)
	return entries, nil
}

// VersionAsOf returns the version the asset had at t.
func (s *Service) VersionAsOf(ctx context.Context, p domain.Principal, id domain.AssetID, t time.Time) (_ string, err error) {
	ctx, span := s.startSpan(ctx, "VersionAsOf", attribute.String("asset.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionViewApproved); err != nil {
		return "", err
	}
	reqs, err := s.requestsFor(ctx, id)
	if err != nil {
		return "", err
	}
	models.SortBySequence(reqs)
	return render(versioning.DeriveAsOf(reqs, t))
}

// ListByParty returns the assets the party is responsible for.
func (s *Service) ListByParty(ctx context.Context, p domain.Principal, party domain.PartyID) (_ []*models.Asset, err error) {
	ctx, span := s.startSpan(ctx, "ListByParty", attribute.String("party.id", party.String()))
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionViewApproved); err != nil {
		return nil, err
	}
	assets := []*models.Asset{}
	err = s.tx.View(ctx, func(ctx context.Context) error {
		ids, err := s.parties.ListAssets(ctx, party)
		if err != nil {
			return translate(err, "party not found")
		}
		if len(ids) == 0 {
			return nil
		}
		assets, err = s.assets.FindByIDs(ctx, ids)
		if err != nil {
			return translate(err, "asset not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// ListPending returns the review queue, oldest submission first.
func (s *Service) ListPending(ctx context.Context, p domain.Principal) (_ []*models.ChangeRequest, err error) {
	ctx, span := s.startSpan(ctx, "ListPending")
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionReviewQueue); err != nil {
		return nil, err
	}
	var reqs []*models.ChangeRequest
	err = s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		reqs, err = s.requests.ListByState(ctx, models.StatePending)
		return err
	})
	if err != nil {
		return nil, translate(err, "change request not found")
	}
	return reqs, nil
}

// GetRequest returns a single change request. Requests p may not see are
// reported as not found.
func (s *Service) GetRequest(ctx context.Context, p domain.Principal, id domain.ChangeRequestID) (_ *models.ChangeRequest, err error) {
	ctx, span := s.startSpan(ctx, "GetRequest", attribute.String("change_request.id", id.String()))
	defer func() { endSpan(span, err) }()

	if err := policy.Require(p, policy.ActionViewApproved); err != nil {
		return nil, err
	}
	var req *models.ChangeRequest
	err = s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, translate(err, "change request not found")
	}
	if !policy.CanViewRequest(p, req) {
		return nil, dErrors.New(dErrors.CodeNotFound, "change request not found")
	}
	return req, nil
}

// cachedVersion reports a cache hit and, on a miss, the generation a later
// fill must be checked against.
func (s *Service) cachedVersion(ctx context.Context, id domain.AssetID) (string, int64, bool) {
	if s.cache == nil {
		return "", 0, false
	}
	v, gen, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.WarnContext(ctx, "version cache unavailable", "asset_id", id, "error", err)
	}
	if s.metrics != nil {
		s.metrics.IncCacheLookup(ok)
	}
	return v, gen, ok
}

func (s *Service) fillVersion(ctx context.Context, id domain.AssetID, gen int64, version string) {
	if s.cache == nil {
		return
	}
	stored, err := s.cache.Put(ctx, id, gen, version)
	if err != nil {
		s.logger.WarnContext(ctx, "version cache write failed", "asset_id", id, "error", err)
		return
	}
	if !stored {
		s.logger.DebugContext(ctx, "version cache fill superseded", "asset_id", id, "generation", gen)
	}
}

func (s *Service) requestsFor(ctx context.Context, id domain.AssetID) ([]*models.ChangeRequest, error) {
	var reqs []*models.ChangeRequest
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		reqs, err = s.requests.ListByAsset(ctx, id)
		return err
	})
	if err != nil {
		return nil, translate(err, "asset not found")
	}
	if len(reqs) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "asset not found")
	}
	return reqs, nil
}

func render(v versioning.Version, err error) (string, error) {
	if errors.Is(err, versioning.ErrUnversioned) {
		return versioning.Unversioned, nil
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive version")
	}
	return v.String(), nil
}
