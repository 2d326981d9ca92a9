package plans

import (
	"context"
	"errors"

	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	"github.com/careerlinkhq/careerlink-backend/pkg/enums"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

// Service exposes read access to the purchasable plan catalog.
type Service struct {
	repo Repository
	logg *logger.Logger
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
}

// NewService validates dependencies and returns a plan catalog service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("plans: repository is required")
	}
	if params.Logger == nil {
		return nil, errors.New("plans: logger is required")
	}
	return &Service{repo: params.Repo, logg: params.Logger}, nil
}

// List returns every plan currently offered for purchase.
func (s *Service) List(ctx context.Context) ([]models.Plan, error) {
	out, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to list plans")
	}
	return out, nil
}

// GetByName resolves a catalog plan, rejecting unknown or retired tiers.
func (s *Service) GetByName(ctx context.Context, name enums.PlanName) (*models.Plan, error) {
	if !name.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown plan name")
	}
	plan, err := s.repo.FindByName(ctx, name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to load plan")
	}
	if plan == nil || !plan.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not available")
	}
	return plan, nil
}
