package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/careerlinkhq/careerlink-backend/api/responses"
	"github.com/careerlinkhq/careerlink-backend/pkg/db/models"
	pkgerrors "github.com/careerlinkhq/careerlink-backend/pkg/errors"
	"github.com/careerlinkhq/careerlink-backend/pkg/logger"
)

// PlanService lists the purchasable plan catalog.
type PlanService interface {
	List(ctx context.Context) ([]models.Plan, error)
}

type planResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	PriceCents   int64     `json:"price_cents"`
	Price        string    `json:"price"`
	ValidityDays int       `json:"validity_days"`
}

// ListPlans returns every plan currently offered for purchase.
func ListPlans(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan service unavailable"))
			return
		}

		plans, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]planResponse, 0, len(plans))
		for _, plan := range plans {
			out = append(out, planResponse{
				ID:           plan.ID,
				Name:         plan.Name.String(),
				PriceCents:   plan.PriceCents,
				Price:        plan.PriceDollars().StringFixed(2),
				ValidityDays: plan.ValidityDays,
			})
		}
		responses.WriteSuccess(w, out)
	}
}
