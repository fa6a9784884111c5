package handlers

import (
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/contentpilot-ai/contentpilot/internal/api/dto"
	"github.com/contentpilot-ai/contentpilot/internal/api/middleware"
	"github.com/contentpilot-ai/contentpilot/internal/domain/repositories"
)

type BillingHandler struct {
	plans         *repositories.PlanRepository
	subscriptions *repositories.SubscriptionRepository
}

func NewBillingHandler(plans *repositories.PlanRepository, subscriptions *repositories.SubscriptionRepository) *BillingHandler {
	return &BillingHandler{plans: plans, subscriptions: subscriptions}
}

func (h *BillingHandler) GetPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.FindActive(r.Context())
	if err != nil {
		dto.InternalServerError(w, "failed to load plans")
		return
	}

	response := make([]dto.PlanResponse, 0, len(plans))
	for _, p := range plans {
		response = append(response, dto.PlanResponse{
			ID:             p.ID,
			Name:           p.Name,
			Description:    p.Description,
			PriceMonthly:   p.PriceMonthly,
			MonthlyCredits: p.MonthlyCredits,
			SchedulesLimit: p.SchedulesLimit,
		})
	}
	dto.OK(w, response)
}

func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerFromContext(r.Context())
	if !ok {
		dto.Unauthorized(w, "authentication required")
		return
	}

	sub, err := h.subscriptions.FindByOwnerID(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			dto.NotFound(w, "subscription")
			return
		}
		dto.InternalServerError(w, "failed to load subscription")
		return
	}

	dto.OK(w, dto.SubscriptionResponse{
		PlanID:             sub.PlanID,
		Status:             sub.Status,
		CreditsAvailable:   sub.CreditsAvailable,
		CurrentPeriodStart: sub.CurrentPeriodStart.Unix(),
		CurrentPeriodEnd:   sub.CurrentPeriodEnd.Unix(),
	})
}
