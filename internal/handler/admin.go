package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/repository"
)

// AdminHandler covers store moderation and the platform dashboard.
type AdminHandler struct {
	Stores *repository.StoreRepo
	Stats  *repository.StatsRepo
}

func NewAdminHandler(stores *repository.StoreRepo, stats *repository.StatsRepo) *AdminHandler {
	if stores == nil || stats == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Stores: stores, Stats: stats}
}

// PendingStores handles GET /v1/admin/stores/pending, oldest application
// first.
func (h *AdminHandler) PendingStores(c echo.Context) error {
	stores, err := h.Stores.ListPending(c.Request().Context())
	if err != nil {
		return writeDomainError(c, err)
	}
	out := make([]echo.Map, 0, len(stores))
	for _, s := range stores {
		out = append(out, echo.Map{
			"id":          s.ID,
			"owner_id":    s.OwnerID,
			"name":        s.Name,
			"city":        s.City,
			"address":     s.Address,
			"description": s.Description,
			"created_at":  s.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"stores": out})
}

// ApproveStore handles POST /v1/admin/stores/:id/approve.  Approval also
// promotes the owner to the seller role.
func (h *AdminHandler) ApproveStore(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid store id"})
	}
	if err := h.Stores.Approve(c.Request().Context(), id); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "active"})
}

// RejectStore handles POST /v1/admin/stores/:id/reject with a reason the
// applicant will see.
func (h *AdminHandler) RejectStore(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid store id"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reason is required"})
	}
	if err := h.Stores.Reject(c.Request().Context(), id, reason); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "rejected"})
}

// PlatformStats handles GET /v1/admin/stats.
func (h *AdminHandler) PlatformStats(c echo.Context) error {
	stats, err := h.Stats.Platform(c.Request().Context())
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
