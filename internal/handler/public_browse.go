package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/model"
	"github.com/fudly/marketplace-api/internal/repository"
)

// PublicHandler serves the unauthenticated browse surface: reservable offers
// and approved stores.  These endpoints sit behind the response cache and
// rate limit middleware, so they tolerate read-heavy traffic.
type PublicHandler struct {
	Offers *repository.OfferRepo
	Stores *repository.StoreRepo
}

func NewPublicHandler(offers *repository.OfferRepo, stores *repository.StoreRepo) *PublicHandler {
	if offers == nil || stores == nil {
		panic("nil repository passed to NewPublicHandler")
	}
	return &PublicHandler{Offers: offers, Stores: stores}
}

// ListOffers handles GET /v1/offers.  Optional query parameters "city" and
// "store_id" narrow the result; only reservable offers of approved stores
// appear.
func (h *PublicHandler) ListOffers(c echo.Context) error {
	city := c.QueryParam("city")
	var storeID uint64
	if raw := c.QueryParam("store_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid store_id"})
		}
		storeID = id
	}
	listings, err := h.Offers.ListActive(c.Request().Context(), city, storeID, time.Now())
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"offers": listings})
}

// GetOffer handles GET /v1/offers/:id.  Deleted offers are not exposed.
func (h *PublicHandler) GetOffer(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offer id"})
	}
	o, err := h.Offers.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	if o.Status == model.OfferStatusDeleted {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "offer not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":                   o.ID,
		"store_id":             o.StoreID,
		"title":                o.Title,
		"description":          o.Description,
		"original_price_cents": o.OriginalPriceCents,
		"discount_price_cents": o.DiscountPriceCents,
		"remaining_quantity":   o.RemainingQuantity,
		"expiry_date":          formatDate(o.ExpiryDate),
		"status":               o.Status,
	})
}

// ListStores handles GET /v1/stores?city=...; only approved stores are
// listed.
func (h *PublicHandler) ListStores(c echo.Context) error {
	city := c.QueryParam("city")
	if city == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "city is required"})
	}
	stores, err := h.Stores.ListByCity(c.Request().Context(), city)
	if err != nil {
		return writeDomainError(c, err)
	}
	out := make([]echo.Map, 0, len(stores))
	for _, s := range stores {
		out = append(out, publicStore(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"stores": out})
}

// GetStore handles GET /v1/stores/:id.  Pending and rejected stores stay
// hidden from the public.
func (h *PublicHandler) GetStore(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid store id"})
	}
	s, err := h.Stores.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeDomainError(c, err)
	}
	if !s.Offerable() {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "store not found"})
	}
	return c.JSON(http.StatusOK, publicStore(s))
}

func publicStore(s *model.Store) echo.Map {
	return echo.Map{
		"id":          s.ID,
		"name":        s.Name,
		"city":        s.City,
		"address":     s.Address,
		"description": s.Description,
	}
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02")
	return &s
}
