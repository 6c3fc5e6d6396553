package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fudly/marketplace-api/internal/model"
	"github.com/fudly/marketplace-api/internal/repository"
	"github.com/fudly/marketplace-api/internal/service"
)

// SellerHandler bundles everything a store owner needs: store registration,
// offer management, the store's booking ledger and code redemption at the
// counter.
type SellerHandler struct {
	Engine   *service.Engine
	Stores   *repository.StoreRepo
	Offers   *repository.OfferRepo
	Bookings *repository.BookingRepo
}

func NewSellerHandler(engine *service.Engine, stores *repository.StoreRepo, offers *repository.OfferRepo, bookings *repository.BookingRepo) *SellerHandler {
	if engine == nil || stores == nil || offers == nil || bookings == nil {
		panic("nil dependency passed to NewSellerHandler")
	}
	return &SellerHandler{Engine: engine, Stores: stores, Offers: offers, Bookings: bookings}
}

// CreateStore handles POST /v1/seller/stores.  Any authenticated user may
// apply; the store starts pending until an administrator reviews it.
func (h *SellerHandler) CreateStore(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Name        string  `json:"name"`
		City        string  `json:"city"`
		Address     *string `json:"address"`
		Description *string `json:"description"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.Name = strings.TrimSpace(body.Name)
	body.City = strings.TrimSpace(body.City)
	if body.Name == "" || body.City == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name and city are required"})
	}

	s := &model.Store{OwnerID: userID, Name: body.Name, City: body.City, Address: body.Address, Description: body.Description}
	if err := h.Stores.Create(c.Request().Context(), s); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": s.ID, "status": s.Status})
}

// MyStores handles GET /v1/seller/stores and includes pending and rejected
// applications so owners can track review outcomes.
func (h *SellerHandler) MyStores(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	stores, err := h.Stores.ListByOwner(c.Request().Context(), userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	out := make([]echo.Map, 0, len(stores))
	for _, s := range stores {
		entry := echo.Map{
			"id":     s.ID,
			"name":   s.Name,
			"city":   s.City,
			"status": s.Status,
		}
		if s.RejectionReason != nil {
			entry["rejection_reason"] = *s.RejectionReason
		}
		out = append(out, entry)
	}
	return c.JSON(http.StatusOK, echo.Map{"stores": out})
}

// CreateOffer handles POST /v1/seller/offers.  The store must belong to the
// caller and be approved before offers can go up.
func (h *SellerHandler) CreateOffer(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		StoreID            uint64  `json:"store_id"`
		Title              string  `json:"title"`
		Description        *string `json:"description"`
		OriginalPriceCents uint32  `json:"original_price_cents"`
		DiscountPriceCents uint32  `json:"discount_price_cents"`
		Quantity           uint32  `json:"quantity"`
		ExpiryDate         *string `json:"expiry_date"` // YYYY-MM-DD
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	body.Title = strings.TrimSpace(body.Title)
	if body.StoreID == 0 || body.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "store_id and title are required"})
	}
	if body.Quantity == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "quantity must be positive"})
	}
	if body.DiscountPriceCents > body.OriginalPriceCents {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "discount price exceeds original price"})
	}
	var expiry *time.Time
	if body.ExpiryDate != nil && *body.ExpiryDate != "" {
		t, err := time.ParseInLocation("2006-01-02", *body.ExpiryDate, time.UTC)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "expiry_date must be YYYY-MM-DD"})
		}
		if t.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "expiry_date is in the past"})
		}
		expiry = &t
	}

	ctx := c.Request().Context()
	s, err := h.Stores.GetByID(ctx, body.StoreID)
	if err != nil {
		return writeDomainError(c, err)
	}
	if s.OwnerID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	if !s.Offerable() {
		return c.JSON(http.StatusConflict, echo.Map{"error": "store is not approved"})
	}

	o := &model.Offer{
		StoreID:            body.StoreID,
		Title:              body.Title,
		Description:        body.Description,
		OriginalPriceCents: body.OriginalPriceCents,
		DiscountPriceCents: body.DiscountPriceCents,
		InitialQuantity:    body.Quantity,
		ExpiryDate:         expiry,
	}
	if err := h.Offers.Create(ctx, o, s.City); err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": o.ID, "status": o.Status, "remaining_quantity": o.RemainingQuantity})
}

// StoreOffers handles GET /v1/seller/stores/:id/offers and shows the full
// inventory including exhausted and deactivated offers.
func (h *SellerHandler) StoreOffers(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	storeID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid store id"})
	}
	offers, err := h.Offers.ListByStoreForOwner(c.Request().Context(), storeID, userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	out := make([]echo.Map, 0, len(offers))
	for _, o := range offers {
		out = append(out, echo.Map{
			"id":                 o.ID,
			"title":              o.Title,
			"remaining_quantity": o.RemainingQuantity,
			"initial_quantity":   o.InitialQuantity,
			"expiry_date":        formatDate(o.ExpiryDate),
			"status":             o.Status,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"offers": out})
}

// DeleteOffer handles DELETE /v1/seller/offers/:id.  Withdrawal is a soft
// delete: pending bookings against the offer stay valid and can still be
// cancelled or redeemed.
func (h *SellerHandler) DeleteOffer(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	offerID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid offer id"})
	}
	if err := h.Offers.SoftDelete(c.Request().Context(), offerID, userID); err != nil {
		return writeDomainError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StoreBookings handles GET /v1/seller/stores/:id/bookings.
func (h *SellerHandler) StoreBookings(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	storeID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid store id"})
	}
	views, err := h.Bookings.ListByStore(c.Request().Context(), storeID, userID)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": views})
}

// Redeem handles POST /v1/seller/redeem.  The clerk submits the customer's
// pickup code; a pending booking on one of the caller's offers is completed.
func (h *SellerHandler) Redeem(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	code := strings.ToUpper(strings.TrimSpace(body.Code))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}

	b, err := h.Engine.CompleteByCode(c.Request().Context(), userID, code)
	if err != nil {
		return writeDomainError(c, err)
	}
	return c.JSON(http.StatusOK, bookingResp(b))
}
