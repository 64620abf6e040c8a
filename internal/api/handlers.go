package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"metalprice/internal/batch"
	"metalprice/internal/material"
	"metalprice/internal/pricing"
	"metalprice/internal/provider"
	"metalprice/internal/store"
)

// maxProducts bounds one ad-hoc pricing request.
const maxProducts = 1000

// Refresher triggers a fetch-and-store run.
type Refresher interface {
	Refresh(ctx context.Context, currency string, source store.Source) (*store.StoredPriceSet, error)
}

// Catalog lists the products to reprice.
type Catalog interface {
	ListProducts(ctx context.Context) ([]pricing.Product, error)
}

// Handler serves the price API. Catalog may be nil.
type Handler struct {
	store     *store.PersistentPriceStore
	updater   *batch.Updater
	refresher Refresher
	catalog   Catalog
	logger    zerolog.Logger
}

func NewHandler(s *store.PersistentPriceStore, u *batch.Updater, r Refresher, c Catalog, logger zerolog.Logger) *Handler {
	return &Handler{store: s, updater: u, refresher: r, catalog: c, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

type storedPricesResponse struct {
	Prices   *store.StoredPriceSet `json:"prices"`
	Valid    bool                  `json:"valid"`
	Validity string                `json:"validity"`
}

type materialPriceResponse struct {
	Material string `json:"material"`
	provider.Resolution
}

type priceProductsRequest struct {
	Products []pricing.Product `json:"products"`
}

type priceProductsResponse struct {
	Currency string                `json:"currency"`
	Products []batch.PricedProduct `json:"products"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("encoding response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// GetStoredPrices handles GET /api/prices.
func (h *Handler) GetStoredPrices(w http.ResponseWriter, r *http.Request) {
	set := h.store.Load(r.Context())
	if set == nil {
		h.writeError(w, http.StatusNotFound, "no stored prices")
		return
	}
	h.writeJSON(w, http.StatusOK, storedPricesResponse{
		Prices:   set,
		Valid:    h.store.Valid(set),
		Validity: h.store.Validity().String(),
	})
}

// GetMaterialPrice handles GET /api/prices/{material}?currency=.
func (h *Handler) GetMaterialPrice(w http.ResponseWriter, r *http.Request) {
	materialType := chi.URLParam(r, "material")
	res, err := h.updater.ResolveMaterial(r.Context(), materialType, r.URL.Query().Get("currency"))
	if errors.Is(err, material.ErrUnknownMaterial) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, materialPriceResponse{Material: materialType, Resolution: res})
}

// Refresh handles POST /api/prices/refresh?currency=.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	currency := strings.TrimSpace(r.URL.Query().Get("currency"))
	if currency == "" {
		currency = h.updater.Currency()
	}
	set, err := h.refresher.Refresh(r.Context(), currency, store.SourceManual)
	if errors.Is(err, provider.ErrConfiguration) {
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, storedPricesResponse{
		Prices:   set,
		Valid:    h.store.Valid(set),
		Validity: h.store.Validity().String(),
	})
}

// PriceProducts handles POST /api/products/price.
func (h *Handler) PriceProducts(w http.ResponseWriter, r *http.Request) {
	var req priceProductsRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Products) == 0 {
		h.writeError(w, http.StatusBadRequest, "products cannot be empty")
		return
	}
	if len(req.Products) > maxProducts {
		h.writeError(w, http.StatusBadRequest, "too many products (max 1000)")
		return
	}
	h.writeJSON(w, http.StatusOK, priceProductsResponse{
		Currency: h.updater.Currency(),
		Products: h.updater.PriceAll(r.Context(), req.Products),
	})
}

// PriceCatalog handles GET /api/catalog/prices.
func (h *Handler) PriceCatalog(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		h.writeError(w, http.StatusNotFound, "catalog not configured")
		return
	}
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("listing catalog")
		h.writeError(w, http.StatusInternalServerError, "listing catalog failed")
		return
	}
	h.writeJSON(w, http.StatusOK, priceProductsResponse{
		Currency: h.updater.Currency(),
		Products: h.updater.PriceAll(r.Context(), products),
	})
}
