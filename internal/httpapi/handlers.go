package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"productservice/internal/platform/observability"
	"productservice/internal/product"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Catalog is the subset of the stock engine served over HTTP.
type Catalog interface {
	Create(ctx context.Context, d product.Draft) (product.Product, error)
	Get(ctx context.Context, id string) (product.Product, error)
	List(ctx context.Context) ([]product.Product, error)
	Search(ctx context.Context, query string) ([]product.Product, error)
	Paginate(ctx context.Context, page, limit int) (product.Page, error)
	LowStock(ctx context.Context, threshold int) ([]product.Product, error)
	SetStock(ctx context.Context, id string, value int) (product.StockMutation, error)
	Reserve(ctx context.Context, id string, quantity int, correlationID string) (product.StockMutation, error)
	Release(ctx context.Context, id string, quantity int, correlationID string) (product.StockMutation, error)
	UpdateFields(ctx context.Context, id string, patch product.Patch) (product.Product, error)
	Delete(ctx context.Context, id string) (product.Product, error)
}

// API holds the HTTP handlers and their dependencies.
type API struct {
	catalog Catalog
	logger  *zap.Logger
	metrics *observability.Metrics
	secret  []byte
	ready   func(ctx context.Context) error
}

// NewAPI creates the handlers. ready backs /readyz and may be nil.
func NewAPI(catalog Catalog, logger *zap.Logger, metrics *observability.Metrics, jwtSecret string, ready func(ctx context.Context) error) *API {
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	return &API{
		catalog: catalog,
		logger:  logger.With(zap.String("component", "http")),
		metrics: metrics,
		secret:  []byte(jwtSecret),
		ready:   ready,
	}
}

type productBody struct {
	Name        *string  `json:"name"`
	Origin      *string  `json:"origin"`
	Price       *float64 `json:"price"`
	Category    *string  `json:"category"`
	Stock       *int     `json:"stock"`
	Description *string  `json:"description"`
}

func (b productBody) draft() product.Draft {
	return product.Draft{
		Name:        deref(b.Name),
		Origin:      deref(b.Origin),
		Price:       b.Price,
		Category:    deref(b.Category),
		Stock:       b.Stock,
		Description: deref(b.Description),
	}
}

func (b productBody) patch() product.Patch {
	return product.Patch{
		Name:        b.Name,
		Origin:      b.Origin,
		Price:       b.Price,
		Category:    b.Category,
		Stock:       b.Stock,
		Description: b.Description,
	}
}

type quantityBody struct {
	Quantity   json.Number     `json:"quantity"`
	CommandeID json.RawMessage `json:"commandeId"`
}

type stockSetResponse struct {
	Message       string          `json:"message"`
	Product       product.Product `json:"product"`
	PreviousStock int             `json:"previousStock"`
	NewStock      int             `json:"newStock"`
}

type quantityResponse struct {
	Message        string `json:"message"`
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	PreviousStock  int    `json:"previousStock"`
	RemainingStock int    `json:"remainingStock"`
	CommandeID     string `json:"commandeId,omitempty"`
}

type deleteResponse struct {
	Message string          `json:"message"`
	Product product.Product `json:"product"`
}

func (a *API) list(w http.ResponseWriter, r *http.Request) {
	products, err := a.catalog.List(r.Context())
	if err != nil {
		a.writeError(w, r, err, msgInvalidData)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) search(w http.ResponseWriter, r *http.Request) {
	products, err := a.catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		a.writeError(w, r, err, msgInvalidData)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) paginate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := a.catalog.Paginate(r.Context(),
		intParam(q.Get("page"), product.DefaultPage),
		intParam(q.Get("limit"), product.DefaultPageLimit),
	)
	if err != nil {
		a.writeError(w, r, err, msgInvalidData)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold := intParam(r.URL.Query().Get("threshold"), product.DefaultLowStockThreshold)
	products, err := a.catalog.LowStock(r.Context(), threshold)
	if err != nil {
		a.writeError(w, r, err, msgInvalidData)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	p, err := a.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err, msgInvalidData)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) create(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: msgInvalidData, Error: err.Error()})
		return
	}

	p, err := a.catalog.Create(r.Context(), body.draft())
	if err != nil {
		a.writeError(w, r, err, msgInvalidData)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) update(w http.ResponseWriter, r *http.Request) {
	var body productBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: msgUpdateFailed, Error: err.Error()})
		return
	}

	p, err := a.catalog.UpdateFields(r.Context(), chi.URLParam(r, "id"), body.patch())
	if err != nil {
		a.writeError(w, r, err, msgUpdateFailed)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) remove(w http.ResponseWriter, r *http.Request) {
	p, err := a.catalog.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err, msgInvalidData)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Message: "Produit supprimé", Product: p})
}

func (a *API) setStock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stock json.Number `json:"stock"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: msgInvalidStock, Error: err.Error()})
		return
	}
	value, err := wholeNumber(body.Stock)
	if err != nil || value < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Message: msgInvalidStock,
			Error:   fmt.Sprintf("stock must be a non-negative integer, got %q", body.Stock.String()),
		})
		return
	}

	m, err := a.catalog.SetStock(r.Context(), chi.URLParam(r, "id"), value)
	if err != nil {
		a.writeError(w, r, err, msgInvalidStock)
		return
	}
	writeJSON(w, http.StatusOK, stockSetResponse{
		Message:       "Stock mis à jour",
		Product:       m.Product,
		PreviousStock: m.OldStock,
		NewStock:      m.NewStock,
	})
}

func (a *API) reserve(w http.ResponseWriter, r *http.Request) {
	a.moveStock(w, r, a.catalog.Reserve, "Stock réservé")
}

func (a *API) release(w http.ResponseWriter, r *http.Request) {
	a.moveStock(w, r, a.catalog.Release, "Stock libéré")
}

type stockMove func(ctx context.Context, id string, quantity int, correlationID string) (product.StockMutation, error)

func (a *API) moveStock(w http.ResponseWriter, r *http.Request, move stockMove, message string) {
	var body quantityBody
	if err := decodeBody(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: msgInvalidQuantity, Error: err.Error()})
		return
	}
	quantity, err := wholeNumber(body.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: msgInvalidQuantity, Error: err.Error()})
		return
	}
	commandeID, err := correlationID(body.CommandeID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Message: msgInvalidData, Error: err.Error()})
		return
	}

	m, err := move(r.Context(), chi.URLParam(r, "id"), quantity, commandeID)
	if err != nil {
		a.writeError(w, r, err, msgInvalidData)
		return
	}
	writeJSON(w, http.StatusOK, quantityResponse{
		Message:        message,
		ProductID:      m.ProductID,
		Quantity:       m.Quantity,
		PreviousStock:  m.OldStock,
		RemainingStock: m.NewStock,
		CommandeID:     m.CorrelationID,
	})
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// wholeNumber accepts 3 and 3.0 but rejects 3.5, strings and a missing value.
func wholeNumber(n json.Number) (int, error) {
	if n == "" {
		return 0, fmt.Errorf("a number is required")
	}
	if i, err := n.Int64(); err == nil {
		return int(i), nil
	}
	f, err := n.Float64()
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("%q is not a whole number", n.String())
	}
	return int(f), nil
}

// correlationID accepts a string or a number and returns it as a string.
func correlationID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("commandeId must be a string or a number")
}

// intParam parses a query value, falling back when it is absent or not a positive integer.
func intParam(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
