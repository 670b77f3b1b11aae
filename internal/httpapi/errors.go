// Package httpapi exposes the catalog and stock operations over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"productservice/internal/product"

	"go.uber.org/zap"
)

// Messages returned to API callers.
const (
	msgNotFound          = "Produit non trouvé"
	msgInvalidData       = "Données invalides"
	msgUpdateFailed      = "Erreur de mise à jour"
	msgInsufficientStock = "Stock insuffisant"
	msgInvalidQuantity   = "Quantité invalide"
	msgInvalidStock      = "Stock invalide"
	msgConflict          = "Conflit de mise à jour"
	msgServerError       = "Erreur serveur"
	msgAccessDenied      = "Accès refusé"
	msgInvalidToken      = "Token invalide"
)

type errorBody struct {
	Message string               `json:"message"`
	Error   string               `json:"error,omitempty"`
	Fields  []product.FieldError `json:"fields,omitempty"`
}

type insufficientStockBody struct {
	Message   string `json:"message"`
	Error     string `json:"error"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

// writeError maps a stock engine error to a status and body. invalidMessage is used for
// validation failures.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, invalidMessage string) {
	var (
		stockErr *product.InsufficientStockError
		verr     *product.ValidationError
	)
	switch {
	case errors.Is(err, product.ErrNotFound):
		writeMessage(w, http.StatusNotFound, msgNotFound)
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusBadRequest, insufficientStockBody{
			Message:   msgInsufficientStock,
			Error:     err.Error(),
			Available: stockErr.Available,
			Requested: stockErr.Requested,
		})
	case errors.Is(err, product.ErrInvalidQuantity):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: msgInvalidQuantity, Error: err.Error()})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: invalidMessage, Error: err.Error(), Fields: verr.Fields})
	case errors.Is(err, product.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Message: msgConflict, Error: err.Error()})
	default:
		a.logger.Error("❌ Request failed",
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Message: msgServerError, Error: err.Error()})
	}
}
