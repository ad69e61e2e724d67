package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/casaluna/order-service/internal/cart"
	"github.com/casaluna/order-service/internal/order"
)

type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type UpdateLineRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type CartResponse struct {
	Order     *order.Order `json:"order"`
	LineCount int          `json:"line_count"`
}

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(service cart.Service) *CartHandler {
	return &CartHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Get("/cart", h.handleGetCart)
	router.Get("/cart/lines", h.handleGetCartLines)
	router.Post("/cart/lines", h.handleAddItem)
	router.Put("/cart/lines/{lineID}", h.handleUpdateLine)
	router.Delete("/cart/lines/{lineID}", h.handleRemoveLine)
	router.Delete("/cart", h.handleClearCart)
}

func (h *CartHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	var requestPayload AddItemRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}
	if err := validateStruct(h.validate, requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	result, err := h.service.AddItem(r.Context(), customerID, requestPayload.ProductID, requestPayload.Quantity, tokenFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

func (h *CartHandler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	cartOrder, err := h.service.Cart(r.Context(), customerID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	lineCount := 0
	if cartOrder != nil {
		lineCount = len(cartOrder.Lines)
	}
	respondWithJSON(w, http.StatusOK, CartResponse{Order: cartOrder, LineCount: lineCount})
}

func (h *CartHandler) handleGetCartLines(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	lines, err := h.service.CartLines(r.Context(), customerID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, lines)
}

func (h *CartHandler) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	lineID, err := uuidParam(r, "lineID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	var requestPayload UpdateLineRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}
	if err := validateStruct(h.validate, requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	updated, err := h.service.UpdateLineQuantity(r.Context(), lineID, customerID, requestPayload.Quantity)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *CartHandler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	lineID, err := uuidParam(r, "lineID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	updated, err := h.service.RemoveLine(r.Context(), lineID, customerID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *CartHandler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.service.Clear(r.Context(), customerID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithMessage(w, http.StatusOK, "cart cleared")
}
