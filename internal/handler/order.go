package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/casaluna/order-service/internal/apperr"
	"github.com/casaluna/order-service/internal/order"
)

type ConfirmOrderRequest struct {
	DeliveryAddress string `json:"delivery_address"`
}

type StaffLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type CreateStaffOrderRequest struct {
	Lines   []StaffLineRequest `json:"lines" validate:"required,min=1,dive"`
	TableID *uuid.UUID         `json:"table_id"`
}

type AddOrderLineRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Post("/confirm", h.handleConfirm)
	router.Post("/staff", h.handleCreateStaffOrder)
	router.Get("/history", h.handleHistory)
	router.Get("/in-progress", h.handleInProgress)
	router.Get("/", h.handleAll)
	router.Get("/{orderID}", h.handleDetail)
	router.Post("/{orderID}/lines", h.handleAddLine)
	router.Patch("/{orderID}/status", h.handleUpdateStatus)
	router.Post("/{orderID}/cancel", h.handleCancel)
	router.Delete("/{orderID}", h.handleDelete)
	router.Delete("/lines/{lineID}", h.handleRemoveLine)
}

func (h *OrderHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	var requestPayload ConfirmOrderRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	confirmed, err := h.service.Confirm(r.Context(), customerID, requestPayload.DeliveryAddress, tokenFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, confirmed)
}

func (h *OrderHandler) handleCreateStaffOrder(w http.ResponseWriter, r *http.Request) {
	staffID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	var requestPayload CreateStaffOrderRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}
	if err := validateStruct(h.validate, requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	lines := make([]order.StaffLine, 0, len(requestPayload.Lines))
	for _, l := range requestPayload.Lines {
		lines = append(lines, order.StaffLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	result, err := h.service.CreateStaffOrder(r.Context(), staffID, lines, requestPayload.TableID, tokenFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

func (h *OrderHandler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "orderID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	var requestPayload AddOrderLineRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}
	if err := validateStruct(h.validate, requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	updated, line, err := h.service.AddLine(r.Context(), orderID, requestPayload.ProductID, requestPayload.Quantity, tokenFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]interface{}{
		"order": updated,
		"line":  line,
	})
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "orderID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	var requestPayload UpdateStatusRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}
	if err := validateStruct(h.validate, requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	newStatus := order.Status(requestPayload.Status)
	if !newStatus.Valid() {
		respondWithError(w, apperr.Validation("unknown order status %q", requestPayload.Status))
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), orderID, newStatus)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}
	orderID, err := uuidParam(r, "orderID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.service.Cancel(r.Context(), orderID, customerID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithMessage(w, http.StatusOK, "order cancelled")
}

func (h *OrderHandler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := uuidParam(r, "lineID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.service.RemoveLine(r.Context(), lineID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithMessage(w, http.StatusOK, "order line removed")
}

func (h *OrderHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "orderID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), orderID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithMessage(w, http.StatusOK, "order deleted")
}

func (h *OrderHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	orders, err := h.service.History(r.Context(), customerID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleInProgress(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.InProgress(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.All(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleDetail(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuidParam(r, "orderID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	detail, err := h.service.Detail(r.Context(), orderID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}
