package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/casaluna/order-service/internal/apperr"
	"github.com/casaluna/order-service/internal/order"
	"github.com/casaluna/order-service/internal/payment"
)

type RegisterPaymentRequest struct {
	OrderID         uuid.UUID `json:"order_id" validate:"required"`
	PaymentMethodID uuid.UUID `json:"payment_method_id" validate:"required"`
	DeliveryAddress string    `json:"delivery_address"`
}

type PaymentMethodRequest struct {
	Name string `json:"name" validate:"required,min=2,max=64"`
}

type PaymentHandler struct {
	service  payment.Service
	validate *validator.Validate
}

func NewPaymentHandler(service payment.Service) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/", h.handleRegisterPayment)
	router.Get("/pending-orders", h.handlePendingOrders)
	router.Get("/history", h.handleHistory)
	router.Get("/methods", h.handleListMethods)
	router.Post("/methods", h.handleCreateMethod)
	router.Get("/methods/{methodID}", h.handleGetMethod)
	router.Put("/methods/{methodID}", h.handleUpdateMethod)
	router.Delete("/methods/{methodID}", h.handleDeleteMethod)
	router.Get("/{paymentID}", h.handleDetail)
	router.Get("/{paymentID}/receipt", h.handleDownloadReceipt)
}

func (h *PaymentHandler) handleRegisterPayment(w http.ResponseWriter, r *http.Request) {
	customerID, err := callerID(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	var requestPayload RegisterPaymentRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}
	if err := validateStruct(h.validate, requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	result, err := h.service.RegisterPayment(r.Context(),
		requestPayload.OrderID, customerID, requestPayload.PaymentMethodID,
		requestPayload.DeliveryAddress, tokenFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

func (h *PaymentHandler) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.PendingOrders(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *PaymentHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilterFromQuery(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	page, err := h.service.History(r.Context(), filter)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithList(w, http.StatusOK, page.Items, newPagination(page.Page, page.Limit, page.Total))
}

func historyFilterFromQuery(r *http.Request) (payment.HistoryFilter, error) {
	filter := payment.HistoryFilter{Page: 1, Limit: 20}
	query := r.URL.Query()

	if raw := query.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filter, apperr.Validation("page must be a positive integer")
		}
		filter.Page = page
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 100 {
			return filter, apperr.Validation("limit must be between 1 and 100")
		}
		filter.Limit = limit
	}
	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperr.Validation("from must be an RFC3339 timestamp")
		}
		filter.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperr.Validation("to must be an RFC3339 timestamp")
		}
		filter.To = &to
	}
	if raw := query.Get("method_id"); raw != "" {
		methodID, err := uuid.FromString(raw)
		if err != nil {
			return filter, apperr.Validation("method_id is not a valid UUID")
		}
		filter.MethodID = &methodID
	}
	if raw := query.Get("order_status"); raw != "" {
		status := order.Status(raw)
		if !status.Valid() {
			return filter, apperr.Validation("unknown order status %q", raw)
		}
		filter.OrderStatus = &status
	}

	return filter, nil
}

func (h *PaymentHandler) handleDetail(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuidParam(r, "paymentID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	detail, err := h.service.Detail(r.Context(), paymentID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

// handleDownloadReceipt streams the stored receipt document as an attachment.
func (h *PaymentHandler) handleDownloadReceipt(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuidParam(r, "paymentID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	detail, err := h.service.Detail(r.Context(), paymentID)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if detail.Payment.ReceiptURL == "" {
		respondWithError(w, apperr.NotFound("payment %s has no receipt", paymentID))
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="receipt-`+paymentID.String()+`.pdf"`)
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, detail.Payment.ReceiptURL)
}

func (h *PaymentHandler) handleListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.service.Methods(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, methods)
}

func (h *PaymentHandler) handleCreateMethod(w http.ResponseWriter, r *http.Request) {
	var requestPayload PaymentMethodRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}
	if err := validateStruct(h.validate, requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	method, err := h.service.CreateMethod(r.Context(), requestPayload.Name)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, method)
}

func (h *PaymentHandler) handleGetMethod(w http.ResponseWriter, r *http.Request) {
	methodID, err := uuidParam(r, "methodID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	method, err := h.service.Method(r.Context(), methodID)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, method)
}

func (h *PaymentHandler) handleUpdateMethod(w http.ResponseWriter, r *http.Request) {
	methodID, err := uuidParam(r, "methodID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	var requestPayload PaymentMethodRequest
	if err := decodeJSON(r, &requestPayload); err != nil {
		respondWithError(w, err)
		return
	}
	if err := validateStruct(h.validate, requestPayload); err != nil {
		respondWithError(w, err)
		return
	}

	method, err := h.service.UpdateMethod(r.Context(), methodID, requestPayload.Name)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, method)
}

func (h *PaymentHandler) handleDeleteMethod(w http.ResponseWriter, r *http.Request) {
	methodID, err := uuidParam(r, "methodID")
	if err != nil {
		respondWithError(w, err)
		return
	}

	if err := h.service.DeleteMethod(r.Context(), methodID); err != nil {
		respondWithError(w, err)
		return
	}

	respondWithMessage(w, http.StatusOK, "payment method deleted")
}
