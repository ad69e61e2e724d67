package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/casaluna/order-service/internal/apperr"
	"github.com/casaluna/order-service/internal/auth"
	"github.com/casaluna/order-service/internal/handler"
	"github.com/casaluna/order-service/internal/order"
	"github.com/casaluna/order-service/internal/payment"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) RegisterPayment(ctx context.Context, orderID, customerID, methodID uuid.UUID, deliveryAddress, token string) (*payment.RegisterResult, error) {
	args := m.Called(ctx, orderID, customerID, methodID, deliveryAddress, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.RegisterResult), args.Error(1)
}

func (m *MockPaymentService) PendingOrders(ctx context.Context) ([]order.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockPaymentService) Methods(ctx context.Context) ([]payment.Method, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Method), args.Error(1)
}

func (m *MockPaymentService) CreateMethod(ctx context.Context, name string) (*payment.Method, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Method), args.Error(1)
}

func (m *MockPaymentService) Method(ctx context.Context, methodID uuid.UUID) (*payment.Method, error) {
	args := m.Called(ctx, methodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Method), args.Error(1)
}

func (m *MockPaymentService) UpdateMethod(ctx context.Context, methodID uuid.UUID, name string) (*payment.Method, error) {
	args := m.Called(ctx, methodID, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Method), args.Error(1)
}

func (m *MockPaymentService) DeleteMethod(ctx context.Context, methodID uuid.UUID) error {
	args := m.Called(ctx, methodID)
	return args.Error(0)
}

func (m *MockPaymentService) History(ctx context.Context, filter payment.HistoryFilter) (*payment.HistoryPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.HistoryPage), args.Error(1)
}

func (m *MockPaymentService) Detail(ctx context.Context, paymentID uuid.UUID) (*payment.Detail, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Detail), args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newPaymentRouter(svc payment.Service) http.Handler {
	router := chi.NewRouter()
	router.Use(auth.Middleware)
	router.Route("/api/payments", func(r chi.Router) {
		handler.NewPaymentHandler(svc).RegisterRoutes(r)
	})
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}, userID *uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-token")
	if userID != nil {
		req.Header.Set("X-User-ID", userID.String())
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestPaymentHandler_Register_Success(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)

	customerID := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())
	methodID := uuid.Must(uuid.NewV4())

	result := &payment.RegisterResult{
		Order:       &order.Order{ID: orderID, CustomerID: customerID, Status: order.StatusPending, Total: 24.00},
		Payment:     &payment.Payment{ID: uuid.Must(uuid.NewV4()), OrderID: orderID, Amount: 24.00},
		ReceiptPath: "/receipts/out.pdf",
	}
	mockService.On("RegisterPayment", mock.Anything, orderID, customerID, methodID, "1 Main St", "test-token").
		Return(result, nil).Once()

	rr := doRequest(t, router, http.MethodPost, "/api/payments/", handler.RegisterPaymentRequest{
		OrderID:         orderID,
		PaymentMethodID: methodID,
		DeliveryAddress: "1 Main St",
	}, &customerID)

	require.Equal(t, http.StatusCreated, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)

	var got payment.RegisterResult
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 24.00, got.Payment.Amount)
	assert.Equal(t, order.StatusPending, got.Order.Status)

	mockService.AssertExpectations(t)
}

func TestPaymentHandler_Register_MissingIdentity(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)

	rr := doRequest(t, router, http.MethodPost, "/api/payments/", handler.RegisterPaymentRequest{
		OrderID:         uuid.Must(uuid.NewV4()),
		PaymentMethodID: uuid.Must(uuid.NewV4()),
	}, nil)

	require.Equal(t, http.StatusForbidden, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	mockService.AssertNotCalled(t, "RegisterPayment")
}

func TestPaymentHandler_Register_InvalidJSON(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)
	customerID := uuid.Must(uuid.NewV4())

	req := httptest.NewRequest(http.MethodPost, "/api/payments/", bytes.NewBufferString("{not json"))
	req.Header.Set("X-User-ID", customerID.String())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	mockService.AssertNotCalled(t, "RegisterPayment")
}

func TestPaymentHandler_Register_MissingFields(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)
	customerID := uuid.Must(uuid.NewV4())

	rr := doRequest(t, router, http.MethodPost, "/api/payments/", handler.RegisterPaymentRequest{}, &customerID)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	mockService.AssertNotCalled(t, "RegisterPayment")
}

func TestPaymentHandler_Register_ConflictFromService(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)
	customerID := uuid.Must(uuid.NewV4())

	mockService.On("RegisterPayment", mock.Anything, mock.Anything, customerID, mock.Anything, "", "test-token").
		Return(nil, apperr.Conflict("order is not in a payable state")).Once()

	rr := doRequest(t, router, http.MethodPost, "/api/payments/", handler.RegisterPaymentRequest{
		OrderID:         uuid.Must(uuid.NewV4()),
		PaymentMethodID: uuid.Must(uuid.NewV4()),
	}, &customerID)

	require.Equal(t, http.StatusConflict, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "payable")
}

func TestPaymentHandler_Register_InternalErrorIsOpaque(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)
	customerID := uuid.Must(uuid.NewV4())

	mockService.On("RegisterPayment", mock.Anything, mock.Anything, customerID, mock.Anything, "", "test-token").
		Return(nil, assertableInternalErr()).Once()

	rr := doRequest(t, router, http.MethodPost, "/api/payments/", handler.RegisterPaymentRequest{
		OrderID:         uuid.Must(uuid.NewV4()),
		PaymentMethodID: uuid.Must(uuid.NewV4()),
	}, &customerID)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	env := decodeEnvelope(t, rr)
	// Persistence details must not leak to clients.
	assert.NotContains(t, env.Message, "pgx")
}

func assertableInternalErr() error {
	return apperr.Internal(nil, "store: pgx connection refused")
}

func TestPaymentHandler_History_ParsesFilters(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)

	status := order.StatusPending
	mockService.On("History", mock.Anything, mock.MatchedBy(func(f payment.HistoryFilter) bool {
		return f.Page == 2 && f.Limit == 10 &&
			f.OrderStatus != nil && *f.OrderStatus == status &&
			f.From != nil && f.To != nil
	})).Return(&payment.HistoryPage{Page: 2, Limit: 10, Total: 31, TotalPages: 4}, nil).Once()

	rr := doRequest(t, router, http.MethodGet,
		"/api/payments/history?page=2&limit=10&order_status=PENDING&from=2025-01-01T00:00:00Z&to=2025-12-31T00:00:00Z",
		nil, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	mockService.AssertExpectations(t)
}

func TestPaymentHandler_History_RejectsBadPage(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)

	rr := doRequest(t, router, http.MethodGet, "/api/payments/history?page=zero", nil, nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	mockService.AssertNotCalled(t, "History")
}

func TestPaymentHandler_GetMethod_NotFound(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)
	methodID := uuid.Must(uuid.NewV4())

	mockService.On("Method", mock.Anything, methodID).
		Return(nil, apperr.NotFound("payment method %s not found", methodID)).Once()

	rr := doRequest(t, router, http.MethodGet, "/api/payments/methods/"+methodID.String(), nil, nil)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPaymentHandler_CreateMethod_DuplicateConflicts(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)

	mockService.On("CreateMethod", mock.Anything, "card").
		Return(nil, apperr.Conflict("payment method %q already exists", "card")).Once()

	rr := doRequest(t, router, http.MethodPost, "/api/payments/methods",
		handler.PaymentMethodRequest{Name: "card"}, nil)

	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestPaymentHandler_DeleteMethod_InUseConflicts(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)
	methodID := uuid.Must(uuid.NewV4())

	mockService.On("DeleteMethod", mock.Anything, methodID).
		Return(apperr.Conflict("payment method %s is referenced by payments and cannot be deleted", methodID)).Once()

	rr := doRequest(t, router, http.MethodDelete, "/api/payments/methods/"+methodID.String(), nil, nil)

	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestPaymentHandler_DeleteMethod_InvalidUUID(t *testing.T) {
	mockService := new(MockPaymentService)
	router := newPaymentRouter(mockService)

	rr := doRequest(t, router, http.MethodDelete, "/api/payments/methods/not-a-uuid", nil, nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	mockService.AssertNotCalled(t, "DeleteMethod")
}
