package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casaluna/order-service/internal/apperr"
	"github.com/casaluna/order-service/internal/client"
)

func TestInventory_GetProduct(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())
	want := client.Product{ID: productID, Name: "Margherita", Price: 9.99, StockQuantity: 12, Active: true}

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/api/products/"+productID.String(), r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(want))
	}))
	defer srv.Close()

	inv := client.NewInventory(srv.URL, time.Second)
	got, err := inv.GetProduct(context.Background(), productID, "secret")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("product mismatch (-want +got):\n%s", diff)
	}
}

func TestInventory_GetProduct_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	inv := client.NewInventory(srv.URL, time.Second)
	_, err := inv.GetProduct(context.Background(), uuid.Must(uuid.NewV4()), "secret")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestInventory_ReduceStock_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	inv := client.NewInventory(srv.URL, time.Second)
	err := inv.ReduceStock(context.Background(), uuid.Must(uuid.NewV4()), 2, "expired")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
}

func TestInventory_Unreachable(t *testing.T) {
	inv := client.NewInventory("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := inv.GetProduct(context.Background(), uuid.Must(uuid.NewV4()), "secret")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
}

func TestReceipts_Generate(t *testing.T) {
	var got client.ReceiptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/receipts", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{"file_path": "/receipts/r-1.pdf"}))
	}))
	defer srv.Close()

	req := client.ReceiptRequest{
		OrderID:    uuid.Must(uuid.NewV4()),
		CustomerID: uuid.Must(uuid.NewV4()),
		Lines: []client.ReceiptLine{
			{ProductID: uuid.Must(uuid.NewV4()), Quantity: 2, UnitPrice: 10.00, Subtotal: 20.00},
		},
		Total:    20.00,
		IssuedAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
	}

	receipts := client.NewReceipts(srv.URL, time.Second)
	path, err := receipts.Generate(context.Background(), req, "secret")
	require.NoError(t, err)

	assert.Equal(t, "/receipts/r-1.pdf", path)
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("receipt request mismatch (-want +got):\n%s", diff)
	}
}

func TestPromotions_ActiveForProduct(t *testing.T) {
	productID := uuid.Must(uuid.NewV4())
	fixed := 7.50
	want := []client.Promotion{{
		ID:         uuid.Must(uuid.NewV4()),
		Active:     true,
		StartDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		FixedPrice: &fixed,
	}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/promotions/product/"+productID.String(), r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(want))
	}))
	defer srv.Close()

	promos := client.NewPromotions(srv.URL, time.Second)
	got, err := promos.ActiveForProduct(context.Background(), productID, "secret")
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("promotions mismatch (-want +got):\n%s", diff)
	}
}

func TestPromotionInWindow(t *testing.T) {
	p := client.Promotion{
		StartDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, p.InWindow(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, p.InWindow(p.StartDate))
	assert.True(t, p.InWindow(p.EndDate))
	assert.False(t, p.InWindow(p.StartDate.Add(-time.Second)))
	assert.False(t, p.InWindow(p.EndDate.Add(time.Second)))
}
