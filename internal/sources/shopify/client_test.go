package shopify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cafe_inventory/internal/config"
	"cafe_inventory/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdersFollowsPagination(t *testing.T) {
	var srv *httptest.Server
	var calls int
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/admin/api/2024-01/orders.json", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Shopify-Access-Token"))
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("page_info") == "" {
			assert.Equal(t, "any", r.URL.Query().Get("status"))
			assert.Equal(t, "2", r.URL.Query().Get("limit"))
			assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("created_at_min"))
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/orders.json?limit=2&page_info=abc>; rel="next"`, srv.URL))
			fmt.Fprint(w, `{"orders":[{"id":1,"name":"#1001","created_at":"2024-03-01T09:00:00-05:00"},{"id":2,"name":"#1002","created_at":"2024-03-01T10:00:00-05:00"}]}`)
			return
		}
		assert.Equal(t, "abc", r.URL.Query().Get("page_info"))
		w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/orders.json?page_info=prev>; rel="previous"`, srv.URL))
		fmt.Fprint(w, `{"orders":[{"id":3,"name":"#1003","created_at":"2024-03-01T11:00:00-05:00"}]}`)
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL+"/admin/api/2024-01", config.ShopifyConfig{AccessToken: "secret", PageSize: 2})
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	orders, err := client.Orders(context.Background(), from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "#1003", orders[2].Name)
}

func TestOrdersReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":"Invalid API key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL, config.ShopifyConfig{AccessToken: "bad"})
	_, err := client.Orders(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(config.ShopifyConfig{StoreDomain: "cafe.myshopify.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	c, err := NewClient(config.ShopifyConfig{StoreDomain: "https://cafe.myshopify.com/", AccessToken: "x", APIVersion: "2024-01"})
	require.NoError(t, err)
	assert.Equal(t, "https://cafe.myshopify.com/admin/api/2024-01", c.client.BaseURL)
	assert.Equal(t, 250, c.pageSize)
}

func TestToRows(t *testing.T) {
	at := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	rows := ToRows([]Order{
		{ID: 7, Name: "#1001", CreatedAt: at, LineItems: []LineItem{
			{ID: 70, Title: "Latte", VariantTitle: "Large", Quantity: 2, Price: "5.25", SKU: "LAT-L",
				Properties: []Property{{Name: "Milk", Value: "Oat Milk"}, {Name: "_bundle", Value: "x"}, {Name: "Syrup", Value: " "}}},
			{ID: 71, Title: "Banana Bread", Quantity: 1, Price: "3.75"},
		}},
		{ID: 8, CreatedAt: at, LineItems: []LineItem{{ID: 80, Title: "Drip", Quantity: 1, Price: "free"}}},
	})
	require.Len(t, rows, 3)

	assert.Equal(t, 1, rows[0].Line)
	assert.Equal(t, "Latte", rows[0].Label)
	assert.Equal(t, "Large", rows[0].PricePoint)
	assert.Equal(t, "2", rows[0].Quantity)
	assert.Equal(t, "10.50", rows[0].Price)
	assert.Equal(t, []string{"Oat Milk"}, rows[0].Modifiers)
	assert.Equal(t, "#1001", rows[0].OrderID)
	assert.Equal(t, models.SourceShopify, rows[0].Source)
	assert.Equal(t, "LAT-L", rows[0].Raw["sku"])

	assert.Nil(t, rows[1].Modifiers)
	assert.Equal(t, "8", rows[2].OrderID)
	assert.Equal(t, "free", rows[2].Price)
	assert.Equal(t, 3, rows[2].Line)
}
