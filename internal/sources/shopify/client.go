// Package shopify pulls orders from the Shopify Admin REST API and turns
// their line items into import rows.
package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cafe_inventory/internal/config"
	"cafe_inventory/internal/models"
	"cafe_inventory/internal/services"
	"cafe_inventory/pkg/utils"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var ErrNotConfigured = errors.New("shopify store is not configured")

var nextLink = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type LineItem struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	VariantTitle string     `json:"variant_title"`
	Quantity     int        `json:"quantity"`
	Price        string     `json:"price"`
	SKU          string     `json:"sku"`
	Properties   []Property `json:"properties"`
}

type Order struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	TotalPrice string     `json:"total_price"`
	LineItems  []LineItem `json:"line_items"`
}

type ordersPage struct {
	Orders []Order `json:"orders"`
}

// Client reads orders from one store.
type Client struct {
	client   *resty.Client
	pageSize int
}

// NewClient targets https://{store}/admin/api/{version}.
func NewClient(cfg config.ShopifyConfig) (*Client, error) {
	if cfg.StoreDomain == "" || cfg.AccessToken == "" {
		return nil, ErrNotConfigured
	}
	domain := strings.TrimSuffix(strings.TrimPrefix(cfg.StoreDomain, "https://"), "/")
	return NewClientWithBaseURL(fmt.Sprintf("https://%s/admin/api/%s", domain, cfg.APIVersion), cfg), nil
}

// NewClientWithBaseURL is NewClient against an arbitrary API root.
func NewClientWithBaseURL(baseURL string, cfg config.ShopifyConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("X-Shopify-Access-Token", cfg.AccessToken).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 250 {
		pageSize = 250
	}
	return &Client{client: client, pageSize: pageSize}
}

// Orders fetches every order created in [from, to), following the Link
// header until Shopify stops returning a next page.
func (c *Client) Orders(ctx context.Context, from, to time.Time) ([]Order, error) {
	var all []Order

	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"status":             "any",
			"financial_status":   "any",
			"fulfillment_status": "any",
			"created_at_min":     from.UTC().Format(time.RFC3339),
			"created_at_max":     to.UTC().Format(time.RFC3339),
			"limit":              strconv.Itoa(c.pageSize),
			"fields":             "id,name,created_at,total_price,line_items",
		})
	url := "/orders.json"

	for page := 1; ; page++ {
		var body ordersPage
		resp, err := req.SetResult(&body).Get(url)
		if err != nil {
			return nil, fmt.Errorf("fetching orders page %d: %w", page, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("shopify returned %d on page %d: %s", resp.StatusCode(), page, resp.String())
		}
		all = append(all, body.Orders...)
		utils.LogDebug("Fetched Shopify orders page", map[string]interface{}{"page": page, "orders": len(body.Orders)})

		m := nextLink.FindStringSubmatch(resp.Header().Get("Link"))
		if m == nil {
			break
		}
		// The next URL carries its own page_info and limit.
		url = m[1]
		req = c.client.R().SetContext(ctx)
	}
	return all, nil
}

// ToRows flattens orders into one row per line item. Line item properties
// with a value become modifiers; names starting with "_" are hidden by
// Shopify and skipped.
func ToRows(orders []Order) []services.RawRow {
	var rows []services.RawRow
	line := 0
	for _, o := range orders {
		orderID := o.Name
		if orderID == "" {
			orderID = strconv.FormatInt(o.ID, 10)
		}
		for _, li := range o.LineItems {
			line++
			var mods []string
			for _, p := range li.Properties {
				if strings.HasPrefix(p.Name, "_") || strings.TrimSpace(p.Value) == "" {
					continue
				}
				mods = append(mods, strings.TrimSpace(p.Value))
			}
			price := li.Price
			if unit, err := decimal.NewFromString(li.Price); err == nil {
				price = unit.Mul(decimal.NewFromInt(int64(li.Quantity))).StringFixed(2)
			}
			rows = append(rows, services.RawRow{
				Line:       line,
				Label:      li.Title,
				Quantity:   strconv.Itoa(li.Quantity),
				Price:      price,
				PricePoint: li.VariantTitle,
				Modifiers:  mods,
				OrderID:    orderID,
				OrderedAt:  o.CreatedAt.UTC(),
				Source:     models.SourceShopify,
				Raw: map[string]string{
					"order_id":     strconv.FormatInt(o.ID, 10),
					"line_item_id": strconv.FormatInt(li.ID, 10),
					"sku":          li.SKU,
					"unit_price":   li.Price,
				},
			})
		}
	}
	return rows
}
