// Package client is a typed HTTP client for the machine service.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/matheusmosca/vending-machine/vending"
)

// Client talks to one machine service instance
type Client struct {
	http *resty.Client
}

// New builds a client for the service at baseURL
func New(baseURL string) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json")
	r.JSONMarshal = jsoniter.ConfigFastest.Marshal
	r.JSONUnmarshal = jsoniter.ConfigFastest.Unmarshal

	return &Client{http: r}
}

// Purchase is the result of a synchronous purchase
type Purchase struct {
	OrderID     string          `json:"order_id"`
	Product     vending.Product `json:"product"`
	PaidTotal   int             `json:"paid_total"`
	Change      vending.Coins   `json:"change"`
	ChangeTotal int             `json:"change_total"`
}

// Inventory is a coin inventory snapshot
type Inventory struct {
	Coins vending.Coins `json:"coins"`
	Total int           `json:"total"`
}

// Saga identifies a submitted purchase saga
type Saga struct {
	OrderID string `json:"order_id"`
	GID     string `json:"saga_gid"`
}

// Sale is a ledger entry
type Sale struct {
	ID          string        `json:"id"`
	ProductID   int           `json:"product_id"`
	ProductName string        `json:"product_name"`
	Price       int           `json:"price"`
	Paid        []int         `json:"paid"`
	Change      vending.Coins `json:"change"`
	Status      string        `json:"status"`
	Reason      string        `json:"reason"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type purchaseRequest struct {
	ProductID int   `json:"product_id"`
	Coins     []int `json:"coins"`
}

type depositRequest struct {
	Coins []int `json:"coins"`
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (c *Client) Purchase(ctx context.Context, productID int, coins []int) (*Purchase, error) {
	var out Purchase
	if err := c.post(ctx, "/api/purchases", purchaseRequest{ProductID: productID, Coins: coins}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSaga submits a purchase saga. The outcome is read later with GetSale.
func (c *Client) StartSaga(ctx context.Context, productID int, coins []int) (*Saga, error) {
	var out Saga
	if err := c.post(ctx, "/api/purchases/saga", purchaseRequest{ProductID: productID, Coins: coins}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Deposit(ctx context.Context, coins []int) (*Inventory, error) {
	var out Inventory
	if err := c.post(ctx, "/api/coins", depositRequest{Coins: coins}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Inventory(ctx context.Context) (*Inventory, error) {
	var out Inventory
	if err := c.get(ctx, "/api/inventory", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Products(ctx context.Context) ([]vending.Product, error) {
	var out struct {
		Products []vending.Product `json:"products"`
	}
	if err := c.get(ctx, "/api/products", &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

func (c *Client) GetSale(ctx context.Context, orderID string) (*Sale, error) {
	var out Sale
	if err := c.get(ctx, "/api/sales/"+orderID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	var failure errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&failure).
		Get(path)
	return checkResponse(resp, err, &failure)
}

func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	var failure errorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&failure).
		Post(path)
	return checkResponse(resp, err, &failure)
}

func checkResponse(resp *resty.Response, err error, failure *errorBody) error {
	if err != nil {
		return fmt.Errorf("machine service request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	if resp.StatusCode() == http.StatusUnprocessableEntity {
		return &RejectedError{Reason: failure.Reason, Message: failure.Error}
	}
	return &StatusError{StatusCode: resp.StatusCode(), Message: failure.Error}
}
