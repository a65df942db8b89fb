package entity

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type OrderType string
type OrderSide string
type OrderStatus string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"

	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"

	OrderStatusNew    OrderStatus = "new"
	OrderStatusOpen   OrderStatus = "open"
	OrderStatusClosed OrderStatus = "closed"
)

// OrderEvent is one order-update record as delivered by the exchange, either
// over the websocket orders channel or from the open-orders REST snapshot.
// Price is nil for market orders.
type OrderEvent struct {
	ID         int64            `json:"id"`
	ClientID   string           `json:"clientId"`
	Market     string           `json:"market"`
	Type       OrderType        `json:"type"`
	Side       OrderSide        `json:"side"`
	Price      *decimal.Decimal `json:"price"`
	Size       decimal.Decimal  `json:"size"`
	Status     OrderStatus      `json:"status"`
	ReduceOnly bool             `json:"reduceOnly"`
	IOC        bool             `json:"ioc"`
	PostOnly   bool             `json:"postOnly"`
}

// Normalize substitutes the exchange-assigned order id when the event carries
// no client order id, so every event has a stable identifier before any
// classification runs.
func (e *OrderEvent) Normalize() {
	if strings.TrimSpace(e.ClientID) == "" {
		e.ClientID = strconv.FormatInt(e.ID, 10)
	}
}

// PriceString renders the order price for logs, "market" when absent.
func (e OrderEvent) PriceString() string {
	if e.Price == nil {
		return "market"
	}
	return e.Price.String()
}

type PlaceOrderParams struct {
	Market     string
	Side       OrderSide
	Price      *decimal.Decimal
	Type       OrderType
	Size       decimal.Decimal
	ReduceOnly bool
	IOC        bool
	PostOnly   bool
	ClientID   string
}

func (p PlaceOrderParams) PriceString() string {
	if p.Price == nil {
		return "market"
	}
	return p.Price.String()
}
