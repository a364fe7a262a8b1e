package websocket

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/upmaker/jitgo/internal/domain"
)

// wireOrder 事件流里的吃单快照，字段与网关 REST 一致
type wireOrder struct {
	Taker             string `json:"taker"`
	OrderID           uint32 `json:"order_id"`
	MarketKind        string `json:"market_kind"`
	MarketIndex       uint16 `json:"market_index"`
	Side              string `json:"side"`
	Kind              string `json:"kind"`
	Status            string `json:"status"`
	Slot              uint64 `json:"slot"`
	AuctionDuration   uint8  `json:"auction_duration"`
	AuctionStartPrice int64  `json:"auction_start_price"`
	AuctionEndPrice   int64  `json:"auction_end_price"`
	Price             uint64 `json:"price"`
	OracleOffset      int32  `json:"oracle_offset"`
	BaseAmount        uint64 `json:"base_amount"`
	BaseAmountFilled  uint64 `json:"base_amount_filled"`
}

type wireSignedOrder struct {
	UUID           string    `json:"uuid"`
	Taker          string    `json:"taker"`
	TakerAuthority string    `json:"taker_authority"`
	Order          wireOrder `json:"order"`
}

func (w *wireOrder) toDomain() (*domain.TakerOrder, error) {
	kind, ok := domain.ParseMarketKind(w.MarketKind)
	if !ok {
		return nil, errors.Errorf("bad market kind %q", w.MarketKind)
	}
	o := &domain.TakerOrder{
		Taker:             w.Taker,
		OrderID:           w.OrderID,
		Market:            domain.MarketID{Kind: kind, Index: w.MarketIndex},
		Slot:              w.Slot,
		AuctionDuration:   w.AuctionDuration,
		AuctionStartPrice: w.AuctionStartPrice,
		AuctionEndPrice:   w.AuctionEndPrice,
		Price:             w.Price,
		OracleOffset:      w.OracleOffset,
		BaseAmount:        w.BaseAmount,
		BaseAmountFilled:  w.BaseAmountFilled,
	}
	switch w.Side {
	case "long":
		o.Side = domain.SideLong
	case "short":
		o.Side = domain.SideShort
	default:
		return nil, errors.Errorf("bad side %q", w.Side)
	}
	switch w.Kind {
	case "limit":
		o.Kind = domain.OrderLimit
	case "oracle_offset":
		o.Kind = domain.OrderOracleOffset
	case "market":
		o.Kind = domain.OrderMarket
	default:
		return nil, errors.Errorf("bad order kind %q", w.Kind)
	}
	switch w.Status {
	case "open":
		o.Status = domain.OrderStatusOpen
	case "filled":
		o.Status = domain.OrderStatusFilled
	case "canceled":
		o.Status = domain.OrderStatusCanceled
	default:
		return nil, errors.Errorf("bad status %q", w.Status)
	}
	return o, nil
}

func decodeWireOrder(data []byte) (*domain.TakerOrder, error) {
	var w wireOrder
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return w.toDomain()
}

func decodeWireSignedOrder(data []byte) (*domain.SignedOrder, error) {
	var w wireSignedOrder
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	if w.UUID == "" {
		return nil, errors.New("signed order missing uuid")
	}
	order, err := w.Order.toDomain()
	if err != nil {
		return nil, err
	}
	return &domain.SignedOrder{
		UUID:           w.UUID,
		Taker:          w.Taker,
		TakerAuthority: w.TakerAuthority,
		Order:          *order,
	}, nil
}
