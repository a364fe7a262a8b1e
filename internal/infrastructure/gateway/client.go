// Package gateway 实现对交易网关（链下签名/提交服务）的 REST 访问。
// 网关封装了链上交互与签名，本进程只读状态、提交撮合意图。
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/ports"
	"github.com/upmaker/jitgo/pkg/cache"
	"github.com/upmaker/jitgo/pkg/ratelimit"
)

// metaTTL 市场微观结构（tick、最小下单量、保证金率）变化极少，
// 短 TTL 缓存即可；预言机、仓位、盘口永远现读。
const metaTTL = time.Minute

// Config 网关客户端配置
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// Client StateProvider 与 TradeExecutor 的 REST 实现
type Client struct {
	client *resty.Client
	meta   *cache.InMemoryCache[domain.MarketID, domain.MarketMeta]
	limits *ratelimit.Manager
}

var _ ports.StateProvider = (*Client)(nil)
var _ ports.TradeExecutor = (*Client)(nil)

// NewClient 创建网关客户端。
// resty 会自动从环境变量读取代理配置（HTTP_PROXY/HTTPS_PROXY）。
func NewClient(cfg Config) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{
		client: client,
		meta:   cache.NewInMemoryCache[domain.MarketID, domain.MarketMeta](metaTTL),
		limits: ratelimit.NewManager(),
	}
}

// apiError 网关的标准错误响应体
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeError 把网关响应解码成哨兵错误。
// 已知错误码映射到 domain 哨兵；网络/未知响应按基础设施故障处理。
func decodeError(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(domain.ErrGatewayUnavailable, err.Error())
	}
	if resp.IsSuccess() {
		return nil
	}
	if apiErr, ok := resp.Error().(*apiError); ok && apiErr.Code != "" {
		if sentinel := domain.ErrorFromCode(apiErr.Code); sentinel != nil {
			if apiErr.Message != "" {
				return fmt.Errorf("%s: %w", apiErr.Message, sentinel)
			}
			return sentinel
		}
		return errors.Errorf("gateway error %s: %s", apiErr.Code, apiErr.Message)
	}
	return errors.Wrapf(domain.ErrGatewayUnavailable, "http %d: %s", resp.StatusCode(), resp.Body())
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	return c.client.R().SetContext(ctx).SetError(&apiError{})
}

// ---- 状态读取 ----

type oracleResponse struct {
	Price      int64  `json:"price"`
	Slot       uint64 `json:"slot"`
	Confidence uint64 `json:"confidence"`
}

func (c *Client) GetOraclePrice(ctx context.Context, market domain.MarketID) (domain.OracleSnapshot, error) {
	var out oracleResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/markets/%s/%d/oracle", market.Kind, market.Index))
	if err := decodeError(resp, err); err != nil {
		return domain.OracleSnapshot{}, err
	}
	return domain.OracleSnapshot{Price: out.Price, Slot: out.Slot, Confidence: out.Confidence}, nil
}

type positionResponse struct {
	Base  int64 `json:"base"`
	Quote int64 `json:"quote"`
}

func (c *Client) GetPosition(ctx context.Context, market domain.MarketID) (int64, error) {
	var out positionResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/markets/%s/%d/position", market.Kind, market.Index))
	if err := decodeError(resp, err); err != nil {
		return 0, err
	}
	return out.Base, nil
}

func (c *Client) GetPerpBalances(ctx context.Context, market domain.MarketID) (int64, int64, error) {
	var out positionResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/markets/%s/%d/position", market.Kind, market.Index))
	if err := decodeError(resp, err); err != nil {
		return 0, 0, err
	}
	return out.Base, out.Quote, nil
}

type marketMetaResponse struct {
	TickSize        uint64 `json:"tick_size"`
	MinOrderSize    uint64 `json:"min_order_size"`
	InitMarginRatio uint32 `json:"init_margin_ratio"`
}

func (c *Client) GetMarketMeta(ctx context.Context, market domain.MarketID) (domain.MarketMeta, error) {
	if meta, ok := c.meta.Get(market); ok {
		return meta, nil
	}

	var out marketMetaResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/markets/%s/%d/meta", market.Kind, market.Index))
	if err := decodeError(resp, err); err != nil {
		return domain.MarketMeta{}, err
	}
	meta := domain.MarketMeta{
		TickSize:        out.TickSize,
		MinOrderSize:    out.MinOrderSize,
		InitMarginRatio: out.InitMarginRatio,
	}
	c.meta.Set(market, meta, 0)
	return meta, nil
}

// orderResponse 网关的订单快照（与 ports.AccountUpdate 的线上形状一致）
type orderResponse struct {
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

func (r *orderResponse) toDomain() (*domain.TakerOrder, error) {
	kind, ok := domain.ParseMarketKind(r.MarketKind)
	if !ok {
		return nil, errors.Errorf("bad market kind %q", r.MarketKind)
	}
	o := &domain.TakerOrder{
		Taker:             r.Taker,
		OrderID:           r.OrderID,
		Market:            domain.MarketID{Kind: kind, Index: r.MarketIndex},
		Slot:              r.Slot,
		AuctionDuration:   r.AuctionDuration,
		AuctionStartPrice: r.AuctionStartPrice,
		AuctionEndPrice:   r.AuctionEndPrice,
		Price:             r.Price,
		OracleOffset:      r.OracleOffset,
		BaseAmount:        r.BaseAmount,
		BaseAmountFilled:  r.BaseAmountFilled,
	}
	switch r.Side {
	case "long":
		o.Side = domain.SideLong
	case "short":
		o.Side = domain.SideShort
	default:
		return nil, errors.Errorf("bad side %q", r.Side)
	}
	switch r.Kind {
	case "limit":
		o.Kind = domain.OrderLimit
	case "oracle_offset":
		o.Kind = domain.OrderOracleOffset
	case "market":
		o.Kind = domain.OrderMarket
	default:
		return nil, errors.Errorf("bad order kind %q", r.Kind)
	}
	switch r.Status {
	case "open":
		o.Status = domain.OrderStatusOpen
	case "filled":
		o.Status = domain.OrderStatusFilled
	case "canceled":
		o.Status = domain.OrderStatusCanceled
	default:
		return nil, errors.Errorf("bad order status %q", r.Status)
	}
	return o, nil
}

func (c *Client) GetOrder(ctx context.Context, taker string, orderID uint32) (*domain.TakerOrder, error) {
	var out orderResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/takers/%s/orders/%d", taker, orderID))
	if resp != nil && resp.StatusCode() == 404 {
		return nil, domain.ErrTakerOrderNotFound
	}
	if err := decodeError(resp, err); err != nil {
		return nil, err
	}
	return out.toDomain()
}

type referrerResponse struct {
	Referrer      string `json:"referrer"`
	ReferrerStats string `json:"referrer_stats"`
}

func (c *Client) GetReferrer(ctx context.Context, taker string) (domain.Referral, error) {
	var out referrerResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/takers/%s/referrer", taker))
	if resp != nil && resp.StatusCode() == 404 {
		return domain.Referral{}, nil
	}
	if err := decodeError(resp, err); err != nil {
		return domain.Referral{}, err
	}
	return domain.Referral{Referrer: out.Referrer, ReferrerStats: out.ReferrerStats}, nil
}

type bookResponse struct {
	BidPrice uint64 `json:"bid_price"`
	BidBase  uint64 `json:"bid_base"`
	AskPrice uint64 `json:"ask_price"`
	AskBase  uint64 `json:"ask_base"`
}

func (c *Client) GetTopOfBook(ctx context.Context, market domain.MarketID) (domain.Level, domain.Level, error) {
	var out bookResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/markets/%s/%d/book", market.Kind, market.Index))
	if err := decodeError(resp, err); err != nil {
		return domain.Level{}, domain.Level{}, err
	}
	return domain.Level{Price: out.BidPrice, Base: out.BidBase},
		domain.Level{Price: out.AskPrice, Base: out.AskBase}, nil
}

type collateralResponse struct {
	FreeCollateral uint64 `json:"free_collateral"`
}

func (c *Client) GetCollateral(ctx context.Context) (uint64, error) {
	var out collateralResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get("/v1/account/collateral")
	if err := decodeError(resp, err); err != nil {
		return 0, err
	}
	return out.FreeCollateral, nil
}

// ---- 订单提交 ----

type counterOrderBody struct {
	MarketKind  string `json:"market_kind"`
	MarketIndex uint16 `json:"market_index"`
	Side        string `json:"side"`
	Price       uint64 `json:"price"`
	BaseAmount  uint64 `json:"base_amount"`
	PostOnly    string `json:"post_only"`
	ReduceOnly  bool   `json:"reduce_only"`
}

func encodeCounter(co domain.CounterOrder) counterOrderBody {
	return counterOrderBody{
		MarketKind:  co.Market.Kind.String(),
		MarketIndex: co.Market.Index,
		Side:        co.Side.String(),
		Price:       co.Price,
		BaseAmount:  co.BaseAmount,
		PostOnly:    co.PostOnly.String(),
		ReduceOnly:  co.ReduceOnly,
	}
}

type fillRequest struct {
	Taker         string           `json:"taker"`
	TakerOrderID  uint32           `json:"taker_order_id"`
	Counter       counterOrderBody `json:"counter"`
	Referrer      string           `json:"referrer,omitempty"`
	ReferrerStats string           `json:"referrer_stats,omitempty"`
}

type submitResponse struct {
	Signature string `json:"signature"`
}

func (c *Client) SubmitCounterOrder(ctx context.Context, order *domain.TakerOrder, counter domain.CounterOrder, ref domain.Referral) (ports.TxOutcome, error) {
	if err := c.limits.Wait(ctx, "fills:post"); err != nil {
		return ports.TxOutcome{}, err
	}
	var out submitResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		SetBody(fillRequest{
			Taker:         order.Taker,
			TakerOrderID:  order.OrderID,
			Counter:       encodeCounter(counter),
			Referrer:      ref.Referrer,
			ReferrerStats: ref.ReferrerStats,
		}).
		Post("/v1/fills")
	if err := decodeError(resp, err); err != nil {
		return ports.TxOutcome{}, err
	}
	return ports.TxOutcome{Signature: out.Signature}, nil
}

type fastlaneFillRequest struct {
	UUID          string           `json:"uuid"`
	Taker         string           `json:"taker"`
	Authority     string           `json:"taker_authority"`
	Counter       counterOrderBody `json:"counter"`
	Referrer      string           `json:"referrer,omitempty"`
	ReferrerStats string           `json:"referrer_stats,omitempty"`
}

func (c *Client) SubmitFastlaneCounterOrder(ctx context.Context, signed *domain.SignedOrder, counter domain.CounterOrder, ref domain.Referral) (ports.TxOutcome, error) {
	if err := c.limits.Wait(ctx, "fastlane:post"); err != nil {
		return ports.TxOutcome{}, err
	}
	var out submitResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		SetBody(fastlaneFillRequest{
			UUID:          signed.UUID,
			Taker:         signed.Taker,
			Authority:     signed.TakerAuthority,
			Counter:       encodeCounter(counter),
			Referrer:      ref.Referrer,
			ReferrerStats: ref.ReferrerStats,
		}).
		Post("/v1/fastlane/fills")
	if err := decodeError(resp, err); err != nil {
		return ports.TxOutcome{}, err
	}
	return ports.TxOutcome{Signature: out.Signature}, nil
}

type arbRequest struct {
	MarketKind  string             `json:"market_kind"`
	MarketIndex uint16             `json:"market_index"`
	Legs        []counterOrderBody `json:"legs"`
}

func (c *Client) SubmitArbPair(ctx context.Context, market domain.MarketID, legs [2]domain.CounterOrder) (ports.TxOutcome, error) {
	if err := c.limits.Wait(ctx, "arb:post"); err != nil {
		return ports.TxOutcome{}, err
	}
	var out submitResponse
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		SetBody(arbRequest{
			MarketKind:  market.Kind.String(),
			MarketIndex: market.Index,
			Legs:        []counterOrderBody{encodeCounter(legs[0]), encodeCounter(legs[1])},
		}).
		Post("/v1/arb")
	if err := decodeError(resp, err); err != nil {
		return ports.TxOutcome{}, err
	}
	return ports.TxOutcome{Signature: out.Signature}, nil
}
