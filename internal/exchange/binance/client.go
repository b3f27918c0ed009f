// Package binance is the spot REST and WebSocket adapter for Binance.
//
// Client implements model.Exchange over signed REST calls (HMAC-SHA256 of the
// query string, X-MBX-APIKEY header). Error bodies of the form
// {"code":-2011,"msg":"..."} surface as *model.ExchangeError; cancel calls
// absorb the benign "unknown order" codes and return empty results.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
)

const (
	LiveREST    = "https://api.binance.us"
	TestnetREST = "https://testnet.binance.vision"
	LiveWS      = "wss://stream.binance.us:9443"
	TestnetWS   = "wss://testnet.binance.vision"

	DefaultRecvWindow = 10 * time.Second
	defaultTimeout    = 10 * time.Second
	maxKlineLimit     = 1000
)

// Config configures a Client.
type Config struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	RecvWindow time.Duration
	Timeout    time.Duration
}

// CallObserver is notified after every REST call (metrics hook).
type CallObserver func(endpoint string, took time.Duration, err error)

// Client is a signed Binance spot REST client.
type Client struct {
	cfg    Config
	http   *fasthttp.Client
	now    func() time.Time
	OnCall CallObserver
}

var _ model.Exchange = (*Client)(nil)

// NewClient creates a client. Empty BaseURL means the live endpoint.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = LiveREST
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RecvWindow <= 0 {
		cfg.RecvWindow = DefaultRecvWindow
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			Name:                "binance-engine",
			MaxIdleConnDuration: time.Minute,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
		},
		now: time.Now,
	}
}

type authMode int

const (
	public authMode = iota
	apiKeyOnly
	signed
)

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.SecretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// do sends one request and returns the response body. args may be nil.
func (c *Client) do(ctx context.Context, method, path string, args *fasthttp.Args, auth authMode) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if args == nil {
		args = fasthttp.AcquireArgs()
		defer fasthttp.ReleaseArgs(args)
	}

	query := ""
	if auth == signed {
		args.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10))
		args.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		query = args.String()
		query += "&signature=" + c.sign(query)
	} else {
		query = args.String()
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	if auth != public {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}
	uri := c.cfg.BaseURL + path
	if method == fasthttp.MethodPost || method == fasthttp.MethodPut {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(query)
	} else if query != "" {
		uri += "?" + query
	}
	req.SetRequestURI(uri)

	start := time.Now()
	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.DoTimeout(req, resp, c.cfg.Timeout)
	}
	if err == nil {
		err = apiError(resp.StatusCode(), resp.Body())
	}
	if c.OnCall != nil {
		c.OnCall(method+" "+path, time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("binance %s %s: %w", method, path, err)
	}
	// body is released with resp
	return append([]byte(nil), resp.Body()...), nil
}

// apiError extracts {code,msg} from an error response.
func apiError(status int, body []byte) error {
	code := gjson.GetBytes(body, "code")
	msg := gjson.GetBytes(body, "msg")
	if status < 400 && !(code.Exists() && code.Int() < 0) {
		return nil
	}
	if !msg.Exists() {
		return &model.ExchangeError{Code: code.Int(), Msg: strings.TrimSpace(string(body)), Status: status}
	}
	return &model.ExchangeError{Code: code.Int(), Msg: msg.String(), Status: status}
}

// PlaceLimitOrder submits a GTC limit order.
func (c *Client) PlaceLimitOrder(ctx context.Context, in model.OrderIntent) (model.OrderAck, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("symbol", in.Symbol)
	args.Set("side", in.Side.Binance())
	args.Set("type", in.Type.String())
	args.Set("timeInForce", "GTC")
	args.Set("quantity", in.Quantity.String())
	args.Set("price", in.LimitPrice.String())
	args.Set("newClientOrderId", in.ClientOrderID.String())
	args.Set("newOrderRespType", "ACK")

	body, err := c.do(ctx, fasthttp.MethodPost, "/api/v3/order", args, signed)
	if err != nil {
		return model.OrderAck{}, err
	}
	r := gjson.ParseBytes(body)
	return model.OrderAck{
		Symbol:        r.Get("symbol").String(),
		OrderID:       r.Get("orderId").Int(),
		ClientOrderID: r.Get("clientOrderId").String(),
		Status:        r.Get("status").String(),
	}, nil
}

// CancelAllOpenOrders cancels every open order on symbol. Nothing to cancel
// is not an error.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) ([]model.CanceledOrder, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("symbol", symbol)

	body, err := c.do(ctx, fasthttp.MethodDelete, "/api/v3/openOrders", args, signed)
	if err != nil {
		if model.IsBenign(err) {
			log.Printf("[binance] %s: no open orders to cancel", symbol)
			return []model.CanceledOrder{}, nil
		}
		return nil, err
	}
	arr := gjson.ParseBytes(body).Array()
	out := make([]model.CanceledOrder, 0, len(arr))
	for _, r := range arr {
		out = append(out, parseCanceled(r))
	}
	return out, nil
}

// CancelOrder cancels one order by exchange id. An unknown order returns a
// zero CanceledOrder and nil error.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (model.CanceledOrder, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("symbol", symbol)
	args.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.do(ctx, fasthttp.MethodDelete, "/api/v3/order", args, signed)
	if err != nil {
		if model.IsBenign(err) {
			log.Printf("[binance] %s: order %d already gone", symbol, orderID)
			return model.CanceledOrder{}, nil
		}
		return model.CanceledOrder{}, err
	}
	return parseCanceled(gjson.ParseBytes(body)), nil
}

// OpenOrders lists open orders on symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]model.ExchangeOrder, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("symbol", symbol)

	body, err := c.do(ctx, fasthttp.MethodGet, "/api/v3/openOrders", args, signed)
	if err != nil {
		return nil, err
	}
	arr := gjson.ParseBytes(body).Array()
	out := make([]model.ExchangeOrder, 0, len(arr))
	for _, r := range arr {
		out = append(out, parseOrder(r))
	}
	return out, nil
}

// QueryOrder fetches one order by client order id.
func (c *Client) QueryOrder(ctx context.Context, symbol, clientOrderID string) (model.ExchangeOrder, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("symbol", symbol)
	args.Set("origClientOrderId", clientOrderID)

	body, err := c.do(ctx, fasthttp.MethodGet, "/api/v3/order", args, signed)
	if err != nil {
		return model.ExchangeOrder{}, err
	}
	return parseOrder(gjson.ParseBytes(body)), nil
}

// Balances returns every non-empty account balance.
func (c *Client) Balances(ctx context.Context) ([]model.Balance, error) {
	body, err := c.do(ctx, fasthttp.MethodGet, "/api/v3/account", nil, signed)
	if err != nil {
		return nil, err
	}
	return parseBalances(gjson.GetBytes(body, "balances"), "asset", "free", "locked", false)
}

// Price returns the last traded price.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("symbol", symbol)

	body, err := c.do(ctx, fasthttp.MethodGet, "/api/v3/ticker/price", args, public)
	if err != nil {
		return 0, err
	}
	p := gjson.GetBytes(body, "price")
	if !p.Exists() {
		return 0, fmt.Errorf("binance: price missing for %s", symbol)
	}
	return p.Float(), nil
}

// Klines fetches up to limit bars starting at start. A zero end is open.
// Only closed bars (close time before now) are returned.
func (c *Client) Klines(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]model.Candle, error) {
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("symbol", symbol)
	args.Set("interval", interval)
	args.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		args.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		args.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	body, err := c.do(ctx, fasthttp.MethodGet, "/api/v3/klines", args, public)
	if err != nil {
		return nil, err
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return nil, fmt.Errorf("binance: unexpected kline response format")
	}
	nowMs := c.now().UnixMilli()
	rows := res.Array()
	out := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		cdl, closeMs, err := parseKlineRow(symbol, row)
		if err != nil {
			return nil, err
		}
		if closeMs >= nowMs {
			continue
		}
		out = append(out, cdl)
	}
	return out, nil
}

// StartUserStream opens a user data stream and returns its listen key.
func (c *Client) StartUserStream(ctx context.Context) (string, error) {
	body, err := c.do(ctx, fasthttp.MethodPost, "/api/v3/userDataStream", nil, apiKeyOnly)
	if err != nil {
		return "", err
	}
	key := gjson.GetBytes(body, "listenKey").String()
	if key == "" {
		return "", fmt.Errorf("binance: empty listen key")
	}
	return key, nil
}

// KeepAliveUserStream extends the listen key's validity by 60 minutes.
func (c *Client) KeepAliveUserStream(ctx context.Context, listenKey string) error {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("listenKey", listenKey)
	_, err := c.do(ctx, fasthttp.MethodPut, "/api/v3/userDataStream", args, apiKeyOnly)
	return err
}

// CloseUserStream invalidates a listen key.
func (c *Client) CloseUserStream(ctx context.Context, listenKey string) error {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("listenKey", listenKey)
	_, err := c.do(ctx, fasthttp.MethodDelete, "/api/v3/userDataStream", args, apiKeyOnly)
	return err
}
