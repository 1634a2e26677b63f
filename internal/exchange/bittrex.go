package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the production Bittrex API host.
const DefaultBaseURL = "https://bittrex.com"

// Client is the Bittrex REST implementation of Gateway. Public market data
// comes from the v1.1 and v2.0 endpoints; account and order calls are signed
// with HMAC-SHA512 over the full request URI.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	log        zerolog.Logger
	nonce      func() string
}

// NewClient returns a Bittrex client. baseURL may be empty to use the
// production host; tests point it at a local server.
func NewClient(baseURL, apiKey, apiSecret string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.With().Str("component", "exchange").Logger(),
		nonce: func() string {
			return strconv.FormatInt(time.Now().UnixNano(), 10)
		},
	}
}

// envelope is the response wrapper every Bittrex endpoint uses.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type apiMarket struct {
	MarketName string `json:"MarketName"`
	IsActive   bool   `json:"IsActive"`
}

type apiSummary struct {
	MarketName string  `json:"MarketName"`
	Ask        float64 `json:"Ask"`
	Bid        float64 `json:"Bid"`
	Last       float64 `json:"Last"`
	BaseVolume float64 `json:"BaseVolume"`
}

type apiTick struct {
	Open   float64 `json:"O"`
	High   float64 `json:"H"`
	Low    float64 `json:"L"`
	Close  float64 `json:"C"`
	Volume float64 `json:"V"`
	Time   string  `json:"T"`
}

type apiOrderRef struct {
	UUID string `json:"uuid"`
}

type apiOrder struct {
	OrderUUID         string  `json:"OrderUuid"`
	Exchange          string  `json:"Exchange"`
	Type              string  `json:"Type"`
	IsOpen            bool    `json:"IsOpen"`
	Quantity          float64 `json:"Quantity"`
	QuantityRemaining float64 `json:"QuantityRemaining"`
	Price             float64 `json:"Price"`
	PricePerUnit      float64 `json:"PricePerUnit"`
	CommissionPaid    float64 `json:"CommissionPaid"`
	Opened            *string `json:"Opened"`
	Closed            *string `json:"Closed"`
}

type apiBalance struct {
	Currency  string  `json:"Currency"`
	Balance   float64 `json:"Balance"`
	Available float64 `json:"Available"`
}

func (c *Client) Markets(ctx context.Context, mainMarket string) ([]string, error) {
	var result []apiMarket
	if err := c.get(ctx, "/api/v1.1/public/getmarkets", nil, false, &result); err != nil {
		return nil, err
	}

	prefix := ""
	if mainMarket != "" {
		prefix = mainMarket + "-"
	}
	pairs := make([]string, 0, len(result))
	for _, m := range result {
		if !m.IsActive {
			continue
		}
		if prefix != "" && !strings.HasPrefix(m.MarketName, prefix) {
			continue
		}
		pairs = append(pairs, m.MarketName)
	}
	return pairs, nil
}

func (c *Client) Summary(ctx context.Context, pair string) (MarketSummary, error) {
	var result []apiSummary
	params := url.Values{"market": {pair}}
	if err := c.get(ctx, "/api/v1.1/public/getmarketsummary", params, false, &result); err != nil {
		return MarketSummary{}, err
	}
	if len(result) == 0 {
		return MarketSummary{}, newError(KindRejected, "summary", fmt.Sprintf("no summary for %s", pair), nil)
	}
	s := result[0]
	return MarketSummary{
		Pair:       s.MarketName,
		Ask:        s.Ask,
		Bid:        s.Bid,
		Last:       s.Last,
		BaseVolume: s.BaseVolume,
	}, nil
}

func (c *Client) Candles(ctx context.Context, pair string, interval Interval, count int) ([]Candle, error) {
	if !ValidInterval(interval) {
		return nil, newError(KindValidation, "candles", fmt.Sprintf("unknown interval %q", interval), nil)
	}
	var result []apiTick
	params := url.Values{
		"marketName":   {pair},
		"tickInterval": {string(interval)},
	}
	if err := c.get(ctx, "/Api/v2.0/pub/market/GetTicks", params, false, &result); err != nil {
		return nil, err
	}
	if count > 0 && len(result) > count {
		result = result[len(result)-count:]
	}
	candles := make([]Candle, 0, len(result))
	for _, t := range result {
		candles = append(candles, Candle{
			Open:   t.Open,
			High:   t.High,
			Low:    t.Low,
			Close:  t.Close,
			Volume: t.Volume,
			Time:   parseAPITime(t.Time),
		})
	}
	return candles, nil
}

func (c *Client) BuyLimit(ctx context.Context, pair string, quantity, rate float64) (string, error) {
	return c.placeLimit(ctx, "/api/v1.1/market/buylimit", pair, quantity, rate)
}

func (c *Client) SellLimit(ctx context.Context, pair string, quantity, rate float64) (string, error) {
	return c.placeLimit(ctx, "/api/v1.1/market/selllimit", pair, quantity, rate)
}

func (c *Client) placeLimit(ctx context.Context, path, pair string, quantity, rate float64) (string, error) {
	if quantity <= 0 || rate <= 0 {
		return "", newError(KindValidation, "place", "quantity and rate must be positive", nil)
	}
	params := url.Values{
		"market":   {pair},
		"quantity": {formatFloat(quantity)},
		"rate":     {formatFloat(rate)},
	}
	var ref apiOrderRef
	if err := c.get(ctx, path, params, true, &ref); err != nil {
		return "", err
	}
	c.log.Info().Str("pair", pair).Float64("quantity", quantity).Float64("rate", rate).
		Str("order_id", ref.UUID).Str("endpoint", path).Msg("limit order placed")
	return ref.UUID, nil
}

func (c *Client) Order(ctx context.Context, orderID string) (Order, error) {
	var result apiOrder
	params := url.Values{"uuid": {orderID}}
	if err := c.get(ctx, "/api/v1.1/account/getorder", params, true, &result); err != nil {
		return Order{}, err
	}
	return Order{
		ID:                result.OrderUUID,
		Pair:              result.Exchange,
		Type:              OrderType(result.Type),
		IsOpen:            result.IsOpen,
		Quantity:          result.Quantity,
		QuantityRemaining: result.QuantityRemaining,
		Price:             result.Price,
		PricePerUnit:      result.PricePerUnit,
		CommissionPaid:    result.CommissionPaid,
		Opened:            parseAPITimePtr(result.Opened),
		Closed:            parseAPITimePtr(result.Closed),
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	params := url.Values{"uuid": {orderID}}
	if err := c.get(ctx, "/api/v1.1/market/cancel", params, true, nil); err != nil {
		return err
	}
	c.log.Info().Str("order_id", orderID).Msg("order cancelled")
	return nil
}

func (c *Client) Balances(ctx context.Context) ([]Balance, error) {
	var result []apiBalance
	if err := c.get(ctx, "/api/v1.1/account/getbalances", nil, true, &result); err != nil {
		return nil, err
	}
	balances := make([]Balance, 0, len(result))
	for _, b := range result {
		balances = append(balances, Balance{
			Currency:  b.Currency,
			Balance:   b.Balance,
			Available: b.Available,
		})
	}
	return balances, nil
}

// get performs one API call and decodes the result payload into out. Signed
// requests carry apikey/nonce query parameters and an apisign header over the
// full URI.
func (c *Client) get(ctx context.Context, path string, params url.Values, signed bool, out interface{}) error {
	op := strings.TrimPrefix(path, "/")
	if params == nil {
		params = url.Values{}
	}
	if signed {
		if c.apiKey == "" || c.apiSecret == "" {
			return newError(KindValidation, op, "api credentials are not configured", nil)
		}
		params.Set("apikey", c.apiKey)
		params.Set("nonce", c.nonce())
	}

	fullURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return newError(KindValidation, op, "", err)
	}
	if signed {
		req.Header.Set("apisign", c.sign(fullURL))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(KindTransient, op, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(KindTransient, op, "", err)
	}
	if resp.StatusCode != http.StatusOK {
		return newError(KindTransient, op, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return newError(KindTransient, op, "malformed response", err)
	}
	if !env.Success {
		return newError(KindRejected, op, env.Message, nil)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return newError(KindTransient, op, "malformed result", err)
	}
	return nil
}

func (c *Client) sign(uri string) string {
	mac := hmac.New(sha512.New, []byte(c.apiSecret))
	mac.Write([]byte(uri))
	return hex.EncodeToString(mac.Sum(nil))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

// apiTimeLayouts covers the venue's timestamp formats, which drop trailing
// zeros from the fractional part.
var apiTimeLayouts = []string{
	"2006-01-02T15:04:05.99",
	"2006-01-02T15:04:05",
}

func parseAPITime(s string) time.Time {
	for _, layout := range apiTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseAPITimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t := parseAPITime(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}
