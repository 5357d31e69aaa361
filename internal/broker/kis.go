package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"stockpilot/internal/config"
	"stockpilot/internal/logger"
)

// Compile-time interface check.
var _ Broker = (*KIS)(nil)

// KIS places real orders through the Korea Investment & Securities Open API
// (overseas stock endpoints). A bearer token is cached with its expiry and
// refreshed transparently when stale or on first use.
type KIS struct {
	baseURL     string
	appKey      string
	appSecret   string
	accountNo   string
	accountCode string
	httpClient  *http.Client

	tokenMu      sync.Mutex
	token        string
	tokenExpires time.Time
}

const (
	kisExchangeCode = "NASD"
	// Refresh slightly before the reported expiry so in-flight requests never
	// carry a token that lapses mid-call.
	kisTokenSafety = 5 * time.Minute
)

func NewKIS(cfg config.KISConfig) (*KIS, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("kis base_url cannot be empty")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &KIS{
		baseURL:     base,
		appKey:      strings.TrimSpace(cfg.AppKey),
		appSecret:   strings.TrimSpace(cfg.AppSecret),
		accountNo:   strings.TrimSpace(cfg.AccountNo),
		accountCode: strings.TrimSpace(cfg.AccountCode),
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

func (b *KIS) Name() string { return "kis" }

// live reports whether the client points at the production host; the sandbox
// host ("openapivts") uses different transaction codes.
func (b *KIS) live() bool {
	return strings.Contains(b.baseURL, "openapi") && !strings.Contains(b.baseURL, "openapivts")
}

func (b *KIS) accessToken(ctx context.Context) (string, error) {
	b.tokenMu.Lock()
	defer b.tokenMu.Unlock()
	if b.token != "" && time.Now().Before(b.tokenExpires) {
		return b.token, nil
	}
	payload := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     b.appKey,
		"appsecret":  b.appSecret,
	}
	body, err := b.post(ctx, "/oauth2/tokenP", nil, payload)
	if err != nil {
		return "", fmt.Errorf("kis token request failed: %w", err)
	}
	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		msg := gjson.GetBytes(body, "error_description").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("kis authentication failed: %s", msg)
	}
	expiresIn := gjson.GetBytes(body, "expires_in").Int()
	if expiresIn <= 0 {
		expiresIn = 86400
	}
	b.token = token
	b.tokenExpires = time.Now().Add(time.Duration(expiresIn)*time.Second - kisTokenSafety)
	logger.Infof("kis access token renewed, valid until %s", b.tokenExpires.Format(time.RFC3339))
	return b.token, nil
}

func (b *KIS) headers(ctx context.Context, trID string) (http.Header, error) {
	token, err := b.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("authorization", "Bearer "+token)
	h.Set("appkey", b.appKey)
	h.Set("appsecret", b.appSecret)
	h.Set("tr_id", trID)
	return h, nil
}

// GetBalance queries the overseas stock balance endpoint. Informational only.
func (b *KIS) GetBalance(ctx context.Context) (Balance, error) {
	trID := "VTTT5012R"
	if b.live() {
		trID = "JTTT5012R"
	}
	h, err := b.headers(ctx, trID)
	if err != nil {
		return Balance{}, err
	}
	path := "/uapi/overseas-stock/v1/trading/inquire-balance" +
		"?CANO=" + b.accountNo +
		"&ACNT_PRDT_CD=" + b.accountCode +
		"&OVRS_EXCG_CD=" + kisExchangeCode +
		"&TR_CRCY_CD=USD&CTX_AREA_FK200=&CTX_AREA_NK200="
	body, err := b.get(ctx, path, h)
	if err != nil {
		return Balance{}, err
	}
	if rt := gjson.GetBytes(body, "rt_cd").String(); rt != "" && rt != "0" {
		return Balance{}, fmt.Errorf("kis balance query failed: %s", remoteMessage(body))
	}
	out := gjson.GetBytes(body, "output2")
	return Balance{
		Cash:     out.Get("frcr_dncl_amt1").Float(),
		Currency: "USD",
		Equity:   out.Get("tot_evlu_pfls_amt").Float(),
	}, nil
}

func (b *KIS) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return OrderResult{}, fmt.Errorf("%w: symbol cannot be empty", ErrRejected)
	}
	if req.Quantity <= 0 {
		return OrderResult{}, fmt.Errorf("%w: quantity must be positive", ErrRejected)
	}
	trID := b.orderTrID(req.Side)
	h, err := b.headers(ctx, trID)
	if err != nil {
		return OrderResult{}, err
	}
	orderDivision := "01" // market
	priceField := "0"
	if req.OrderType == "limit" && req.Price > 0 {
		orderDivision = "00"
		priceField = fmt.Sprintf("%.2f", req.Price)
	}
	payload := map[string]string{
		"CANO":            b.accountNo,
		"ACNT_PRDT_CD":    b.accountCode,
		"OVRS_EXCG_CD":    kisExchangeCode,
		"PDNO":            symbol,
		"ORD_QTY":         fmt.Sprintf("%d", int64(req.Quantity)),
		"OVRS_ORD_UNPR":   priceField,
		"ORD_SVR_DVSN_CD": "0",
		"ORD_DVSN":        orderDivision,
	}
	body, err := b.post(ctx, "/uapi/overseas-stock/v1/trading/order", h, payload)
	if err != nil {
		return OrderResult{}, err
	}
	if gjson.GetBytes(body, "rt_cd").String() != "0" {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrRejected, remoteMessage(body))
	}
	// KIS does not return an executed price on the order call; the caller's
	// reference price stands until a status query reports otherwise.
	return OrderResult{
		OrderID:    gjson.GetBytes(body, "output.ODNO").String(),
		Status:     StatusFilled,
		Symbol:     symbol,
		Quantity:   req.Quantity,
		Price:      req.Price,
		ExecutedAt: time.Now(),
	}, nil
}

func (b *KIS) orderTrID(side Side) string {
	if side == SideBuy {
		if b.live() {
			return "JTTT1002U"
		}
		return "VTTT1002U"
	}
	if b.live() {
		return "JTTT1006U"
	}
	return "VTTT1001U"
}

// GetOrderStatus queries the non-conclusion endpoint for the given order.
func (b *KIS) GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error) {
	trID := "VTTS3018R"
	if b.live() {
		trID = "JTTT3018R"
	}
	h, err := b.headers(ctx, trID)
	if err != nil {
		return OrderResult{}, err
	}
	path := "/uapi/overseas-stock/v1/trading/inquire-nccs" +
		"?CANO=" + b.accountNo +
		"&ACNT_PRDT_CD=" + b.accountCode +
		"&OVRS_EXCG_CD=" + kisExchangeCode +
		"&SORT_SQN=DS&CTX_AREA_FK200=&CTX_AREA_NK200="
	body, err := b.get(ctx, path, h)
	if err != nil {
		return OrderResult{}, err
	}
	if gjson.GetBytes(body, "rt_cd").String() != "0" {
		return OrderResult{}, fmt.Errorf("kis order status query failed: %s", remoteMessage(body))
	}
	for _, row := range gjson.GetBytes(body, "output").Array() {
		if row.Get("odno").String() == orderID {
			return OrderResult{
				OrderID:  orderID,
				Status:   "open",
				Symbol:   row.Get("pdno").String(),
				Quantity: row.Get("ft_ord_qty").Float(),
				Price:    row.Get("ft_ord_unpr3").Float(),
			}, nil
		}
	}
	// Absent from the open-order list means it already concluded.
	return OrderResult{OrderID: orderID, Status: StatusFilled}, nil
}

func (b *KIS) CancelOrder(ctx context.Context, orderID string) (OrderResult, error) {
	trID := "VTTT1004U"
	if b.live() {
		trID = "JTTT1004U"
	}
	h, err := b.headers(ctx, trID)
	if err != nil {
		return OrderResult{}, err
	}
	payload := map[string]string{
		"CANO":              b.accountNo,
		"ACNT_PRDT_CD":      b.accountCode,
		"OVRS_EXCG_CD":      kisExchangeCode,
		"ORGN_ODNO":         orderID,
		"RVSE_CNCL_DVSN_CD": "02", // cancel
		"ORD_QTY":           "0",
		"OVRS_ORD_UNPR":     "0",
	}
	body, err := b.post(ctx, "/uapi/overseas-stock/v1/trading/order-rvsecncl", h, payload)
	if err != nil {
		return OrderResult{}, err
	}
	if gjson.GetBytes(body, "rt_cd").String() != "0" {
		return OrderResult{}, fmt.Errorf("%w: %s", ErrRejected, remoteMessage(body))
	}
	return OrderResult{OrderID: orderID, Status: StatusCancelled}, nil
}

func remoteMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "msg1").String(); msg != "" {
		return strings.TrimSpace(msg)
	}
	return strings.TrimSpace(string(body))
}

func (b *KIS) post(ctx context.Context, path string, h http.Header, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serializing kis request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("building kis request failed: %w", err)
	}
	if h != nil {
		req.Header = h
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	return b.do(req)
}

func (b *KIS) get(ctx context.Context, path string, h http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building kis request failed: %w", err)
	}
	if h != nil {
		req.Header = h
	}
	return b.do(req)
}

func (b *KIS) do(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling kis failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading kis response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("kis returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}
