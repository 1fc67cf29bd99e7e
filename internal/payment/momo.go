package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/lv7dev/shop-v2-sub000/internal/domain/order"
)

// MoMoConfig holds the MoMo merchant credentials and endpoint.
type MoMoConfig struct {
	Endpoint    string
	PartnerCode string
	AccessKey   string
	SecretKey   string
	ReturnURL   string
	NotifyURL   string
}

// MoMoProvider collects VND wallet payments through the MoMo gateway. All
// requests and callbacks carry an HMAC-SHA256 signature over the
// alphabetically ordered field list.
type MoMoProvider struct {
	cfg    MoMoConfig
	client *http.Client
}

var _ Provider = (*MoMoProvider)(nil)

// NewMoMoProvider creates a MoMo provider using the given HTTP client. A nil
// client falls back to http.DefaultClient.
func NewMoMoProvider(cfg MoMoConfig, client *http.Client) *MoMoProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &MoMoProvider{cfg: cfg, client: client}
}

// Method implements Provider.
func (p *MoMoProvider) Method() order.PaymentMethod { return order.MethodMoMo }

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      string `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	ReturnURL   string `json:"returnUrl"`
	NotifyURL   string `json:"notifyUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
	RequestID  string `json:"requestId"`
}

// CreatePayment registers the order with MoMo and returns the hosted payment
// page URL. MoMo amounts are whole VND.
func (p *MoMoProvider) CreatePayment(ctx context.Context, o *order.Order) (*Intent, error) {
	req := momoCreateRequest{
		PartnerCode: p.cfg.PartnerCode,
		AccessKey:   p.cfg.AccessKey,
		RequestID:   o.ID,
		Amount:      o.Total.Round(0).String(),
		OrderID:     o.ID,
		OrderInfo:   "order " + o.ID,
		ReturnURL:   p.cfg.ReturnURL,
		NotifyURL:   p.cfg.NotifyURL,
		RequestType: "captureMoMoWallet",
	}
	req.Signature = p.sign(fmt.Sprintf(
		"partnerCode=%s&accessKey=%s&requestId=%s&amount=%s&orderId=%s&orderInfo=%s&returnUrl=%s&notifyUrl=%s&extraData=%s",
		req.PartnerCode, req.AccessKey, req.RequestID, req.Amount,
		req.OrderID, req.OrderInfo, req.ReturnURL, req.NotifyURL, req.ExtraData,
	))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "call gateway")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	var result momoCreateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if result.ResultCode != 0 {
		return nil, errors.Errorf("gateway rejected payment: %d %s", result.ResultCode, result.Message)
	}

	return &Intent{
		ProviderRef: result.RequestID,
		RedirectURL: result.PayURL,
	}, nil
}

type momoNotification struct {
	PartnerCode  string `json:"partnerCode"`
	AccessKey    string `json:"accessKey"`
	RequestID    string `json:"requestId"`
	Amount       string `json:"amount"`
	OrderID      string `json:"orderId"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      string `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime string `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// ParseWebhook verifies the notification signature and maps the result code
// onto a payment event: 0 is success, anything else a failure.
func (p *MoMoProvider) ParseWebhook(_ http.Header, body []byte) (*order.PaymentEvent, error) {
	var n momoNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, errors.Wrap(err, "decode notification")
	}

	raw := fmt.Sprintf(
		"partnerCode=%s&accessKey=%s&requestId=%s&amount=%s&orderId=%s&orderInfo=%s&orderType=%s&transId=%s&message=%s&responseTime=%s&resultCode=%d&extraData=%s",
		n.PartnerCode, n.AccessKey, n.RequestID, n.Amount, n.OrderID,
		n.OrderInfo, n.OrderType, n.TransID, n.Message, n.ResponseTime,
		n.ResultCode, n.ExtraData,
	)
	if !hmac.Equal([]byte(p.sign(raw)), []byte(n.Signature)) {
		return nil, errors.New("invalid notification signature")
	}
	if n.OrderID == "" {
		return nil, errors.New("notification missing orderId")
	}

	kind := order.PaymentEventSucceeded
	if n.ResultCode != 0 {
		kind = order.PaymentEventFailed
	}
	return &order.PaymentEvent{
		OrderID:       n.OrderID,
		TransactionID: n.TransID,
		Kind:          kind,
	}, nil
}

func (p *MoMoProvider) sign(raw string) string {
	mac := hmac.New(sha256.New, []byte(p.cfg.SecretKey))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
