package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPTokenLedger talks to a token service:
//
//	POST {base}/v1/transfers               {"ref","token","from","to","amount"}
//	GET  {base}/v1/accounts/{account}/balance?token=<token>  -> {"balance": 123}
//
// A 402 or an error code of "insufficient_funds" maps to ErrInsufficientFunds, other
// 4xx responses to ErrRejected, network errors and 5xx to ErrTransport.
type HTTPTokenLedger struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPTokenLedger(baseURL, token string, client *http.Client) *HTTPTokenLedger {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPTokenLedger{baseURL: baseURL, token: token, client: client}
}

type transferBody struct {
	TransferRequest
	Token string `json:"token"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (l *HTTPTokenLedger) Transfer(ctx context.Context, tr TransferRequest) error {

	payload, err := json.Marshal(transferBody{TransferRequest: tr, Token: l.token})
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v1/transfers", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", tr.Ref)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	return classifyTransferResponse(resp)
}

func classifyTransferResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body errorBody
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || body.Code == "insufficient_funds":
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, body.Message)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: token service returned %d", ErrTransport, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %d %s", ErrRejected, resp.StatusCode, body.Message)
	}
}

func (l *HTTPTokenLedger) BalanceOf(ctx context.Context, account string) (uint64, error) {
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/balance?token=%s", l.baseURL, url.PathEscape(account), url.QueryEscape(l.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build balance request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: token service returned %d", ErrTransport, resp.StatusCode)
	}

	var body struct {
		Balance uint64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode balance: %v", ErrTransport, err)
	}

	return body.Balance, nil
}
