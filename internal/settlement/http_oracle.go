package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPPriceOracle queries a price feed service:
//
//	GET {base}/v1/convert?amount=100&from=usd&feed=<feed>
//	-> {"amount": 2500000, "as_of": "2026-01-01T00:00:00Z"}
type HTTPPriceOracle struct {
	baseURL string
	feed    string
	maxAge  time.Duration
	client  *http.Client
	now     func() time.Time
}

func NewHTTPPriceOracle(baseURL, feed string, maxAge time.Duration, client *http.Client) *HTTPPriceOracle {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPPriceOracle{
		baseURL: baseURL,
		feed:    feed,
		maxAge:  maxAge,
		client:  client,
		now:     time.Now,
	}
}

type convertResponse struct {
	Amount uint64    `json:"amount"`
	AsOf   time.Time `json:"as_of"`
}

func (o *HTTPPriceOracle) Convert(ctx context.Context, amount uint64, fromUnit string) (uint64, error) {
	q := url.Values{}
	q.Set("amount", strconv.FormatUint(amount, 10))
	q.Set("from", fromUnit)
	q.Set("feed", o.feed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v1/convert?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build convert request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: feed returned %d", ErrPriceUnavailable, resp.StatusCode)
	}

	var body convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrPriceUnavailable, err)
	}

	if o.maxAge > 0 && o.now().Sub(body.AsOf) > o.maxAge {
		return 0, fmt.Errorf("%w: price as of %s", ErrStalePrice, body.AsOf.Format(time.RFC3339))
	}

	return body.Amount, nil
}
