package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultPricingBaseURL = "https://pricing.twilio.com"

// CarrierClient looks up the carrier's monthly cost for a local number in a
// country. Implementations return an error for unknown countries or upstream
// outages; the quoter turns that into a fallback quote.
type CarrierClient interface {
	MonthlyCost(ctx context.Context, country string) (float64, error)
}

// TwilioPricingClient reads the Twilio Pricing API
// (GET /v1/PhoneNumbers/Countries/{ISO}, basic auth).
type TwilioPricingClient struct {
	accountSID string
	authToken  string
	baseURL    string
	http       *http.Client
}

type TwilioPricingConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
}

func NewTwilioPricingClient(cfg TwilioPricingConfig) *TwilioPricingClient {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultPricingBaseURL
	}
	return &TwilioPricingClient{
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		baseURL:    strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type phoneNumberPrice struct {
	NumberType   string `json:"number_type"`
	BasePrice    string `json:"base_price"`
	CurrentPrice string `json:"current_price"`
}

type countryPricing struct {
	Country           string             `json:"country"`
	IsoCountry        string             `json:"iso_country"`
	PhoneNumberPrices []phoneNumberPrice `json:"phone_number_prices"`
	PriceUnit         string             `json:"price_unit"`
}

func (c *TwilioPricingClient) MonthlyCost(ctx context.Context, country string) (float64, error) {
	if c.accountSID == "" || c.authToken == "" {
		return 0, fmt.Errorf("twilio pricing client not configured")
	}

	endpoint := fmt.Sprintf("%s/v1/PhoneNumbers/Countries/%s", c.baseURL, country)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pricing lookup for %s failed with status %d", country, resp.StatusCode)
	}

	var body countryPricing
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode pricing response: %w", err)
	}

	// Prefer a local number price; fall back to the first entry.
	for _, p := range body.PhoneNumberPrices {
		if p.NumberType == "local" {
			return parsePrice(p)
		}
	}
	if len(body.PhoneNumberPrices) > 0 {
		return parsePrice(body.PhoneNumberPrices[0])
	}
	return 0, fmt.Errorf("no number prices listed for %s", country)
}

func parsePrice(p phoneNumberPrice) (float64, error) {
	raw := p.CurrentPrice
	if raw == "" {
		raw = p.BasePrice
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q: %w", raw, err)
	}
	return v, nil
}
