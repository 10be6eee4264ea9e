package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// AvailableNumber is one purchasable number from the carrier search.
type AvailableNumber struct {
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	Locality     string `json:"locality"`
	Region       string `json:"region"`
	IsoCountry   string `json:"iso_country"`
}

// Searcher finds purchasable numbers for a country, optionally filtered by
// area code.
type Searcher interface {
	Search(ctx context.Context, country string, areaCode string, limit int) ([]AvailableNumber, error)
}

// TwilioSearcher reads the AvailablePhoneNumbers resource
// (GET /2010-04-01/Accounts/{sid}/AvailablePhoneNumbers/{ISO}/Local.json).
type TwilioSearcher struct {
	accountSID string
	authToken  string
	baseURL    string
	http       *http.Client
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
}

func NewTwilioSearcher(cfg TwilioConfig) *TwilioSearcher {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	return &TwilioSearcher{
		accountSID: strings.TrimSpace(cfg.AccountSID),
		authToken:  strings.TrimSpace(cfg.AuthToken),
		baseURL:    strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *TwilioSearcher) Search(ctx context.Context, country string, areaCode string, limit int) ([]AvailableNumber, error) {
	if s.accountSID == "" || s.authToken == "" {
		return nil, fmt.Errorf("twilio searcher not configured")
	}
	if limit <= 0 || limit > 30 {
		limit = 10
	}

	q := url.Values{}
	q.Set("PageSize", fmt.Sprintf("%d", limit))
	if areaCode != "" {
		q.Set("AreaCode", areaCode)
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/AvailablePhoneNumbers/%s/Local.json?%s",
		s.baseURL, s.accountSID, country, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("number search for %s failed with status %d", country, resp.StatusCode)
	}

	var body struct {
		AvailablePhoneNumbers []AvailableNumber `json:"available_phone_numbers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return body.AvailablePhoneNumbers, nil
}
