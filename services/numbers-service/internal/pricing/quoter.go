package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
)

// Fallback breakdown returned when the carrier lookup fails. These numbers
// are product-visible; do not change them casually.
const (
	fallbackCarrierPrice = 3.25
	defaultMarkup        = 3.50
)

var countryCodeRe = regexp.MustCompile(`^[A-Z]{2}$`)

type Breakdown struct {
	TwilioPrice float64 `json:"twilioPrice"`
	Markup      float64 `json:"markup"`
	Total       float64 `json:"total"`
}

type Quote struct {
	Success        bool      `json:"success"`
	Country        string    `json:"country"`
	MonthlyPrice   float64   `json:"monthlyPrice"`
	FormattedPrice string    `json:"formattedPrice"`
	Breakdown      Breakdown `json:"breakdown"`
	Currency       string    `json:"currency"`
	Fallback       bool      `json:"fallback"`
}

// Quoter computes the customer-facing monthly price for a number: carrier
// cost plus markup. It never fails; a broken upstream degrades to the
// fallback quote with Success=false and Fallback=true.
type Quoter struct {
	carrier CarrierClient
	logger  *slog.Logger
	markup  float64
}

func NewQuoter(carrier CarrierClient, logger *slog.Logger, markup float64) *Quoter {
	if markup <= 0 {
		markup = defaultMarkup
	}
	return &Quoter{
		carrier: carrier,
		logger:  logger,
		markup:  markup,
	}
}

// MonthlyQuote returns the price for a local number in country (ISO 3166-1
// alpha-2, defaulting to US when blank or malformed).
func (q *Quoter) MonthlyQuote(ctx context.Context, country string) Quote {
	country = strings.ToUpper(strings.TrimSpace(country))
	if !countryCodeRe.MatchString(country) {
		country = "US"
	}

	cost, err := q.carrier.MonthlyCost(ctx, country)
	if err != nil {
		q.logger.Warn("carrier pricing lookup failed, quoting fallback",
			"country", country, "err", err)
		return q.fallbackQuote(country)
	}

	total := round2(cost + q.markup)
	return Quote{
		Success:        true,
		Country:        country,
		MonthlyPrice:   total,
		FormattedPrice: formatUSD(total),
		Breakdown: Breakdown{
			TwilioPrice: round2(cost),
			Markup:      q.markup,
			Total:       total,
		},
		Currency: "USD",
	}
}

func (q *Quoter) fallbackQuote(country string) Quote {
	total := round2(fallbackCarrierPrice + defaultMarkup)
	return Quote{
		Success:        false,
		Country:        country,
		MonthlyPrice:   total,
		FormattedPrice: formatUSD(total),
		Breakdown: Breakdown{
			TwilioPrice: fallbackCarrierPrice,
			Markup:      defaultMarkup,
			Total:       total,
		},
		Currency: "USD",
		Fallback: true,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatUSD(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
