package pricing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeCarrier struct {
	cost float64
	err  error
	last string
}

func (f *fakeCarrier) MonthlyCost(_ context.Context, country string) (float64, error) {
	f.last = country
	if f.err != nil {
		return 0, f.err
	}
	return f.cost, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestQuoteAddsMarkup(t *testing.T) {
	q := NewQuoter(&fakeCarrier{cost: 1.15}, testLogger(), 3.50)

	quote := q.MonthlyQuote(context.Background(), "US")
	if !quote.Success || quote.Fallback {
		t.Fatalf("quote = %+v, want success without fallback", quote)
	}
	if quote.MonthlyPrice != 4.65 {
		t.Fatalf("monthlyPrice = %v, want 4.65", quote.MonthlyPrice)
	}
	if quote.Breakdown.TwilioPrice != 1.15 || quote.Breakdown.Markup != 3.50 || quote.Breakdown.Total != 4.65 {
		t.Fatalf("breakdown = %+v", quote.Breakdown)
	}
	if quote.FormattedPrice != "$4.65" {
		t.Fatalf("formattedPrice = %q", quote.FormattedPrice)
	}
	if quote.Currency != "USD" {
		t.Fatalf("currency = %q", quote.Currency)
	}
}

func TestQuoteFallsBackOnCarrierFailure(t *testing.T) {
	q := NewQuoter(&fakeCarrier{err: errors.New("upstream down")}, testLogger(), 3.50)

	quote := q.MonthlyQuote(context.Background(), "GB")
	if quote.Success {
		t.Fatal("degraded quote must report success:false")
	}
	if !quote.Fallback {
		t.Fatal("degraded quote must set fallback:true")
	}
	if quote.MonthlyPrice != 6.75 {
		t.Fatalf("fallback monthlyPrice = %v, want 6.75", quote.MonthlyPrice)
	}
	if quote.Breakdown.TwilioPrice != 3.25 || quote.Breakdown.Markup != 3.50 {
		t.Fatalf("fallback breakdown = %+v", quote.Breakdown)
	}
	// The requested country is still echoed back.
	if quote.Country != "GB" {
		t.Fatalf("country = %q, want GB", quote.Country)
	}
}

func TestQuoteNormalizesCountry(t *testing.T) {
	carrier := &fakeCarrier{cost: 2.00}
	q := NewQuoter(carrier, testLogger(), 3.50)

	for in, want := range map[string]string{
		"us":     "US",
		" de ":   "DE",
		"":       "US",
		"USA":    "US",
		"1!":     "US",
		"FRANCE": "US",
		"fr":     "FR",
	} {
		quote := q.MonthlyQuote(context.Background(), in)
		if quote.Country != want {
			t.Fatalf("input %q: country = %q, want %q", in, quote.Country, want)
		}
		if carrier.last != want {
			t.Fatalf("input %q: carrier queried with %q, want %q", in, carrier.last, want)
		}
	}
}

func TestTwilioPricingClientParsesLocalPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/PhoneNumbers/Countries/US" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if user, _, ok := r.BasicAuth(); !ok || user != "AC123" {
			t.Fatalf("missing or wrong basic auth")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"country": "United States",
			"iso_country": "US",
			"price_unit": "USD",
			"phone_number_prices": [
				{"number_type": "toll free", "base_price": "2.00", "current_price": "2.00"},
				{"number_type": "local", "base_price": "1.15", "current_price": "1.15"}
			]
		}`))
	}))
	defer srv.Close()

	client := NewTwilioPricingClient(TwilioPricingConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		BaseURL:    srv.URL,
	})
	cost, err := client.MonthlyCost(context.Background(), "US")
	if err != nil {
		t.Fatalf("monthly cost: %v", err)
	}
	if cost != 1.15 {
		t.Fatalf("cost = %v, want local price 1.15", cost)
	}
}

func TestTwilioPricingClientUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewTwilioPricingClient(TwilioPricingConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		BaseURL:    srv.URL,
	})
	if _, err := client.MonthlyCost(context.Background(), "ZZ"); err == nil {
		t.Fatal("expected error for 404 upstream")
	}
}
