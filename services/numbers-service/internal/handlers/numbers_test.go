package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/o-castellano/botdesk/services/numbers-service/internal/pricing"
	"github.com/o-castellano/botdesk/services/numbers-service/internal/provision"
)

type failingCarrier struct{}

func (failingCarrier) MonthlyCost(context.Context, string) (float64, error) {
	return 0, errors.New("upstream down")
}

type fixedCarrier struct{ cost float64 }

func (f fixedCarrier) MonthlyCost(context.Context, string) (float64, error) {
	return f.cost, nil
}

type fakeSearcher struct {
	numbers []provision.AvailableNumber
	err     error
}

func (f *fakeSearcher) Search(context.Context, string, string, int) ([]provision.AvailableNumber, error) {
	return f.numbers, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
}

func TestPricingAlwaysReturns200(t *testing.T) {
	h := NewNumbersHandler(
		pricing.NewQuoter(failingCarrier{}, testLogger(), 3.50),
		&fakeSearcher{}, nil, testLogger(),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/numbers/pricing?country=US", nil)
	rec := httptest.NewRecorder()
	h.Pricing(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even with broken upstream", rec.Code)
	}
	var quote pricing.Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &quote); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if quote.Success {
		t.Fatal("degraded quote must report success:false")
	}
	if !quote.Fallback {
		t.Fatal("degraded quote must set fallback:true")
	}
	if quote.MonthlyPrice != 6.75 {
		t.Fatalf("monthlyPrice = %v, want fallback 6.75", quote.MonthlyPrice)
	}
}

func TestPricingDefaultsCountryToUS(t *testing.T) {
	h := NewNumbersHandler(
		pricing.NewQuoter(fixedCarrier{cost: 1.15}, testLogger(), 3.50),
		&fakeSearcher{}, nil, testLogger(),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/numbers/pricing", nil)
	rec := httptest.NewRecorder()
	h.Pricing(rec, req)

	var quote pricing.Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &quote); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if quote.Country != "US" {
		t.Fatalf("country = %q, want US default", quote.Country)
	}
	if !quote.Success || quote.MonthlyPrice != 4.65 {
		t.Fatalf("quote = %+v", quote)
	}
}

func TestSearchMapsUpstreamFailureTo502(t *testing.T) {
	h := NewNumbersHandler(
		pricing.NewQuoter(fixedCarrier{cost: 1.15}, testLogger(), 3.50),
		&fakeSearcher{err: errors.New("api down")}, nil, testLogger(),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/numbers/search?country=US", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestSearchReturnsNumbers(t *testing.T) {
	h := NewNumbersHandler(
		pricing.NewQuoter(fixedCarrier{cost: 1.15}, testLogger(), 3.50),
		&fakeSearcher{numbers: []provision.AvailableNumber{
			{PhoneNumber: "+15550001", IsoCountry: "US", Region: "CA"},
		}}, nil, testLogger(),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/numbers/search?country=us&limit=5", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Numbers []provision.AvailableNumber `json:"numbers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(body.Numbers) != 1 || body.Numbers[0].PhoneNumber != "+15550001" {
		t.Fatalf("numbers = %+v", body.Numbers)
	}
}

func TestProvisionRequiresTenant(t *testing.T) {
	h := NewNumbersHandler(
		pricing.NewQuoter(fixedCarrier{cost: 1.15}, testLogger(), 3.50),
		&fakeSearcher{}, nil, testLogger(),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/numbers", strings.NewReader(`{"phone_number":"+15550001"}`))
	rec := httptest.NewRecorder()
	h.Provision(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without tenant header", rec.Code)
	}
}
