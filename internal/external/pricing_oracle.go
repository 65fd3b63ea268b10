package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go-gin-flight-booking/internal/model"
)

// PricingOracle returns the current dynamic fare for a flight. Callers fall
// back to the base fare when it fails.
type PricingOracle interface {
	Quote(ctx context.Context, flight *model.Flight) (model.PriceQuote, error)
}

type priceRequest struct {
	FlightID       string    `json:"flightId"`
	BaseFare       float64   `json:"baseFare"`
	TotalSeats     int       `json:"totalSeats"`
	AvailableSeats int       `json:"availableSeats"`
	DepartureTime  time.Time `json:"departureTime"`
}

type priceResponse struct {
	Price       float64 `json:"price"`
	Multiplier  float64 `json:"multiplier"`
	DemandLevel string  `json:"demandLevel"`
}

type HTTPPricingOracle struct {
	baseURL string
	client  *http.Client
}

func NewHTTPPricingOracle(baseURL string, timeout time.Duration) *HTTPPricingOracle {
	return &HTTPPricingOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (o *HTTPPricingOracle) Quote(ctx context.Context, flight *model.Flight) (model.PriceQuote, error) {
	body, err := json.Marshal(priceRequest{
		FlightID:       flight.ID,
		BaseFare:       flight.BaseFare,
		TotalSeats:     flight.TotalSeats,
		AvailableSeats: flight.AvailableSeats,
		DepartureTime:  flight.DepartureTime,
	})
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("marshal price request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/price", bytes.NewReader(body))
	if err != nil {
		return model.PriceQuote{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return model.PriceQuote{}, fmt.Errorf("pricing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.PriceQuote{}, fmt.Errorf("pricing service returned %d", resp.StatusCode)
	}

	var out priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.PriceQuote{}, fmt.Errorf("decode price response: %w", err)
	}
	if out.Price <= 0 {
		return model.PriceQuote{}, fmt.Errorf("pricing service returned non-positive price %v", out.Price)
	}

	quote := model.PriceQuote{
		Price:       out.Price,
		Multiplier:  out.Multiplier,
		DemandLevel: out.DemandLevel,
	}
	if quote.Multiplier == 0 {
		quote.Multiplier = 1
	}
	if quote.DemandLevel == "" {
		quote.DemandLevel = "medium"
	}
	return quote, nil
}
