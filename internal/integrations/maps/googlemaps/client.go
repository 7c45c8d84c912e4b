package googlemaps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/BearBump/FreightDesk/internal/models"
	"github.com/pkg/errors"
)

const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
	statusNotFound    = "NOT_FOUND"
	statusTooLong     = "MAX_ROUTE_LENGTH_EXCEEDED"
)

// Client talks to a Google Maps compatible web service (geocode/json, directions/json).
// One Client is created at startup and shared; Close releases its idle connections.
type Client struct {
	baseURL string
	apiKey  string
	region  string
	httpc   *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout:   timeout,
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
		},
	}
}

// WithRegion qualifies Directions origins and destinations with a country code,
// the way Geocode restricts its results.
func (c *Client) WithRegion(country string) *Client {
	c.region = strings.ToUpper(strings.TrimSpace(country))
	return c
}

func (c *Client) Close() {
	c.httpc.CloseIdleConnections()
}

type geocodeResp struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) Geocode(ctx context.Context, postalCode, country string) ([]models.Coordinate, error) {
	q := url.Values{}
	q.Set("address", postalCode)
	q.Set("components", "postal_code:"+postalCode+"|country:"+country)
	q.Set("region", country)

	var r geocodeResp
	if err := c.get(ctx, "geocode", "/maps/api/geocode/json", q, &r); err != nil {
		return nil, err
	}
	switch r.Status {
	case statusOK:
	case statusZeroResults:
		return nil, nil
	default:
		return nil, &errs.ProviderError{Op: "geocode", Status: r.Status, Err: messageErr(r.ErrorMessage)}
	}

	out := make([]models.Coordinate, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, models.Coordinate{Lat: res.Geometry.Location.Lat, Lng: res.Geometry.Location.Lng})
	}
	return out, nil
}

type directionsResp struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Distance struct {
				Value int64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value int64 `json:"value"`
			} `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

// Directions sums the legs of the first route. Statuses meaning no drivable route are a
// *errs.RouteError; quota, auth and request failures are a *errs.ProviderError.
func (c *Client) Directions(ctx context.Context, origin, destination string) (int64, int64, error) {
	q := url.Values{}
	q.Set("origin", c.place(origin))
	q.Set("destination", c.place(destination))
	q.Set("mode", "driving")
	q.Set("units", "imperial")
	if c.region != "" {
		q.Set("region", strings.ToLower(c.region))
	}

	var r directionsResp
	if err := c.get(ctx, "directions", "/maps/api/directions/json", q, &r); err != nil {
		return 0, 0, err
	}
	switch r.Status {
	case statusOK:
	case statusZeroResults, statusNotFound, statusTooLong:
		return 0, 0, &errs.RouteError{Status: r.Status}
	default:
		return 0, 0, &errs.ProviderError{Op: "directions", Status: r.Status, Err: messageErr(r.ErrorMessage)}
	}
	if len(r.Routes) == 0 {
		return 0, 0, &errs.RouteError{Status: statusZeroResults}
	}

	var meters, seconds int64
	for _, leg := range r.Routes[0].Legs {
		meters += leg.Distance.Value
		seconds += leg.Duration.Value
	}
	return meters, seconds, nil
}

func (c *Client) place(postalCode string) string {
	if c.region == "" {
		return postalCode
	}
	return postalCode + ", " + c.region
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &errs.ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &errs.ProviderError{Op: op, Status: "HTTP_" + strconv.Itoa(resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errs.ProviderError{Op: op, Err: errors.Wrap(err, "decode")}
	}
	return nil
}

func messageErr(msg string) error {
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}
