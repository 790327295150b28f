package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/yacekmm/SpeakerAssistant/internal/observability"
)

// maxDiscoveryBody caps the discovery response we are willing to decode.
const maxDiscoveryBody = 1 << 20

// Catalog fetches the backend's audio device lists.
type Catalog struct {
	url     string
	client  *http.Client
	metrics *observability.Metrics
	log     zerolog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) CatalogOption {
	return func(cat *Catalog) { cat.client = c }
}

// WithCatalogMetrics records discovery latency.
func WithCatalogMetrics(m *observability.Metrics) CatalogOption {
	return func(cat *Catalog) { cat.metrics = m }
}

// WithCatalogLogger sets the logger.
func WithCatalogLogger(l zerolog.Logger) CatalogOption {
	return func(cat *Catalog) { cat.log = l }
}

// NewCatalog creates a catalog for the discovery endpoint at url.
// timeout bounds the single request.
func NewCatalog(url string, timeout time.Duration, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the discovery endpoint.
func (c *Catalog) URL() string { return c.url }

// FetchDevices performs exactly one discovery request. On any failure it
// returns an empty DeviceList and a *DiscoveryError.
func (c *Catalog) FetchDevices(ctx context.Context) (DeviceList, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveDiscovery(time.Since(start)) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return DeviceList{}, &DiscoveryError{Op: "request", URL: c.url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return DeviceList{}, &DiscoveryError{Op: "request", URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDiscoveryBody))
		return DeviceList{}, &DiscoveryError{
			Op:  "status",
			URL: c.url,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var list DeviceList
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDiscoveryBody)).Decode(&list); err != nil {
		return DeviceList{}, &DiscoveryError{Op: "decode", URL: c.url, Err: err}
	}
	if list.Inputs == nil {
		list.Inputs = []AudioDevice{}
	}
	if list.Outputs == nil {
		list.Outputs = []AudioDevice{}
	}

	c.log.Info().
		Int("inputs", len(list.Inputs)).
		Int("outputs", len(list.Outputs)).
		Dur("took", time.Since(start)).
		Msg("devices discovered")
	return list, nil
}
