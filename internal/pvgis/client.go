package pvgis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sunelia/solar-funnel/pkg/logging"
)

const defaultTimeout = 30 * time.Second

// maxPDFBytes caps how much of a binary response is buffered in memory.
const maxPDFBytes = 20 << 20

var tracer = otel.Tracer("solarfunnel.internal.pvgis")

// Client is a thin HTTP client for the PVGIS calculation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// WithTimeout overrides the HTTP client timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient.Timeout = d
	return c
}

// GetRegionConfig fetches the display configuration for a region.
func (c *Client) GetRegionConfig(ctx context.Context, region string) (*RegionConfig, error) {
	var out RegionConfig
	if err := c.doJSON(ctx, http.MethodGet, "/api/regions/"+url.PathEscape(region), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCalculationModes fetches the available calculation-mode definitions.
func (c *Client) GetCalculationModes(ctx context.Context) ([]CalculationMode, error) {
	var out struct {
		Modes []CalculationMode `json:"modes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/calculation-modes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Modes, nil
}

// GetKits fetches the raw kit catalog for a region. The France and Martinique
// backends answer with different shapes; both are folded into RawKit here so
// callers never see the divergence.
func (c *Client) GetKits(ctx context.Context, region string) ([]RawKit, error) {
	path := "/api/regions/" + url.PathEscape(region) + "/kits"

	if region == RegionMartinique {
		var out martiniqueKitsData
		if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
			return nil, err
		}
		kits := make([]RawKit, 0, len(out.Kits))
		for _, k := range out.Kits {
			kits = append(kits, RawKit{
				Region:             RegionMartinique,
				Power:              k.PowerKW,
				PanelCount:         k.PanelCount,
				PriceTTC:           k.PriceTTC,
				PriceHT:            k.PriceHT,
				AutoconsumptionAid: k.AutoconsumptionAid,
				TotalAids:          k.TotalAids,
			})
		}
		return kits, nil
	}

	var out franceKitsData
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	kits := make([]RawKit, 0, len(out.Kits))
	for _, k := range out.Kits {
		kits = append(kits, RawKit{
			Region:     RegionFrance,
			Power:      k.Puissance,
			PanelCount: k.NbPanneaux,
			PriceTTC:   k.PrixTTC,
		})
	}
	return kits, nil
}

// CreateClient creates a client record from collected form data and returns
// the backend identifier.
func (c *Client) CreateClient(ctx context.Context, payload ClientPayload) (string, error) {
	ctx, span := tracer.Start(ctx, "pvgis.create_client")
	defer span.End()

	var out CreatedClient
	if err := c.doJSON(ctx, http.MethodPost, "/api/clients", nil, payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("pvgis: create client returned empty id")
	}
	span.SetAttributes(attribute.String("client_id", out.ID))
	return out.ID, nil
}

// Calculate triggers the backend calculation for a client.
func (c *Client) Calculate(ctx context.Context, clientID, region, mode string) (*CalculationResult, error) {
	ctx, span := tracer.Start(ctx, "pvgis.calculate")
	defer span.End()
	span.SetAttributes(
		attribute.String("client_id", clientID),
		attribute.String("region", region),
		attribute.String("calculation_mode", mode),
	)

	query := url.Values{}
	query.Set("region", region)
	query.Set("calculation_mode", mode)

	var out CalculationResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/calculate/"+url.PathEscape(clientID), query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadReport fetches the binary PDF report for a client.
func (c *Client) DownloadReport(ctx context.Context, clientID string) ([]byte, error) {
	return c.doPDF(ctx, "/api/generate-pdf/"+url.PathEscape(clientID), nil)
}

// DownloadDevis fetches the binary PDF quote for a client and region.
func (c *Client) DownloadDevis(ctx context.Context, clientID, region string) ([]byte, error) {
	query := url.Values{}
	query.Set("region", region)
	return c.doPDF(ctx, "/api/generate-devis/"+url.PathEscape(clientID), query)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("pvgis: marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path, query), body)
	if err != nil {
		return fmt.Errorf("pvgis: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pvgis: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var payload errorData
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			return fmt.Errorf("pvgis: %s %s: status %d: %s", method, path, resp.StatusCode, payload.Error)
		}
		return fmt.Errorf("pvgis: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pvgis: decode response: %w", err)
	}
	return nil
}

func (c *Client) doPDF(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("pvgis: create request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pvgis: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pvgis: GET %s: status %d", path, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes))
	if err != nil {
		return nil, fmt.Errorf("pvgis: read pdf body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("pvgis: GET %s: empty pdf body", path)
	}
	return data, nil
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
