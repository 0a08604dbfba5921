// Package external wraps the three one-shot third-party lookups the
// pipeline's gatekeeping stations consult: carrier/line-type lookup,
// Do-Not-Call registry scrub, and census-style demographics. None of the
// example pack's go.mod files carry a REST client library (no go-resty, no
// equivalent), so these clients are built directly on net/http — the one
// stdlib-justified boundary in this package, per DESIGN.md.
//
// Grounded on original_source/scrapegoat/app/enrichment/telnyx_gatekeep.py's
// validate_phone_telnyx (request shape, timeout). The clients return lookup
// errors to their caller; the gatekeeping stations decide to fail open.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/linkpellow/chimera-core/internal/pipeline/stations"
)

// CarrierLookupClient validates a phone number's line type and carrier via
// an external lookup API (e.g. Telnyx's phone number lookup), implementing
// stations.PhoneValidator.
type CarrierLookupClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewCarrierLookupClient constructs a client with the given request timeout.
func NewCarrierLookupClient(baseURL, apiKey string, timeout time.Duration) *CarrierLookupClient {
	return &CarrierLookupClient{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{Timeout: timeout}}
}

type carrierLookupResponse struct {
	Data struct {
		Valid   bool `json:"valid"`
		Carrier struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"carrier"`
	} `json:"data"`
}

// Validate implements stations.PhoneValidator.
func (c *CarrierLookupClient) Validate(ctx context.Context, phone string) (stations.PhoneValidation, error) {
	cleaned := cleanUSPhone(phone)
	if cleaned == "" {
		return stations.PhoneValidation{}, fmt.Errorf("phone %q is not a valid 10-digit US number", phone)
	}

	endpoint := fmt.Sprintf("%s?phone_number=%s", c.BaseURL, url.QueryEscape("+1"+cleaned))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return stations.PhoneValidation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return stations.PhoneValidation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stations.PhoneValidation{}, fmt.Errorf("carrier lookup: unexpected status %d", resp.StatusCode)
	}

	var parsed carrierLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return stations.PhoneValidation{}, fmt.Errorf("decode carrier lookup response: %w", err)
	}

	carrierType := strings.ToLower(parsed.Data.Carrier.Type)
	return stations.PhoneValidation{
		IsValid:    parsed.Data.Valid,
		IsMobile:   carrierType == "mobile",
		IsVOIP:     carrierType == "voip",
		IsLandline: carrierType == "landline",
		Carrier:    parsed.Data.Carrier.Name,
	}, nil
}

func cleanUSPhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()
	if len(cleaned) == 11 && strings.HasPrefix(cleaned, "1") {
		cleaned = cleaned[1:]
	}
	if len(cleaned) != 10 {
		return ""
	}
	return cleaned
}

// DNCRegistryClient scrubs a phone number against a Do-Not-Call registry
// API, implementing stations.DNCChecker.
type DNCRegistryClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewDNCRegistryClient constructs a client with the given request timeout.
func NewDNCRegistryClient(baseURL, apiKey string, timeout time.Duration) *DNCRegistryClient {
	return &DNCRegistryClient{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{Timeout: timeout}}
}

type dncLookupResponse struct {
	Status     string `json:"status"`
	CanContact bool   `json:"can_contact"`
}

// Check implements stations.DNCChecker.
func (c *DNCRegistryClient) Check(ctx context.Context, phone string) (stations.DNCResult, error) {
	endpoint := fmt.Sprintf("%s?phone_number=%s", c.BaseURL, url.QueryEscape(phone))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return stations.DNCResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return stations.DNCResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stations.DNCResult{}, fmt.Errorf("dnc lookup: unexpected status %d", resp.StatusCode)
	}

	var parsed dncLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return stations.DNCResult{}, fmt.Errorf("decode dnc lookup response: %w", err)
	}
	return stations.DNCResult{Status: parsed.Status, CanContact: parsed.CanContact}, nil
}

// DemographicsClient resolves census-style demographic data for a zip
// code, implementing stations.DemographicsProvider. When APIKey is unset
// and HTMLFallbackURL is set, it scrapes a public census-lookup page's
// income table instead, mirroring the original demographics module's "try
// the paid API first, fall back to a second source" layering.
// NewDemographicsClient leaves HTMLFallbackURL empty.
type DemographicsClient struct {
	BaseURL     string
	APIKey      string
	HTMLFallbackURL string
	HTTP        *http.Client
}

// NewDemographicsClient constructs a client with the given request timeout.
func NewDemographicsClient(baseURL, apiKey string, timeout time.Duration) *DemographicsClient {
	return &DemographicsClient{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{Timeout: timeout}}
}

type demographicsResponse struct {
	Income      int    `json:"income"`
	IncomeRange string `json:"income_range"`
	Age         int    `json:"age"`
	Address     string `json:"address"`
}

// Lookup implements stations.DemographicsProvider.
func (c *DemographicsClient) Lookup(ctx context.Context, zipcode, city, state string) (stations.DemographicRecord, error) {
	if c.APIKey == "" && c.HTMLFallbackURL != "" {
		return c.lookupFromHTMLTable(ctx, zipcode)
	}
	params := url.Values{"zipcode": {zipcode}, "city": {city}, "state": {state}, "api_key": {c.APIKey}}
	endpoint := c.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return stations.DemographicRecord{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return stations.DemographicRecord{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stations.DemographicRecord{}, fmt.Errorf("demographics lookup: unexpected status %d", resp.StatusCode)
	}

	var parsed demographicsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return stations.DemographicRecord{}, fmt.Errorf("decode demographics response: %w", err)
	}
	return stations.DemographicRecord{
		Income:      parsed.Income,
		IncomeRange: parsed.IncomeRange,
		Age:         parsed.Age,
		Address:     parsed.Address,
	}, nil
}

// lookupFromHTMLTable scrapes a public income-by-zip lookup page's result
// table as a no-API-key fallback, used when no paid demographics key is
// configured.
func (c *DemographicsClient) lookupFromHTMLTable(ctx context.Context, zipcode string) (stations.DemographicRecord, error) {
	endpoint := c.HTMLFallbackURL + "?" + url.Values{"zip": {zipcode}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return stations.DemographicRecord{}, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return stations.DemographicRecord{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stations.DemographicRecord{}, fmt.Errorf("demographics html fallback: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return stations.DemographicRecord{}, fmt.Errorf("parse demographics html: %w", err)
	}

	record := stations.DemographicRecord{}
	doc.Find("table.income-lookup tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find("td.label").Text())
		value := strings.TrimSpace(row.Find("td.value").Text())
		switch strings.ToLower(label) {
		case "median household income":
			cleaned := strings.NewReplacer("$", "", ",", "").Replace(value)
			if income, err := strconv.Atoi(cleaned); err == nil {
				record.Income = income
			}
		case "income range":
			record.IncomeRange = value
		}
	})
	if record.Income == 0 && record.IncomeRange == "" {
		return stations.DemographicRecord{}, fmt.Errorf("demographics html fallback: no income row found for %s", zipcode)
	}
	return record, nil
}
