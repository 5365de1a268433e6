package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go_certhub/internal/dns"
	"go_certhub/internal/domainutil"
)

const (
	cloudflareAPIBase = "https://api.cloudflare.com/client/v4"
	requestTimeout    = 10 * time.Second
	challengeTTL      = 120
)

var (
	// ErrNotFound is returned when a DNS record or zone is not found
	ErrNotFound = errors.New("DNS record not found")
)

// CloudflareProvider implements dns.Provider for Cloudflare API.
// The credential's secret_id is the API token and secret_key the zone id.
// Without a zone id the zone is looked up by name.
type CloudflareProvider struct {
	zoneID   string
	apiToken string
	baseURL  string
	client   *http.Client
}

// Option customizes a CloudflareProvider
type Option func(*CloudflareProvider)

// WithBaseURL points the provider at another API endpoint
func WithBaseURL(u string) Option {
	return func(p *CloudflareProvider) { p.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(p *CloudflareProvider) { p.client = c }
}

// NewCloudflareProvider creates a new Cloudflare DNS provider
func NewCloudflareProvider(apiToken, zoneID string, opts ...Option) *CloudflareProvider {
	p := &CloudflareProvider{
		zoneID:   zoneID,
		apiToken: apiToken,
		baseURL:  cloudflareAPIBase,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// New creates a provider from a stored credential: secret_id is the API
// token and secret_key the zone id
func New(cred dns.Credential, opts ...Option) *CloudflareProvider {
	return NewCloudflareProvider(cred.SecretID, cred.SecretKey, opts...)
}

// CloudflareRecord represents a Cloudflare DNS record (API response)
type CloudflareRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
}

// CloudflareZone represents a Cloudflare zone (API response)
type CloudflareZone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CloudflareResponse represents a Cloudflare API response
type CloudflareResponse struct {
	Success bool              `json:"success"`
	Errors  []CloudflareError `json:"errors"`
	Result  json.RawMessage   `json:"result"`
}

// CloudflareError represents a Cloudflare API error
type CloudflareError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CreateTXTRecord publishes the challenge TXT record
func (p *CloudflareProvider) CreateTXTRecord(ctx context.Context, rec dns.TXTRecord) (*dns.RecordHandle, error) {
	zoneID, err := p.resolveZone(ctx, rec.FQDN)
	if err != nil {
		return nil, err
	}

	name := domainutil.UnFqdn(rec.FQDN)
	payload := map[string]interface{}{
		"type":    "TXT",
		"name":    name,
		"content": rec.Value,
		"ttl":     challengeTTL,
	}

	var created CloudflareRecord
	if err := p.do(ctx, http.MethodPost, fmt.Sprintf("/zones/%s/dns_records", zoneID), payload, &created); err != nil {
		return nil, err
	}

	return &dns.RecordHandle{
		Provider: dns.TypeCloudflare,
		Domain:   rec.Domain,
		FQDN:     rec.FQDN,
		Value:    rec.Value,
		ZoneID:   zoneID,
		RecordID: created.ID,
	}, nil
}

// DeleteTXTRecord deletes the record created by CreateTXTRecord.
// A record that is already gone is treated as success.
func (p *CloudflareProvider) DeleteTXTRecord(ctx context.Context, handle *dns.RecordHandle) error {
	zoneID := handle.ZoneID
	if zoneID == "" {
		var err error
		if zoneID, err = p.resolveZone(ctx, handle.FQDN); err != nil {
			return err
		}
	}

	recordID := handle.RecordID
	if recordID == "" {
		id, err := p.FindRecord(ctx, zoneID, "TXT", domainutil.UnFqdn(handle.FQDN), handle.Value)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		recordID = id
	}

	err := p.do(ctx, http.MethodDelete, fmt.Sprintf("/zones/%s/dns_records/%s", zoneID, recordID), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// FindRecord finds a DNS record by type, name, and value
func (p *CloudflareProvider) FindRecord(ctx context.Context, zoneID, recordType, name, value string) (string, error) {
	q := url.Values{}
	q.Set("type", recordType)
	q.Set("name", name)
	q.Set("content", value)

	var records []CloudflareRecord
	if err := p.do(ctx, http.MethodGet, fmt.Sprintf("/zones/%s/dns_records?%s", zoneID, q.Encode()), nil, &records); err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", ErrNotFound
	}
	return records[0].ID, nil
}

// resolveZone returns the configured zone id, or the closest zone the
// token can see, walking up from the record name
func (p *CloudflareProvider) resolveZone(ctx context.Context, fqdn string) (string, error) {
	if p.zoneID != "" {
		return p.zoneID, nil
	}

	candidates, err := domainutil.ZoneCandidates(fqdn)
	if err != nil {
		return "", dns.NewError(dns.TypeCloudflare, dns.KindRejected, "", err)
	}

	for _, name := range candidates {
		var zones []CloudflareZone
		if err := p.do(ctx, http.MethodGet, "/zones?name="+url.QueryEscape(name), nil, &zones); err != nil {
			return "", err
		}
		if len(zones) > 0 {
			return zones[0].ID, nil
		}
	}
	return "", dns.NewError(dns.TypeCloudflare, dns.KindRejected, "",
		fmt.Errorf("no zone for %s is managed by this token", domainutil.UnFqdn(fqdn)))
}

// do sends one API request and decodes result into out.
// Every failure is returned as a *dns.ProviderError.
func (p *CloudflareProvider) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.apiToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return dns.NewError(dns.TypeCloudflare, dns.KindTransient, "", fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return dns.NewError(dns.TypeCloudflare, dns.KindTransient, "", fmt.Errorf("failed to read response: %w", err))
	}

	var cfResp CloudflareResponse
	if err := json.Unmarshal(respBody, &cfResp); err != nil {
		if resp.StatusCode >= 300 {
			return dns.NewError(dns.TypeCloudflare, dns.ClassifyStatus(resp.StatusCode), strconv.Itoa(resp.StatusCode),
				fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
		return dns.NewError(dns.TypeCloudflare, dns.KindTransient, "", fmt.Errorf("failed to parse response: %w", err))
	}

	if !cfResp.Success || resp.StatusCode >= 300 {
		// Check for record not found error code (81044)
		for _, e := range cfResp.Errors {
			if e.Code == 81044 || e.Code == 81043 {
				return dns.NewError(dns.TypeCloudflare, dns.KindNotFound, strconv.Itoa(e.Code), ErrNotFound)
			}
		}
		code := ""
		if len(cfResp.Errors) > 0 {
			code = strconv.Itoa(cfResp.Errors[0].Code)
		}
		kind := dns.ClassifyStatus(resp.StatusCode)
		if resp.StatusCode < 300 {
			kind = dns.KindRejected
		}
		if kind == dns.KindNotFound {
			return dns.NewError(dns.TypeCloudflare, kind, code, ErrNotFound)
		}
		return dns.NewError(dns.TypeCloudflare, kind, code,
			fmt.Errorf("cloudflare API error: %s", formatErrors(cfResp.Errors)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(cfResp.Result, out); err != nil {
		return dns.NewError(dns.TypeCloudflare, dns.KindTransient, "", fmt.Errorf("failed to parse result: %w", err))
	}
	return nil
}

// formatErrors formats Cloudflare API errors into a readable string
func formatErrors(errors []CloudflareError) string {
	if len(errors) == 0 {
		return "unknown error"
	}

	var errMsgs []string
	for _, e := range errors {
		errMsgs = append(errMsgs, fmt.Sprintf("[%d] %s", e.Code, e.Message))
	}

	return fmt.Sprintf("%v", errMsgs)
}
