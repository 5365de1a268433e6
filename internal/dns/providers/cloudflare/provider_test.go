package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go_certhub/internal/dns"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudflare struct {
	mu      sync.Mutex
	records map[string]CloudflareRecord
	zones   map[string]string // name -> id
	status  int               // forced status for every request when non-zero
	auth    string
	paths   []string
}

func newFakeCloudflare() *fakeCloudflare {
	return &fakeCloudflare{
		records: map[string]CloudflareRecord{},
		zones:   map[string]string{"example.com": "zone-example", "example.net": "zone-net"},
	}
}

func (f *fakeCloudflare) write(w http.ResponseWriter, status int, success bool, errs []CloudflareError, result interface{}) {
	raw, _ := json.Marshal(result)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(CloudflareResponse{Success: success, Errors: errs, Result: raw})
}

func (f *fakeCloudflare) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.auth = r.Header.Get("Authorization")
	f.paths = append(f.paths, r.URL.Path)
	if f.status != 0 {
		f.write(w, f.status, false, []CloudflareError{{Code: 10000, Message: "forced"}}, nil)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "zones":
		zones := []CloudflareZone{}
		if id, ok := f.zones[r.URL.Query().Get("name")]; ok {
			zones = append(zones, CloudflareZone{ID: id, Name: r.URL.Query().Get("name")})
		}
		f.write(w, http.StatusOK, true, nil, zones)

	case r.Method == http.MethodPost && len(parts) == 3:
		var rec CloudflareRecord
		_ = json.NewDecoder(r.Body).Decode(&rec)
		rec.ID = "rec-" + parts[1] + "-" + rec.Name
		f.records[rec.ID] = rec
		f.write(w, http.StatusOK, true, nil, rec)

	case r.Method == http.MethodGet && len(parts) == 3:
		out := []CloudflareRecord{}
		for _, rec := range f.records {
			if rec.Name == r.URL.Query().Get("name") && rec.Content == r.URL.Query().Get("content") {
				out = append(out, rec)
			}
		}
		f.write(w, http.StatusOK, true, nil, out)

	case r.Method == http.MethodDelete && len(parts) == 4:
		if _, ok := f.records[parts[3]]; !ok {
			f.write(w, http.StatusNotFound, false, []CloudflareError{{Code: 81044, Message: "Record does not exist."}}, nil)
			return
		}
		delete(f.records, parts[3])
		f.write(w, http.StatusOK, true, nil, map[string]string{"id": parts[3]})

	default:
		f.write(w, http.StatusBadRequest, false, []CloudflareError{{Code: 7003, Message: "bad route"}}, nil)
	}
}

func newTestProvider(t *testing.T, zoneID string) (*CloudflareProvider, *fakeCloudflare) {
	t.Helper()
	fake := newFakeCloudflare()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewCloudflareProvider("cf-token", zoneID, WithBaseURL(srv.URL), WithHTTPClient(srv.Client())), fake
}

var testRecord = dns.TXTRecord{
	Domain: "www.example.com",
	FQDN:   "_acme-challenge.www.example.com.",
	Value:  "txt-value",
}

func TestCloudflare_CreateAndDelete(t *testing.T) {
	p, fake := newTestProvider(t, "zone-1")
	ctx := context.Background()

	handle, err := p.CreateTXTRecord(ctx, testRecord)
	require.NoError(t, err)
	assert.Equal(t, "zone-1", handle.ZoneID)
	assert.Equal(t, "rec-zone-1-_acme-challenge.www.example.com", handle.RecordID)
	assert.Equal(t, "Bearer cf-token", fake.auth)
	assert.Len(t, fake.records, 1)

	require.NoError(t, p.DeleteTXTRecord(ctx, handle))
	assert.Empty(t, fake.records)

	// second delete hits 81044 and is still a success
	require.NoError(t, p.DeleteTXTRecord(ctx, handle))
}

func TestCloudflare_ZoneLookup(t *testing.T) {
	p, _ := newTestProvider(t, "")
	ctx := context.Background()

	handle, err := p.CreateTXTRecord(ctx, testRecord)
	require.NoError(t, err)
	assert.Equal(t, "zone-example", handle.ZoneID)

	// the challenge name was delegated by CNAME into another zone
	handle, err = p.CreateTXTRecord(ctx, dns.TXTRecord{
		Domain: "example.org",
		FQDN:   "example-org.validation.example.net.",
		Value:  "v",
	})
	require.NoError(t, err)
	assert.Equal(t, "zone-net", handle.ZoneID)

	_, err = p.CreateTXTRecord(ctx, dns.TXTRecord{
		Domain: "example.org",
		FQDN:   "_acme-challenge.example.org.",
		Value:  "v",
	})
	require.Error(t, err)
	assert.Equal(t, dns.KindRejected, dns.KindOf(err))
}

func TestCloudflare_DeleteWithoutRecordID(t *testing.T) {
	p, fake := newTestProvider(t, "zone-1")
	ctx := context.Background()

	_, err := p.CreateTXTRecord(ctx, testRecord)
	require.NoError(t, err)

	err = p.DeleteTXTRecord(ctx, &dns.RecordHandle{FQDN: testRecord.FQDN, Value: testRecord.Value})
	require.NoError(t, err)
	assert.Empty(t, fake.records)
}

func TestCloudflare_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   dns.ErrorKind
	}{
		{http.StatusUnauthorized, dns.KindAuth},
		{http.StatusForbidden, dns.KindAuth},
		{http.StatusTooManyRequests, dns.KindRateLimit},
		{http.StatusBadGateway, dns.KindTransient},
		{http.StatusBadRequest, dns.KindRejected},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p, fake := newTestProvider(t, "zone-1")
			fake.status = tt.status

			_, err := p.CreateTXTRecord(context.Background(), testRecord)
			require.Error(t, err)
			assert.Equal(t, tt.kind, dns.KindOf(err))
		})
	}
}

func TestNew_CredentialFields(t *testing.T) {
	fake := newFakeCloudflare()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	p := New(dns.Credential{Type: dns.TypeCloudflare, SecretID: "cf-api-token", SecretKey: "zone-123"},
		WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	handle, err := p.CreateTXTRecord(context.Background(), testRecord)
	require.NoError(t, err)
	assert.Equal(t, "zone-123", handle.ZoneID)
	assert.Equal(t, "Bearer cf-api-token", fake.auth)
	assert.Equal(t, []string{"/zones/zone-123/dns_records"}, fake.paths)
}
