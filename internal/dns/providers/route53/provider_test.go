package route53

import (
	"context"
	"testing"

	"go_certhub/internal/dns"

	"github.com/aws/aws-sdk-go-v2/aws"
	r53 "github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoute53 struct {
	sets    map[string][]string // fqdn -> quoted values
	zones   []types.HostedZone
	lookups []string
	changes []types.ChangeAction
	listErr error
}

func newFakeRoute53() *fakeRoute53 {
	return &fakeRoute53{
		sets: map[string][]string{},
		zones: []types.HostedZone{
			{Id: aws.String("/hostedzone/ZPRIVATE"), Name: aws.String("example.com."), Config: &types.HostedZoneConfig{PrivateZone: true}},
			{Id: aws.String("/hostedzone/ZPUBLIC"), Name: aws.String("example.com."), Config: &types.HostedZoneConfig{}},
			{Id: aws.String("/hostedzone/ZNET"), Name: aws.String("example.net."), Config: &types.HostedZoneConfig{}},
		},
	}
}

// ListHostedZonesByName returns every zone sorted at or after DNSName, like
// the real API does, so callers must match names exactly
func (f *fakeRoute53) ListHostedZonesByName(_ context.Context, in *r53.ListHostedZonesByNameInput, _ ...func(*r53.Options)) (*r53.ListHostedZonesByNameOutput, error) {
	f.lookups = append(f.lookups, aws.ToString(in.DNSName))
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &r53.ListHostedZonesByNameOutput{HostedZones: f.zones}, nil
}

func (f *fakeRoute53) ListResourceRecordSets(_ context.Context, in *r53.ListResourceRecordSetsInput, _ ...func(*r53.Options)) (*r53.ListResourceRecordSetsOutput, error) {
	name := aws.ToString(in.StartRecordName)
	values, ok := f.sets[name]
	if !ok {
		return &r53.ListResourceRecordSetsOutput{}, nil
	}
	records := make([]types.ResourceRecord, 0, len(values))
	for _, v := range values {
		records = append(records, types.ResourceRecord{Value: aws.String(v)})
	}
	return &r53.ListResourceRecordSetsOutput{
		ResourceRecordSets: []types.ResourceRecordSet{{Name: aws.String(name), Type: types.RRTypeTxt, ResourceRecords: records}},
	}, nil
}

func (f *fakeRoute53) ChangeResourceRecordSets(_ context.Context, in *r53.ChangeResourceRecordSetsInput, _ ...func(*r53.Options)) (*r53.ChangeResourceRecordSetsOutput, error) {
	for _, c := range in.ChangeBatch.Changes {
		f.changes = append(f.changes, c.Action)
		name := aws.ToString(c.ResourceRecordSet.Name)
		switch c.Action {
		case types.ChangeActionDelete:
			delete(f.sets, name)
		default:
			var values []string
			for _, rr := range c.ResourceRecordSet.ResourceRecords {
				values = append(values, aws.ToString(rr.Value))
			}
			f.sets[name] = values
		}
	}
	return &r53.ChangeResourceRecordSetsOutput{ChangeInfo: &types.ChangeInfo{Id: aws.String("C1")}}, nil
}

func TestRoute53_SharedRecordSet(t *testing.T) {
	fake := newFakeRoute53()
	p := NewWithClient(fake)
	ctx := context.Background()
	fqdn := "_acme-challenge.example.com."

	h1, err := p.CreateTXTRecord(ctx, dns.TXTRecord{Domain: "example.com", FQDN: fqdn, Value: "base"})
	require.NoError(t, err)
	assert.Equal(t, "ZPUBLIC", h1.ZoneID)

	h2, err := p.CreateTXTRecord(ctx, dns.TXTRecord{Domain: "example.com", FQDN: fqdn, Value: "wild"})
	require.NoError(t, err)
	assert.Equal(t, []string{`"base"`, `"wild"`}, fake.sets[fqdn])

	require.NoError(t, p.DeleteTXTRecord(ctx, h1))
	assert.Equal(t, []string{`"wild"`}, fake.sets[fqdn])

	require.NoError(t, p.DeleteTXTRecord(ctx, h2))
	_, exists := fake.sets[fqdn]
	assert.False(t, exists)

	// deleting again is a no-op
	require.NoError(t, p.DeleteTXTRecord(ctx, h2))
	assert.Equal(t, []types.ChangeAction{
		types.ChangeActionUpsert, types.ChangeActionUpsert, types.ChangeActionUpsert, types.ChangeActionDelete,
	}, fake.changes)
}

func TestRoute53_ErrorClassification(t *testing.T) {
	tests := []struct {
		code string
		kind dns.ErrorKind
	}{
		{"AccessDenied", dns.KindAuth},
		{"Throttling", dns.KindRateLimit},
		{"PriorRequestNotComplete", dns.KindRateLimit},
		{"NoSuchHostedZone", dns.KindNotFound},
		{"ServiceUnavailable", dns.KindTransient},
		{"InvalidChangeBatch", dns.KindRejected},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			fake := newFakeRoute53()
			fake.listErr = &smithy.GenericAPIError{Code: tt.code, Message: "boom"}
			p := NewWithClient(fake)

			_, err := p.CreateTXTRecord(context.Background(), dns.TXTRecord{
				Domain: "example.com", FQDN: "_acme-challenge.example.com.", Value: "v",
			})
			require.Error(t, err)
			assert.Equal(t, tt.kind, dns.KindOf(err))
		})
	}
}

func TestRoute53_ZoneLookup(t *testing.T) {
	fake := newFakeRoute53()
	p := NewWithClient(fake)
	ctx := context.Background()

	h, err := p.CreateTXTRecord(ctx, dns.TXTRecord{Domain: "*.www.example.com", FQDN: "_acme-challenge.www.example.com.", Value: "v"})
	require.NoError(t, err)
	assert.Equal(t, "ZPUBLIC", h.ZoneID)
	assert.Equal(t, []string{"_acme-challenge.www.example.com.", "www.example.com.", "example.com."}, fake.lookups)

	// the challenge name was delegated by CNAME into another zone
	h, err = p.CreateTXTRecord(ctx, dns.TXTRecord{Domain: "example.org", FQDN: "example-org.validation.example.net.", Value: "v"})
	require.NoError(t, err)
	assert.Equal(t, "ZNET", h.ZoneID)

	_, err = p.CreateTXTRecord(ctx, dns.TXTRecord{Domain: "example.org", FQDN: "_acme-challenge.example.org.", Value: "v"})
	require.Error(t, err)
	assert.Equal(t, dns.KindRejected, dns.KindOf(err))
}
