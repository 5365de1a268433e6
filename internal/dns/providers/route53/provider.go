package route53

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go_certhub/internal/dns"
	"go_certhub/internal/domainutil"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	r53 "github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/smithy-go"
)

const (
	// Route53 is a global service; requests are signed for us-east-1
	signingRegion = "us-east-1"
	challengeTTL  = 60
)

// API is the subset of the Route53 client used by the provider
type API interface {
	ListHostedZonesByName(ctx context.Context, params *r53.ListHostedZonesByNameInput, optFns ...func(*r53.Options)) (*r53.ListHostedZonesByNameOutput, error)
	ListResourceRecordSets(ctx context.Context, params *r53.ListResourceRecordSetsInput, optFns ...func(*r53.Options)) (*r53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *r53.ChangeResourceRecordSetsInput, optFns ...func(*r53.Options)) (*r53.ChangeResourceRecordSetsOutput, error)
}

// Provider implements dns.Provider for AWS Route53
type Provider struct {
	client API

	// the wildcard and the bare domain share one record set, so changes to
	// a record set are serialized
	mu sync.Mutex
}

// New builds a provider from a static access key pair
func New(ctx context.Context, accessKeyID, secretAccessKey string) (*Provider, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(signingRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(r53.NewFromConfig(awsConfig)), nil
}

// NewWithClient builds a provider on an existing client
func NewWithClient(client API) *Provider {
	return &Provider{client: client}
}

// CreateTXTRecord upserts the challenge value into the TXT record set,
// keeping values already present
func (p *Provider) CreateTXTRecord(ctx context.Context, rec dns.TXTRecord) (*dns.RecordHandle, error) {
	zoneID, err := p.hostedZone(ctx, rec.FQDN)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.currentValues(ctx, zoneID, rec.FQDN)
	if err != nil {
		return nil, err
	}
	if !contains(values, quote(rec.Value)) {
		values = append(values, quote(rec.Value))
	}

	if err := p.change(ctx, zoneID, types.ChangeActionUpsert, rec.FQDN, values); err != nil {
		return nil, err
	}

	return &dns.RecordHandle{
		Provider: dns.TypeRoute53,
		Domain:   rec.Domain,
		FQDN:     rec.FQDN,
		Value:    rec.Value,
		ZoneID:   zoneID,
	}, nil
}

// DeleteTXTRecord removes the handle's value. The record set is deleted
// when no other value remains.
func (p *Provider) DeleteTXTRecord(ctx context.Context, handle *dns.RecordHandle) error {
	zoneID := handle.ZoneID
	if zoneID == "" {
		var err error
		if zoneID, err = p.hostedZone(ctx, handle.FQDN); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.currentValues(ctx, zoneID, handle.FQDN)
	if err != nil {
		return err
	}
	if !contains(values, quote(handle.Value)) {
		return nil
	}

	remaining := make([]string, 0, len(values))
	for _, v := range values {
		if v != quote(handle.Value) {
			remaining = append(remaining, v)
		}
	}

	if len(remaining) == 0 {
		return p.change(ctx, zoneID, types.ChangeActionDelete, handle.FQDN, values)
	}
	return p.change(ctx, zoneID, types.ChangeActionUpsert, handle.FQDN, remaining)
}

// hostedZone finds the closest public hosted zone for the record name
func (p *Provider) hostedZone(ctx context.Context, fqdn string) (string, error) {
	candidates, err := domainutil.ZoneCandidates(fqdn)
	if err != nil {
		return "", dns.NewError(dns.TypeRoute53, dns.KindRejected, "", err)
	}

	for _, name := range candidates {
		out, err := p.client.ListHostedZonesByName(ctx, &r53.ListHostedZonesByNameInput{
			DNSName: aws.String(name + "."),
		})
		if err != nil {
			return "", classify(err)
		}

		for _, zone := range out.HostedZones {
			if zone.Config != nil && zone.Config.PrivateZone {
				continue
			}
			if aws.ToString(zone.Name) == name+"." {
				return strings.TrimPrefix(aws.ToString(zone.Id), "/hostedzone/"), nil
			}
		}
	}
	return "", dns.NewError(dns.TypeRoute53, dns.KindRejected, "",
		fmt.Errorf("no public hosted zone found for %s", domainutil.UnFqdn(fqdn)))
}

func (p *Provider) currentValues(ctx context.Context, zoneID, fqdn string) ([]string, error) {
	out, err := p.client.ListResourceRecordSets(ctx, &r53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(fqdn),
		StartRecordType: types.RRTypeTxt,
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, classify(err)
	}

	var values []string
	for _, set := range out.ResourceRecordSets {
		if aws.ToString(set.Name) != fqdn || set.Type != types.RRTypeTxt {
			continue
		}
		for _, rr := range set.ResourceRecords {
			values = append(values, aws.ToString(rr.Value))
		}
	}
	return values, nil
}

func (p *Provider) change(ctx context.Context, zoneID string, action types.ChangeAction, fqdn string, values []string) error {
	records := make([]types.ResourceRecord, 0, len(values))
	for _, v := range values {
		records = append(records, types.ResourceRecord{Value: aws.String(v)})
	}

	_, err := p.client.ChangeResourceRecordSets(ctx, &r53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("acme dns-01 challenge"),
			Changes: []types.Change{
				{
					Action: action,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name:            aws.String(fqdn),
						Type:            types.RRTypeTxt,
						TTL:             aws.Int64(challengeTTL),
						ResourceRecords: records,
					},
				},
			},
		},
	})
	return classify(err)
}

// classify maps smithy API error codes to provider error kinds
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "AccessDenied", "InvalidClientTokenId", "SignatureDoesNotMatch", "UnrecognizedClientException", "ExpiredToken":
			return dns.NewError(dns.TypeRoute53, dns.KindAuth, code, err)
		case "Throttling", "ThrottlingException", "PriorRequestNotComplete":
			return dns.NewError(dns.TypeRoute53, dns.KindRateLimit, code, err)
		case "NoSuchHostedZone":
			return dns.NewError(dns.TypeRoute53, dns.KindNotFound, code, err)
		case "ServiceUnavailable", "InternalFailure", "RequestTimeout":
			return dns.NewError(dns.TypeRoute53, dns.KindTransient, code, err)
		default:
			return dns.NewError(dns.TypeRoute53, dns.KindRejected, code, err)
		}
	}
	return dns.Classify(dns.TypeRoute53, err)
}

func quote(v string) string {
	return `"` + v + `"`
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
