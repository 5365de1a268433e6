package cert

import (
	"context"
	"os"
	"testing"
	"time"

	"go_certhub/internal/account"
	"go_certhub/internal/acme"
	"go_certhub/internal/acme/acmetest"
	"go_certhub/internal/db/dbtest"
	"go_certhub/internal/model"
	"go_certhub/internal/secret"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	os.Setenv("LEGO_DISABLE_CNAME_SUPPORT", "true")
	os.Exit(m.Run())
}

type recordedEvent struct {
	name    string
	payload interface{}
}

type fakeEvents struct {
	events []recordedEvent
}

func (f *fakeEvents) Publish(_ context.Context, event string, payload interface{}) error {
	f.events = append(f.events, recordedEvent{event, payload})
	return nil
}

type fixture struct {
	db       *gorm.DB
	secrets  *secret.Store
	accounts *account.Service
	svc      *Service
	events   *fakeEvents
	ca       *acmetest.Server
	account  *model.AcmeAccount
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	secrets, err := secret.NewStore(conn, "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	logger := logrus.NewEntry(logrus.New())
	opts := acme.Options{PollInitial: 10 * time.Millisecond, PollMax: 50 * time.Millisecond, PollTimeout: time.Second, FinalizeTimeout: 2 * time.Second, InsecureSkipVerify: true}
	accounts := account.NewService(conn, secrets, opts, logger)
	events := &fakeEvents{}

	ca := acmetest.NewServer(t)
	acct, err := accounts.Register(context.Background(), account.RegisterParams{
		Name: "test", KeyType: acme.KeyTypeP256, Server: ca.DirectoryURL(), Email: "a@b.com",
	})
	require.NoError(t, err)

	return &fixture{
		db:       conn,
		secrets:  secrets,
		accounts: accounts,
		svc:      NewService(conn, secrets, accounts, events, logger),
		events:   events,
		ca:       ca,
		account:  acct,
	}
}

// pending creates a not_issued row as the orchestrator does
func (f *fixture) pending(t *testing.T, domains ...string) *model.Certificate {
	t.Helper()
	c := &model.Certificate{
		Domains:       domains,
		PrimaryDomain: domains[0],
		KeyType:       acme.KeyTypeP256,
		AccountID:     f.account.ID,
		CertStatus:    model.CertStatusNotIssued,
	}
	require.NoError(t, f.db.Create(c).Error)
	return c
}

// issue runs a full order at the fake CA and stores the result
func (f *fixture) issue(t *testing.T, domains ...string) *model.Certificate {
	t.Helper()
	ctx := context.Background()
	c := f.pending(t, domains...)

	client, err := f.accounts.Client(ctx, f.account)
	require.NoError(t, err)
	order, err := client.NewOrder(domains)
	require.NoError(t, err)
	require.NoError(t, client.AcceptChallenges(ctx, order.Challenges))
	require.NoError(t, client.WaitAuthorizations(ctx, order.Challenges))
	issued, err := client.Finalize(ctx, order, domains, acme.KeyTypeP256)
	require.NoError(t, err)

	stored, err := f.svc.MarkIssued(ctx, c.ID, issued)
	require.NoError(t, err)
	return stored
}

func TestService_MarkIssued(t *testing.T) {
	f := newFixture(t)
	c := f.issue(t, "example.com", "www.example.com")

	assert.Equal(t, model.CertStatusIssued, c.CertStatus)
	assert.Equal(t, model.CertTypeDV, c.CertType)
	assert.Equal(t, 90, c.ValidityDays)
	assert.NotNil(t, c.IssuedAt)
	assert.NotEmpty(t, c.SerialNumber)
	assert.NotEmpty(t, c.PrivateKeyRef)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "certificate:issued", f.events.events[0].name)

	item, err := f.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, item.RemainingDays)
	assert.Equal(t, 90, *item.RemainingDays)
}

func TestService_MarkIssuedIsSingleShot(t *testing.T) {
	f := newFixture(t)
	c := f.issue(t, "example.com")

	var before int64
	require.NoError(t, f.db.Model(&model.Secret{}).Count(&before).Error)

	_, err := f.svc.MarkIssued(context.Background(), c.ID, &acme.Issued{
		Certificate: []byte(c.Certificate),
		PrivateKey:  []byte("key"),
	})
	assert.ErrorIs(t, err, ErrStateConflict)

	// the second key was rolled back with the status change
	var after int64
	require.NoError(t, f.db.Model(&model.Secret{}).Count(&after).Error)
	assert.Equal(t, before, after)
}

func TestService_ChainAndPrivateKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.issue(t, "example.com")

	primary, chain, err := f.svc.Chain(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "example.com", primary)
	leaf, err := certcrypto.ParsePEMCertificate(chain)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, leaf.DNSNames)

	_, key, err := f.svc.PrivateKey(ctx, c.ID)
	require.NoError(t, err)
	signer, err := acme.DecodeKey(key)
	require.NoError(t, err)
	assert.Equal(t, acme.KeyTypeP256, acme.KeyTypeOf(signer.Public()))

	pending := f.pending(t, "other.example.com")
	_, _, err = f.svc.Chain(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
	_, _, err = f.svc.PrivateKey(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestService_Revoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.issue(t, "example.com")

	item, err := f.svc.Revoke(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusRevoked, item.CertStatus)
	assert.Equal(t, 0, *item.RemainingDays)

	leaf, err := certcrypto.ParsePEMCertificate([]byte(c.Certificate))
	require.NoError(t, err)
	assert.True(t, f.ca.Revoked(leaf.SerialNumber))
	assert.Equal(t, "certificate:revoked", f.events.events[len(f.events.events)-1].name)

	// revoked is terminal
	_, err = f.svc.Revoke(ctx, c.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestService_RevokeNotIssued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.pending(t, "example.com")

	_, err := f.svc.Revoke(ctx, c.ID)
	assert.ErrorIs(t, err, ErrStateConflict)

	item, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusNotIssued, item.CertStatus)
	assert.Nil(t, item.RemainingDays)
	assert.Empty(t, f.events.events)
}

func TestService_RevokeRejectedByCA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.issue(t, "example.com")

	// revoke behind the service's back so the CA answers alreadyRevoked
	client, err := f.accounts.Client(ctx, f.account)
	require.NoError(t, err)
	require.NoError(t, client.Revoke([]byte(c.Certificate)))

	_, err = f.svc.Revoke(ctx, c.ID)
	require.Error(t, err)
	assert.Equal(t, acme.KindRevocation, acme.KindOf(err))

	item, err := f.svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CertStatusIssued, item.CertStatus)
}

func TestService_DeleteCascadesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.issue(t, "example.com")

	require.NoError(t, f.svc.Delete(ctx, c.ID))

	_, err := f.svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.secrets.Get(ctx, c.PrivateKeyRef)
	assert.ErrorIs(t, err, secret.ErrNotFound)
}

func TestService_ListCoveringAndStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.issue(t, "example.com", "*.example.com")
	f.issue(t, "shop.example.org")
	f.pending(t, "pending.example.net")

	items, total, err := f.svc.List(ctx, ListParams{Domains: "example", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	for _, item := range items {
		assert.Empty(t, item.Certificate.Certificate)
	}

	_, total, err = f.svc.List(ctx, ListParams{CertStatus: model.CertStatusIssued, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	covering, err := f.svc.Covering(ctx, []string{"api.example.com", "example.com"})
	require.NoError(t, err)
	require.Len(t, covering, 1)
	assert.Equal(t, "example.com", covering[0].PrimaryDomain)

	covering, err = f.svc.Covering(ctx, []string{"a.b.example.com"})
	require.NoError(t, err)
	assert.Empty(t, covering)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 2, stats.Valid)
	assert.EqualValues(t, 1, stats.NotIssued)
	require.Len(t, stats.Monthly, 6)
	assert.EqualValues(t, 2, stats.Monthly[5].Count)
	assert.Equal(t, time.Now().Format("2006-01"), stats.Monthly[5].Month)
}
