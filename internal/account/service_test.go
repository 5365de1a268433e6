package account

import (
	"context"
	"os"
	"testing"
	"time"

	"go_certhub/internal/acme"
	"go_certhub/internal/acme/acmetest"
	"go_certhub/internal/db/dbtest"
	"go_certhub/internal/model"
	"go_certhub/internal/secret"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Setenv("LEGO_DISABLE_CNAME_SUPPORT", "true")
	os.Exit(m.Run())
}

func newTestService(t *testing.T) (*Service, *secret.Store) {
	t.Helper()
	conn := dbtest.Open(t)
	store, err := secret.NewStore(conn, "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	opts := acme.Options{PollInitial: 10 * time.Millisecond, PollMax: 50 * time.Millisecond, PollTimeout: time.Second, InsecureSkipVerify: true}
	return NewService(conn, store, opts, logrus.NewEntry(logrus.New())), store
}

func register(t *testing.T, svc *Service, ca *acmetest.Server, name string) *model.AcmeAccount {
	t.Helper()
	account, err := svc.Register(context.Background(), RegisterParams{
		Name:    name,
		KeyType: acme.KeyTypeP256,
		Server:  ca.DirectoryURL(),
		Email:   "a@b.com",
	})
	require.NoError(t, err)
	return account
}

func TestService_Register(t *testing.T) {
	ca := acmetest.NewServer(t)
	svc, store := newTestService(t)

	account := register(t, svc, ca, "staging")
	assert.Equal(t, model.AcmeAccountStatusValid, account.Status)
	assert.NotEmpty(t, account.URI)
	assert.Equal(t, "valid", ca.AccountStatus(account.URI))

	pemKey, err := store.Get(context.Background(), account.KeyRef)
	require.NoError(t, err)
	key, err := acme.DecodeKey(pemKey)
	require.NoError(t, err)
	assert.Equal(t, acme.KeyTypeP256, acme.KeyTypeOf(key.Public()))
}

func TestService_RegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	valid := RegisterParams{Name: "a", KeyType: "P256", Server: "https://ca.test/dir", Email: "a@b.com"}

	tests := []struct {
		name   string
		mutate func(p *RegisterParams)
	}{
		{"missing name", func(p *RegisterParams) { p.Name = " " }},
		{"bad key type", func(p *RegisterParams) { p.KeyType = "1024" }},
		{"bad server", func(p *RegisterParams) { p.Server = "ftp://ca.test" }},
		{"missing email", func(p *RegisterParams) { p.Email = "" }},
		{"half eab", func(p *RegisterParams) { p.EabKeyID = "kid" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			_, err := svc.Register(context.Background(), p)
			assert.ErrorIs(t, err, ErrInvalidParam)
		})
	}
}

func TestService_RegisterRejectedByCA(t *testing.T) {
	ca := acmetest.NewServer(t)
	ca.RequireEAB("kid-1", []byte("0123456789abcdef0123456789abcdef"))
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), RegisterParams{
		Name: "a", KeyType: "P256", Server: ca.DirectoryURL(), Email: "a@b.com",
	})
	require.Error(t, err)
	assert.Equal(t, acme.KindRegistration, acme.KindOf(err))

	_, total, err := svc.List(context.Background(), ListParams{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestService_DeactivateIsForwardOnly(t *testing.T) {
	ca := acmetest.NewServer(t)
	svc, _ := newTestService(t)
	ctx := context.Background()

	account := register(t, svc, ca, "a")
	got, err := svc.Deactivate(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AcmeAccountStatusDeactivated, got.Status)
	assert.Equal(t, "deactivated", ca.AccountStatus(account.URI))

	_, err = svc.Deactivate(ctx, account.ID)
	assert.ErrorIs(t, err, ErrStateConflict)

	_, err = svc.Active(ctx, account.ID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestService_DeleteGuardsIssuedCertificates(t *testing.T) {
	ca := acmetest.NewServer(t)
	svc, store := newTestService(t)
	ctx := context.Background()

	account := register(t, svc, ca, "a")
	cert := &model.Certificate{
		Domains:       []string{"example.com"},
		PrimaryDomain: "example.com",
		KeyType:       "P256",
		AccountID:     account.ID,
		CertStatus:    model.CertStatusIssued,
	}
	require.NoError(t, svc.db.Create(cert).Error)

	assert.ErrorIs(t, svc.Delete(ctx, account.ID), ErrStateConflict)

	require.NoError(t, svc.db.Model(cert).Update("cert_status", model.CertStatusRevoked).Error)
	require.NoError(t, svc.Delete(ctx, account.ID))

	_, err := svc.Get(ctx, account.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, account.KeyRef)
	assert.ErrorIs(t, err, secret.ErrNotFound)
}

func TestService_ListAndStats(t *testing.T) {
	ca := acmetest.NewServer(t)
	svc, _ := newTestService(t)
	ctx := context.Background()

	register(t, svc, ca, "prod-1")
	second := register(t, svc, ca, "prod-2")
	register(t, svc, ca, "staging")
	_, err := svc.Deactivate(ctx, second.ID)
	require.NoError(t, err)

	items, total, err := svc.List(ctx, ListParams{Name: "prod", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "prod-2", items[0].Name)

	noEAB := false
	_, total, err = svc.List(ctx, ListParams{Status: "valid", BindEAB: &noEAB, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Total: 3, Valid: 2, Deactivated: 1}, stats)
}
