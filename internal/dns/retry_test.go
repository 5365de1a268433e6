package dns

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{Attempts: 4, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

type scriptedProvider struct {
	createErrs []error
	deleteErrs []error
	creates    int32
	deletes    int32
}

func (p *scriptedProvider) CreateTXTRecord(ctx context.Context, rec TXTRecord) (*RecordHandle, error) {
	n := int(atomic.AddInt32(&p.creates, 1)) - 1
	if n < len(p.createErrs) && p.createErrs[n] != nil {
		return nil, p.createErrs[n]
	}
	return &RecordHandle{Provider: "scripted", FQDN: rec.FQDN, Value: rec.Value, RecordID: "rec-1"}, nil
}

func (p *scriptedProvider) DeleteTXTRecord(ctx context.Context, h *RecordHandle) error {
	n := int(atomic.AddInt32(&p.deletes, 1)) - 1
	if n < len(p.deleteErrs) {
		return p.deleteErrs[n]
	}
	return nil
}

func TestWithRetry_RetriesTransient(t *testing.T) {
	inner := &scriptedProvider{createErrs: []error{
		NewError("scripted", KindTransient, "", errors.New("reset")),
		NewError("scripted", KindRateLimit, "429", errors.New("slow down")),
	}}
	p := WithRetry("scripted", inner, fastPolicy)

	h, err := p.CreateTXTRecord(context.Background(), TXTRecord{FQDN: "_acme-challenge.example.com.", Value: "v"})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", h.RecordID)
	assert.Equal(t, int32(3), inner.creates)
}

func TestWithRetry_AuthIsNotRetried(t *testing.T) {
	inner := &scriptedProvider{createErrs: []error{NewError("scripted", KindAuth, "", errors.New("bad token"))}}
	p := WithRetry("scripted", inner, fastPolicy)

	_, err := p.CreateTXTRecord(context.Background(), TXTRecord{})
	assert.Equal(t, KindAuth, KindOf(err))
	assert.Equal(t, int32(1), inner.creates)
}

func TestWithRetry_GivesUpAfterAttempts(t *testing.T) {
	transient := NewError("scripted", KindTransient, "", errors.New("down"))
	inner := &scriptedProvider{createErrs: []error{transient, transient, transient, transient, transient}}
	p := WithRetry("scripted", inner, fastPolicy)

	_, err := p.CreateTXTRecord(context.Background(), TXTRecord{})
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Equal(t, int32(4), inner.creates)
}

func TestWithRetry_DeleteNotFoundIsSuccess(t *testing.T) {
	inner := &scriptedProvider{deleteErrs: []error{NewError("scripted", KindNotFound, "", errors.New("gone"))}}
	p := WithRetry("scripted", inner, fastPolicy)

	assert.NoError(t, p.DeleteTXTRecord(context.Background(), &RecordHandle{RecordID: "rec-1"}))
	assert.Equal(t, int32(1), inner.deletes)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, RetryPolicy{Attempts: 10, InitialInterval: time.Second}, func() error {
		calls++
		return NewError("scripted", KindTransient, "", errors.New("down"))
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}
