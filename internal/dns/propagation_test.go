package dns

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type txtZone struct {
	mu      sync.Mutex
	records map[string]string
}

func (z *txtZone) set(name, value string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.records[strings.ToLower(name)] = value
}

func (z *txtZone) ServeDNS(w mdns.ResponseWriter, r *mdns.Msg) {
	m := new(mdns.Msg)
	m.SetReply(r)

	q := r.Question[0]
	z.mu.Lock()
	value, ok := z.records[strings.ToLower(q.Name)]
	z.mu.Unlock()

	if ok && q.Qtype == mdns.TypeTXT {
		m.Answer = append(m.Answer, &mdns.TXT{
			Hdr: mdns.RR_Header{Name: q.Name, Rrtype: mdns.TypeTXT, Class: mdns.ClassINET, Ttl: 60},
			Txt: []string{value},
		})
	} else {
		m.Rcode = mdns.RcodeNameError
	}
	_ = w.WriteMsg(m)
}

func startResolver(t *testing.T, zone *txtZone) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &mdns.Server{PacketConn: pc, Handler: zone, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestResolverChecker(t *testing.T) {
	zone := &txtZone{records: map[string]string{}}
	addr := startResolver(t, zone)
	checker := NewResolverChecker([]string{addr}, time.Second)
	ctx := context.Background()

	ok, err := checker.Check(ctx, "_acme-challenge.example.com.", "token-value")
	require.NoError(t, err)
	assert.False(t, ok)

	zone.set("_acme-challenge.example.com.", "other-value")
	ok, err = checker.Check(ctx, "_acme-challenge.example.com", "token-value")
	require.NoError(t, err)
	assert.False(t, ok)

	zone.set("_acme-challenge.example.com.", "token-value")
	ok, err = checker.Check(ctx, "_acme-challenge.example.com", "token-value")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolverChecker_AllResolversDown(t *testing.T) {
	// nothing listens here
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	checker := NewResolverChecker([]string{addr}, 200*time.Millisecond)
	_, err = checker.Check(context.Background(), "_acme-challenge.example.com.", "v")
	assert.Error(t, err)
}

type flipChecker struct {
	mu      sync.Mutex
	visible map[string]int // calls before visible
}

func (f *flipChecker) Check(ctx context.Context, fqdn, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visible[fqdn] > 0 {
		f.visible[fqdn]--
		return false, nil
	}
	return true, nil
}

func TestWaitForPropagation(t *testing.T) {
	checker := &flipChecker{visible: map[string]int{"_acme-challenge.a.example.com.": 2}}
	records := []TXTRecord{
		{FQDN: "_acme-challenge.a.example.com.", Value: "a"},
		{FQDN: "_acme-challenge.b.example.com.", Value: "b"},
	}

	err := WaitForPropagation(context.Background(), checker, records, time.Millisecond, time.Second)
	assert.NoError(t, err)
}

func TestWaitForPropagation_Timeout(t *testing.T) {
	checker := &flipChecker{visible: map[string]int{"_acme-challenge.a.example.com.": 1 << 30}}
	records := []TXTRecord{{FQDN: "_acme-challenge.a.example.com.", Value: "a"}}

	err := WaitForPropagation(context.Background(), checker, records, 5*time.Millisecond, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPropagationTimeout))
	assert.Contains(t, err.Error(), "_acme-challenge.a.example.com.")
}
