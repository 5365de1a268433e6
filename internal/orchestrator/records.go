package orchestrator

import (
	"context"
	"sync"

	"go_certhub/internal/acme"
	"go_certhub/internal/dns"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// txtRecords lists the records to publish for challenges not yet valid.
// A wildcard and its base name share one FQDN with different values.
func txtRecords(infos []acme.ChallengeInfo) []dns.TXTRecord {
	records := make([]dns.TXTRecord, 0, len(infos))
	for _, info := range infos {
		if info.Status == "valid" {
			continue
		}
		records = append(records, dns.TXTRecord{
			Domain:  info.Identifier(),
			FQDN:    info.EffectiveFQDN,
			Value:   info.Value,
			Token:   info.Token,
			KeyAuth: info.KeyAuth,
		})
	}
	return records
}

// present creates every record concurrently. The first failure cancels the
// rest; handles of the records that did get created are still returned so
// they can be cleaned up.
func present(ctx context.Context, provider dns.Provider, records []dns.TXTRecord) ([]dns.RecordHandle, error) {
	var (
		mu      sync.Mutex
		handles []dns.RecordHandle
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			handle, err := provider.CreateTXTRecord(gctx, rec)
			if err != nil {
				return err
			}
			mu.Lock()
			handles = append(handles, *handle)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return handles, err
}

// cleanup deletes the records in the background on a context detached from
// the flow. Failures are logged only.
func (o *Orchestrator) cleanup(provider dns.Provider, handles []dns.RecordHandle, log *logrus.Entry) {
	if len(handles) == 0 {
		return
	}

	o.cleanups.Add(1)
	go func() {
		defer o.cleanups.Done()

		ctx, cancel := context.WithTimeout(context.Background(), o.opts.CleanupTimeout)
		defer cancel()

		for i := range handles {
			handle := handles[i]
			if err := provider.DeleteTXTRecord(ctx, &handle); err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"provider": handle.Provider,
					"fqdn":     handle.FQDN,
				}).Warn("failed to delete challenge record")
				continue
			}
			log.WithField("fqdn", handle.FQDN).Debug("challenge record deleted")
		}
	}()
}
