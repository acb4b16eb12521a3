// Package pacer implements the single-flight, rate-limited dispatcher for
// on-demand upstream fetches (spec §4.4). A single dedicated worker drains
// a one-slot request channel and replies through a per-ticket, unbuffered
// reply channel; submit holds a global lock so submissions are strict
// FIFO and at most one upstream call is ever in flight. The reply channel
// being unbuffered is what gives it one-slot rendezvous semantics: the
// worker's send only completes once a submitter is actually waiting on
// it, so an abandoned ticket (submitter gave up via ctx) reliably blocks
// the worker rather than silently buffering a reply nobody will read.
package pacer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/metrics"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
)

// result is what the worker hands back through the reply channel: either
// a found entry, a miss (found=false, err=nil), or a classified error.
type result struct {
	entry secretmeta.Entry
	found bool
	err   error
}

type ticket struct {
	ctx    context.Context
	tenant *registry.Tenant
	id     string
	reply  chan result
}

// Pacer serializes every on-demand upstream GetByID call process-wide.
// The upstream SDK's auth handshake has been observed to hang under rapid
// concurrent calls on an expired token (spec §4.4, §7); single-flight
// through one worker is the structural mitigation.
type Pacer struct {
	interval time.Duration
	logger   *logrus.Entry

	submitMu sync.Mutex
	requests chan ticket

	mu      sync.Mutex
	crashed bool
}

// New builds a Pacer and starts its worker goroutine. interval is both
// the reply-wait timeout and the inter-request sleep (default 1s, spec
// §4.4).
func New(interval time.Duration, logger *logrus.Entry) *Pacer {
	p := &Pacer{
		interval: interval,
		logger:   logger,
		requests: make(chan ticket),
	}
	go p.run()
	return p
}

// Submit places a ticket for (tenant, id) and blocks for the reply. It
// acquires the global submit lock for the duration of one rendezvous,
// enforcing strict FIFO and single-in-flight (spec §4.4). If the worker
// has already crashed, the pacer's single-flight invariant is broken
// beyond repair, and spec §4.4 calls for the process to terminate rather
// than let a caller proceed against an inconsistent cache.
func (p *Pacer) Submit(ctx context.Context, tenant *registry.Tenant, id string) (secretmeta.Entry, bool, error) {
	p.mu.Lock()
	crashed := p.crashed
	p.mu.Unlock()
	if crashed {
		p.logger.Fatal("pacer worker crashed: reply rendezvous timed out, refusing further submits")
	}

	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	reply := make(chan result)
	t := ticket{ctx: ctx, tenant: tenant, id: id, reply: reply}

	select {
	case p.requests <- t:
	case <-ctx.Done():
		return secretmeta.Entry{}, false, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.entry, r.found, r.err
	case <-ctx.Done():
		return secretmeta.Entry{}, false, ctx.Err()
	}
}

// Crashed reports whether the worker has hit the abandoned-ticket
// timeout and exited. Exported for diagnostics and tests; Submit already
// checks this internally before every new ticket.
func (p *Pacer) Crashed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.crashed
}

// run is the worker loop: receive ticket → call upstream → reply with
// timeout == interval → sleep interval. If the reply send times out (the
// submitter went away) the loop invariant is broken; the worker marks
// itself crashed and exits rather than risk corrupting cache semantics
// with a silent drop (spec §4.4).
func (p *Pacer) run() {
	for t := range p.requests {
		entry, found, err := t.tenant.Upstream.GetByID(t.ctx, t.id)

		select {
		case t.reply <- result{entry: entry, found: found, err: err}:
		case <-time.After(p.interval):
			p.logger.Error("pacer reply rendezvous timed out; submitter abandoned ticket, crashing worker")
			p.mu.Lock()
			p.crashed = true
			p.mu.Unlock()
			metrics.SetPacerCrashed(true)
			return
		}

		time.Sleep(p.interval)
	}
}
