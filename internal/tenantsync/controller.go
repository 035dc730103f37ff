// Package tenantsync keeps one consistent in-memory snapshot of the active
// tenant's invoices, clients and services.
package tenantsync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cravebiz/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrSuperseded is returned by a resync whose tenant is no longer active
// and whose result was therefore dropped. Callers may retry after switching.
var ErrSuperseded = errors.New("tenant resync superseded by a tenant switch")

// Fetcher reads a tenant's working set. Implementations must only return
// records owned by tenantID.
type Fetcher interface {
	FetchInvoices(ctx context.Context, tenantID uuid.UUID) ([]*models.Invoice, error)
	FetchClients(ctx context.Context, tenantID uuid.UUID) ([]*models.Client, error)
	FetchServices(ctx context.Context, tenantID uuid.UUID) ([]*models.Service, error)
}

// Controller serializes snapshot commits by request issuance: a resync only
// commits if no later-issued resync has committed and its tenant is still
// the active one. Snapshots are never mutated after commit.
type Controller struct {
	fetcher Fetcher
	log     zerolog.Logger
	now     func() time.Time

	issued   atomic.Uint64
	inFlight atomic.Int32

	mu        sync.RWMutex
	active    uuid.UUID
	snapshot  *models.TenantSnapshot
	committed uint64
	lastErr   error
}

func NewController(fetcher Fetcher, log zerolog.Logger) *Controller {
	return &Controller{fetcher: fetcher, log: log, now: time.Now}
}

// Snapshot returns the last committed snapshot, or nil before the first one.
func (c *Controller) Snapshot() *models.TenantSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// ActiveTenant returns the tenant snapshots are committed for.
func (c *Controller) ActiveTenant() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// IsSyncing reports whether any resync is in flight.
func (c *Controller) IsSyncing() bool {
	return c.inFlight.Load() > 0
}

// LastError is the error of the most recent failed resync, cleared by the
// next successful commit.
func (c *Controller) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// SwitchTenant makes tenantID active and resyncs it. Results of in-flight
// resyncs for the previous tenant are discarded when they land.
func (c *Controller) SwitchTenant(ctx context.Context, tenantID uuid.UUID) (*models.TenantSnapshot, error) {
	c.mu.Lock()
	if c.active != tenantID {
		c.active = tenantID
		c.snapshot = nil
		c.lastErr = nil
	}
	c.mu.Unlock()
	return c.Resync(ctx, tenantID)
}

// Resync fetches invoices, clients and services concurrently and replaces
// the snapshot only when all three succeed. On failure the previous
// snapshot is kept and the error is returned. A superseded result is
// dropped; the committed snapshot is returned only when it belongs to
// tenantID, otherwise the call fails with ErrSuperseded.
func (c *Controller) Resync(ctx context.Context, tenantID uuid.UUID) (*models.TenantSnapshot, error) {
	seq := c.issued.Add(1)
	c.inFlight.Add(1)
	defer c.inFlight.Add(-1)

	c.mu.Lock()
	if c.active == uuid.Nil {
		c.active = tenantID
	}
	c.mu.Unlock()

	var (
		invoices []*models.Invoice
		clients  []*models.Client
		services []*models.Service
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		invoices, err = c.fetcher.FetchInvoices(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		clients, err = c.fetcher.FetchClients(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		services, err = c.fetcher.FetchServices(gctx, tenantID)
		return err
	})

	if err := g.Wait(); err != nil {
		c.mu.Lock()
		if seq > c.committed && tenantID == c.active {
			c.lastErr = err
		}
		c.mu.Unlock()
		c.log.Warn().Err(err).
			Str("tenant_id", tenantID.String()).
			Uint64("request", seq).
			Msg("tenant resync failed, keeping previous snapshot")
		return nil, err
	}

	snap := &models.TenantSnapshot{
		TenantID: tenantID,
		Invoices: invoices,
		Clients:  clients,
		Services: services,
		SyncedAt: c.now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tenantID != c.active || seq < c.committed {
		c.log.Debug().
			Str("tenant_id", tenantID.String()).
			Uint64("request", seq).
			Uint64("committed", c.committed).
			Msg("discarding superseded resync result")
		if c.snapshot == nil || c.snapshot.TenantID != tenantID {
			return nil, ErrSuperseded
		}
		return c.snapshot, nil
	}
	c.snapshot = snap
	c.committed = seq
	c.lastErr = nil

	c.log.Debug().
		Str("tenant_id", tenantID.String()).
		Int("invoices", len(invoices)).
		Int("clients", len(clients)).
		Int("services", len(services)).
		Msg("tenant snapshot committed")
	return snap, nil
}

// PatchInvoice publishes a new snapshot with inv replacing the invoice of
// the same id. It is a no-op when inv's tenant is not the snapshot's.
func (c *Controller) PatchInvoice(inv *models.Invoice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil || c.snapshot.TenantID != inv.CompanyID {
		return
	}

	next := *c.snapshot
	next.Invoices = make([]*models.Invoice, 0, len(c.snapshot.Invoices)+1)
	replaced := false
	for _, existing := range c.snapshot.Invoices {
		if existing.ID == inv.ID {
			next.Invoices = append(next.Invoices, inv.Clone())
			replaced = true
			continue
		}
		next.Invoices = append(next.Invoices, existing)
	}
	if !replaced {
		next.Invoices = append([]*models.Invoice{inv.Clone()}, next.Invoices...)
	}
	c.snapshot = &next
}
