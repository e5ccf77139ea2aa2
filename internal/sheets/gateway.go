// Package sheets is the single gateway every other domain service uses to
// read and write the three Google Sheets the coordinator treats as its
// system of record (auth, appeals, promotions). It owns the only mutable
// vendor client handle, the only write-serializing lock, and the only
// circuit breakers for sheet RPCs, so callers never touch
// google.golang.org/api/sheets/v4 directly.
//
// Shape is grounded on the teacher's worker-offload pattern (agent/loop.go
// never runs a blocking provider call on its own dispatch goroutine) and on
// Generativebots-ocx-backend-go-svc's circuitbreaker-per-endpoint idiom,
// generalized into a real bounded pool since this package, unlike the
// teacher's single hub loop, serves many concurrent callers.
package sheets

import (
	"context"
	"sync"
	"time"

	"github.com/local/supportbot/internal/breaker"
	"github.com/local/supportbot/internal/config"
	"github.com/local/supportbot/internal/errs"
)

const defaultRetryBudget = 10 * time.Second

// sheetLocation is the (spreadsheet, tab) pair an Endpoint resolves to.
type sheetLocation struct {
	spreadsheetID string
	sheetName     string
}

// Gateway retries every sheet RPC the coordinator makes and serializes the
// mutating ones.
type Gateway struct {
	pool      *pool
	breakers  *breaker.Manager
	locations map[Endpoint]sheetLocation
	factory   ClientFactory

	clientMu sync.Mutex
	client   RawClient

	// writeMu serializes every mutating call across all three sheets: the
	// spec requires writes not to interleave (two users editing the appeals
	// sheet concurrently must not race a partial row), while reads run fully
	// in parallel through the pool.
	writeMu sync.Mutex

	retryBudget time.Duration
}

// New builds a Gateway from the resolved coordinator config. factory
// authenticates lazily, on first use.
func New(cfg config.Config, factory ClientFactory, breakers *breaker.Manager) *Gateway {
	size := cfg.Workers.SheetsPoolSize
	if size <= 0 {
		size = cfg.Sheets.WorkerPoolSize
	}
	return &Gateway{
		pool:     newPool(size),
		breakers: breakers,
		factory:  factory,
		locations: map[Endpoint]sheetLocation{
			EndpointAuth:       {cfg.Sheets.AuthSheetID, cfg.Sheets.AuthSheetName},
			EndpointAppeals:    {cfg.Sheets.AppealsSheetID, cfg.Sheets.AppealsSheetName},
			EndpointPromotions: {cfg.Sheets.PromotionsSheetID, cfg.Sheets.PromotionsSheetName},
		},
		retryBudget: defaultRetryBudget,
	}
}

// Close stops the pool's workers. Safe to call once during shutdown.
func (g *Gateway) Close() {
	g.pool.close()
}

func (g *Gateway) location(ep Endpoint) (sheetLocation, error) {
	loc, ok := g.locations[ep]
	if !ok {
		return sheetLocation{}, errs.NewPermanent("sheets: unknown endpoint "+string(ep), nil)
	}
	return loc, nil
}

// currentClient returns the cached client, building it on first use.
func (g *Gateway) currentClient(ctx context.Context) (RawClient, error) {
	g.clientMu.Lock()
	defer g.clientMu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	c, err := g.factory(ctx)
	if err != nil {
		return nil, errs.NewPermanent("sheets: authenticating", err)
	}
	g.client = c
	return c, nil
}

// invalidateClient drops the cached client so the next call rebuilds it,
// called after an auth-shaped failure.
func (g *Gateway) invalidateClient() {
	g.clientMu.Lock()
	defer g.clientMu.Unlock()
	g.client = nil
}

// run is the common path for every operation: resolve the breaker for ep,
// submit the work to the pool, retry transient failures, and invalidate the
// client cache on an auth failure so the next call re-authenticates.
func run[T any](ctx context.Context, g *Gateway, ep Endpoint, fn func(RawClient) (T, error)) (T, error) {
	var zero T
	b := g.breakers.Get(string(ep))
	return breaker.Call(b, func() (T, error) {
		return submit(ctx, g.pool, func() (T, error) {
			return withRetry(ctx, g.retryBudget, func() (T, error) {
				client, err := g.currentClient(ctx)
				if err != nil {
					return zero, err
				}
				v, err := fn(client)
				if err != nil {
					if isAuthError(err) {
						g.invalidateClient()
						return zero, errs.NewPermanent("sheets: authentication rejected", err)
					}
					if isTransient(err) {
						return zero, errs.NewTransient("sheets: "+string(ep), err)
					}
					return zero, errs.NewPermanent("sheets: "+string(ep), err)
				}
				return v, nil
			})
		})
	})
}

// ReadRows returns every row of the given A1 range (e.g. "A2:F") within ep's
// sheet tab.
func (g *Gateway) ReadRows(ctx context.Context, ep Endpoint, a1Range string) ([][]string, error) {
	loc, err := g.location(ep)
	if err != nil {
		return nil, err
	}
	return run(ctx, g, ep, func(c RawClient) ([][]string, error) {
		return c.GetValues(ctx, loc.spreadsheetID, loc.sheetName, a1Range)
	})
}

// Ping performs the cheapest possible read on ep's sheet (a single-cell
// range), for the health monitor's per-contour liveness check (spec §4.8).
func (g *Gateway) Ping(ctx context.Context, ep Endpoint) error {
	_, err := g.ReadRows(ctx, ep, "A1:A1")
	return err
}

// InvalidateClientCache drops the cached vendor client so the next call
// rebuilds it. Exported for the health monitor, which invalidates the
// shared client after repeated contour failures (spec §4.8: "on 3
// consecutive failures it invalidates the C2 client cache for that
// contour" — the coordinator has a single shared client across all three
// sheets, so invalidating for one contour invalidates it for all, the same
// way a single expired credential would affect every sheet RPC equally).
func (g *Gateway) InvalidateClientCache() {
	g.invalidateClient()
}

// WriteCell sets a single cell's value.
func (g *Gateway) WriteCell(ctx context.Context, ep Endpoint, a1, value string) error {
	loc, err := g.location(ep)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_, err = run(ctx, g, ep, func(c RawClient) (struct{}, error) {
		return struct{}{}, c.UpdateCell(ctx, loc.spreadsheetID, loc.sheetName, a1, value)
	})
	return err
}

// BatchWriteCells sets several cells in one RPC, cutting vendor API call
// volume for multi-cell updates (e.g. clearing a status plus its marker
// column together).
func (g *Gateway) BatchWriteCells(ctx context.Context, ep Endpoint, updates []CellUpdate) error {
	loc, err := g.location(ep)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_, err = run(ctx, g, ep, func(c RawClient) (struct{}, error) {
		return struct{}{}, c.BatchUpdateCells(ctx, loc.spreadsheetID, loc.sheetName, updates)
	})
	return err
}

// AppendRow appends a new row to ep's sheet tab.
func (g *Gateway) AppendRow(ctx context.Context, ep Endpoint, row []string) error {
	loc, err := g.location(ep)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_, err = run(ctx, g, ep, func(c RawClient) (struct{}, error) {
		return struct{}{}, c.AppendRow(ctx, loc.spreadsheetID, loc.sheetName, row)
	})
	return err
}

// FormatCell sets a single cell's background color.
func (g *Gateway) FormatCell(ctx context.Context, ep Endpoint, a1 string, color Color) error {
	loc, err := g.location(ep)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	_, err = run(ctx, g, ep, func(c RawClient) (struct{}, error) {
		return struct{}{}, c.FormatCell(ctx, loc.spreadsheetID, loc.sheetName, a1, color)
	})
	return err
}
