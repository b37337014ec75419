// Package eod implements the per-account EOD Closer (§4.12): at the
// configured exit time, and any time thereafter until the daily-closed
// flag is set, liquidate every open position in parallel.
package eod

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/uoa-systems/flowwatch/internal/models"
)

// PositionManager is the narrow dependency the closer liquidates through,
// satisfied by *position.Manager.
type PositionManager interface {
	Active() []*models.Position
	ClosePosition(ctx context.Context, symbol, reason string)
}

// Account pairs one paper account's Position Manager with its own
// once-per-day closed flag.
type Account struct {
	Name    string
	Manager PositionManager
}

// Closer liquidates every account's open positions once the wall clock
// reaches ExitTime, with no upper bound — a process started after the exit
// time still closes everything on its first tick (§4.12, missed-window
// safety; boundary behavior: a process started at 15:59:00 still closes).
type Closer struct {
	accounts []Account
	exitTime time.Duration // offset from local midnight in loc
	loc      *time.Location
	logger   *log.Logger

	mu          sync.Mutex
	closedToday map[string]bool
}

// New builds a Closer. exitTime is parsed "HH:MM" local wall-clock time
// (e.g. the default "15:55").
func New(accounts []Account, exitTime string, loc *time.Location, logger *log.Logger) (*Closer, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "eod: ", log.LstdFlags)
	}
	d, err := parseClockTime(exitTime)
	if err != nil {
		return nil, err
	}
	closed := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		closed[a.Name] = false
	}
	return &Closer{accounts: accounts, exitTime: d, loc: loc, logger: logger, closedToday: closed}, nil
}

func parseClockTime(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Tick checks the current wall-clock time and, for any account not yet
// closed today whose local time has reached exitTime, liquidates every
// active position in parallel.
func (c *Closer) Tick(ctx context.Context, now time.Time) {
	loc := c.loc
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	sinceMidnight := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute + time.Duration(local.Second())*time.Second
	if sinceMidnight < c.exitTime {
		return
	}

	for _, acct := range c.accounts {
		c.mu.Lock()
		already := c.closedToday[acct.Name]
		c.mu.Unlock()
		if already {
			continue
		}
		c.liquidate(ctx, acct)
	}
}

func (c *Closer) liquidate(ctx context.Context, acct Account) {
	positions := acct.Manager.Active()
	g, gctx := errgroup.WithContext(ctx)
	for _, pos := range positions {
		symbol := pos.Symbol
		g.Go(func() error {
			acct.Manager.ClosePosition(gctx, symbol, "eod")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Printf("account=%s eod liquidation error=%v", acct.Name, err)
	}

	c.mu.Lock()
	c.closedToday[acct.Name] = true
	c.mu.Unlock()
	c.logger.Printf("account=%s eod liquidation complete symbols=%d", acct.Name, len(positions))
}

// ResetDaily clears every account's closed-today flag, called at the
// start-of-day boundary.
func (c *Closer) ResetDaily() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.closedToday {
		c.closedToday[name] = false
	}
}

// ClosedToday reports whether account has completed its EOD liquidation today.
func (c *Closer) ClosedToday(account string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedToday[account]
}
