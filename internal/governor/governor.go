// Package governor bounds the number of units of work that may hold a
// database connection at the same time in this process.
package governor

import (
	"context"
	"sync"

	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
)

// Governor admits units of work up to a fixed maximum. Admission never
// blocks: at the limit Acquire fails immediately with ErrResourceExhausted.
type Governor struct {
	mu    sync.Mutex
	inUse int
	max   int
}

// New returns a governor admitting at most max concurrent units of work.
func New(max int) *Governor {
	if max < 1 {
		max = 1
	}
	return &Governor{max: max}
}

// Acquire admits one unit of work or rejects it.
func (g *Governor) Acquire() (*Permit, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inUse >= g.max {
		monitoring.GovernorRejections.Inc()
		return nil, apperr.ErrResourceExhausted
	}
	g.inUse++
	monitoring.GovernorInUse.Set(float64(g.inUse))
	return &Permit{gov: g}, nil
}

// InUse returns the number of outstanding permits.
func (g *Governor) InUse() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse
}

// Max returns the configured limit.
func (g *Governor) Max() int { return g.max }

func (g *Governor) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inUse--
	monitoring.GovernorInUse.Set(float64(g.inUse))
}

// Permit is one admitted unit of work. Resources bound to it through
// OnRelease are returned when the permit is released.
type Permit struct {
	gov *Governor

	mu       sync.Mutex
	hooks    []func()
	released bool
}

// OnRelease registers fn to run when the permit is released. If the permit
// is already released fn runs immediately.
func (p *Permit) OnRelease(fn func()) {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		fn()
		return
	}
	p.hooks = append(p.hooks, fn)
	p.mu.Unlock()
}

// Release returns bound resources and frees the slot. Safe to call more
// than once.
func (p *Permit) Release() {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return
	}
	p.released = true
	hooks := p.hooks
	p.hooks = nil
	p.mu.Unlock()
	defer p.gov.release()

	// hooks run in reverse registration order, like defers
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

type ctxKey struct{}

// WithPermit attaches p to ctx so that the data layer can find it.
func WithPermit(ctx context.Context, p *Permit) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PermitFrom returns the permit of the unit of work running in ctx.
func PermitFrom(ctx context.Context) (*Permit, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Permit)
	return p, ok && p != nil
}

// Run admits fn as one unit of work and releases the permit when fn
// returns, whether it succeeded or not.
func (g *Governor) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	p, err := g.Acquire()
	if err != nil {
		return err
	}
	defer p.Release()
	return fn(WithPermit(ctx, p))
}
