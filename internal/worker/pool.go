// Package worker implements the Worker Runtime: one browser context per
// worker, blueprint step execution, the three-tier CAPTCHA resolver,
// session rotation on 403, hardware-entropy seeding, and warmup dwell, per
// spec.md §4.2.
//
// Grounded on theRebelliousNerd-codenerd/internal/browser/session_manager.go:
// the launcher bootstrap in Start, the Navigate/Click/Type/Screenshot
// primitives, and the incognito-context-per-session pattern are reused and
// adapted from a general-purpose multi-session browser manager into a
// fixed pool of single-mission-at-a-time workers.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/guard"
	"github.com/linkpellow/chimera-core/internal/queue"
	"github.com/linkpellow/chimera-core/internal/router"
	"github.com/linkpellow/chimera-core/internal/selector"
	"github.com/linkpellow/chimera-core/internal/vision"
)

// Config is the subset of the worker section of internal/config.Config the
// pool needs.
type Config struct {
	PoolSize         int
	Headless         bool
	ViewportWidth    int
	ViewportHeight   int
	MissionTimeout   time.Duration
	WarmupMinSeconds int
	WarmupMaxSeconds int
	ChromeUAVersion  string
	ChromeUAPlatform string
	WarmupURL        string
}

// EntropyAllocator persists the three hardware-entropy seeds for a
// (worker, mission) pair, matching spec.md §6's hardware_entropy table.
// The worker allocates fresh seeds once per mission and never reuses them
// across missions, even on the same worker.
type EntropyAllocator interface {
	Allocate(ctx context.Context, workerID, missionID string) (domain.HardwareEntropySeeds, error)
}

// SelectorResolver narrows the Selector Registry to what a worker needs at
// click time: resolve the current selector for a (domain, intent) pair
// (vision-driven remapping happens inside the registry when the stored
// selector is missing, stale, or the caller reports low confidence), and
// report back whether the click that used it succeeded.
type SelectorResolver interface {
	Resolve(ctx context.Context, domainName, intent string, visionConfidence float64) (string, *selector.CriticalAlert, error)
	RecordSuccess(ctx context.Context, domainName, intent string) error
}

// Pool owns a fixed set of Workers sharing one Chrome process, each with
// its own incognito browser context.
type Pool struct {
	cfg       Config
	logger    *zap.Logger
	browser   *rod.Browser
	queue     *queue.MissionQueue
	router    *router.Router
	vision    *vision.Client
	guard     *guard.Guard
	entropy   EntropyAllocator
	selectors SelectorResolver

	mu      sync.Mutex
	workers []*Worker
}

// New constructs a Pool. Start must be called before Run.
func New(cfg Config, q *queue.MissionQueue, r *router.Router, v *vision.Client, g *guard.Guard, entropy EntropyAllocator, logger *zap.Logger) *Pool {
	return &Pool{cfg: cfg, queue: q, router: r, vision: v, guard: g, entropy: entropy, logger: logger}
}

// WithSelectorResolver attaches the Selector Registry used to resolve and
// revalidate click-step selectors. Optional: a Pool with no resolver falls
// back to using each blueprint step's selector verbatim, as it always did
// before the registry existed.
func (p *Pool) WithSelectorResolver(r SelectorResolver) *Pool {
	p.selectors = r
	return p
}

// Start launches Chrome with automation-flag mitigations and connects the
// shared browser handle, mirroring session_manager.go's launcher bootstrap.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(p.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("hide-scrollbars").
		Set("mute-audio")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	p.browser = browser

	size := p.cfg.PoolSize
	if size <= 0 {
		size = 1
	}
	p.workers = make([]*Worker, size)
	for i := range p.workers {
		p.workers[i] = newWorker(fmt.Sprintf("worker-%d", i), p)
	}
	return nil
}

// Shutdown closes the shared browser, releasing every worker's context.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == nil {
		return nil
	}
	err := p.browser.Close()
	p.browser = nil
	return err
}

// Run starts every worker's claim/process/publish loop and blocks until ctx
// is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	workers := append([]*Worker(nil), p.workers...)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.loop(ctx)
		}(w)
	}
	wg.Wait()
	return nil
}

func (p *Pool) newIncognitoPage(ctx context.Context, url string) (*rod.Page, error) {
	incognito, err := p.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             p.cfg.ViewportWidth,
		Height:            p.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil && p.logger != nil {
		p.logger.Warn("set viewport failed", zap.Error(err))
	}
	return page, nil
}
