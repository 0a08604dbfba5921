package worker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/linkpellow/chimera-core/internal/domain"
	"github.com/linkpellow/chimera-core/internal/fingerprint"
	"github.com/linkpellow/chimera-core/internal/guard"
	"github.com/linkpellow/chimera-core/internal/queue"
	"github.com/linkpellow/chimera-core/internal/router"
	"github.com/linkpellow/chimera-core/internal/vision"
)

// maxCaptchaAttempts bounds tier-2 vision-agent retries per spec.md §4.5's
// default max_attempts of 2.
const maxCaptchaAttempts = 2

// defaultMissionTimeout applies when Config.MissionTimeout is unset.
const defaultMissionTimeout = 120 * time.Second

// Trauma signal tags. These are the literal strings downstream monitoring
// consumers match on, so they must never be reworded.
const (
	traumaTimeout        = "TIMEOUT"
	traumaSessionBroken  = "SESSION_BROKEN"
	traumaHoneypotTrap   = "HONEYPOT_TRAP"
	traumaNeedsOLMOCRVer = "NEEDS_OLMOCR_VERIFICATION"
)

// ExternalSolver is the tier-3 CAPTCHA escalation point (spec.md §4.5's
// "external solver" step). No concrete implementation ships in this
// module; wiring one in is an explicit Open Question left to the operator.
type ExternalSolver interface {
	Solve(ctx context.Context, screenshot []byte, siteKey string) (token string, err error)
}

// Worker executes one mission at a time against its own incognito browser
// context, following session_manager.go's Navigate/Click/Type/Screenshot
// primitives but folded into a single claim-process-publish cycle instead
// of a long-lived multi-session manager.
type Worker struct {
	id     string
	pool   *Pool
	solver ExternalSolver
}

func newWorker(id string, pool *Pool) *Worker {
	return &Worker{id: id, pool: pool}
}

// loop claims missions from the shared queue until ctx is cancelled.
func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := w.pool.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if w.pool.logger != nil {
				w.pool.logger.Error("dequeue failed", zap.String("worker", w.id), zap.Error(err))
			}
			time.Sleep(time.Second)
			continue
		}
		if env == nil {
			// BRPOP timed out with no mission available.
			continue
		}

		w.process(ctx, env)
	}
}

func (w *Worker) process(ctx context.Context, env *queue.MissionEnvelope) {
	timeout := w.pool.cfg.MissionTimeout
	if timeout <= 0 {
		timeout = defaultMissionTimeout
	}
	missionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	result := w.runMission(missionCtx, env)
	result.DurationSeconds = time.Since(started).Seconds()

	if err := w.pool.queue.PublishResult(ctx, env.MissionID, result); err != nil && w.pool.logger != nil {
		w.pool.logger.Error("publish result failed",
			zap.String("worker", w.id), zap.String("mission", env.MissionID), zap.Error(err))
	}

	if w.pool.router != nil {
		state := router.LeadState(env.Lead, env.Lead.State)
		success := result.Status == domain.MissionCompleted
		var found []string
		for field := range result.Extracted {
			found = append(found, field)
		}
		if err := w.pool.router.RecordResult(ctx, env.TargetProvider, state, success, result.DurationSeconds*1000, result.CaptchaSolved, found); err != nil && w.pool.logger != nil {
			w.pool.logger.Warn("record router result failed", zap.Error(err))
		}
	}
}

// runMission never lets a panic escape the worker pool: a recovered panic
// is reported as a failed result so one bad page doesn't kill the loop.
func (w *Worker) runMission(ctx context.Context, env *queue.MissionEnvelope) (result queue.ResultEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			result = queue.ResultEnvelope{
				Status:        domain.MissionFailed,
				Provider:      env.TargetProvider,
				TraumaSignals: []string{fmt.Sprintf("panic: %v", r)},
			}
		}
	}()

	seeds, err := w.pool.entropy.Allocate(ctx, w.id, env.MissionID)
	if err != nil {
		return w.failure(ctx, env, "allocate hardware entropy: "+err.Error())
	}
	fpCfg := fingerprint.New(
		fingerprint.FromHardwareEntropySeeds(seeds.GPUSeed, seeds.AudioSeed, seeds.CanvasSeed),
		w.pool.cfg.ChromeUAVersion,
	)

	page, err := w.pool.newIncognitoPage(ctx, "")
	if err != nil {
		return w.failure(ctx, env, "open browser context: "+err.Error())
	}
	defer page.Close()

	initScript := fingerprint.GenerateInitScript(fpCfg) + cssInjectionSnippet(fingerprint.KernelFontCSS(fpCfg.Device.Platform))
	if _, err := page.EvalOnNewDocument(initScript); err != nil && w.pool.logger != nil {
		w.pool.logger.Warn("inject stealth script failed", zap.String("mission", env.MissionID), zap.Error(err))
	}

	sessionID := env.MissionID
	_ = fingerprint.ProxyUsername("chimera", env.Carrier, sessionID) // computed but not applied: Pool.Start sets no proxy flag

	if w.pool.cfg.WarmupURL != "" {
		w.warmup(ctx, page)
	}

	if env.Blueprint == nil || len(env.Blueprint.Steps) == 0 {
		return w.failure(ctx, env, "mission has no blueprint steps")
	}

	forbidden := guard.ForbiddenRegions{}
	confidence := 1.0
	captchaSolved := false
	extracted := map[string]string{}
	trauma := []string{}

	rotations := 0
	for i := 0; i < len(env.Blueprint.Steps); i++ {
		step := env.Blueprint.Steps[i]
		stepResult, err := w.runStep(ctx, page, env.Blueprint.Domain, step, forbidden)
		if err != nil {
			if isForbiddenStatus(err) {
				if rotations < 1 {
					rotations++
					trauma = append(trauma, "session_rotation: "+err.Error())
					newSessionID := fingerprint.RotationSessionID(env.MissionID, time.Now().Unix())
					_ = fingerprint.ProxyUsername("chimera", env.Carrier, newSessionID)
					newPage, rerr := w.pool.newIncognitoPage(ctx, "")
					if rerr == nil {
						page.Close()
						page = newPage
						if _, ierr := page.EvalOnNewDocument(initScript); ierr != nil && w.pool.logger != nil {
							w.pool.logger.Warn("reinject stealth script failed", zap.Error(ierr))
						}
						i-- // retry the same step once on the rotated context
						continue
					}
				}
				// A second forbidden response after the one allowed rotation
				// means the session is unrecoverable for this mission.
				trauma = append(trauma, traumaSessionBroken, err.Error())
				return queue.ResultEnvelope{
					Status:           domain.MissionFailed,
					Provider:         env.TargetProvider,
					VisionConfidence: confidence,
					CaptchaSolved:    captchaSolved,
					Extracted:        extracted,
					TraumaSignals:    trauma,
				}
			}
			if ctx.Err() == context.DeadlineExceeded {
				trauma = append(trauma, traumaTimeout, err.Error())
				return queue.ResultEnvelope{
					Status:           domain.MissionTimedOut,
					Provider:         env.TargetProvider,
					VisionConfidence: confidence,
					CaptchaSolved:    captchaSolved,
					Extracted:        extracted,
					TraumaSignals:    trauma,
				}
			}
			if isHoneypotBlocked(err) {
				trauma = append(trauma, traumaHoneypotTrap)
			}
			trauma = append(trauma, err.Error())
			return queue.ResultEnvelope{
				Status:           domain.MissionFailed,
				Provider:         env.TargetProvider,
				VisionConfidence: confidence,
				CaptchaSolved:    captchaSolved,
				Extracted:        extracted,
				TraumaSignals:    trauma,
			}
		}
		if stepResult.captchaSolved {
			captchaSolved = true
		}
		if stepResult.confidence > 0 && stepResult.confidence < confidence {
			confidence = stepResult.confidence
		}
		for k, v := range stepResult.extracted {
			extracted[k] = v
		}
		trauma = append(trauma, stepResult.trauma...)
	}

	if ctx.Err() == context.DeadlineExceeded {
		return queue.ResultEnvelope{
			Status:           domain.MissionTimedOut,
			Provider:         env.TargetProvider,
			VisionConfidence: confidence,
			CaptchaSolved:    captchaSolved,
			Extracted:        extracted,
			TraumaSignals:    append(trauma, traumaTimeout),
		}
	}

	return queue.ResultEnvelope{
		Status:           domain.MissionCompleted,
		Provider:         env.TargetProvider,
		VisionConfidence: confidence,
		CaptchaSolved:    captchaSolved,
		Extracted:        extracted,
		TraumaSignals:    trauma,
	}
}

// failure reports a mission as failed, unless ctx's own deadline has already
// expired, in which case the mission is reported as timed out instead with
// the enumerated TIMEOUT trauma tag.
func (w *Worker) failure(ctx context.Context, env *queue.MissionEnvelope, reason string) queue.ResultEnvelope {
	if ctx.Err() == context.DeadlineExceeded {
		return queue.ResultEnvelope{
			Status:        domain.MissionTimedOut,
			Provider:      env.TargetProvider,
			TraumaSignals: []string{traumaTimeout, reason},
		}
	}
	return queue.ResultEnvelope{
		Status:        domain.MissionFailed,
		Provider:      env.TargetProvider,
		TraumaSignals: []string{reason},
	}
}

type stepOutcome struct {
	captchaSolved bool
	confidence    float64
	extracted     map[string]string
	trauma        []string
}

// forbiddenStatusErr wraps a 403-style navigation error so process can
// distinguish it from an ordinary step failure and trigger rotation.
type forbiddenStatusErr struct{ error }

func isForbiddenStatus(err error) bool {
	_, ok := err.(forbiddenStatusErr)
	return ok
}

// honeypotBlockedErr wraps a guard-refused click so runMission can append
// the enumerated HONEYPOT_TRAP trauma tag instead of just the raw error.
type honeypotBlockedErr struct{ error }

func isHoneypotBlocked(err error) bool {
	_, ok := err.(honeypotBlockedErr)
	return ok
}

func (w *Worker) runStep(ctx context.Context, page *rod.Page, domainName string, step domain.BlueprintStep, forbidden guard.ForbiddenRegions) (stepOutcome, error) {
	switch step.Type {
	case domain.StepGoto:
		if err := page.Context(ctx).Timeout(30 * time.Second).Navigate(step.URL); err != nil {
			return stepOutcome{}, err
		}
		if blocked, err := pageLooksBlocked(page); err == nil && blocked {
			return stepOutcome{}, forbiddenStatusErr{fmt.Errorf("blocked response on %s", step.URL)}
		}
		return stepOutcome{}, nil

	case domain.StepWait:
		d := 500 * time.Millisecond
		time.Sleep(d)
		return stepOutcome{}, nil

	case domain.StepClick:
		return stepOutcome{}, w.click(ctx, page, domainName, step, forbidden)

	case domain.StepInput:
		return stepOutcome{}, w.input(ctx, page, step)

	case domain.StepVLMGround:
		return w.vlmGround(ctx, page, step, forbidden)

	default:
		return stepOutcome{}, fmt.Errorf("unknown blueprint step type %q", step.Type)
	}
}

// resolveSelector asks the Selector Registry for the current selector
// before falling back to the blueprint step's static one. A registry miss,
// a disabled registry (pool built with no resolver), or a lookup error are
// all treated the same way: use the step's own selector, since that's what
// every worker did before the registry existed.
func (w *Worker) resolveSelector(ctx context.Context, domainName string, step domain.BlueprintStep) string {
	if w.pool.selectors == nil || domainName == "" || step.Intent == "" {
		return step.Selector
	}
	resolved, alert, err := w.pool.selectors.Resolve(ctx, domainName, step.Intent, 1.0)
	if err != nil || resolved == "" {
		return step.Selector
	}
	if alert != nil && w.pool.logger != nil {
		w.pool.logger.Warn("selector registry raised a critical alert",
			zap.String("domain", alert.Domain), zap.String("intent", alert.Intent), zap.String("cause", alert.Cause))
	}
	return resolved
}

func (w *Worker) click(ctx context.Context, page *rod.Page, domainName string, step domain.BlueprintStep, forbidden guard.ForbiddenRegions) error {
	selector := w.resolveSelector(ctx, domainName, step)

	if w.pool.guard != nil {
		decision, err := w.pool.guard.CheckSelectorClick(ctx, page, selector, step.Intent, forbidden)
		if err != nil {
			return fmt.Errorf("guard check %q: %w", selector, err)
		}
		if !decision.Allow {
			return honeypotBlockedErr{fmt.Errorf("click on %q blocked by guard: %s", selector, decision.Reason)}
		}
	}

	el, err := page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	box, hasBox, err := elementCenter(el)
	if err == nil && hasBox {
		w.moveMouseLike(page, box.x, box.y)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return err
	}
	if w.pool.selectors != nil && domainName != "" && step.Intent != "" {
		if serr := w.pool.selectors.RecordSuccess(ctx, domainName, step.Intent); serr != nil && w.pool.logger != nil {
			w.pool.logger.Warn("record selector success failed", zap.Error(serr))
		}
	}
	return nil
}

// input types step.Value using the timing shape GenerateTyping produces
// (inter-burst pauses, a few self-correcting backspace pairs) even though
// rod's Element.Input sets the field value directly rather than dispatching
// one key event per rune; the delay walk still spreads the fill out over a
// human-plausible span instead of an instant paste.
func (w *Worker) input(ctx context.Context, page *rod.Page, step domain.BlueprintStep) error {
	el, err := page.Context(ctx).Element(step.Selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	for _, key := range fingerprint.GenerateTyping(step.Value, 40) {
		if key.Delay > 0 {
			time.Sleep(key.Delay)
		}
	}
	return el.Input(step.Value)
}

func (w *Worker) vlmGround(ctx context.Context, page *rod.Page, step domain.BlueprintStep, forbidden guard.ForbiddenRegions) (stepOutcome, error) {
	if w.pool.vision == nil {
		return stepOutcome{}, fmt.Errorf("vlm_ground step requires a vision client")
	}

	shot, err := page.Screenshot(false, nil)
	if err != nil {
		return stepOutcome{}, fmt.Errorf("screenshot for vlm_ground: %w", err)
	}

	result, captchaSolved, err := w.resolveWithCaptchaRetry(ctx, page, vision.GroundRequest{
		ScreenshotBytes: shot,
		TextCommand:     step.Intent,
	})
	if err != nil {
		return stepOutcome{}, err
	}
	if !result.Found {
		return stepOutcome{}, fmt.Errorf("vlm_ground %q: target not found", step.Intent)
	}

	if w.pool.guard != nil {
		decision := w.pool.guard.CheckDirectClick(result.X, result.Y, forbidden)
		if !decision.Allow {
			return stepOutcome{}, honeypotBlockedErr{fmt.Errorf("vlm_ground click blocked by guard: %s", decision.Reason)}
		}
	}

	w.moveMouseLike(page, result.X, result.Y)
	if err := page.Mouse.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return stepOutcome{}, fmt.Errorf("vlm_ground click: %w", err)
	}

	outcome := stepOutcome{captchaSolved: captchaSolved, confidence: result.Confidence}
	if result.Description != "" && step.Intent != "" {
		outcome.extracted = map[string]string{step.Intent: result.Description}
	}
	if result.Confidence < olmocrVerificationThreshold {
		outcome.trauma = []string{traumaNeedsOLMOCRVer}
	}
	return outcome, nil
}

// olmocrVerificationThreshold is the vision-grounding confidence below which
// a result is accepted but flagged for the olmOCR text-verification fallback
// rather than trusted outright.
const olmocrVerificationThreshold = 0.7

// resolveWithCaptchaRetry implements spec.md §4.5's tier-2 vision-agent
// CAPTCHA handling: while a ground call comes back not found or below 0.5
// confidence, retry up to maxCaptchaAttempts calls in total with
// exponential backoff and a fresh screenshot, before giving up on tier-2. Tier-1
// avoidance already happened via the fingerprint/behavior layer; tier-3
// external-solver escalation is left to ExternalSolver, which is not
// wired to a concrete backend in this module.
func (w *Worker) resolveWithCaptchaRetry(ctx context.Context, page *rod.Page, req vision.GroundRequest) (vision.GroundResult, bool, error) {
	var last vision.GroundResult
	var err error
	for attempt := 0; attempt < maxCaptchaAttempts; attempt++ {
		last, err = w.pool.vision.Ground(ctx, req)
		if err != nil {
			return vision.GroundResult{}, false, err
		}
		if last.Found && last.Confidence >= 0.5 {
			return last, false, nil
		}
		if attempt < maxCaptchaAttempts-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			time.Sleep(backoff)
			shot, serr := page.Screenshot(false, nil)
			if serr == nil {
				req.ScreenshotBytes = shot
			}
		}
	}
	if w.solver != nil {
		shot, _ := page.Screenshot(false, nil)
		token, serr := w.solver.Solve(ctx, shot, req.TextCommand)
		if serr == nil && token != "" {
			return vision.GroundResult{Found: true, Confidence: 1.0}, true, nil
		}
	}
	return last, false, nil
}

type center struct{ x, y float64 }

func elementCenter(el *rod.Element) (center, bool, error) {
	shape, err := el.Shape()
	if err != nil {
		return center{}, false, err
	}
	quads := shape.Quads
	if len(quads) == 0 {
		return center{}, false, nil
	}
	var sumX, sumY float64
	points := 0
	for _, quad := range quads {
		for i := 0; i+1 < len(quad); i += 2 {
			sumX += quad[i]
			sumY += quad[i+1]
			points++
		}
	}
	if points == 0 {
		return center{}, false, nil
	}
	return center{x: sumX / float64(points), y: sumY / float64(points)}, true, nil
}

// moveMouseLike drives the mouse over a cubic-Bezier path with micro-tremor
// before the caller issues the actual click/input, per spec.md §4.4's
// biological-motion requirement. Failures are ignored: a missed hover never
// blocks the click itself.
func (w *Worker) moveMouseLike(page *rod.Page, targetX, targetY float64) {
	startX := targetX - 40 + rand.Float64()*80
	startY := targetY - 40 + rand.Float64()*80
	path := fingerprint.GenerateBezierPath(startX, startY, targetX, targetY, 12, 1.0)
	for _, p := range path {
		_ = page.Mouse.MoveTo(proto.Point{X: p.X, Y: p.Y})
		time.Sleep(p.Delay)
	}
}

func (w *Worker) warmup(ctx context.Context, page *rod.Page) {
	if err := page.Context(ctx).Timeout(20 * time.Second).Navigate(w.pool.cfg.WarmupURL); err != nil {
		return
	}
	lo, hi := w.pool.cfg.WarmupMinSeconds, w.pool.cfg.WarmupMaxSeconds
	if lo <= 0 {
		lo = 30
	}
	if hi <= lo {
		hi = lo + 30
	}
	dwell := lo + rand.Intn(hi-lo+1)
	deadline := time.Now().Add(time.Duration(dwell) * time.Second)
	for time.Now().Before(deadline) {
		for _, chunk := range fingerprint.GenerateScroll(80 + rand.Intn(221)) {
			_ = page.Mouse.Scroll(0, float64(chunk.DeltaY), 1)
			if chunk.Pause > 0 {
				time.Sleep(chunk.Pause)
			} else {
				time.Sleep(150 * time.Millisecond)
			}
		}
	}
}

// pageLooksBlocked checks the rendered document for the block-page markers
// a 403/rate-limit response typically leaves behind, since rod does not
// surface the navigation's raw HTTP status without a dedicated network
// listener. A title or body snippet containing "403 forbidden", "access
// denied" or "rate limit" (case-insensitive) is treated as a block;
// anything else is not.
func pageLooksBlocked(page *rod.Page) (bool, error) {
	res, err := page.Eval(`() => (document.title + ' ' + (document.body ? document.body.innerText.slice(0, 200) : '')).toLowerCase()`)
	if err != nil {
		return false, err
	}
	text := res.Value.String()
	for _, marker := range []string{"403 forbidden", "access denied", "rate limit"} {
		if strings.Contains(text, marker) {
			return true, nil
		}
	}
	return false, nil
}

func cssInjectionSnippet(css string) string {
	return fmt.Sprintf(`
(function() {
  var inject = function() {
    var style = document.createElement('style');
    style.textContent = %q;
    document.head.appendChild(style);
  };
  if (document.head) { inject(); }
  else { document.addEventListener('DOMContentLoaded', inject); }
})();
`, css)
}
