// Package guard implements the Honeypot and Visibility Guard: the seven-step
// check every selector-based click runs through before the worker touches a
// DOM element, per spec.md §4.6.
//
// Grounded directly on theRebelliousNerd-codenerd/internal/browser/honeypot.go:
// the DOM-fact extraction and is_honeypot Datalog rule set are reused
// verbatim for steps 1-3 (forbidden selector, DOM resolution, bounding-box
// check); the vision-distance and forbidden-rect steps the specification
// adds on top are implemented here.
package guard

import (
	"context"
	"fmt"
	"math"

	"github.com/go-rod/rod"

	"github.com/linkpellow/chimera-core/internal/mangle"
	"github.com/linkpellow/chimera-core/internal/vision"
)

// HoneypotVisionToleranceNonePx is the L1 pixel tolerance between a vision
// grounding hit and the named element's box center (step 6). This literal
// constant is carried from the specification unchanged; whether it was
// calibrated or a placeholder is not documented upstream.
const HoneypotVisionToleranceNonePx = 120.0

// Rect is an axis-aligned forbidden region in page coordinates.
type Rect struct {
	X, Y, Width, Height float64
}

func (r Rect) contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// ForbiddenRegions is the per-domain configuration fetched from
// dojo:forbidden:<domain> in Redis.
type ForbiddenRegions struct {
	Rects     []Rect
	Selectors []string
}

// Box is a resolved DOM element's bounding box in page coordinates.
type Box struct {
	X, Y, Width, Height float64
}

func (b Box) centerX() float64 { return b.X + b.Width/2 }
func (b Box) centerY() float64 { return b.Y + b.Height/2 }

// Decision is the guard's verdict for one candidate click.
type Decision struct {
	Allow  bool
	Reason string
}

func blocked(reason string) Decision { return Decision{Allow: false, Reason: reason} }
func allowed() Decision              { return Decision{Allow: true} }

// Guard evaluates honeypot and visibility checks before a selector-based or
// direct-coordinate click.
type Guard struct {
	detector *HoneypotDetector
	vision   *vision.Client
}

// New constructs a Guard around the Datalog honeypot detector and the
// Vision Client façade.
func New(engine *mangle.Engine, visionClient *vision.Client) *Guard {
	return &Guard{detector: NewHoneypotDetector(engine), vision: visionClient}
}

// CheckSelectorClick runs the full seven-step guard for a selector-based
// click, per spec.md §4.6.
func (g *Guard) CheckSelectorClick(ctx context.Context, page *rod.Page, selector, description string, forbidden ForbiddenRegions) (Decision, error) {
	// 1. Forbidden-selector list.
	for _, fs := range forbidden.Selectors {
		if fs == selector {
			return blocked("forbidden_selector"), nil
		}
	}

	// 2. Resolve the selector in the DOM. Non-existence is forwarded as an
	// error, not a honeypot classification.
	el, err := page.Element(selector)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve selector %q: %w", selector, err)
	}

	// 3. Bounding box presence.
	box, hasBox, err := g.detector.ElementBox(el)
	if err != nil {
		return Decision{}, fmt.Errorf("box for %q: %w", selector, err)
	}
	if !hasBox {
		return blocked("honeypot_zero_size_or_hidden"), nil
	}

	// Consult the Datalog honeypot rules over the DOM facts for this element.
	isHoneypot, err := g.detector.IsHoneypot(page, selector)
	if err != nil {
		return Decision{}, fmt.Errorf("honeypot analysis %q: %w", selector, err)
	}
	if isHoneypot {
		return blocked("honeypot_rule_match"), nil
	}

	// 4-5. Screenshot + vision lookup for the visible clickable element.
	shot, err := page.Screenshot(false, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("screenshot for guard: %w", err)
	}
	result, err := g.vision.Ground(ctx, vision.GroundRequest{
		ScreenshotBytes: shot,
		TextCommand:     "find the visible clickable element: " + description,
	})
	if err != nil {
		// Vision service entirely unreachable: fail open to avoid pipeline
		// deadlock (documented asymmetry in spec.md §8).
		return allowed(), nil
	}
	if !result.Found {
		return blocked("vision_not_found"), nil
	}

	// 6. L1 distance between vision coordinates and the element's box center.
	dist := math.Abs(result.X-box.centerX()) + math.Abs(result.Y-box.centerY())
	if dist > HoneypotVisionToleranceNonePx {
		return blocked("vision_distance_exceeded"), nil
	}

	// 7. Forbidden-rect check.
	for _, rect := range forbidden.Rects {
		if rect.contains(result.X, result.Y) {
			return blocked("forbidden_rect"), nil
		}
	}

	return allowed(), nil
}

// CheckDirectClick runs only step 7 (forbidden-rect) for a direct-coordinate
// click produced by vision grounding with no selector.
func (g *Guard) CheckDirectClick(x, y float64, forbidden ForbiddenRegions) Decision {
	for _, rect := range forbidden.Rects {
		if rect.contains(x, y) {
			return blocked("forbidden_rect")
		}
	}
	return allowed()
}
