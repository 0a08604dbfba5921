package guard

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/linkpellow/chimera-core/internal/mangle"
)

// HoneypotDetector emits DOM facts for a page or a single element and
// consults the is_honeypot Datalog rule set to classify it. Adapted directly
// from theRebelliousNerd-codenerd/internal/browser/honeypot.go: the fact
// schema, the fact-emission helpers, and the honeypot rule text below are
// carried over unchanged; only the single-element entry points the guard
// needs (ElementBox, IsHoneypot) are new.
type HoneypotDetector struct {
	engine *mangle.Engine
}

// NewHoneypotDetector constructs a detector around a loaded Datalog engine.
// The caller is expected to have loaded HoneypotRules/BrowserSchemas into
// the engine's schema already (done once at worker startup).
func NewHoneypotDetector(engine *mangle.Engine) *HoneypotDetector {
	return &HoneypotDetector{engine: engine}
}

// ElementBox resolves el's on-page bounding box. hasBox is false when the
// element has no layout quad at all (detached or not rendered), which the
// guard treats as a block per spec.md §4.6 step 3.
func (d *HoneypotDetector) ElementBox(el *rod.Element) (Box, bool, error) {
	shape, err := el.Shape()
	if err != nil {
		return Box{}, false, fmt.Errorf("element shape: %w", err)
	}
	if shape == nil || len(shape.Quads) == 0 {
		return Box{}, false, nil
	}
	quad := shape.Quads[0]
	x := quad[0]
	y := quad[1]
	width := quad[2] - quad[0]
	height := quad[5] - quad[1]
	return Box{X: x, Y: y, Width: width, Height: height}, true, nil
}

// IsHoneypot emits DOM facts for the single element at selector under a
// fixed scratch element id and asks the Datalog engine whether any
// honeypot rule fires for it, mirroring the teacher's per-element
// IsHoneypot check.
func (d *HoneypotDetector) IsHoneypot(page *rod.Page, selector string) (bool, error) {
	el, err := page.Element(selector)
	if err != nil {
		return false, fmt.Errorf("element not found: %w", err)
	}

	const elemID = "guard_check_elem"

	if styles, err := d.getComputedStyles(el); err == nil {
		for prop, value := range styles {
			_ = d.engine.PushFact("css_property", elemID, prop, value)
		}
	}
	if box, ok, err := d.ElementBox(el); err == nil && ok {
		_ = d.engine.PushFact("position", elemID,
			fmt.Sprintf("%.0f", box.X), fmt.Sprintf("%.0f", box.Y),
			fmt.Sprintf("%.0f", box.Width), fmt.Sprintf("%.0f", box.Height))
	}
	if attrs, err := d.getAttributes(el); err == nil {
		for name, value := range attrs {
			_ = d.engine.PushFact("attribute", elemID, name, value)
		}
	}
	if href, err := el.Attribute("href"); err == nil && href != nil && *href != "" {
		_ = d.engine.PushFact("link", elemID, *href)
	}

	return len(d.getHoneypotReasons(elemID)) > 0, nil
}

// AnalyzePage emits facts for every clickable element on the page and
// returns the set the Datalog engine classifies as honeypots.
func (d *HoneypotDetector) AnalyzePage(page *rod.Page) ([]string, error) {
	if err := d.emitPageFacts(page); err != nil {
		return nil, fmt.Errorf("emit page facts: %w", err)
	}
	var ids []string
	for _, fact := range d.engine.EvaluateRule("is_honeypot") {
		if len(fact.Args) > 0 {
			ids = append(ids, fmt.Sprintf("%v", fact.Args[0]))
		}
	}
	return ids, nil
}

func (d *HoneypotDetector) emitPageFacts(page *rod.Page) error {
	elements, err := page.Elements("a, button, input, [onclick], [role='button'], [role='link']")
	if err != nil {
		return err
	}
	for i, el := range elements {
		elemID := fmt.Sprintf("elem_%d", i)

		tagName, err := el.Eval(`() => this.tagName.toLowerCase()`)
		if err == nil {
			_ = d.engine.PushFact("element", elemID, tagName.Value.String(), "")
		}
		if styles, err := d.getComputedStyles(el); err == nil {
			for prop, value := range styles {
				_ = d.engine.PushFact("css_property", elemID, prop, value)
			}
		}
		if box, ok, err := d.ElementBox(el); err == nil && ok {
			_ = d.engine.PushFact("position", elemID,
				fmt.Sprintf("%.0f", box.X), fmt.Sprintf("%.0f", box.Y),
				fmt.Sprintf("%.0f", box.Width), fmt.Sprintf("%.0f", box.Height))
		}
		if attrs, err := d.getAttributes(el); err == nil {
			for name, value := range attrs {
				_ = d.engine.PushFact("attribute", elemID, name, value)
			}
		}
		if href, err := el.Attribute("href"); err == nil && href != nil && *href != "" {
			_ = d.engine.PushFact("link", elemID, *href)
		}
	}
	return nil
}

func (d *HoneypotDetector) getComputedStyles(el *rod.Element) (map[string]string, error) {
	result, err := el.Eval(`() => {
		const styles = window.getComputedStyle(this);
		return {
			display: styles.display,
			visibility: styles.visibility,
			opacity: styles.opacity,
			position: styles.position,
			left: styles.left,
			top: styles.top,
			width: styles.width,
			height: styles.height,
			overflow: styles.overflow,
			clip: styles.clip,
			pointerEvents: styles.pointerEvents
		};
	}`)
	if err != nil {
		return nil, err
	}
	styles := make(map[string]string)
	for k, v := range result.Value.Map() {
		styles[k] = v.String()
	}
	return styles, nil
}

func (d *HoneypotDetector) getAttributes(el *rod.Element) (map[string]string, error) {
	result, err := el.Eval(`() => {
		const attrs = {};
		for (const attr of this.attributes) {
			attrs[attr.name] = attr.value;
		}
		return attrs;
	}`)
	if err != nil {
		return nil, err
	}
	attrs := make(map[string]string)
	for k, v := range result.Value.Map() {
		attrs[k] = v.String()
	}
	return attrs, nil
}

func (d *HoneypotDetector) getHoneypotReasons(elemID string) []string {
	var reasons []string
	ruleChecks := []struct {
		predicate string
		reason    string
	}{
		{"honeypot_css_hidden", "hidden via display:none"},
		{"honeypot_css_invisible", "hidden via visibility:hidden"},
		{"honeypot_opacity_hidden", "hidden via opacity:0"},
		{"honeypot_offscreen", "positioned off-screen"},
		{"honeypot_zero_size", "zero or near-zero size"},
		{"honeypot_aria_hidden", "marked as aria-hidden"},
		{"honeypot_no_keyboard", "not keyboard accessible (negative tabindex)"},
		{"honeypot_pointer_events_none", "pointer events disabled"},
		{"honeypot_suspicious_url", "suspicious url pattern"},
	}
	for _, check := range ruleChecks {
		if len(d.engine.QueryFacts(check.predicate, elemID)) > 0 {
			reasons = append(reasons, check.reason)
		}
	}
	return reasons
}

// HoneypotRules is the Datalog rule text classifying honeypot elements,
// carried over from the teacher unchanged. Load it once into the Engine's
// schema alongside BrowserSchemas.
func HoneypotRules() string {
	return `
Decl honeypot_css_hidden(elem: string).
honeypot_css_hidden(Elem) :- css_property(Elem, "display", "none").

Decl honeypot_css_invisible(elem: string).
honeypot_css_invisible(Elem) :- css_property(Elem, "visibility", "hidden").

Decl honeypot_opacity_hidden(elem: string).
honeypot_opacity_hidden(Elem) :- css_property(Elem, "opacity", "0").

Decl honeypot_offscreen(elem: string).
honeypot_offscreen(Elem) :-
    position(Elem, X, _, _, _),
    fn:int64:lt(X, -1000).
honeypot_offscreen(Elem) :-
    position(Elem, _, Y, _, _),
    fn:int64:lt(Y, -1000).

Decl honeypot_zero_size(elem: string).
honeypot_zero_size(Elem) :-
    position(Elem, _, _, W, H),
    fn:int64:lt(W, 2),
    fn:int64:lt(H, 2).

Decl honeypot_aria_hidden(elem: string).
honeypot_aria_hidden(Elem) :- attribute(Elem, "aria-hidden", "true").

Decl honeypot_no_keyboard(elem: string).
honeypot_no_keyboard(Elem) :- attribute(Elem, "tabindex", "-1").

Decl honeypot_pointer_events_none(elem: string).
honeypot_pointer_events_none(Elem) :- css_property(Elem, "pointerEvents", "none").

Decl honeypot_suspicious_url(elem: string).
honeypot_suspicious_url(Elem) :-
    link(Elem, Href),
    fn:string:contains(Href, "honeypot").
honeypot_suspicious_url(Elem) :-
    link(Elem, Href),
    fn:string:contains(Href, "trap").
honeypot_suspicious_url(Elem) :-
    link(Elem, Href),
    fn:string:contains(Href, "captcha").

Decl is_honeypot(elem: string).
is_honeypot(Elem) :- honeypot_css_hidden(Elem).
is_honeypot(Elem) :- honeypot_css_invisible(Elem).
is_honeypot(Elem) :- honeypot_opacity_hidden(Elem).
is_honeypot(Elem) :- honeypot_offscreen(Elem).
is_honeypot(Elem) :- honeypot_zero_size(Elem).
is_honeypot(Elem) :- honeypot_aria_hidden(Elem).
is_honeypot(Elem) :- honeypot_pointer_events_none(Elem).
is_honeypot(Elem) :- honeypot_suspicious_url(Elem).

Decl high_confidence_honeypot(elem: string).
high_confidence_honeypot(Elem) :-
    honeypot_css_hidden(Elem),
    honeypot_zero_size(Elem).
high_confidence_honeypot(Elem) :-
    honeypot_offscreen(Elem),
    honeypot_no_keyboard(Elem).
`
}

// BrowserSchemas is the Datalog fact-schema declarations the rule set above
// depends on, carried over from the teacher unchanged.
func BrowserSchemas() string {
	return `
Decl element(id: string, tag: string, parent: string).
Decl css_property(elem: string, property: string, value: string).
Decl position(elem: string, x: string, y: string, width: string, height: string).
Decl attribute(elem: string, name: string, value: string).
Decl link(elem: string, href: string).
`
}
