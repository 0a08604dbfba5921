package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFatigueMultipliers(t *testing.T) {
	jitter, cognitive := FatigueMultipliers(0)
	assert.Equal(t, 1.0, jitter)
	assert.Equal(t, 1.0, cognitive)

	jitter, cognitive = FatigueMultipliers(10)
	assert.InDelta(t, 1.2, jitter, 1e-9)
	assert.InDelta(t, 1.15, cognitive, 1e-9)
}

func TestThermalModel_HeatsUnderLoad(t *testing.T) {
	tm := NewThermalModel()
	before := tm.ExtraDelay()
	assert.Equal(t, time.Duration(0), before)

	for i := 0; i < 5; i++ {
		tm.MarkMissionStart(1.0)
		tm.MarkMissionEnd(60, 1.0)
	}
	assert.Greater(t, tm.ExtraDelay(), time.Duration(0))
}

func TestGenerateBezierPath_StepsAndDelays(t *testing.T) {
	path := GenerateBezierPath(0, 0, 100, 0, 20, 1.0)
	assert.Len(t, path, 21)
	for _, p := range path {
		assert.GreaterOrEqual(t, p.Delay, 5*time.Millisecond)
	}
}

func TestNew_SameSeedsProduceSameWebGL(t *testing.T) {
	seeds := FromHardwareEntropySeeds(42, 7, 3)
	a := New(seeds, "142.0.0.0")
	b := New(seeds, "142.0.0.0")
	assert.Equal(t, a.WebGL, b.WebGL)
	assert.Equal(t, a.Device.HardwareConcurrency, b.Device.HardwareConcurrency)
	assert.InDelta(t, a.AudioNoise, b.AudioNoise, 1e-12)
}

func TestGenerateInitScript_ContainsCoreSpoofs(t *testing.T) {
	cfg := New(FromHardwareEntropySeeds(1, 2, 3), "142.0.0.0")
	script := GenerateInitScript(cfg)
	assert.Contains(t, script, "navigator, 'webdriver'")
	assert.Contains(t, script, "WebGLRenderingContext.prototype.getParameter")
	assert.Contains(t, script, cfg.WebGL.Vendor)
}

func TestGenerateTyping_ProducesKeystrokesForEveryRune(t *testing.T) {
	keystrokes := GenerateTyping("hello", 40)
	var finalChars int
	for _, k := range keystrokes {
		if !k.Backspace && k.Char != 0 {
			finalChars++
		}
	}
	assert.GreaterOrEqual(t, finalChars, len("hello"))
}

func TestGenerateScroll_SumsToDistance(t *testing.T) {
	chunks := GenerateScroll(500)
	total := 0
	for _, c := range chunks {
		total += c.DeltaY
		assert.GreaterOrEqual(t, c.DeltaY, 0)
	}
	assert.Equal(t, 500, total)
}

func TestProxyUsername(t *testing.T) {
	assert.Equal(t, "base-carrier-verizon-session-mission-1", ProxyUsername("base", "verizon", "mission-1"))
	assert.Equal(t, "base-carrier-any-session-mission-1", ProxyUsername("base", "", "mission-1"))
}

func TestRotationSessionID(t *testing.T) {
	assert.Equal(t, "mission-1_r403_1700000000", RotationSessionID("mission-1", 1700000000))
}
