// Package fingerprint implements the per-session browser fingerprint and
// behavioral-timing layer: device/WebGL/audio profile randomization, the
// injected stealth init script, Bezier mouse motion with fatigue and
// thermal micro-lag, WPM-parameterized typing, and chunked scrolling, per
// spec.md §4.4.
//
// Grounded directly on original_source/chimera-core/stealth.py: the
// profile randomization, the exact fatigue/thermal formulas, and the
// injected-script feature list are carried over, re-expressed in Go and
// wired into go-rod's page/proto primitives the way
// theRebelliousNerd-codenerd/internal/browser/session_manager.go applies
// EmulationSetDeviceMetricsOverride.
package fingerprint

import (
	"math/rand"
)

// webglOption is one calibrated {vendor, renderer} pair a profile may draw.
type webglOption struct {
	Vendor   string
	Renderer string
}

var webglOptions = []webglOption{
	{"Intel Inc.", "Intel Iris OpenGL Engine"},
	{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) Iris(TM) Plus Graphics 640 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
}

// hardwareConcurrencyOptions and deviceMemoryOptions are the small
// calibrated lists a DeviceProfile draws from.
var hardwareConcurrencyOptions = []int{4, 8, 12, 16}
var deviceMemoryOptions = []int{4, 8, 16}

// DeviceProfile is the per-session device identity exposed to the page.
type DeviceProfile struct {
	Platform            string
	Vendor              string
	HardwareConcurrency int
	DeviceMemory        int
	// MaxTouchPoints defaults to 5: spec.md documents this as an
	// inconsistently-calibrated literal in the original, preserved as-is
	// (see DESIGN.md's Open Question decision).
	MaxTouchPoints int
	IsMobile       bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
}

// WebGL is the spoofed {vendor, renderer} tuple reported through both
// WebGL1 and WebGL2 getParameter hooks.
type WebGL struct {
	Vendor   string
	Renderer string
}

// Config is the full per-session fingerprint configuration: locale/timezone,
// display, audio-noise amplitude, WebGL tuple, device profile, and the three
// hardware-entropy seeds that make canvas/audio readouts stable within a
// session but distinct across sessions.
type Config struct {
	Language        string
	Languages       []string
	Timezone        string
	PixelRatio      float64
	ColorDepth      int
	AudioNoise      float64
	WebGL           WebGL
	Device          DeviceProfile
	ChromeVersion   string
	GPUSeed         int32
	AudioSeed       int32
	CanvasSeed      int32
}

// DefaultDeviceProfile returns the baseline macOS Chrome device profile
// before per-session randomization, mirroring stealth.py's DeviceProfile
// dataclass defaults.
func DefaultDeviceProfile() DeviceProfile {
	return DeviceProfile{
		Platform:            "MacIntel",
		Vendor:              "Google Inc.",
		HardwareConcurrency: 8,
		DeviceMemory:        8,
		MaxTouchPoints:      5,
		IsMobile:            false,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		UserAgent:           "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36",
	}
}

// New builds a fully randomized per-session Config seeded by the three
// hardware-entropy seeds allocated for this (worker, mission) pair. Canvas
// and audio seeds drive deterministic JS-side RNGs embedded in the init
// script (see script.go); the GPU seed here additionally selects the
// WebGL tuple so repeated sessions on the same worker/mission combination
// present identical hardware, matching stealth.py's seeded
// FingerprintConfig.__post_init__.
func New(seeds domainSeeds, chromeVersion string) Config {
	gpuRNG := rand.New(rand.NewSource(int64(seeds.GPUSeed)))
	webgl := webglOptions[gpuRNG.Intn(len(webglOptions))]

	device := DefaultDeviceProfile()
	device.HardwareConcurrency = hardwareConcurrencyOptions[gpuRNG.Intn(len(hardwareConcurrencyOptions))]
	device.DeviceMemory = deviceMemoryOptions[gpuRNG.Intn(len(deviceMemoryOptions))]

	audioRNG := rand.New(rand.NewSource(int64(seeds.AudioSeed)))
	audioNoise := 0.00005 + audioRNG.Float64()*(0.0002-0.00005)

	if chromeVersion == "" {
		chromeVersion = "142.0.0.0"
	}

	return Config{
		Language:      "en-US",
		Languages:     []string{"en-US", "en"},
		Timezone:      "America/New_York",
		PixelRatio:    2.0,
		ColorDepth:    24,
		AudioNoise:    audioNoise,
		WebGL:         WebGL{Vendor: webgl.Vendor, Renderer: webgl.Renderer},
		Device:        device,
		ChromeVersion: chromeVersion,
		GPUSeed:       seeds.GPUSeed,
		AudioSeed:     seeds.AudioSeed,
		CanvasSeed:    seeds.CanvasSeed,
	}
}

// domainSeeds mirrors the GPU/audio/canvas fields of
// internal/domain.HardwareEntropySeeds without importing the domain
// package's mission/worker identifiers, which this package has no need of.
type domainSeeds struct {
	GPUSeed, AudioSeed, CanvasSeed int32
}

// FromHardwareEntropySeeds adapts a domain.HardwareEntropySeeds record (as
// stored in Postgres per mission) into the seed triple New expects.
func FromHardwareEntropySeeds(gpu, audio, canvas int32) domainSeeds {
	return domainSeeds{GPUSeed: gpu, AudioSeed: audio, CanvasSeed: canvas}
}
