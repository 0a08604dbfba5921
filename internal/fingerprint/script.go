package fingerprint

import (
	"encoding/json"
	"fmt"
	"strings"
)

// jsSeededRNG emits a small xorshift32 PRNG factory bound to the given
// seed expression, matching stealth.py's _js_seeded_rng helper so canvas
// and audio noise stay stable within a session.
func jsSeededRNG(name, seedExpr string) string {
	return fmt.Sprintf(`
		function %s__factory(seed) {
			let x = (seed | 0) || 1337;
			return function() {
				x ^= (x << 13);
				x ^= (x >>> 17);
				x ^= (x << 5);
				return ((x >>> 0) / 4294967296);
			};
		}
		const %s = %s__factory(%s);
	`, name, name, name, seedExpr)
}

func jsStringArray(values []string) string {
	b, _ := json.Marshal(values)
	return string(b)
}

func chromeMajor(version string) string {
	if i := strings.Index(version, "."); i > 0 {
		return version[:i]
	}
	return version
}

func platformVersion(platform string) string {
	if strings.HasPrefix(platform, "Win") {
		return "10.0.0"
	}
	return "10.15.7"
}

// GenerateInitScript renders the full stealth patch set for a page, applying
// cfg's seeds and device/WebGL values. It must be injected before any site
// script runs (go-rod's page.EvalOnNewDocument), matching spec.md §4.4's
// enumerated patch list and stealth.py's generate_stealth_script verbatim
// feature-for-feature (re-expressed for Go string formatting instead of
// Python f-strings).
func GenerateInitScript(cfg Config) string {
	d := cfg.Device
	mobile := "false"
	if d.IsMobile {
		mobile = "true"
	}
	major := chromeMajor(cfg.ChromeVersion)
	pver := platformVersion(d.Platform)

	return fmt.Sprintf(`
		const __chimeraSeeds = { gpu: %d, audio: %d, canvas: %d };
		%s
		%s

		Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: false, enumerable: false });
		Object.defineProperty(navigator, 'platform', { get: () => %q, configurable: false, writable: false });
		Object.defineProperty(navigator, 'vendor', { get: () => %q, configurable: false, writable: false });
		Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d, configurable: false, writable: false });
		Object.defineProperty(navigator, 'deviceMemory', { get: () => %d, configurable: false, writable: false });
		Object.defineProperty(navigator, 'maxTouchPoints', { get: () => %d, configurable: false, writable: false });
		Object.defineProperty(navigator, 'languages', { get: () => %s, configurable: false, writable: false });
		Object.defineProperty(navigator, 'language', { get: () => %q, configurable: false, writable: false });

		window.chrome = {
			runtime: {},
			loadTimes: function() { return {}; },
			csi: function() { return {}; },
			app: { isInstalled: false, InstallState: { DISABLED: "disabled", INSTALLED: "installed", NOT_INSTALLED: "not_installed" }, RunningState: { CANNOT_RUN: "cannot_run", READY_TO_RUN: "ready_to_run", RUNNING: "running" } }
		};

		const __chimeraOriginalQuery = window.navigator.permissions.query;
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			__chimeraOriginalQuery(parameters)
		);

		const __chimeraGetParam1 = WebGLRenderingContext.prototype.getParameter;
		WebGLRenderingContext.prototype.getParameter = function(parameter) {
			if (parameter === 37445) return %q;
			if (parameter === 37446) return %q;
			return __chimeraGetParam1.call(this, parameter);
		};
		const __chimeraGetParam2 = WebGL2RenderingContext.prototype.getParameter;
		WebGL2RenderingContext.prototype.getParameter = function(parameter) {
			if (parameter === 37445) return %q;
			if (parameter === 37446) return %q;
			return __chimeraGetParam2.call(this, parameter);
		};

		const __chimeraOriginalToDataURL = HTMLCanvasElement.prototype.toDataURL;
		HTMLCanvasElement.prototype.toDataURL = function(type) {
			if (type === 'image/png' && this.width > 16 && this.height > 16) {
				const context = this.getContext('2d');
				if (context) {
					const imageData = context.getImageData(0, 0, this.width, this.height);
					for (let i = 0; i < imageData.data.length; i += 4) {
						imageData.data[i] += Math.floor(__chimeraRandCanvas() * 2);
					}
					context.putImageData(imageData, 0, 0);
				}
			}
			return __chimeraOriginalToDataURL.apply(this, arguments);
		};

		const __chimeraAudioCtx = window.AudioContext || window.webkitAudioContext;
		if (__chimeraAudioCtx) {
			const __chimeraOriginalCreateAnalyser = __chimeraAudioCtx.prototype.createAnalyser;
			__chimeraAudioCtx.prototype.createAnalyser = function() {
				const analyser = __chimeraOriginalCreateAnalyser.call(this);
				const originalGetFloatFrequencyData = analyser.getFloatFrequencyData.bind(analyser);
				analyser.getFloatFrequencyData = function(array) {
					originalGetFloatFrequencyData(array);
					for (let i = 0; i < array.length; i++) {
						array[i] += (__chimeraRandAudio() - 0.5) * %g;
					}
				};
				return analyser;
			};
		}

		Object.defineProperty(navigator, 'connection', {
			get: () => ({ effectiveType: '4g', rtt: 50 + Math.floor(Math.random() * 50), downlink: 10 + Math.random() * 5, saveData: false })
		});

		if (navigator.getBattery) {
			navigator.getBattery = () => Promise.resolve({
				charging: true, chargingTime: 0, dischargingTime: Infinity, level: 1,
				addEventListener: () => {}, removeEventListener: () => {}
			});
		}

		Object.defineProperty(screen, 'colorDepth', { get: () => %d });
		Object.defineProperty(screen, 'pixelDepth', { get: () => %d });

		delete Object.getPrototypeOf(navigator).webdriver;

		Object.defineProperty(navigator, 'plugins', {
			get: () => {
				const plugins = [
					{ name: 'Chrome PDF Plugin', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
					{ name: 'Chrome PDF Viewer', filename: 'mhjfbmdgcfjbbpaeojofohoefgiehjai', description: '' },
					{ name: 'Native Client', filename: 'internal-nacl-plugin', description: '' }
				];
				plugins.length = 3;
				return plugins;
			},
			configurable: false,
			enumerable: true
		});

		if (navigator.userAgentData) {
			Object.defineProperty(navigator, 'userAgentData', {
				get: () => ({
					brands: [
						{ brand: 'Google Chrome', version: %q },
						{ brand: 'Chromium', version: %q },
						{ brand: 'Not_A Brand', version: '8' }
					],
					mobile: %s,
					platform: %q,
					getHighEntropyValues: () => Promise.resolve({
						architecture: 'x86',
						bitness: '64',
						brands: [
							{ brand: 'Google Chrome', version: %q },
							{ brand: 'Chromium', version: %q },
							{ brand: 'Not_A Brand', version: '8' }
						],
						fullVersionList: [
							{ brand: 'Google Chrome', version: %q },
							{ brand: 'Chromium', version: %q },
							{ brand: 'Not_A Brand', version: '8.0.0.0' }
						],
						mobile: %s,
						model: '',
						platform: %q,
						platformVersion: %q,
						uaFullVersion: %q
					})
				})
			});
		}

		const __chimeraOriginalRTCPeerConnection = window.RTCPeerConnection;
		window.RTCPeerConnection = function(...args) {
			const pc = new __chimeraOriginalRTCPeerConnection(...args);
			pc.createDataChannel = function() { return null; };
			return pc;
		};
		window.RTCPeerConnection.prototype = __chimeraOriginalRTCPeerConnection.prototype;

		Object.defineProperty(window, 'parent', { get: () => window });
		Object.defineProperty(window, 'top', { get: () => window });
	`,
		cfg.GPUSeed, cfg.AudioSeed, cfg.CanvasSeed,
		jsSeededRNG("__chimeraRandCanvas", "__chimeraSeeds.canvas"),
		jsSeededRNG("__chimeraRandAudio", "__chimeraSeeds.audio"),
		d.Platform, d.Vendor, d.HardwareConcurrency, d.DeviceMemory, d.MaxTouchPoints,
		jsStringArray(cfg.Languages), cfg.Language,
		cfg.WebGL.Vendor, cfg.WebGL.Renderer,
		cfg.WebGL.Vendor, cfg.WebGL.Renderer,
		cfg.AudioNoise,
		cfg.ColorDepth, cfg.ColorDepth,
		major, major, mobile, d.Platform, major, major, cfg.ChromeVersion, cfg.ChromeVersion, mobile, d.Platform, pver, cfg.ChromeVersion,
	)
}

// KernelFontCSS returns the platform-keyed font-rendering CSS rule spec.md
// §4.4 calls out as an "additional patch", matching stealth.py's
// force_kernel_rendering per-platform branches.
func KernelFontCSS(platform string) string {
	key := strings.ToLower(platform)
	switch {
	case strings.Contains(key, "mac"):
		return `html, body { -webkit-font-smoothing: antialiased !important; -moz-osx-font-smoothing: grayscale !important; text-rendering: optimizeLegibility !important; }`
	case strings.Contains(key, "win"):
		return `html, body { text-rendering: optimizeLegibility !important; font-smooth: always !important; -webkit-text-stroke: 0.25px transparent !important; }`
	default:
		return `html, body { text-rendering: geometricPrecision !important; -webkit-font-smoothing: antialiased !important; }`
	}
}
