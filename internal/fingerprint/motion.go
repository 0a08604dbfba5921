package fingerprint

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// FatigueMultipliers returns the (jitter, cognitive-delay) multipliers for
// a session that has already run missionIndex missions (0 on its first
// mission), the exact formulas from
// stealth.py's compute_fatigue_multipliers: jitter grows 0.02 per mission,
// cognitive delay grows 0.015 per mission.
func FatigueMultipliers(missionIndex int) (jitter, cognitive float64) {
	return 1.0 + float64(missionIndex)*0.02, 1.0 + float64(missionIndex)*0.015
}

// ThermalModel is the bounded exponential heat accumulator that drives
// micro-lag delays once a session has been "working" long enough,
// matching stealth.py's ThermalModel dataclass. It is process-wide mutable
// state guarded by a mutex, per spec.md §5's description of shared thermal
// state.
type ThermalModel struct {
	mu         sync.Mutex
	baseTempC  float64
	ambientC   float64
	heat       float64
	lastMark   time.Time
}

// NewThermalModel constructs a model at ambient temperature.
func NewThermalModel() *ThermalModel {
	return &ThermalModel{baseTempC: 37.0, ambientC: 33.5, lastMark: time.Now()}
}

func (t *ThermalModel) cool(now time.Time) {
	dt := now.Sub(t.lastMark).Seconds()
	if dt < 0 {
		dt = 0
	}
	t.lastMark = now
	const tau = 75.0
	if dt > 0 {
		t.heat *= math.Exp(-dt / tau)
	}
}

func (t *ThermalModel) currentTempLocked() float64 {
	wobble := (rand.Float64()*0.7 - 0.35)
	temp := t.baseTempC + t.heat*16.5 + wobble
	if temp < t.ambientC {
		return t.ambientC
	}
	return temp
}

// MarkMissionStart bumps the heat accumulator at the start of a mission,
// returning the resulting temperature estimate.
func (t *ThermalModel) MarkMissionStart(intensity float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cool(time.Now())
	if intensity < 0.1 {
		intensity = 0.1
	}
	t.heat += 0.20 * intensity
	if t.heat > 3.0 {
		t.heat = 3.0
	}
	return t.currentTempLocked()
}

// MarkMissionEnd applies the accumulated mission load, calibrated for
// ~60-80°C during heavy missions, returning the resulting temperature.
func (t *ThermalModel) MarkMissionEnd(durationSeconds, intensity float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cool(time.Now())
	if intensity < 0.1 {
		intensity = 0.1
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	t.heat += (durationSeconds / 30.0) * (0.85 * intensity)
	if t.heat > 3.0 {
		t.heat = 3.0
	}
	return t.currentTempLocked()
}

// ExtraDelay returns a 3-12ms micro-lag scaled by how far the current
// temperature estimate sits above the 66°C equivalent threshold, zero
// below it, matching stealth.py's thermal_extra_delay_s.
func (t *ThermalModel) ExtraDelay() time.Duration {
	t.mu.Lock()
	temp := t.currentTempLocked()
	t.mu.Unlock()

	if temp < 66.0 {
		return 0
	}
	scale := (temp - 66.0) / 18.0
	if scale > 1.0 {
		scale = 1.0
	}
	if scale < 0 {
		scale = 0
	}
	delay := (0.003 + rand.Float64()*(0.012-0.003)) * scale
	return time.Duration(delay * float64(time.Second))
}

// MicroTremor returns the current 8-12Hz sub-pixel sinusoidal offset pair
// applied to mouse coordinates, matching stealth.py's inject_micro_tremor.
// Frequency and phase are drawn fresh each call (matching the original's
// per-call randomization), so two consecutive calls are not phase-locked.
func MicroTremor() (x, y float64) {
	now := float64(time.Now().UnixNano()) / 1e9
	freq := 8.0 + rand.Float64()*4.0
	phase := rand.Float64() * 2 * math.Pi
	amp := 0.08 + rand.Float64()*0.18
	x = math.Sin(2*math.Pi*freq*now+phase) * amp
	y = math.Cos(2*math.Pi*(freq+0.7)*now+phase) * amp
	return x, y
}

// PathPoint is one step of a generated mouse-movement path: a coordinate
// and the delay to sleep before moving there.
type PathPoint struct {
	X, Y  float64
	Delay time.Duration
}

// GenerateBezierPath builds a cubic-Bezier mouse path from start to end
// with per-step Gaussian hand-tremor, velocity-scaled saccadic jitter, and
// an ease-in/ease-out delay envelope, matching stealth.py's
// DiffusionMouse.generate_bezier_path. jitter is the fatigue-scaled
// Gaussian amplitude (1.0 at baseline); steps should be
// max(20, distance/10).
func GenerateBezierPath(startX, startY, endX, endY float64, steps int, jitter float64) []PathPoint {
	if steps < 1 {
		steps = 1
	}
	curvature := 1.0
	midX := (startX+endX)/2 + (rand.Float64()*100-50)*curvature
	midY := (startY+endY)/2 + (rand.Float64()*60-30)*curvature

	tremorScale := jitter
	if tremorScale < 0.8 {
		tremorScale = 0.8
	}
	if tremorScale > 2.2 {
		tremorScale = 2.2
	}

	path := make([]PathPoint, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)

		cx1 := startX + (midX-startX)*0.3
		cx2 := endX + (midX-endX)*0.3
		cy1 := startY + (midY-startY)*0.3
		cy2 := endY + (midY-endY)*0.3

		x := cube(1-t)*startX + 3*sq(1-t)*t*cx1 + 3*(1-t)*sq(t)*cx2 + cube(t)*endX
		y := cube(1-t)*startY + 3*sq(1-t)*t*cy1 + 3*(1-t)*sq(t)*cy2 + cube(t)*endY

		x += gaussian(0, jitter)
		y += gaussian(0, jitter)

		var easeT float64
		if t < 0.5 {
			easeT = 2 * t * t
		} else {
			easeT = 1 - math.Pow(-2*t+2, 2)/2
		}

		velocityFactor := 1.0 - math.Abs(easeT-0.5)*2.0
		if velocityFactor < 0 {
			velocityFactor = 0
		}
		if velocityFactor > 1 {
			velocityFactor = 1
		}

		tremorAmplitude := (0.3 + velocityFactor*0.4) * tremorScale
		tremorFrequency := int(1.0 + velocityFactor*2.0)
		for j := 0; j < tremorFrequency; j++ {
			x += gaussian(0, tremorAmplitude)
			y += gaussian(0, tremorAmplitude)
		}

		delayMs := 5.0 + (1-easeT)*10.0
		path = append(path, PathPoint{X: x, Y: y, Delay: time.Duration(delayMs * float64(time.Millisecond))})
	}
	return path
}

func cube(v float64) float64 { return v * v * v }
func sq(v float64) float64   { return v * v }

// gaussian draws from N(mean, stddev) via the Box-Muller transform.
func gaussian(mean, stddev float64) float64 {
	u1, u2 := rand.Float64(), rand.Float64()
	if u1 == 0 {
		u1 = 1e-12
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + z*stddev
}
