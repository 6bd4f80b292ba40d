package fsr

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/fsr/gpucore"
)

// GateState is the readiness state of the effect.
type GateState int

const (
	// GateInactive means the pipeline must not run this frame.
	GateInactive GateState = iota

	// GateActive means compute is supported, the program is loaded and the
	// effect is enabled.
	GateActive
)

// String returns the state name.
func (s GateState) String() string {
	switch s {
	case GateActive:
		return "Active"
	case GateInactive:
		return "Inactive"
	default:
		return fmt.Sprintf("GateState(%d)", int(s))
	}
}

// unsupportedMessage is logged once per gate when the device lacks compute.
const unsupportedMessage = "FSR is not supported on this platform."

// Gate decides, once per frame, whether the upscale pipeline may run.
//
// The gate is Active only while all of these hold: the device supports
// compute shaders, the shader program has finished loading, and the enable
// flag is set. Missing compute support is detected on the first evaluation
// and latches the gate Inactive for the rest of its life.
//
// Gate is safe for concurrent use. Evaluate never blocks on GPU work.
type Gate struct {
	program gpucore.Program
	caps    gpucore.Capabilities

	enabled atomic.Bool

	mu          sync.Mutex
	latched     bool
	unsupported bool
	state       GateState
	reason      error
}

// NewGate returns a gate over program and caps. A nil program is never
// ready; nil caps report no compute support.
func NewGate(program gpucore.Program, caps gpucore.Capabilities, enabled bool) *Gate {
	g := &Gate{program: program, caps: caps, reason: ErrShaderNotReady}
	g.enabled.Store(enabled)
	return g
}

// SetEnabled sets the user enable flag. It takes effect on the next Evaluate.
func (g *Gate) SetEnabled(enabled bool) { g.enabled.Store(enabled) }

// Enabled returns the user enable flag.
func (g *Gate) Enabled() bool { return g.enabled.Load() }

// Toggle flips the enable flag and returns the new value.
func (g *Gate) Toggle() bool {
	for {
		old := g.enabled.Load()
		if g.enabled.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// State returns the result of the most recent Evaluate.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Evaluate recomputes the gate state for this frame. It returns nil when the
// gate is Active, otherwise the reason it is Inactive: ErrUnsupportedDevice,
// ErrEffectDisabled or ErrShaderNotReady (wrapping the load error when the
// program failed to load).
func (g *Gate) Evaluate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.latched {
		g.latched = true
		if g.caps == nil || !g.caps.SupportsCompute() {
			g.unsupported = true
			Logger().Warn(unsupportedMessage)
		}
	}

	reason := g.check()
	state := GateActive
	if reason != nil {
		state = GateInactive
	}
	if state != g.state || !sameReason(reason, g.reason) {
		Logger().Debug("fsr: gate transition",
			"from", g.state.String(),
			"to", state.String(),
			"reason", reasonString(reason))
	}
	g.state = state
	g.reason = reason
	return reason
}

func (g *Gate) check() error {
	if g.unsupported {
		return ErrUnsupportedDevice
	}
	if !g.enabled.Load() {
		return ErrEffectDisabled
	}
	if g.program == nil || !g.program.IsLoaded() {
		if lr, ok := g.program.(gpucore.LoadReporter); ok {
			if err := lr.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrShaderNotReady, err)
			}
		}
		return ErrShaderNotReady
	}
	return nil
}

func sameReason(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Error() == b.Error()
}

func reasonString(err error) string {
	if err == nil {
		return "ready"
	}
	return err.Error()
}
