// Package fueltrim implements the closed-loop short-term fuel trim
// controller: a clamped PID on lambda error with a separately clamped
// integrator so the trim recovers quickly after saturation.
package fueltrim

// STFTLimit bounds the short-term trim applied to the fuel calculation
const STFTLimit = 0.25

// Config holds the PID gains and the output clamp
type Config struct {
	Kp        float64
	Ki        float64
	Kd        float64
	OutputMin float64
	OutputMax float64
}

// DefaultConfig returns the stock lambda trim tuning
func DefaultConfig() Config {
	return Config{
		Kp:        0.4,
		Ki:        0.15,
		Kd:        0.0,
		OutputMin: -STFTLimit,
		OutputMax: STFTLimit,
	}
}

// Controller is a discrete clamped PID controller. Not safe for
// concurrent use; the control loop owns it.
type Controller struct {
	cfg Config

	integrator float64
	prevError  float64
	lastOutput float64
}

// New creates a fuel trim controller with the given tuning
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Reset clears the controller state
func (c *Controller) Reset() {
	c.integrator = 0
	c.prevError = 0
	c.lastOutput = 0
}

// Last returns the most recent trim output. Callers hold this value
// while the lambda reading is stale.
func (c *Controller) Last() float64 {
	return c.lastOutput
}

// Update advances the controller one step and returns the clamped trim.
// A non-positive dt returns zero without mutating state.
func (c *Controller) Update(target, measured, dtSeconds float64) float64 {
	if dtSeconds <= 0 {
		return 0
	}

	err := target - measured
	p := c.cfg.Kp * err

	c.integrator += c.cfg.Ki * err * dtSeconds
	c.integrator = clamp(c.integrator, c.cfg.OutputMin, c.cfg.OutputMax)

	d := c.cfg.Kd * (err - c.prevError) / dtSeconds
	c.prevError = err

	c.lastOutput = clamp(p+c.integrator+d, c.cfg.OutputMin, c.cfg.OutputMax)

	return c.lastOutput
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
