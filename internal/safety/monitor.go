package safety

import (
	"sync"

	"github.com/openefi/ecud/internal/logger"
)

// Limp-mode targets applied by the actuation layer while degraded
const (
	limpRPMLimit     = 3000
	limpVEValue      = 800  // VE x10
	limpTimingValue  = 100  // degrees x10
	limpLambdaTarget = 1000 // lambda x1000
)

// Monitor is the shared safety aggregate: limp status, recovery
// hysteresis and watchdog bookkeeping behind a single lock. It is touched
// from the control-loop task and from diagnostics readers, so every
// method keeps its critical section short and performs no logging or
// other potentially blocking call while the lock is held.
type Monitor struct {
	mu sync.Mutex

	clock  Clock
	limits Limits
	events logger.EventSink

	limp           LimpStatus
	conditionsSafe bool
	recoveryStart  uint32

	watchdog WatchdogState
	feeder   WatchdogFeeder
}

// NewMonitor creates an independent safety monitor. A nil clock selects
// the runtime monotonic clock and a nil sink the structured logger, so
// tests can instantiate isolated monitors with fakes.
func NewMonitor(clock Clock, limits Limits, events logger.EventSink) *Monitor {
	if clock == nil {
		clock = NewMonotonicClock()
	}
	if events == nil {
		events = logger.DefaultEventSink()
	}

	return &Monitor{
		clock:  clock,
		limits: limits,
		events: events,
		limp: LimpStatus{
			Active:       false,
			RPMLimit:     limpRPMLimit,
			VEValue:      limpVEValue,
			TimingValue:  limpTimingValue,
			LambdaTarget: limpLambdaTarget,
		},
	}
}

// ActivateLimpMode forces the degraded envelope. Re-invocation while
// already active is a no-op: the entry is checked and short-circuited
// before any mutation, so the activation timestamp is stamped and the
// fault event emitted at most once per entry.
func (m *Monitor) ActivateLimpMode(cause string, value uint32) {
	m.mu.Lock()
	if m.limp.Active {
		m.mu.Unlock()
		return
	}
	m.limp.Active = true
	m.limp.ActivationTime = m.clock.NowMillis()
	m.mu.Unlock()

	m.events.LogEvent(cause, value)
	logger.Warn().
		Str("cause", cause).
		Uint32("value", value).
		Msg("Limp mode activated")
}

// DeactivateLimpMode polls the recovery gates and clears limp mode when
// all of them pass: minimum dwell since activation, conditions currently
// asserted safe, and the safe assertion held for the full hysteresis
// window. Any unmet gate leaves state unchanged. There are no
// timer-driven transitions; recovery happens only on these polls.
func (m *Monitor) DeactivateLimpMode() bool {
	m.mu.Lock()
	if !m.limp.Active {
		m.mu.Unlock()
		return false
	}

	now := m.clock.NowMillis()

	// Dwell gate holds even when conditions are already safe, to stop
	// chattering under noisy transients.
	if elapsed(now, m.limp.ActivationTime) < m.limits.LimpDwellMS {
		m.mu.Unlock()
		return false
	}

	if !m.conditionsSafe {
		m.mu.Unlock()
		return false
	}

	if elapsed(now, m.recoveryStart) < m.limits.LimpHysteresisMS {
		m.mu.Unlock()
		return false
	}

	timeInLimp := elapsed(now, m.limp.ActivationTime)
	m.limp.Active = false
	m.limp.ActivationTime = 0
	m.conditionsSafe = false
	m.recoveryStart = 0
	m.mu.Unlock()

	logger.Info().
		Uint32("time_in_limp_ms", timeInLimp).
		Msg("Limp mode deactivated, auto recovery")

	return true
}

// MarkConditionsSafe drives the recovery hysteresis window. Asserting
// true starts the window (or confirms a running one); asserting false at
// any point resets it, so the safe condition must hold continuously for
// the full window, not merely at the instant recovery is polled.
func (m *Monitor) MarkConditionsSafe(safe bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !safe {
		m.conditionsSafe = false
		m.recoveryStart = 0
		return
	}

	if !m.conditionsSafe {
		m.conditionsSafe = true
		m.recoveryStart = m.clock.NowMillis()
	}
}

// IsLimpModeActive reports whether the degraded envelope is in force
func (m *Monitor) IsLimpModeActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.limp.Active
}

// LimpModeStatus returns a copied snapshot; callers never observe a torn
// read nor hold the lock.
func (m *Monitor) LimpModeStatus() LimpStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.limp
}

// CheckOverRev classifies rpm against the fuel-cut and hard limits and
// enters limp mode on violation
func (m *Monitor) CheckOverRev(rpm uint16) bool {
	if rpm >= m.limits.FuelCutRPM || rpm > m.limits.MaxRPM {
		m.ActivateLimpMode(CauseOverRev, uint32(rpm))
		return true
	}

	return false
}

// CheckOverheat classifies coolant temperature and enters limp mode on
// violation
func (m *Monitor) CheckOverheat(tempC int16) bool {
	if tempC > m.limits.OverheatTempC {
		m.ActivateLimpMode(CauseOverheat, uint32(uint16(tempC)))
		return true
	}

	return false
}

// CheckBatteryVoltage classifies battery voltage (decivolts) and enters
// limp mode when outside the envelope
func (m *Monitor) CheckBatteryVoltage(voltage Decivolts) bool {
	if voltage < m.limits.VBatMin || voltage > m.limits.VBatMax {
		m.ActivateLimpMode(CauseBattery, uint32(voltage))
		return true
	}

	return false
}

// CheckMAPSensor validates a manifold pressure sample against this
// monitor's envelope and enters limp mode on a sensor fault
func (m *Monitor) CheckMAPSensor(sample int) SensorStatus {
	status := m.limits.ValidateMAPSensor(sample)
	if status != SensorOK {
		m.ActivateLimpMode(CauseSensorFault, uint32(sample))
	}

	return status
}
