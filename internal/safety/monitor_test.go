package safety_test

import (
	"sync"
	"testing"

	"github.com/openefi/ecud/internal/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now uint32
}

func (c *fakeClock) NowMillis() uint32 {
	return c.now
}

func (c *fakeClock) advance(ms uint32) {
	c.now += ms
}

type eventRecorder struct {
	mu     sync.Mutex
	causes []string
	values []uint32
}

func (r *eventRecorder) LogEvent(cause string, value uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes = append(r.causes, cause)
	r.values = append(r.values, value)
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.causes)
}

func newTestMonitor(clock *fakeClock) (*safety.Monitor, *eventRecorder) {
	events := &eventRecorder{}
	return safety.NewMonitor(clock, safety.DefaultLimits(), events), events
}

func TestActivateLimpModeIdempotent(t *testing.T) {
	clock := &fakeClock{now: 1000}
	monitor, events := newTestMonitor(clock)

	monitor.ActivateLimpMode(safety.CauseOverRev, 7800)
	first := monitor.LimpModeStatus()
	require.True(t, first.Active)
	assert.Equal(t, uint32(1000), first.ActivationTime)

	clock.advance(500)
	monitor.ActivateLimpMode(safety.CauseOverRev, 7900)
	second := monitor.LimpModeStatus()

	assert.Equal(t, first.ActivationTime, second.ActivationTime,
		"re-activation must not restamp the activation time")
	assert.Equal(t, 1, events.count(), "expected exactly one event per entry")
	assert.Equal(t, safety.CauseOverRev, events.causes[0])
	assert.Equal(t, uint32(7800), events.values[0])
}

func TestDeactivateRespectsDwell(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	monitor.ActivateLimpMode(safety.CauseOverheat, 130)
	monitor.MarkConditionsSafe(true)

	// Even with conditions safe the whole time, nothing before the dwell
	// boundary may recover.
	for _, offset := range []uint32{0, 1, 100, 2500, 4999} {
		clock.now = offset
		assert.False(t, monitor.DeactivateLimpMode(), "recovered at t=%d inside dwell", offset)
		assert.True(t, monitor.IsLimpModeActive())
	}
}

func TestHysteresisResetOnUnsafe(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	monitor.ActivateLimpMode(safety.CauseBattery, 65)

	clock.now = 5000
	monitor.MarkConditionsSafe(true)

	clock.now = 6000
	monitor.MarkConditionsSafe(false) // transient fault inside the window

	clock.now = 7100
	monitor.MarkConditionsSafe(true)

	// Old window would have expired at 7000; the new one runs to 9100.
	clock.now = 8000
	assert.False(t, monitor.DeactivateLimpMode(), "recovery window must restart after unsafe mark")
	assert.True(t, monitor.IsLimpModeActive())

	clock.now = 9100
	assert.True(t, monitor.DeactivateLimpMode())
	assert.False(t, monitor.IsLimpModeActive())
}

func TestEndToEndRecovery(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	clock.now = 0
	monitor.ActivateLimpMode(safety.CauseOverRev, 7600)

	clock.now = 5001
	monitor.MarkConditionsSafe(true)

	clock.now = 5500
	assert.False(t, monitor.DeactivateLimpMode(), "hysteresis not yet satisfied")
	assert.True(t, monitor.IsLimpModeActive())

	clock.now = 7002
	assert.True(t, monitor.DeactivateLimpMode(), "dwell and hysteresis both satisfied")

	status := monitor.LimpModeStatus()
	assert.False(t, status.Active)
	assert.Equal(t, uint32(0), status.ActivationTime)
}

func TestMarkConditionsSafeConfirmsRunningWindow(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	monitor.ActivateLimpMode(safety.CauseOverheat, 125)

	clock.now = 5000
	monitor.MarkConditionsSafe(true)
	clock.now = 6000
	monitor.MarkConditionsSafe(true) // must confirm, not restart

	clock.now = 7000
	assert.True(t, monitor.DeactivateLimpMode())
}

func TestRecoveryToleratesClockWraparound(t *testing.T) {
	clock := &fakeClock{now: ^uint32(0) - 1000}
	monitor, _ := newTestMonitor(clock)

	monitor.ActivateLimpMode(safety.CauseSensorFault, 42)

	clock.advance(5500) // wraps past zero
	monitor.MarkConditionsSafe(true)

	clock.advance(1999)
	assert.False(t, monitor.DeactivateLimpMode())

	clock.advance(1)
	assert.True(t, monitor.DeactivateLimpMode(), "modular arithmetic must survive one wraparound")
}

func TestDeactivateWithoutSafeMark(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	monitor.ActivateLimpMode(safety.CauseOverRev, 8000)

	clock.now = 60000
	assert.False(t, monitor.DeactivateLimpMode(), "recovery requires an explicit safe assertion")
	assert.True(t, monitor.IsLimpModeActive())
}

func TestCheckOverRev(t *testing.T) {
	clock := &fakeClock{}
	monitor, events := newTestMonitor(clock)

	assert.False(t, monitor.CheckOverRev(7499))
	assert.False(t, monitor.IsLimpModeActive())

	assert.True(t, monitor.CheckOverRev(7500), "fuel-cut rpm is inclusive")
	assert.True(t, monitor.IsLimpModeActive())
	require.Equal(t, 1, events.count())
	assert.Equal(t, safety.CauseOverRev, events.causes[0])
	assert.Equal(t, uint32(7500), events.values[0])
}

func TestCheckOverheat(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	assert.False(t, monitor.CheckOverheat(120))
	assert.True(t, monitor.CheckOverheat(121))
	assert.True(t, monitor.IsLimpModeActive())
}

func TestCheckBatteryVoltage(t *testing.T) {
	clock := &fakeClock{}
	monitor, events := newTestMonitor(clock)

	assert.False(t, monitor.CheckBatteryVoltage(safety.Decivolts(70)))
	assert.False(t, monitor.CheckBatteryVoltage(safety.Decivolts(170)))
	assert.False(t, monitor.IsLimpModeActive())

	assert.True(t, monitor.CheckBatteryVoltage(safety.Decivolts(69)))
	require.Equal(t, 1, events.count())
	assert.Equal(t, safety.CauseBattery, events.causes[0])
	assert.Equal(t, uint32(69), events.values[0])

	over := safety.NewMonitor(clock, safety.DefaultLimits(), events)
	assert.True(t, over.CheckBatteryVoltage(safety.Decivolts(171)))
}

func TestCheckMAPSensorFaultEntersLimp(t *testing.T) {
	clock := &fakeClock{}
	monitor, events := newTestMonitor(clock)

	assert.Equal(t, safety.SensorOK, monitor.CheckMAPSensor(1000))
	assert.False(t, monitor.IsLimpModeActive())

	assert.Equal(t, safety.SensorShortGND, monitor.CheckMAPSensor(150))
	assert.True(t, monitor.IsLimpModeActive())
	require.Equal(t, 1, events.count())
	assert.Equal(t, safety.CauseSensorFault, events.causes[0])
}

func TestStatusIsSnapshot(t *testing.T) {
	clock := &fakeClock{now: 77}
	monitor, _ := newTestMonitor(clock)

	monitor.ActivateLimpMode(safety.CauseOverheat, 130)

	status := monitor.LimpModeStatus()
	status.Active = false
	status.RPMLimit = 0

	assert.True(t, monitor.IsLimpModeActive(), "mutating the snapshot must not touch the monitor")
	assert.Equal(t, uint16(3000), monitor.LimpModeStatus().RPMLimit)
}

func TestConcurrentStatusReads(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = monitor.IsLimpModeActive()
				_ = monitor.LimpModeStatus()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		monitor.ActivateLimpMode(safety.CauseExternal, uint32(i))
		monitor.MarkConditionsSafe(i%2 == 0)
	}
	wg.Wait()
}
