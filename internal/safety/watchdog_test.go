package safety_test

import (
	"testing"

	"github.com/openefi/ecud/internal/errors"
	"github.com/openefi/ecud/internal/safety"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWatchdog struct {
	registerErr error
	feedErr     error
	feeds       int
	timeoutMS   uint32
}

func (d *fakeWatchdog) Register(timeoutMS uint32) (safety.WatchdogFeeder, error) {
	if d.registerErr != nil {
		return nil, d.registerErr
	}
	d.timeoutMS = timeoutMS
	return d, nil
}

func (d *fakeWatchdog) Feed() error {
	if d.feedErr != nil {
		return d.feedErr
	}
	d.feeds++
	return nil
}

func TestWatchdogFailOpenWhenDisabled(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	assert.True(t, monitor.CheckWatchdog(), "disabled watchdog must report healthy")

	clock.advance(1 << 20)
	assert.True(t, monitor.CheckWatchdog(), "fail-open is independent of elapsed time")
}

func TestWatchdogFeedBeforeInitFails(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	err := monitor.FeedWatchdog()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWatchdogFeed))
}

func TestWatchdogRegistrationFailureDisablesFeatureOnly(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	device := &fakeWatchdog{registerErr: errors.New().New(errors.ErrResourceBusy)}
	err := monitor.InitWatchdog(device, 1000)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWatchdogInit))

	// Everything else keeps working: liveness stays fail-open and the
	// limp state machine is unaffected.
	assert.True(t, monitor.CheckWatchdog())
	assert.True(t, monitor.CheckOverRev(7600))
	assert.True(t, monitor.IsLimpModeActive())
}

func TestWatchdogFeedAndCheck(t *testing.T) {
	clock := &fakeClock{now: 100}
	monitor, _ := newTestMonitor(clock)

	device := &fakeWatchdog{}
	require.NoError(t, monitor.InitWatchdog(device, 1000))
	assert.Equal(t, uint32(1000), device.timeoutMS)

	clock.advance(900)
	assert.True(t, monitor.CheckWatchdog())

	require.NoError(t, monitor.FeedWatchdog())
	assert.Equal(t, 1, device.feeds)

	status := monitor.WatchdogStatus()
	assert.True(t, status.Enabled)
	assert.Equal(t, uint32(1000), status.LastFeedTime)

	clock.advance(1000)
	assert.True(t, monitor.CheckWatchdog(), "exactly timeout_ms since feed is still healthy")

	clock.advance(1)
	assert.False(t, monitor.CheckWatchdog(), "missed cadence must be reported")
}

func TestWatchdogFeedDeviceError(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	device := &fakeWatchdog{}
	require.NoError(t, monitor.InitWatchdog(device, 500))

	device.feedErr = errors.New().New(errors.ErrUnavailable)
	err := monitor.FeedWatchdog()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWatchdogFeed))
}

func TestWatchdogInitValidation(t *testing.T) {
	clock := &fakeClock{}
	monitor, _ := newTestMonitor(clock)

	require.Error(t, monitor.InitWatchdog(nil, 1000))
	require.Error(t, monitor.InitWatchdog(&fakeWatchdog{}, 0))
	assert.True(t, monitor.CheckWatchdog())
}
