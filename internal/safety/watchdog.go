package safety

import (
	"github.com/openefi/ecud/internal/errors"
	"github.com/openefi/ecud/internal/logger"
)

// InitWatchdog registers the control loop with the external watchdog
// facility. Failure disables only this feature: the monitor keeps running
// every other safety check and Check stays fail-open.
func (m *Monitor) InitWatchdog(device WatchdogDevice, timeoutMS uint32) error {
	errFactory := errors.New()

	if device == nil {
		return errFactory.New(errors.ErrInvalidArgument)
	}
	if timeoutMS == 0 {
		return errFactory.WithData(errors.ErrWatchdogInit, timeoutMS)
	}

	feeder, err := device.Register(timeoutMS)
	if err != nil {
		return errFactory.Wrap(errors.ErrWatchdogInit, err)
	}

	m.mu.Lock()
	m.feeder = feeder
	m.watchdog = WatchdogState{
		Enabled:      true,
		TimeoutMS:    timeoutMS,
		LastFeedTime: m.clock.NowMillis(),
	}
	m.mu.Unlock()

	logger.Info().
		Uint32("timeout_ms", timeoutMS).
		Msg("Watchdog registered")

	return nil
}

// FeedWatchdog resets the external watchdog timer and records the feed
// time. It fails if the watchdog was never initialized or the
// registration handle is invalid.
func (m *Monitor) FeedWatchdog() error {
	errFactory := errors.New()

	m.mu.Lock()
	enabled := m.watchdog.Enabled
	feeder := m.feeder
	m.mu.Unlock()

	if !enabled || feeder == nil {
		return errFactory.WithMessage(errors.ErrWatchdogFeed, "watchdog not initialized")
	}

	// The device feed may block; never call it under the lock.
	if err := feeder.Feed(); err != nil {
		return errFactory.Wrap(errors.ErrWatchdogFeed, err)
	}

	m.mu.Lock()
	m.watchdog.LastFeedTime = m.clock.NowMillis()
	m.mu.Unlock()

	return nil
}

// CheckWatchdog reports control-loop liveness without blocking. While the
// watchdog is disabled it returns true: a deliberate fail-open default
// before initialization. The decision to reset on failure belongs to the
// external device, not to this supervisor.
func (m *Monitor) CheckWatchdog() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.watchdog.Enabled {
		return true
	}

	return elapsed(m.clock.NowMillis(), m.watchdog.LastFeedTime) <= m.watchdog.TimeoutMS
}

// WatchdogStatus returns a copied snapshot of the watchdog bookkeeping
func (m *Monitor) WatchdogStatus() WatchdogState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.watchdog
}
