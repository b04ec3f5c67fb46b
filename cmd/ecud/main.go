package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openefi/ecud/internal/calib"
	"github.com/openefi/ecud/internal/can"
	"github.com/openefi/ecud/internal/config"
	"github.com/openefi/ecud/internal/errors"
	"github.com/openefi/ecud/internal/fueltrim"
	"github.com/openefi/ecud/internal/logger"
	"github.com/openefi/ecud/internal/pidfile"
	"github.com/openefi/ecud/internal/safety"
	"github.com/openefi/ecud/internal/telemetry"
	"github.com/openefi/ecud/internal/watchdog"
)

const (
	// Readings older than these are not trusted: the lambda cutoff gates
	// closed-loop trim, the frame cutoff gates every safety decision so a
	// silent bus never replays stale data through the checks.
	lambdaMaxAgeMS      = 200
	sensorFrameMaxAgeMS = 500

	stoichLambda = 1.0
)

// EngineState is the per-tick view the loop logs and records
type EngineState struct {
	RPM             int
	CoolantTempC    int
	BatteryDV       int
	MAPKPa10        int
	MAPStatus       safety.SensorStatus
	Lambda          float64
	LambdaAgeMS     int
	LambdaValid     bool
	TrimSTFT        float64
	EnrichPct       int
	LimpActive      bool
	TimingRetard    int
	KnockCount      int
	WatchdogHealthy bool
}

var (
	cfg         *config.Config
	clock       safety.Clock
	monitor     *safety.Monitor
	receiver    *can.Receiver
	canSocket   *can.Socket
	wdgDevice   *watchdog.Device
	trim        *fueltrim.Controller
	collector   telemetry.Collector
	maps        *calib.Maps
	knock       safety.KnockState
	prevMAP     int
	havePrevMAP bool
	enrichStart uint32
	enrichOn    bool
	wdgAlarm    healthLatch
)

// healthLatch reports only transitions into the unhealthy state, so a
// stuck loop logs its watchdog failure once instead of every tick.
type healthLatch struct {
	unhealthy bool
}

func (l *healthLatch) observe(healthy bool) bool {
	if healthy {
		l.unhealthy = false
		return false
	}
	if l.unhealthy {
		return false
	}
	l.unhealthy = true

	return true
}

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pidfile.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pidfile.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	clock = safety.NewMonotonicClock()
	monitor = safety.NewMonitor(clock, limitsFromConfig(cfg), logger.DefaultEventSink())
	trim = fueltrim.New(fueltrim.DefaultConfig())

	loadCalibration()

	var err error
	collector, err = telemetry.NewService(telemetryConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry")
	}

	receiver = can.NewReceiver(clock)
	canSocket, err = can.DialSocket(cfg.CANInterface)
	if err != nil {
		logger.Fatal().Err(err).Str("interface", cfg.CANInterface).Msg("failed to open CAN socket")
	}

	if !cfg.Monitor {
		wdgDevice = watchdog.NewDevice(cfg.WatchdogDevice)
		if err := monitor.InitWatchdog(wdgDevice, uint32(cfg.WatchdogTimeoutMS)); err != nil {
			logger.Warn().Err(err).Msg("watchdog unavailable, running without hardware supervision")
			wdgDevice = nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	go func() {
		if err := receiver.Run(ctx, canSocket); err != nil {
			logger.Error().Err(err).Msg("CAN receive loop stopped")
		}
	}()

	if err := loop(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	cleanup()
}

func loop(ctx context.Context) error {
	errFactory := errors.New()

	if cfg.IntervalMS <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, cfg.IntervalMS)
	}

	interval := time.Duration(cfg.IntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging safety state...")
	}

	dt := float64(cfg.IntervalMS) / 1000.0

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			state := tick(ctx, dt)
			logEngineState(state)
		}
	}
}

func tick(ctx context.Context, dt float64) EngineState {
	state := EngineState{EnrichPct: 100}

	frame, ageMS, ok := receiver.Latest()
	if ok && ageMS > sensorFrameMaxAgeMS {
		ok = false
	}
	if ok {
		state.RPM = int(frame.RPM)
		state.CoolantTempC = int(frame.CoolantTempC)
		state.BatteryDV = int(frame.Battery)
		state.MAPKPa10 = frame.MAPKPa10

		state.MAPStatus = monitor.CheckMAPSensor(frame.MAPKPa10)
		overRev := monitor.CheckOverRev(frame.RPM)
		overheat := monitor.CheckOverheat(frame.CoolantTempC)
		badBattery := monitor.CheckBatteryVoltage(frame.Battery)

		monitor.MarkConditionsSafe(state.MAPStatus == safety.SensorOK &&
			!overRev && !overheat && !badBattery)
		if monitor.IsLimpModeActive() {
			monitor.DeactivateLimpMode()
		}

		knock.KnockDetected = frame.KnockDetected
		safety.HandleKnock(&knock)

		state.EnrichPct = updateEnrichment(frame.MAPKPa10)
		state.TrimSTFT = updateFuelTrim(&state, frame, dt)
	} else {
		// No frame, or one past the freshness gate: the daemon is blind,
		// so the recovery window must not keep running.
		monitor.MarkConditionsSafe(false)
	}

	state.LimpActive = monitor.IsLimpModeActive()
	state.TimingRetard = int(knock.TimingRetard)
	state.KnockCount = int(knock.KnockCount)

	feedWatchdog()
	state.WatchdogHealthy = monitor.CheckWatchdog()
	if wdgAlarm.observe(state.WatchdogHealthy) {
		logger.ErrorWithCode(errors.New().New(errors.ErrWatchdogExpired)).Msg("Watchdog feed cadence exceeded timeout")
	}

	recordTelemetry(ctx, &state)

	return state
}

// updateEnrichment runs the acceleration enrichment gate against the MAP
// delta since the previous tick and returns the fuel factor in percent.
func updateEnrichment(mapKPa10 int) int {
	now := clock.NowMillis()

	if havePrevMAP && safety.ShouldApplyAccelEnrichment(mapKPa10, prevMAP) {
		enrichStart = now
		enrichOn = true
	}
	prevMAP = mapKPa10
	havePrevMAP = true

	if enrichOn && now-enrichStart > safety.AccelEnrichmentDuration() {
		enrichOn = false
	}

	if enrichOn {
		return int(safety.AccelEnrichmentFactor())
	}
	return 100
}

// updateFuelTrim closes the lambda loop when a fresh wideband reading is
// available. Stale readings hold the previous trim output.
func updateFuelTrim(state *EngineState, frame safety.SensorFrame, dt float64) float64 {
	lambda, ageMS, ok := receiver.LatestLambda()
	state.Lambda = lambda
	state.LambdaAgeMS = int(ageMS)

	if !ok || ageMS > lambdaMaxAgeMS {
		return trim.Last()
	}
	state.LambdaValid = true

	return trim.Update(lambdaTarget(frame), lambda, dt)
}

// lambdaTarget picks the closed-loop target: the limp-mode fixed target
// while degraded, the calibration table when present, stoich otherwise.
func lambdaTarget(frame safety.SensorFrame) float64 {
	if status := monitor.LimpModeStatus(); status.Active {
		return float64(status.LambdaTarget) / 1000.0
	}
	if maps != nil {
		return float64(maps.Lambda.Lookup(frame.RPM, uint16(frame.MAPKPa10))) / 1000.0
	}
	return stoichLambda
}

func feedWatchdog() {
	if !monitor.WatchdogStatus().Enabled {
		return
	}
	if err := monitor.FeedWatchdog(); err != nil {
		logger.Error().Err(err).Msg("failed to feed watchdog")
	}
}

func recordTelemetry(ctx context.Context, state *EngineState) {
	snapshot := &telemetry.Snapshot{
		Timestamp: time.Now(),
		Engine: telemetry.EngineSample{
			RPM:          state.RPM,
			CoolantTempC: state.CoolantTempC,
			BatteryDV:    state.BatteryDV,
			MAPKPa10:     state.MAPKPa10,
		},
		Fuel: telemetry.FuelSample{
			Lambda:    state.Lambda,
			TrimSTFT:  state.TrimSTFT,
			EnrichPct: state.EnrichPct,
		},
		Safety: telemetry.SafetySample{
			LimpActive:      state.LimpActive,
			TimingRetard:    state.TimingRetard,
			KnockCount:      state.KnockCount,
			WatchdogHealthy: state.WatchdogHealthy,
		},
	}

	if err := collector.Record(ctx, snapshot); err != nil {
		logger.Error().Err(err).Msg("failed to record telemetry")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	if err := canSocket.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close CAN socket")
	}
	if wdgDevice != nil {
		if err := wdgDevice.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to disarm watchdog")
		}
	}
	if err := collector.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close telemetry")
	}
	logger.Info().Msg("Exiting...")
}

func loadCalibration() {
	store := calib.NewStore(cfg.CalibrationPath)

	loaded, err := store.Load()
	if err != nil {
		logger.Warn().Err(err).
			Str("path", cfg.CalibrationPath).
			Msg("calibration unavailable, running with fixed targets")
		return
	}
	maps = loaded
}

func logEngineState(state EngineState) {
	if cfg.Debug {
		limp := monitor.LimpModeStatus()
		wdg := monitor.WatchdogStatus()

		logger.Debug().
			Int("rpm", state.RPM).
			Int("coolant_temp_c", state.CoolantTempC).
			Float64("battery_v", safety.Decivolts(state.BatteryDV).Volts()).
			Int("map_kpa10", state.MAPKPa10).
			Str("map_status", state.MAPStatus.String()).
			Float64("lambda", state.Lambda).
			Int("lambda_age_ms", state.LambdaAgeMS).
			Bool("lambda_valid", state.LambdaValid).
			Float64("trim_stft", state.TrimSTFT).
			Int("enrich_pct", state.EnrichPct).
			Bool("limp_active", limp.Active).
			Uint16("limp_rpm_limit", limp.RPMLimit).
			Uint32("limp_activation_time", limp.ActivationTime).
			Int("timing_retard", state.TimingRetard).
			Int("knock_count", state.KnockCount).
			Bool("watchdog_enabled", wdg.Enabled).
			Bool("watchdog_healthy", state.WatchdogHealthy).
			Bool("monitor", cfg.Monitor).
			Msg("")
	} else if cfg.Verbose || cfg.Monitor {
		logger.Info().
			Int("rpm", state.RPM).
			Int("coolant_temp_c", state.CoolantTempC).
			Float64("battery_v", safety.Decivolts(state.BatteryDV).Volts()).
			Float64("lambda", state.Lambda).
			Float64("trim_stft", state.TrimSTFT).
			Bool("limp_active", state.LimpActive).
			Int("timing_retard", state.TimingRetard).
			Bool("watchdog_healthy", state.WatchdogHealthy).
			Msg("")
	}
}

func limitsFromConfig(c *config.Config) safety.Limits {
	limits := safety.DefaultLimits()
	limits.MaxRPM = uint16(c.MaxRPM)
	limits.FuelCutRPM = uint16(c.FuelCutRPM)
	limits.OverheatTempC = int16(c.OverheatTempC)
	limits.VBatMin = safety.Decivolts(c.VBatMinDV)
	limits.VBatMax = safety.Decivolts(c.VBatMaxDV)
	limits.MAPMin = c.MAPMinKPa10
	limits.MAPMax = c.MAPMaxKPa10
	limits.LimpDwellMS = uint32(c.LimpDwellMS)
	limits.LimpHysteresisMS = uint32(c.LimpHysteresisMS)

	return limits
}

func telemetryConfig(c *config.Config) telemetry.Config {
	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = c.Telemetry
	if c.TelemetryDB != "" {
		tcfg.DBPath = c.TelemetryDB
	}

	return tcfg
}
