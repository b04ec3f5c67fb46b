package safety

// SensorStatus is the result of classifying one raw sensor sample against
// its expected envelope.
type SensorStatus int

const (
	SensorOK SensorStatus = iota
	SensorShortGND
	SensorShortVCC
)

// String implements the Stringer interface
func (s SensorStatus) String() string {
	switch s {
	case SensorOK:
		return "ok"
	case SensorShortGND:
		return "short_gnd"
	case SensorShortVCC:
		return "short_vcc"
	default:
		return "unknown"
	}
}

// Decivolts is a battery voltage in tenths of a volt. The raw value crosses
// the system boundary as-is; convert to volts only for display.
type Decivolts uint16

// Volts returns the voltage as a float for display purposes
func (d Decivolts) Volts() float64 {
	return float64(d) / 10.0
}

// LimpStatus describes the degraded operating envelope. ActivationTime is
// meaningful only while Active. Values are fixed-point x10 where noted.
type LimpStatus struct {
	Active         bool
	RPMLimit       uint16
	VEValue        uint16 // VE x10
	TimingValue    uint16 // degrees x10
	LambdaTarget   uint16 // lambda x1000
	ActivationTime uint32 // monotonic ms
}

// WatchdogState tracks the logical feed cadence of the control loop.
// While Enabled, LastFeedTime is non-decreasing.
type WatchdogState struct {
	Enabled      bool
	TimeoutMS    uint32
	LastFeedTime uint32
}

// KnockState carries the knock-protection ramp. KnockDetected is the
// externally supplied input for the current cycle; TimingRetard stays
// within [0, 100].
type KnockState struct {
	KnockDetected bool
	KnockCount    uint32
	TimingRetard  uint16
}

// WatchdogDevice is the external hardware/OS watchdog facility the
// supervisor registers with. The device performs the corrective reset;
// the supervisor only tracks cadence.
type WatchdogDevice interface {
	Register(timeoutMS uint32) (WatchdogFeeder, error)
}

// WatchdogFeeder resets the external watchdog timer. Implementations may
// block; the supervisor never calls Feed while holding its lock.
type WatchdogFeeder interface {
	Feed() error
}

// Limits is the safety envelope the monitor enforces. Construct with
// DefaultLimits and override per hardware variant.
type Limits struct {
	MaxRPM        uint16
	FuelCutRPM    uint16
	OverheatTempC int16
	VBatMin       Decivolts
	VBatMax       Decivolts
	MAPMin        int // kPa x10
	MAPMax        int // kPa x10

	LimpDwellMS      uint32
	LimpHysteresisMS uint32
}

const (
	defaultMaxRPM        = 8000
	defaultFuelCutRPM    = 7500
	defaultOverheatTempC = 120
	defaultVBatMin       = Decivolts(70)
	defaultVBatMax       = Decivolts(170)

	// MAP sensor envelope, kPa x10
	MAPSensorMin = 200
	MAPSensorMax = 2500

	// Limp recovery gates: minimum time in limp mode, then how long
	// conditions must stay continuously safe before recovery.
	DefaultLimpDwellMS      = 5000
	DefaultLimpHysteresisMS = 2000
)

// DefaultLimits returns the stock safety envelope
func DefaultLimits() Limits {
	return Limits{
		MaxRPM:           defaultMaxRPM,
		FuelCutRPM:       defaultFuelCutRPM,
		OverheatTempC:    defaultOverheatTempC,
		VBatMin:          defaultVBatMin,
		VBatMax:          defaultVBatMax,
		MAPMin:           MAPSensorMin,
		MAPMax:           MAPSensorMax,
		LimpDwellMS:      DefaultLimpDwellMS,
		LimpHysteresisMS: DefaultLimpHysteresisMS,
	}
}

// Fault cause tags carried on limp-mode entry events
const (
	CauseOverRev     = "OVER_REV"
	CauseOverheat    = "OVERHEAT"
	CauseBattery     = "VBAT"
	CauseSensorFault = "SENSOR_FAULT"
	CauseExternal    = "EXTERNAL"
)

// SensorFrame is one acquisition snapshot supplied by the upstream layer.
// Acquisition itself is out of scope; the supervisor only classifies.
type SensorFrame struct {
	RPM           uint16
	CoolantTempC  int16
	Battery       Decivolts
	MAPKPa10      int
	KnockDetected bool
}

// SensorSource hands out the most recent sensor frame with its age in
// milliseconds. ok is false until the first frame arrives.
type SensorSource interface {
	Latest() (frame SensorFrame, ageMS uint32, ok bool)
}
