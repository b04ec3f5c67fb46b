package telemetry

import (
	"context"
	"time"
)

// Collector defines the core domain interface
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository defines the interface for telemetry data storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

// Snapshot represents one control-loop tick as persisted
type Snapshot struct {
	Timestamp time.Time
	Engine    EngineSample
	Fuel      FuelSample
	Safety    SafetySample
}

// Domain value objects
type EngineSample struct {
	RPM          int
	CoolantTempC int
	BatteryDV    int // decivolts
	MAPKPa10     int // kPa x10
}

type FuelSample struct {
	Lambda    float64
	TrimSTFT  float64
	EnrichPct int
}

type SafetySample struct {
	LimpActive      bool
	TimingRetard    int
	KnockCount      int
	WatchdogHealthy bool
}
