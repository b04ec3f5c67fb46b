package safety_test

import (
	"testing"

	"github.com/openefi/ecud/internal/safety"
	"github.com/stretchr/testify/assert"
)

func TestValidateSensorBoundaries(t *testing.T) {
	const minExpected, maxExpected = 100, 900

	assert.Equal(t, safety.SensorOK, safety.ValidateSensor(minExpected, minExpected, maxExpected))
	assert.Equal(t, safety.SensorOK, safety.ValidateSensor(maxExpected, minExpected, maxExpected))
	assert.Equal(t, safety.SensorShortGND, safety.ValidateSensor(minExpected-1, minExpected, maxExpected))
	assert.Equal(t, safety.SensorShortVCC, safety.ValidateSensor(maxExpected+1, minExpected, maxExpected))
}

func TestValidateMAPSensor(t *testing.T) {
	assert.Equal(t, safety.SensorOK, safety.ValidateMAPSensor(safety.MAPSensorMin))
	assert.Equal(t, safety.SensorOK, safety.ValidateMAPSensor(safety.MAPSensorMax))
	assert.Equal(t, safety.SensorShortGND, safety.ValidateMAPSensor(safety.MAPSensorMin-1))
	assert.Equal(t, safety.SensorShortVCC, safety.ValidateMAPSensor(safety.MAPSensorMax+1))
}

func TestSensorStatusString(t *testing.T) {
	assert.Equal(t, "ok", safety.SensorOK.String())
	assert.Equal(t, "short_gnd", safety.SensorShortGND.String())
	assert.Equal(t, "short_vcc", safety.SensorShortVCC.String())
}

func TestDecivolts(t *testing.T) {
	assert.InDelta(t, 13.8, safety.Decivolts(138).Volts(), 0.001)
}
