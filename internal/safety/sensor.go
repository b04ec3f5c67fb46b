package safety

// ValidateSensor classifies a raw sample against the channel's expected
// envelope. Pure range check: below the envelope reads as a short to
// ground, above it as a short to VCC.
func ValidateSensor(sample, minExpected, maxExpected int) SensorStatus {
	if sample < minExpected {
		return SensorShortGND
	}
	if sample > maxExpected {
		return SensorShortVCC
	}

	return SensorOK
}

// ValidateMAPSensor classifies a manifold pressure sample (kPa x10)
// against the stock MAP envelope.
func ValidateMAPSensor(sample int) SensorStatus {
	return ValidateSensor(sample, MAPSensorMin, MAPSensorMax)
}

// ValidateMAPSensor classifies a manifold pressure sample against this
// envelope's MAP range.
func (l Limits) ValidateMAPSensor(sample int) SensorStatus {
	return ValidateSensor(sample, l.MAPMin, l.MAPMax)
}
