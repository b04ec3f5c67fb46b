package safety

// Acceleration enrichment: a rising manifold pressure edge signals the
// fuel-trim controller to apply a bounded transient enrichment. Intensity
// and duration are fixed by calibration, not computed here.
const (
	accelEnrichThreshold     = 5
	accelEnrichFactorPercent = 150
	accelEnrichDurationMS    = 200
)

// ShouldApplyAccelEnrichment reports whether the MAP delta between two
// consecutive readings exceeds the tip-in threshold.
func ShouldApplyAccelEnrichment(currentMAP, previousMAP int) bool {
	return currentMAP-previousMAP > accelEnrichThreshold
}

// AccelEnrichmentFactor returns the enrichment intensity in percent
func AccelEnrichmentFactor() uint16 {
	return accelEnrichFactorPercent
}

// AccelEnrichmentDuration returns how long the enrichment is held, in
// milliseconds
func AccelEnrichmentDuration() uint32 {
	return accelEnrichDurationMS
}
