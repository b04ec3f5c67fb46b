package safety

// Knock ramp step sizes. Retard ramps in faster than it recovers, a
// deliberate conservative bias.
const (
	knockRetardStep  = 10
	knockRecoverStep = 5
	knockRetardMax   = 100
)

// HandleKnock advances the knock-protection ramp one cycle from the
// externally supplied KnockDetected input. A nil state is a silent no-op
// by contract. Safe for single-task use without locking; when shared
// across tasks the caller serializes access the same way the monitor
// does.
func HandleKnock(k *KnockState) {
	if k == nil {
		return
	}

	if k.KnockDetected {
		k.KnockCount++
		if k.TimingRetard+knockRetardStep < knockRetardMax {
			k.TimingRetard += knockRetardStep
		} else {
			k.TimingRetard = knockRetardMax
		}
		return
	}

	if k.TimingRetard > knockRecoverStep {
		k.TimingRetard -= knockRecoverStep
	} else {
		k.TimingRetard = 0
	}
	if k.KnockCount > 0 {
		k.KnockCount--
	}
}
