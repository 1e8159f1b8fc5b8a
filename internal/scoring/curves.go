package scoring

// Each curve below maps a raw attribute count to a 100-point sub-score.
// Curves are shared across device classes; only the weights differ.

func reallocatedCurve(raw uint64) float64 {
	switch {
	case raw == 0:
		return 100
	case raw <= 10:
		return 90
	case raw <= 100:
		return 70
	case raw <= 500:
		return 40
	case raw <= 1000:
		return 20
	case raw <= 5000:
		return 5
	case raw <= 10000:
		return -10
	case raw <= 20000:
		return -50
	default:
		return -100
	}
}

func pendingCurve(raw uint64) float64 {
	switch {
	case raw == 0:
		return 100
	case raw == 1:
		return 85
	case raw <= 5:
		return 60
	case raw <= 20:
		return 30
	case raw <= 100:
		return 10
	case raw <= 300:
		return -30
	case raw <= 500:
		return -70
	default:
		return -100
	}
}

func powerCycleCurve(raw uint64) float64 {
	switch {
	case raw < 1000:
		return 100
	case raw < 5000:
		return 90
	case raw < 10000:
		return 80
	case raw < 20000:
		return 70
	case raw < 50000:
		return 50
	default:
		return 30
	}
}

func reportedUncorrectableCurve(raw uint64) float64 {
	switch {
	case raw == 0:
		return 100
	case raw == 1:
		return 60
	case raw <= 5:
		return 20
	case raw <= 10:
		return -30
	case raw <= 20:
		return -70
	default:
		return -100
	}
}

func commandTimeoutCurve(raw uint64) float64 {
	switch {
	case raw == 0:
		return 100
	case raw <= 5:
		return 70
	case raw <= 50:
		return 40
	case raw <= 200:
		return 20
	default:
		return 0
	}
}

func ageCurve(years float64) float64 {
	switch {
	case years < 2:
		return 100
	case years < 3:
		return 90
	case years < 5:
		return 70
	case years < 7:
		return 50
	case years < 10:
		return 30
	default:
		return 10
	}
}

func temperatureCurveHDD(celsius uint64) float64 {
	switch {
	case celsius < 35:
		return 100
	case celsius < 40:
		return 90
	case celsius < 45:
		return 70
	case celsius < 50:
		return 40
	default:
		return 10
	}
}

// temperatureCurveSSD decreases linearly from 100 at 50C to 0 at 70C, and
// holds at 10 above 70C (an SSD that survives past the linear floor isn't
// truly dead, so it doesn't score a flat zero).
func temperatureCurveSSD(celsius uint64) float64 {
	switch {
	case celsius < 50:
		return 100
	case celsius < 70:
		span := float64(70 - 50)
		return 100 * (1 - float64(celsius-50)/span)
	default:
		return 10
	}
}

// wearCurve scores SSD lifetime wear given the raw total_lbas_written
// counter and a rated endurance expressed in the same unit.
func wearCurve(written, ratedEndurance uint64) float64 {
	if ratedEndurance == 0 {
		return 100
	}
	wearPct := float64(written) / float64(ratedEndurance) * 100
	score := 100 - wearPct*1.5
	if score < 0 {
		return 0
	}
	return score
}

// percentLifetimePenalty is added (additively, after the weighted sum) based
// on SMART ID 202's remaining-lifetime percentage.
func percentLifetimePenalty(pctRemaining uint64) float64 {
	switch {
	case pctRemaining <= 5:
		return -35
	case pctRemaining == 6:
		return -20
	case pctRemaining == 7:
		return -17
	case pctRemaining == 8:
		return -14
	case pctRemaining == 9:
		return -11
	case pctRemaining == 10:
		return -10
	case pctRemaining <= 20:
		// linear from -10 at 10% to 0 at 20%
		frac := float64(pctRemaining-10) / 10
		return -10 * (1 - frac)
	default:
		return 0
	}
}
