package tracker

// The guard comparator works in fixed-point micro-degrees so the decimal
// ASCII coordinates never round-trip through floating point. 2700 micro
// degrees is roughly 300 meters of latitude.

// microDegrees parses a decimal-ASCII coordinate into signed
// micro-degrees. Fraction digits beyond the sixth are ignored.
func microDegrees(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}

	i := 0
	neg := false
	switch s[0] {
	case '-':
		neg = true
		i++
	case '+':
		i++
	}

	var whole int64
	digits := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		whole = whole*10 + int64(s[i]-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}

	var frac int64
	if i < len(s) {
		if s[i] != '.' {
			return 0, false
		}
		i++

		places := 0
		for ; i < len(s) && places < 6; i++ {
			c := s[i]
			if c < '0' || c > '9' {
				return 0, false
			}
			frac = frac*10 + int64(c-'0')
			places++
		}
		for ; places < 6; places++ {
			frac = frac * 10
		}
		// drop any extra precision
		for ; i < len(s); i++ {
			if s[i] < '0' || s[i] > '9' {
				return 0, false
			}
		}
	}

	micro := whole*1_000_000 + frac
	if neg {
		micro = -micro
	}
	return micro, true
}

// displaced reports whether the position moved more than threshold
// micro-degrees on either axis. The very first guard pass never fires:
// the history starts at the "0" sentinel and a zero previous coordinate
// skips the comparison entirely.
func displaced(prevLat, prevLon, lat, lon string, threshold int64) bool {
	pLat, ok := microDegrees(prevLat)
	if !ok {
		return false
	}
	pLon, ok := microDegrees(prevLon)
	if !ok {
		return false
	}

	// sentinel or equator/meridian start, skip the first comparison
	if pLat == 0 || pLon == 0 {
		return false
	}

	cLat, ok := microDegrees(lat)
	if !ok {
		return false
	}
	cLon, ok := microDegrees(lon)
	if !ok {
		return false
	}

	return abs64(pLat-cLat) > threshold || abs64(pLon-cLon) > threshold
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
