package rawdata

var noLeapMonthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// NoLeapMonthStart returns the day offset, on a 365-day calendar, of the
// start of month m counted from zero at the first month of the simulation.
func NoLeapMonthStart(m int) float64 {
	days := (m / 12) * 365
	for i := 0; i < m%12; i++ {
		days += noLeapMonthDays[i]
	}
	return float64(days)
}

// NoLeapMonthBounds returns the start and end day offsets of month m.
func NoLeapMonthBounds(m int) [2]float64 {
	return [2]float64{NoLeapMonthStart(m), NoLeapMonthStart(m + 1)}
}

// NoLeapMonthIndex returns the month holding day offset d.
func NoLeapMonthIndex(d float64) int {
	if d < 0 {
		return 0
	}
	year := int(d) / 365
	rem := d - float64(year*365)
	m := 0
	for m < 11 && rem >= float64(noLeapMonthDays[m]) {
		rem -= float64(noLeapMonthDays[m])
		m++
	}
	return year*12 + m
}
