package calendar

import (
	"fmt"
	"time"
)

// Hebrew renders the arithmetic Hebrew calendar, e.g. "5 Sivan 5785".
// Months are numbered from Nisan (1); the civil year starts in Tishrei (7).
type Hebrew struct{}

const (
	hebrewEpoch  = -1373427 // fixed day number of 1 Tishrei AM 1
	unixEpochDay = 719163   // fixed day number of 1970-01-01
)

const (
	nisan    = 1
	tishrei  = 7
	adar     = 12
	adarII   = 13
	cheshvan = 8
	kislev   = 9
)

var hebrewMonthNames = [...]string{
	"", "Nisan", "Iyar", "Sivan", "Tammuz", "Av", "Elul",
	"Tishrei", "Cheshvan", "Kislev", "Tevet", "Shevat", "Adar", "Adar II",
}

func (Hebrew) ToLocalCalendar(date time.Time) string {
	y, m, d := HebrewDate(date)
	name := hebrewMonthNames[m]
	if m == adar && hebrewLeapYear(y) {
		name = "Adar I"
	}
	return fmt.Sprintf("%d %s %d", d, name, y)
}

// HebrewDate converts the civil date of t (its year, month and day in t's own
// location) into a Hebrew year, month and day.
func HebrewDate(t time.Time) (year, month, day int) {
	civil := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	fixed := int(civil.Unix()/86400) + unixEpochDay

	approx := int(float64(fixed-hebrewEpoch)/(35975351.0/98496.0)) + 1
	year = approx - 1
	for hebrewNewYear(year+1) <= fixed {
		year++
	}

	month = tishrei
	if fixed >= fixedFromHebrew(year, nisan, 1) {
		month = nisan
	}
	for fixed > fixedFromHebrew(year, month, hebrewMonthLength(month, year)) {
		month++
	}
	day = fixed - fixedFromHebrew(year, month, 1) + 1
	return year, month, day
}

func hebrewLeapYear(y int) bool {
	return mod(7*y+1, 19) < 7
}

func hebrewLastMonth(y int) int {
	if hebrewLeapYear(y) {
		return adarII
	}
	return adar
}

func hebrewElapsedDays(y int) int {
	monthsElapsed := floorDiv(235*y-234, 19)
	partsElapsed := 12084 + 13753*monthsElapsed
	d := 29*monthsElapsed + floorDiv(partsElapsed, 25920)
	if mod(3*(d+1), 7) < 3 {
		return d + 1
	}
	return d
}

func hebrewYearCorrection(y int) int {
	ny0, ny1, ny2 := hebrewElapsedDays(y-1), hebrewElapsedDays(y), hebrewElapsedDays(y+1)
	switch {
	case ny2-ny1 == 356:
		return 2
	case ny1-ny0 == 382:
		return 1
	default:
		return 0
	}
}

func hebrewNewYear(y int) int {
	return hebrewEpoch + hebrewElapsedDays(y) + hebrewYearCorrection(y)
}

func hebrewYearLength(y int) int {
	return hebrewNewYear(y+1) - hebrewNewYear(y)
}

func hebrewMonthLength(m, y int) int {
	switch {
	case m == 2 || m == 4 || m == 6 || m == 10 || m == adarII:
		return 29
	case m == adar && !hebrewLeapYear(y):
		return 29
	case m == cheshvan && mod(hebrewYearLength(y), 10) != 5:
		return 29
	case m == kislev && mod(hebrewYearLength(y), 10) == 3:
		return 29
	default:
		return 30
	}
}

func fixedFromHebrew(y, m, d int) int {
	fixed := hebrewNewYear(y) + d - 1
	if m < tishrei {
		for k := tishrei; k <= hebrewLastMonth(y); k++ {
			fixed += hebrewMonthLength(k, y)
		}
		for k := nisan; k < m; k++ {
			fixed += hebrewMonthLength(k, y)
		}
		return fixed
	}
	for k := tishrei; k < m; k++ {
		fixed += hebrewMonthLength(k, y)
	}
	return fixed
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	return a - b*floorDiv(a, b)
}
