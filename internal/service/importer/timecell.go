package importer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// excelEpoch is day zero of the workbook date system (1899-12-30). The off-by
// -two against 1900-01-01 absorbs the engine's leap-year bug, so serial
// numbers from the archive convert without correction.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var (
	digitsRe    = regexp.MustCompile(`^\d{1,4}$`)
	separatorRe = regexp.MustCompile(`[^\d:]`)
)

// TimeOfDay is a wall-clock time stripped of any date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// At anchors the time of day on the given reference date.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, t.Second, 0, date.Location())
}

func validClock(hh, mm, ss int) bool {
	return hh >= 0 && hh < 24 && mm >= 0 && mm < 60 && ss >= 0 && ss < 60
}

// NormalizeCellTime turns one raw workbook cell into a time of day.
//
// Operators entered times at least five incompatible ways over the years, so
// the cascade tries the most specific reading first and never fails hard:
//
//   - time.Time values keep their clock component
//   - fractions of a day (0.375 -> 09:00)
//   - legacy HHMM numbers (910 -> 09:10, 1330 -> 13:30)
//   - date serial numbers >= 1 (days since the workbook epoch)
//   - strings: "910", "9", "09:10", "09:10:00", "9.10", "9h10"
//
// The second return is false when no reading applies.
func NormalizeCellTime(value any) (TimeOfDay, bool) {
	switch v := value.(type) {
	case nil:
		return TimeOfDay{}, false
	case time.Time:
		return TimeOfDay{v.Hour(), v.Minute(), v.Second()}, true
	case float64:
		return numericToTime(v)
	case float32:
		return numericToTime(float64(v))
	case int:
		return numericToTime(float64(v))
	case int64:
		return numericToTime(float64(v))
	case string:
		return stringToTime(v)
	}
	return TimeOfDay{}, false
}

func numericToTime(v float64) (TimeOfDay, bool) {
	// Fraction of a day, e.g. 0.375 -> 09:00.
	if v >= 0.0 && v < 1.0 {
		seconds := int(math.Round(v * 86400))
		hh := seconds / 3600
		mm := (seconds % 3600) / 60
		ss := seconds % 60
		if !validClock(hh, mm, ss) {
			return TimeOfDay{}, false
		}
		return TimeOfDay{hh, mm, ss}, true
	}

	// Legacy HHMM integer, e.g. 910 -> 09:10. Values like 2360 fail the
	// minute check and fall through to the serial-date reading.
	if v >= 0 && v < 2400 {
		intv := int(math.Round(v))
		hh := intv / 100
		mm := intv % 100
		if validClock(hh, mm, 0) {
			return TimeOfDay{hh, mm, 0}, true
		}
	}

	// Date serial number counted from the workbook epoch.
	if v >= 1 {
		dt := excelEpoch.Add(time.Duration(math.Round(v*86400)) * time.Second)
		return TimeOfDay{dt.Hour(), dt.Minute(), dt.Second()}, true
	}

	return TimeOfDay{}, false
}

func stringToTime(s string) (TimeOfDay, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimeOfDay{}, false
	}

	// Pure digits: "9" means 09:00, "910" and "0910" mean 09:10.
	if digitsRe.MatchString(s) {
		intv, err := strconv.Atoi(s)
		if err == nil && intv >= 0 && intv < 2400 {
			hh := intv / 100
			mm := intv % 100
			if len(s) <= 2 && intv < 24 {
				hh = intv
				mm = 0
			}
			if validClock(hh, mm, 0) {
				return TimeOfDay{hh, mm, 0}, true
			}
		}
		return TimeOfDay{}, false
	}

	for _, layout := range []string{"15:04:05", "15:04", "1504"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{t.Hour(), t.Minute(), t.Second()}, true
		}
	}

	// Odd separators like "9.10" or "9h10": treat every non-digit as a colon.
	parts := strings.Split(separatorRe.ReplaceAllString(s, ":"), ":")
	if len(parts) >= 2 {
		hh, errH := strconv.Atoi(parts[0])
		mm, errM := strconv.Atoi(parts[1])
		if errH == nil && errM == nil && validClock(hh, mm, 0) {
			return TimeOfDay{hh, mm, 0}, true
		}
	}

	return TimeOfDay{}, false
}
