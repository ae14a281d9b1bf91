package features

import (
	"math"
	"time"
)

// temporalFeatures is stage 9: cyclic calendar encodings plus session and
// calendar-boundary flags. All clock math is UTC.
func (e *Engineer) temporalFeatures(f *Frame) {
	n := f.Len()
	hourSin := make([]float64, n)
	hourCos := make([]float64, n)
	dowSin := make([]float64, n)
	dowCos := make([]float64, n)
	weekSin := make([]float64, n)
	weekCos := make([]float64, n)
	monthSin := make([]float64, n)
	monthCos := make([]float64, n)
	weekend := make([]float64, n)
	monthStart := make([]float64, n)
	monthEnd := make([]float64, n)
	quarterEnd := make([]float64, n)
	asia := make([]float64, n)
	us := make([]float64, n)

	for i, ts := range f.Times {
		t := ts.UTC()
		h := float64(t.Hour()) + float64(t.Minute())/60
		hourSin[i] = math.Sin(2 * math.Pi * h / 24)
		hourCos[i] = math.Cos(2 * math.Pi * h / 24)

		dow := float64(t.Weekday())
		dowSin[i] = math.Sin(2 * math.Pi * dow / 7)
		dowCos[i] = math.Cos(2 * math.Pi * dow / 7)

		_, week := t.ISOWeek()
		weekSin[i] = math.Sin(2 * math.Pi * float64(week) / 53)
		weekCos[i] = math.Cos(2 * math.Pi * float64(week) / 53)

		m := float64(t.Month())
		monthSin[i] = math.Sin(2 * math.Pi * m / 12)
		monthCos[i] = math.Cos(2 * math.Pi * m / 12)

		if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			weekend[i] = 1
		}
		if t.Day() <= 2 {
			monthStart[i] = 1
		}
		lastDay := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
		if t.Day() >= lastDay-1 {
			monthEnd[i] = 1
			if t.Month() == time.March || t.Month() == time.June ||
				t.Month() == time.September || t.Month() == time.December {
				quarterEnd[i] = 1
			}
		}
		// Asia 00-08 UTC, US 13:30-21 UTC
		if t.Hour() < 8 {
			asia[i] = 1
		}
		if (t.Hour() == 13 && t.Minute() >= 30) || (t.Hour() >= 14 && t.Hour() < 21) {
			us[i] = 1
		}
	}

	e.setFeature(f, "hour_sin", hourSin, nil)
	e.setFeature(f, "hour_cos", hourCos, nil)
	e.setFeature(f, "dow_sin", dowSin, nil)
	e.setFeature(f, "dow_cos", dowCos, nil)
	e.setFeature(f, "week_sin", weekSin, nil)
	e.setFeature(f, "week_cos", weekCos, nil)
	e.setFeature(f, "month_sin", monthSin, nil)
	e.setFeature(f, "month_cos", monthCos, nil)
	e.setFeature(f, "is_weekend", weekend, nil)
	e.setFeature(f, "is_month_start", monthStart, nil)
	e.setFeature(f, "is_month_end", monthEnd, nil)
	e.setFeature(f, "is_quarter_end", quarterEnd, nil)
	e.setFeature(f, "is_asia_session", asia, nil)
	e.setFeature(f, "is_us_session", us, nil)
}
