// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.12
//

package rawpvt

import (
	"fmt"
	"math"
	"time"
)

// GPS epoch 1980/1/6 00:00:00
var gpsEpoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

// GTime is GPS time as week number and seconds of week
type GTime struct {
	Week int
	Sec  float64
}

// NewGTime converts a calendar time in the GPS time scale (no leap seconds) to GTime
func NewGTime(dt time.Time) *GTime {
	t := dt.Unix()
	t -= gpsEpoch.Unix() // Elapsed seconds since 1980/1/6 00:00:00
	return &GTime{
		Week: int(t / (3600 * 24 * 7)),
		Sec:  float64(t%(3600*24*7)) + float64(dt.Nanosecond())/1000000000,
	}
}

// NewGTimeFct splits full cycle time (seconds since the GPS epoch) into week and seconds
func NewGTimeFct(fct float64) GTime {
	w := math.Floor(fct / WEEKSEC)
	return GTime{Week: int(w), Sec: fct - w*WEEKSEC}
}

// Fct returns full cycle time. Weeks are added first to keep precision.
func (p GTime) Fct() float64 {
	return float64(p.Week)*WEEKSEC + p.Sec
}

// ToTime returns the calendar time in the GPS time scale (no leap seconds)
func (p GTime) ToTime() time.Time {
	o := gpsEpoch.Unix()
	i := int64(math.Floor(p.Sec))
	t := int64(3600*24*7*p.Week) + i + o
	n := int64((p.Sec - float64(i)) * 1e9)
	return time.Unix(t, n).UTC()
}

func (p GTime) String() string {
	return fmt.Sprintf("week%d %.3fs", p.Week, p.Sec)
}

// UtcTime is a broken down UTC calendar time
type UtcTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second float64
}

func NewUtcTime(t time.Time) UtcTime {
	t = t.UTC()
	return UtcTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: float64(t.Second()) + float64(t.Nanosecond())*1e-9,
	}
}

func (u UtcTime) ToTime() time.Time {
	s := math.Floor(u.Second)
	return time.Date(u.Year, time.Month(u.Month), u.Day, u.Hour, u.Minute, int(s), int(math.Round((u.Second-s)*1e9)), time.UTC)
}

func (u UtcTime) String() string {
	return fmt.Sprintf("%04d/%02d/%02d %02d:%02d:%09.6f", u.Year, u.Month, u.Day, u.Hour, u.Minute, u.Second)
}

// Check calendar fields
func (u UtcTime) validate() error {
	if u.Year < 1980 || u.Year > 2099 {
		return fmt.Errorf("%w: year %d not in [1980,2099]", ErrRange, u.Year)
	}
	if u.Month < 1 || u.Month > 12 {
		return fmt.Errorf("%w: month %d", ErrRange, u.Month)
	}
	// Day 0 of the next month is the last day of this month
	dim := time.Date(u.Year, time.Month(u.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if u.Day < 1 || u.Day > dim {
		return fmt.Errorf("%w: day %d", ErrRange, u.Day)
	}
	if u.Hour < 0 || u.Hour > 23 || u.Minute < 0 || u.Minute > 59 {
		return fmt.Errorf("%w: time of day %02d:%02d", ErrRange, u.Hour, u.Minute)
	}
	// 60.x is accepted for a leap second
	if math.IsNaN(u.Second) || u.Second < 0 || u.Second >= 61 {
		return fmt.Errorf("%w: second %f", ErrRange, u.Second)
	}
	return nil
}

// JulianDay returns the Julian day of a calendar time.
// Valid for 1900/3/1 to 2100/2/28.
func JulianDay(u UtcTime) float64 {
	h := float64(u.Hour) + float64(u.Minute)/60 + u.Second/3600
	return julianDate(u.Year, u.Month, u.Day) + h/24
}

// Julian day at 00:00 of the given date
func julianDate(y, m, d int) float64 {
	// Jan and Feb are months 13 and 14 of the previous year
	if m <= 2 {
		m += 12
		y -= 1
	}
	return math.Floor(365.25*float64(y)) + math.Floor(30.6001*float64(m+1)) - 15 + 1720996.5 + float64(d)
}

// LeapSecondTable lists the UTC instants at which a leap second took effect.
// Append future insertions here.
var LeapSecondTable = []UtcTime{
	{1981, 7, 1, 0, 0, 0},
	{1982, 7, 1, 0, 0, 0},
	{1983, 7, 1, 0, 0, 0},
	{1985, 7, 1, 0, 0, 0},
	{1988, 1, 1, 0, 0, 0},
	{1990, 1, 1, 0, 0, 0},
	{1991, 1, 1, 0, 0, 0},
	{1992, 7, 1, 0, 0, 0},
	{1993, 7, 1, 0, 0, 0},
	{1994, 7, 1, 0, 0, 0},
	{1996, 1, 1, 0, 0, 0},
	{1997, 7, 1, 0, 0, 0},
	{1999, 1, 1, 0, 0, 0},
	{2006, 1, 1, 0, 0, 0},
	{2009, 1, 1, 0, 0, 0},
	{2012, 7, 1, 0, 0, 0},
	{2015, 7, 1, 0, 0, 0},
	{2017, 1, 1, 0, 0, 0},
}

// LeapSeconds returns the number of leap seconds inserted at or before u
func LeapSeconds(u UtcTime) int {
	ts := (JulianDay(u) - GPSEPOCHJD) * DAYSEC
	n := 0
	for _, l := range LeapSecondTable {
		if (JulianDay(l)-GPSEPOCHJD)*DAYSEC <= ts {
			n++
		}
	}
	return n
}

// Seconds since the GPS epoch of a calendar time, ignoring leap seconds
func secondsNoLeap(u UtcTime) float64 {
	days := julianDate(u.Year, u.Month, u.Day) - GPSEPOCHJD
	return days*DAYSEC + float64(u.Hour)*3600 + float64(u.Minute)*60 + u.Second
}

// UtcToGps converts UTC to GPS time. It returns GPS week/seconds and full cycle time.
// UTC stands still during a leap second, so GPS time runs ahead by the leap second count.
func UtcToGps(u UtcTime) (GTime, float64, error) {
	if err := u.validate(); err != nil {
		return GTime{}, 0, err
	}
	fct := secondsNoLeap(u)
	if fct < 0 {
		return GTime{}, 0, fmt.Errorf("%w: %s is before the GPS epoch", ErrRange, u)
	}
	fct += float64(LeapSeconds(u))
	return NewGTimeFct(fct), fct, nil
}

// Full cycle time at 2100/1/1 00:00:00 without leap seconds
const fct2100 = 6260*WEEKSEC + 432000.0

// GpsToUtc converts full cycle time to UTC.
// The leap second count depends on the UTC time being computed, so it is resolved
// by a fixed point: the estimate without leap seconds gives ls, fct-ls gives utc1 and
// if utc1 has a different count ls1, fct-ls1 is used. During an inserted leap second
// UTC repeats 00:00:00 instead of showing 23:59:60.
func GpsToUtc(fct float64) (UtcTime, error) {
	if math.IsNaN(fct) || fct < 0 || fct >= fct2100 {
		return UtcTime{}, fmt.Errorf("%w: fct %f not in [0,%.0f)", ErrRange, fct, fct2100)
	}
	utc := fctToCalendar(fct)
	ls := LeapSeconds(utc)
	utc = fctToCalendar(fct - float64(ls))
	ls1 := LeapSeconds(utc)
	if ls1 != ls {
		utc = fctToCalendar(fct - float64(ls1))
	}
	return utc, nil
}

// GTimeToUtc is GpsToUtc for week and seconds
func GTimeToUtc(t GTime) (UtcTime, error) {
	return GpsToUtc(t.Fct())
}

func fctToCalendar(fct float64) UtcTime {
	whole := math.Floor(fct)
	t := gpsEpoch.Add(time.Duration(int64(whole)) * time.Second)
	return UtcTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: float64(t.Second()) + (fct - whole),
	}
}

// CheckWeekRollover removes whole weeks from a time difference larger than half a week.
// It returns the corrected difference and the amount removed [s].
func CheckWeekRollover(dt float64) (float64, float64) {
	if math.Abs(dt) > WEEKSEC/2 {
		del := math.Round(dt/WEEKSEC) * WEEKSEC
		return dt - del, del
	}
	return dt, 0
}
