package starbook

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// dateTimeSeparator joins the six DateTime fields on the wire.
const dateTimeSeparator = '+'

// truncationEpsilon absorbs float noise before truncating to whole seconds or
// arcminutes, so 108.875° encodes as 07+15.30 and not 07+15.29.
const truncationEpsilon = 1e-6

var (
	dmsPattern      = regexp.MustCompile(`^([+-]?)(\d+)\+(\d+)$`)
	hmsPattern      = regexp.MustCompile(`^(\d+)\+(\d+)\.(\d+)$`)
	dateTimePattern = regexp.MustCompile(`^(\d+)(\D)(\d+)(\D)(\d+)(\D)(\d+)(\D)(\d+)(\D)(\d+)$`)
)

// DMS is a degrees/minutes angle as used for declination. The wire format
// carries no seconds.
type DMS struct {
	Negative bool
	Degrees  int
	Minutes  int
}

// ParseDMS decodes "[sign]DDD+MM".
func ParseDMS(s string) (DMS, error) {
	m := dmsPattern.FindStringSubmatch(s)
	if m == nil {
		return DMS{}, formatError("dms", fmt.Sprintf("%q does not match [sign]DDD+MM", s))
	}

	degrees, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])
	if degrees > 359 || minutes > 59 {
		return DMS{}, formatError("dms", fmt.Sprintf("%q out of range", s))
	}

	return DMS{
		Negative: m[1] == "-",
		Degrees:  degrees,
		Minutes:  minutes,
	}, nil
}

// DMSFromDegrees splits a decimal angle into sign, degrees and minutes.
// Leftover arcseconds are truncated.
func DMSFromDegrees(deg float64) DMS {
	total := int(math.Floor(math.Abs(deg)*60 + truncationEpsilon))
	return DMS{
		Negative: deg < 0 && total > 0,
		Degrees:  total / 60,
		Minutes:  total % 60,
	}
}

// Decimal returns the angle in decimal degrees.
func (d DMS) Decimal() float64 {
	v := float64(d.Degrees) + float64(d.Minutes)/60
	if d.Negative {
		return -v
	}
	return v
}

// String encodes the angle as "[-]DDD+MM".
func (d DMS) String() string {
	sign := ""
	if d.Negative {
		sign = "-"
	}
	return fmt.Sprintf("%s%03d+%02d", sign, d.Degrees, d.Minutes)
}

// HMS is an hours/minutes/seconds value as used for right ascension.
type HMS struct {
	Hours   int
	Minutes int
	Seconds float64
}

// ParseHMS decodes "HH+MM.SS". The part after the dot is whole seconds, not a
// decimal fraction of a minute.
func ParseHMS(s string) (HMS, error) {
	m := hmsPattern.FindStringSubmatch(s)
	if m == nil {
		return HMS{}, formatError("hms", fmt.Sprintf("%q does not match HH+MM.SS", s))
	}

	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	if hours > 23 || minutes > 59 || seconds > 59 {
		return HMS{}, formatError("hms", fmt.Sprintf("%q out of range", s))
	}

	return HMS{
		Hours:   hours,
		Minutes: minutes,
		Seconds: float64(seconds),
	}, nil
}

// HMSFromDegrees converts a right ascension in decimal degrees to hours,
// minutes and whole seconds. The angle is normalized into [0, 360).
func HMSFromDegrees(deg float64) HMS {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}

	total := int(math.Floor(deg/15*3600+truncationEpsilon)) % (24 * 3600)
	return HMS{
		Hours:   total / 3600,
		Minutes: total % 3600 / 60,
		Seconds: float64(total % 60),
	}
}

// Degrees returns the value as a decimal angle (15° per hour).
func (h HMS) Degrees() float64 {
	return (float64(h.Hours) + float64(h.Minutes)/60 + h.Seconds/3600) * 15
}

// String encodes the value as "HH+MM.S", seconds floored and not padded.
func (h HMS) String() string {
	return fmt.Sprintf("%02d+%02d.%d", h.Hours, h.Minutes, int(math.Floor(h.Seconds)))
}

// EquatorialPosition is a right ascension/declination pair in decimal degrees.
type EquatorialPosition struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// Equatorial is the sexagesimal form of an equatorial coordinate.
type Equatorial struct {
	RA  HMS
	Dec DMS
}

// NewEquatorial builds the wire form of a coordinate given in decimal degrees.
func NewEquatorial(ra, dec float64) Equatorial {
	return Equatorial{
		RA:  HMSFromDegrees(ra),
		Dec: DMSFromDegrees(dec),
	}
}

// Position converts back to decimal degrees.
func (e Equatorial) Position() EquatorialPosition {
	return EquatorialPosition{
		RA:  e.RA.Degrees(),
		Dec: e.Dec.Decimal(),
	}
}

// String encodes the coordinate as command parameters.
func (e Equatorial) String() string {
	return "RA=" + e.RA.String() + "&DEC=" + e.Dec.String()
}

// DateTime is a calendar date and wall clock time as the mount understands it.
type DateTime struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second float64
}

// DateTimeFromTime copies the calendar fields of t.
func DateTimeFromTime(t time.Time) DateTime {
	return DateTime{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: float64(t.Second()) + float64(t.Nanosecond())/1e9,
	}
}

// Time returns the value as a time.Time in loc.
func (d DateTime) Time(loc *time.Location) time.Time {
	whole := math.Floor(d.Second)
	nanos := int(math.Round((d.Second - whole) * 1e9))
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, int(whole), nanos, loc)
}

// ParseDateTime decodes "YYYY+MM+DD+hh+mm+ss". All five separators must be '+'.
func ParseDateTime(s string) (DateTime, error) {
	m := dateTimePattern.FindStringSubmatch(s)
	if m == nil {
		return DateTime{}, formatError("datetime", fmt.Sprintf("%q does not have six numeric fields", s))
	}

	var fields [6]int
	for i := range fields {
		if i > 0 && m[2*i][0] != dateTimeSeparator {
			return DateTime{}, formatError("datetime", fmt.Sprintf("unexpected separator %q in %q", m[2*i], s))
		}
		fields[i], _ = strconv.Atoi(m[2*i+1])
	}

	if fields[1] < 1 || fields[1] > 12 || fields[2] < 1 || fields[2] > 31 ||
		fields[3] > 23 || fields[4] > 59 || fields[5] > 59 {
		return DateTime{}, formatError("datetime", fmt.Sprintf("%q out of range", s))
	}

	return DateTime{
		Year:   fields[0],
		Month:  fields[1],
		Day:    fields[2],
		Hour:   fields[3],
		Minute: fields[4],
		Second: float64(fields[5]),
	}, nil
}

// String encodes the value with seconds floored.
func (d DateTime) String() string {
	sep := string(dateTimeSeparator)
	return fmt.Sprintf("%d"+sep+"%02d"+sep+"%02d"+sep+"%02d"+sep+"%02d"+sep+"%02d",
		d.Year, d.Month, d.Day, d.Hour, d.Minute, int(math.Floor(d.Second)))
}

// MarshalText implements encoding.TextMarshaler.
func (d DateTime) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. d is left untouched on error.
func (d *DateTime) UnmarshalText(text []byte) error {
	parsed, err := ParseDateTime(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
