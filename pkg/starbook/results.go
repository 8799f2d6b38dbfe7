package starbook

import (
	"fmt"
	"regexp"
	"strconv"
)

// Payload field names.
const (
	fieldVersion = "version"
	fieldRA      = "RA"
	fieldDec     = "DEC"
	fieldState   = "STATE"
	fieldGoto    = "GOTO"
	fieldTime    = "time"
	fieldRound   = "ROUND"
	fieldX       = "X"
	fieldY       = "Y"
)

var versionPattern = regexp.MustCompile(`^((\d+\.\d+)\w*)`)

// GeoPosition is an observing site in decimal degrees, east and north positive.
type GeoPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// VersionResult is the firmware version.
type VersionResult struct {
	// Full is the matched version token, e.g. "2.7JP"
	Full string `json:"full"`
	// MajorMinor is the numeric major.minor prefix
	MajorMinor float64 `json:"major_minor"`
}

// StatusResult is the mount pointing and mode.
type StatusResult struct {
	Position      EquatorialPosition `json:"position"`
	State         MountState         `json:"state"`
	ExecutingGoto bool               `json:"executing_goto"`
}

// PlaceResult is the configured observing site.
type PlaceResult struct {
	Position GeoPosition `json:"position"`
	Timezone int         `json:"timezone"`
}

// TimeResult is the mount clock.
type TimeResult struct {
	Time DateTime `json:"time"`
}

// RoundResult is the GETROUND counter.
type RoundResult struct {
	Value int64 `json:"value"`
}

// XYResult is the GETXY axis position.
type XYResult struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func field(res *CommandResponse, op, key string) (string, error) {
	value, ok := res.Payload[key]
	if !ok {
		return "", parseError(op, fmt.Sprintf("missing field %s", key), nil)
	}
	return value, nil
}

// ParseVersion reads the "version" field.
func ParseVersion(res *CommandResponse) (VersionResult, error) {
	raw, err := field(res, "VERSION", fieldVersion)
	if err != nil {
		return VersionResult{}, err
	}

	m := versionPattern.FindStringSubmatch(raw)
	if m == nil {
		return VersionResult{}, parseError("VERSION", fmt.Sprintf("unrecognized version %q", raw), nil)
	}

	majorMinor, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return VersionResult{}, parseError("VERSION", "bad version number", err)
	}

	return VersionResult{Full: m[1], MajorMinor: majorMinor}, nil
}

// ParseStatus reads RA, DEC, STATE and GOTO.
func ParseStatus(res *CommandResponse) (StatusResult, error) {
	var raw [4]string
	for i, key := range []string{fieldRA, fieldDec, fieldState, fieldGoto} {
		value, err := field(res, "GETSTATUS", key)
		if err != nil {
			return StatusResult{}, err
		}
		raw[i] = value
	}

	ra, err := ParseHMS(raw[0])
	if err != nil {
		return StatusResult{}, parseError("GETSTATUS", "bad RA", err)
	}
	dec, err := ParseDMS(raw[1])
	if err != nil {
		return StatusResult{}, parseError("GETSTATUS", "bad DEC", err)
	}

	return StatusResult{
		Position:      Equatorial{RA: ra, Dec: dec}.Position(),
		State:         ParseMountState(raw[2]),
		ExecutingGoto: raw[3] == "1",
	}, nil
}

// ParsePlace is not implemented yet: the GETPLACE field layout has not been
// confirmed against firmware, so it always reports the zero site.
func ParsePlace(res *CommandResponse) (PlaceResult, error) {
	return PlaceResult{}, nil
}

// ParseTime reads the "time" field.
func ParseTime(res *CommandResponse) (TimeResult, error) {
	raw, err := field(res, "GETIME", fieldTime)
	if err != nil {
		return TimeResult{}, err
	}

	dt, err := ParseDateTime(raw)
	if err != nil {
		return TimeResult{}, parseError("GETIME", "bad time", err)
	}
	return TimeResult{Time: dt}, nil
}

// ParseRound reads the "ROUND" field.
func ParseRound(res *CommandResponse) (RoundResult, error) {
	raw, err := field(res, "GETROUND", fieldRound)
	if err != nil {
		return RoundResult{}, err
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return RoundResult{}, parseError("GETROUND", "bad ROUND", err)
	}
	return RoundResult{Value: v}, nil
}

// ParseXY reads the "X" and "Y" fields.
func ParseXY(res *CommandResponse) (XYResult, error) {
	var out [2]float64
	for i, key := range []string{fieldX, fieldY} {
		raw, err := field(res, "GETXY", key)
		if err != nil {
			return XYResult{}, err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return XYResult{}, parseError("GETXY", "bad "+key, err)
		}
		out[i] = v
	}
	return XYResult{X: out[0], Y: out[1]}, nil
}
