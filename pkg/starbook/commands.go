package starbook

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Command names as the firmware spells them.
const (
	CmdGotoRaDec = "GOTORADEC"
	CmdAlign     = "ALIGN"
	CmdVersion   = "VERSION"
	CmdGetStatus = "GETSTATUS"
	CmdGetPlace  = "GETPLACE"
	CmdGetTime   = "GETIME"
	CmdGetRound  = "GETROUND"
	CmdGetXY     = "GETXY"
	CmdSetTime   = "SETTIME"
	CmdSetPlace  = "SETPLACE"
	CmdSetSpeed  = "SETSPEED"
	CmdMove      = "MOVE"
)

// Speed limits accepted by SETSPEED unless configured otherwise.
const (
	DefaultMinSpeed = 0
	DefaultMaxSpeed = 7
)

// MaxTimezoneOffset bounds the SETPLACE timezone in whole hours.
const MaxTimezoneOffset = 24

// NSDirection selects a direction on the declination axis.
type NSDirection int

const (
	North NSDirection = iota
	South
)

// WEDirection selects a direction on the right ascension axis.
type WEDirection int

const (
	West WEDirection = iota
	East
)

// MotionCommand starts or stops a manual move.
type MotionCommand int

const (
	MotionStart MotionCommand = iota
	MotionStop
)

// SpeedRange is the inclusive range of accepted SETSPEED values.
type SpeedRange struct {
	Min int
	Max int
}

// DefaultSpeedRange returns [DefaultMinSpeed, DefaultMaxSpeed].
func DefaultSpeedRange() SpeedRange {
	return SpeedRange{Min: DefaultMinSpeed, Max: DefaultMaxSpeed}
}

type param struct {
	key   string
	value string
}

// Command is an outgoing request line: a command name and ordered parameters.
// Values are sent verbatim; the mount expects literal '+' and '-'.
type Command struct {
	name   string
	params []param
}

// NewCommand starts a command with no parameters.
func NewCommand(name string) *Command {
	return &Command{name: name}
}

// Param appends a key=value parameter.
func (c *Command) Param(key, value string) *Command {
	c.params = append(c.params, param{key: key, value: value})
	return c
}

// Name returns the command name.
func (c *Command) Name() string {
	return c.name
}

// String renders the path and query, e.g. "MOVE?NORTH=1&SOUTH=0".
func (c *Command) String() string {
	if len(c.params) == 0 {
		return c.name
	}

	var b strings.Builder
	b.WriteString(c.name)
	for i, p := range c.params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	return b.String()
}

// GotoCommand slews to an equatorial coordinate.
func GotoCommand(target Equatorial) *Command {
	return NewCommand(CmdGotoRaDec).
		Param("RA", target.RA.String()).
		Param("DEC", target.Dec.String())
}

// AlignCommand registers the current pointing as target.
func AlignCommand(target Equatorial) *Command {
	return NewCommand(CmdAlign).
		Param("RA", target.RA.String()).
		Param("DEC", target.Dec.String())
}

// SetTimeCommand sets the mount clock.
func SetTimeCommand(t DateTime) *Command {
	return NewCommand(CmdSetTime).Param("TIME", t.String())
}

// SetPlaceCommand sets the observing site. tz must be within ±MaxTimezoneOffset.
func SetPlaceCommand(pos GeoPosition, tz int) (*Command, error) {
	if tz > MaxTimezoneOffset || tz < -MaxTimezoneOffset {
		return nil, validationError(CmdSetPlace,
			fmt.Sprintf("timezone should be between %d and %d", -MaxTimezoneOffset, MaxTimezoneOffset))
	}

	return NewCommand(CmdSetPlace).
		Param("latitude", hemisphere(pos.Latitude, "N", "S")+DMSFromDegrees(math.Abs(pos.Latitude)).String()).
		Param("longitude", hemisphere(pos.Longitude, "E", "W")+DMSFromDegrees(math.Abs(pos.Longitude)).String()).
		Param("timezone", fmt.Sprintf("%02d", tz)), nil
}

func hemisphere(v float64, positive, negative string) string {
	if v < 0 {
		return negative
	}
	return positive
}

// SetSpeedCommand sets the manual move speed. speed must lie within r.
func SetSpeedCommand(speed int, r SpeedRange) (*Command, error) {
	if speed < r.Min || speed > r.Max {
		return nil, validationError(CmdSetSpeed,
			fmt.Sprintf("speed should be between %d and %d", r.Min, r.Max))
	}
	return NewCommand(CmdSetSpeed).Param("speed", strconv.Itoa(speed)), nil
}

// MoveNSCommand starts or stops motion on the declination axis.
func MoveNSCommand(dir NSDirection, cmd MotionCommand) *Command {
	return NewCommand(CmdMove).
		Param("NORTH", flag(cmd == MotionStart && dir == North)).
		Param("SOUTH", flag(cmd == MotionStart && dir == South))
}

// MoveWECommand starts or stops motion on the right ascension axis.
func MoveWECommand(dir WEDirection, cmd MotionCommand) *Command {
	return NewCommand(CmdMove).
		Param("WEST", flag(cmd == MotionStart && dir == West)).
		Param("EAST", flag(cmd == MotionStart && dir == East))
}

func flag(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
