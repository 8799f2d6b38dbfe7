package simulator

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unklstewy/bigskies-starbook/pkg/starbook"
)

// Firmware replies. "HORIZONE" is spelled the way real mounts spell it.
const (
	replyOK                = "OK"
	replyError             = "ERROR"
	replyErrorFormat       = "ERROR:FORMAT"
	replyErrorIllegalState = "ERROR:ILLEGAL STATE"
	replyErrorBelowHorizon = "ERROR:BELOW HORIZONE"
)

// roundCounts is what GETROUND reports: encoder steps per full turn.
const roundCounts = 8640000

// Mount is the simulated device state. All methods are safe for concurrent use.
type Mount struct {
	mu sync.Mutex

	config Config
	now    func() time.Time

	state      starbook.MountState
	position   starbook.Equatorial
	target     starbook.Equatorial
	slewUntil  time.Time
	site       starbook.GeoPosition
	timezone   int
	clockDelta time.Duration
	speed      int
	moving     map[string]bool
}

// NewMount creates a mount in SCOPE state pointing at RA 0, DEC 0.
func NewMount(config Config) *Mount {
	return &Mount{
		config: config,
		now:    time.Now,
		state:  starbook.StateScope,
		speed:  starbook.DefaultMaxSpeed,
		moving: make(map[string]bool),
	}
}

// SetState forces the operating mode, e.g. to INIT to reproduce ILLEGAL STATE replies.
func (m *Mount) SetState(state starbook.MountState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *Mount) setClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Speed returns the last accepted SETSPEED value.
func (m *Mount) Speed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speed
}

// Moving reports whether the axis direction (NORTH, SOUTH, WEST, EAST) is active.
func (m *Mount) Moving(direction string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moving[direction]
}

// Handle runs one command and returns the payload to embed in the reply page.
func (m *Mount) Handle(command string, params map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settle()

	switch command {
	case starbook.CmdVersion:
		return "version=" + m.config.Version
	case starbook.CmdGetStatus:
		return m.status()
	case starbook.CmdGotoRaDec:
		return m.gotoRaDec(params)
	case starbook.CmdAlign:
		return m.align(params)
	case starbook.CmdGetPlace:
		return m.place()
	case starbook.CmdSetPlace:
		return m.setPlace(params)
	case starbook.CmdGetTime:
		return "time=" + starbook.DateTimeFromTime(m.now().UTC().Add(m.clockDelta)).String()
	case starbook.CmdSetTime:
		return m.setTime(params)
	case starbook.CmdSetSpeed:
		return m.setSpeed(params)
	case starbook.CmdMove:
		return m.move(params)
	case starbook.CmdGetRound:
		return "ROUND=" + strconv.Itoa(roundCounts)
	case starbook.CmdGetXY:
		return m.xy()
	default:
		return replyError
	}
}

// settle completes a slew whose time has elapsed.
func (m *Mount) settle() {
	if !m.slewUntil.IsZero() && !m.now().Before(m.slewUntil) {
		m.position = m.target
		m.slewUntil = time.Time{}
	}
}

func (m *Mount) slewing() bool {
	return !m.slewUntil.IsZero()
}

func (m *Mount) status() string {
	gotoFlag := "0"
	if m.slewing() {
		gotoFlag = "1"
	}
	return fmt.Sprintf("%s&STATE=%s&GOTO=%s", m.position, m.state, gotoFlag)
}

func parseTarget(params map[string]string) (starbook.Equatorial, bool) {
	ra, err := starbook.ParseHMS(params["RA"])
	if err != nil {
		return starbook.Equatorial{}, false
	}
	dec, err := starbook.ParseDMS(params["DEC"])
	if err != nil {
		return starbook.Equatorial{}, false
	}
	return starbook.Equatorial{RA: ra, Dec: dec}, true
}

func (m *Mount) gotoRaDec(params map[string]string) string {
	target, ok := parseTarget(params)
	if !ok {
		return replyErrorFormat
	}
	if m.state != starbook.StateScope {
		return replyErrorIllegalState
	}
	if target.Dec.Decimal() < m.config.HorizonLimit {
		return replyErrorBelowHorizon
	}

	m.target = target
	if m.config.SlewDuration <= 0 {
		m.position = target
		return replyOK
	}
	m.slewUntil = m.now().Add(m.config.SlewDuration)
	return replyOK
}

func (m *Mount) align(params map[string]string) string {
	target, ok := parseTarget(params)
	if !ok {
		return replyErrorFormat
	}
	if m.state != starbook.StateScope || m.slewing() {
		return replyErrorIllegalState
	}
	m.position = target
	return replyOK
}

func (m *Mount) place() string {
	return fmt.Sprintf("latitude=%s&longitude=%s&timezone=%02d",
		signedAngle(m.site.Latitude, "N", "S"),
		signedAngle(m.site.Longitude, "E", "W"),
		m.timezone)
}

func signedAngle(deg float64, positive, negative string) string {
	prefix := positive
	if deg < 0 {
		prefix = negative
		deg = -deg
	}
	return prefix + starbook.DMSFromDegrees(deg).String()
}

func parseSignedAngle(s, positive, negative string) (float64, bool) {
	if len(s) < 2 {
		return 0, false
	}
	sign := 1.0
	switch s[:1] {
	case positive:
	case negative:
		sign = -1
	default:
		return 0, false
	}
	dms, err := starbook.ParseDMS(s[1:])
	if err != nil || dms.Negative {
		return 0, false
	}
	return sign * dms.Decimal(), true
}

func (m *Mount) setPlace(params map[string]string) string {
	lat, ok := parseSignedAngle(params["latitude"], "N", "S")
	if !ok || lat > 90 || lat < -90 {
		return replyErrorFormat
	}
	lon, ok := parseSignedAngle(params["longitude"], "E", "W")
	if !ok || lon > 180 || lon < -180 {
		return replyErrorFormat
	}
	tz, err := strconv.Atoi(params["timezone"])
	if err != nil || tz > starbook.MaxTimezoneOffset || tz < -starbook.MaxTimezoneOffset {
		return replyErrorFormat
	}
	if m.slewing() {
		return replyErrorIllegalState
	}

	m.site = starbook.GeoPosition{Latitude: lat, Longitude: lon}
	m.timezone = tz
	return replyOK
}

func (m *Mount) setTime(params map[string]string) string {
	dt, err := starbook.ParseDateTime(params["TIME"])
	if err != nil {
		return replyErrorFormat
	}
	m.clockDelta = dt.Time(time.UTC).Sub(m.now().UTC())
	return replyOK
}

func (m *Mount) setSpeed(params map[string]string) string {
	speed, err := strconv.Atoi(params["speed"])
	if err != nil || speed < starbook.DefaultMinSpeed || speed > starbook.DefaultMaxSpeed {
		return replyErrorFormat
	}
	m.speed = speed
	return replyOK
}

func (m *Mount) move(params map[string]string) string {
	var axis []string
	switch {
	case hasKeys(params, "NORTH", "SOUTH"):
		axis = []string{"NORTH", "SOUTH"}
	case hasKeys(params, "WEST", "EAST"):
		axis = []string{"WEST", "EAST"}
	default:
		return replyErrorFormat
	}

	flags := make([]bool, len(axis))
	for i, dir := range axis {
		switch params[dir] {
		case "0":
		case "1":
			flags[i] = true
		default:
			return replyErrorFormat
		}
	}
	if flags[0] && flags[1] {
		return replyErrorFormat
	}
	if m.state != starbook.StateScope && (flags[0] || flags[1]) {
		return replyErrorIllegalState
	}

	for i, dir := range axis {
		m.moving[dir] = flags[i]
	}
	return replyOK
}

func hasKeys(params map[string]string, keys ...string) bool {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return false
		}
	}
	return true
}

func (m *Mount) xy() string {
	pos := m.position.Position()
	return fmt.Sprintf("X=%s&Y=%s",
		strconv.FormatFloat(pos.RA*3600, 'f', -1, 64),
		strconv.FormatFloat(pos.Dec*3600, 'f', -1, 64))
}

// parseQuery splits a raw query into parameters. url.ParseQuery is not used
// because it turns the literal '+' of the wire format into a space.
func parseQuery(raw string) map[string]string {
	params := make(map[string]string)
	if raw == "" {
		return params
	}
	for _, pair := range strings.Split(raw, "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key != "" {
			params[key] = value
		}
	}
	return params
}
