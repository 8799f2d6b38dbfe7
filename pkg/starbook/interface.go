// Package starbook implements the Starbook mount command protocol: commands are
// sent as HTTP GET requests and the reply is hidden in an HTML comment of the
// returned page.
package starbook

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Config identifies a mount and its local limits.
type Config struct {
	// Host is the mount address (name or IP)
	Host string
	// Port is the HTTP port (0 means 80)
	Port int
	// Speed bounds SETSPEED (nil means DefaultSpeedRange)
	Speed *SpeedRange
}

// Validate fills defaults and checks the configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("mount host is required")
	}
	if c.Port == 0 {
		c.Port = 80
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid mount port %d", c.Port)
	}
	if c.Speed == nil {
		r := DefaultSpeedRange()
		c.Speed = &r
	}
	if c.Speed.Min > c.Speed.Max {
		return fmt.Errorf("invalid speed range [%d, %d]", c.Speed.Min, c.Speed.Max)
	}
	return nil
}

// CommandInterface runs typed commands against one mount. Each call is one
// blocking round trip. It is not safe for concurrent use: the mount serves a
// single session and the diagnostic fields are rewritten on every call.
type CommandInterface struct {
	transport Transport
	baseURL   string
	speed     SpeedRange
	logger    *zap.Logger

	lastRequestURL string
	lastResponse   string
}

// NewCommandInterface creates a command interface for the mount in config.
func NewCommandInterface(config Config, transport Transport, logger *zap.Logger) (*CommandInterface, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CommandInterface{
		transport: transport,
		baseURL:   "http://" + net.JoinHostPort(config.Host, strconv.Itoa(config.Port)) + "/",
		speed:     *config.Speed,
		logger:    logger.With(zap.String("component", "starbook"), zap.String("mount", config.Host)),
	}, nil
}

// LastRequestURL returns the URL of the most recent request.
func (c *CommandInterface) LastRequestURL() string {
	return c.lastRequestURL
}

// LastResponse returns the most recent extracted payload, empty if extraction failed.
func (c *CommandInterface) LastResponse() string {
	return c.lastResponse
}

// SpeedRange returns the accepted SETSPEED range.
func (c *CommandInterface) SpeedRange() SpeedRange {
	return c.speed
}

// Execute sends cmd and classifies the reply. Device-reported errors come back
// as the response status, not as an error.
func (c *CommandInterface) Execute(ctx context.Context, cmd *Command) (*CommandResponse, error) {
	url := c.baseURL + cmd.String()
	c.lastRequestURL = url
	c.lastResponse = ""

	start := time.Now()
	body, err := c.transport.Perform(ctx, url)
	if err != nil {
		c.logger.Warn("Mount request failed",
			zap.String("command", cmd.Name()),
			zap.Error(err))
		return nil, transportError(cmd.Name(), err)
	}

	payload, err := ExtractPayload(body)
	if err != nil {
		c.logger.Warn("Mount reply has no payload",
			zap.String("command", cmd.Name()),
			zap.Error(err))
		return nil, err
	}
	c.lastResponse = payload

	res, err := ParseResponse(payload)
	if err != nil {
		c.logger.Warn("Mount reply not understood",
			zap.String("command", cmd.Name()),
			zap.String("payload", payload),
			zap.Error(err))
		return nil, err
	}

	c.logger.Debug("Command completed",
		zap.String("command", cmd.Name()),
		zap.Stringer("code", res.Status),
		zap.Duration("duration", time.Since(start)))

	return res, nil
}

func (c *CommandInterface) send(ctx context.Context, cmd *Command) (ResponseCode, error) {
	res, err := c.Execute(ctx, cmd)
	if err != nil {
		return ResponseErrorUnknown, err
	}
	return res.Status, nil
}

// query runs cmd and maps an OK reply with parse. The code is only meaningful
// when err is nil.
func query[T any](ctx context.Context, c *CommandInterface, cmd *Command, parse func(*CommandResponse) (T, error)) (T, ResponseCode, error) {
	var zero T

	res, err := c.Execute(ctx, cmd)
	if err != nil {
		return zero, ResponseErrorUnknown, err
	}
	if res.Status != ResponseOK {
		return zero, res.Status, nil
	}

	out, err := parse(res)
	if err != nil {
		c.logger.Warn("Mount payload could not be mapped",
			zap.String("command", cmd.Name()),
			zap.Error(err))
		return zero, ResponseErrorUnknown, err
	}
	return out, ResponseOK, nil
}

// GotoRaDec slews to ra/dec given in decimal degrees.
func (c *CommandInterface) GotoRaDec(ctx context.Context, ra, dec float64) (ResponseCode, error) {
	return c.send(ctx, GotoCommand(NewEquatorial(ra, dec)))
}

// Align tells the mount it is pointing at ra/dec.
func (c *CommandInterface) Align(ctx context.Context, ra, dec float64) (ResponseCode, error) {
	return c.send(ctx, AlignCommand(NewEquatorial(ra, dec)))
}

// Version reads the firmware version.
func (c *CommandInterface) Version(ctx context.Context) (VersionResult, ResponseCode, error) {
	return query(ctx, c, NewCommand(CmdVersion), ParseVersion)
}

// GetStatus reads pointing, mode and slew state.
func (c *CommandInterface) GetStatus(ctx context.Context) (StatusResult, ResponseCode, error) {
	return query(ctx, c, NewCommand(CmdGetStatus), ParseStatus)
}

// GetPlace reads the observing site. See ParsePlace: the result is always zero for now.
func (c *CommandInterface) GetPlace(ctx context.Context) (PlaceResult, ResponseCode, error) {
	return query(ctx, c, NewCommand(CmdGetPlace), ParsePlace)
}

// GetTime reads the mount clock.
func (c *CommandInterface) GetTime(ctx context.Context) (TimeResult, ResponseCode, error) {
	return query(ctx, c, NewCommand(CmdGetTime), ParseTime)
}

// GetRound reads the ROUND counter.
func (c *CommandInterface) GetRound(ctx context.Context) (RoundResult, ResponseCode, error) {
	return query(ctx, c, NewCommand(CmdGetRound), ParseRound)
}

// GetXY reads the axis position.
func (c *CommandInterface) GetXY(ctx context.Context) (XYResult, ResponseCode, error) {
	return query(ctx, c, NewCommand(CmdGetXY), ParseXY)
}

// SetTime sets the mount clock.
func (c *CommandInterface) SetTime(ctx context.Context, t DateTime) (ResponseCode, error) {
	return c.send(ctx, SetTimeCommand(t))
}

// SetPlace sets the observing site and timezone. An out of range timezone fails
// without contacting the mount.
func (c *CommandInterface) SetPlace(ctx context.Context, pos GeoPosition, tz int) (ResponseCode, error) {
	cmd, err := SetPlaceCommand(pos, tz)
	if err != nil {
		return ResponseErrorUnknown, err
	}
	return c.send(ctx, cmd)
}

// SetSpeed sets the manual move speed. An out of range speed fails without
// contacting the mount.
func (c *CommandInterface) SetSpeed(ctx context.Context, speed int) (ResponseCode, error) {
	cmd, err := SetSpeedCommand(speed, c.speed)
	if err != nil {
		return ResponseErrorUnknown, err
	}
	return c.send(ctx, cmd)
}

// MoveNS starts or stops motion on the declination axis.
func (c *CommandInterface) MoveNS(ctx context.Context, dir NSDirection, cmd MotionCommand) (ResponseCode, error) {
	return c.send(ctx, MoveNSCommand(dir, cmd))
}

// MoveWE starts or stops motion on the right ascension axis.
func (c *CommandInterface) MoveWE(ctx context.Context, dir WEDirection, cmd MotionCommand) (ResponseCode, error) {
	return c.send(ctx, MoveWECommand(dir, cmd))
}
