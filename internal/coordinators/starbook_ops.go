package coordinators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unklstewy/bigskies-starbook/pkg/starbook"
)

// Operation names accepted on bigskies/coordinator/starbook/cmd/<op>.
const (
	OpGoto     = "goto"
	OpAlign    = "align"
	OpMove     = "move"
	OpSpeed    = "speed"
	OpSetTime  = "settime"
	OpSetPlace = "setplace"
	OpVersion  = "version"
	OpStatus   = "status"
	OpPlace    = "place"
	OpTime     = "time"
	OpRound    = "round"
	OpXY       = "xy"
)

// GotoRequest targets GOTO and ALIGN.
type GotoRequest struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// MoveRequest starts or stops a manual move. Direction is one of north, south,
// east or west.
type MoveRequest struct {
	Direction string `json:"direction"`
	Stop      bool   `json:"stop"`
}

// SpeedRequest sets the manual move speed.
type SpeedRequest struct {
	Speed int `json:"speed"`
}

// SetTimeRequest sets the mount clock. A nil Time sends the coordinator's
// current local time.
type SetTimeRequest struct {
	Time *starbook.DateTime `json:"time,omitempty"`
}

// SetPlaceRequest sets the observing site.
type SetPlaceRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  int     `json:"timezone"`
}

// OpResult is the Data of every response.
type OpResult struct {
	Code   starbook.ResponseCode `json:"code"`
	Result interface{}           `json:"result,omitempty"`
}

// operation runs one mount call. The returned command name labels the journal
// entry and metrics.
type operation struct {
	command string
	run     func(ctx context.Context, mount *starbook.CommandInterface, body json.RawMessage) (interface{}, starbook.ResponseCode, error)
}

// errBadRequest marks requests rejected before reaching the mount.
var errBadRequest = errors.New("invalid request")

// decodeRequest unmarshals body into v. An empty body leaves v untouched.
func decodeRequest(body json.RawMessage, v interface{}) error {
	if len(body) == 0 || string(body) == "null" {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func noResult(code starbook.ResponseCode, err error) (interface{}, starbook.ResponseCode, error) {
	return nil, code, err
}

func withResult(result interface{}, code starbook.ResponseCode, err error) (interface{}, starbook.ResponseCode, error) {
	if err != nil || code != starbook.ResponseOK {
		return nil, code, err
	}
	return result, code, nil
}

var operations = map[string]operation{
	OpGoto: {
		command: starbook.CmdGotoRaDec,
		run: func(ctx context.Context, mount *starbook.CommandInterface, body json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			var req GotoRequest
			if err := decodeRequest(body, &req); err != nil {
				return nil, starbook.ResponseErrorUnknown, err
			}
			return noResult(mount.GotoRaDec(ctx, req.RA, req.Dec))
		},
	},
	OpAlign: {
		command: starbook.CmdAlign,
		run: func(ctx context.Context, mount *starbook.CommandInterface, body json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			var req GotoRequest
			if err := decodeRequest(body, &req); err != nil {
				return nil, starbook.ResponseErrorUnknown, err
			}
			return noResult(mount.Align(ctx, req.RA, req.Dec))
		},
	},
	OpMove: {
		command: starbook.CmdMove,
		run: func(ctx context.Context, mount *starbook.CommandInterface, body json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			var req MoveRequest
			if err := decodeRequest(body, &req); err != nil {
				return nil, starbook.ResponseErrorUnknown, err
			}
			motion := starbook.MotionStart
			if req.Stop {
				motion = starbook.MotionStop
			}
			switch strings.ToLower(req.Direction) {
			case "north":
				return noResult(mount.MoveNS(ctx, starbook.North, motion))
			case "south":
				return noResult(mount.MoveNS(ctx, starbook.South, motion))
			case "west":
				return noResult(mount.MoveWE(ctx, starbook.West, motion))
			case "east":
				return noResult(mount.MoveWE(ctx, starbook.East, motion))
			default:
				return nil, starbook.ResponseErrorUnknown, fmt.Errorf("%w: unknown direction %q", errBadRequest, req.Direction)
			}
		},
	},
	OpSpeed: {
		command: starbook.CmdSetSpeed,
		run: func(ctx context.Context, mount *starbook.CommandInterface, body json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			var req SpeedRequest
			if err := decodeRequest(body, &req); err != nil {
				return nil, starbook.ResponseErrorUnknown, err
			}
			return noResult(mount.SetSpeed(ctx, req.Speed))
		},
	},
	OpSetTime: {
		command: starbook.CmdSetTime,
		run: func(ctx context.Context, mount *starbook.CommandInterface, body json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			var req SetTimeRequest
			if err := decodeRequest(body, &req); err != nil {
				return nil, starbook.ResponseErrorUnknown, err
			}
			t := starbook.DateTimeFromTime(time.Now())
			if req.Time != nil {
				t = *req.Time
			}
			return noResult(mount.SetTime(ctx, t))
		},
	},
	OpSetPlace: {
		command: starbook.CmdSetPlace,
		run: func(ctx context.Context, mount *starbook.CommandInterface, body json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			var req SetPlaceRequest
			if err := decodeRequest(body, &req); err != nil {
				return nil, starbook.ResponseErrorUnknown, err
			}
			pos := starbook.GeoPosition{Latitude: req.Latitude, Longitude: req.Longitude}
			return noResult(mount.SetPlace(ctx, pos, req.Timezone))
		},
	},
	OpVersion: {
		command: starbook.CmdVersion,
		run: func(ctx context.Context, mount *starbook.CommandInterface, _ json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			return withResult(mount.Version(ctx))
		},
	},
	OpStatus: {
		command: starbook.CmdGetStatus,
		run: func(ctx context.Context, mount *starbook.CommandInterface, _ json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			return withResult(mount.GetStatus(ctx))
		},
	},
	OpPlace: {
		command: starbook.CmdGetPlace,
		run: func(ctx context.Context, mount *starbook.CommandInterface, _ json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			return withResult(mount.GetPlace(ctx))
		},
	},
	OpTime: {
		command: starbook.CmdGetTime,
		run: func(ctx context.Context, mount *starbook.CommandInterface, _ json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			return withResult(mount.GetTime(ctx))
		},
	},
	OpRound: {
		command: starbook.CmdGetRound,
		run: func(ctx context.Context, mount *starbook.CommandInterface, _ json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			return withResult(mount.GetRound(ctx))
		},
	},
	OpXY: {
		command: starbook.CmdGetXY,
		run: func(ctx context.Context, mount *starbook.CommandInterface, _ json.RawMessage) (interface{}, starbook.ResponseCode, error) {
			return withResult(mount.GetXY(ctx))
		},
	},
}

// Operations returns the supported operation names.
func Operations() []string {
	return []string{
		OpGoto, OpAlign, OpMove, OpSpeed, OpSetTime, OpSetPlace,
		OpVersion, OpStatus, OpPlace, OpTime, OpRound, OpXY,
	}
}
