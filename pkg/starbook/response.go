package starbook

import (
	"regexp"
	"strings"
)

// ResponseCode is the status the mount reports for a command.
type ResponseCode int

const (
	// ResponseOK means the command was accepted or the payload parsed.
	ResponseOK ResponseCode = iota
	// ResponseErrorFormat means the mount rejected the command syntax.
	ResponseErrorFormat
	// ResponseErrorIllegalState means the mount cannot run the command in its current state.
	ResponseErrorIllegalState
	// ResponseErrorBelowHorizon means the requested target is below the horizon.
	ResponseErrorBelowHorizon
	// ResponseErrorUnknown covers any other ERROR reply.
	ResponseErrorUnknown
)

var responseCodeNames = map[ResponseCode]string{
	ResponseOK:                "OK",
	ResponseErrorFormat:       "ERROR_FORMAT",
	ResponseErrorIllegalState: "ERROR_ILLEGAL_STATE",
	ResponseErrorBelowHorizon: "ERROR_BELOW_HORIZON",
	ResponseErrorUnknown:      "ERROR_UNKNOWN",
}

func (c ResponseCode) String() string {
	if name, ok := responseCodeNames[c]; ok {
		return name
	}
	return "ERROR_UNKNOWN"
}

// MarshalText renders the code by name so JSON consumers see "ERROR_FORMAT" rather than 1.
func (c ResponseCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Device error prefixes. "HORIZONE" is how the firmware spells it.
const (
	replyOK                = "OK"
	replyError             = "ERROR"
	replyErrorFormat       = "ERROR:FORMAT"
	replyErrorIllegalState = "ERROR:ILLEGAL STATE"
	replyErrorBelowHorizon = "ERROR:BELOW HORIZONE"
)

// MountState is the operating mode reported in GETSTATUS.
type MountState int

const (
	StateUnknown MountState = iota
	StateScope
	StateGuide
	StateUser
	StateInit
	StateChart
	StateAltAz
)

var mountStates = map[string]MountState{
	"SCOPE": StateScope,
	"GUIDE": StateGuide,
	"USER":  StateUser,
	"INIT":  StateInit,
	"CHART": StateChart,
	"ALTAZ": StateAltAz,
}

// ParseMountState maps a wire token to a state. Unrecognized tokens yield StateUnknown.
func ParseMountState(token string) MountState {
	if state, ok := mountStates[token]; ok {
		return state
	}
	return StateUnknown
}

func (s MountState) String() string {
	for name, state := range mountStates {
		if state == s {
			return name
		}
	}
	return "UNKNOWN"
}

// MarshalText renders the state by its wire name.
func (s MountState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// Only single-line comments count, the firmware never wraps the payload.
	payloadComment = regexp.MustCompile(`<!--(.*?)-->`)
	// Keys start with a letter so "RA=07+15.30DEC=-05+09" splits before DEC.
	fieldKey   = regexp.MustCompile(`[A-Za-z_]\w*=`)
	fieldValue = regexp.MustCompile(`^[\w+.\-]+$`)
)

// fieldSeparator may sit between two key=value tokens; the mount normally sends it.
const fieldSeparator = "&"

// ExtractPayload returns the inner text of the first HTML comment in body.
func ExtractPayload(body string) (string, error) {
	m := payloadComment.FindStringSubmatch(body)
	if m == nil {
		return "", framingError("response not found")
	}
	if m[1] == "" {
		return "", framingError("response empty")
	}
	return m[1], nil
}

// CommandResponse is a classified payload.
type CommandResponse struct {
	Raw     string
	Status  ResponseCode
	Payload map[string]string
}

// ParseResponse classifies an extracted payload and, for data replies, splits it
// into fields.
func ParseResponse(text string) (*CommandResponse, error) {
	if text == "" {
		return nil, parseError("classify", "no payload", nil)
	}

	res := &CommandResponse{
		Raw:     text,
		Status:  ResponseOK,
		Payload: make(map[string]string),
	}

	switch {
	case strings.HasPrefix(text, replyOK):
		return res, nil
	case strings.HasPrefix(text, replyError):
		res.Status = classifyError(text)
		return res, nil
	}

	if err := parseFields(text, res.Payload); err != nil {
		return nil, err
	}
	return res, nil
}

func classifyError(text string) ResponseCode {
	switch {
	case strings.HasPrefix(text, replyErrorFormat):
		return ResponseErrorFormat
	case strings.HasPrefix(text, replyErrorIllegalState):
		return ResponseErrorIllegalState
	case strings.HasPrefix(text, replyErrorBelowHorizon):
		return ResponseErrorBelowHorizon
	default:
		return ResponseErrorUnknown
	}
}

// parseFields fills dst from a run of key=value tokens. The whole text has to be
// consumed; anything left over means the payload is not what we think it is.
func parseFields(text string, dst map[string]string) error {
	keys := fieldKey.FindAllStringIndex(text, -1)
	if len(keys) == 0 {
		return parseError("classify", "no fields", nil)
	}
	if keys[0][0] != 0 {
		return parseError("classify", "trailing unparsed text", nil)
	}

	for i, loc := range keys {
		end := len(text)
		if i+1 < len(keys) {
			end = keys[i+1][0]
		}

		value := text[loc[1]:end]
		if i+1 < len(keys) {
			value = strings.TrimSuffix(value, fieldSeparator)
		}
		if !fieldValue.MatchString(value) {
			return parseError("classify", "trailing unparsed text", nil)
		}

		dst[text[loc[0]:loc[1]-1]] = value
	}
	return nil
}
