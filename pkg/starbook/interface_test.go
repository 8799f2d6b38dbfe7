package starbook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTransport answers every request with body and records the URLs it saw.
type fakeTransport struct {
	body string
	err  error
	urls []string
}

func (f *fakeTransport) Perform(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.body, f.err
}

func newTestInterface(t *testing.T, body string) (*CommandInterface, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{body: body}
	ci, err := NewCommandInterface(Config{Host: "169.254.1.1"}, transport, zap.NewNop())
	require.NoError(t, err)
	return ci, transport
}

func page(payload string) string {
	return "<html><body><!--" + payload + "--></body></html>"
}

func TestNewCommandInterface(t *testing.T) {
	_, err := NewCommandInterface(Config{Host: "mount"}, nil, nil)
	assert.Error(t, err)

	_, err = NewCommandInterface(Config{}, &fakeTransport{}, nil)
	assert.Error(t, err)

	_, err = NewCommandInterface(Config{Host: "mount", Speed: &SpeedRange{Min: 5, Max: 1}}, &fakeTransport{}, nil)
	assert.Error(t, err)

	ci, err := NewCommandInterface(Config{Host: "mount", Port: 8080}, &fakeTransport{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSpeedRange(), ci.SpeedRange())
	assert.Equal(t, "http://mount:8080/", ci.baseURL)
}

func TestGotoRaDec(t *testing.T) {
	ci, transport := newTestInterface(t, page("OK"))

	code, err := ci.GotoRaDec(context.Background(), 108.875, -5.15)
	require.NoError(t, err)
	assert.Equal(t, ResponseOK, code)
	assert.Equal(t, []string{"http://169.254.1.1:80/GOTORADEC?RA=07+15.30&DEC=-005+09"}, transport.urls)
	assert.Equal(t, transport.urls[0], ci.LastRequestURL())
	assert.Equal(t, "OK", ci.LastResponse())
}

func TestDeviceErrorsAreCodes(t *testing.T) {
	tests := []struct {
		payload string
		want    ResponseCode
	}{
		{"ERROR:FORMAT", ResponseErrorFormat},
		{"ERROR:ILLEGAL STATE", ResponseErrorIllegalState},
		{"ERROR:BELOW HORIZONE", ResponseErrorBelowHorizon},
		{"ERROR:NOPE", ResponseErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			ci, _ := newTestInterface(t, page(tt.payload))

			code, err := ci.Align(context.Background(), 10, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)

			status, code, err := ci.GetStatus(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, StatusResult{}, status)
		})
	}
}

func TestQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("version", func(t *testing.T) {
		ci, transport := newTestInterface(t, page("version=2.7JP"))
		v, code, err := ci.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, ResponseOK, code)
		assert.Equal(t, VersionResult{Full: "2.7JP", MajorMinor: 2.7}, v)
		assert.Equal(t, "http://169.254.1.1:80/VERSION", transport.urls[0])
	})

	t.Run("status", func(t *testing.T) {
		ci, _ := newTestInterface(t, page("RA=07+15.30&DEC=-005+09&STATE=SCOPE&GOTO=0"))
		s, code, err := ci.GetStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, ResponseOK, code)
		assert.Equal(t, StateScope, s.State)
		assert.InDelta(t, 108.875, s.Position.RA, 1e-9)
	})

	t.Run("time", func(t *testing.T) {
		ci, transport := newTestInterface(t, page("time=2024+03+05+07+08+09"))
		tm, _, err := ci.GetTime(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2024, tm.Time.Year)
		assert.Equal(t, "http://169.254.1.1:80/GETIME", transport.urls[0])
	})

	t.Run("round", func(t *testing.T) {
		ci, _ := newTestInterface(t, page("ROUND=100"))
		r, _, err := ci.GetRound(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(100), r.Value)
	})

	t.Run("xy", func(t *testing.T) {
		ci, _ := newTestInterface(t, page("X=1.5&Y=-2"))
		xy, _, err := ci.GetXY(ctx)
		require.NoError(t, err)
		assert.Equal(t, XYResult{X: 1.5, Y: -2}, xy)
	})

	t.Run("place", func(t *testing.T) {
		ci, _ := newTestInterface(t, page("latitude=N035+40&longitude=E139+45&timezone=09"))
		p, code, err := ci.GetPlace(ctx)
		require.NoError(t, err)
		assert.Equal(t, ResponseOK, code)
		assert.Equal(t, PlaceResult{}, p)
	})

	t.Run("mapping failure", func(t *testing.T) {
		ci, _ := newTestInterface(t, page("ROUND=abc"))
		r, _, err := ci.GetRound(ctx)
		assert.True(t, errors.Is(err, ErrParse))
		assert.Equal(t, RoundResult{}, r)
	})
}

func TestSetters(t *testing.T) {
	ctx := context.Background()
	ci, transport := newTestInterface(t, page("OK"))

	code, err := ci.SetTime(ctx, DateTime{Year: 2024, Month: 1, Day: 2, Hour: 3, Minute: 4, Second: 5})
	require.NoError(t, err)
	assert.Equal(t, ResponseOK, code)

	_, err = ci.SetPlace(ctx, GeoPosition{Latitude: 35.6667, Longitude: 139.75}, 9)
	require.NoError(t, err)

	_, err = ci.SetSpeed(ctx, 7)
	require.NoError(t, err)

	_, err = ci.MoveNS(ctx, North, MotionStart)
	require.NoError(t, err)

	_, err = ci.MoveWE(ctx, East, MotionStop)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://169.254.1.1:80/SETTIME?TIME=2024+01+02+03+04+05",
		"http://169.254.1.1:80/SETPLACE?latitude=N035+40&longitude=E139+45&timezone=09",
		"http://169.254.1.1:80/SETSPEED?speed=7",
		"http://169.254.1.1:80/MOVE?NORTH=1&SOUTH=0",
		"http://169.254.1.1:80/MOVE?WEST=0&EAST=0",
	}, transport.urls)
}

func TestValidationSkipsTransport(t *testing.T) {
	ctx := context.Background()
	ci, transport := newTestInterface(t, page("OK"))

	_, err := ci.SetSpeed(ctx, 8)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ci.SetSpeed(ctx, -1)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ci.SetPlace(ctx, GeoPosition{}, 30)
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Empty(t, transport.urls)
	assert.Empty(t, ci.LastRequestURL())
}

func TestZeroSpeedRangeIsKept(t *testing.T) {
	ctx := context.Background()
	transport := &fakeTransport{body: page("OK")}
	ci, err := NewCommandInterface(Config{Host: "mount", Speed: &SpeedRange{}}, transport, nil)
	require.NoError(t, err)
	assert.Equal(t, SpeedRange{}, ci.SpeedRange())

	_, err = ci.SetSpeed(ctx, 5)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Empty(t, transport.urls)

	code, err := ci.SetSpeed(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ResponseOK, code)
	assert.Len(t, transport.urls, 1)
}

func TestHardFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("transport", func(t *testing.T) {
		cause := errors.New("connection refused")
		ci, transport := newTestInterface(t, "")
		transport.err = cause

		_, err := ci.GotoRaDec(ctx, 0, 0)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTransport))
		assert.True(t, errors.Is(err, cause))

		var perr *ProtocolError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, CmdGotoRaDec, perr.Op)
	})

	t.Run("framing", func(t *testing.T) {
		ci, _ := newTestInterface(t, "<html>no comment here</html>")
		_, _, err := ci.Version(ctx)
		assert.True(t, errors.Is(err, ErrFraming))
		assert.Empty(t, ci.LastResponse())
	})

	t.Run("unparsable payload", func(t *testing.T) {
		ci, _ := newTestInterface(t, page("WHAT IS THIS"))
		_, err := ci.MoveNS(ctx, South, MotionStart)
		assert.True(t, errors.Is(err, ErrParse))
		assert.Equal(t, "WHAT IS THIS", ci.LastResponse())
	})

	t.Run("diagnostics reset between calls", func(t *testing.T) {
		ci, transport := newTestInterface(t, page("OK"))
		_, err := ci.Align(ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, "OK", ci.LastResponse())

		transport.body = "<html></html>"
		_, err = ci.Align(ctx, 0, 0)
		require.Error(t, err)
		assert.Empty(t, ci.LastResponse())
	})
}
