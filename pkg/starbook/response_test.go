package starbook

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr string
	}{
		{
			name: "html page",
			body: "<html><body><!--OK--></body></html>",
			want: "OK",
		},
		{
			name: "first comment wins",
			body: "<!--RA=07+15.30&DEC=-005+09--><!--ignored-->",
			want: "RA=07+15.30&DEC=-005+09",
		},
		{
			name:    "no comment",
			body:    "<html>OK</html>",
			wantErr: "response not found",
		},
		{
			name:    "empty comment",
			body:    "<html><!----></html>",
			wantErr: "response empty",
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: "response not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPayload(tt.body)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrFraming))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponse_Status(t *testing.T) {
	tests := []struct {
		payload string
		want    ResponseCode
	}{
		{"OK", ResponseOK},
		{"ERROR:FORMAT", ResponseErrorFormat},
		{"ERROR:ILLEGAL STATE", ResponseErrorIllegalState},
		{"ERROR:BELOW HORIZONE", ResponseErrorBelowHorizon},
		{"ERROR", ResponseErrorUnknown},
		{"ERROR:SOMETHING ELSE", ResponseErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			res, err := ParseResponse(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.payload, res.Raw)
			assert.Empty(t, res.Payload)
		})
	}
}

func TestParseResponse_Fields(t *testing.T) {
	t.Run("ampersand separated", func(t *testing.T) {
		res, err := ParseResponse("RA=07+15.30&DEC=-005+09&STATE=SCOPE&GOTO=0")
		require.NoError(t, err)
		assert.Equal(t, ResponseOK, res.Status)
		assert.Equal(t, map[string]string{
			"RA":    "07+15.30",
			"DEC":   "-005+09",
			"STATE": "SCOPE",
			"GOTO":  "0",
		}, res.Payload)
	})

	t.Run("no separator", func(t *testing.T) {
		res, err := ParseResponse("RA=07+15.30DEC=-005+09")
		require.NoError(t, err)
		assert.Equal(t, "07+15.30", res.Payload["RA"])
		assert.Equal(t, "-005+09", res.Payload["DEC"])
	})

	t.Run("last duplicate wins", func(t *testing.T) {
		res, err := ParseResponse("X=1&X=2")
		require.NoError(t, err)
		assert.Equal(t, "2", res.Payload["X"])
	})

	t.Run("version with suffix", func(t *testing.T) {
		res, err := ParseResponse("version=2.7JP")
		require.NoError(t, err)
		assert.Equal(t, "2.7JP", res.Payload["version"])
	})
}

func TestParseResponse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantMsg string
	}{
		{name: "empty", payload: "", wantMsg: "no payload"},
		{name: "no fields", payload: "HELLO", wantMsg: "no fields"},
		{name: "leading text", payload: "?? X=1", wantMsg: "trailing unparsed text"},
		{name: "trailing text", payload: "X=1 junk", wantMsg: "trailing unparsed text"},
		{name: "empty value", payload: "X=&Y=1", wantMsg: "trailing unparsed text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResponse(tt.payload)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, ErrParse))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestMountState(t *testing.T) {
	for token, state := range mountStates {
		assert.Equal(t, state, ParseMountState(token))
		assert.Equal(t, token, state.String())
	}
	assert.Equal(t, StateUnknown, ParseMountState("PARKED"))
	assert.Equal(t, "UNKNOWN", StateUnknown.String())
}

func TestResponseCodeJSON(t *testing.T) {
	data, err := json.Marshal(map[string]ResponseCode{"code": ResponseErrorBelowHorizon})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"ERROR_BELOW_HORIZON"}`, string(data))
}
