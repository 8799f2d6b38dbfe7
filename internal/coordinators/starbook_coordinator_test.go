package coordinators

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-starbook/internal/journal"
	"github.com/unklstewy/bigskies-starbook/internal/metrics"
	"github.com/unklstewy/bigskies-starbook/pkg/healthcheck"
	"github.com/unklstewy/bigskies-starbook/pkg/mqtt"
	"github.com/unklstewy/bigskies-starbook/pkg/starbook"
	"github.com/unklstewy/bigskies-starbook/pkg/starbook/simulator"
)

type publication struct {
	topic    string
	retained bool
	message  *mqtt.Message
}

// fakeBus records publications and subscriptions in memory.
type fakeBus struct {
	mu           sync.Mutex
	connected    bool
	published    []publication
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{connected: true, handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBus) PublishJSON(topic string, retained bool, payload interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, _ := payload.(*mqtt.Message)
	b.published = append(b.published, publication{topic: topic, retained: retained, message: msg})
	return nil
}

func (b *fakeBus) Subscribe(topic string, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	b.unsubscribed = append(b.unsubscribed, topic)
	return nil
}

func (b *fakeBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBus) handler(topic string) mqtt.MessageHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[topic]
}

func (b *fakeBus) on(topic string) []publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publication
	for _, p := range b.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// newSimulatedMount serves a simulator and returns a command interface bound to it.
func newSimulatedMount(t *testing.T) (*simulator.Server, *starbook.CommandInterface) {
	t.Helper()

	cfg := simulator.DefaultConfig()
	cfg.SlewDuration = 0
	sim, err := simulator.NewServer(cfg, zap.NewNop())
	require.NoError(t, err)

	ts := httptest.NewServer(sim.Handler())
	t.Cleanup(ts.Close)

	host, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	mount, err := starbook.NewCommandInterface(
		starbook.Config{Host: host, Port: port},
		starbook.NewHTTPTransport(starbook.HTTPTransportConfig{Timeout: 5 * time.Second}, nil),
		zap.NewNop())
	require.NoError(t, err)

	return sim, mount
}

func newTestCoordinator(t *testing.T, mount *starbook.CommandInterface, bus mqtt.Bus) (*StarbookCoordinator, *journal.Memory, *metrics.Metrics) {
	t.Helper()

	recorder := journal.NewMemory(16)
	m := metrics.New()

	config := &StarbookCoordinatorConfig{
		MountName: "test-mount",
		Recorder:  recorder,
		Metrics:   m,
	}
	coord, err := NewStarbookCoordinator(config, mount, bus, zap.NewNop())
	require.NoError(t, err)

	return coord, recorder, m
}

func opResult(t *testing.T, resp mqtt.ResponseMessage) OpResult {
	t.Helper()
	result, ok := resp.Data.(OpResult)
	require.True(t, ok, "response data is %T", resp.Data)
	return result
}

func TestNewStarbookCoordinator(t *testing.T) {
	_, mount := newSimulatedMount(t)

	_, err := NewStarbookCoordinator(nil, mount, nil, nil)
	assert.Error(t, err)

	_, err = NewStarbookCoordinator(&StarbookCoordinatorConfig{}, nil, nil, nil)
	assert.Error(t, err)

	config := &StarbookCoordinatorConfig{}
	coord, err := NewStarbookCoordinator(config, mount, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, mqtt.CoordinatorStarbook, coord.Name())
	assert.Equal(t, mqtt.CoordinatorStarbook, config.MountName)
	assert.Equal(t, 30*time.Second, config.HealthInterval)
	assert.Equal(t, 20, config.DiagnosticsLimit)
	assert.False(t, coord.IsRunning())
}

func TestDispatchGotoAndStatus(t *testing.T) {
	_, mount := newSimulatedMount(t)
	coord, recorder, _ := newTestCoordinator(t, mount, nil)
	ctx := context.Background()

	resp := coord.Dispatch(ctx, OpGoto, json.RawMessage(`{"ra":108.875,"dec":-5.15}`))
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, starbook.ResponseOK, opResult(t, resp).Code)

	diag := coord.Diagnostics()
	assert.Equal(t, OpGoto, diag.Operation)
	assert.True(t, strings.HasSuffix(diag.LastRequestURL, "/GOTORADEC?RA=07+15.30&DEC=-005+09"), diag.LastRequestURL)
	assert.Equal(t, "OK", diag.LastResponse)

	resp = coord.Dispatch(ctx, OpStatus, nil)
	require.True(t, resp.Success, resp.Error)
	status, ok := opResult(t, resp).Result.(starbook.StatusResult)
	require.True(t, ok)
	assert.InDelta(t, 108.875, status.Position.RA, 1e-6)
	assert.InDelta(t, -5.15, status.Position.Dec, 1e-6)
	assert.Equal(t, starbook.StateScope, status.State)
	assert.False(t, status.ExecutingGoto)

	entries, err := recorder.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, starbook.CmdGetStatus, entries[0].Command)
	assert.Equal(t, starbook.CmdGotoRaDec, entries[1].Command)
	assert.Equal(t, "test-mount", entries[1].Mount)
	assert.Equal(t, "OK", entries[1].Code)
}

func TestDispatchDeviceError(t *testing.T) {
	_, mount := newSimulatedMount(t)
	coord, recorder, _ := newTestCoordinator(t, mount, nil)
	ctx := context.Background()

	resp := coord.Dispatch(ctx, OpGoto, json.RawMessage(`{"ra":10,"dec":-80}`))
	assert.False(t, resp.Success)
	assert.Equal(t, "ERROR_BELOW_HORIZON", resp.Error)
	assert.Equal(t, starbook.ResponseErrorBelowHorizon, opResult(t, resp).Code)

	entries, err := recorder.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR:BELOW HORIZONE", entries[0].Payload)
	assert.Empty(t, entries[0].Error)
}

func TestDispatchQueries(t *testing.T) {
	_, mount := newSimulatedMount(t)
	coord, _, _ := newTestCoordinator(t, mount, nil)
	ctx := context.Background()

	resp := coord.Dispatch(ctx, OpVersion, nil)
	require.True(t, resp.Success, resp.Error)
	version := opResult(t, resp).Result.(starbook.VersionResult)
	assert.Equal(t, simulator.DefaultVersion, version.Full)

	for _, op := range []string{OpPlace, OpTime, OpRound, OpXY} {
		resp := coord.Dispatch(ctx, op, nil)
		assert.True(t, resp.Success, "%s: %s", op, resp.Error)
		assert.NotNil(t, opResult(t, resp).Result, op)
	}
}

func TestDispatchSetters(t *testing.T) {
	sim, mount := newSimulatedMount(t)
	coord, _, _ := newTestCoordinator(t, mount, nil)
	ctx := context.Background()

	resp := coord.Dispatch(ctx, OpSpeed, json.RawMessage(`{"speed":5}`))
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, 5, sim.Mount().Speed())

	resp = coord.Dispatch(ctx, OpMove, json.RawMessage(`{"direction":"North"}`))
	require.True(t, resp.Success, resp.Error)
	assert.True(t, sim.Mount().Moving("NORTH"))

	resp = coord.Dispatch(ctx, OpMove, json.RawMessage(`{"direction":"north","stop":true}`))
	require.True(t, resp.Success, resp.Error)
	assert.False(t, sim.Mount().Moving("NORTH"))

	resp = coord.Dispatch(ctx, OpSetPlace, json.RawMessage(`{"latitude":35.6667,"longitude":139.75,"timezone":9}`))
	require.True(t, resp.Success, resp.Error)
	assert.Contains(t, coord.Diagnostics().LastRequestURL, "latitude=N035+40&longitude=E139+45&timezone=09")

	resp = coord.Dispatch(ctx, OpSetTime, json.RawMessage(`{"time":"2024+03+05+21+04+09"}`))
	require.True(t, resp.Success, resp.Error)
	assert.True(t, strings.HasSuffix(coord.Diagnostics().LastRequestURL, "/SETTIME?TIME=2024+03+05+21+04+09"),
		coord.Diagnostics().LastRequestURL)

	resp = coord.Dispatch(ctx, OpSetTime, nil)
	assert.True(t, resp.Success, resp.Error)
}

func TestDispatchRejectedLocally(t *testing.T) {
	_, mount := newSimulatedMount(t)
	coord, recorder, m := newTestCoordinator(t, mount, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		op    string
		body  string
		error string
	}{
		{"speed out of range", OpSpeed, `{"speed":99}`, "speed should be between 0 and 7"},
		{"timezone out of range", OpSetPlace, `{"latitude":0,"longitude":0,"timezone":30}`, "timezone"},
		{"unknown direction", OpMove, `{"direction":"up"}`, "unknown direction"},
		{"malformed body", OpGoto, `{"ra":"east"}`, "invalid request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := coord.Dispatch(ctx, tt.op, json.RawMessage(tt.body))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.error)
		})
	}

	resp := coord.Dispatch(ctx, "park", nil)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, `unknown operation "park"`)

	entries, err := recorder.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, coord.Diagnostics().LastRequestURL)

	body := scrapeMetrics(t, m)
	assert.Contains(t, body, `starbook_command_failures_total{command="SETSPEED",kind="validation"} 1`)
	assert.Contains(t, body, `starbook_command_failures_total{command="MOVE",kind="request"} 1`)
}

func TestDispatchTransportFailure(t *testing.T) {
	down := starbook.TransportFunc(func(context.Context, string) (string, error) {
		return "", errors.New("connection refused")
	})
	mount, err := starbook.NewCommandInterface(starbook.Config{Host: "169.254.1.1"}, down, nil)
	require.NoError(t, err)

	coord, recorder, m := newTestCoordinator(t, mount, nil)
	ctx := context.Background()

	resp := coord.Dispatch(ctx, OpVersion, nil)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "connection refused")
	assert.Equal(t, starbook.ResponseErrorUnknown, opResult(t, resp).Code)

	entries, err := recorder.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "http://169.254.1.1:80/VERSION", entries[0].RequestURL)
	assert.Contains(t, entries[0].Error, "transport error")

	result := coord.checkMount(ctx)
	assert.Equal(t, healthcheck.StatusUnhealthy, result.Status)

	body := scrapeMetrics(t, m)
	assert.Contains(t, body, `starbook_command_failures_total{command="VERSION",kind="transport"} 2`)
	assert.Contains(t, body, "starbook_mount_reachable 0")
}

func TestDispatchMalformedStatusCountsAsParse(t *testing.T) {
	garbled := starbook.TransportFunc(func(context.Context, string) (string, error) {
		return "<html><!--RA=07.15&DEC=000+00&STATE=SCOPE&GOTO=0--></html>", nil
	})
	mount, err := starbook.NewCommandInterface(starbook.Config{Host: "169.254.1.1"}, garbled, nil)
	require.NoError(t, err)

	coord, _, m := newTestCoordinator(t, mount, nil)

	resp := coord.Dispatch(context.Background(), OpStatus, nil)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "bad RA")

	body := scrapeMetrics(t, m)
	assert.Contains(t, body, `starbook_command_failures_total{command="GETSTATUS",kind="parse"} 1`)
	assert.NotContains(t, body, `kind="format"`)
}

func TestCheckMount(t *testing.T) {
	_, mount := newSimulatedMount(t)
	coord, _, m := newTestCoordinator(t, mount, nil)

	result := coord.checkMount(context.Background())
	assert.Equal(t, healthcheck.StatusHealthy, result.Status)
	assert.Equal(t, simulator.DefaultVersion, result.Details["version"])
	assert.Contains(t, scrapeMetrics(t, m), "starbook_mount_reachable 1")
}

func TestHandleMessagePublishesCorrelatedResponse(t *testing.T) {
	_, mount := newSimulatedMount(t)
	bus := newFakeBus()
	coord, _, _ := newTestCoordinator(t, mount, bus)

	request, err := mqtt.NewMessage(mqtt.MessageTypeRequest, "test", GotoRequest{RA: 10, Dec: 20})
	require.NoError(t, err)
	data, err := json.Marshal(request)
	require.NoError(t, err)

	topic := mqtt.CoordinatorCommandTopic(mqtt.CoordinatorStarbook, OpGoto)
	require.NoError(t, coord.handleMessage(context.Background(), topic, data))

	published := bus.on(mqtt.CoordinatorResponseTopic(mqtt.CoordinatorStarbook, OpGoto))
	require.Len(t, published, 1)
	msg := published[0].message
	require.NotNil(t, msg)
	assert.Equal(t, mqtt.MessageTypeResponse, msg.Type)
	assert.Equal(t, request.ID, msg.CorrelationID)
	assert.Equal(t, "coordinator:starbook", msg.Source)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	require.NoError(t, msg.UnmarshalPayload(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "OK", resp.Data.Code)
}

func TestHandleMessageBareRequest(t *testing.T) {
	_, mount := newSimulatedMount(t)
	bus := newFakeBus()
	coord, _, _ := newTestCoordinator(t, mount, bus)

	topic := mqtt.CoordinatorCommandTopic(mqtt.CoordinatorStarbook, OpSpeed)
	require.NoError(t, coord.handleMessage(context.Background(), topic, []byte(`{"speed":3}`)))

	published := bus.on(mqtt.CoordinatorResponseTopic(mqtt.CoordinatorStarbook, OpSpeed))
	require.Len(t, published, 1)
	assert.Empty(t, published[0].message.CorrelationID)

	var resp mqtt.ResponseMessage
	require.NoError(t, published[0].message.UnmarshalPayload(&resp))
	assert.True(t, resp.Success)
}

func TestHandleMessageInvalid(t *testing.T) {
	_, mount := newSimulatedMount(t)
	bus := newFakeBus()
	coord, _, _ := newTestCoordinator(t, mount, bus)
	ctx := context.Background()

	assert.Error(t, coord.handleMessage(ctx, "bigskies/coordinator/telescope/cmd/goto", nil))

	topic := mqtt.CoordinatorCommandTopic(mqtt.CoordinatorStarbook, OpGoto)
	assert.Error(t, coord.handleMessage(ctx, topic, []byte("not json")))

	published := bus.on(mqtt.CoordinatorResponseTopic(mqtt.CoordinatorStarbook, OpGoto))
	require.Len(t, published, 1)
	var resp mqtt.ResponseMessage
	require.NoError(t, published[0].message.UnmarshalPayload(&resp))
	assert.False(t, resp.Success)
}

func TestPublishStatus(t *testing.T) {
	sim, mount := newSimulatedMount(t)
	bus := newFakeBus()
	coord, _, m := newTestCoordinator(t, mount, bus)

	sim.Mount().SetState(starbook.StateGuide)
	coord.publishStatus(context.Background())

	published := bus.on(mqtt.CoordinatorStatusTopic(mqtt.CoordinatorStarbook))
	require.Len(t, published, 1)
	assert.True(t, published[0].retained)
	assert.Equal(t, mqtt.MessageTypeStatus, published[0].message.Type)

	payload := string(published[0].message.Payload)
	assert.Contains(t, payload, `"state":"GUIDE"`)
	assert.Contains(t, payload, `"executing_goto":false`)

	assert.Contains(t, scrapeMetrics(t, m), "starbook_mount_slewing 0")
}

func TestStartStop(t *testing.T) {
	_, mount := newSimulatedMount(t)
	bus := newFakeBus()
	coord, _, _ := newTestCoordinator(t, mount, bus)
	coord.config.HealthInterval = 20 * time.Millisecond
	coord.config.StatusInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, coord.Start(ctx))
	assert.True(t, coord.IsRunning())
	assert.Error(t, coord.Start(ctx))

	wildcard := mqtt.CoordinatorCommandWildcard(mqtt.CoordinatorStarbook)
	handler := bus.handler(wildcard)
	require.NotNil(t, handler)

	require.NoError(t, handler(mqtt.CoordinatorCommandTopic(mqtt.CoordinatorStarbook, OpVersion), []byte(`{}`)))
	assert.Len(t, bus.on(mqtt.CoordinatorResponseTopic(mqtt.CoordinatorStarbook, OpVersion)), 1)

	healthTopic := mqtt.CoordinatorHealthTopic(mqtt.CoordinatorStarbook)
	statusTopic := mqtt.CoordinatorStatusTopic(mqtt.CoordinatorStarbook)
	assert.Eventually(t, func() bool {
		return len(bus.on(healthTopic)) > 0 && len(bus.on(statusTopic)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, coord.Stop(context.Background()))
	assert.False(t, coord.IsRunning())
	assert.Equal(t, []string{wildcard}, bus.unsubscribed)
}

func TestOpsEndpoints(t *testing.T) {
	_, mount := newSimulatedMount(t)
	coord, _, _ := newTestCoordinator(t, mount, nil)
	handler := coord.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "not running yet")

	require.NoError(t, coord.Start(context.Background()))
	defer func() { _ = coord.Stop(context.Background()) }()

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz?refresh=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ops/goto", strings.NewReader(`{"ra":10,"dec":20}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"code":"OK"`)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ops/park", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var diag struct {
		Mount       string          `json:"mount"`
		Diagnostics Diagnostics     `json:"diagnostics"`
		Journal     []journal.Entry `json:"journal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.Equal(t, "test-mount", diag.Mount)
	assert.NotEmpty(t, diag.Diagnostics.LastRequestURL)
	assert.NotEmpty(t, diag.Journal)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `starbook_commands_total{code="OK",command="GOTORADEC"} 1`)
}

func scrapeMetrics(t *testing.T, m *metrics.Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
