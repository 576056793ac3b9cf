package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/audio/audiotest"
	"github.com/audiolibrelab/voicerec/internal/config"
	"github.com/audiolibrelab/voicerec/internal/encode"
	"github.com/audiolibrelab/voicerec/internal/service"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEncoder struct{}

func (stubEncoder) Encode(_ context.Context, req encode.Request) encode.Result {
	if len(req.Samples) == 0 {
		return encode.Result{Err: &encode.Error{Kind: encode.KindNoAudioCaptured}}
	}
	return encode.Result{Path: req.Destination}
}

type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	source *audiotest.ScriptedSource
	ctrl   *service.Controller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()

	source := &audiotest.ScriptedSource{}
	ctrl, err := service.New(cfg, service.Options{Source: source, Encoder: stubEncoder{}})
	require.NoError(t, err)

	srv := New(ctrl, cfg, "")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
		ctrl.Close()
	})
	return &testEnv{srv: srv, ts: ts, source: source, ctrl: ctrl}
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.PostForm(e.ts.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestServer_StartStopFlow(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "RECORDING", body["state"])

	env.source.Last().Push(1, 2, 3)

	dest := env.ctrl.GetConfig().Output.Directory + "/take"
	resp, body = env.post(t, "/stop", url.Values{"destination": {dest}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, dest+".mp3", body["path"])
}

func TestServer_StopWhileIdle(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/stop", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestServer_StopWithoutAudio(t *testing.T) {
	env := newTestEnv(t)

	env.post(t, "/start", nil)
	resp, body := env.post(t, "/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, string(encode.KindNoAudioCaptured), body["kind"])
}

func TestServer_StartDeviceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.source.OpenErr = errors.New("no device")

	resp, body := env.post(t, "/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body["error"], "no device")
}

func TestServer_Status(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "IDLE", status.Status)
	assert.Equal(t, "00:00:00", status.ElapsedLabel)
	assert.Equal(t, audio.DefaultFormat, status.Format)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/start")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Post(env.ts.URL+"/status", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Reset(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/start", nil)
	env.source.Last().Fail(errors.New("unplugged"))

	require.Eventually(t, func() bool {
		return env.ctrl.Status().State == "FAILED"
	}, time.Second, 5*time.Millisecond)

	_, body := env.post(t, "/reset", nil)
	assert.Equal(t, "IDLE", body["state"])
}

func TestServer_StartWhileFailedConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/start", nil)
	env.source.Last().Fail(errors.New("unplugged"))

	require.Eventually(t, func() bool {
		return env.ctrl.Status().State == "FAILED"
	}, time.Second, 5*time.Millisecond)

	resp, body := env.post(t, "/start", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "FAILED", body["state"])
	assert.Equal(t, 1, env.source.Opens())

	env.post(t, "/reset", nil)
	resp, body = env.post(t, "/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "RECORDING", body["state"])
}

func TestServer_StartTwiceStaysRecording(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/start", nil)

	resp, body := env.post(t, "/start", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, env.source.Opens())
}

func TestServer_Sources(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/sources")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	env.srv.SetDeviceLister(func() ([]audio.DeviceInfo, error) {
		return []audio.DeviceInfo{{Name: "Built-in Microphone", IsDefault: true}}, nil
	})
	resp, err = http.Get(env.ts.URL + "/sources")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Devices []audio.DeviceInfo `json:"devices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []audio.DeviceInfo{{Name: "Built-in Microphone", IsDefault: true}}, body.Devices)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "voicerec_session_state")
}

func TestServer_EventsStream(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, "IDLE", msg.State)

	require.Eventually(t, func() bool { return env.srv.hub.count() == 1 }, time.Second, 5*time.Millisecond)

	env.post(t, "/start", nil)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	assert.Equal(t, "RECORDING", msg.State)

	env.post(t, "/stop", nil)
	var states []string
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.ReadJSON(&msg))
		states = append(states, msg.State)
	}
	assert.Equal(t, []string{"STOPPING", "STOPPED", "IDLE"}, states)
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.srv.hub.count() == 1 }, time.Second, 5*time.Millisecond)
	env.srv.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
	}
}
