package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceai/capture"
	"voiceai/config"
	"voiceai/controller"
	"voiceai/gateway"
	"voiceai/messenger"
	"voiceai/webpanel"
)

// stack is the full app minus tray, hotkey and browser: simulated
// recorder, canned gateway, real bridge and web panel.
type stack struct {
	ctrl   *controller.Controller
	fake   *gateway.Fake
	tmp    string
	base   string
	conn   *websocket.Conn
	copied chan string
}

func newStack(t *testing.T, apiKey string) *stack {
	t.Helper()
	st := newHeadlessStack(t, apiKey)

	url := "ws" + strings.TrimPrefix(st.base, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	st.conn = conn
	t.Cleanup(func() { conn.Close() })
	return st
}

// newHeadlessStack starts the stack with no panel attached, as when
// recording is driven from the tray or the hotkey.
func newHeadlessStack(t *testing.T, apiKey string) *stack {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("simulated recorder needs a POSIX sh")
	}

	st := &stack{
		fake:   gateway.NewFake("hello from the microphone", "hello from ChatGPT"),
		tmp:    t.TempDir(),
		copied: make(chan string, 4),
	}
	settings := config.Defaults()
	settings.APIKey = apiKey

	recorder := capture.New(capture.SimulatedCommand)
	bridge := messenger.NewBridge()
	st.ctrl = controller.New(controller.Options{
		Capturer: recorder,
		Gateway:  st.fake,
		Outbox:   bridge,
		Settings: func() config.Settings { return settings },
		Clipboard: func(text string) error {
			st.copied <- text
			return nil
		},
		TempDir: st.tmp,
	})
	bridge.OnDetach(st.ctrl.Dispose)

	srv := httptest.NewServer(webpanel.New(bridge).Handler())
	ctx, cancel := context.WithCancel(context.Background())
	go bridge.Serve(ctx, st.ctrl)
	st.base = srv.URL

	t.Cleanup(func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		st.ctrl.Close(closeCtx)
		cancel()
		bridge.Close()
		srv.Close()
		recorder.Close()
	})
	return st
}

func (st *stack) send(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, st.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (st *stack) recv(t *testing.T) map[string]any {
	t.Helper()
	st.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := st.conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func (st *stack) leftovers(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(st.tmp)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestEndToEndRecordTranscribeAsk(t *testing.T) {
	st := newStack(t, "sk-test")

	st.send(t, `{"command":"startSystemRecording"}`)
	assert.Equal(t, "recordingStarted", st.recv(t)["command"])

	st.send(t, `{"command":"stopSystemRecording"}`)
	assert.Equal(t, "recordingStopped", st.recv(t)["command"])

	res := st.recv(t)
	assert.Equal(t, "results", res["command"])
	assert.Equal(t, "hello from the microphone", res["transcription"])
	assert.Nil(t, res["feedback"])
	assert.Equal(t, int32(1), st.fake.TranscribeCalls.Load())

	require.Eventually(t, func() bool { return st.ctrl.State() == controller.Idle }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, st.leftovers(t), "artifact removed after processing")

	st.send(t, `{"command":"sendToChatGPT","text":"hello from the microphone"}`)
	reply := st.recv(t)
	assert.Equal(t, "chatGPTResponse", reply["command"])
	assert.Equal(t, "hello from ChatGPT", reply["response"])

	st.send(t, `{"command":"copyText","text":"hello from ChatGPT"}`)
	select {
	case got := <-st.copied:
		assert.Equal(t, "hello from ChatGPT", got)
	case <-time.After(2 * time.Second):
		t.Fatal("copyText never reached the clipboard")
	}
}

func TestEndToEndMissingKey(t *testing.T) {
	st := newStack(t, "")

	st.send(t, `{"command":"startSystemRecording"}`)
	st.recv(t)
	st.send(t, `{"command":"stopSystemRecording"}`)
	st.recv(t)

	res := st.recv(t)
	assert.Equal(t, "results", res["command"])
	assert.Equal(t, gateway.TranscribeConfigMessage, res["transcription"])
	assert.Equal(t, int32(0), st.fake.TranscribeCalls.Load(), "no request without a key")

	st.send(t, `{"command":"sendToChatGPT","text":"anything"}`)
	reply := st.recv(t)
	assert.Equal(t, gateway.CompleteConfigMessage, reply["response"])
}

func TestEndToEndStopWithoutRecording(t *testing.T) {
	st := newStack(t, "sk-test")

	st.send(t, `{"command":"stopSystemRecording"}`)
	st.send(t, `{"command":"sendToChatGPT","text":"   "}`)
	reply := st.recv(t)
	assert.Equal(t, "chatGPTResponse", reply["command"])
	assert.Equal(t, controller.MsgNothingToSend, reply["response"])
	assert.Equal(t, controller.Idle, st.ctrl.State())
}

func TestEndToEndPanelCloseStopsRecording(t *testing.T) {
	st := newStack(t, "sk-test")

	st.send(t, `{"command":"startSystemRecording"}`)
	assert.Equal(t, "recordingStarted", st.recv(t)["command"])

	st.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
	st.conn.Close()

	require.Eventually(t, func() bool { return st.ctrl.State() == controller.Idle }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(st.leftovers(t)) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndStrayPanelRequestKeepsRecording(t *testing.T) {
	st := newHeadlessStack(t, "sk-test")
	st.ctrl.Start()
	require.Equal(t, controller.Recording, st.ctrl.State())

	resp, err := http.Get(st.base + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	hdr := http.Header{"Origin": {"http://evil.example"}}
	url := "ws" + strings.TrimPrefix(st.base, "http") + "/ws"
	_, resp, err = websocket.DefaultDialer.Dial(url, hdr)
	require.Error(t, err)
	resp.Body.Close()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, controller.Recording, st.ctrl.State())
}
