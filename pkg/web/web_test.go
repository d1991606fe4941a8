package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-retail-voice/internal/log"
	"github.com/teslashibe/go-retail-voice/pkg/intent"
	"github.com/teslashibe/go-retail-voice/pkg/pipeline"
	"github.com/teslashibe/go-retail-voice/pkg/session"
)

// fakeRunner records inputs and answers with a canned state.
type fakeRunner struct {
	mu     sync.Mutex
	inputs []pipeline.Input
	state  func(in pipeline.Input) *pipeline.State
}

func (f *fakeRunner) Run(ctx context.Context, in pipeline.Input) *pipeline.State {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	return f.state(in)
}

func (f *fakeRunner) last() pipeline.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[len(f.inputs)-1]
}

// offTopicRunner counts every turn as off-topic.
func offTopicRunner() *fakeRunner {
	return &fakeRunner{state: func(in pipeline.Input) *pipeline.State {
		return &pipeline.State{
			RequestID:     "req-1",
			Transcript:    in.Text,
			Intent:        intent.General,
			Params:        intent.Params{},
			OffTopicCount: in.OffTopicCount + 1,
			ResponseText:  "Hello",
			ResponseAudio: []byte("mp3"),
			AudioMIME:     "audio/mpeg",
		}
	}}
}

func newTestServer(t *testing.T, r Runner, store session.Store) *Server {
	t.Helper()
	return NewServer(Config{
		Version:  "test",
		Runner:   r,
		Sessions: store,
		Logger:   log.Discard(),
	})
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

func postText(t *testing.T, s *Server, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	return resp
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, offTopicRunner(), nil)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, map[string]string{"status": "ok", "service": "retail-voice", "version": "test"}, body)

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestText(t *testing.T) {
	t.Run("missing text", func(t *testing.T) {
		s := newTestServer(t, offTopicRunner(), nil)
		for _, body := range []string{`{}`, `{"text":"   "}`, `not json`} {
			resp := postText(t, s, "/text", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		}
	})

	t.Run("response shape", func(t *testing.T) {
		r := offTopicRunner()
		s := newTestServer(t, r, nil)

		resp := postText(t, s, "/text", `{"text":"hello there"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got Response
		decode(t, resp, &got)
		assert.Equal(t, "hello there", got.TranscribedText)
		assert.Equal(t, "general", got.Intent)
		assert.Equal(t, "Hello", got.ResponseText)
		assert.Equal(t, "audio/mpeg", got.AudioMimeType)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("mp3")), got.AudioResponse)
		assert.Empty(t, got.SessionID, "no session store configured")
		assert.Nil(t, got.Debug)
		assert.Equal(t, "hello there", r.last().Text)
	})

	t.Run("session threads the counter", func(t *testing.T) {
		r := offTopicRunner()
		s := newTestServer(t, r, session.NewMemoryStore(10, time.Minute))

		var first Response
		decode(t, postText(t, s, "/text", `{"text":"hi"}`), &first)
		require.NotEmpty(t, first.SessionID)
		assert.Equal(t, 1, first.OffTopicCount)

		var second Response
		decode(t, postText(t, s, "/text", `{"text":"hi","sessionId":"`+first.SessionID+`"}`), &second)
		assert.Equal(t, first.SessionID, second.SessionID)
		assert.Equal(t, 2, second.OffTopicCount)
		assert.Equal(t, 1, r.last().OffTopicCount)
	})

	t.Run("overlapping turns keep the count", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		r := &fakeRunner{state: func(in pipeline.Input) *pipeline.State {
			if in.Text == "is 42 in stock" {
				close(started)
				<-release
				return &pipeline.State{Transcript: in.Text, Intent: intent.Stock, OffTopicCount: in.OffTopicCount}
			}
			return &pipeline.State{Transcript: in.Text, Intent: intent.General, OffTopicCount: in.OffTopicCount + 1}
		}}
		store := session.NewMemoryStore(10, time.Minute)
		s := newTestServer(t, r, store)

		slow := make(chan Response, 1)
		go func() {
			req := httptest.NewRequest(http.MethodPost, "/text", strings.NewReader(`{"text":"is 42 in stock","sessionId":"conv"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.App().Test(req, 5000)
			if err != nil {
				close(slow)
				return
			}
			var got Response
			defer resp.Body.Close()
			_ = json.NewDecoder(resp.Body).Decode(&got)
			slow <- got
		}()
		<-started

		var fast Response
		decode(t, postText(t, s, "/text", `{"text":"tell me a joke","sessionId":"conv"}`), &fast)
		assert.Equal(t, 1, fast.OffTopicCount)

		close(release)
		got, ok := <-slow
		require.True(t, ok)
		assert.Equal(t, 1, got.OffTopicCount)

		n, err := store.Load(context.Background(), "conv")
		require.NoError(t, err)
		assert.Equal(t, 1, n, "slower on-topic turn must not roll the count back")
	})

	t.Run("failure is not a server error", func(t *testing.T) {
		r := &fakeRunner{state: func(in pipeline.Input) *pipeline.State {
			return &pipeline.State{
				RequestID:    "req-2",
				Transcript:   in.Text,
				Intent:       intent.Unknown,
				ResponseText: "unavailable",
				Failure:      &pipeline.Failure{Kind: pipeline.TransientUnavailable, Message: "tool provider down"},
			}
		}}
		s := newTestServer(t, r, nil)

		resp := postText(t, s, "/text?debug=true", `{"text":"is 42 in stock"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got Response
		decode(t, resp, &got)
		assert.Equal(t, "unavailable", got.ResponseText)
		assert.Equal(t, "transient_unavailable: tool provider down", got.Error)
		require.NotNil(t, got.Debug)
		require.NotNil(t, got.Debug.Failure)
		assert.Equal(t, pipeline.TransientUnavailable, got.Debug.Failure.Kind)
	})
}

func TestDebug(t *testing.T) {
	r := &fakeRunner{state: func(in pipeline.Input) *pipeline.State {
		return &pipeline.State{
			RequestID:    "req-3",
			Transcript:   in.Text,
			Intent:       intent.Stock,
			Params:       intent.Params{"productId": "42"},
			ToolName:     "query_stock",
			ToolResult:   `{"stock":3}`,
			ResponseText: "Product 42 is in stock.",
			Stages:       []pipeline.StageTiming{{Stage: "health", Duration: time.Millisecond}},
		}
	}}
	s := newTestServer(t, r, nil)

	var raw map[string]json.RawMessage
	decode(t, postText(t, s, "/text?debug=true", `{"text":"stock of 42"}`), &raw)
	require.Contains(t, raw, "debug")

	var d map[string]any
	require.NoError(t, json.Unmarshal(raw["debug"], &d))
	assert.Equal(t, "query_stock", d["toolName"])
	assert.Equal(t, map[string]any{"productId": "42"}, d["intentParams"])
	assert.Contains(t, d, "health")
	assert.Len(t, d["stages"], 1)
	assert.NotContains(t, d, "failure")
}

func TestVoice(t *testing.T) {
	t.Run("missing audio", func(t *testing.T) {
		s := newTestServer(t, offTopicRunner(), nil)
		resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/voice", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var got map[string]string
		decode(t, resp, &got)
		assert.Equal(t, "No audio file provided", got["error"])
	})

	t.Run("multipart upload", func(t *testing.T) {
		r := offTopicRunner()
		s := newTestServer(t, r, session.NewMemoryStore(10, time.Minute))

		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		fw, err := w.CreateFormFile("audio", "clip.webm")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("webm-bytes"))
		require.NoError(t, w.WriteField("sessionId", "sess-1"))
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/voice", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		resp, err := s.App().Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got Response
		decode(t, resp, &got)
		assert.Equal(t, "sess-1", got.SessionID)

		in := r.last()
		assert.Equal(t, []byte("webm-bytes"), in.Audio)
		assert.Equal(t, "webm", in.Format)
		assert.Equal(t, "clip.webm", in.Filename)
		assert.Empty(t, in.Text)
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "retail_voice_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(Config{Runner: offTopicRunner(), Gatherer: reg, Logger: log.Discard()})
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "retail_voice_test_total 1")

	s = newTestServer(t, offTopicRunner(), nil)
	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, offTopicRunner(), nil)
	for _, path := range []string{"/ws/turns", "/ws/voice"} {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode, path)
	}
}
