package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/profacademy/profacademy/internal/catalog"
	"github.com/profacademy/profacademy/internal/llm"
	"github.com/profacademy/profacademy/internal/progress"
	"github.com/profacademy/profacademy/internal/store"
	"github.com/profacademy/profacademy/internal/tutor"
)

const taskReply = "Los geht's!\n```json:prof-python-action\n{\"action\":\"WRITE_CODE\",\"code\":\"# 🎯 AUFGABE: Print\\n# DEIN CODE HIER:\\n\"}\n```"

type fixture struct {
	url      string
	mock     *llm.MockProvider
	manager  *tutor.Manager
	progress *progress.Repository
}

func newFixture(t *testing.T, opts Options, streams ...llm.MockStream) *fixture {
	t.Helper()
	st, err := store.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	mock := llm.NewMockProvider(streams...)
	repo := progress.NewRepository(st.KVRepo(), logger)
	cat := catalog.Default()
	mgr := tutor.NewManager(tutor.Deps{
		Catalog:  cat,
		Provider: mock,
		Progress: repo,
		Archive:  st.TranscriptRepo(),
		Logger:   logger,
	})

	opts.Manager = mgr
	opts.Catalog = cat
	opts.Progress = repo
	opts.Logger = logger
	ts := httptest.NewServer(New(opts))
	t.Cleanup(func() {
		mgr.CloseAll()
		ts.Close()
		st.Close()
	})
	return &fixture{url: ts.URL, mock: mock, manager: mgr, progress: repo}
}

func reply(text string) llm.MockStream {
	return llm.MockStream{Fragments: []string{text}}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.url+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// newSession creates a session and selects python over the stream verb so
// the greeting is finished when it returns.
func (f *fixture) newSession(t *testing.T) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	events := readSSE(t, f.do(t, http.MethodPost, "/api/sessions/"+created.ID+"/language", `{"language":"python"}`))
	require.Equal(t, sseDone, events[len(events)-1].name)
	return created.ID
}

type sseEvent struct {
	name string
	data string
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var (
		out []sseEvent
		cur sseEvent
	)
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func names(events []sseEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.name
	}
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, Options{})

	resp := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.do(t, http.MethodGet, "/api/languages", "")
	want := `profacademy_http_requests_total{method="GET",route="/api/languages",status="200"} 1`
	assert.Eventually(t, func() bool {
		resp, err := http.Get(f.url + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		return err == nil && strings.Contains(string(body), want)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLanguages(t *testing.T) {
	f := newFixture(t, Options{})

	resp := f.do(t, http.MethodGet, "/api/languages", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var langs []languageView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&langs))

	require.Len(t, langs, 2)
	py := langs[0]
	assert.Equal(t, "python", py.Key)
	require.Len(t, py.Categories, 3)
	assert.False(t, py.Categories[0].Locked)
	assert.True(t, py.Categories[1].Locked)
	assert.Equal(t, 1, py.Categories[0].Level)
	assert.Equal(t, 1, py.Categories[0].Modules[0].ID)
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t, Options{}, reply("Willkommen!"))

	resp := f.do(t, http.MethodPost, "/api/sessions", `{"language":"cobol"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, f.manager.Len())

	resp = f.do(t, http.MethodPost, "/api/sessions", `{"language":"python"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	sess, ok := f.manager.Get(created.ID)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		st := sess.Snapshot()
		return !st.Loading && len(st.History) == 2
	}, 2*time.Second, 10*time.Millisecond)

	resp = f.do(t, http.MethodGet, "/api/sessions/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state tutor.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, "python", state.Language)
	assert.Equal(t, "Willkommen!", state.History[1].Content)

	resp = f.do(t, http.MethodGet, "/api/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/sessions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, f.manager.Len())
}

func TestModuleStream(t *testing.T) {
	f := newFixture(t, Options{}, reply("Willkommen!"), llm.MockStream{Fragments: []string{taskReply[:20], taskReply[20:]}})
	id := f.newSession(t)

	events := readSSE(t, f.do(t, http.MethodPost, "/api/sessions/"+id+"/modules/1", ""))
	got := names(events)
	assert.Equal(t, "reset", got[0])
	assert.Contains(t, got, "preview")
	assert.Contains(t, got, "action")
	assert.Contains(t, got, "workspace")
	assert.Equal(t, sseDone, got[len(got)-1])

	var state tutor.State
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-1].data), &state))
	assert.Equal(t, 1, state.Module)
	assert.Equal(t, "# 🎯 AUFGABE: Print\n# DEIN CODE HIER:", state.Workspace.Code)
	assert.False(t, state.Loading)

	for _, e := range events {
		if e.name == "action" {
			var ev map[string]any
			require.NoError(t, json.Unmarshal([]byte(e.data), &ev))
			assert.Equal(t, "WRITE_CODE", ev["actionKind"])
		}
	}
}

func TestStreamErrors(t *testing.T) {
	f := newFixture(t, Options{}, reply("Willkommen!"))

	resp := f.do(t, http.MethodPost, "/api/sessions", "")
	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	base := "/api/sessions/" + created.ID

	resp = f.do(t, http.MethodPost, base+"/modules/1", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "no language selected")

	readSSE(t, f.do(t, http.MethodPost, base+"/language", `{"language":"python"}`))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"locked category", http.MethodPost, base + "/modules/8", "", http.StatusForbidden},
		{"unknown module", http.MethodPost, base + "/modules/999", "", http.StatusNotFound},
		{"bad module id", http.MethodPost, base + "/modules/eins", "", http.StatusBadRequest},
		{"empty run", http.MethodPost, base + "/run", "", http.StatusBadRequest},
		{"empty question", http.MethodPost, base + "/messages", `{"content":" "}`, http.StatusBadRequest},
		{"invalid body", http.MethodPost, base + "/messages", `{`, http.StatusBadRequest},
		{"continue without module", http.MethodPost, base + "/continue", "", http.StatusConflict},
		{"step without debugger", http.MethodPost, base + "/debug/step", "", http.StatusConflict},
		{"unknown session", http.MethodPost, "/api/sessions/nope/run", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
	assert.Equal(t, 1, f.mock.CallCount())
}

func TestStreamFailureAfterStart(t *testing.T) {
	f := newFixture(t, Options{}, reply("Willkommen!"), llm.MockStream{
		Fragments: []string{"Teil"},
		Err:       &llm.ErrProviderUnavailable{},
	})
	id := f.newSession(t)

	events := readSSE(t, f.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", `{"content":"Hallo?"}`))
	last := events[len(events)-1]
	assert.Equal(t, sseError, last.name)
	assert.Contains(t, last.data, "stream reply")
}

func TestBusySessionAndCancel(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, Options{}, reply("Willkommen!"), llm.MockStream{Fragments: []string{"a", "b"}, Gate: gate})
	id := f.newSession(t)
	sess, _ := f.manager.Get(id)

	type result struct {
		resp *http.Response
		err  error
	}
	started := make(chan result, 1)
	go func() {
		resp, err := http.Post(f.url+"/api/sessions/"+id+"/run", "application/json", strings.NewReader(`{"code":"print(1)"}`))
		started <- result{resp, err}
	}()
	require.Eventually(t, sess.Loading, 2*time.Second, 5*time.Millisecond)

	resp := f.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", `{"content":"Hallo?","code":"x = 2"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/sessions/"+id+"/run", `{"code":"overwritten"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "print(1)", sess.Snapshot().Workspace.Code, "a refused request leaves the editor alone")

	gate <- struct{}{}
	require.Eventually(t, func() bool { return sess.Snapshot().Preview == "a" }, 2*time.Second, 5*time.Millisecond)

	resp = f.do(t, http.MethodPost, "/api/sessions/"+id+"/cancel", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var run result
	select {
	case run = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not start")
	}
	require.NoError(t, run.err)
	defer run.resp.Body.Close()
	events := readSSE(t, run.resp)
	require.NotEmpty(t, events)
	assert.Equal(t, sseDone, events[len(events)-1].name)

	st := sess.Snapshot()
	assert.False(t, st.Loading)
	last := st.History[len(st.History)-1]
	assert.True(t, strings.HasPrefix(last.Content, "a"), "partial reply is kept")
	assert.Contains(t, last.Content, catalog.Default().Phrases.Interrupted)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Options{RatePerSecond: 0.001, Burst: 1}, reply("Willkommen!"))
	id := f.newSession(t)

	sess, _ := f.manager.Get(id)
	sess.SetCode("print(0)")

	resp := f.do(t, http.MethodPost, "/api/sessions/"+id+"/run", `{"code":"print(1)"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 1, f.mock.CallCount())
	assert.Equal(t, "print(0)", sess.Snapshot().Workspace.Code)
}

func TestProgressEndpoints(t *testing.T) {
	f := newFixture(t, Options{}, reply("Willkommen!"), reply(taskReply), reply("Weiter!"))
	id := f.newSession(t)
	base := "/api/sessions/" + id

	readSSE(t, f.do(t, http.MethodPost, base+"/modules/1", ""))
	events := readSSE(t, f.do(t, http.MethodPost, base+"/continue", ""))
	assert.Contains(t, names(events), "toast")

	resp := f.do(t, http.MethodGet, "/api/progress", "")
	var ledger map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ledger))
	assert.JSONEq(t, `{"completedModules":[1],"Grundlagen":{"level":1,"xp":100},"Datenstrukturen":{"level":1,"xp":0},"Meisterschaft":{"level":1,"xp":0}}`, string(ledger["python"]))

	resp = f.do(t, http.MethodDelete, "/api/progress?lang=cobol", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/progress?lang=python", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, f.progress.Load(context.Background()), "python")

	resp = f.do(t, http.MethodDelete, "/api/progress", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, f.progress.Load(context.Background()))
}

func TestWebSocketFeed(t *testing.T) {
	f := newFixture(t, Options{}, reply("Willkommen!"), reply("Antwort"))
	id := f.newSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.url, "http")+"/api/sessions/"+id+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var first map[string]json.RawMessage
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.JSONEq(t, `"state"`, string(first["kind"]))

	require.NoError(t, wsjson.Write(ctx, conn, wsMessage{Type: wsCode, Content: "print(2)"}))
	sess, _ := f.manager.Get(id)
	require.Eventually(t, func() bool { return sess.Snapshot().Workspace.Code == "print(2)" }, 2*time.Second, 5*time.Millisecond)

	readSSE(t, f.do(t, http.MethodPost, "/api/sessions/"+id+"/messages", `{"content":"Warum?"}`))

	for {
		var ev tutor.Event
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		if ev.Kind == tutor.EventMessage && ev.Message != nil && ev.Message.Content == "Antwort" {
			break
		}
	}
}

func TestLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	l := newLimiter(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, l.allow("a"))

	now = now.Add(visitorTTL + 2*time.Minute)
	l.allow("c")
	l.mu.Lock()
	_, kept := l.visitors["a"]
	l.mu.Unlock()
	assert.False(t, kept, "idle buckets are swept")

	unlimited := newLimiter(0, 0)
	for range 10 {
		assert.True(t, unlimited.allow("x"))
	}
}
