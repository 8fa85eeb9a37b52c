package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDaemon answers POST /chat by echoing the message, assigning "conv-1"
// when the request carries no conversation id.
type fakeDaemon struct {
	mu       sync.Mutex
	requests []ChatRequest
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"Invalid JSON payload."}`)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"Message cannot be empty."}`)
		return
	}

	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()

	id := req.ConversationID
	if id == "" {
		id = "conv-1"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set(conversationIDHeader, id)
	_, _ = io.WriteString(w, "echo: ")
	w.(http.Flusher).Flush()
	_, _ = io.WriteString(w, req.Message)
}

func (d *fakeDaemon) sent() []ChatRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ChatRequest(nil), d.requests...)
}

func runChatCmd(t *testing.T, apiURL, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := ChatCmd()
	cmd.Flags().String("api-url", "", "")
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--api-url", apiURL}, args...))
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestChatCmd_OneShot(t *testing.T) {
	useConfigPath(t)
	daemon := &fakeDaemon{}
	srv := httptest.NewServer(daemon)
	defer srv.Close()

	stdout, stderr, err := runChatCmd(t, srv.URL, "", "where", "is", "my", "order?")
	require.NoError(t, err)

	assert.Equal(t, "echo: where is my order?\n", stdout)
	assert.Contains(t, stderr, "conversation: conv-1")
	require.Len(t, daemon.sent(), 1)
	assert.Empty(t, daemon.sent()[0].ConversationID)

	config, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, "conv-1", config.LastConversationID)
}

func TestChatCmd_InteractiveKeepsConversation(t *testing.T) {
	useConfigPath(t)
	daemon := &fakeDaemon{}
	srv := httptest.NewServer(daemon)
	defer srv.Close()

	stdout, stderr, err := runChatCmd(t, srv.URL, "hello\nthanks\n\nignored\n")
	require.NoError(t, err)

	assert.Equal(t, "echo: hello\necho: thanks\n", stdout)
	assert.Equal(t, 1, strings.Count(stderr, "conversation: conv-1"))

	sent := daemon.sent()
	require.Len(t, sent, 2)
	assert.Empty(t, sent[0].ConversationID)
	assert.Equal(t, "conv-1", sent[1].ConversationID)
}

func TestChatCmd_Continue(t *testing.T) {
	useConfigPath(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{LastConversationID: "conv-9"}))
	daemon := &fakeDaemon{}
	srv := httptest.NewServer(daemon)
	defer srv.Close()

	_, stderr, err := runChatCmd(t, srv.URL, "", "--continue", "again")
	require.NoError(t, err)

	require.Len(t, daemon.sent(), 1)
	assert.Equal(t, "conv-9", daemon.sent()[0].ConversationID)
	assert.NotContains(t, stderr, "conversation:", "id unchanged")
}

func TestChatCmd_ContinueWithoutHistory(t *testing.T) {
	useConfigPath(t)

	_, _, err := runChatCmd(t, "http://127.0.0.1:1", "", "--continue", "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no previous conversation")
}

func TestChatCmd_APIError(t *testing.T) {
	useConfigPath(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"AI provider is not configured."}`)
	}))
	defer srv.Close()

	_, _, err := runChatCmd(t, srv.URL, "", "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "AI provider is not configured.", apiErr.Message)
}

func TestHistoryCmd(t *testing.T) {
	useConfigPath(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/conv-1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"conversation not found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"id":"conv-1","messages":[
			{"role":"user","content":"hi","createdAt":"2024-01-01T00:00:00Z"},
			{"role":"assistant","content":"hello","createdAt":"2024-01-01T00:00:01Z"}]}}`)
	}))
	defer srv.Close()

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		cmd := HistoryCmd()
		cmd.Flags().String("api-url", "", "")
		cmd.SetOut(&out)
		cmd.SetErr(io.Discard)
		cmd.SetArgs(append([]string{"--api-url", srv.URL}, args...))
		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	out, err := run("conv-1")
	require.NoError(t, err)
	assert.Contains(t, out, "user:\nhi")
	assert.Contains(t, out, "assistant:\nhello")

	_, err = run("conv-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversation conv-2 not found")

	require.NoError(t, rememberConversation("conv-1"))
	out, err = run()
	require.NoError(t, err)
	assert.Contains(t, out, "assistant:\nhello")
}
