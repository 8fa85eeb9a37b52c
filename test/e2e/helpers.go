//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/helpdesk/internal/storage"
	"github.com/cloo-solutions/helpdesk/internal/testutil"
)

const s3Bucket = "helpdesk-e2e"

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T           *testing.T
	Ctx         context.Context
	PostgresC   *testutil.PostgresContainer
	RustFSC     *testutil.RustFSContainer
	S3Client    *storage.S3Client
	Provider    *FakeProvider
	BinaryDir   string
	ContentRoot string
	ServerURL   string
	HTTPClient  *http.Client

	daemon *exec.Cmd
}

// SetupE2EEnv starts the containers, a fake chat provider and builds the binaries
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     s3C.AccessKey,
		SecretAccessKey: s3C.SecretKey,
		Bucket:          s3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	env := &E2ETestEnv{
		T:           t,
		Ctx:         ctx,
		PostgresC:   pgC,
		RustFSC:     s3C,
		S3Client:    s3Client,
		Provider:    NewFakeProvider(t),
		ContentRoot: t.TempDir(),
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
	env.buildBinaries()
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	e.StopDaemon()
	if e.RustFSC != nil {
		_ = e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		_ = os.RemoveAll(e.BinaryDir)
	}
}

func (e *E2ETestEnv) buildBinaries() {
	tmpDir, err := os.MkdirTemp("", "helpdesk-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"helpdeskd", "helpdesk"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// Env returns the daemon environment pointing at the containers and the fake provider.
func (e *E2ETestEnv) Env() []string {
	return append(os.Environ(),
		"HELPDESK_CONTENT_ROOT="+e.ContentRoot,
		"HELPDESK_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"HELPDESK_VECTOR_PERSISTENCE=postgres",
		"HELPDESK_VECTOR_DB_PATH=",
		"HELPDESK_OPENAI_API_KEY=sk-e2e",
		"HELPDESK_OPENAI_BASE_URL="+e.Provider.URL(),
		"HELPDESK_EMBEDDING_PROVIDER=hash",
		"HELPDESK_S3_ENDPOINT="+e.RustFSC.Endpoint(),
		"HELPDESK_S3_ACCESS_KEY_ID="+e.RustFSC.AccessKey,
		"HELPDESK_S3_SECRET_ACCESS_KEY="+e.RustFSC.SecretKey,
		"HELPDESK_S3_BUCKET="+s3Bucket,
		"HELPDESK_S3_PREFIX=knowledge",
		"HELPDESK_LOG_FORMAT=console",
	)
}

// RunDaemonCmd runs a one-shot helpdeskd command
func (e *E2ETestEnv) RunDaemonCmd(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "helpdeskd"), args...)
	cmd.Env = e.Env()
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// StartDaemon runs `helpdeskd serve` until Cleanup
func (e *E2ETestEnv) StartDaemon() {
	port, err := getFreePort()
	if err != nil {
		e.T.Fatalf("failed to get free port: %v", err)
	}

	cmd := exec.Command(filepath.Join(e.BinaryDir, "helpdeskd"), "serve", "--port", fmt.Sprint(port))
	cmd.Env = e.Env()
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		e.T.Fatalf("failed to start helpdeskd: %v", err)
	}
	e.daemon = cmd
	e.ServerURL = fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, e.ServerURL, 30*time.Second)
}

// StopDaemon interrupts the daemon and waits for a graceful exit
func (e *E2ETestEnv) StopDaemon() {
	if e.daemon == nil || e.daemon.Process == nil {
		return
	}
	_ = e.daemon.Process.Signal(os.Interrupt)
	done := make(chan struct{})
	go func() {
		_ = e.daemon.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		_ = e.daemon.Process.Kill()
	}
	e.daemon = nil
}

// RunClient runs the helpdesk CLI against the daemon
func (e *E2ETestEnv) RunClient(stdin string, args ...string) (stdout, stderr string, err error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "helpdesk"), args...)
	cmd.Stdin = bytes.NewReader([]byte(stdin))
	cmd.Env = append(os.Environ(),
		"HELPDESK_API_URL="+e.ServerURL,
		"XDG_CONFIG_HOME="+e.T.TempDir(),
		"HOME="+e.T.TempDir(),
	)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err = cmd.Run()
	return out.String(), errOut.String(), err
}

// GetJSON fetches path and decodes the data envelope
func (e *E2ETestEnv) GetJSON(path string, out any) error {
	resp, err := e.HTTPClient.Get(e.ServerURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Data, out)
}

// FakeProvider is an OpenAI-compatible streaming endpoint that records prompts
type FakeProvider struct {
	srv *httptest.Server

	mu      sync.Mutex
	prompts []string
}

func NewFakeProvider(t *testing.T) *FakeProvider {
	p := &FakeProvider{}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		p.mu.Lock()
		for _, m := range req.Messages {
			p.prompts = append(p.prompts, m.Role+": "+m.Content)
		}
		p.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range []string{"Returns are ", "accepted for 30 days."} {
			b, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": f}}},
			})
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
			w.(http.Flusher).Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *FakeProvider) URL() string {
	return p.srv.URL
}

// Prompts returns every message the provider has received
func (p *FakeProvider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
