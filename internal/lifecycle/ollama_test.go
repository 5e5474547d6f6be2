package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// tagsServer serves /api/tags listing the given model names.
func tagsServer(t *testing.T, names ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		entries := make([]string, len(names))
		for i, name := range names {
			entries[i] = fmt.Sprintf(`{"name":%q}`, name)
		}
		fmt.Fprintf(w, `{"models":[%s]}`, strings.Join(entries, ","))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestIsInstalled(t *testing.T) {
	t.Run("cli on PATH", func(t *testing.T) {
		m := NewOllamaManager()
		m.lookPath = func(file string) (string, error) {
			if file == "ollama" {
				return "/usr/local/bin/ollama", nil
			}
			return "", exec.ErrNotFound
		}

		installed, path, err := m.IsInstalled()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !installed || path != "/usr/local/bin/ollama" {
			t.Errorf("got installed=%v path=%q", installed, path)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		m := NewOllamaManager()
		m.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
		m.fileExists = func(string) bool { return false }

		installed, path, err := m.IsInstalled()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if installed || path != "" {
			t.Errorf("got installed=%v path=%q, want not installed", installed, path)
		}
	})
}

func TestIsRunning(t *testing.T) {
	t.Run("up", func(t *testing.T) {
		server := tagsServer(t)
		m := NewOllamaManagerWithHost(server.URL)

		running, err := m.IsRunning()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !running {
			t.Error("expected running")
		}
	})

	t.Run("down", func(t *testing.T) {
		// Port 1 refuses connections.
		m := NewOllamaManagerWithHost("http://localhost:1")

		running, err := m.IsRunning()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if running {
			t.Error("expected not running")
		}
	})
}

func TestHasModel(t *testing.T) {
	server := tagsServer(t, "nomic-embed-text:latest", "mxbai-embed-large:latest")
	m := NewOllamaManagerWithHost(server.URL)
	ctx := context.Background()

	tests := []struct {
		model string
		want  bool
	}{
		{"nomic-embed-text:latest", true}, // exact
		{"mxbai-embed-large", true},       // base name matches any tag
		{"all-minilm", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := m.HasModel(ctx, tt.model)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasModel(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestListModels(t *testing.T) {
	server := tagsServer(t, "model1", "model2")
	m := NewOllamaManagerWithHost(server.URL)

	models, err := m.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 2 || models[0] != "model1" || models[1] != "model2" {
		t.Errorf("unexpected models: %v", models)
	}
}

func TestStatus_FullStatus(t *testing.T) {
	server := tagsServer(t, "nomic-embed-text:latest")
	m := NewOllamaManagerWithHost(server.URL)
	m.lookPath = func(string) (string, error) { return "/usr/local/bin/ollama", nil }

	status, err := m.Status(context.Background(), "nomic-embed-text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	switch {
	case !status.Installed:
		t.Error("expected Installed")
	case !status.Running:
		t.Error("expected Running")
	case !status.HasModel:
		t.Error("expected HasModel")
	case status.TargetModel != "nomic-embed-text":
		t.Errorf("TargetModel = %q", status.TargetModel)
	}
}

func TestStart_NotInstalled(t *testing.T) {
	m := NewOllamaManagerWithHost("http://localhost:1")
	m.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	m.fileExists = func(string) bool { return false }

	err := m.Start()
	if err == nil {
		t.Fatal("expected error for not installed")
	}
	if _, ok := err.(*NotInstalledError); !ok {
		t.Errorf("expected NotInstalledError, got %T: %v", err, err)
	}
}

func TestWaitForReady(t *testing.T) {
	t.Run("already running", func(t *testing.T) {
		server := tagsServer(t)
		m := NewOllamaManagerWithHost(server.URL)

		if err := m.WaitForReady(context.Background(), time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("becomes ready", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"models":[]}`)
		}))
		t.Cleanup(server.Close)

		m := NewOllamaManagerWithHost(server.URL)
		if err := m.WaitForReady(context.Background(), 5*time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if calls < 3 {
			t.Errorf("expected at least 3 probe calls, got %d", calls)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		t.Cleanup(server.Close)

		m := NewOllamaManagerWithHost(server.URL)
		err := m.WaitForReady(context.Background(), 500*time.Millisecond)
		if err == nil || !strings.Contains(err.Error(), "timeout") {
			t.Errorf("expected timeout error, got: %v", err)
		}
	})
}

func TestPullModel_AlreadyExists(t *testing.T) {
	server := tagsServer(t, "nomic-embed-text:latest")
	m := NewOllamaManagerWithHost(server.URL)

	// No /api/pull handler exists, so pulling would fail; an installed
	// model must short-circuit before that.
	if err := m.PullModel(context.Background(), "nomic-embed-text", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPullModel_Success(t *testing.T) {
	pullLines := []string{
		`{"status":"pulling manifest"}`,
		`{"status":"downloading","total":1000,"completed":500}`,
		`{"status":"success","total":1000,"completed":1000}`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[]}`)
		case "/api/pull":
			flusher, _ := w.(http.Flusher)
			for _, line := range pullLines {
				fmt.Fprintln(w, line)
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
	}))
	t.Cleanup(server.Close)

	m := NewOllamaManagerWithHost(server.URL)

	var updates []PullProgress
	err := m.PullModel(context.Background(), "test-model", func(p PullProgress) {
		updates = append(updates, p)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) == 0 {
		t.Fatal("expected progress callbacks")
	}
}

func TestPullProgressFunc_HandlesStatusAndBytes(t *testing.T) {
	var buf strings.Builder
	fn := CreatePullProgressFunc(&buf)

	fn(PullProgress{Status: "pulling manifest"})
	fn(PullProgress{Status: "downloading", Total: 1000, Completed: 500, Percent: 50})
	fn(PullProgress{Status: "downloading", Total: 1000, Completed: 1000, Percent: 100})

	out := buf.String()
	for _, want := range []string{"pulling manifest", "downloading"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
}

func TestNotInstalledError(t *testing.T) {
	err := &NotInstalledError{}
	if err.Error() != "ollama is not installed" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestInstallInstructions(t *testing.T) {
	instructions := InstallInstructions()
	if !strings.Contains(instructions, "ollama.com") {
		t.Errorf("expected instructions to mention ollama.com, got %q", instructions)
	}
}

func TestIsRemoteHost(t *testing.T) {
	tests := []struct {
		host   string
		remote bool
	}{
		{"http://localhost:11434", false},
		{"http://127.0.0.1:11434", false},
		{"http://ollama.example.com:11434", true},
		{"http://192.168.1.100:11434", true},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			m := NewOllamaManagerWithHost(tt.host)
			if m.IsRemoteHost() != tt.remote {
				t.Errorf("IsRemoteHost() = %v, want %v", m.IsRemoteHost(), tt.remote)
			}
		})
	}
}

func TestHost_Custom(t *testing.T) {
	m := NewOllamaManagerWithHost("http://custom:1234")
	if m.Host() != "http://custom:1234" {
		t.Errorf("expected http://custom:1234, got %s", m.Host())
	}
}
