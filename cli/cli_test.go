package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/absmach/hetsync"
	"github.com/absmach/hetsync/aggregator"
	"github.com/absmach/hetsync/server"
	smqerrors "github.com/absmach/supermq/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func TestResolveConfig(t *testing.T) {
	cases := []struct {
		name   string
		flags  []string
		args   []string
		err    error
		verify func(t *testing.T, cfg hetsync.Config)
	}{
		{
			name: "defaults",
			verify: func(t *testing.T, cfg hetsync.Config) {
				if cfg != hetsync.DefaultConfig() {
					t.Errorf("Expected defaults, got %+v", cfg)
				}
			},
		},
		{
			name:  "flags override",
			flags: []string{"--quorum", "3", "-p", "7000", "--dim", "16", "--timeout", "500ms", "--admin", ""},
			verify: func(t *testing.T, cfg hetsync.Config) {
				s := cfg.Server
				if s.QuorumSize != 3 || s.ListenAddress != ":7000" || s.Dimension != 16 || s.RoundTimeout != 500*time.Millisecond {
					t.Errorf("Unexpected server config: %+v", s)
				}
				if cfg.Admin.Address != "" {
					t.Errorf("Expected admin to be disabled, got %q", cfg.Admin.Address)
				}
			},
		},
		{
			name: "naive argument",
			args: []string{"naive"},
			verify: func(t *testing.T, cfg hetsync.Config) {
				if !cfg.Server.Naive {
					t.Error("Expected naive mode")
				}
			},
		},
		{
			name: "unknown argument",
			args: []string{"fast"},
			err:  errUnknownMode,
		},
		{
			name:  "invalid quorum",
			flags: []string{"--quorum", "0"},
			err:   hetsync.ErrInvalidQuorum,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := NewServeCmd()
			if err := cmd.ParseFlags(tc.flags); err != nil {
				t.Fatalf("Failed to parse flags: %v", err)
			}

			cfg, err := resolveConfig(cmd, tc.args)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("Expected %v, got %v", tc.err, err)
				}

				return
			}
			if err != nil {
				t.Fatalf("resolveConfig: unexpected error: %v", err)
			}
			tc.verify(t, cfg)
		})
	}
}

func TestWorkerGradient(t *testing.T) {
	g := workerGradient(4, 2)
	if len(g) != 4 {
		t.Fatalf("Expected 4 values, got %d", len(g))
	}
	for _, v := range g {
		if v != 3 {
			t.Errorf("Expected 3, got %v", v)
		}
	}
}

// TestRunWorkers drives two workers through three rounds. Round i sums
// (i+1) from both, so each worker last sees 2*3.
func TestRunWorkers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := server.NewRegistry()
	coordinator, err := aggregator.NewCoordinator(
		aggregator.Config{Dimension: 5, QuorumSize: 2, Naive: true},
		server.NewDistributor(registry, time.Second, logger), nil, logger)
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	srv := server.New(server.Config{Naive: true}, coordinator, registry, nil, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(serveCtx, ln) }()
	defer func() {
		stop()
		<-done
	}()

	opts := workerOptions{address: ln.Addr().String(), dimension: 5, rounds: 3, timeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	for range 2 {
		g.Go(func() error { return runWorker(gctx, logger, opts) })
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("runWorker failed: %v", smqerrors.Wrap(smqerrors.New("worker run"), err))
	}

	model, round := coordinator.LatestModel()
	if round != 3 {
		t.Fatalf("Expected 3 rounds, got %d", round)
	}
	for _, v := range model {
		if v != 6 {
			t.Errorf("Expected 6, got %v", v)
		}
	}
}

func TestFetchJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/round":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"Idle","number":4}`))
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer ts.Close()

	body, err := fetchJSON(context.Background(), ts.URL+"/round")
	if err != nil {
		t.Fatalf("fetchJSON: unexpected error: %v", err)
	}
	m, ok := body.(map[string]any)
	if !ok || m["status"] != "Idle" || m["number"] != float64(4) {
		t.Errorf("Unexpected body: %v", body)
	}

	if _, err := fetchJSON(context.Background(), ts.URL+"/nope"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Expected a 404 error, got %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rounds" || r.URL.Query().Get("limit") != "2" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"total":0,"rounds":[]}`))
	}))
	defer ts.Close()

	var out, errOut bytes.Buffer
	cmd := NewStatusCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"rounds", "--admin", ts.URL, "--limit", "2"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: unexpected error: %v", err)
	}
	if errOut.Len() != 0 {
		t.Errorf("Unexpected error output: %s", errOut.String())
	}
	if !strings.Contains(out.String(), "total") {
		t.Errorf("Expected rounds output, got %q", out.String())
	}
}
