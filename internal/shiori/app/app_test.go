package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bdobrica/Shiori/internal/shiori/app"
	"github.com/bdobrica/Shiori/internal/shiori/config"
	"github.com/bdobrica/Shiori/internal/shiori/store"
	"github.com/bdobrica/Shiori/internal/shiori/turn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// net/http keeps idle client connections to the fake model server.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		// started at init by the genai dependency tree.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// fakeModel answers every chat completion with reply and counts calls.
func fakeModel(t *testing.T, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newApp(t *testing.T, modelURL string) *app.App {
	t.Helper()
	dir := t.TempDir()
	docsRoot := filepath.Join(dir, "documents")
	if err := os.MkdirAll(filepath.Join(docsRoot, "affaires", "A24-0001"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		DBPath:            filepath.Join(dir, "shiori.db"),
		HTTPAddr:          "127.0.0.1:0",
		DocsRoot:          docsRoot,
		LLM:               config.LLM{Provider: config.ProviderOpenAI, BaseURL: modelURL, MaxTokens: 256},
		Embedding:         config.Embedding{Provider: config.ProviderNoop},
		CompressThreshold: 10,
		TurnLogTTL:        time.Hour,
		KVPurgeInterval:   time.Minute,
		Engine:            config.DefaultEngine(),
	}
	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestApp_ContactTurnFromImportedRecord(t *testing.T) {
	model, calls := fakeModel(t, "{}")
	a := newApp(t, model.URL)
	ctx := context.Background()

	n, err := a.ImportAffairs(ctx, []store.Affair{{ID: "A24-0001", Titre: "Gymnase", Referent: "Jean Martin"}})
	if err != nil || n != 1 {
		t.Fatalf("ImportAffairs = %d, %v", n, err)
	}

	body := `{"message":"qui dois-je contacter ?","userId":"u1","affairId":"A24-0001"}`
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp turn.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Strategy != turn.StrategyContact || !strings.Contains(resp.Reply, "Jean Martin") {
		t.Errorf("response = %+v", resp)
	}
	// Entity extraction runs on every non-reset turn; only it reaches the model.
	if got := calls.Load(); got != 1 {
		t.Errorf("model calls = %d, want 1 (extraction only)", got)
	}
}

func TestApp_StandardTurnReachesModel(t *testing.T) {
	model, _ := fakeModel(t, "Le rapport n'est pas encore disponible.")
	a := newApp(t, model.URL)

	resp, err := a.Turns().Handle(context.Background(), turn.Request{Message: "que dit le rapport ?", UserID: "u1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.Strategy != turn.StrategyStandard || resp.Reply != "Le rapport n'est pas encore disponible." {
		t.Errorf("response = %+v", resp)
	}
}

func TestApp_ImportRejectsMissingID(t *testing.T) {
	model, _ := fakeModel(t, "")
	a := newApp(t, model.URL)
	n, err := a.ImportAffairs(context.Background(), []store.Affair{{ID: "A1"}, {Titre: "sans id"}})
	if err == nil || n != 1 {
		t.Errorf("ImportAffairs = %d, %v", n, err)
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	model, _ := fakeModel(t, "")
	a := newApp(t, model.URL)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_MissingDocsRoot(t *testing.T) {
	cfg := &config.Config{
		DBPath:    filepath.Join(t.TempDir(), "shiori.db"),
		DocsRoot:  filepath.Join(t.TempDir(), "missing"),
		LLM:       config.LLM{Provider: config.ProviderOpenAI, BaseURL: "http://127.0.0.1:1"},
		Embedding: config.Embedding{Provider: config.ProviderNoop},
		Engine:    config.DefaultEngine(),
	}
	if _, err := app.New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for a missing documents root")
	}
}
