package turn

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/bdobrica/Shiori/internal/shiori/docs"
	"github.com/bdobrica/Shiori/internal/shiori/kv"
	"github.com/bdobrica/Shiori/internal/shiori/llm"
	"github.com/bdobrica/Shiori/internal/shiori/memory"
	"github.com/bdobrica/Shiori/internal/shiori/nlp"
	"github.com/bdobrica/Shiori/internal/shiori/retrieval"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// started at init by the genai dependency tree.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// stubCompleter records every request and answers with reply or err.
type stubCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []llm.Request
}

func (s *stubCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func (s *stubCompleter) last() llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

type stubRecords map[string]*docs.ProjectRecord

func (s stubRecords) ProjectRecord(_ context.Context, id string) (*docs.ProjectRecord, error) {
	return s[id], nil
}

// stubDocs serves both document texts and key listings.
type stubDocs map[string]string

func (m stubDocs) DocumentText(_ context.Context, key string) (string, error) {
	t, ok := m[key]
	if !ok {
		return "", docs.ErrDocumentRead
	}
	return t, nil
}

func (m stubDocs) ListKeys(_ context.Context, prefix, ext string) ([]string, error) {
	var out []string
	for k := range m {
		if strings.HasPrefix(k, prefix) && docs.Ext(k) == ext {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// wordEmbedder counts a few domain words; identical questions embed
// identically.
type wordEmbedder struct{}

func (wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	v := []float32{
		float32(strings.Count(lower, "budget")),
		float32(strings.Count(lower, "livraison")),
		float32(strings.Count(lower, "risque")),
	}
	if v[0]+v[1]+v[2] == 0 {
		v = append(v, 1)
	} else {
		v = append(v, 0)
	}
	return v, nil
}

type fixedExtractor nlp.ExtractionResult

func (f fixedExtractor) Extract(context.Context, string) nlp.ExtractionResult {
	return nlp.ExtractionResult(f)
}

type harness struct {
	orch      *Orchestrator
	kv        *kv.MemoryStore
	mem       *memory.Store
	turns     *memory.TurnLog
	completer *stubCompleter
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	kvs := kv.NewMemoryStore()
	h := &harness{
		kv:        kvs,
		mem:       memory.NewStore(kvs, nil),
		turns:     memory.NewTurnLog(kvs, 0, 0),
		completer: &stubCompleter{reply: "réponse générée"},
	}
	cfg := Config{
		Memory:    h.mem,
		TurnLog:   h.turns,
		Completer: h.completer,
		Ladder:    nlp.NewLadder(nlp.MustCompileDefault()),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = o
	return h
}

func (h *harness) handle(t *testing.T, req Request) *Response {
	t.Helper()
	resp, err := h.orch.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle(%q): %v", req.Message, err)
	}
	return resp
}

func (h *harness) loadMemory(t *testing.T, userID string) *memory.SessionMemory {
	t.Helper()
	m, err := h.mem.Load(context.Background(), userID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return m
}

func TestNew_RequiresCollaborators(t *testing.T) {
	ladder := nlp.NewLadder(nlp.MustCompileDefault())
	mem := memory.NewStore(kv.NewMemoryStore(), nil)
	for name, cfg := range map[string]Config{
		"no memory":    {Completer: &stubCompleter{}, Ladder: ladder},
		"no completer": {Memory: mem, Ladder: ladder},
		"no ladder":    {Memory: mem, Completer: &stubCompleter{}},
	} {
		if _, err := New(cfg); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestHandle_Validation(t *testing.T) {
	h := newHarness(t, nil)
	for _, req := range []Request{
		{Message: "  ", UserID: "u1"},
		{Message: "bonjour", UserID: ""},
	} {
		_, err := h.orch.Handle(context.Background(), req)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("Handle(%+v) err = %v, want ErrValidation", req, err)
		}
	}
	if _, err := h.kv.Get(context.Background(), memory.Key("u1")); !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("memory written for rejected request: %v", err)
	}
}

func TestHandle_Reset(t *testing.T) {
	h := newHarness(t, nil)
	h.handle(t, Request{Message: "quel est le budget du rapport ?", UserID: "u1"})

	resp := h.handle(t, Request{Message: "reset memory", UserID: "u1"})
	if resp.Strategy != StrategyReset || resp.Reply != FrenchPrompts.ResetAck {
		t.Fatalf("reset response = %+v", resp)
	}
	if diff := cmp.Diff(memory.New(), h.loadMemory(t, "u1")); diff != "" {
		t.Errorf("memory after reset (-want +got):\n%s", diff)
	}
	if resp.TraceID == "" {
		t.Error("trace id missing")
	}
}

func TestHandle_ContactShortCircuit(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Records = stubRecords{"A24-0001": {Referent: "Jean Martin", Guichet: "Guichet Nord"}}
	})

	resp := h.handle(t, Request{Message: "qui dois-je contacter ?", UserID: "u1", AffairID: "A24-0001"})
	if resp.Strategy != StrategyContact {
		t.Fatalf("strategy = %s, want contact", resp.Strategy)
	}
	if !strings.Contains(resp.Reply, "Jean Martin") || !strings.Contains(resp.Reply, "Guichet Nord") {
		t.Errorf("reply = %q", resp.Reply)
	}
	if n := h.completer.calls(); n != 0 {
		t.Errorf("completion calls = %d, want 0", n)
	}
	if got := len(h.loadMemory(t, "u1").History); got != 2 {
		t.Errorf("history len = %d, want 2", got)
	}
	entries, err := h.turns.List(context.Background(), "u1")
	if err != nil || len(entries) != 1 || entries[0].Strategy != string(StrategyContact) {
		t.Errorf("turn log = %+v, %v", entries, err)
	}
}

func TestHandle_ContactWithoutRecord(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Records = stubRecords{} })
	resp := h.handle(t, Request{Message: "qui est le référent ?", UserID: "u1", AffairID: "A9"})
	if resp.Strategy != StrategyContact || resp.Reply != FrenchPrompts.NoContact {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandle_MailRequestIsNotContact(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Records = stubRecords{"A1": {Referent: "Jean Martin"}}
	})
	resp := h.handle(t, Request{Message: "rédige un mail au référent pour le rapport", UserID: "u1", AffairID: "A1"})
	if resp.Strategy == StrategyContact {
		t.Fatal("mail drafting request short-circuited to contact")
	}
	if h.completer.calls() != 1 {
		t.Errorf("completion calls = %d, want 1", h.completer.calls())
	}
}

func TestHandle_Clarification(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.handle(t, Request{Message: "et ?", UserID: "u1"})
	if resp.Strategy != StrategyClarification || resp.Reply != FrenchPrompts.Clarification {
		t.Fatalf("response = %+v", resp)
	}
	if h.completer.calls() != 0 {
		t.Errorf("completion calls = %d, want 0", h.completer.calls())
	}
}

func TestHandle_ExplicitFileAnalysis(t *testing.T) {
	key := "affaires/A24-0001/devis.pdf"
	h := newHarness(t, func(c *Config) {
		c.Texts = stubDocs{key: "Montant total du devis : 42 000 euros."}
		c.Embedder = wordEmbedder{}
	})

	resp := h.handle(t, Request{
		Message:          "résume ce devis",
		UserID:           "u1",
		AffairID:         "A24-0001",
		AttachedFileKeys: []string{key},
	})
	if resp.Strategy != StrategyExplicitFiles {
		t.Fatalf("strategy = %s, want explicit_files", resp.Strategy)
	}
	if resp.Provenance == nil {
		t.Fatal("provenance missing")
	}
	if diff := cmp.Diff([]string{"devis.pdf"}, resp.Provenance.Files); diff != "" {
		t.Errorf("provenance files (-want +got):\n%s", diff)
	}
	req := h.completer.last()
	if req.Messages[0].Role != llm.RoleSystem || !strings.Contains(req.Messages[0].Content, "42 000 euros") {
		t.Errorf("system message = %+v", req.Messages[0])
	}

	m := h.loadMemory(t, "u1")
	if m.CurrentFile == nil || m.CurrentFile.Name != "devis.pdf" || m.CurrentFile.ActiveCount != memory.InitialActiveCount {
		t.Errorf("current file = %+v", m.CurrentFile)
	}
	if len(m.History) != 2 || m.History[0].Embedding == nil {
		t.Errorf("history = %+v", m.History)
	}
}

func TestHandle_ExplicitFileTruncation(t *testing.T) {
	key := "affaires/A1/long.txt"
	h := newHarness(t, func(c *Config) {
		c.Texts = stubDocs{key: strings.Repeat("é", 50)}
		c.Options.MaxFileChars = 10
	})
	h.handle(t, Request{Message: "analyse", UserID: "u1", AttachedFileKeys: []string{key}})

	system := h.completer.last().Messages[0].Content
	if !strings.Contains(system, strings.Repeat("é", 10)+"\n"+FrenchPrompts.TruncatedMarker) {
		t.Errorf("truncated text not flagged:\n%s", system)
	}
	if strings.Contains(system, strings.Repeat("é", 11)) {
		t.Error("text not truncated")
	}
}

func TestHandle_FileDecay(t *testing.T) {
	d := stubDocs{"affaires/A1/Rapport.pdf": "Le rapport conclut à un dépassement du budget."}
	h := newHarness(t, func(c *Config) {
		c.Texts = d
		c.Lister = d
	})

	resp := h.handle(t, Request{Message: "Rapport.pdf", UserID: "u1", AffairID: "A1"})
	if resp.Strategy != StrategyStandard {
		t.Fatalf("first strategy = %s", resp.Strategy)
	}
	if m := h.loadMemory(t, "u1"); m.CurrentFile == nil || m.CurrentFile.ActiveCount != 2 {
		t.Fatalf("after mention current file = %+v", m.CurrentFile)
	}

	resp = h.handle(t, Request{Message: "et celui-ci ?", UserID: "u1", AffairID: "A1"})
	if resp.Strategy != StrategyStandard {
		t.Fatalf("second strategy = %s", resp.Strategy)
	}
	m := h.loadMemory(t, "u1")
	if m.CurrentFile == nil || m.CurrentFile.ActiveCount != 1 {
		t.Fatalf("after reuse current file = %+v", m.CurrentFile)
	}
	if resp.Provenance == nil || len(resp.Provenance.Files) != 1 || resp.Provenance.Files[0] != "Rapport.pdf" {
		t.Errorf("provenance = %+v", resp.Provenance)
	}
	msgs := h.completer.last().Messages
	if last := msgs[len(msgs)-1]; !strings.Contains(last.Content, "dépassement du budget") {
		t.Errorf("explain instruction = %q", last.Content)
	}

	h.handle(t, Request{Message: "et celui-ci ?", UserID: "u1", AffairID: "A1"})
	if m := h.loadMemory(t, "u1"); m.CurrentFile != nil {
		t.Errorf("current file not cleared at zero: %+v", m.CurrentFile)
	}
}

func TestHandle_ComparisonOfTwoFiles(t *testing.T) {
	d := stubDocs{
		"affaires/A1/devis.pdf":   "Devis initial de 10 000 euros.",
		"affaires/A1/avenant.pdf": "Avenant portant le montant à 12 000 euros.",
	}
	h := newHarness(t, func(c *Config) {
		c.Texts = d
		c.Lister = d
	})
	resp := h.handle(t, Request{Message: "compare devis et avenant", UserID: "u1", AffairID: "A1"})

	if resp.Provenance == nil || len(resp.Provenance.Files) != 2 {
		t.Fatalf("provenance = %+v", resp.Provenance)
	}
	msgs := h.completer.last().Messages
	last := msgs[len(msgs)-1].Content
	if !strings.Contains(last, "10 000") || !strings.Contains(last, "12 000") {
		t.Errorf("comparison instruction = %q", last)
	}
	if m := h.loadMemory(t, "u1"); len(m.MultiFilesActive) != 2 {
		t.Errorf("multiFilesActive = %+v", m.MultiFilesActive)
	}
}

func TestHandle_GenerationFailureLeavesMemory(t *testing.T) {
	h := newHarness(t, nil)
	h.handle(t, Request{Message: "quel est le budget du rapport ?", UserID: "u1"})
	before, err := h.kv.Get(context.Background(), memory.Key("u1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	h.completer.err = llm.ErrCompletion
	resp := h.handle(t, Request{Message: "et le planning du rapport ?", UserID: "u1"})
	if resp.Strategy != StrategyError || resp.Reply != FrenchPrompts.GenericError {
		t.Fatalf("response = %+v", resp)
	}
	after, _ := h.kv.Get(context.Background(), memory.Key("u1"))
	if string(before) != string(after) {
		t.Errorf("memory changed after failed generation:\nbefore %s\nafter  %s", before, after)
	}
}

func TestHandle_SimilarPast(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Embedder = wordEmbedder{} })
	q := "quel est le budget du rapport ?"

	h.completer.reply = "Le budget est de 120 000 euros."
	first := h.handle(t, Request{Message: q, UserID: "u1"})
	if first.SimilarPast != nil {
		t.Errorf("first turn similarPast = %+v", first.SimilarPast)
	}

	h.completer.reply = "Toujours 120 000 euros."
	second := h.handle(t, Request{Message: q, UserID: "u1"})
	want := &SimilarPast{Question: q, Answer: "Le budget est de 120 000 euros.", Score: 1}
	if diff := cmp.Diff(want, second.SimilarPast); diff != "" {
		t.Errorf("similarPast (-want +got):\n%s", diff)
	}
}

func TestHandle_GlobalSummaryFromRecord(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Records = stubRecords{"A1": {Titre: "Rénovation du gymnase", Etat: "En cours"}}
	})
	resp := h.handle(t, Request{Message: "fais-moi une synthèse", UserID: "u1", AffairID: "A1"})
	if resp.Strategy != StrategyGlobalSummary {
		t.Fatalf("strategy = %s", resp.Strategy)
	}
	if h.completer.calls() != 1 {
		t.Fatalf("completion calls = %d, want 1", h.completer.calls())
	}
	if system := h.completer.last().Messages[0].Content; !strings.Contains(system, "Rénovation du gymnase") {
		t.Errorf("system prompt = %q", system)
	}
}

func TestHandle_GlobalSummaryRecordLabelsFollowLanguage(t *testing.T) {
	rec := &docs.ProjectRecord{Titre: "Rénovation du gymnase", Etat: "En cours", Referent: "Jean Martin"}
	tests := []struct {
		name    string
		prompts *Prompts
		want    []string
		notWant string
	}{
		{"french", &FrenchPrompts, []string{"Affaire : A1", "Titre : Rénovation du gymnase", "État : En cours", "Référent : Jean Martin"}, "Title :"},
		{"english", &EnglishPrompts, []string{"Affair : A1", "Title : Rénovation du gymnase", "State : En cours", "Referent : Jean Martin"}, "Titre :"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *Config) {
				c.Records = stubRecords{"A1": rec}
				c.Options.Prompts = tt.prompts
			})
			h.handle(t, Request{Message: "fais-moi une synthèse", UserID: "u1", AffairID: "A1"})
			system := h.completer.last().Messages[0].Content
			for _, w := range tt.want {
				if !strings.Contains(system, w) {
					t.Errorf("system prompt missing %q:\n%s", w, system)
				}
			}
			if strings.Contains(system, tt.notWant) {
				t.Errorf("system prompt contains %q:\n%s", tt.notWant, system)
			}
		})
	}
}

func TestHandle_GlobalSummaryGrounded(t *testing.T) {
	d := stubDocs{"affaires/A1/planning.txt": "La livraison du lot 1 est prévue pour le mois de juin."}
	h := newHarness(t, func(c *Config) {
		c.Texts = d
		c.Lister = d
		c.Retriever = retrieval.NewRetriever(wordEmbedder{}, d, kv.NewMemoryStore(), nil)
	})
	resp := h.handle(t, Request{Message: "quelle est la date de livraison ?", UserID: "u1"})
	if resp.Strategy != StrategyGlobalSummary {
		t.Fatalf("strategy = %s", resp.Strategy)
	}
	if resp.Provenance == nil || len(resp.Provenance.Sources) != 1 || resp.Provenance.Sources[0] != "affaires/A1/planning.txt" {
		t.Errorf("provenance = %+v", resp.Provenance)
	}
	if system := h.completer.last().Messages[0].Content; !strings.Contains(system, "mois de juin") {
		t.Errorf("grounded prompt = %q", system)
	}
}

func TestHandle_GlobalSummarySpecifyFile(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"fais-moi une synthèse", FrenchPrompts.SpecifyFile[nlp.RequestSummary]},
		{"analyse les risques", FrenchPrompts.SpecifyFile[nlp.RequestAnalysis]},
		{"quelle est la date de livraison ?", FrenchPrompts.SpecifyFile[nlp.RequestQuestion]},
		{"aide-moi à avancer", FrenchPrompts.SpecifyFile[nlp.RequestGeneral]},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			h := newHarness(t, nil)
			resp := h.handle(t, Request{Message: tt.message, UserID: "u1"})
			if resp.Strategy != StrategyGlobalSummary || resp.Reply != tt.want {
				t.Errorf("response = %+v, want reply %q", resp, tt.want)
			}
			if h.completer.calls() != 0 {
				t.Errorf("completion calls = %d, want 0", h.completer.calls())
			}
		})
	}
}

func TestHandle_SmallTalkIsStandard(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.handle(t, Request{Message: "merci beaucoup", UserID: "u1"})
	if resp.Strategy != StrategyStandard {
		t.Errorf("strategy = %s, want standard", resp.Strategy)
	}
}

func TestHandle_EntitiesAndGoalsRemembered(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Extractor = fixedExtractor{
			Intent:   "connaître le budget",
			Entities: []memory.Entity{{Type: memory.EntityAmount, Value: "120 000"}},
		}
	})
	h.handle(t, Request{Message: "quel est le budget du rapport ?", UserID: "u1"})

	m := h.loadMemory(t, "u1")
	if diff := cmp.Diff([]string{"connaître le budget"}, m.UserGoals); diff != "" {
		t.Errorf("goals (-want +got):\n%s", diff)
	}
	if system := h.completer.last().Messages[0].Content; !strings.Contains(system, "amount=120 000") {
		t.Errorf("memory block missing from system prompt:\n%s", system)
	}
}

func TestHandle_CompressionRefreshesSummary(t *testing.T) {
	summarizer := &stubCompleter{reply: "Objectifs: budget."}
	h := newHarness(t, func(c *Config) {
		c.Compressor = memory.NewCompressor(summarizer, 2, nil)
	})
	h.handle(t, Request{Message: "quel est le budget du rapport ?", UserID: "u1"})
	h.handle(t, Request{Message: "et le planning du rapport ?", UserID: "u1"})

	if summarizer.calls() != 1 {
		t.Fatalf("compression calls = %d, want 1", summarizer.calls())
	}
	if m := h.loadMemory(t, "u1"); m.ContextSummary != "Objectifs: budget." {
		t.Errorf("contextSummary = %q", m.ContextSummary)
	}
	if system := h.completer.last().Messages[0].Content; !strings.Contains(system, "Objectifs: budget.") {
		t.Errorf("condensed history missing from prompt:\n%s", system)
	}
}

func TestHandle_ShortCircuitTurnsCompress(t *testing.T) {
	summarizer := &stubCompleter{reply: "Échanges sans contenu."}
	h := newHarness(t, func(c *Config) {
		c.Compressor = memory.NewCompressor(summarizer, 2, nil)
	})
	for range 2 {
		resp := h.handle(t, Request{Message: "et ?", UserID: "u1"})
		if resp.Strategy != StrategyClarification {
			t.Fatalf("strategy = %s, want clarification", resp.Strategy)
		}
	}

	if summarizer.calls() != 1 {
		t.Fatalf("compression calls = %d, want 1", summarizer.calls())
	}
	if h.completer.calls() != 0 {
		t.Errorf("generation calls = %d, want 0", h.completer.calls())
	}
	m := h.loadMemory(t, "u1")
	if m.ContextSummary != "Échanges sans contenu." {
		t.Errorf("contextSummary = %q", m.ContextSummary)
	}
	if len(m.History) != 4 {
		t.Errorf("history length = %d, want 4", len(m.History))
	}
}

func TestHandle_RateLimited(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Limiter = NewRateLimiter(1, 0) })
	h.handle(t, Request{Message: "quel est le budget du rapport ?", UserID: "u1"})
	before, _ := h.kv.Get(context.Background(), memory.Key("u1"))

	resp := h.handle(t, Request{Message: "quel est le budget du rapport ?", UserID: "u1"})
	if resp.Strategy != StrategyRateLimited || resp.Reply != FrenchPrompts.RateLimited {
		t.Fatalf("response = %+v", resp)
	}
	after, _ := h.kv.Get(context.Background(), memory.Key("u1"))
	if string(before) != string(after) {
		t.Error("memory changed on a rate-limited turn")
	}
}

func TestFindSimilarPast(t *testing.T) {
	history := []memory.MessageRecord{
		{Role: memory.RoleUser, Content: "q1", Embedding: []float32{1, 0}},
		{Role: memory.RoleAssistant, Content: "a1"},
		{Role: memory.RoleUser, Content: "q2", Embedding: []float32{0.95, 0.05}},
		{Role: memory.RoleAssistant, Content: "a2"},
		{Role: memory.RoleUser, Content: "q3"},
		{Role: memory.RoleAssistant, Content: "a3"},
	}
	got := FindSimilarPast(history, []float32{1, 0}, 0.9)
	if got == nil || got.Question != "q1" || got.Answer != "a1" {
		t.Errorf("FindSimilarPast = %+v", got)
	}
	if got := FindSimilarPast(history, []float32{0, 1}, 0.9); got != nil {
		t.Errorf("orthogonal query matched %+v", got)
	}
	if got := FindSimilarPast(history, nil, 0.9); got != nil {
		t.Errorf("nil query matched %+v", got)
	}
}
