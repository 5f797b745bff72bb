package turn

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/Shiori/internal/shiori/docs"
	"github.com/bdobrica/Shiori/internal/shiori/embedding"
	"github.com/bdobrica/Shiori/internal/shiori/files"
	"github.com/bdobrica/Shiori/internal/shiori/llm"
	"github.com/bdobrica/Shiori/internal/shiori/memory"
	"github.com/bdobrica/Shiori/internal/shiori/retrieval"
)

// contactReply renders the contact fields of the affair's project record.
func (o *Orchestrator) contactReply(ctx context.Context, st *turnState) string {
	if o.records == nil {
		return o.prompts.NoContact
	}
	rec, err := o.records.ProjectRecord(ctx, st.req.AffairID)
	if err != nil {
		st.log.Warn("turn: project record lookup failed", "err", err)
		return o.prompts.NoContact
	}
	if !rec.HasContact() {
		return o.prompts.NoContact
	}

	values := [5]string{rec.Client, rec.Porteur, rec.Referent, rec.ContactMOAMOEG, rec.Guichet}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s :", o.prompts.ContactHeader, st.req.AffairID)
	for i, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "\n- %s : %s", o.prompts.ContactLabels[i], v)
	}
	return b.String()
}

// explicitFiles answers from the attached documents only.
func (o *Orchestrator) explicitFiles(ctx context.Context, st *turnState) *Response {
	names := make([]string, 0, len(st.req.AttachedFileKeys))
	blocks := make([]string, 0, len(st.req.AttachedFileKeys))
	for i, key := range st.req.AttachedFileKeys {
		ref := files.Reference(key)
		if i == 0 {
			st.mem.MentionFile(ref, st.now)
		} else {
			st.mem.TouchFile(ref, st.now)
		}
		names = append(names, ref.Name)
		blocks = append(blocks, o.documentBlock(ctx, st, key))
	}
	system := fmt.Sprintf(o.prompts.ExplicitFiles, strings.Join(blocks, "\n\n"))

	qv, userIdx := o.beginGeneration(ctx, st)
	msgs := append([]llm.Message{{Role: llm.RoleSystem, Content: system}},
		recentWithResolved(st.mem, o.opts.ExplicitHistoryWindow, userIdx, st.resolved)...)

	reply, ok := o.generate(ctx, st, msgs)
	if !ok {
		return o.failed()
	}
	o.finishGeneration(ctx, st, reply, qv, userIdx)
	return &Response{
		Reply:      reply,
		Strategy:   StrategyExplicitFiles,
		Provenance: &Provenance{Files: names, Prompt: system},
	}
}

// globalSummary handles requests with no document in play: an affair summary
// from its record, a grounded answer from retrieval over the whole corpus, or
// a fixed request to name a file.
func (o *Orchestrator) globalSummary(ctx context.Context, st *turnState, keys files.Keys) *Response {
	if rec := o.projectRecord(ctx, st); rec != nil {
		system := fmt.Sprintf(o.prompts.AffairSummary, o.prompts.formatRecord(st.req.AffairID, rec))
		return o.singleShot(ctx, st, system, &Provenance{Prompt: system})
	}

	if results := o.retrieve(ctx, st, keys); len(results) > 0 {
		system := fmt.Sprintf(o.prompts.Grounded, formatPassages(results))
		return o.singleShot(ctx, st, system, &Provenance{Prompt: system, Sources: sourceKeys(results)})
	}

	reply := o.prompts.specifyFile(o.ladder.ClassifyTopic(st.resolved))
	return o.shortCircuit(ctx, st, reply, StrategyGlobalSummary)
}

func (o *Orchestrator) projectRecord(ctx context.Context, st *turnState) *docs.ProjectRecord {
	if st.req.AffairID == "" || o.records == nil {
		return nil
	}
	rec, err := o.records.ProjectRecord(ctx, st.req.AffairID)
	if err != nil {
		st.log.Warn("turn: project record lookup failed", "err", err)
		return nil
	}
	return rec
}

// singleShot runs one completion with system and the resolved message.
func (o *Orchestrator) singleShot(ctx context.Context, st *turnState, system string, prov *Provenance) *Response {
	qv, userIdx := o.beginGeneration(ctx, st)
	reply, ok := o.generate(ctx, st, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: st.resolved},
	})
	if !ok {
		return o.failed()
	}
	o.finishGeneration(ctx, st, reply, qv, userIdx)
	return &Response{Reply: reply, Strategy: StrategyGlobalSummary, Provenance: prov}
}

// standard is the full contextual generation.
func (o *Orchestrator) standard(ctx context.Context, st *turnState, sel files.Selection, keys files.Keys) *Response {
	qv, userIdx := o.beginGeneration(ctx, st)

	var system []string
	system = append(system, o.prompts.System)
	if hint, ok := o.prompts.TypeHints[o.ladder.Classify(st.resolved)]; ok {
		system = append(system, hint)
	}
	if s := strings.TrimSpace(st.mem.ContextSummary); s != "" {
		system = append(system, fmt.Sprintf(o.prompts.Condensed, s))
	}

	prov := &Provenance{}
	var results []retrieval.Result
	if len(sel.Files) == 0 {
		results = o.retrieve(ctx, st, keys)
		if len(results) > 0 {
			system = append(system, fmt.Sprintf(o.prompts.Retrieved, formatPassages(results)))
			prov.Sources = sourceKeys(results)
		}
	}
	if m := formatMemory(st.mem); m != "" {
		system = append(system, fmt.Sprintf(o.prompts.Memory, m))
	}

	var instruction string
	if len(sel.Files) > 0 {
		blocks := make([]string, 0, len(sel.Files))
		for _, f := range sel.Files {
			prov.Files = append(prov.Files, f.Name)
			blocks = append(blocks, o.documentBlock(ctx, st, f.Key))
		}
		if len(sel.Files) >= 2 {
			instruction = fmt.Sprintf(o.prompts.Compare, strings.Join(blocks, "\n\n"))
		} else {
			instruction = fmt.Sprintf(o.prompts.Explain, blocks[0])
		}
	}

	systemPrompt := strings.Join(system, "\n\n")
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	msgs = append(msgs, recentWithResolved(st.mem, o.opts.HistoryWindow, userIdx, st.resolved)...)
	if instruction != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: instruction})
	}
	prov.Prompt = systemPrompt

	reply, ok := o.generate(ctx, st, msgs)
	if !ok {
		return o.failed()
	}
	similar := o.finishGeneration(ctx, st, reply, qv, userIdx)

	resp := &Response{Reply: reply, Strategy: StrategyStandard, SimilarPast: similar}
	if len(prov.Files) > 0 || len(prov.Sources) > 0 {
		resp.Provenance = prov
	}
	return resp
}

func (o *Orchestrator) retrieve(ctx context.Context, st *turnState, keys files.Keys) []retrieval.Result {
	if o.retriever == nil {
		return nil
	}
	return o.retriever.Retrieve(ctx, st.resolved, retrieval.Corpus{AffairID: st.req.AffairID, Keys: keys.All()})
}

// documentBlock loads a document's text, truncated to MaxFileChars runes, as
// a titled block.
func (o *Orchestrator) documentBlock(ctx context.Context, st *turnState, key string) string {
	name := docs.FileName(key)
	if o.texts == nil {
		return fmt.Sprintf("### %s\n%s", name, o.prompts.Unreadable)
	}
	text, err := o.texts.DocumentText(ctx, key)
	if err != nil {
		st.log.Warn("turn: document unreadable", "key", key, "err", err)
		return fmt.Sprintf("### %s\n%s", name, o.prompts.Unreadable)
	}
	text, truncated := truncate(text, o.opts.MaxFileChars)
	if truncated {
		text += "\n" + o.prompts.TruncatedMarker
	}
	return fmt.Sprintf("### %s\n%s", name, text)
}

func truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	r := []rune(s)
	if len(r) <= max {
		return s, false
	}
	return string(r[:max]), true
}

func (p *Prompts) formatRecord(affairID string, r *docs.ProjectRecord) string {
	values := [10]string{
		affairID, r.Titre, r.Etat, r.TypeDemande, r.Description,
		r.Client, r.Porteur, r.Referent, r.ContactMOAMOEG, r.Guichet,
	}
	labels := append(p.RecordLabels[:], p.ContactLabels[:]...)
	var lines []string
	for i, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			lines = append(lines, labels[i]+" : "+v)
		}
	}
	return strings.Join(lines, "\n")
}

func formatPassages(results []retrieval.Result) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", docs.FileName(r.SourceKey), r.PassageText)
	}
	return b.String()
}

func sourceKeys(results []retrieval.Result) []string {
	seen := make(map[string]bool, len(results))
	var out []string
	for _, r := range results {
		if r.SourceKey == "" || seen[r.SourceKey] {
			continue
		}
		seen[r.SourceKey] = true
		out = append(out, r.SourceKey)
	}
	return out
}

func formatMemory(m *memory.SessionMemory) string {
	var lines []string
	if len(m.UserGoals) > 0 {
		lines = append(lines, "Objectifs : "+strings.Join(m.UserGoals, " ; "))
	}
	if len(m.KeyEntities) > 0 {
		parts := make([]string, len(m.KeyEntities))
		for i, e := range m.KeyEntities {
			parts[i] = string(e.Type) + "=" + e.Value
		}
		lines = append(lines, "Entités : "+strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n")
}

// FindSimilarPast returns the past user question closest to qv with a score
// above threshold, together with the assistant answer that followed it.
// Records without an embedding are ignored.
func FindSimilarPast(history []memory.MessageRecord, qv []float32, threshold float64) *SimilarPast {
	if len(qv) == 0 {
		return nil
	}
	var best *SimilarPast
	for i, r := range history {
		if r.Role != memory.RoleUser || len(r.Embedding) == 0 {
			continue
		}
		score := embedding.CosineSimilarity(qv, r.Embedding)
		if score <= threshold || (best != nil && score <= best.Score) {
			continue
		}
		answer := ""
		if i+1 < len(history) && history[i+1].Role == memory.RoleAssistant {
			answer = history[i+1].Content
		}
		best = &SimilarPast{Question: r.Content, Answer: answer, Score: score}
	}
	return best
}
