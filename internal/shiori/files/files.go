// Package files maps free text to concrete document references and keeps
// the file-related parts of session memory current.
package files

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Shiori/internal/shiori/docs"
	"github.com/bdobrica/Shiori/internal/shiori/memory"
	"github.com/bdobrica/Shiori/internal/shiori/nlp"
)

// Keys holds document keys per type, each list in listing order.
type Keys struct {
	PDF []string
	TXT []string
	CSV []string
}

// ordered yields the lists in matcher priority order.
func (k Keys) ordered() [3][]string {
	return [3][]string{k.PDF, k.TXT, k.CSV}
}

// Len returns the total number of keys.
func (k Keys) Len() int { return len(k.PDF) + len(k.TXT) + len(k.CSV) }

// All returns every key, pdf first.
func (k Keys) All() []string {
	out := make([]string, 0, k.Len())
	for _, l := range k.ordered() {
		out = append(out, l...)
	}
	return out
}

// ListAll fetches the pdf, txt and csv keys under prefix concurrently.
func ListAll(ctx context.Context, lister docs.Lister, prefix string) (Keys, error) {
	var k Keys
	g, gctx := errgroup.WithContext(ctx)
	for ext, dst := range map[string]*[]string{
		docs.ExtPDF: &k.PDF,
		docs.ExtTXT: &k.TXT,
		docs.ExtCSV: &k.CSV,
	} {
		g.Go(func() error {
			keys, err := lister.ListKeys(gctx, prefix, ext)
			if err != nil {
				return fmt.Errorf("files: list %s keys: %w", ext, err)
			}
			*dst = keys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Keys{}, err
	}
	return k, nil
}

// Reference builds the FileReference of key.
func Reference(key string) memory.FileReference {
	return memory.FileReference{
		Name: docs.FileName(key),
		Type: memory.FileType(docs.Ext(key)),
		Key:  key,
	}
}

// MatchFirst returns the first key whose normalised stem is a substring of
// the normalised message. pdf keys are tried before txt before csv; within a
// type the first listed key wins, with no longest-match tie breaking.
func MatchFirst(message string, keys Keys) (string, bool) {
	norm := nlp.Normalize(message)
	if norm == "" {
		return "", false
	}
	for _, list := range keys.ordered() {
		for _, key := range list {
			if stemIn(norm, key) {
				return key, true
			}
		}
	}
	return "", false
}

// MatchAll returns every key named in message, in the same order MatchFirst
// searches. A stem is only counted once.
func MatchAll(message string, keys Keys) []string {
	norm := nlp.Normalize(message)
	if norm == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, list := range keys.ordered() {
		for _, key := range list {
			stem := nlp.Normalize(docs.Stem(key))
			if seen[stem] || !stemIn(norm, key) {
				continue
			}
			seen[stem] = true
			out = append(out, key)
		}
	}
	return out
}

func stemIn(normMessage, key string) bool {
	stem := nlp.Normalize(docs.Stem(key))
	return stem != "" && strings.Contains(normMessage, stem)
}

// Selection is the outcome of file matching for one turn.
type Selection struct {
	// Files are the documents in play this turn, explicit matches first.
	Files []memory.FileReference
	// Explicit is true when the message named the files.
	Explicit bool
	// Reused is true when the current file was carried over implicitly.
	Reused bool
}

// Matcher applies file matching to session memory.
type Matcher struct {
	ladder *nlp.Ladder
}

// NewMatcher creates a matcher using ladder for continuation and topic
// switch detection.
func NewMatcher(ladder *nlp.Ladder) *Matcher {
	return &Matcher{ladder: ladder}
}

// Select decides which files the turn is about and updates m accordingly.
//
// An explicit match upserts referencedFiles and makes the first match the
// current file with a full counter; two or more matches also set
// multiFilesActive. Without an explicit match, an anaphoric or continuation
// cue reuses the current file and decays it. A small-talk or topic-switch
// message without file entities clears the current file. Every reference
// touched is stamped with now, the turn's time.
func (mt *Matcher) Select(m *memory.SessionMemory, raw, resolved string, ext nlp.ExtractionResult, keys Keys, now time.Time) Selection {
	matched := MatchAll(raw, keys)
	if len(matched) > 0 {
		sel := Selection{Explicit: true}
		for _, key := range matched {
			ref := Reference(key)
			m.TouchFile(ref, now)
			ref.LastReferenced = now
			sel.Files = append(sel.Files, ref)
		}
		m.MentionFile(sel.Files[0], now)
		if len(sel.Files) >= 2 {
			m.MultiFilesActive = append([]memory.FileReference(nil), sel.Files...)
		} else {
			m.MultiFilesActive = nil
		}
		return sel
	}

	if mt.ladder.IsUnrelated(raw, ext.Intent) && !ext.HasEntity(memory.EntityFile, memory.EntityDocument) {
		m.ClearCurrentFile()
		m.MultiFilesActive = nil
		return Selection{}
	}

	if m.CurrentFile != nil && (mt.ladder.ImpliesContinuation(raw, ext.Intent) || mt.ladder.ImpliesContinuation(resolved, "")) {
		used := m.ReuseCurrentFile()
		return Selection{Files: []memory.FileReference{*used}, Reused: true}
	}

	return Selection{}
}
