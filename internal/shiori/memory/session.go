// Package memory holds the durable per-user conversational state of the
// assistant: the message history, the file the user is currently talking
// about, every file mentioned so far, accumulated goals and entities, and a
// condensed summary of long conversations.
//
// A SessionMemory is never kept in process between turns. It is loaded from
// the key-value store at the start of a turn, threaded explicitly through
// the orchestrator and written back at the end.
package memory

import (
	"strings"
	"time"
)

// InitialActiveCount is the number of implicit reuses a file survives after
// it was last named explicitly.
const InitialActiveCount = 2

// Role is the author of a history record.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageRecord is one entry of the conversation history. Embedding is set
// only on user turns that triggered a generation.
type MessageRecord struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Embedding []float32  `json:"embedding,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// FileType is the document type of a FileReference.
type FileType string

const (
	FilePDF FileType = "pdf"
	FileTXT FileType = "txt"
	FileCSV FileType = "csv"
)

// FileReference points at a stored document. Identity is (Name, Type, Key).
type FileReference struct {
	Name           string    `json:"name"`
	Type           FileType  `json:"type"`
	Key            string    `json:"key"`
	LastReferenced time.Time `json:"lastReferenced"`
	ActiveCount    int       `json:"activeCount,omitempty"`
}

// SameFile reports whether f and o have the same identity.
func (f FileReference) SameFile(o FileReference) bool {
	return f.Name == o.Name && f.Type == o.Type && f.Key == o.Key
}

// EntityType is the closed set of entity kinds kept in memory.
type EntityType string

const (
	EntityFile     EntityType = "file"
	EntityDocument EntityType = "document"
	EntityPerson   EntityType = "person"
	EntityDate     EntityType = "date"
	EntityAmount   EntityType = "amount"
	EntityFunction EntityType = "function"
	EntityVariable EntityType = "variable"
	EntityOther    EntityType = "other"
)

// ParseEntityType maps a free-form type name onto the closed set. Unknown
// names become EntityOther.
func ParseEntityType(s string) EntityType {
	switch t := EntityType(strings.ToLower(strings.TrimSpace(s))); t {
	case EntityFile, EntityDocument, EntityPerson, EntityDate, EntityAmount, EntityFunction, EntityVariable:
		return t
	case "fichier", "filename":
		return EntityFile
	case "doc", "documents":
		return EntityDocument
	case "personne", "name", "contact":
		return EntityPerson
	case "montant", "money", "price":
		return EntityAmount
	case "fonction":
		return EntityFunction
	default:
		return EntityOther
	}
}

// Entity is a typed value extracted from a user message.
type Entity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
}

// SessionMemory is the conversational state of one user.
type SessionMemory struct {
	History          []MessageRecord `json:"history"`
	CurrentFile      *FileReference  `json:"currentFile,omitempty"`
	MultiFilesActive []FileReference `json:"multiFilesActive,omitempty"`
	ReferencedFiles  []FileReference `json:"referencedFiles"`
	UserGoals        []string        `json:"userGoals,omitempty"`
	KeyEntities      []Entity        `json:"keyEntities,omitempty"`
	ContextSummary   string          `json:"contextSummary,omitempty"`
}

// New returns an empty memory with non-nil history and referenced files so
// that it encodes as {"history":[],"referencedFiles":[]}.
func New() *SessionMemory {
	return &SessionMemory{
		History:         []MessageRecord{},
		ReferencedFiles: []FileReference{},
	}
}

func (m *SessionMemory) normalize() {
	if m.History == nil {
		m.History = []MessageRecord{}
	}
	if m.ReferencedFiles == nil {
		m.ReferencedFiles = []FileReference{}
	}
	if m.CurrentFile != nil && m.CurrentFile.ActiveCount <= 0 {
		m.CurrentFile = nil
	}
}

// Append adds a record to the history.
func (m *SessionMemory) Append(rec MessageRecord) {
	m.History = append(m.History, rec)
}

// Recent returns at most the last n history records.
func (m *SessionMemory) Recent(n int) []MessageRecord {
	if n <= 0 || len(m.History) <= n {
		return m.History
	}
	return m.History[len(m.History)-n:]
}

// TouchFile upserts ref into ReferencedFiles by identity, refreshing
// LastReferenced to now.
func (m *SessionMemory) TouchFile(ref FileReference, now time.Time) {
	ref.LastReferenced = now
	ref.ActiveCount = 0
	for i := range m.ReferencedFiles {
		if m.ReferencedFiles[i].SameFile(ref) {
			m.ReferencedFiles[i].LastReferenced = now
			return
		}
	}
	m.ReferencedFiles = append(m.ReferencedFiles, ref)
}

// MentionFile records an explicit mention: the file is touched and becomes
// the current file with a full decay counter.
func (m *SessionMemory) MentionFile(ref FileReference, now time.Time) {
	m.TouchFile(ref, now)
	ref.LastReferenced = now
	ref.ActiveCount = InitialActiveCount
	m.CurrentFile = &ref
}

// ReuseCurrentFile returns the current file for an implicit reference and
// decrements its counter. When the counter reaches zero the file is cleared
// from memory but still returned for use in this turn. It returns nil when
// there is no current file.
func (m *SessionMemory) ReuseCurrentFile() *FileReference {
	if m.CurrentFile == nil {
		return nil
	}
	used := *m.CurrentFile
	m.CurrentFile.ActiveCount--
	used.ActiveCount = m.CurrentFile.ActiveCount
	if m.CurrentFile.ActiveCount <= 0 {
		m.CurrentFile = nil
	}
	return &used
}

// ClearCurrentFile drops the current file reference.
func (m *SessionMemory) ClearCurrentFile() {
	m.CurrentFile = nil
}

// AddGoal records intent once. Blank intents are ignored.
func (m *SessionMemory) AddGoal(intent string) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return
	}
	for _, g := range m.UserGoals {
		if g == intent {
			return
		}
	}
	m.UserGoals = append(m.UserGoals, intent)
}

// AddEntities records every entity not seen before.
func (m *SessionMemory) AddEntities(entities []Entity) {
	for _, e := range entities {
		e.Value = strings.TrimSpace(e.Value)
		if e.Value == "" {
			continue
		}
		dup := false
		for _, k := range m.KeyEntities {
			if k == e {
				dup = true
				break
			}
		}
		if !dup {
			m.KeyEntities = append(m.KeyEntities, e)
		}
	}
}

// LatestEntity returns the most recently recorded value of type t.
func (m *SessionMemory) LatestEntity(t EntityType) (string, bool) {
	for i := len(m.KeyEntities) - 1; i >= 0; i-- {
		if m.KeyEntities[i].Type == t {
			return m.KeyEntities[i].Value, true
		}
	}
	return "", false
}

// CapHistory keeps only the last n records. n <= 0 keeps everything.
func (m *SessionMemory) CapHistory(n int) {
	if n <= 0 || len(m.History) <= n {
		return
	}
	kept := make([]MessageRecord, n)
	copy(kept, m.History[len(m.History)-n:])
	m.History = kept
}

// Clone returns a deep copy of m.
func (m *SessionMemory) Clone() *SessionMemory {
	c := &SessionMemory{
		History:         make([]MessageRecord, len(m.History)),
		ReferencedFiles: make([]FileReference, len(m.ReferencedFiles)),
		ContextSummary:  m.ContextSummary,
	}
	for i, r := range m.History {
		if r.Embedding != nil {
			r.Embedding = append([]float32(nil), r.Embedding...)
		}
		if r.Timestamp != nil {
			ts := *r.Timestamp
			r.Timestamp = &ts
		}
		c.History[i] = r
	}
	copy(c.ReferencedFiles, m.ReferencedFiles)
	if m.CurrentFile != nil {
		cf := *m.CurrentFile
		c.CurrentFile = &cf
	}
	if m.MultiFilesActive != nil {
		c.MultiFilesActive = append([]FileReference(nil), m.MultiFilesActive...)
	}
	if m.UserGoals != nil {
		c.UserGoals = append([]string(nil), m.UserGoals...)
	}
	if m.KeyEntities != nil {
		c.KeyEntities = append([]Entity(nil), m.KeyEntities...)
	}
	return c
}
