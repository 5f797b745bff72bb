package memory

import (
	"encoding/json"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func devis() FileReference {
	return FileReference{Name: "devis.pdf", Type: FilePDF, Key: "affaires/A24-0001/devis.pdf"}
}

func TestNew_EncodesEmptyLists(t *testing.T) {
	data, err := json.Marshal(New())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"history":[],"referencedFiles":[]}` {
		t.Errorf("New() encodes as %s", data)
	}
}

func TestTouchFile_NoDuplicateIdentities(t *testing.T) {
	m := New()
	m.TouchFile(devis(), t0)
	m.TouchFile(devis(), t0.Add(time.Minute))
	m.MentionFile(devis(), t0.Add(2*time.Minute))

	other := devis()
	other.Key = "affaires/A24-0002/devis.pdf"
	m.TouchFile(other, t0)

	if len(m.ReferencedFiles) != 2 {
		t.Fatalf("len(ReferencedFiles) = %d, want 2", len(m.ReferencedFiles))
	}
	for i := range m.ReferencedFiles {
		for j := i + 1; j < len(m.ReferencedFiles); j++ {
			if m.ReferencedFiles[i].SameFile(m.ReferencedFiles[j]) {
				t.Errorf("duplicate identity at %d and %d", i, j)
			}
		}
	}
	if got := m.ReferencedFiles[0].LastReferenced; !got.Equal(t0.Add(2 * time.Minute)) {
		t.Errorf("LastReferenced not refreshed: %v", got)
	}
}

func TestReuseCurrentFile_Decay(t *testing.T) {
	m := New()
	m.MentionFile(devis(), t0)
	if m.CurrentFile.ActiveCount != InitialActiveCount {
		t.Fatalf("ActiveCount = %d, want %d", m.CurrentFile.ActiveCount, InitialActiveCount)
	}

	used := m.ReuseCurrentFile()
	if used == nil || used.ActiveCount != 1 || m.CurrentFile == nil || m.CurrentFile.ActiveCount != 1 {
		t.Fatalf("first reuse: used=%+v current=%+v", used, m.CurrentFile)
	}

	used = m.ReuseCurrentFile()
	if used == nil || used.Name != "devis.pdf" {
		t.Fatalf("second reuse should still return the file, got %+v", used)
	}
	if m.CurrentFile != nil {
		t.Errorf("CurrentFile should be cleared at zero, got %+v", m.CurrentFile)
	}
	if m.ReuseCurrentFile() != nil {
		t.Error("reuse with no current file should return nil")
	}
}

func TestMentionFile_ResetsCounter(t *testing.T) {
	m := New()
	m.MentionFile(devis(), t0)
	m.ReuseCurrentFile()
	m.MentionFile(devis(), t0.Add(time.Minute))
	if m.CurrentFile.ActiveCount != InitialActiveCount {
		t.Errorf("ActiveCount after explicit mention = %d", m.CurrentFile.ActiveCount)
	}
}

func TestAddGoalAndEntities_Dedup(t *testing.T) {
	m := New()
	m.AddGoal("résumer le devis")
	m.AddGoal("résumer le devis")
	m.AddGoal("  ")
	m.AddEntities([]Entity{
		{Type: EntityPerson, Value: "Jean Martin"},
		{Type: EntityPerson, Value: "Jean Martin"},
		{Type: EntityFunction, Value: ""},
		{Type: EntityFunction, Value: "computeTotal"},
	})

	if len(m.UserGoals) != 1 {
		t.Errorf("UserGoals = %v", m.UserGoals)
	}
	if len(m.KeyEntities) != 2 {
		t.Errorf("KeyEntities = %v", m.KeyEntities)
	}
	if v, ok := m.LatestEntity(EntityFunction); !ok || v != "computeTotal" {
		t.Errorf("LatestEntity(function) = %q, %v", v, ok)
	}
	if _, ok := m.LatestEntity(EntityVariable); ok {
		t.Error("LatestEntity(variable) should be absent")
	}
}

func TestParseEntityType(t *testing.T) {
	tests := map[string]EntityType{
		"file":      EntityFile,
		" Person ":  EntityPerson,
		"montant":   EntityAmount,
		"fonction":  EntityFunction,
		"variable":  EntityVariable,
		"spaceship": EntityOther,
		"":          EntityOther,
	}
	for in, want := range tests {
		if got := ParseEntityType(in); got != want {
			t.Errorf("ParseEntityType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCapHistoryAndRecent(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.Append(MessageRecord{Role: RoleUser, Content: string(rune('a' + i))})
	}
	if got := m.Recent(15); len(got) != 15 || got[0].Content != "f" {
		t.Errorf("Recent(15) = %d records starting %q", len(got), got[0].Content)
	}
	m.CapHistory(0)
	if len(m.History) != 20 {
		t.Errorf("CapHistory(0) changed history to %d", len(m.History))
	}
	m.CapHistory(5)
	if len(m.History) != 5 || m.History[0].Content != "p" {
		t.Errorf("CapHistory(5) = %d records starting %q", len(m.History), m.History[0].Content)
	}
}

func TestClone_IsDeep(t *testing.T) {
	m := New()
	m.Append(MessageRecord{Role: RoleUser, Content: "q", Embedding: []float32{1, 2}})
	m.MentionFile(devis(), t0)
	m.AddGoal("g")

	c := m.Clone()
	c.History[0].Embedding[0] = 9
	c.CurrentFile.ActiveCount = 0
	c.UserGoals[0] = "changed"

	if m.History[0].Embedding[0] != 1 {
		t.Error("embedding aliased")
	}
	if m.CurrentFile.ActiveCount != InitialActiveCount {
		t.Error("current file aliased")
	}
	if m.UserGoals[0] != "g" {
		t.Error("goals aliased")
	}
}
