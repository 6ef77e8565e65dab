package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecordAndVerifyChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	entries := []Entry{
		{CycleID: "c-1", Event: EventRouting, Tier: "public", Backend: "cloud"},
		{CycleID: "c-1", Event: EventDecision, Verb: "tap", App: "com.browser", Decision: "approved"},
		{CycleID: "c-1", Event: EventTransition, From: "executing", To: "recording"},
	}
	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	res := Verify(path)
	if !res.Valid {
		t.Fatalf("expected valid chain, got %+v", res)
	}
	if res.Lines != 3 {
		t.Errorf("expected 3 lines, got %d", res.Lines)
	}
}

func TestTamperedLineBreaksChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := log.Record(Entry{CycleID: "c-1", Event: EventDecision, Decision: "approved"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	log.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	tampered := strings.Replace(string(data), `"approved"`, `"denied"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	res := Verify(path)
	if res.Valid {
		t.Fatal("expected tampered trail to fail verification")
	}
	if res.ErrorLine != 2 {
		t.Errorf("expected break detected at line 2, got %d (%s)", res.ErrorLine, res.Error)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.jsonl")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := log.Record(Entry{CycleID: "c-1", Event: EventStop}); err != nil {
		t.Fatalf("record: %v", err)
	}
	log.Close()

	log, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := log.Record(Entry{CycleID: "c-2", Event: EventStop}); err != nil {
		t.Fatalf("record after reopen: %v", err)
	}
	log.Close()

	if res := Verify(path); !res.Valid || res.Lines != 2 {
		t.Errorf("expected intact 2-line chain after reopen, got %+v", res)
	}
}
