package history

import (
	"fmt"
	"strings"
	"testing"
)

func TestRecordEvictsOldest(t *testing.T) {
	c := NewCache()
	for i := 0; i < maxEntries+3; i++ {
		c.Record("10", fmt.Sprintf("rule %d", i), []string{"warn"})
	}
	entries := c.For("10")
	if len(entries) != maxEntries {
		t.Fatalf("entries = %d, want %d", len(entries), maxEntries)
	}
	if entries[0].Rule != "rule 3" {
		t.Fatalf("oldest entry = %q, want rule 3", entries[0].Rule)
	}
	if entries[len(entries)-1].Rule != fmt.Sprintf("rule %d", maxEntries+2) {
		t.Fatalf("newest entry = %q", entries[len(entries)-1].Rule)
	}
}

func TestForReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Record("10", "No spam.", []string{"warn"})
	entries := c.For("10")
	entries[0].Rule = "mutated"
	if c.For("10")[0].Rule != "No spam." {
		t.Fatal("For leaked internal state")
	}
}

func TestBuildBlobFormat(t *testing.T) {
	c := NewCache()
	c.Record("20", "No slurs.", []string{"timeout:1h", "warn:language"})
	c.Record("20", "No spam.", []string{"kick"})

	blob := c.BuildBlob([]string{"20", "30"})
	if !strings.HasPrefix(blob, "Violation history:\n") {
		t.Fatalf("missing header: %q", blob)
	}
	if !strings.Contains(blob, "User 20 has 2 recent violation(s):") {
		t.Fatalf("missing user block: %q", blob)
	}
	if !strings.Contains(blob, "1. No slurs. - previously punished with timeout:1h, warn:language") {
		t.Fatalf("missing first entry: %q", blob)
	}
	if !strings.Contains(blob, "2. No spam. - previously punished with kick") {
		t.Fatalf("missing second entry: %q", blob)
	}
	if strings.Contains(blob, "User 30") {
		t.Fatal("user without history should be omitted")
	}
	if !strings.HasSuffix(blob, "\n\n") {
		t.Fatal("blob must end with a blank line")
	}
}

func TestBuildBlobEmpty(t *testing.T) {
	c := NewCache()
	want := "Violation history:\nNo recent violations on record.\n\n"
	if got := c.BuildBlob([]string{"10"}); got != want {
		t.Fatalf("empty blob = %q", got)
	}
}
