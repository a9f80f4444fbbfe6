package config

import (
	"strings"
	"testing"
)

func TestDiffSerialized(t *testing.T) {
	oldData := []byte("{\n  \"start_scene\": \"Coding\",\n  \"delay_time\": 300\n}\n")
	newData := []byte("{\n  \"start_scene\": \"Coding\",\n  \"delay_time\": 500\n}\n")

	diff := DiffSerialized(oldData, newData)
	if diff == "" {
		t.Fatalf("expected diff, got empty string")
	}
	if !strings.Contains(diff, `"delay_time": 300`) {
		t.Fatalf("expected diff to contain original line, got %s", diff)
	}
	if !strings.Contains(diff, `"delay_time": 500`) {
		t.Fatalf("expected diff to contain updated line, got %s", diff)
	}
}

func TestDiffSerializedIgnoresLineEndings(t *testing.T) {
	if diff := DiffSerialized([]byte("a\r\nb  \r\n"), []byte("a\nb\n\n")); diff != "" {
		t.Fatalf("expected no diff for whitespace-only changes, got %s", diff)
	}
}
