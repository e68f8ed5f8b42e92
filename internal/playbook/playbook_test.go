package playbook

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultHasInstructions(t *testing.T) {
	pb := Default()
	if pb.Instructions == "" {
		t.Fatalf("expected default instructions")
	}
	if pb.CommentPrefix != defaultCommentPrefix {
		t.Fatalf("expected default comment prefix")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playbook.yaml")
	content := "comment_prefix: Counsel Note\nheading_patterns:\n  - '(?i)^(EXHIBIT [A-Z])\\s+(.+)'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	pb, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pb.CommentPrefix != "Counsel Note" {
		t.Fatalf("expected overlay prefix, got %q", pb.CommentPrefix)
	}
	if pb.Instructions == "" {
		t.Fatalf("defaults must survive overlay")
	}
	patterns, err := pb.CompilePatterns()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected one pattern")
	}
	if m := patterns[0].FindStringSubmatch("EXHIBIT B Pricing"); m == nil || m[1] != "EXHIBIT B" {
		t.Fatalf("pattern should capture section number, got %v", m)
	}
}

func TestCompilePatternsRejectsNoCaptureGroup(t *testing.T) {
	pb := Default()
	pb.HeadingPatterns = []string{`^Section \d+`}
	if _, err := pb.CompilePatterns(); err == nil {
		t.Fatalf("expected error for pattern without capture group")
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	pb, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pb.Instructions != Default().Instructions {
		t.Fatalf("expected defaults")
	}
}
