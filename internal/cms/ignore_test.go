package cms

import "testing"

func TestIgnoreMatcher(t *testing.T) {
	m := NewIgnoreMatcher([]string{
		"# comment",
		"",
		"*.tmp",
		"_posts/drafts-*",
	})

	tests := []struct {
		name string
		want bool
	}{
		{"_posts/.keep", true},
		{"assets/.keep", true},
		{"_posts/post.md", false},
		{"_posts/scratch.tmp", true},
		{"assets/upload.tmp", true},
		{"_posts/drafts-old.md", true},
		{"assets/drafts-old.md", false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.name); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIgnoreMatcher_BadPatternIsSkipped(t *testing.T) {
	m := NewIgnoreMatcher([]string{"[", "*.bak"})
	if m.Match("_posts/post.md") {
		t.Error("malformed pattern should not match")
	}
	if !m.Match("_posts/post.bak") {
		t.Error("valid pattern after a malformed one should still apply")
	}
}
