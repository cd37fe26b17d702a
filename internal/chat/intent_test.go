package chat

import (
	"strings"
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestResolveDefaultIntents(t *testing.T) {
	table := NewIntentTable(DefaultIntents())
	routes := testRoutes()

	tests := []struct {
		input      string
		wantIntent string
		wantPath   string
	}{
		{"Xin chào shop", IntentGreeting, ""},
		{"HELLO", IntentGreeting, ""},
		{"có khóa học tiếng Anh không?", IntentCourse, "/khoa-hoc"},
		{"khoa hoc", IntentCourse, "/khoa-hoc"},
		{"cho mình số điện thoại", IntentContact, "/lien-he"},
		{"Liên Hệ", IntentContact, "/lien-he"},
		{"mình có câu hỏi", IntentFAQ, "/hoi-dap"},
		{"giúp mình với", IntentHelp, ""},
		{"giá bao nhiêu", IntentFallback, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			m := table.Resolve(tt.input, "Trang chủ", routes)
			if m.Intent != tt.wantIntent {
				t.Fatalf("Intent = %q, want %q", m.Intent, tt.wantIntent)
			}
			if m.Path != tt.wantPath {
				t.Fatalf("Path = %q, want %q", m.Path, tt.wantPath)
			}
			if m.Reply == "" {
				t.Fatal("empty reply")
			}
		})
	}
}

func TestResolveMatchesDecomposedInput(t *testing.T) {
	table := NewIntentTable(DefaultIntents())

	decomposed := norm.NFD.String("khóa học")
	m := table.Resolve(decomposed, "Trang chủ", testRoutes())
	if m.Intent != IntentCourse {
		t.Fatalf("Intent = %q, want %q", m.Intent, IntentCourse)
	}
}

func TestResolveSubstitutesPageTitle(t *testing.T) {
	table := NewIntentTable(DefaultIntents())

	m := table.Resolve("cần hỗ trợ", "Thư viện", testRoutes())
	if !strings.Contains(m.Reply, "Thư viện") {
		t.Fatalf("Reply = %q, want page title", m.Reply)
	}
	if strings.Contains(m.Reply, "{page}") {
		t.Fatalf("Reply = %q still has placeholder", m.Reply)
	}
}

func TestResolveUnknownRouteKeyHasNoPath(t *testing.T) {
	table := NewIntentTable([]Intent{{Name: "x", Patterns: []string{"x"}, Reply: "ok", RouteKey: "missing"}})

	m := table.Resolve("x", "", testRoutes())
	if m.Path != "" {
		t.Fatalf("Path = %q, want empty", m.Path)
	}
	if m = table.Resolve("y", "", testRoutes()); m.Intent != IntentFallback {
		t.Fatalf("Intent = %q, want fallback when table has none", m.Intent)
	}
}
