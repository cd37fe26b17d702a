package chat

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Intent is one row of the reply table: when any pattern occurs in the input,
// Reply is sent and, if RouteKey is set, the widget navigates to that route.
type Intent struct {
	Name     string
	Patterns []string
	Reply    string // may reference {page}
	RouteKey string
}

// Match is the result of resolving user input against an IntentTable.
type Match struct {
	Intent string
	Reply  string
	Path   string // empty when the intent carries no navigation
}

// IntentTable is evaluated in order; the last row acts as fallback when it has
// no patterns.
type IntentTable struct {
	intents []Intent
}

func NewIntentTable(intents []Intent) *IntentTable {
	normalized := make([]Intent, len(intents))
	for i, in := range intents {
		patterns := make([]string, len(in.Patterns))
		for j, p := range in.Patterns {
			patterns[j] = normalizeForMatch(p)
		}
		in.Patterns = patterns
		normalized[i] = in
	}
	return &IntentTable{intents: normalized}
}

// Resolve picks the first intent whose pattern is a substring of text.
// Matching is case-insensitive and diacritic-sensitive.
func (t *IntentTable) Resolve(text, pageTitle string, routes Routes) Match {
	input := normalizeForMatch(text)
	for _, in := range t.intents {
		if len(in.Patterns) > 0 && !containsAny(input, in.Patterns) {
			continue
		}
		m := Match{
			Intent: in.Name,
			Reply:  strings.ReplaceAll(in.Reply, "{page}", pageTitle),
		}
		if in.RouteKey != "" {
			if path, ok := routes.Path(in.RouteKey); ok {
				m.Path = path
			}
		}
		return m
	}
	return Match{Intent: IntentFallback, Reply: fallbackReply}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func normalizeForMatch(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

const (
	IntentGreeting = "greeting"
	IntentCourse   = "course"
	IntentContact  = "contact"
	IntentFAQ      = "faq"
	IntentHelp     = "help"
	IntentFallback = "fallback"
)

const fallbackReply = "Cảm ơn bạn đã nhắn tin! Nhân viên tư vấn sẽ phản hồi bạn sớm nhất có thể."

// DefaultIntents is the storefront reply table.
func DefaultIntents() []Intent {
	return []Intent{
		{
			Name:     IntentGreeting,
			Patterns: []string{"xin chào", "chào bạn", "chào shop", "xin chao", "chao ban", "hello", "hey"},
			Reply:    "Xin chào! Mình là trợ lý của Nam Long Center. Mình có thể giúp gì cho bạn?",
		},
		{
			Name:     IntentCourse,
			Patterns: []string{"khóa học", "khoá học", "khoa hoc", "course", "lớp học", "lop hoc"},
			Reply:    "Mình sẽ chuyển bạn đến trang Khóa học để xem danh sách khóa học nhé!",
			RouteKey: "courses",
		},
		{
			Name:     IntentContact,
			Patterns: []string{"liên hệ", "lien he", "contact", "hotline", "số điện thoại", "so dien thoai"},
			Reply:    "Mình sẽ chuyển bạn đến trang Liên hệ để được bộ phận hỗ trợ tư vấn trực tiếp nhé!",
			RouteKey: "contact",
		},
		{
			Name:     IntentFAQ,
			Patterns: []string{"câu hỏi", "cau hoi", "hỏi đáp", "hoi dap", "faq"},
			Reply:    "Bạn có thể xem các câu hỏi thường gặp tại trang Hỏi đáp. Mình chuyển bạn qua ngay nhé!",
			RouteKey: "faq",
		},
		{
			Name:     IntentHelp,
			Patterns: []string{"giúp", "giup", "hỗ trợ", "ho tro", "help"},
			Reply:    "Bạn đang ở trang {page}. Bạn cần hỗ trợ về khóa học, thanh toán hay tài khoản?",
		},
		{
			Name:  IntentFallback,
			Reply: fallbackReply,
		},
	}
}
