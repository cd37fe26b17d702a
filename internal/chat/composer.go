package chat

import (
	"errors"
	"strings"
	"unicode"

	"namlong/internal/constants"
	"namlong/internal/models"
)

var ErrAttachmentIndex = errors.New("attachment index out of range")

// FileSelection is one entry of a native file-picker result, already turned
// into a displayable URL by the upload endpoint.
type FileSelection struct {
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// SendRequest is what the composer hands to the controller on submit.
type SendRequest struct {
	Content     string
	Attachments []models.Attachment
}

// KeyEvent is a key press inside the composer input.
type KeyEvent struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
	Ctrl  bool   `json:"ctrl"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`
}

type KeyResult int

const (
	KeyIgnored KeyResult = iota
	KeyNewline
	KeySubmit
)

type ComposerOptions struct {
	MaxPerSelection int
	MinLines        int
	MaxLines        int
}

// Composer holds the pending outbound message of one widget.
// It is not safe for concurrent use.
type Composer struct {
	draft       []rune
	caret       int
	attachments []models.Attachment

	maxPerSelection int
	minLines        int
	maxLines        int
}

func NewComposer(opts ComposerOptions) *Composer {
	if opts.MaxPerSelection <= 0 {
		opts.MaxPerSelection = constants.MaxAttachmentsPerSelection
	}
	if opts.MinLines <= 0 {
		opts.MinLines = constants.ComposerMinLines
	}
	if opts.MaxLines < opts.MinLines {
		opts.MaxLines = constants.ComposerMaxLines
		if opts.MaxLines < opts.MinLines {
			opts.MaxLines = opts.MinLines
		}
	}
	return &Composer{
		maxPerSelection: opts.MaxPerSelection,
		minLines:        opts.MinLines,
		maxLines:        opts.MaxLines,
	}
}

// SetDraft replaces the draft text. caret counts runes and is clamped;
// a negative caret means end of text.
func (c *Composer) SetDraft(text string, caret int) {
	c.draft = []rune(text)
	c.setCaret(caret)
}

func (c *Composer) setCaret(caret int) {
	if caret < 0 || caret > len(c.draft) {
		caret = len(c.draft)
	}
	c.caret = caret
}

func (c *Composer) Draft() string { return string(c.draft) }

func (c *Composer) Caret() int { return c.caret }

// InsertEmoji inserts e at the caret and places the caret after it.
func (c *Composer) InsertEmoji(e string) {
	c.insert(e)
}

func (c *Composer) insert(s string) {
	if s == "" {
		return
	}
	ins := []rune(s)
	out := make([]rune, 0, len(c.draft)+len(ins))
	out = append(out, c.draft[:c.caret]...)
	out = append(out, ins...)
	out = append(out, c.draft[c.caret:]...)
	c.draft = out
	c.caret += len(ins)
}

// HandleKey applies a key press. Plain Enter submits, Shift+Enter inserts a
// newline, Enter with any other modifier does nothing.
func (c *Composer) HandleKey(ev KeyEvent) KeyResult {
	if ev.Key != "Enter" {
		return KeyIgnored
	}
	if ev.Ctrl || ev.Alt || ev.Meta {
		return KeyIgnored
	}
	if ev.Shift {
		c.insert("\n")
		return KeyNewline
	}
	return KeySubmit
}

// Stage keeps image entries of one selection, at most maxPerSelection of them.
// It returns how many were staged.
func (c *Composer) Stage(files []FileSelection) int {
	staged := 0
	for _, f := range files {
		if staged >= c.maxPerSelection {
			break
		}
		if !isImageMimeType(f.MimeType) || strings.TrimSpace(f.URL) == "" {
			continue
		}
		c.attachments = append(c.attachments, models.Attachment{
			URL:        f.URL,
			PreviewURL: f.PreviewURL,
			Name:       f.Name,
		})
		staged++
	}
	return staged
}

func (c *Composer) Unstage(index int) error {
	if index < 0 || index >= len(c.attachments) {
		return ErrAttachmentIndex
	}
	c.attachments = append(c.attachments[:index], c.attachments[index+1:]...)
	return nil
}

func (c *Composer) Attachments() []models.Attachment {
	return append([]models.Attachment(nil), c.attachments...)
}

func (c *Composer) CanSubmit() bool {
	return len(c.attachments) > 0 || strings.TrimFunc(string(c.draft), unicode.IsSpace) != ""
}

// Lines is the visual height of the input, bounded by the configured range.
func (c *Composer) Lines() int {
	n := 1
	for _, r := range c.draft {
		if r == '\n' {
			n++
		}
	}
	if n < c.minLines {
		return c.minLines
	}
	if n > c.maxLines {
		return c.maxLines
	}
	return n
}

// Submit takes the pending message and clears the composer right away.
func (c *Composer) Submit() (SendRequest, bool) {
	if !c.CanSubmit() {
		return SendRequest{}, false
	}
	req := SendRequest{
		Content:     strings.TrimSpace(string(c.draft)),
		Attachments: c.attachments,
	}
	c.draft = nil
	c.caret = 0
	c.attachments = nil
	return req, true
}

func isImageMimeType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
