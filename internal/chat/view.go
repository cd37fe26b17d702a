package chat

import (
	"time"

	"namlong/internal/models"
)

const (
	LabelToday     = "Hôm nay"
	LabelYesterday = "Hôm qua"
	dateLabelFmt   = "02/01/2006"
	timeLabelFmt   = "15:04"

	RecalledPlaceholder = "Tin nhắn đã được thu hồi"
	DeletedPlaceholder  = "Tin nhắn đã bị xóa"
	ImagePlaceholder    = "[Hình ảnh]"
)

type StatusIcon string

const (
	IconNone              StatusIcon = ""
	IconCheck             StatusIcon = "check"
	IconDoubleCheck       StatusIcon = "double_check"
	IconDoubleCheckAccent StatusIcon = "double_check_accent"
)

type Action string

const (
	ActionCopy   Action = "copy"
	ActionRecall Action = "recall"
	ActionDelete Action = "delete"
)

// MessageView is a rendered chat bubble.
type MessageView struct {
	ID          string              `json:"id"`
	Role        models.Role         `json:"role"`
	Text        string              `json:"text"`
	Placeholder bool                `json:"placeholder"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	Icon        StatusIcon          `json:"icon,omitempty"`
	Time        string              `json:"time"`
	Actions     []Action            `json:"actions"`
}

// DateGroup is a run of consecutive messages sharing a date label.
type DateGroup struct {
	Label    string           `json:"label"`
	Messages []models.Message `json:"-"`
	Views    []MessageView    `json:"messages"`
}

// DateLabel names the calendar day of t relative to now, both in loc.
func DateLabel(t, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	now = now.In(loc)

	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	if ty == ny && tm == nm && td == nd {
		return LabelToday
	}
	yy, ym, yd := now.AddDate(0, 0, -1).Date()
	if ty == yy && tm == ym && td == yd {
		return LabelYesterday
	}
	return t.Format(dateLabelFmt)
}

// GroupByDate walks msgs in their existing order and starts a new group
// whenever the date label changes. It does not sort.
func GroupByDate(msgs []models.Message, now time.Time, loc *time.Location) []DateGroup {
	var groups []DateGroup
	for _, m := range msgs {
		label := DateLabel(m.SentAt, now, loc)
		if len(groups) == 0 || groups[len(groups)-1].Label != label {
			groups = append(groups, DateGroup{Label: label})
		}
		g := &groups[len(groups)-1]
		g.Messages = append(g.Messages, m)
	}
	return groups
}

func StatusIconFor(s models.Status) StatusIcon {
	switch s {
	case models.StatusSent:
		return IconCheck
	case models.StatusDelivered:
		return IconDoubleCheck
	case models.StatusSeen:
		return IconDoubleCheckAccent
	default:
		return IconNone
	}
}

// CanRecall reports whether the recall action applies to m at now.
func CanRecall(m models.Message, now time.Time, window time.Duration) bool {
	return m.Role == models.RoleUser && !m.Recalled && !m.Deleted && now.Sub(m.SentAt) < window
}

// Render turns a message into its bubble. Tombstones never expose content or
// attachments; deleted wins over recalled.
func Render(m models.Message, now time.Time, window time.Duration, loc *time.Location) MessageView {
	if loc == nil {
		loc = time.Local
	}
	v := MessageView{
		ID:      m.ID,
		Role:    m.Role,
		Time:    m.SentAt.In(loc).Format(timeLabelFmt),
		Actions: []Action{ActionCopy},
	}

	switch {
	case m.Deleted:
		v.Text = DeletedPlaceholder
		v.Placeholder = true
	case m.Recalled:
		v.Text = RecalledPlaceholder
		v.Placeholder = true
	default:
		v.Text = m.Content
		v.Attachments = append([]models.Attachment(nil), m.Attachments...)
	}

	if m.Role == models.RoleUser {
		v.Icon = StatusIconFor(m.Status)
		if CanRecall(m, now, window) {
			v.Actions = append(v.Actions, ActionRecall)
		}
		v.Actions = append(v.Actions, ActionDelete)
	}
	return v
}

// Snapshot renders the whole conversation grouped by date.
func Snapshot(msgs []models.Message, now time.Time, window time.Duration, loc *time.Location) []DateGroup {
	groups := GroupByDate(msgs, now, loc)
	for i := range groups {
		views := make([]MessageView, 0, len(groups[i].Messages))
		for _, m := range groups[i].Messages {
			views = append(views, Render(m, now, window, loc))
		}
		groups[i].Views = views
	}
	return groups
}
