package bot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zhorzholianitornike/vinegar/draft"
)

func TestParseCallback(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		data   string
		action string
		id     int64
	}{
		{"approve_12", "approve", 12},
		{"reject_1", "reject", 1},
		{"regen_text_7", "regen_text", 7},
		{"regen_image_7", "regen_image", 7},
		{"publish_now_33", "publish_now", 33},
		{"sched_1h_5", "sched_1h", 5},
		{"sched_24h_5", "sched_24h", 5},
		{"cancel_sched_5", "cancel_sched", 5},
		{"back_9", "back", 9},
		{"edit_400", "edit", 400},
	} {
		action, id, err := parseCallback(test.data)
		assert.NoError(err, test.data)
		assert.Equal(test.action, action, test.data)
		assert.Equal(test.id, id, test.data)
	}

	for _, bad := range []string{"", "approve", "approve_", "_12", "approve_abc"} {
		_, _, err := parseCallback(bad)
		assert.Error(err, bad)
	}
}

func TestSplitCommand(t *testing.T) {
	assert := assert.New(t)

	cmd, arg := splitCommand("/create ვაშლის ძმარი")
	assert.Equal("/create", cmd)
	assert.Equal("ვაშლის ძმარი", arg)

	cmd, arg = splitCommand("/status@vinegar_bot")
	assert.Equal("/status", cmd)
	assert.Equal("", arg)

	cmd, arg = splitCommand("  /help  ")
	assert.Equal("/help", cmd)
	assert.Equal("", arg)
}

func TestReviewCaption(t *testing.T) {
	assert := assert.New(t)

	d := &draft.Draft{ID: 3, Subject: "ვაშლის ძმარი", Text: "🍎 იყიდე ახლავე!", Status: draft.StatusDraft}
	caption := reviewCaption(d)
	assert.Contains(caption, "#3")
	assert.Contains(caption, "ვაშლის ძმარი")
	assert.Contains(caption, "🍎 იყიდე ახლავე!")
	assert.Contains(caption, string(draft.StatusDraft))

	d.Text = strings.Repeat("ა", 2000)
	caption = reviewCaption(d)
	assert.LessOrEqual(len(caption), captionLimit)
	assert.True(strings.HasSuffix(caption, "…"))
}

func TestKeyboards(t *testing.T) {
	assert := assert.New(t)

	flatten := func(m *InlineKeyboardMarkup) []string {
		var data []string
		for _, row := range m.InlineKeyboard {
			for _, b := range row {
				if b.CallbackData != "" {
					data = append(data, b.CallbackData)
				}
			}
		}
		return data
	}

	assert.Equal([]string{"approve_5", "reject_5", "regen_text_5", "regen_image_5", "edit_5"},
		flatten(reviewKeyboard(5)))
	assert.Equal([]string{"publish_now_5", "sched_1h_5", "sched_24h_5", "back_5"},
		flatten(publishKeyboard(5)))
	assert.Equal([]string{"publish_now_5", "cancel_sched_5", "back_5"},
		flatten(scheduledKeyboard(5)))
}

func TestStatusReport(t *testing.T) {
	assert := assert.New(t)

	assert.Contains(statusReport(nil), "📭")

	created := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	drafts := []*draft.Draft{
		{ID: 2, Subject: "მსხლის ძმარი", Status: draft.StatusApproved, CreatedAt: created,
			ScheduleNote: "Scheduled for: 2025-06-02 10:00"},
		{ID: 1, Subject: "ვაშლის ძმარი", Status: draft.StatusPublished, CreatedAt: created},
	}
	report := statusReport(drafts)
	assert.Contains(report, "#2")
	assert.Contains(report, "#1")
	assert.Contains(report, "2025-06-01 09:30")
	assert.Contains(report, "Scheduled for: 2025-06-02 10:00")
	assert.Contains(report, draft.StatusApproved.Emoji())

	many := make([]*draft.Draft, 15)
	for i := range many {
		many[i] = &draft.Draft{ID: int64(15 - i), Subject: "x", Status: draft.StatusDraft, CreatedAt: created}
	}
	report = statusReport(many)
	assert.Contains(report, "#15")
	assert.NotContains(report, "#5 ")
}

func TestFailureText(t *testing.T) {
	assert := assert.New(t)

	msg := failureText(&draft.GenerationError{Reason: "quota exceeded"})
	assert.Contains(msg, "quota exceeded")
	assert.Contains(failureText(draft.ErrNotFound), "არ მოიძებნა")
	assert.Contains(failureText(draft.ErrInvalidTransition), "დაუშვებელია")
}
