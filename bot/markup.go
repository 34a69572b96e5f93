package bot

import (
	"fmt"

	"github.com/zhorzholianitornike/vinegar/draft"
)

// Captions and inline keyboards for the review flow.  Telegram caps photo
// captions at 1024 characters, so long post text gets trimmed.

const captionLimit = 1024

// reviewCaption renders a draft's subject, status and text for a photo
// caption.
func reviewCaption(d *draft.Draft) string {
	header := fmt.Sprintf("%s #%d · %s [%s]\n\n", d.Status.Emoji(), d.ID, d.Subject, d.Status)
	text := d.Text
	if over := len(header) + len(text) - captionLimit; over > 0 {
		runes := []rune(text)
		if over < len(runes) {
			text = string(runes[:len(runes)-over]) + "…"
		}
	}
	return header + text
}

func button(text, action string, id int64) InlineKeyboardButton {
	return InlineKeyboardButton{Text: text, CallbackData: fmt.Sprintf("%s_%d", action, id)}
}

// reviewKeyboard offers the actions legal on a draft under review.
func reviewKeyboard(id int64) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{button("✅ დამტკიცება", "approve", id), button("❌ უარყოფა", "reject", id)},
		{button("🔄 ახალი ტექსტი", "regen_text", id), button("🎨 ახალი სურათი", "regen_image", id)},
		{button("✏️ რედაქტირება", "edit", id)},
	}}
}

// publishKeyboard offers the actions legal on an approved draft.
func publishKeyboard(id int64) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{button("🚀 ახლავე", "publish_now", id)},
		{button("🕐 1 საათში", "sched_1h", id), button("🕛 24 საათში", "sched_24h", id)},
		{button("↩️ უკან რედაქტირებაზე", "back", id)},
	}}
}

// scheduledKeyboard offers the actions legal while a publish is pending.
func scheduledKeyboard(id int64) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
		{button("🚀 ახლავე", "publish_now", id)},
		{button("🚫 განრიგის გაუქმება", "cancel_sched", id)},
		{button("↩️ უკან რედაქტირებაზე", "back", id)},
	}}
}
