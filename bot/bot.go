// Package bot is the chat interaction surface: it maps Telegram commands
// and inline-button callbacks onto lifecycle and scheduling calls and
// renders the results back into the chat.  The core never depends on it.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zhorzholianitornike/vinegar/draft"
	"github.com/zhorzholianitornike/vinegar/sched"
)

const (
	pollTimeout  = 50 // seconds, long poll
	statusLimit  = 10
	retryBackoff = 3 * time.Second
)

const welcomeText = `👋 გამარჯობა! მე ვარ სოციალური მედიის მარკეტინგის აგენტი.

📋 ხელმისაწვდომი ბრძანებები:
/create <პროდუქტი> - შექმენი ახალი პოსტი
/status - დრაფტების სტატუსი
/help - დახმარება

🍎 მაგალითი: /create ბროწეულის ძმარი`

type Bot struct {
	client       *Client
	engine       *draft.Engine
	store        *draft.Store
	sched        *sched.Scheduler
	dashboardURL string
	// adminChatID restricts the bot to one chat when non-zero
	adminChatID int64
	log         *slog.Logger
}

// New returns a Bot wired to the engine and scheduler.
func New(client *Client, engine *draft.Engine, scheduler *sched.Scheduler, dashboardURL string, adminChatID int64) *Bot {
	return &Bot{
		client:       client,
		engine:       engine,
		store:        engine.Store(),
		sched:        scheduler,
		dashboardURL: dashboardURL,
		adminChatID:  adminChatID,
		log:          slog.Default().With("system", "bot"),
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("bot polling started")
	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.log.Error("getting updates", "err", err)
			select {
			case <-time.After(retryBackoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		for _, u := range updates {
			offset = u.ID + 1
			b.dispatch(ctx, u)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, u Update) {
	switch {
	case u.Message != nil:
		if !b.allowed(u.Message.Chat.ID) {
			return
		}
		b.handleMessage(ctx, u.Message)
	case u.CallbackQuery != nil:
		if u.CallbackQuery.Message == nil || !b.allowed(u.CallbackQuery.Message.Chat.ID) {
			return
		}
		b.handleCallback(ctx, u.CallbackQuery)
		if err := b.client.AnswerCallbackQuery(ctx, u.CallbackQuery.ID); err != nil {
			b.log.Warn("answering callback", "err", err)
		}
	}
}

func (b *Bot) allowed(chatID int64) bool {
	return b.adminChatID == 0 || chatID == b.adminChatID
}

func (b *Bot) handleMessage(ctx context.Context, m *Message) {
	cmd, arg := splitCommand(m.Text)
	switch cmd {
	case "/start", "/help":
		b.reply(ctx, m.Chat.ID, welcomeText)
	case "/create":
		b.create(ctx, m.Chat.ID, arg)
	case "/status":
		b.status(ctx, m.Chat.ID)
	}
}

// splitCommand splits "/create apple vinegar" into the command and its
// argument, stripping any @botname suffix.
func splitCommand(text string) (cmd, arg string) {
	cmd, arg, _ = strings.Cut(strings.TrimSpace(text), " ")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return cmd, strings.TrimSpace(arg)
}

func (b *Bot) create(ctx context.Context, chatID int64, subject string) {
	if subject == "" {
		b.reply(ctx, chatID, "❌ გთხოვ, მიუთითე პროდუქტი.\n\nმაგალითი: /create ბროწეულის ძმარი")
		return
	}

	processing, err := b.client.SendMessage(ctx, chatID,
		fmt.Sprintf("⏳ ვქმნი პოსტს %s-ის შესახებ...\n\n🎨 ვაგენერირებ სურათს...\n📝 ვწერ ტექსტს...", subject), nil)
	if err != nil {
		b.log.Error("sending processing message", "err", err)
		return
	}

	d, err := b.engine.Create(ctx, subject)
	if err != nil {
		b.log.Error("creating draft", "subject", subject, "err", err)
		b.reply(ctx, chatID, failureText(err))
		return
	}

	if err := b.client.DeleteMessage(ctx, chatID, processing.ID); err != nil {
		b.log.Warn("deleting processing message", "err", err)
	}
	b.sendForReview(ctx, chatID, d)
}

// sendForReview sends the draft photo+caption with the review keyboard and
// records the resulting message on the draft.
func (b *Bot) sendForReview(ctx context.Context, chatID int64, d *draft.Draft) {
	sent, err := b.client.SendPhoto(ctx, chatID, d.ImageRef, reviewCaption(d), reviewKeyboard(d.ID))
	if err != nil {
		b.log.Error("sending draft for review", "id", d.ID, "err", err)
		return
	}
	if err := b.store.SetMessageRef(d.ID, sent.ID); err != nil {
		b.log.Error("recording message ref", "id", d.ID, "err", err)
	}
}

func (b *Bot) status(ctx context.Context, chatID int64) {
	drafts, err := b.store.List("")
	if err != nil {
		b.log.Error("listing drafts", "err", err)
		b.reply(ctx, chatID, "❌ შეცდომა სტატუსის წაკითხვისას.")
		return
	}
	b.reply(ctx, chatID, statusReport(drafts))
}

// statusReport renders the last few drafts for /status.
func statusReport(drafts []*draft.Draft) string {
	if len(drafts) == 0 {
		return "📭 დრაფტები არ არის."
	}
	if len(drafts) > statusLimit {
		drafts = drafts[:statusLimit]
	}
	var sb strings.Builder
	sb.WriteString("📊 დრაფტების სტატუსი:\n\n")
	for _, d := range drafts {
		fmt.Fprintf(&sb, "%s #%d - %s\n   სტატუსი: %s\n   შექმნილია: %s\n",
			d.Status.Emoji(), d.ID, d.Subject, d.Status,
			d.CreatedAt.Format("2006-01-02 15:04"))
		if d.ScheduleNote != "" {
			fmt.Fprintf(&sb, "   🕒 %s\n", d.ScheduleNote)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Bot) handleCallback(ctx context.Context, cb *CallbackQuery) {
	action, id, err := parseCallback(cb.Data)
	if err != nil {
		b.log.Warn("bad callback data", "data", cb.Data)
		return
	}
	m := cb.Message

	switch action {
	case "approve":
		d, err := b.engine.Approve(id)
		if err != nil {
			b.fail(ctx, m.Chat.ID, id, err)
			return
		}
		b.edit(ctx, m, reviewCaption(d)+"\n\n✅ დამტკიცებულია! როდის გამოვაქვეყნოთ?", publishKeyboard(id))

	case "reject":
		d, err := b.engine.Reject(id)
		if err != nil {
			b.fail(ctx, m.Chat.ID, id, err)
			return
		}
		b.edit(ctx, m, reviewCaption(d)+"\n\n❌ უარყოფილია", nil)

	case "regen_text":
		d, err := b.engine.RegenerateText(ctx, id)
		if err != nil {
			b.fail(ctx, m.Chat.ID, id, err)
			return
		}
		b.edit(ctx, m, reviewCaption(d)+"\n\n🔄 ტექსტი განახლებულია!", reviewKeyboard(id))

	case "regen_image":
		d, err := b.engine.RegenerateImage(ctx, id)
		if err != nil {
			b.fail(ctx, m.Chat.ID, id, err)
			return
		}
		// photos can't be edited in place; send fresh and drop the old
		b.sendForReview(ctx, m.Chat.ID, d)
		if err := b.client.DeleteMessage(ctx, m.Chat.ID, m.ID); err != nil {
			b.log.Warn("deleting stale review message", "err", err)
		}

	case "edit":
		url := fmt.Sprintf("%s/drafts/%d", b.dashboardURL, id)
		markup := &InlineKeyboardMarkup{InlineKeyboard: [][]InlineKeyboardButton{
			{{Text: "🌐 დაშბორდზე გადასვლა", URL: url}},
		}}
		if _, err := b.client.SendMessage(ctx, m.Chat.ID, "✏️ დაშბორდზე რედაქტირებისთვის:\n"+url, markup); err != nil {
			b.log.Error("sending dashboard link", "err", err)
		}

	case "publish_now":
		res, err := b.sched.PublishNow(id)
		if err != nil {
			b.fail(ctx, m.Chat.ID, id, err)
			return
		}
		b.edit(ctx, m, m.Caption+fmt.Sprintf("\n\n🎉 გამოქვეყნდა! (%s)",
			res.PublishedAt.Format("2006-01-02 15:04")), nil)

	case "sched_1h", "sched_24h":
		delay := time.Hour
		if action == "sched_24h" {
			delay = 24 * time.Hour
		}
		at := time.Now().Add(delay)
		if err := b.sched.Schedule(id, at); err != nil {
			b.fail(ctx, m.Chat.ID, id, err)
			return
		}
		b.edit(ctx, m, m.Caption+fmt.Sprintf("\n\n🕒 დაიგეგმა: %s", at.Format("2006-01-02 15:04")),
			scheduledKeyboard(id))

	case "cancel_sched":
		if err := b.sched.Cancel(id); err != nil {
			b.fail(ctx, m.Chat.ID, id, err)
			return
		}
		b.edit(ctx, m, m.Caption+"\n\n🚫 განრიგი გაუქმდა.", publishKeyboard(id))

	case "back":
		d, err := b.sched.BackToEdit(id)
		if err != nil {
			b.fail(ctx, m.Chat.ID, id, err)
			return
		}
		b.edit(ctx, m, reviewCaption(d)+"\n\n✏️ დაბრუნდა რედაქტირებაზე.", reviewKeyboard(id))

	default:
		b.log.Warn("unknown callback action", "action", action)
	}
}

// parseCallback splits "regen_text_12" into ("regen_text", 12).
func parseCallback(data string) (action string, id int64, err error) {
	idx := strings.LastIndexByte(data, '_')
	if idx <= 0 || idx == len(data)-1 {
		return "", 0, fmt.Errorf("malformed callback %q", data)
	}
	id, err = strconv.ParseInt(data[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed callback %q", data)
	}
	return data[:idx], id, nil
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.client.SendMessage(ctx, chatID, text, nil); err != nil {
		b.log.Error("sending message", "err", err)
	}
}

func (b *Bot) edit(ctx context.Context, m *Message, caption string, markup *InlineKeyboardMarkup) {
	if err := b.client.EditMessageCaption(ctx, m.Chat.ID, m.ID, caption, markup); err != nil {
		b.log.Error("editing caption", "err", err)
	}
}

// fail turns a core error into a precise user-facing message.
func (b *Bot) fail(ctx context.Context, chatID, id int64, err error) {
	b.log.Warn("action failed", "id", id, "err", err)
	b.reply(ctx, chatID, failureText(err))
}

func failureText(err error) string {
	var genErr *draft.GenerationError
	switch {
	case errors.As(err, &genErr):
		return "❌ გენერაცია ვერ მოხერხდა. გთხოვ, სცადე თავიდან.\n(" + genErr.Reason + ")"
	case errors.Is(err, draft.ErrNotFound):
		return "❌ დრაფტი არ მოიძებნა."
	case errors.Is(err, draft.ErrInvalidTransition), errors.Is(err, sched.ErrRejected):
		return "❌ ეს მოქმედება ამ სტატუსიდან დაუშვებელია."
	case errors.Is(err, sched.ErrNotScheduled):
		return "❌ ამ დრაფტს განრიგი არ აქვს."
	}
	return "❌ შეცდომა: " + err.Error()
}
