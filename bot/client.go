package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// A thin client for the pieces of the Telegram Bot API this program uses.
// None of the example infrastructure ships a Telegram library, so this
// stays a small hand-rolled HTTP wrapper rather than a dependency.

const telegramBaseURL = "https://api.telegram.org"

type Client struct {
	Token string

	// BaseURL and HTTPClient are overridable for tests.
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for the given bot token.  The http timeout
// leaves headroom over the long-poll timeout.
func NewClient(token string) *Client {
	return &Client{
		Token:      token,
		BaseURL:    telegramBaseURL,
		HTTPClient: &http.Client{Timeout: 70 * time.Second},
	}
}

// Wire types, limited to the fields we read.

type Update struct {
	ID            int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	ID      int64  `json:"message_id"`
	Chat    Chat   `json:"chat"`
	Text    string `json:"text"`
	Caption string `json:"caption"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	Message *Message `json:"message"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// apiResponse is the envelope every method returns.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// call posts params as JSON to the named method and unmarshals the result
// into out, if out is non-nil.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.Token, method)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("%s: %s", method, env.Description)
	}
	if out != nil {
		return json.Unmarshal(env.Result, out)
	}
	return nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": timeout,
	}, &updates)
	return updates, err
}

// SendMessage sends text to a chat, optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	params := map[string]any{"chat_id": chatID, "text": text}
	if markup != nil {
		params["reply_markup"] = markup
	}
	var m Message
	if err := c.call(ctx, "sendMessage", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SendPhoto uploads the photo at path with a caption and keyboard.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, path, caption string, markup *InlineKeyboardMarkup) (*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	w.WriteField("caption", caption)
	if markup != nil {
		raw, err := json.Marshal(markup)
		if err != nil {
			return nil, err
		}
		w.WriteField("reply_markup", string(raw))
	}
	part, err := w.CreateFormFile("photo", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendPhoto"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var m Message
	if err := c.do(req, "sendPhoto", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// EditMessageCaption replaces a photo message's caption and keyboard.
// A nil markup removes the buttons.
func (c *Client) EditMessageCaption(ctx context.Context, chatID, messageID int64, caption string, markup *InlineKeyboardMarkup) error {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"caption":    caption,
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	return c.call(ctx, "editMessageCaption", params, nil)
}

// DeleteMessage removes a message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// AnswerCallbackQuery clears the loading state on a pressed button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": id,
	}, nil)
}
