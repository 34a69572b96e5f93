package draft

import (
	"context"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

type fakeText struct {
	text  string
	err   error
	calls int
}

func (f *fakeText) GeneratePost(ctx context.Context, subject string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeImage struct {
	ref   string
	err   error
	calls int
}

func (f *fakeImage) GenerateImage(ctx context.Context, subject string) (string, error) {
	f.calls++
	return f.ref, f.err
}

func testEngine(t *testing.T) (*Engine, *fakeText, *fakeImage) {
	t.Helper()
	text := &fakeText{text: "generated copy"}
	image := &fakeImage{ref: "gen.png"}
	e := NewEngine(testStore(t), text, image)
	e.now = e.store.now
	return e, text, image
}

func TestEngineCreate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, text, image := testEngine(t)

	d, err := e.Create(ctx, "pomegranate vinegar")
	assert.NoError(err)
	assert.Equal(StatusDraft, d.Status)
	assert.Equal("generated copy", d.Text)
	assert.Equal("gen.png", d.ImageRef)
	assert.Equal(1, text.calls)
	assert.Equal(1, image.calls)
}

func TestEngineCreateFailureWritesNothing(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, text, _ := testEngine(t)
	text.err = errors.New("quota exceeded")

	_, err := e.Create(ctx, "pomegranate vinegar")
	var genErr *GenerationError
	assert.ErrorAs(err, &genErr)
	assert.Contains(genErr.Reason, "quota")

	drafts, _ := e.store.List("")
	assert.Len(drafts, 0)
}

func TestEngineTransitions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, _, _ := testEngine(t)

	d, _ := e.Create(ctx, "apple vinegar")

	// publish from draft is illegal and mutates nothing
	_, err := e.Publish(d.ID)
	assert.ErrorIs(err, ErrInvalidTransition)
	d, _ = e.store.Get(d.ID)
	assert.Equal(StatusDraft, d.Status)
	assert.Nil(d.PublishedAt)

	d, err = e.Approve(d.ID)
	assert.NoError(err)
	assert.Equal(StatusApproved, d.Status)

	// approving again is an idempotent no-op
	again, err := e.Approve(d.ID)
	assert.NoError(err)
	assert.Equal(StatusApproved, again.Status)
	assert.Equal(d.UpdatedAt, again.UpdatedAt)

	// reject is not defined from approved
	_, err = e.Reject(d.ID)
	assert.ErrorIs(err, ErrInvalidTransition)

	// back to edit and re-approve
	d, err = e.BackToEdit(d.ID)
	assert.NoError(err)
	assert.Equal(StatusDraft, d.Status)
	d, _ = e.Approve(d.ID)

	d, err = e.Publish(d.ID)
	assert.NoError(err)
	assert.Equal(StatusPublished, d.Status)
	assert.NotNil(d.PublishedAt)

	// terminal: publishing again fails, published_at untouched
	was := *d.PublishedAt
	_, err = e.Publish(d.ID)
	assert.ErrorIs(err, ErrInvalidTransition)
	d, _ = e.store.Get(d.ID)
	assert.Equal(was, *d.PublishedAt)
}

func TestEnginePublishedAtInvariant(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, _, _ := testEngine(t)

	// published_at is set iff status == published, across every transition
	check := func(id int64) {
		d, err := e.store.Get(id)
		assert.NoError(err)
		if d.Status == StatusPublished {
			assert.NotNil(d.PublishedAt)
		} else {
			assert.Nil(d.PublishedAt)
		}
	}

	d, _ := e.Create(ctx, "quince vinegar")
	check(d.ID)
	e.Approve(d.ID)
	check(d.ID)
	e.BackToEdit(d.ID)
	check(d.ID)
	e.Approve(d.ID)
	check(d.ID)
	e.Publish(d.ID)
	check(d.ID)

	r, _ := e.Create(ctx, "grape vinegar")
	e.Reject(r.ID)
	check(r.ID)
}

func TestEngineRejectedIsTerminal(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, _, _ := testEngine(t)

	d, _ := e.Create(ctx, "apple vinegar")
	d, err := e.Reject(d.ID)
	assert.NoError(err)
	assert.Equal(StatusRejected, d.Status)

	// no resurrection
	_, err = e.Approve(d.ID)
	assert.ErrorIs(err, ErrInvalidTransition)
	_, err = e.Reject(d.ID)
	assert.ErrorIs(err, ErrInvalidTransition)
	_, err = e.RegenerateText(ctx, d.ID)
	assert.ErrorIs(err, ErrInvalidTransition)
}

func TestEngineRegenerate(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, text, image := testEngine(t)

	d, _ := e.Create(ctx, "apple vinegar")

	text.text = "fresher copy"
	d, err := e.RegenerateText(ctx, d.ID)
	assert.NoError(err)
	assert.Equal("fresher copy", d.Text)

	history, _ := e.store.History(d.ID)
	assert.Len(history, 1)
	assert.Equal(EditedByGenerator, history[0].EditedBy)
	assert.Equal("generated copy", history[0].OldText)

	image.ref = "fresher.png"
	d, err = e.RegenerateImage(ctx, d.ID)
	assert.NoError(err)
	assert.Equal("fresher.png", d.ImageRef)

	// regeneration stays legal on approved drafts
	e.Approve(d.ID)
	text.text = "approved-stage copy"
	d, err = e.RegenerateText(ctx, d.ID)
	assert.NoError(err)
	assert.Equal("approved-stage copy", d.Text)
	assert.Equal(StatusApproved, d.Status)
}

func TestEngineRegenerateFailureLeavesDraft(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, text, _ := testEngine(t)

	d, _ := e.Create(ctx, "apple vinegar")
	text.err = errors.New("content policy")

	_, err := e.RegenerateText(ctx, d.ID)
	var genErr *GenerationError
	assert.ErrorAs(err, &genErr)

	d2, _ := e.store.Get(d.ID)
	assert.Equal(d.Text, d2.Text)
	assert.Equal(d.UpdatedAt, d2.UpdatedAt)
	history, _ := e.store.History(d.ID)
	assert.Len(history, 0)
}

func TestEngineRegenerateOnPublished(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, _, _ := testEngine(t)

	d, _ := e.Create(ctx, "apple vinegar")
	e.Approve(d.ID)
	e.Publish(d.ID)

	_, err := e.RegenerateText(ctx, d.ID)
	assert.ErrorIs(err, ErrInvalidTransition)
	_, err = e.RegenerateImage(ctx, d.ID)
	assert.ErrorIs(err, ErrInvalidTransition)
}

func TestEngineNotFound(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	e, _, _ := testEngine(t)

	_, err := e.Approve(99)
	assert.ErrorIs(err, ErrNotFound)
	_, err = e.Publish(99)
	assert.ErrorIs(err, ErrNotFound)
	_, err = e.RegenerateText(ctx, 99)
	assert.ErrorIs(err, ErrNotFound)
}
