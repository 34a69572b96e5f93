package draft

import (
	"context"
	"fmt"
	"time"
)

// A TextGenerator produces marketing copy for a subject.  Calls may be slow
// and may fail for any reason; failures are surfaced, never retried here.
type TextGenerator interface {
	GeneratePost(ctx context.Context, subject string) (string, error)
}

// An ImageGenerator produces a product image for a subject and returns a
// reference to it (a media path).
type ImageGenerator interface {
	GenerateImage(ctx context.Context, subject string) (string, error)
}

// The Engine owns the draft state machine.
//
//	draft ──approve──▶ approved ──publish──▶ published
//	  │                    │
//	reject           back to edit (returns to draft)
//	  ▼
//	rejected
//
// published and rejected are terminal.  Regeneration is legal from draft
// and approved only.
type Engine struct {
	store *Store
	text  TextGenerator
	image ImageGenerator
	// test usage
	now func() time.Time
}

// NewEngine returns an Engine over store using the given adapters.
func NewEngine(store *Store, text TextGenerator, image ImageGenerator) *Engine {
	return &Engine{store: store, text: text, image: image, now: time.Now}
}

// Store exposes the engine's backing store.
func (e *Engine) Store() *Store { return e.store }

// Create generates an image and text for subject and persists the result
// as a new draft.  Nothing is written unless both generations succeed; the
// adapter calls hold no draft state, so an abandoned slow call has no
// observable effect.
func (e *Engine) Create(ctx context.Context, subject string) (*Draft, error) {
	imageRef, err := e.image.GenerateImage(ctx, subject)
	if err != nil {
		return nil, &GenerationError{Reason: err.Error()}
	}
	text, err := e.text.GeneratePost(ctx, subject)
	if err != nil {
		return nil, &GenerationError{Reason: err.Error()}
	}
	id, err := e.store.Create(subject, text, imageRef)
	if err != nil {
		return nil, err
	}
	return e.store.Get(id)
}

// Approve moves a draft to approved.  Approving an already-approved draft
// is an idempotent no-op returning the current record.
func (e *Engine) Approve(id int64) (*Draft, error) {
	d, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	switch d.Status {
	case StatusApproved:
		return d, nil
	case StatusDraft:
		if err := e.store.UpdateStatus(id, StatusApproved); err != nil {
			return nil, err
		}
		return e.store.Get(id)
	}
	return nil, fmt.Errorf("approve from %s: %w", d.Status, ErrInvalidTransition)
}

// Reject moves a draft to rejected, a terminal state.  Only legal from
// draft; an approved draft has to go back to edit first.
func (e *Engine) Reject(id int64) (*Draft, error) {
	d, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusDraft {
		return nil, fmt.Errorf("reject from %s: %w", d.Status, ErrInvalidTransition)
	}
	if err := e.store.UpdateStatus(id, StatusRejected); err != nil {
		return nil, err
	}
	return e.store.Get(id)
}

// BackToEdit reverts an approved draft to draft for further editing.
func (e *Engine) BackToEdit(id int64) (*Draft, error) {
	d, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusApproved {
		return nil, fmt.Errorf("back to edit from %s: %w", d.Status, ErrInvalidTransition)
	}
	if err := e.store.UpdateStatus(id, StatusDraft); err != nil {
		return nil, err
	}
	return e.store.Get(id)
}

// Publish finalizes an approved draft, stamping published_at.  The status
// check and the publish write are one atomic statement, so of two racing
// calls exactly one succeeds; the loser sees ErrInvalidTransition and no
// mutation.
func (e *Engine) Publish(id int64) (*Draft, error) {
	ok, err := e.store.publish(id, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// lost the race or was never approved; find out which
		d, err := e.store.Get(id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("publish from %s: %w", d.Status, ErrInvalidTransition)
	}
	return e.store.Get(id)
}

// RegenerateText replaces the draft's text with a fresh generation,
// recording the edit with generator provenance.  On adapter failure the
// draft is left untouched.
func (e *Engine) RegenerateText(ctx context.Context, id int64) (*Draft, error) {
	d, err := e.regenTarget(id)
	if err != nil {
		return nil, err
	}
	// the adapter call happens before the store mutation, not under it
	text, err := e.text.GeneratePost(ctx, d.Subject)
	if err != nil {
		return nil, &GenerationError{Reason: err.Error()}
	}
	if err := e.store.UpdateText(id, text, EditedByGenerator); err != nil {
		return nil, err
	}
	return e.store.Get(id)
}

// RegenerateImage replaces the draft's image with a fresh generation.
func (e *Engine) RegenerateImage(ctx context.Context, id int64) (*Draft, error) {
	d, err := e.regenTarget(id)
	if err != nil {
		return nil, err
	}
	ref, err := e.image.GenerateImage(ctx, d.Subject)
	if err != nil {
		return nil, &GenerationError{Reason: err.Error()}
	}
	if err := e.store.UpdateImage(id, ref); err != nil {
		return nil, err
	}
	return e.store.Get(id)
}

// regenTarget fetches a draft and checks that regeneration is legal for
// it.  Terminal drafts cannot be regenerated against; closed content stays
// closed.
func (e *Engine) regenTarget(id int64) (*Draft, error) {
	d, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if d.Status.Terminal() {
		return nil, fmt.Errorf("regenerate on %s draft: %w", d.Status, ErrInvalidTransition)
	}
	return d, nil
}
