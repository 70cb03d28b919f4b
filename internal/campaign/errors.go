package campaign

import "errors"

var (
	// ErrNotFound means no campaign exists with the given ID.
	ErrNotFound = errors.New("campaign not found")

	// ErrNotDraft means the campaign is not in the draft state; only
	// drafts can be sent, and the transition to sending happens exactly
	// once even under concurrent triggers.
	ErrNotDraft = errors.New("campaign is not in draft state")
)
