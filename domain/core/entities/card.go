package entities

import (
	"time"

	"loom-backend/domain/core/valueobjects"

	pkgerrors "loom-backend/pkg/errors"
)

// Card is the main entity representing one conversation turn on the
// canvas: a prompt, the response generated for it, and the context
// bookkeeping that staleness detection needs.
type Card struct {
	// Private fields ensure encapsulation
	id       valueobjects.CardID
	position valueobjects.Position
	prompt   string
	response *string
	summary  *string

	// Ordered cache of direct parents; edges are authoritative and the
	// owning aggregate recomputes this whenever incident edges change.
	parentIDs []valueobjects.CardID

	quote              *Quote
	isStale            bool
	contextFingerprint *string
	excludedContextIDs []valueobjects.CardID
	pendingRegenerate  bool

	createdAt time.Time
	updatedAt time.Time
	version   int
}

// Quote seeds a card from an excerpt of another card's response. The
// source response is snapshotted at excerpt time so later edits to the
// source are detectable.
type Quote struct {
	Excerpt        string
	SourceID       valueobjects.CardID
	SourceResponse string
}

// NewCard creates a card with no response yet. An empty prompt is
// allowed: the canvas creates the card first, the user types into it.
func NewCard(position valueobjects.Position, prompt string) *Card {
	now := time.Now()
	return &Card{
		id:        valueobjects.NewCardID(),
		position:  position,
		prompt:    prompt,
		parentIDs: []valueobjects.CardID{},
		createdAt: now,
		updatedAt: now,
		version:   1,
	}
}

// ReconstructCard rebuilds a card from repository data or a history
// restore, preserving timestamps and generation state.
func ReconstructCard(
	id valueobjects.CardID,
	position valueobjects.Position,
	prompt string,
	response, summary *string,
	parentIDs []valueobjects.CardID,
	quote *Quote,
	isStale bool,
	contextFingerprint *string,
	excludedContextIDs []valueobjects.CardID,
	createdAt, updatedAt time.Time,
	version int,
) (*Card, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidation("card ID cannot be empty")
	}
	if response == nil && isStale {
		return nil, pkgerrors.NewValidation("card without response cannot be stale")
	}

	card := &Card{
		id:                 id,
		position:           position,
		prompt:             prompt,
		response:           copyString(response),
		summary:            copyString(summary),
		parentIDs:          copyIDs(parentIDs),
		quote:              copyQuote(quote),
		isStale:            isStale,
		contextFingerprint: copyString(contextFingerprint),
		excludedContextIDs: copyIDs(excludedContextIDs),
		createdAt:          createdAt,
		updatedAt:          updatedAt,
		version:            version,
	}
	return card, nil
}

// ID returns the card's unique identifier
func (c *Card) ID() valueobjects.CardID {
	return c.id
}

// Position returns the card's canvas placement
func (c *Card) Position() valueobjects.Position {
	return c.position
}

// Prompt returns the card's prompt text
func (c *Card) Prompt() string {
	return c.prompt
}

// Response returns the generated response, nil if none was produced yet
func (c *Card) Response() *string {
	return c.response
}

// HasResponse checks whether a response has been produced
func (c *Card) HasResponse() bool {
	return c.response != nil
}

// Summary returns the condensed response used for distant ancestors
func (c *Card) Summary() *string {
	return c.summary
}

// ParentIDs returns the ordered direct parents
func (c *Card) ParentIDs() []valueobjects.CardID {
	return copyIDs(c.parentIDs)
}

// Quote returns the quote seed, nil for ordinary cards
func (c *Card) Quote() *Quote {
	return copyQuote(c.quote)
}

// IsQuoteCard checks whether this card was seeded from an excerpt
func (c *Card) IsQuoteCard() bool {
	return c.quote != nil
}

// IsStale reports whether the card's inherited context drifted since
// its response was produced
func (c *Card) IsStale() bool {
	return c.isStale
}

// ContextFingerprint returns the fingerprint stored when the response
// was produced, nil if none was saved
func (c *Card) ContextFingerprint() *string {
	return c.contextFingerprint
}

// ExcludedContextIDs returns ancestors manually excluded from context
func (c *Card) ExcludedContextIDs() []valueobjects.CardID {
	return copyIDs(c.excludedContextIDs)
}

// ExcludesFromContext checks whether the given ancestor is excluded
func (c *Card) ExcludesFromContext(id valueobjects.CardID) bool {
	for _, excluded := range c.excludedContextIDs {
		if excluded.Equals(id) {
			return true
		}
	}
	return false
}

// PendingRegenerate reports whether the scheduler has this card queued
// or in flight
func (c *Card) PendingRegenerate() bool {
	return c.pendingRegenerate
}

// CreatedAt returns when the card was created
func (c *Card) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the card was last updated
func (c *Card) UpdatedAt() time.Time {
	return c.updatedAt
}

// Version returns the card's version for optimistic locking
func (c *Card) Version() int {
	return c.version
}

// SetPrompt updates the prompt text; returns true if it changed
func (c *Card) SetPrompt(prompt string) bool {
	if c.prompt == prompt {
		return false
	}
	c.prompt = prompt
	c.touch()
	return true
}

// SetResponse commits a generated or user-edited response; returns
// true if it changed
func (c *Card) SetResponse(response string) bool {
	if c.response != nil && *c.response == response {
		return false
	}
	c.response = &response
	c.touch()
	return true
}

// ClearResponse removes the response. A card without a response cannot
// be stale, carry a fingerprint, or sit in a regeneration queue, so
// those flags are dropped with it.
func (c *Card) ClearResponse() bool {
	if c.response == nil {
		return false
	}
	c.response = nil
	c.isStale = false
	c.contextFingerprint = nil
	c.pendingRegenerate = false
	c.touch()
	return true
}

// SetSummary updates the condensed response; returns true if changed
func (c *Card) SetSummary(summary string) bool {
	if c.summary != nil && *c.summary == summary {
		return false
	}
	c.summary = &summary
	c.touch()
	return true
}

// ClearSummary removes the condensed response
func (c *Card) ClearSummary() bool {
	if c.summary == nil {
		return false
	}
	c.summary = nil
	c.touch()
	return true
}

// SetQuote attaches or replaces the quote seed
func (c *Card) SetQuote(quote Quote) bool {
	if c.quote != nil && *c.quote == quote {
		return false
	}
	q := quote
	c.quote = &q
	c.touch()
	return true
}

// ClearQuote detaches the quote seed
func (c *Card) ClearQuote() bool {
	if c.quote == nil {
		return false
	}
	c.quote = nil
	c.touch()
	return true
}

// SetExcludedContextIDs replaces the exclusion list; returns true if
// the set changed
func (c *Card) SetExcludedContextIDs(ids []valueobjects.CardID) bool {
	if equalIDs(c.excludedContextIDs, ids) {
		return false
	}
	c.excludedContextIDs = copyIDs(ids)
	c.touch()
	return true
}

// MoveTo moves the card to a new position
func (c *Card) MoveTo(position valueobjects.Position) bool {
	if position.Equals(c.position) {
		return false
	}
	c.position = position
	c.touch()
	return true
}

// SetParentIDs replaces the parent cache. Only the owning aggregate
// calls this, after recomputing from authoritative edges.
func (c *Card) SetParentIDs(ids []valueobjects.CardID) {
	c.parentIDs = copyIDs(ids)
}

// MarkStale flags the card stale. Cards without a response are never
// stale, so this is a no-op for them.
func (c *Card) MarkStale() bool {
	if c.response == nil || c.isStale {
		return false
	}
	c.isStale = true
	return true
}

// ClearStale removes the stale flag
func (c *Card) ClearStale() bool {
	if !c.isStale {
		return false
	}
	c.isStale = false
	return true
}

// SaveContextFingerprint stores the fingerprint the response was
// produced against
func (c *Card) SaveContextFingerprint(fingerprint string) {
	c.contextFingerprint = &fingerprint
}

// SetPendingRegenerate toggles the scheduler's in-progress flag
func (c *Card) SetPendingRegenerate(pending bool) {
	c.pendingRegenerate = pending
}

// Clone returns a deep copy, used by history restores and the deletion
// graveyard
func (c *Card) Clone() *Card {
	return &Card{
		id:                 c.id,
		position:           c.position,
		prompt:             c.prompt,
		response:           copyString(c.response),
		summary:            copyString(c.summary),
		parentIDs:          copyIDs(c.parentIDs),
		quote:              copyQuote(c.quote),
		isStale:            c.isStale,
		contextFingerprint: copyString(c.contextFingerprint),
		excludedContextIDs: copyIDs(c.excludedContextIDs),
		pendingRegenerate:  c.pendingRegenerate,
		createdAt:          c.createdAt,
		updatedAt:          c.updatedAt,
		version:            c.version,
	}
}

// touch bumps updatedAt and the version counter
func (c *Card) touch() {
	c.updatedAt = time.Now()
	c.version++
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyQuote(q *Quote) *Quote {
	if q == nil {
		return nil
	}
	v := *q
	return &v
}

func copyIDs(ids []valueobjects.CardID) []valueobjects.CardID {
	out := make([]valueobjects.CardID, len(ids))
	copy(out, ids)
	return out
}

func equalIDs(a, b []valueobjects.CardID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}
