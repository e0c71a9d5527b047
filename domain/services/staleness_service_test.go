package services

import (
	"testing"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStalenessService_MarkDescendantsStale(t *testing.T) {
	svc := NewStalenessService(nil)
	canvas := newTestCanvas(t)

	root := addCard(t, canvas, "root", nil)
	setResponse(t, canvas, root.ID(), "root response")

	answered := addCard(t, canvas, "answered", []valueobjects.CardID{root.ID()})
	setResponse(t, canvas, answered.ID(), "answered response")

	unanswered := addCard(t, canvas, "unanswered", []valueobjects.CardID{root.ID()})

	// Answered grandchild sits below the unanswered card; the walk
	// must pass through to reach it
	grandchild := addCard(t, canvas, "grandchild", []valueobjects.CardID{unanswered.ID()})
	setResponse(t, canvas, grandchild.ID(), "grandchild response")

	marked := svc.MarkDescendantsStale(canvas, root.ID())

	assert.Len(t, marked, 2)
	assertStale(t, canvas, answered.ID(), true)
	assertStale(t, canvas, unanswered.ID(), false)
	assertStale(t, canvas, grandchild.ID(), true)

	// Root itself is not a descendant
	assertStale(t, canvas, root.ID(), false)
}

func TestStalenessService_MarkDescendantsStale_Diamond(t *testing.T) {
	svc := NewStalenessService(nil)
	canvas := newTestCanvas(t)

	top := addCard(t, canvas, "top", nil)
	setResponse(t, canvas, top.ID(), "top response")
	left := addCard(t, canvas, "left", []valueobjects.CardID{top.ID()})
	setResponse(t, canvas, left.ID(), "left response")
	right := addCard(t, canvas, "right", []valueobjects.CardID{top.ID()})
	setResponse(t, canvas, right.ID(), "right response")
	bottom := addCard(t, canvas, "bottom", []valueobjects.CardID{left.ID(), right.ID()})
	setResponse(t, canvas, bottom.ID(), "bottom response")

	marked := svc.MarkDescendantsStale(canvas, top.ID())

	// bottom reachable twice but flipped once
	assert.Len(t, marked, 3)
}

func TestStalenessService_MarkDescendantsStale_CycleSafe(t *testing.T) {
	svc := NewStalenessService(nil)
	canvas := newTestCanvas(t)

	a := addCard(t, canvas, "a", nil)
	b := addCard(t, canvas, "b", []valueobjects.CardID{a.ID()})
	_, _, err := canvas.AddEdge(b.ID(), a.ID())
	require.NoError(t, err)

	// Terminates despite the cycle; nothing has a response, nothing flips
	marked := svc.MarkDescendantsStale(canvas, a.ID())
	assert.Empty(t, marked)
}

func TestStalenessService_TryClearStale_RoundTrip(t *testing.T) {
	fingerprints := NewFingerprintService(nil)
	svc := NewStalenessService(fingerprints)
	canvas := newTestCanvas(t)

	// Scenario: A answered, B answered against A's response
	a := addCard(t, canvas, "a prompt", nil)
	setResponse(t, canvas, a.ID(), "R_A")
	b := addCard(t, canvas, "b prompt", []valueobjects.CardID{a.ID()})
	setResponse(t, canvas, b.ID(), "R_B")

	saveFingerprint(t, fingerprints, canvas, b.ID())

	// Edit A's response: B goes stale
	setResponse(t, canvas, a.ID(), "edited R_A")
	marked := svc.MarkDescendantsStale(canvas, a.ID())
	require.Len(t, marked, 1)
	assertStale(t, canvas, b.ID(), true)

	// Still stale while the context differs
	assert.Empty(t, svc.TryClearStale(canvas, b.ID()))
	assertStale(t, canvas, b.ID(), true)

	// Revert A's response to the exact original text: fingerprint
	// matches again and the flag clears
	setResponse(t, canvas, a.ID(), "R_A")
	cleared := svc.TryClearStale(canvas, b.ID())
	require.Len(t, cleared, 1)
	assert.True(t, cleared[0].Equals(b.ID()))
	assertStale(t, canvas, b.ID(), false)
}

func TestStalenessService_TryClearStale_RecursesToChildren(t *testing.T) {
	fingerprints := NewFingerprintService(nil)
	svc := NewStalenessService(fingerprints)
	canvas := newTestCanvas(t)

	a := addCard(t, canvas, "a", nil)
	setResponse(t, canvas, a.ID(), "R_A")
	b := addCard(t, canvas, "b", []valueobjects.CardID{a.ID()})
	setResponse(t, canvas, b.ID(), "R_B")
	c := addCard(t, canvas, "c", []valueobjects.CardID{b.ID()})
	setResponse(t, canvas, c.ID(), "R_C")

	saveFingerprint(t, fingerprints, canvas, b.ID())
	saveFingerprint(t, fingerprints, canvas, c.ID())

	setResponse(t, canvas, a.ID(), "edited")
	svc.MarkDescendantsStale(canvas, a.ID())
	assertStale(t, canvas, b.ID(), true)
	assertStale(t, canvas, c.ID(), true)

	setResponse(t, canvas, a.ID(), "R_A")
	cleared := svc.TryClearStale(canvas, b.ID())

	// Clearing b unblocks c in the same pass
	assert.Len(t, cleared, 2)
	assertStale(t, canvas, b.ID(), false)
	assertStale(t, canvas, c.ID(), false)
}

func TestStalenessService_TryClearStale_NoFingerprintStaysStale(t *testing.T) {
	svc := NewStalenessService(nil)
	canvas := newTestCanvas(t)

	a := addCard(t, canvas, "a", nil)
	setResponse(t, canvas, a.ID(), "R_A")
	b := addCard(t, canvas, "b", []valueobjects.CardID{a.ID()})
	setResponse(t, canvas, b.ID(), "R_B")

	// No fingerprint was ever saved for b
	setResponse(t, canvas, a.ID(), "edited")
	svc.MarkDescendantsStale(canvas, a.ID())

	assert.Empty(t, svc.TryClearStale(canvas, b.ID()))
	assertStale(t, canvas, b.ID(), true)
}

func TestStalenessService_TryClearStale_MissingCard(t *testing.T) {
	svc := NewStalenessService(nil)
	canvas := newTestCanvas(t)

	assert.Empty(t, svc.TryClearStale(canvas, valueobjects.NewCardID()))
}

func TestStalenessService_TryClearStaleAll_Idempotent(t *testing.T) {
	fingerprints := NewFingerprintService(nil)
	svc := NewStalenessService(fingerprints)
	canvas := newTestCanvas(t)

	a := addCard(t, canvas, "a", nil)
	setResponse(t, canvas, a.ID(), "R_A")
	matching := addCard(t, canvas, "matching", []valueobjects.CardID{a.ID()})
	setResponse(t, canvas, matching.ID(), "R_M")
	drifted := addCard(t, canvas, "drifted", []valueobjects.CardID{a.ID()})
	setResponse(t, canvas, drifted.ID(), "R_D")

	saveFingerprint(t, fingerprints, canvas, matching.ID())
	saveFingerprint(t, fingerprints, canvas, drifted.ID())

	// Edit and revert A: both children marked, only contexts that
	// really match can clear
	setResponse(t, canvas, a.ID(), "edited")
	svc.MarkDescendantsStale(canvas, a.ID())
	setResponse(t, canvas, a.ID(), "R_A")

	// Drift the second child's own prompt so its context no longer
	// matches its saved fingerprint
	newPrompt := "drifted prompt"
	_, err := canvas.PatchCard(drifted.ID(), patchPrompt(newPrompt))
	require.NoError(t, err)

	first := svc.TryClearStaleAll(canvas)
	require.Len(t, first, 1)
	assert.True(t, first[0].Equals(matching.ID()))
	assertStale(t, canvas, matching.ID(), false)
	assertStale(t, canvas, drifted.ID(), true)

	second := svc.TryClearStaleAll(canvas)
	assert.Empty(t, second)
	assertStale(t, canvas, drifted.ID(), true)
}

func TestStalenessService_Reconcile_FlipsBothDirections(t *testing.T) {
	fingerprints := NewFingerprintService(nil)
	svc := NewStalenessService(fingerprints)
	canvas := newTestCanvas(t)

	a := addCard(t, canvas, "question a", nil)
	setResponse(t, canvas, a.ID(), "answer a")
	b := addCard(t, canvas, "question b", []valueobjects.CardID{a.ID()})
	setResponse(t, canvas, b.ID(), "answer b")
	saveFingerprint(t, fingerprints, canvas, a.ID())
	saveFingerprint(t, fingerprints, canvas, b.ID())

	// Drift the root prompt without running any propagation: both
	// cards now disagree with their fingerprints but carry no flag
	_, err := canvas.PatchCard(a.ID(), patchPrompt("edited question a"))
	require.NoError(t, err)

	marked, cleared := svc.Reconcile(canvas)
	assert.Len(t, marked, 2)
	assert.Empty(t, cleared)
	assertStale(t, canvas, a.ID(), true)
	assertStale(t, canvas, b.ID(), true)

	// Reverting the prompt restores both contexts
	_, err = canvas.PatchCard(a.ID(), patchPrompt("question a"))
	require.NoError(t, err)

	marked, cleared = svc.Reconcile(canvas)
	assert.Empty(t, marked)
	assert.Len(t, cleared, 2)
	assertStale(t, canvas, a.ID(), false)
	assertStale(t, canvas, b.ID(), false)
}

func TestStalenessService_Reconcile_SkipsCardsWithoutFingerprint(t *testing.T) {
	svc := NewStalenessService(nil)
	canvas := newTestCanvas(t)

	unanswered := addCard(t, canvas, "no response yet", nil)
	answered := addCard(t, canvas, "answered but never validated", nil)
	setResponse(t, canvas, answered.ID(), "answer")

	marked, cleared := svc.Reconcile(canvas)
	assert.Empty(t, marked)
	assert.Empty(t, cleared)
	assertStale(t, canvas, unanswered.ID(), false)
	assertStale(t, canvas, answered.ID(), false)
}

// Helper functions

func assertStale(t *testing.T, canvas *aggregates.Canvas, id valueobjects.CardID, want bool) {
	t.Helper()
	card, err := canvas.GetCard(id)
	require.NoError(t, err)
	assert.Equal(t, want, card.IsStale())
}

func saveFingerprint(t *testing.T, svc *FingerprintService, canvas *aggregates.Canvas, id valueobjects.CardID) {
	t.Helper()
	fingerprint, err := svc.Fingerprint(canvas, id)
	require.NoError(t, err)
	card, err := canvas.GetCard(id)
	require.NoError(t, err)
	card.SaveContextFingerprint(fingerprint)
}

func patchPrompt(prompt string) aggregates.CardPatch {
	return aggregates.CardPatch{Prompt: &prompt}
}
