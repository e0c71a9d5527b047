package services

import (
	"testing"

	"loom-backend/domain/config"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintService_Deterministic(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	parent := addCard(t, canvas, "parent prompt", nil)
	setResponse(t, canvas, parent.ID(), "parent response")
	child := addCard(t, canvas, "child prompt", []valueobjects.CardID{parent.ID()})

	first, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFingerprintService_UnrelatedCardDoesNotAffect(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	parent := addCard(t, canvas, "parent", nil)
	setResponse(t, canvas, parent.ID(), "parent response")
	child := addCard(t, canvas, "child", []valueobjects.CardID{parent.ID()})
	unrelated := addCard(t, canvas, "unrelated", nil)
	setResponse(t, canvas, unrelated.ID(), "unrelated response")

	before, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)

	setResponse(t, canvas, unrelated.ID(), "completely different response")

	after, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFingerprintService_AncestorContentChangesFingerprint(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	grandparent := addCard(t, canvas, "grandparent", nil)
	setResponse(t, canvas, grandparent.ID(), "grandparent response")
	parent := addCard(t, canvas, "parent", []valueobjects.CardID{grandparent.ID()})
	setResponse(t, canvas, parent.ID(), "parent response")
	child := addCard(t, canvas, "child", []valueobjects.CardID{parent.ID()})

	before, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)

	setResponse(t, canvas, grandparent.ID(), "rewritten grandparent response")

	after, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestFingerprintService_ExactRevertRoundTrip(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	parent := addCard(t, canvas, "parent", nil)
	setResponse(t, canvas, parent.ID(), "original response")
	child := addCard(t, canvas, "child", []valueobjects.CardID{parent.ID()})

	saved, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)

	setResponse(t, canvas, parent.ID(), "edited response")
	changed, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	assert.NotEqual(t, saved, changed)

	setResponse(t, canvas, parent.ID(), "original response")
	reverted, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	assert.Equal(t, saved, reverted)
}

func TestFingerprintService_NormalizationIgnoresCosmeticEdits(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	parent := addCard(t, canvas, "parent prompt", nil)
	setResponse(t, canvas, parent.ID(), "The Answer")
	child := addCard(t, canvas, "child", []valueobjects.CardID{parent.ID()})

	before, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)

	setResponse(t, canvas, parent.ID(), "  the answer  ")

	after, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFingerprintService_ParentOrderMatters(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvasAB := newTestCanvas(t)
	canvasBA := newTestCanvas(t)

	buildMerge := func(canvas *aggregates.Canvas, firstResponse, secondResponse string) valueobjects.CardID {
		first := addCard(t, canvas, "first", nil)
		setResponse(t, canvas, first.ID(), firstResponse)
		second := addCard(t, canvas, "second", nil)
		setResponse(t, canvas, second.ID(), secondResponse)
		merge := addCard(t, canvas, "merge", []valueobjects.CardID{first.ID(), second.ID()})
		return merge.ID()
	}

	fpAB, err := svc.Fingerprint(canvasAB, buildMerge(canvasAB, "alpha", "beta"))
	require.NoError(t, err)
	fpBA, err := svc.Fingerprint(canvasBA, buildMerge(canvasBA, "beta", "alpha"))
	require.NoError(t, err)

	assert.NotEqual(t, fpAB, fpBA)
}

func TestFingerprintService_QuoteContributes(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	source := addCard(t, canvas, "source", nil)
	setResponse(t, canvas, source.ID(), "the quotable response")
	card := addCard(t, canvas, "question about the quote", nil)

	before, err := svc.Fingerprint(canvas, card.ID())
	require.NoError(t, err)

	quote := entities.Quote{
		Excerpt:        "quotable",
		SourceID:       source.ID(),
		SourceResponse: "the quotable response",
	}
	_, err = canvas.PatchCard(card.ID(), aggregates.CardPatch{Quote: &quote})
	require.NoError(t, err)

	after, err := svc.Fingerprint(canvas, card.ID())
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestFingerprintService_ExcludedParentSkipped(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	kept := addCard(t, canvas, "kept", nil)
	setResponse(t, canvas, kept.ID(), "kept response")
	muted := addCard(t, canvas, "muted", nil)
	setResponse(t, canvas, muted.ID(), "muted response")

	child := addCard(t, canvas, "child", []valueobjects.CardID{kept.ID(), muted.ID()})
	_, err := canvas.PatchCard(child.ID(), aggregates.CardPatch{
		ExcludedContextIDs: &[]valueobjects.CardID{muted.ID()},
	})
	require.NoError(t, err)

	before, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)

	// Editing the excluded parent must not move the fingerprint
	setResponse(t, canvas, muted.ID(), "rewritten muted response")
	after, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Editing the kept parent must
	setResponse(t, canvas, kept.ID(), "rewritten kept response")
	moved, err := svc.Fingerprint(canvas, child.ID())
	require.NoError(t, err)
	assert.NotEqual(t, after, moved)
}

func TestFingerprintService_DepthCap(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxAncestorDepth = 2
	svc := NewFingerprintService(NewContextBuilder(cfg))
	canvas := newTestCanvas(t)

	// Chain: deep -> mid -> near -> card; depth cap 2 keeps near and
	// mid in context but not deep
	deep := addCard(t, canvas, "deep", nil)
	setResponse(t, canvas, deep.ID(), "deep response")
	mid := addCard(t, canvas, "mid", []valueobjects.CardID{deep.ID()})
	setResponse(t, canvas, mid.ID(), "mid response")
	near := addCard(t, canvas, "near", []valueobjects.CardID{mid.ID()})
	setResponse(t, canvas, near.ID(), "near response")
	card := addCard(t, canvas, "card", []valueobjects.CardID{near.ID()})

	before, err := svc.Fingerprint(canvas, card.ID())
	require.NoError(t, err)

	setResponse(t, canvas, deep.ID(), "rewritten deep response")
	after, err := svc.Fingerprint(canvas, card.ID())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	setResponse(t, canvas, mid.ID(), "rewritten mid response")
	moved, err := svc.Fingerprint(canvas, card.ID())
	require.NoError(t, err)
	assert.NotEqual(t, after, moved)
}

func TestFingerprintService_SummaryPreferredOverResponse(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	grandparent := addCard(t, canvas, "grandparent", nil)
	setResponse(t, canvas, grandparent.ID(), "long grandparent response")
	parent := addCard(t, canvas, "parent", []valueobjects.CardID{grandparent.ID()})
	setResponse(t, canvas, parent.ID(), "parent response")
	card := addCard(t, canvas, "card", []valueobjects.CardID{parent.ID()})

	before, err := svc.Fingerprint(canvas, card.ID())
	require.NoError(t, err)

	// Adding a summary to the distant ancestor replaces its truncated
	// response in the composition
	summary := "condensed"
	_, err = canvas.PatchCard(grandparent.ID(), aggregates.CardPatch{Summary: &summary})
	require.NoError(t, err)

	after, err := svc.Fingerprint(canvas, card.ID())
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestFingerprintService_MissingCard(t *testing.T) {
	svc := NewFingerprintService(nil)
	canvas := newTestCanvas(t)

	_, err := svc.Fingerprint(canvas, valueobjects.NewCardID())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "card not found")
}

func TestContextBuilder_CycleFails(t *testing.T) {
	builder := NewContextBuilder(nil)
	canvas := newTestCanvas(t)

	a := addCard(t, canvas, "a", nil)
	b := addCard(t, canvas, "b", []valueobjects.CardID{a.ID()})
	_, _, err := canvas.AddEdge(b.ID(), a.ID())
	require.NoError(t, err)

	_, err = builder.Build(canvas, a.ID())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestContextBuilder_Shape(t *testing.T) {
	builder := NewContextBuilder(nil)
	canvas := newTestCanvas(t)

	grandparent := addCard(t, canvas, "gp prompt", nil)
	setResponse(t, canvas, grandparent.ID(), "gp response")
	parent := addCard(t, canvas, "p prompt", []valueobjects.CardID{grandparent.ID()})
	setResponse(t, canvas, parent.ID(), "p response")
	card := addCard(t, canvas, "c prompt", []valueobjects.CardID{parent.ID()})

	ctx, err := builder.Build(canvas, card.ID())
	require.NoError(t, err)

	assert.Equal(t, "c prompt", ctx.Prompt)
	require.Len(t, ctx.Parents, 1)
	assert.Equal(t, "p prompt", ctx.Parents[0].Prompt)
	assert.Equal(t, "p response", ctx.Parents[0].Response)
	require.Len(t, ctx.Ancestors, 1)
	assert.Equal(t, "gp prompt", ctx.Ancestors[0].Prompt)
	assert.Equal(t, "gp response", ctx.Ancestors[0].Condensed)
	assert.Equal(t, 2, ctx.Ancestors[0].Depth)
}

// Helper functions

func newTestCanvas(t *testing.T) *aggregates.Canvas {
	canvas, err := aggregates.NewCanvas(valueobjects.NewCanvasID(), "Test Canvas")
	require.NoError(t, err)
	return canvas
}

func addCard(t *testing.T, canvas *aggregates.Canvas, prompt string, parentIDs []valueobjects.CardID) *entities.Card {
	position, err := valueobjects.NewPosition(0, 0)
	require.NoError(t, err)
	card, err := canvas.AddCard(position, prompt, parentIDs)
	require.NoError(t, err)
	return card
}

func setResponse(t *testing.T, canvas *aggregates.Canvas, id valueobjects.CardID, response string) {
	_, err := canvas.PatchCard(id, aggregates.CardPatch{Response: &response})
	require.NoError(t, err)
}

// Benchmarks

func BenchmarkFingerprintService_Fingerprint(b *testing.B) {
	svc := NewFingerprintService(nil)
	canvas, _ := aggregates.NewCanvas(valueobjects.NewCanvasID(), "Bench Canvas")
	position, _ := valueobjects.NewPosition(0, 0)

	var parents []valueobjects.CardID
	for i := 0; i < 10; i++ {
		card, _ := canvas.AddCard(position, "prompt", parents)
		response := "response"
		_, _ = canvas.PatchCard(card.ID(), aggregates.CardPatch{Response: &response})
		parents = []valueobjects.CardID{card.ID()}
	}
	leaf, _ := canvas.AddCard(position, "leaf", parents)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = svc.Fingerprint(canvas, leaf.ID())
	}
}
