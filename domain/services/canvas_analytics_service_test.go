package services

import (
	"testing"

	"loom-backend/domain/core/valueobjects"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanvasAnalyticsService_Stats(t *testing.T) {
	svc := NewCanvasAnalyticsService()
	canvas := newTestCanvas(t)

	root := addCard(t, canvas, "root", nil)
	setResponse(t, canvas, root.ID(), "root response")
	mid := addCard(t, canvas, "mid", []valueobjects.CardID{root.ID()})
	setResponse(t, canvas, mid.ID(), "mid response")
	leaf := addCard(t, canvas, "leaf", []valueobjects.CardID{mid.ID()})
	addCard(t, canvas, "island", nil)

	card, err := canvas.GetCard(mid.ID())
	require.NoError(t, err)
	require.True(t, card.MarkStale())

	stats, err := svc.Stats(canvas)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.CardCount)
	assert.Equal(t, 2, stats.EdgeCount)
	assert.Equal(t, 1, stats.StaleCount)
	assert.Equal(t, 2, stats.RootCount)
	assert.Equal(t, 2, stats.LeafCount)
	assert.Equal(t, 2, stats.AnsweredCount)
	assert.Equal(t, 2, stats.MaxDepth)

	_ = leaf
}

func TestCanvasAnalyticsService_Stats_NilCanvas(t *testing.T) {
	svc := NewCanvasAnalyticsService()

	stats, err := svc.Stats(nil)
	assert.Error(t, err)
	assert.Nil(t, stats)
}

func TestCanvasAnalyticsService_AncestorIDs(t *testing.T) {
	svc := NewCanvasAnalyticsService()
	canvas := newTestCanvas(t)

	gp := addCard(t, canvas, "gp", nil)
	p := addCard(t, canvas, "p", []valueobjects.CardID{gp.ID()})
	c := addCard(t, canvas, "c", []valueobjects.CardID{p.ID()})

	tests := []struct {
		name     string
		maxDepth int
		want     int
	}{
		{name: "depth one stops at parent", maxDepth: 1, want: 1},
		{name: "depth two reaches grandparent", maxDepth: 2, want: 2},
		{name: "zero depth yields nothing", maxDepth: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ancestors, err := svc.AncestorIDs(canvas, c.ID(), tt.maxDepth)
			require.NoError(t, err)
			assert.Len(t, ancestors, tt.want)
		})
	}

	_, err := svc.AncestorIDs(canvas, valueobjects.NewCardID(), 3)
	assert.Error(t, err)
}

func TestCanvasAnalyticsService_DescendantIDs(t *testing.T) {
	svc := NewCanvasAnalyticsService()
	canvas := newTestCanvas(t)

	root := addCard(t, canvas, "root", nil)
	a := addCard(t, canvas, "a", []valueobjects.CardID{root.ID()})
	b := addCard(t, canvas, "b", []valueobjects.CardID{root.ID()})
	shared := addCard(t, canvas, "shared", []valueobjects.CardID{a.ID(), b.ID()})

	descendants, err := svc.DescendantIDs(canvas, root.ID())
	require.NoError(t, err)
	assert.Len(t, descendants, 3)

	_ = shared
}

func TestCanvasAnalyticsService_ComponentCount(t *testing.T) {
	svc := NewCanvasAnalyticsService()
	canvas := newTestCanvas(t)

	assert.Equal(t, 0, svc.ComponentCount(canvas))

	a := addCard(t, canvas, "a", nil)
	addCard(t, canvas, "b", []valueobjects.CardID{a.ID()})
	assert.Equal(t, 1, svc.ComponentCount(canvas))

	addCard(t, canvas, "island", nil)
	assert.Equal(t, 2, svc.ComponentCount(canvas))
}
