package aggregates

import (
	"sort"
	"time"

	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"

	pkgerrors "loom-backend/pkg/errors"
)

// Canvas is the aggregate root for one conversation board. It owns the
// canonical card and edge collections and every structural mutation
// goes through it, so the graph invariants hold even when a caller
// aborts mid-sequence: each operation validates first, then mutates.
//
// Edges are authoritative. Each card's parentIDs slice is a cache the
// canvas recomputes whenever the card's incoming edges change.
type Canvas struct {
	id   valueobjects.CanvasID
	name string

	cards map[valueobjects.CardID]*entities.Card
	edges map[valueobjects.EdgeID]*Edge

	// Derived indexes: pair key -> edge id for duplicate detection,
	// and per-card incident edge lists in insertion order.
	edgeByPair map[string]valueobjects.EdgeID
	outgoing   map[valueobjects.CardID][]valueobjects.EdgeID
	incoming   map[valueobjects.CardID][]valueobjects.EdgeID

	createdAt time.Time
	updatedAt time.Time
	version   int
	events    []events.DomainEvent
}

// Edge is a directed context link: the source card's content feeds the
// target card's generation context. Duplicate (source, target) pairs
// are forbidden; multiple incoming edges form a multi-parent merge.
type Edge struct {
	ID        valueobjects.EdgeID
	SourceID  valueobjects.CardID
	TargetID  valueobjects.CardID
	CreatedAt time.Time
}

// CardPatch is a partial update for PatchCard. Nil pointer fields are
// left untouched; the Clear flags null out the nullable fields.
type CardPatch struct {
	Position           *valueobjects.Position
	Prompt             *string
	Response           *string
	ClearResponse      bool
	Summary            *string
	ClearSummary       bool
	Quote              *entities.Quote
	ClearQuote         bool
	ExcludedContextIDs *[]valueobjects.CardID
}

// PatchResult reports which field groups a PatchCard call actually
// changed, so the caller knows which staleness triggers to run.
type PatchResult struct {
	PositionChanged   bool
	PromptChanged     bool
	ResponseChanged   bool
	SummaryChanged    bool
	QuoteChanged      bool
	ExclusionsChanged bool
}

// Changed reports whether anything changed at all
func (r PatchResult) Changed() bool {
	return r.PositionChanged || r.PromptChanged || r.ResponseChanged ||
		r.SummaryChanged || r.QuoteChanged || r.ExclusionsChanged
}

// AffectsOwnContext reports whether the card's own fingerprint inputs
// changed (prompt, quote, exclusion list)
func (r PatchResult) AffectsOwnContext() bool {
	return r.PromptChanged || r.QuoteChanged || r.ExclusionsChanged
}

// AffectsDescendantContext reports whether descendants' fingerprint
// inputs changed (anything textual or structural about this card)
func (r PatchResult) AffectsDescendantContext() bool {
	return r.PromptChanged || r.ResponseChanged || r.SummaryChanged ||
		r.QuoteChanged || r.ExclusionsChanged
}

// RemovedCard describes the outcome of RemoveCard: the removed card
// itself (a deep copy, usable as a graveyard entry), the severed
// edges, and the direct children whose parent sets were recomputed.
type RemovedCard struct {
	Card         *entities.Card
	RemovedEdges []*Edge
	ChildIDs     []valueobjects.CardID
}

// NewCanvas creates an empty canvas aggregate
func NewCanvas(id valueobjects.CanvasID, name string) (*Canvas, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidation("canvas ID is required")
	}
	if name == "" {
		name = "Untitled Canvas"
	}

	now := time.Now()
	canvas := &Canvas{
		id:         id,
		name:       name,
		cards:      make(map[valueobjects.CardID]*entities.Card),
		edges:      make(map[valueobjects.EdgeID]*Edge),
		edgeByPair: make(map[string]valueobjects.EdgeID),
		outgoing:   make(map[valueobjects.CardID][]valueobjects.EdgeID),
		incoming:   make(map[valueobjects.CardID][]valueobjects.EdgeID),
		createdAt:  now,
		updatedAt:  now,
		version:    1,
		events:     []events.DomainEvent{},
	}

	canvas.addEvent(events.NewCanvasCreated(id, name, now))

	return canvas, nil
}

// ReconstructCanvas recreates a canvas shell from stored data. Cards
// and edges are loaded afterwards with LoadCard/LoadEdge.
func ReconstructCanvas(id valueobjects.CanvasID, name string, createdAt, updatedAt time.Time, version int) (*Canvas, error) {
	if id.IsZero() {
		return nil, pkgerrors.NewValidation("canvas ID is required")
	}

	return &Canvas{
		id:         id,
		name:       name,
		cards:      make(map[valueobjects.CardID]*entities.Card),
		edges:      make(map[valueobjects.EdgeID]*Edge),
		edgeByPair: make(map[string]valueobjects.EdgeID),
		outgoing:   make(map[valueobjects.CardID][]valueobjects.EdgeID),
		incoming:   make(map[valueobjects.CardID][]valueobjects.EdgeID),
		createdAt:  createdAt,
		updatedAt:  updatedAt,
		version:    version,
		events:     []events.DomainEvent{},
	}, nil
}

// ID returns the canvas identifier
func (c *Canvas) ID() valueobjects.CanvasID {
	return c.id
}

// Name returns the canvas name
func (c *Canvas) Name() string {
	return c.name
}

// Rename changes the canvas name
func (c *Canvas) Rename(name string) error {
	if name == "" {
		return pkgerrors.NewValidation("canvas name cannot be empty")
	}
	if name == c.name {
		return nil
	}
	c.name = name
	c.touch()
	return nil
}

// Version returns the aggregate version
func (c *Canvas) Version() int {
	return c.version
}

// CreatedAt returns when the canvas was created
func (c *Canvas) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the canvas was last updated
func (c *Canvas) UpdatedAt() time.Time {
	return c.updatedAt
}

// CardCount returns the number of cards
func (c *Canvas) CardCount() int {
	return len(c.cards)
}

// EdgeCount returns the number of edges
func (c *Canvas) EdgeCount() int {
	return len(c.edges)
}

// AddCard creates a card at the given position with ordered context
// parents: every parent gets an edge parent -> card. All parents are
// validated before anything mutates.
func (c *Canvas) AddCard(position valueobjects.Position, prompt string, parentIDs []valueobjects.CardID) (*entities.Card, error) {
	seen := make(map[valueobjects.CardID]bool, len(parentIDs))
	for _, parentID := range parentIDs {
		if _, exists := c.cards[parentID]; !exists {
			return nil, pkgerrors.NewNotFound("parent card not found: " + parentID.String())
		}
		if seen[parentID] {
			return nil, pkgerrors.NewValidation("duplicate parent id: " + parentID.String())
		}
		seen[parentID] = true
	}

	card := entities.NewCard(position, prompt)
	c.cards[card.ID()] = card

	for _, parentID := range parentIDs {
		c.insertEdge(valueobjects.NewEdgeID(), parentID, card.ID(), time.Now())
	}
	c.recomputeParents(card.ID())

	c.touch()
	c.addEvent(events.NewCardCreated(c.id, card.ID(), parentIDs, c.updatedAt))

	return card, nil
}

// LoadCard inserts a card during reconstruction from storage or a
// history restore. No events, no duplicate creation, trusted input.
func (c *Canvas) LoadCard(card *entities.Card) error {
	if card == nil {
		return pkgerrors.NewValidation("card cannot be nil")
	}
	c.cards[card.ID()] = card
	return nil
}

// RemoveCard deletes a card and every incident edge. Each direct
// child's parent cache is recomputed from its remaining incoming
// edges, and the child is flagged stale if it carries a response;
// the caller propagates staleness further down from those children.
func (c *Canvas) RemoveCard(id valueobjects.CardID) (*RemovedCard, error) {
	card, exists := c.cards[id]
	if !exists {
		return nil, pkgerrors.NewNotFound("card not found: " + id.String())
	}

	removed := &RemovedCard{Card: card.Clone()}

	childSeen := make(map[valueobjects.CardID]bool)
	for _, edgeID := range c.outgoing[id] {
		edge := c.edges[edgeID]
		if !childSeen[edge.TargetID] {
			childSeen[edge.TargetID] = true
			removed.ChildIDs = append(removed.ChildIDs, edge.TargetID)
		}
	}

	incident := append([]valueobjects.EdgeID{}, c.outgoing[id]...)
	incident = append(incident, c.incoming[id]...)
	for _, edgeID := range incident {
		if edge, ok := c.edges[edgeID]; ok {
			removed.RemovedEdges = append(removed.RemovedEdges, edge)
			c.deleteEdge(edge)
		}
	}

	delete(c.cards, id)
	delete(c.outgoing, id)
	delete(c.incoming, id)

	for _, childID := range removed.ChildIDs {
		c.recomputeParents(childID)
		if child, ok := c.cards[childID]; ok {
			child.MarkStale()
		}
	}

	c.touch()
	c.addEvent(events.NewCardDeleted(c.id, id, c.updatedAt))

	return removed, nil
}

// PatchCard applies a partial update and reports what changed.
// Patching an unknown id returns a not found error and mutates
// nothing.
func (c *Canvas) PatchCard(id valueobjects.CardID, patch CardPatch) (PatchResult, error) {
	card, exists := c.cards[id]
	if !exists {
		return PatchResult{}, pkgerrors.NewNotFound("card not found: " + id.String())
	}

	var result PatchResult

	if patch.Position != nil {
		result.PositionChanged = card.MoveTo(*patch.Position)
	}
	if patch.Prompt != nil {
		result.PromptChanged = card.SetPrompt(*patch.Prompt)
	}
	if patch.ClearResponse {
		result.ResponseChanged = card.ClearResponse()
	} else if patch.Response != nil {
		result.ResponseChanged = card.SetResponse(*patch.Response)
	}
	if patch.ClearSummary {
		result.SummaryChanged = card.ClearSummary()
	} else if patch.Summary != nil {
		result.SummaryChanged = card.SetSummary(*patch.Summary)
	}
	if patch.ClearQuote {
		result.QuoteChanged = card.ClearQuote()
	} else if patch.Quote != nil {
		result.QuoteChanged = card.SetQuote(*patch.Quote)
	}
	if patch.ExcludedContextIDs != nil {
		result.ExclusionsChanged = card.SetExcludedContextIDs(*patch.ExcludedContextIDs)
	}

	if result.Changed() {
		c.touch()
		c.addEvent(events.NewCardUpdated(c.id, id, c.updatedAt))
	}

	return result, nil
}

// AddEdge creates a directed context edge. Duplicate pairs are
// idempotently ignored (the existing edge is returned with created ==
// false). A target that already carries a response is flagged stale;
// the caller propagates to its descendants.
func (c *Canvas) AddEdge(sourceID, targetID valueobjects.CardID) (*Edge, bool, error) {
	if _, exists := c.cards[sourceID]; !exists {
		return nil, false, pkgerrors.NewNotFound("source card not found: " + sourceID.String())
	}
	target, exists := c.cards[targetID]
	if !exists {
		return nil, false, pkgerrors.NewNotFound("target card not found: " + targetID.String())
	}
	if sourceID.Equals(targetID) {
		return nil, false, pkgerrors.NewValidation("cannot connect card to itself")
	}

	if edgeID, exists := c.edgeByPair[pairKey(sourceID, targetID)]; exists {
		return c.edges[edgeID], false, nil
	}

	edge := c.insertEdge(valueobjects.NewEdgeID(), sourceID, targetID, time.Now())
	c.recomputeParents(targetID)
	target.MarkStale()

	c.touch()
	c.addEvent(events.NewEdgeAdded(c.id, edge.ID, sourceID, targetID, c.updatedAt))

	return edge, true, nil
}

// Connect is the user-action alias for AddEdge
func (c *Canvas) Connect(sourceID, targetID valueobjects.CardID) (*Edge, bool, error) {
	return c.AddEdge(sourceID, targetID)
}

// LoadEdge inserts an edge during reconstruction. Both endpoints must
// already be loaded; duplicates are skipped. No events, no staleness.
func (c *Canvas) LoadEdge(edge *Edge) error {
	if edge == nil {
		return pkgerrors.NewValidation("edge cannot be nil")
	}
	if _, exists := c.cards[edge.SourceID]; !exists {
		return pkgerrors.NewValidation("edge source not loaded: " + edge.SourceID.String())
	}
	if _, exists := c.cards[edge.TargetID]; !exists {
		return pkgerrors.NewValidation("edge target not loaded: " + edge.TargetID.String())
	}
	if _, exists := c.edgeByPair[pairKey(edge.SourceID, edge.TargetID)]; exists {
		return nil
	}

	c.insertEdge(edge.ID, edge.SourceID, edge.TargetID, edge.CreatedAt)
	c.recomputeParents(edge.TargetID)
	return nil
}

// RemoveEdge deletes an edge by id, recomputes the target's parent
// cache and flags a responding target stale; the caller propagates to
// its descendants.
func (c *Canvas) RemoveEdge(id valueobjects.EdgeID) (*Edge, error) {
	edge, exists := c.edges[id]
	if !exists {
		return nil, pkgerrors.NewNotFound("edge not found: " + id.String())
	}

	c.deleteEdge(edge)
	c.recomputeParents(edge.TargetID)
	if target, ok := c.cards[edge.TargetID]; ok {
		target.MarkStale()
	}

	c.touch()
	c.addEvent(events.NewEdgeRemoved(c.id, edge.ID, edge.SourceID, edge.TargetID, c.updatedAt))

	return edge, nil
}

// GetCard retrieves a card by ID
func (c *Canvas) GetCard(id valueobjects.CardID) (*entities.Card, error) {
	card, exists := c.cards[id]
	if !exists {
		return nil, pkgerrors.NewNotFound("card not found: " + id.String())
	}
	return card, nil
}

// HasCard checks if a card exists without error
func (c *Canvas) HasCard(id valueobjects.CardID) bool {
	_, exists := c.cards[id]
	return exists
}

// Cards returns all cards ordered by creation time then id, so reads
// are deterministic
func (c *Canvas) Cards() []*entities.Card {
	cards := make([]*entities.Card, 0, len(c.cards))
	for _, card := range c.cards {
		cards = append(cards, card)
	}
	sort.Slice(cards, func(i, j int) bool {
		if !cards[i].CreatedAt().Equal(cards[j].CreatedAt()) {
			return cards[i].CreatedAt().Before(cards[j].CreatedAt())
		}
		return cards[i].ID().String() < cards[j].ID().String()
	})
	return cards
}

// CardIDs returns every card id, sorted for determinism
func (c *Canvas) CardIDs() []valueobjects.CardID {
	ids := make([]valueobjects.CardID, 0, len(c.cards))
	for id := range c.cards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Edges returns all edges ordered by creation time then id
func (c *Canvas) Edges() []*Edge {
	edges := make([]*Edge, 0, len(c.edges))
	for _, edge := range c.edges {
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.Before(edges[j].CreatedAt)
		}
		return edges[i].ID.String() < edges[j].ID.String()
	})
	return edges
}

// GetEdge retrieves an edge by id
func (c *Canvas) GetEdge(id valueobjects.EdgeID) (*Edge, error) {
	edge, exists := c.edges[id]
	if !exists {
		return nil, pkgerrors.NewNotFound("edge not found: " + id.String())
	}
	return edge, nil
}

// ChildIDs returns the direct children of a card in edge insertion
// order, without duplicates
func (c *Canvas) ChildIDs(id valueobjects.CardID) []valueobjects.CardID {
	var children []valueobjects.CardID
	seen := make(map[valueobjects.CardID]bool)
	for _, edgeID := range c.outgoing[id] {
		edge := c.edges[edgeID]
		if !seen[edge.TargetID] {
			seen[edge.TargetID] = true
			children = append(children, edge.TargetID)
		}
	}
	return children
}

// StaleCardIDs returns the ids of all stale cards, sorted. Only cards
// with responses can be stale.
func (c *Canvas) StaleCardIDs() []valueobjects.CardID {
	var ids []valueobjects.CardID
	for id, card := range c.cards {
		if card.IsStale() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// StaleCount returns how many cards are currently stale
func (c *Canvas) StaleCount() int {
	count := 0
	for _, card := range c.cards {
		if card.IsStale() {
			count++
		}
	}
	return count
}

// Validate ensures aggregate invariants: no dangling edge endpoints,
// indexes consistent with the edge map, parent caches matching the
// authoritative incoming edges.
func (c *Canvas) Validate() error {
	for _, edge := range c.edges {
		if _, exists := c.cards[edge.SourceID]; !exists {
			return pkgerrors.NewInternal("edge references missing source card: "+edge.SourceID.String(), nil)
		}
		if _, exists := c.cards[edge.TargetID]; !exists {
			return pkgerrors.NewInternal("edge references missing target card: "+edge.TargetID.String(), nil)
		}
	}
	if len(c.edgeByPair) != len(c.edges) {
		return pkgerrors.NewInternal("edge pair index out of sync", nil)
	}
	for id, card := range c.cards {
		expected := c.parentsFromEdges(id)
		actual := card.ParentIDs()
		if len(expected) != len(actual) {
			return pkgerrors.NewInternal("parent cache out of sync for card "+id.String(), nil)
		}
		for i := range expected {
			if !expected[i].Equals(actual[i]) {
				return pkgerrors.NewInternal("parent cache out of sync for card "+id.String(), nil)
			}
		}
	}
	return nil
}

// GetUncommittedEvents returns all uncommitted domain events
func (c *Canvas) GetUncommittedEvents() []events.DomainEvent {
	out := make([]events.DomainEvent, len(c.events))
	copy(out, c.events)
	return out
}

// MarkEventsAsCommitted clears the uncommitted events
func (c *Canvas) MarkEventsAsCommitted() {
	c.events = []events.DomainEvent{}
}

// Private helper methods

func (c *Canvas) addEvent(event events.DomainEvent) {
	c.events = append(c.events, event)
}

func (c *Canvas) touch() {
	c.updatedAt = time.Now()
	c.version++
}

func pairKey(sourceID, targetID valueobjects.CardID) string {
	return sourceID.String() + "->" + targetID.String()
}

// insertEdge wires an edge into the maps and indexes. Callers validate
// endpoints first.
func (c *Canvas) insertEdge(id valueobjects.EdgeID, sourceID, targetID valueobjects.CardID, createdAt time.Time) *Edge {
	edge := &Edge{
		ID:        id,
		SourceID:  sourceID,
		TargetID:  targetID,
		CreatedAt: createdAt,
	}
	c.edges[id] = edge
	c.edgeByPair[pairKey(sourceID, targetID)] = id
	c.outgoing[sourceID] = append(c.outgoing[sourceID], id)
	c.incoming[targetID] = append(c.incoming[targetID], id)
	return edge
}

// deleteEdge unwires an edge from the maps and indexes
func (c *Canvas) deleteEdge(edge *Edge) {
	delete(c.edges, edge.ID)
	delete(c.edgeByPair, pairKey(edge.SourceID, edge.TargetID))
	c.outgoing[edge.SourceID] = removeEdgeID(c.outgoing[edge.SourceID], edge.ID)
	c.incoming[edge.TargetID] = removeEdgeID(c.incoming[edge.TargetID], edge.ID)
}

func removeEdgeID(ids []valueobjects.EdgeID, id valueobjects.EdgeID) []valueobjects.EdgeID {
	out := ids[:0]
	for _, candidate := range ids {
		if !candidate.Equals(id) {
			out = append(out, candidate)
		}
	}
	return out
}

// parentsFromEdges derives the ordered parent list from incoming edges
func (c *Canvas) parentsFromEdges(id valueobjects.CardID) []valueobjects.CardID {
	parents := make([]valueobjects.CardID, 0, len(c.incoming[id]))
	for _, edgeID := range c.incoming[id] {
		parents = append(parents, c.edges[edgeID].SourceID)
	}
	return parents
}

// recomputeParents refreshes a card's parent cache from the
// authoritative incoming edges
func (c *Canvas) recomputeParents(id valueobjects.CardID) {
	if card, ok := c.cards[id]; ok {
		card.SetParentIDs(c.parentsFromEdges(id))
	}
}
