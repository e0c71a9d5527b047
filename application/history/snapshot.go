// Package history keeps a bounded undo/redo timeline of canvas states.
//
// Snapshots record user intent only. Generated material, staleness flags,
// fingerprints and timestamps are stripped: restoring a snapshot is an
// edit, and the staleness machinery decides afterwards what is still
// valid.
package history

import (
	"sort"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
)

// CardSnapshot is the undoable portion of one card.
type CardSnapshot struct {
	ID                 valueobjects.CardID
	X                  float64
	Y                  float64
	Prompt             string
	Quote              *QuoteSnapshot
	ParentIDs          []valueobjects.CardID
	ExcludedContextIDs []valueobjects.CardID
}

// QuoteSnapshot preserves the quote a card was spawned from.
type QuoteSnapshot struct {
	Excerpt        string
	SourceID       valueobjects.CardID
	SourceResponse string
}

// Snapshot is one committed canvas state. Cards are held in canonical
// id order so equal states compare equal regardless of capture order.
type Snapshot struct {
	Cards []CardSnapshot
}

// Diff names the cards that exist on one side of a restore but not the
// other. The index synchronizer consumes it to retire and revive
// documents.
type Diff struct {
	VanishedIDs    []valueobjects.CardID
	ResurrectedIDs []valueobjects.CardID
}

// Empty reports whether the restore changed card membership at all.
func (d Diff) Empty() bool {
	return len(d.VanishedIDs) == 0 && len(d.ResurrectedIDs) == 0
}

// SnapshotCanvas captures the undoable state of every card on the canvas.
func SnapshotCanvas(canvas *aggregates.Canvas) Snapshot {
	cards := canvas.Cards()
	snapshot := Snapshot{Cards: make([]CardSnapshot, 0, len(cards))}

	for _, card := range cards {
		cs := CardSnapshot{
			ID:                 card.ID(),
			X:                  card.Position().X(),
			Y:                  card.Position().Y(),
			Prompt:             card.Prompt(),
			ParentIDs:          append([]valueobjects.CardID(nil), card.ParentIDs()...),
			ExcludedContextIDs: append([]valueobjects.CardID(nil), card.ExcludedContextIDs()...),
		}
		if quote := card.Quote(); quote != nil {
			cs.Quote = &QuoteSnapshot{
				Excerpt:        quote.Excerpt,
				SourceID:       quote.SourceID,
				SourceResponse: quote.SourceResponse,
			}
		}
		snapshot.Cards = append(snapshot.Cards, cs)
	}

	sort.Slice(snapshot.Cards, func(i, j int) bool {
		return snapshot.Cards[i].ID.String() < snapshot.Cards[j].ID.String()
	})
	return snapshot
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Cards: make([]CardSnapshot, len(s.Cards))}
	for i, card := range s.Cards {
		clone := card
		clone.ParentIDs = append([]valueobjects.CardID(nil), card.ParentIDs...)
		clone.ExcludedContextIDs = append([]valueobjects.CardID(nil), card.ExcludedContextIDs...)
		if card.Quote != nil {
			quote := *card.Quote
			clone.Quote = &quote
		}
		out.Cards[i] = clone
	}
	return out
}

// Equal reports whether two snapshots describe the same canvas state.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.Cards) != len(other.Cards) {
		return false
	}
	for i := range s.Cards {
		if !s.Cards[i].Equal(other.Cards[i]) {
			return false
		}
	}
	return true
}

// Equal compares every undoable field of two card snapshots.
func (c CardSnapshot) Equal(other CardSnapshot) bool {
	if !c.ID.Equals(other.ID) || c.X != other.X || c.Y != other.Y || c.Prompt != other.Prompt {
		return false
	}
	if !equalIDSlices(c.ParentIDs, other.ParentIDs) {
		return false
	}
	if !equalIDSlices(c.ExcludedContextIDs, other.ExcludedContextIDs) {
		return false
	}
	if (c.Quote == nil) != (other.Quote == nil) {
		return false
	}
	if c.Quote != nil && *c.Quote != *other.Quote {
		return false
	}
	return true
}

func equalIDSlices(a, b []valueobjects.CardID) bool {
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

func diffSnapshots(from, to Snapshot) Diff {
	fromIDs := make(map[valueobjects.CardID]bool, len(from.Cards))
	for _, card := range from.Cards {
		fromIDs[card.ID] = true
	}
	toIDs := make(map[valueobjects.CardID]bool, len(to.Cards))
	for _, card := range to.Cards {
		toIDs[card.ID] = true
	}

	var diff Diff
	for _, card := range from.Cards {
		if !toIDs[card.ID] {
			diff.VanishedIDs = append(diff.VanishedIDs, card.ID)
		}
	}
	for _, card := range to.Cards {
		if !fromIDs[card.ID] {
			diff.ResurrectedIDs = append(diff.ResurrectedIDs, card.ID)
		}
	}
	return diff
}
