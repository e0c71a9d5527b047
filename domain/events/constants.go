package events

// Event sources - These define where events originate from
const (
	// SourceBackend is the primary backend service source
	SourceBackend = "loom.backend"

	// SourceRegeneration is the batch regeneration worker source
	SourceRegeneration = "loom.regeneration"

	// SourceIndexSync is the search index synchronizer source
	SourceIndexSync = "loom.indexSync"
)

// Event types - These define the types of events in the system
const (
	// Canvas events
	TypeCanvasCreated  = "canvas.created"
	TypeCanvasDeleted  = "canvas.deleted"
	TypeCanvasRestored = "canvas.restored"

	// Card events
	TypeCardCreated = "card.created"
	TypeCardUpdated = "card.updated"
	TypeCardDeleted = "card.deleted"

	// Edge events
	TypeEdgeAdded   = "edge.added"
	TypeEdgeRemoved = "edge.removed"

	// Regeneration events
	TypeRegenerationStarted    = "regeneration.started"
	TypeRegenerationCompleted  = "regeneration.completed"
	TypeRegenerationCancelled  = "regeneration.cancelled"
	TypeCardRegenerated        = "regeneration.card.completed"
	TypeCardRegenerationFailed = "regeneration.card.failed"
)

// Event detail keys - Common keys used in event details
const (
	DetailCanvasID  = "canvasId"
	DetailCardID    = "cardId"
	DetailEdgeID    = "edgeId"
	DetailLevel     = "level"
	DetailCardCount = "cardCount"
)
