package api

// Card is the wire representation of a card.
type Card struct {
	ID                 string   `json:"id"`
	X                  float64  `json:"x"`
	Y                  float64  `json:"y"`
	Prompt             string   `json:"prompt"`
	Response           *string  `json:"response,omitempty"`
	Summary            *string  `json:"summary,omitempty"`
	ParentIDs          []string `json:"parentIds"`
	Quote              *Quote   `json:"quote,omitempty"`
	IsStale            bool     `json:"isStale"`
	PendingRegenerate  bool     `json:"pendingRegenerate"`
	ExcludedContextIDs []string `json:"excludedContextIds,omitempty"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
	Version            int      `json:"version"`
}

// Quote is the wire representation of a quote anchor.
type Quote struct {
	Excerpt        string `json:"excerpt"`
	SourceID       string `json:"sourceId"`
	SourceResponse string `json:"sourceResponse,omitempty"`
}

// Edge is the wire representation of a context edge.
type Edge struct {
	ID        string `json:"id"`
	SourceID  string `json:"sourceId"`
	TargetID  string `json:"targetId"`
	CreatedAt string `json:"createdAt"`
}

// CanvasView is the full canvas payload.
type CanvasView struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Cards     []Card   `json:"cards"`
	Edges     []Edge   `json:"edges"`
	StaleIDs  []string `json:"staleIds"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
	Version   int      `json:"version"`
}

// ConnectResponse reports the edge an edge-creation request resolved
// to, and whether it was newly created.
type ConnectResponse struct {
	Edge    Edge `json:"edge"`
	Created bool `json:"created"`
}

// ContextPreview shows the context the provider would receive for a
// card, without generating.
type ContextPreview struct {
	CardID    string            `json:"cardId"`
	Prompt    string            `json:"prompt"`
	Quote     *Quote            `json:"quote,omitempty"`
	Parents   []ParentContext   `json:"parents"`
	Ancestors []AncestorContext `json:"ancestors"`
}

// ParentContext is a direct parent's contribution to the preview.
type ParentContext struct {
	ID       string `json:"id"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// AncestorContext is a distant ancestor's condensed contribution.
type AncestorContext struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	Condensed string `json:"condensed"`
	Depth     int    `json:"depth"`
}

// RecheckResponse lists the cards a staleness recheck cleared.
type RecheckResponse struct {
	ClearedIDs []string `json:"clearedIds"`
	Count      int      `json:"count"`
}

// HistoryStatus is the undo/redo timeline position.
type HistoryStatus struct {
	CanUndo   bool `json:"canUndo"`
	CanRedo   bool `json:"canRedo"`
	UndoDepth int  `json:"undoDepth"`
	RedoDepth int  `json:"redoDepth"`
}

// RestoreResponse reports the outcome of an undo or redo request.
type RestoreResponse struct {
	Applied bool          `json:"applied"`
	History HistoryStatus `json:"history"`
}
