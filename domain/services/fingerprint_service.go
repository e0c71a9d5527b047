package services

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
)

// Separators for fingerprint composition. Control characters keep
// segment boundaries unambiguous no matter what the card text holds.
const (
	segmentSeparator = "\x1e"
	partSeparator    = "\x1f"
)

// Segment role tags, hashed alongside the content so that, say, a
// quote excerpt can never collide with an identically worded prompt.
const (
	tagPrompt   = "prompt"
	tagQuote    = "quote"
	tagParent   = "parent"
	tagAncestor = "ancestor"
)

// FingerprintService derives the deterministic context fingerprint a
// card's response is tied to. A pure function of reachable content:
// no timestamps, no randomness, so exactly restoring prior content
// always reproduces the prior fingerprint. Text is normalized before
// hashing so whitespace and case drift alone never invalidates a
// response. xxhash is deliberate: this is a fast change heuristic,
// not a security boundary.
type FingerprintService struct {
	builder *ContextBuilder
}

// NewFingerprintService creates a fingerprint service
func NewFingerprintService(builder *ContextBuilder) *FingerprintService {
	if builder == nil {
		builder = NewContextBuilder(nil)
	}
	return &FingerprintService{builder: builder}
}

// Fingerprint computes the current context fingerprint for a card
func (s *FingerprintService) Fingerprint(canvas *aggregates.Canvas, id valueobjects.CardID) (string, error) {
	ctx, err := s.builder.Build(canvas, id)
	if err != nil {
		return "", err
	}
	return s.hash(s.compose(ctx)), nil
}

// compose flattens the assembled context into the canonical hashable
// form: own prompt, quote seed, direct parents in order, then the
// condensed ancestors in walk order
func (s *FingerprintService) compose(ctx *CardContext) string {
	var segments []string

	segments = append(segments, joinParts(tagPrompt, normalize(ctx.Prompt)))

	if ctx.Quote != nil {
		segments = append(segments, joinParts(tagQuote,
			normalize(ctx.Quote.Excerpt),
			ctx.Quote.SourceID.String(),
		))
	}

	for _, parent := range ctx.Parents {
		segments = append(segments, joinParts(tagParent,
			normalize(parent.Response),
			normalize(parent.Prompt),
		))
	}

	for _, ancestor := range ctx.Ancestors {
		segments = append(segments, joinParts(tagAncestor,
			normalize(ancestor.Condensed),
			normalize(ancestor.Prompt),
		))
	}

	return strings.Join(segments, segmentSeparator)
}

func (s *FingerprintService) hash(payload string) string {
	return strconv.FormatUint(xxhash.Sum64String(payload), 16)
}

// normalize trims surrounding whitespace and lowercases, so cosmetic
// edits do not read as context drift
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func joinParts(parts ...string) string {
	return strings.Join(parts, partSeparator)
}
