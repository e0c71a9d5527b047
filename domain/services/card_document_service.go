package services

import (
	"strings"
	"unicode"

	"loom-backend/domain/core/entities"
)

const (
	titleRuneLimit   = 80
	previewRuneLimit = 160
)

// CardDocument is the searchable projection of a card
type CardDocument struct {
	ID      string
	Title   string
	Text    string
	Preview string
}

// CardDocumentService derives the searchable document for a card.
// This is a domain service that encapsulates text processing logic.
type CardDocumentService struct {
}

// NewCardDocumentService creates a new card document service
func NewCardDocumentService() *CardDocumentService {
	return &CardDocumentService{}
}

// BuildDocument projects a card into its search document. Title comes
// from the first non-empty prompt line, preview from the response
// head, and text is the full prompt plus response.
func (s *CardDocumentService) BuildDocument(card *entities.Card) CardDocument {
	response := ""
	if card.Response() != nil {
		response = *card.Response()
	}

	text := card.Prompt()
	if response != "" {
		text = text + "\n\n" + response
	}

	return CardDocument{
		ID:      card.ID().String(),
		Title:   s.deriveTitle(card),
		Text:    text,
		Preview: s.derivePreview(response),
	}
}

// deriveTitle picks the first non-empty line of the prompt, falling
// back to the quote excerpt for prompt-less quote cards
func (s *CardDocumentService) deriveTitle(card *entities.Card) string {
	for _, line := range strings.Split(card.Prompt(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return truncateRunes(line, titleRuneLimit)
		}
	}
	if quote := card.Quote(); quote != nil {
		excerpt := strings.TrimSpace(quote.Excerpt)
		if excerpt != "" {
			return truncateRunes(excerpt, titleRuneLimit)
		}
	}
	return "Untitled card"
}

// derivePreview takes the response head, cut at a word boundary
func (s *CardDocumentService) derivePreview(response string) string {
	preview := strings.TrimSpace(response)
	if preview == "" {
		return ""
	}

	preview = collapseWhitespace(preview)
	if len([]rune(preview)) <= previewRuneLimit {
		return preview
	}

	clamped := truncateRunes(preview, previewRuneLimit)
	if idx := strings.LastIndexFunc(clamped, unicode.IsSpace); idx > 0 {
		clamped = clamped[:idx]
	}
	return clamped + "…"
}

// collapseWhitespace flattens runs of whitespace into single spaces
func collapseWhitespace(text string) string {
	var builder strings.Builder
	builder.Grow(len(text))

	inSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && builder.Len() > 0 {
			builder.WriteRune(' ')
		}
		inSpace = false
		builder.WriteRune(r)
	}

	return builder.String()
}
