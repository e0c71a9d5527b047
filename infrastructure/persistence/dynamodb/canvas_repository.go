package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	pkgerrors "loom-backend/pkg/errors"
)

// listPartition is the constant GSI1 partition holding every canvas
// meta item, so listings are a single index query.
const listPartition = "CANVAS"

const metaSK = "META"

// CanvasRepository persists whole canvases in a single DynamoDB table.
// Each canvas occupies one partition: a META item plus one item per
// card and per edge. Save rewrites the partition and removes items the
// aggregate no longer contains.
type CanvasRepository struct {
	client    *dynamodb.Client
	tableName string
	indexName string
	logger    *zap.Logger
}

// Compile-time interface check
var _ ports.CanvasRepository = (*CanvasRepository)(nil)

// NewCanvasRepository creates a DynamoDB-backed canvas repository
func NewCanvasRepository(client *dynamodb.Client, tableName, indexName string, logger *zap.Logger) *CanvasRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CanvasRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

// canvasItem is the DynamoDB item shape for a canvas META row. GSI1
// keys place every canvas in the shared list partition ordered by
// update time.
type canvasItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	EntityType string `dynamodbav:"EntityType"`
	CanvasID   string `dynamodbav:"CanvasID"`
	Name       string `dynamodbav:"Name"`
	CardCount  int    `dynamodbav:"CardCount"`
	Version    int    `dynamodbav:"Version"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// cardItem is the DynamoDB item shape for a single card
type cardItem struct {
	PK          string     `dynamodbav:"PK"`
	SK          string     `dynamodbav:"SK"`
	EntityType  string     `dynamodbav:"EntityType"`
	CardID      string     `dynamodbav:"CardID"`
	Prompt      string     `dynamodbav:"Prompt"`
	Response    *string    `dynamodbav:"Response,omitempty"`
	Summary     *string    `dynamodbav:"Summary,omitempty"`
	Fingerprint *string    `dynamodbav:"Fingerprint,omitempty"`
	IsStale     bool       `dynamodbav:"IsStale"`
	PositionX   float64    `dynamodbav:"PositionX"`
	PositionY   float64    `dynamodbav:"PositionY"`
	ParentIDs   []string   `dynamodbav:"ParentIDs,omitempty"`
	ExcludedIDs []string   `dynamodbav:"ExcludedIDs,omitempty"`
	Quote       *quoteItem `dynamodbav:"Quote,omitempty"`
	Version     int        `dynamodbav:"Version"`
	CreatedAt   string     `dynamodbav:"CreatedAt"`
	UpdatedAt   string     `dynamodbav:"UpdatedAt"`
}

// quoteItem holds the frozen excerpt a quote card was anchored to
type quoteItem struct {
	Excerpt        string `dynamodbav:"Excerpt"`
	SourceID       string `dynamodbav:"SourceID"`
	SourceResponse string `dynamodbav:"SourceResponse"`
}

// edgeItem is the DynamoDB item shape for a single edge
type edgeItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	EdgeID     string `dynamodbav:"EdgeID"`
	SourceID   string `dynamodbav:"SourceID"`
	TargetID   string `dynamodbav:"TargetID"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

// Save writes the canvas meta, card, and edge items, then deletes items
// for cards and edges that no longer exist in the aggregate
func (r *CanvasRepository) Save(ctx context.Context, canvas *aggregates.Canvas) error {
	if canvas == nil {
		return pkgerrors.NewValidation("canvas cannot be nil")
	}

	pk := canvasPK(canvas.ID())
	cards := canvas.Cards()
	edges := canvas.Edges()

	items := make([]map[string]types.AttributeValue, 0, 1+len(cards)+len(edges))
	meta, err := marshalMeta(canvas)
	if err != nil {
		return err
	}
	items = append(items, meta)
	for _, card := range cards {
		item, marshalErr := marshalCard(pk, card)
		if marshalErr != nil {
			return marshalErr
		}
		items = append(items, item)
	}
	for _, edge := range edges {
		item, marshalErr := marshalEdge(pk, edge)
		if marshalErr != nil {
			return marshalErr
		}
		items = append(items, item)
	}

	currentSKs := make(map[string]struct{}, len(items))
	for _, item := range items {
		currentSKs[itemSK(item)] = struct{}{}
	}

	existingKeys, err := r.queryKeys(ctx, pk)
	if err != nil {
		return mapDynamoError("failed to load existing canvas items", err)
	}

	requests := make([]types.WriteRequest, 0, len(items)+len(existingKeys))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	removed := 0
	for _, key := range existingKeys {
		if _, kept := currentSKs[itemSK(key)]; kept {
			continue
		}
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
		removed++
	}

	if err := r.batchWrite(ctx, requests); err != nil {
		return mapDynamoError("failed to save canvas", err)
	}

	r.logger.Debug("Canvas saved",
		zap.String("canvasID", canvas.ID().String()),
		zap.Int("cards", len(cards)),
		zap.Int("edges", len(edges)),
		zap.Int("removedItems", removed),
	)

	return nil
}

// GetByID loads a fully populated canvas from its partition
func (r *CanvasRepository) GetByID(ctx context.Context, id valueobjects.CanvasID) (*aggregates.Canvas, error) {
	items, err := r.queryPartition(ctx, canvasPK(id))
	if err != nil {
		return nil, mapDynamoError("failed to load canvas", err)
	}
	if len(items) == 0 {
		return nil, pkgerrors.NewNotFound("canvas not found: " + id.String())
	}

	var meta map[string]types.AttributeValue
	cardItems := make([]map[string]types.AttributeValue, 0, len(items))
	edgeItems := make([]map[string]types.AttributeValue, 0, len(items))
	for _, item := range items {
		sk := itemSK(item)
		switch {
		case sk == metaSK:
			meta = item
		case strings.HasPrefix(sk, "CARD#"):
			cardItems = append(cardItems, item)
		case strings.HasPrefix(sk, "EDGE#"):
			edgeItems = append(edgeItems, item)
		}
	}
	if meta == nil {
		return nil, pkgerrors.NewNotFound("canvas not found: " + id.String())
	}

	canvas, err := parseMetaItem(id, meta)
	if err != nil {
		return nil, err
	}

	for _, item := range cardItems {
		card, parseErr := parseCardItem(item)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse card item: %w", parseErr)
		}
		if loadErr := canvas.LoadCard(card); loadErr != nil {
			return nil, loadErr
		}
	}
	for _, item := range edgeItems {
		edge, parseErr := parseEdgeItem(item)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse edge item: %w", parseErr)
		}
		if loadErr := canvas.LoadEdge(edge); loadErr != nil {
			return nil, loadErr
		}
	}

	return canvas, nil
}

// List returns canvas summaries ordered by most recently updated
func (r *CanvasRepository) List(ctx context.Context) ([]ports.CanvasSummary, error) {
	keyExpr := expression.Key("GSI1PK").Equal(expression.Value(listPartition))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build list expression: %w", err)
	}

	summaries := make([]ports.CanvasSummary, 0)

	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			IndexName:                 aws.String(r.indexName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ScanIndexForward:          aws.Bool(false),
			ExclusiveStartKey:         lastEvaluatedKey,
		}

		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, mapDynamoError("failed to list canvases", err)
		}

		for _, item := range result.Items {
			summary, parseErr := parseSummaryItem(item)
			if parseErr != nil {
				r.logger.Warn("Failed to parse canvas summary", zap.Error(parseErr))
				continue
			}
			summaries = append(summaries, summary)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	return summaries, nil
}

// Delete removes every item in the canvas partition
func (r *CanvasRepository) Delete(ctx context.Context, id valueobjects.CanvasID) error {
	keys, err := r.queryKeys(ctx, canvasPK(id))
	if err != nil {
		return mapDynamoError("failed to load canvas items for deletion", err)
	}
	if len(keys) == 0 {
		return pkgerrors.NewNotFound("canvas not found: " + id.String())
	}

	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}

	if err := r.batchWrite(ctx, requests); err != nil {
		return mapDynamoError("failed to delete canvas", err)
	}

	r.logger.Debug("Canvas deleted",
		zap.String("canvasID", id.String()),
		zap.Int("items", len(keys)),
	)

	return nil
}

// queryPartition loads all items under a partition key, following
// pagination
func (r *CanvasRepository) queryPartition(ctx context.Context, pk string) ([]map[string]types.AttributeValue, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(pk))
	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build partition expression: %w", err)
	}

	items := make([]map[string]types.AttributeValue, 0)

	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastEvaluatedKey,
		}

		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, result.Items...)

		if result.LastEvaluatedKey == nil {
			return items, nil
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}
}

// queryKeys loads only the primary keys of a partition's items
func (r *CanvasRepository) queryKeys(ctx context.Context, pk string) ([]map[string]types.AttributeValue, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(pk))
	projection := expression.NamesList(expression.Name("PK"), expression.Name("SK"))
	expr, err := expression.NewBuilder().
		WithKeyCondition(keyExpr).
		WithProjection(projection).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build key expression: %w", err)
	}

	keys := make([]map[string]types.AttributeValue, 0)

	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastEvaluatedKey,
		}

		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		keys = append(keys, result.Items...)

		if result.LastEvaluatedKey == nil {
			return keys, nil
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}
}

// batchWrite flushes write requests in chunks of 25 with retries for
// unprocessed items
func (r *CanvasRepository) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	if len(requests) == 0 {
		return nil
	}

	// DynamoDB limits batch writes to 25 items
	const batchSize = 25
	const maxRetries = 3

	for i := 0; i < len(requests); i += batchSize {
		end := i + batchSize
		if end > len(requests) {
			end = len(requests)
		}

		unprocessed := requests[i:end]
		for retry := 0; retry < maxRetries && len(unprocessed) > 0; retry++ {
			input := &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{
					r.tableName: unprocessed,
				},
			}

			result, err := r.client.BatchWriteItem(ctx, input)
			if err != nil {
				backoffDuration := time.Duration(retry*retry+1) * time.Millisecond * 100
				r.logger.Warn("Batch write failed, retrying",
					zap.Error(err),
					zap.Int("retry", retry+1),
					zap.Duration("backoff", backoffDuration),
				)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoffDuration):
				}
				continue
			}

			remaining, exists := result.UnprocessedItems[r.tableName]
			if !exists || len(remaining) == 0 {
				unprocessed = nil
				break
			}

			unprocessed = remaining
			backoffDuration := time.Duration(retry*retry+1) * time.Millisecond * 100
			r.logger.Debug("Found unprocessed items, retrying",
				zap.Int("unprocessedCount", len(remaining)),
				zap.Int("retry", retry+1),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffDuration):
			}
		}

		if len(unprocessed) > 0 {
			return fmt.Errorf("failed to process %d items after %d retries", len(unprocessed), maxRetries)
		}
	}

	return nil
}

// mapDynamoError converts DynamoDB service failures into domain error
// types. Query and BatchWriteItem report table-level problems as smithy
// API errors, so the error code is the only reliable discriminator.
func mapDynamoError(operation string, err error) error {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return pkgerrors.NewInternal(operation, err)
	}

	switch ae.ErrorCode() {
	case "ResourceNotFoundException":
		return pkgerrors.NewInternal(operation+": table or index not found", err)
	case "ConditionalCheckFailedException":
		return pkgerrors.NewConflict(operation + ": item modified by another writer")
	case "ProvisionedThroughputExceededException", "RequestLimitExceeded", "ThrottlingException":
		return pkgerrors.NewInternal(operation+": throughput exceeded", err)
	case "ValidationException":
		return pkgerrors.NewInternal(operation+": "+ae.ErrorMessage(), err)
	default:
		return pkgerrors.NewInternal(operation, err)
	}
}

func canvasPK(id valueobjects.CanvasID) string {
	return fmt.Sprintf("CANVAS#%s", id.String())
}

func itemSK(item map[string]types.AttributeValue) string {
	if v, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func marshalMeta(canvas *aggregates.Canvas) (map[string]types.AttributeValue, error) {
	updatedAt := canvas.UpdatedAt().UTC().Format(time.RFC3339)

	item := canvasItem{
		PK:         canvasPK(canvas.ID()),
		SK:         metaSK,
		GSI1PK:     listPartition,
		GSI1SK:     fmt.Sprintf("UPDATED#%s#%s", updatedAt, canvas.ID().String()),
		EntityType: "CANVAS",
		CanvasID:   canvas.ID().String(),
		Name:       canvas.Name(),
		CardCount:  len(canvas.Cards()),
		Version:    canvas.Version(),
		CreatedAt:  canvas.CreatedAt().UTC().Format(time.RFC3339),
		UpdatedAt:  updatedAt,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal canvas meta: %w", err)
	}
	return av, nil
}

func marshalCard(pk string, card *entities.Card) (map[string]types.AttributeValue, error) {
	item := cardItem{
		PK:          pk,
		SK:          fmt.Sprintf("CARD#%s", card.ID().String()),
		EntityType:  "CARD",
		CardID:      card.ID().String(),
		Prompt:      card.Prompt(),
		Response:    card.Response(),
		Summary:     card.Summary(),
		Fingerprint: card.ContextFingerprint(),
		IsStale:     card.IsStale(),
		PositionX:   card.Position().X(),
		PositionY:   card.Position().Y(),
		ParentIDs:   idStrings(card.ParentIDs()),
		ExcludedIDs: idStrings(card.ExcludedContextIDs()),
		Version:     card.Version(),
		CreatedAt:   card.CreatedAt().UTC().Format(time.RFC3339),
		UpdatedAt:   card.UpdatedAt().UTC().Format(time.RFC3339),
	}

	if quote := card.Quote(); quote != nil {
		item.Quote = &quoteItem{
			Excerpt:        quote.Excerpt,
			SourceID:       quote.SourceID.String(),
			SourceResponse: quote.SourceResponse,
		}
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card %s: %w", card.ID().String(), err)
	}
	return av, nil
}

func marshalEdge(pk string, edge *aggregates.Edge) (map[string]types.AttributeValue, error) {
	item := edgeItem{
		PK:         pk,
		SK:         fmt.Sprintf("EDGE#%s", edge.ID.String()),
		EntityType: "EDGE",
		EdgeID:     edge.ID.String(),
		SourceID:   edge.SourceID.String(),
		TargetID:   edge.TargetID.String(),
		CreatedAt:  edge.CreatedAt.UTC().Format(time.RFC3339),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal edge %s: %w", edge.ID.String(), err)
	}
	return av, nil
}

func idStrings(ids []valueobjects.CardID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseMetaItem(id valueobjects.CanvasID, av map[string]types.AttributeValue) (*aggregates.Canvas, error) {
	var item canvasItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal canvas meta: %w", err)
	}

	canvas, err := aggregates.ReconstructCanvas(id, item.Name, parseRFC3339(item.CreatedAt), parseRFC3339(item.UpdatedAt), item.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct canvas: %w", err)
	}
	return canvas, nil
}

func parseCardItem(av map[string]types.AttributeValue) (*entities.Card, error) {
	var item cardItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal card: %w", err)
	}

	cardID, err := valueobjects.NewCardIDFromString(item.CardID)
	if err != nil {
		return nil, fmt.Errorf("invalid card ID: %w", err)
	}

	position, err := valueobjects.NewPosition(item.PositionX, item.PositionY)
	if err != nil {
		return nil, fmt.Errorf("invalid position: %w", err)
	}

	var quote *entities.Quote
	if item.Quote != nil {
		sourceID, parseErr := valueobjects.NewCardIDFromString(item.Quote.SourceID)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid quote source ID: %w", parseErr)
		}
		quote = &entities.Quote{
			Excerpt:        item.Quote.Excerpt,
			SourceID:       sourceID,
			SourceResponse: item.Quote.SourceResponse,
		}
	}

	parentIDs, err := parseCardIDs(item.ParentIDs, "ParentIDs")
	if err != nil {
		return nil, err
	}
	excludedIDs, err := parseCardIDs(item.ExcludedIDs, "ExcludedIDs")
	if err != nil {
		return nil, err
	}

	card, err := entities.ReconstructCard(
		cardID,
		position,
		item.Prompt,
		item.Response,
		item.Summary,
		parentIDs,
		quote,
		item.IsStale,
		item.Fingerprint,
		excludedIDs,
		parseRFC3339(item.CreatedAt),
		parseRFC3339(item.UpdatedAt),
		item.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct card: %w", err)
	}
	return card, nil
}

func parseEdgeItem(av map[string]types.AttributeValue) (*aggregates.Edge, error) {
	var item edgeItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edge: %w", err)
	}

	edgeID, err := valueobjects.NewEdgeIDFromString(item.EdgeID)
	if err != nil {
		return nil, fmt.Errorf("invalid edge ID: %w", err)
	}
	sourceID, err := valueobjects.NewCardIDFromString(item.SourceID)
	if err != nil {
		return nil, fmt.Errorf("invalid edge source ID: %w", err)
	}
	targetID, err := valueobjects.NewCardIDFromString(item.TargetID)
	if err != nil {
		return nil, fmt.Errorf("invalid edge target ID: %w", err)
	}

	return &aggregates.Edge{
		ID:        edgeID,
		SourceID:  sourceID,
		TargetID:  targetID,
		CreatedAt: parseRFC3339(item.CreatedAt),
	}, nil
}

func parseSummaryItem(av map[string]types.AttributeValue) (ports.CanvasSummary, error) {
	var item canvasItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return ports.CanvasSummary{}, fmt.Errorf("failed to unmarshal canvas summary: %w", err)
	}

	id, err := valueobjects.NewCanvasIDFromString(item.CanvasID)
	if err != nil {
		return ports.CanvasSummary{}, fmt.Errorf("invalid canvas ID: %w", err)
	}

	return ports.CanvasSummary{
		ID:        id,
		Name:      item.Name,
		CardCount: item.CardCount,
		UpdatedAt: parseRFC3339(item.UpdatedAt),
	}, nil
}

func parseCardIDs(raw []string, attr string) ([]valueobjects.CardID, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	ids := make([]valueobjects.CardID, 0, len(raw))
	for _, s := range raw {
		id, err := valueobjects.NewCardIDFromString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry: %w", attr, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseRFC3339(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
