package vectorindex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"deskmemo/internal/logger"
)

// payloadIDKey holds the caller's id; Qdrant point ids must be UUIDs.
const payloadIDKey = "vector_id"

// pointNamespace derives stable point UUIDs from vector ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("deskmemo/activities"))

// PointID is the Qdrant point UUID for a vector id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// QdrantIndex implements Index on a cosine-distance Qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
}

// NewQdrantIndex connects to Qdrant. urlStr is the HTTP address
// (e.g. "http://localhost:6333"); the gRPC port is derived as HTTP port + 1.
func NewQdrantIndex(urlStr, collection string, embedder Embedder) (*QdrantIndex, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := parsed.Port(); p != "" {
		if httpPort, err := strconv.Atoi(p); err == nil {
			port = httpPort + 1
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantIndex{client: client, embedder: embedder, collection: collection}, nil
}

// EnsureCollection creates the collection when missing.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, vectorSize int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	logger.WithComponent("vectorindex").Infof("Creating collection %s (size %d)", q.collection, vectorSize)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Add(ctx context.Context, id, text string, meta map[string]any) error {
	vecs, err := q.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("failed to embed text: %w", err)
	}

	fields := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		fields[k] = v
	}
	fields[payloadIDKey] = id

	payload, err := qdrant.TryValueMap(fields)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(PointID(id)),
				Vectors: qdrant.NewVectors(vecs[0]...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	vecs, err := q.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vecs[0]...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}

	matches := make([]Match, 0, len(points))
	for _, p := range points {
		meta := convertPayloadToMap(p.Payload)
		id, _ := meta[payloadIDKey].(string)
		if id == "" {
			continue
		}
		delete(meta, payloadIDKey)
		matches = append(matches, Match{
			ID:       id,
			Distance: scoreToDistance(p.Score),
			Metadata: meta,
		})
	}
	return matches, nil
}

func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(qdrant.NewID(PointID(id))),
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// scoreToDistance maps Qdrant's cosine similarity in [-1, 1] onto cosine
// distance in [0, 2].
func scoreToDistance(score float32) float64 {
	d := 1 - float64(score)
	if d < 0 {
		return 0
	}
	if d > 2 {
		return 2
	}
	return d
}

func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
