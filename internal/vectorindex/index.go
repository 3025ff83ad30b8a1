package vectorindex

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=mocks/mock_index.go -package=mocks deskmemo/internal/vectorindex Index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Match is one nearest-neighbor hit. Distance is cosine distance in [0, 2].
type Match struct {
	ID       string
	Distance float64
	Metadata map[string]any
}

// Index stores text embeddings for semantic lookup.
type Index interface {
	Add(ctx context.Context, id, text string, meta map[string]any) error
	Query(ctx context.Context, text string, k int) ([]Match, error)
	Delete(ctx context.Context, id string) error
}

const vectorIDPrefix = "activity_"

// VectorID is the index id of the Activity created from imageID.
func VectorID(imageID int64) string {
	return vectorIDPrefix + strconv.FormatInt(imageID, 10)
}

// ParseVectorID recovers the image id from a VectorID.
func ParseVectorID(id string) (int64, error) {
	rest, ok := strings.CutPrefix(id, vectorIDPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid vector id %q", id)
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid vector id %q: %w", id, err)
	}
	return n, nil
}
