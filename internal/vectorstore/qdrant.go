package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"secondbrain/internal/contextutil"
)

const scrollPageSize = 256

// QdrantStore keeps chunk vectors in a managed Qdrant collection. Chunk
// fields travel as point payload so search hits and staleness diffs need no
// secondary lookup.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore creates a Qdrant-backed vector store. urlStr is the HTTP
// endpoint ("http://host:port"); the gRPC port is derived from it.
func NewQdrantStore(urlStr, collection string) (*QdrantStore, error) {
	host, port, err := qdrantAddr(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Qdrant client: %w", err)
	}

	return &QdrantStore{client: client, collection: collection}, nil
}

// qdrantAddr derives the gRPC host and port from the HTTP endpoint URL.
// gRPC listens one port above HTTP by convention.
func qdrantAddr(urlStr string) (string, int, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port := 6334
	if parsedURL.Port() != "" {
		if httpPort, err := strconv.Atoi(parsedURL.Port()); err == nil {
			port = httpPort + 1
		}
	}
	return host, port, nil
}

func (s *QdrantStore) Name() string { return "qdrant" }

// EnsureCollection creates the collection if missing and validates the
// vector size if it already exists.
func (s *QdrantStore) EnsureCollection(ctx context.Context, vectorSize int) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}

	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection: %w", err)
		}
		logger.InfoContext(ctx, "collection created", "collection", s.collection, "vector_size", vectorSize)
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("getting collection info: %w", err)
	}
	config := info.Config
	if config == nil || config.Params == nil {
		return fmt.Errorf("collection config is invalid")
	}
	vectorsConfig := config.Params.GetVectorsConfig()
	if vectorsConfig == nil {
		return fmt.Errorf("collection vectors config is invalid")
	}
	params := vectorsConfig.GetParams()
	if params == nil {
		return fmt.Errorf("collection vector params are invalid")
	}
	if int(params.Size) != vectorSize {
		return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, params.Size)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(chunk.ID),
			Vectors: qdrant.NewVectors(chunk.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"note_id":         chunk.NoteID,
				"user_id":         chunk.UserID,
				"content":         chunk.Content,
				"chunk_index":     chunk.ChunkIndex,
				"note_updated_at": chunk.NoteUpdatedAt.UTC().Format(time.RFC3339Nano),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, userID string, query []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	limit := uint64(topK)
	scoredPoints, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Filter:         userFilter(userID),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	results := make([]ScoredChunk, 0, len(scoredPoints))
	for _, point := range scoredPoints {
		chunk, err := chunkFromPayload(point.Id, point.Payload)
		if err != nil {
			return nil, err
		}
		results = append(results, ScoredChunk{Chunk: chunk, Score: float64(point.Score)})
	}

	// Qdrant orders by score only; equal scores prefer the fresher note.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.NoteUpdatedAt.After(results[j].Chunk.NoteUpdatedAt)
	})
	return results, nil
}

func (s *QdrantStore) DeleteByUserID(ctx context.Context, userID string) (bool, error) {
	return s.deleteByFilter(ctx, userFilter(userID))
}

func (s *QdrantStore) DeleteByNoteID(ctx context.Context, noteID string) (bool, error) {
	return s.deleteByFilter(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("note_id", noteID)},
	})
}

func (s *QdrantStore) deleteByFilter(ctx context.Context, filter *qdrant.Filter) (bool, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return false, fmt.Errorf("counting points: %w", err)
	}
	if count == 0 {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return false, fmt.Errorf("deleting points: %w", err)
	}
	return true, nil
}

func (s *QdrantStore) Stats(ctx context.Context, userID string) (Stats, error) {
	notes, err := s.IndexedNotes(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         userFilter(userID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return Stats{}, fmt.Errorf("counting points: %w", err)
	}

	stats := Stats{
		TotalEmbeddings: int(count),
		UniqueNotes:     len(notes),
	}
	for _, updated := range notes {
		if stats.LastIndexedAt == nil || updated.After(*stats.LastIndexedAt) {
			t := updated
			stats.LastIndexedAt = &t
		}
	}
	return stats, nil
}

func (s *QdrantStore) IndexedNotes(ctx context.Context, userID string) (map[string]time.Time, error) {
	notes := make(map[string]time.Time)

	var offset *qdrant.PointId
	for {
		resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         userFilter(userID),
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scrolling points: %w", err)
		}

		for _, point := range resp.GetResult() {
			chunk, err := chunkFromPayload(point.Id, point.Payload)
			if err != nil {
				return nil, err
			}
			if existing, ok := notes[chunk.NoteID]; !ok || chunk.NoteUpdatedAt.After(existing) {
				notes[chunk.NoteID] = chunk.NoteUpdatedAt
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			return notes, nil
		}
	}
}

func userFilter(userID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("user_id", userID)},
	}
}

func chunkFromPayload(id *qdrant.PointId, payload map[string]*qdrant.Value) (Chunk, error) {
	chunk := Chunk{
		NoteID:     payload["note_id"].GetStringValue(),
		UserID:     payload["user_id"].GetStringValue(),
		Content:    payload["content"].GetStringValue(),
		ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
	}
	if id != nil {
		chunk.ID = id.GetUuid()
	}

	raw := payload["note_updated_at"].GetStringValue()
	updated, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return Chunk{}, fmt.Errorf("parsing note time for point %s: %w", chunk.ID, err)
	}
	chunk.NoteUpdatedAt = updated
	return chunk, nil
}
