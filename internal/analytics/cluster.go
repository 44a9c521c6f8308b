package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/service"
)

const (
	minClusterCount = 2
	maxClusterCount = 20
	kmeansMaxIters  = 10
	labelTermCount  = 3
)

// Topic is one cluster of semantically similar historical queries.
type Topic struct {
	Cluster    int
	Label      string
	QueryCount int
	Queries    []string
}

// TopicStats aggregates feedback per topic cluster.
type TopicStats struct {
	Cluster       int
	Label         string
	QueryCount    int
	FeedbackCount int
	PositiveCount int
	NegativeCount int
	// FeedbackRatio is positive feedback over all feedback; -1 when the
	// topic has no feedback at all.
	FeedbackRatio float64
}

// ClusterQueries groups the user's recent queries by embedding similarity
// into clusterCount topics and persists the assignment on each log. The
// clustering is deterministic for a fixed query history.
func (s *Service) ClusterQueries(ctx context.Context, userID string, clusterCount int) ([]Topic, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if clusterCount < minClusterCount || clusterCount > maxClusterCount {
		return nil, service.Validation("cluster count must be between %d and %d", minClusterCount, maxClusterCount)
	}

	logs, err := s.logs.ListSince(ctx, userID, time.Now().UTC().Add(-recentWindow))
	if err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "failed to load query logs")
	}
	if len(logs) < clusterCount {
		return nil, service.Validation("need at least %d recent queries to form %d clusters, have %d",
			clusterCount, clusterCount, len(logs))
	}

	queries := make([]string, len(logs))
	for i, log := range logs {
		queries[i] = log.Query
	}
	vectors, err := s.embedder.Embed(ctx, queries)
	if err != nil {
		return nil, service.Wrap(err, service.CodeOf(err), "failed to embed queries")
	}
	if len(vectors) != len(logs) {
		return nil, service.New(service.CodeInternal, "embedding count mismatch")
	}
	for i := range vectors {
		vectors[i] = normalizeUnit(vectors[i])
	}

	assignments := kmeans(vectors, clusterCount)

	members := make(map[int][]int)
	for logIdx, cluster := range assignments {
		members[cluster] = append(members[cluster], logIdx)
	}

	clusterIDs := make([]int, 0, len(members))
	for cluster := range members {
		clusterIDs = append(clusterIDs, cluster)
	}
	sort.Ints(clusterIDs)

	topics := make([]Topic, 0, len(clusterIDs))
	for _, cluster := range clusterIDs {
		idxs := members[cluster]
		clusterQueries := make([]string, len(idxs))
		for i, logIdx := range idxs {
			clusterQueries[i] = logs[logIdx].Query
		}
		label := topicLabel(clusterQueries, labelTermCount)

		for _, logIdx := range idxs {
			if err := s.logs.UpdateTopic(ctx, logs[logIdx].ID, cluster, label); err != nil {
				return nil, service.Wrap(err, service.CodeInternal, "failed to persist topic assignment")
			}
		}
		topics = append(topics, Topic{
			Cluster:    cluster,
			Label:      label,
			QueryCount: len(idxs),
			Queries:    clusterQueries,
		})
	}

	logger.InfoContext(ctx, "clustered queries",
		"user_id", userID, "queries", len(logs), "clusters", len(topics))
	return topics, nil
}

// GetTopicStats aggregates feedback per topic cluster, worst feedback ratio
// first, so problem areas surface at the top.
func (s *Service) GetTopicStats(ctx context.Context, userID string) ([]TopicStats, error) {
	logs, err := s.logs.ListSince(ctx, userID, time.Now().UTC().Add(-recentWindow))
	if err != nil {
		return nil, service.Wrap(err, service.CodeInternal, "failed to load query logs")
	}

	byCluster := make(map[int]*TopicStats)
	for _, log := range logs {
		if log.TopicCluster == nil {
			continue
		}
		stats, ok := byCluster[*log.TopicCluster]
		if !ok {
			stats = &TopicStats{Cluster: *log.TopicCluster, Label: log.TopicLabel}
			byCluster[*log.TopicCluster] = stats
		}
		stats.QueryCount++
		switch log.UserFeedback {
		case FeedbackPositive:
			stats.FeedbackCount++
			stats.PositiveCount++
		case FeedbackNegative:
			stats.FeedbackCount++
			stats.NegativeCount++
		}
	}

	result := make([]TopicStats, 0, len(byCluster))
	for _, stats := range byCluster {
		if stats.FeedbackCount > 0 {
			stats.FeedbackRatio = float64(stats.PositiveCount) / float64(stats.FeedbackCount)
		} else {
			stats.FeedbackRatio = -1
		}
		result = append(result, *stats)
	}

	// Topics with feedback sort by ascending ratio; unrated topics go last.
	sort.SliceStable(result, func(i, j int) bool {
		ri, rj := result[i], result[j]
		if (ri.FeedbackRatio < 0) != (rj.FeedbackRatio < 0) {
			return rj.FeedbackRatio < 0
		}
		if ri.FeedbackRatio != rj.FeedbackRatio {
			return ri.FeedbackRatio < rj.FeedbackRatio
		}
		return ri.Cluster < rj.Cluster
	})
	return result, nil
}

// kmeans assigns each vector to one of k clusters. Deterministic k-means++:
// the first centroid is the first vector, each further seed is the vector
// farthest from the existing centroids; assignment is by cosine similarity
// with centroids renormalized each iteration.
func kmeans(vectors [][]float32, k int) []int {
	if k > len(vectors) {
		k = len(vectors)
	}

	centroids := make([][]float32, 0, k)
	centroids = append(centroids, vectors[0])
	for len(centroids) < k {
		bestIdx := 0
		bestDist := -1.0
		for i := range vectors {
			d := 1.0
			for _, c := range centroids {
				if dist := 1.0 - dot(vectors[i], c); dist < d {
					d = dist
				}
			}
			if d > bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		centroids = append(centroids, vectors[bestIdx])
	}

	assign := make([]int, len(vectors))
	for i := range assign {
		assign[i] = -1
	}

	for iter := 0; iter < kmeansMaxIters; iter++ {
		changed := false
		for i, vec := range vectors {
			best := 0
			bestScore := math.Inf(-1)
			for c := range centroids {
				if score := dot(vec, centroids[c]); score > bestScore {
					bestScore = score
					best = c
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for c := range centroids {
			var members [][]float32
			for i, vec := range vectors {
				if assign[i] == c {
					members = append(members, vec)
				}
			}
			if len(members) == 0 {
				continue
			}
			centroids[c] = normalizeUnit(meanVector(members))
		}
	}
	return assign
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	mean := make([]float32, len(vectors[0]))
	for _, vec := range vectors {
		for i := range mean {
			if i < len(vec) {
				mean[i] += vec[i]
			}
		}
	}
	for i := range mean {
		mean[i] /= float32(len(vectors))
	}
	return mean
}

func normalizeUnit(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum <= 0 {
		return v
	}
	den := float32(1.0 / math.Sqrt(sum))
	out := make([]float32, len(v))
	for i := range v {
		out[i] = v[i] * den
	}
	return out
}
