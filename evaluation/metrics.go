package evaluation

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// DefaultKValues are the cut-offs reported when Options.KValues is empty
var DefaultKValues = []int{1, 3, 5, 10, 20, 50, 100}

// Metric names, formatted with a cut-off as "<name>_at_<k>"
const (
	NDCG      = "ndcg"
	MAP       = "map"
	Recall    = "recall"
	Precision = "precision"
	MRR       = "mrr"
)

var metricNames = []string{NDCG, MAP, Recall, Precision, MRR}

// Metrics maps "<metric>_at_<k>" to its value averaged over queries
type Metrics map[string]float64

// Key formats a metric name with its cut-off
func Key(metric string, k int) string {
	return fmt.Sprintf("%s_at_%d", metric, k)
}

// Names returns the metric keys sorted by metric then cut-off
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		mi, ki := splitKey(names[i])
		mj, kj := splitKey(names[j])
		if mi != mj {
			return slices.Index(metricNames, mi) < slices.Index(metricNames, mj)
		}
		return ki < kj
	})
	return names
}

func splitKey(key string) (string, int) {
	var k int
	for _, name := range metricNames {
		if _, err := fmt.Sscanf(key, name+"_at_%d", &k); err == nil {
			return name, k
		}
	}
	return key, 0
}

// QueryMetrics computes every metric at every cut-off for one ranked list.
// ranking lists document ids best first; relevant holds the ids with gain 1.
func QueryMetrics(ranking []string, relevant map[string]bool, kValues []int) Metrics {
	out := make(Metrics, len(kValues)*len(metricNames))
	for _, k := range kValues {
		var (
			hits       int
			dcg        float64
			apSum      float64
			reciprocal float64
		)
		for rank := 0; rank < k && rank < len(ranking); rank++ {
			if !relevant[ranking[rank]] {
				continue
			}
			hits++
			dcg += 1 / math.Log2(float64(rank+2))
			apSum += float64(hits) / float64(rank+1)
			if reciprocal == 0 {
				reciprocal = 1 / float64(rank+1)
			}
		}

		var idcg float64
		for rank := 0; rank < min(k, len(relevant)); rank++ {
			idcg += 1 / math.Log2(float64(rank+2))
		}

		n := float64(len(relevant))
		out[Key(NDCG, k)] = safeDiv(dcg, idcg)
		out[Key(MAP, k)] = safeDiv(apSum, n)
		out[Key(Recall, k)] = safeDiv(float64(hits), n)
		out[Key(Precision, k)] = safeDiv(float64(hits), float64(k))
		out[Key(MRR, k)] = reciprocal
	}
	return out
}

// Mean averages per-query metrics key by key
func Mean(perQuery []Metrics) Metrics {
	out := make(Metrics)
	if len(perQuery) == 0 {
		return out
	}
	for _, m := range perQuery {
		for name, v := range m {
			out[name] += v
		}
	}
	for name := range out {
		out[name] /= float64(len(perQuery))
	}
	return out
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
