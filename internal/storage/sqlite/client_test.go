package sqlite

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataguard/agent/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "ledger.db"), 5.0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func TestLogQueryRunningMean(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.LogQuery("fp1", "weather in boston", true, 1.0))
	require.NoError(t, client.LogQuery("fp1", "weather in boston", false, 2.0))
	require.NoError(t, client.LogQuery("fp1", "weather in boston", true, 3.0))

	stat, err := client.GetQueryStat("fp1")
	require.NoError(t, err)

	assert.Equal(t, 3, stat.ExecutionCount)
	assert.InDelta(t, 2.0/3.0, stat.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, stat.AvgProcessingTime, 1e-9)
	assert.Equal(t, "weather in boston", stat.QueryText)
}

func TestQuerySuccessRateNeutralDefault(t *testing.T) {
	client := newTestClient(t)

	rate, err := client.QuerySuccessRate("never-seen")
	require.NoError(t, err)
	assert.Equal(t, 0.5, rate)

	require.NoError(t, client.LogQuery("fp1", "q", true, 0.1))
	rate, err = client.QuerySuccessRate("fp1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)
}

func TestLogQueryConcurrentSameKey(t *testing.T) {
	client := newTestClient(t)

	const writers = 10
	const perWriter = 5

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(success bool) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				err := client.LogQuery("shared", "q", success, 1.0)
				assert.NoError(t, err)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	stat, err := client.GetQueryStat("shared")
	require.NoError(t, err)

	assert.Equal(t, writers*perWriter, stat.ExecutionCount)
	assert.InDelta(t, 0.5, stat.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0, stat.AvgProcessingTime, 1e-9)
}

func TestUpdateAgentPerformance(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.UpdateAgentPerformance("retrieval_agent", "data_fetch", true, 0.2))
	require.NoError(t, client.UpdateAgentPerformance("retrieval_agent", "data_fetch", false, 0.4))
	require.NoError(t, client.UpdateAgentPerformance("retrieval_agent", "data_fetch", true, 0.6))

	stat, err := client.GetAgentPerformance("retrieval_agent", "data_fetch")
	require.NoError(t, err)

	assert.Equal(t, 2, stat.SuccessCount)
	assert.Equal(t, 3, stat.TotalCount)
	assert.InDelta(t, 0.4, stat.AvgResponseTime, 1e-9)
	assert.InDelta(t, 2.0/3.0, stat.SuccessRate(), 1e-9)
}

func TestInsightsStoreAndFilter(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.StoreInsight(models.InsightQueryPattern,
		models.QueryPatternInsight{QueryLength: 10, ComplianceStatus: true, ReasoningConfidence: 0.7}, 0.7))
	require.NoError(t, client.StoreInsight(models.InsightCompliancePattern,
		models.CompliancePatternInsight{ViolationCount: 2}, 0.8))
	require.NoError(t, client.StoreInsight(models.InsightQueryPattern,
		models.QueryPatternInsight{QueryLength: 20}, 0.7))

	all, err := client.RecentInsights("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := client.RecentInsights(models.InsightQueryPattern, 10)
	require.NoError(t, err)
	require.Len(t, filtered, 2)

	// Newest first.
	var payload models.QueryPatternInsight
	require.NoError(t, json.Unmarshal(filtered[0].Payload, &payload))
	assert.Equal(t, 20, payload.QueryLength)

	limited, err := client.RecentInsights("", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCommonViolationsRanking(t *testing.T) {
	client := newTestClient(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, client.LogViolation("gdpr", "Potential EMAIL found in data", models.SeverityHigh))
	}
	require.NoError(t, client.LogViolation("hipaa", "Potential SSN found in notes", models.SeverityHigh))

	summaries, err := client.CommonViolations(7)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "gdpr", summaries[0].Type)
	assert.Equal(t, 3, summaries[0].Count)
	assert.Equal(t, models.SeverityHigh, summaries[0].Severity)
	assert.Equal(t, "hipaa", summaries[1].Type)
}

func TestSystemSnapshotEmptyLedger(t *testing.T) {
	client := newTestClient(t)

	snapshot, err := client.SystemSnapshot()
	require.NoError(t, err)

	assert.Equal(t, 0, snapshot.TotalQueries)
	assert.Equal(t, 0.0, snapshot.AvgSuccessRate)
	assert.Equal(t, models.HealthPoor, snapshot.SystemHealth)
	assert.Equal(t, models.TrendStable, snapshot.PerformanceTrend)
	assert.Empty(t, snapshot.CommonViolations)
}

func TestSystemSnapshotHealthBuckets(t *testing.T) {
	tests := []struct {
		rate   float64
		health string
	}{
		{0.9, models.HealthExcellent},
		{0.7, models.HealthGood},
		{0.5, models.HealthFair},
		{0.3, models.HealthPoor},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.health, healthLabel(tt.rate), "rate %v", tt.rate)
	}
}

func backdateQuery(t *testing.T, client *Client, fingerprint string, daysAgo int) {
	t.Helper()

	ts := time.Now().AddDate(0, 0, -daysAgo).Unix()
	_, err := client.db.Exec(
		`UPDATE query_history SET last_seen = ? WHERE query_hash = ?`, ts, fingerprint)
	require.NoError(t, err)
}

func TestPerformanceTrendClassification(t *testing.T) {
	t.Run("improving", func(t *testing.T) {
		client := newTestClient(t)

		require.NoError(t, client.LogQuery("recent", "q", true, 0.1))
		require.NoError(t, client.LogQuery("previous", "q", false, 0.1))
		backdateQuery(t, client, "previous", 10)

		trend, err := client.performanceTrend()
		require.NoError(t, err)
		assert.Equal(t, models.TrendImproving, trend)
	})

	t.Run("declining", func(t *testing.T) {
		client := newTestClient(t)

		require.NoError(t, client.LogQuery("recent", "q", false, 0.1))
		require.NoError(t, client.LogQuery("previous", "q", true, 0.1))
		backdateQuery(t, client, "previous", 10)

		trend, err := client.performanceTrend()
		require.NoError(t, err)
		assert.Equal(t, models.TrendDeclining, trend)
	})

	t.Run("stable within threshold", func(t *testing.T) {
		client := newTestClient(t)

		require.NoError(t, client.LogQuery("recent", "q", true, 0.1))
		require.NoError(t, client.LogQuery("previous", "q", true, 0.1))
		backdateQuery(t, client, "previous", 10)

		trend, err := client.performanceTrend()
		require.NoError(t, err)
		assert.Equal(t, models.TrendStable, trend)
	})

	t.Run("empty prior window counts as zero", func(t *testing.T) {
		client := newTestClient(t)

		require.NoError(t, client.LogQuery("recent", "q", true, 0.1))

		trend, err := client.performanceTrend()
		require.NoError(t, err)
		assert.Equal(t, models.TrendImproving, trend)
	})

	t.Run("stats outside both windows are ignored", func(t *testing.T) {
		client := newTestClient(t)

		require.NoError(t, client.LogQuery("recent", "q", true, 0.1))
		require.NoError(t, client.LogQuery("ancient", "q", false, 0.1))
		backdateQuery(t, client, "ancient", 30)

		trend, err := client.performanceTrend()
		require.NoError(t, err)
		assert.Equal(t, models.TrendImproving, trend)
	})
}

func TestSystemSnapshotAggregates(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.LogQuery("fp1", "q1", true, 0.5))
	require.NoError(t, client.LogQuery("fp2", "q2", true, 0.5))
	require.NoError(t, client.UpdateAgentPerformance("reasoning_agent", "data_analysis", true, 0.3))

	snapshot, err := client.SystemSnapshot()
	require.NoError(t, err)

	assert.Equal(t, 2, snapshot.TotalQueries)
	assert.InDelta(t, 1.0, snapshot.AvgSuccessRate, 1e-9)
	assert.Equal(t, models.HealthExcellent, snapshot.SystemHealth)

	agent, ok := snapshot.AgentPerformance["reasoning_agent"]
	require.True(t, ok)
	assert.InDelta(t, 1.0, agent.SuccessRate, 1e-9)
	assert.InDelta(t, 0.3, agent.AvgResponseTime, 1e-9)
}

func TestSystemSnapshotIsReadOnly(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.LogQuery("fp1", "q1", true, 0.5))
	require.NoError(t, client.UpdateAgentPerformance("retrieval_agent", "data_fetch", true, 0.2))

	first, err := client.SystemSnapshot()
	require.NoError(t, err)
	second, err := client.SystemSnapshot()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRecommendationsOrderingAndCap(t *testing.T) {
	client := newTestClient(t)

	// Three agents each low on success and slow: six candidate entries,
	// alphabetical by agent, capped at five.
	for _, name := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, client.UpdateAgentPerformance(name, "task", false, 10.0))
	}

	recommendations, err := client.Recommendations()
	require.NoError(t, err)
	require.Len(t, recommendations, 5)

	assert.Equal(t, "Review alpha performance - low success rate detected", recommendations[0])
	assert.Equal(t, "Optimize alpha - high response time detected", recommendations[1])
	assert.Equal(t, "Review beta performance - low success rate detected", recommendations[2])
	assert.Equal(t, "Optimize beta - high response time detected", recommendations[3])
	assert.Equal(t, "Review gamma performance - low success rate detected", recommendations[4])
}

func TestRecommendationsHealthyLedgerIsQuiet(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.LogQuery("fp1", "q", true, 0.2))
	require.NoError(t, client.UpdateAgentPerformance("retrieval_agent", "data_fetch", true, 0.2))

	recommendations, err := client.Recommendations()
	require.NoError(t, err)
	assert.Empty(t, recommendations)
}

func TestRecommendationsSurfaceTopViolation(t *testing.T) {
	client := newTestClient(t)

	require.NoError(t, client.LogQuery("fp1", "q", true, 0.2))
	require.NoError(t, client.LogViolation("hipaa", "Potential SSN found in notes", models.SeverityHigh))

	recommendations, err := client.Recommendations()
	require.NoError(t, err)
	assert.Contains(t, recommendations, "Address frequent hipaa compliance violations")
}
