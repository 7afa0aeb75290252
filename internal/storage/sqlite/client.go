package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/dataguard/agent/internal/storage/models"
	"github.com/dataguard/agent/pkg/logger"
)

// Client is the persisted performance/compliance ledger. Running-mean updates
// are issued as single upsert statements so concurrent callers hitting the
// same key serialize inside SQLite while different keys proceed independently.
type Client struct {
	db *sql.DB

	latencyThresholdSec float64
}

func NewClient(dbPath string, latencyThresholdSec float64) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("Memory store initialized", zap.String("path", dbPath))

	return &Client{db: db, latencyThresholdSec: latencyThresholdSec}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_hash TEXT UNIQUE NOT NULL,
		query_text TEXT,
		success_rate REAL DEFAULT 0,
		execution_count INTEGER DEFAULT 1,
		avg_processing_time REAL DEFAULT 0,
		last_seen INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_last_seen ON query_history(last_seen);

	CREATE TABLE IF NOT EXISTS compliance_violations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		violation_type TEXT NOT NULL,
		description TEXT,
		severity TEXT DEFAULT 'medium',
		resolved INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_violations_created ON compliance_violations(created_at);
	CREATE INDEX IF NOT EXISTS idx_violations_resolved ON compliance_violations(resolved);

	CREATE TABLE IF NOT EXISTS agent_performance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_name TEXT NOT NULL,
		task_type TEXT NOT NULL,
		success_count INTEGER DEFAULT 0,
		total_count INTEGER DEFAULT 0,
		avg_response_time REAL DEFAULT 0,
		last_updated INTEGER NOT NULL,
		UNIQUE(agent_name, task_type)
	);

	CREATE TABLE IF NOT EXISTS system_insights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		insight_type TEXT NOT NULL,
		insight_data TEXT,
		confidence REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_insights_type ON system_insights(insight_type);
	CREATE INDEX IF NOT EXISTS idx_insights_created ON system_insights(created_at);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Memory store schema initialized")
	return nil
}

// LogQuery upserts the running success rate and processing-time mean for a
// query fingerprint. The means are recomputed inside the statement from the
// stored count, so the invariant new = (old*count + value)/(count+1) holds
// under concurrent callers.
func (c *Client) LogQuery(fingerprint, queryText string, success bool, processingTime float64) error {
	successVal := 0.0
	if success {
		successVal = 1.0
	}

	query := `
		INSERT INTO query_history (query_hash, query_text, success_rate, execution_count, avg_processing_time, last_seen)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(query_hash) DO UPDATE SET
			success_rate = (query_history.success_rate * query_history.execution_count + excluded.success_rate) / (query_history.execution_count + 1),
			avg_processing_time = (query_history.avg_processing_time * query_history.execution_count + excluded.avg_processing_time) / (query_history.execution_count + 1),
			execution_count = query_history.execution_count + 1,
			last_seen = excluded.last_seen
	`

	_, err := c.db.Exec(query, fingerprint, queryText, successVal, processingTime, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}

	logger.Debug("Query logged",
		zap.String("fingerprint", fingerprint),
		zap.Bool("success", success),
		zap.Float64("processing_time", processingTime),
	)
	return nil
}

// QuerySuccessRate returns the stored rate for a fingerprint, or the neutral
// default 0.5 for fingerprints never seen. The default is not an observation.
func (c *Client) QuerySuccessRate(fingerprint string) (float64, error) {
	var rate float64
	err := c.db.QueryRow(
		`SELECT success_rate FROM query_history WHERE query_hash = ?`, fingerprint,
	).Scan(&rate)
	if err == sql.ErrNoRows {
		return 0.5, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read query success rate: %w", err)
	}
	return rate, nil
}

func (c *Client) GetQueryStat(fingerprint string) (*models.QueryStat, error) {
	var stat models.QueryStat
	var lastSeen int64

	err := c.db.QueryRow(`
		SELECT query_hash, query_text, execution_count, success_rate, avg_processing_time, last_seen
		FROM query_history WHERE query_hash = ?
	`, fingerprint).Scan(
		&stat.Fingerprint,
		&stat.QueryText,
		&stat.ExecutionCount,
		&stat.SuccessRate,
		&stat.AvgProcessingTime,
		&lastSeen,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get query stat: %w", err)
	}

	stat.LastSeen = time.Unix(lastSeen, 0)
	return &stat, nil
}

// LogViolation appends a compliance violation. Rows are never mutated here;
// the resolved flag belongs to an external remediation process.
func (c *Client) LogViolation(regulation, description, severity string) error {
	_, err := c.db.Exec(`
		INSERT INTO compliance_violations (violation_type, description, severity, created_at)
		VALUES (?, ?, ?, ?)
	`, regulation, description, severity, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to log violation: %w", err)
	}

	logger.Info("Compliance violation recorded",
		zap.String("regulation", regulation),
		zap.String("severity", severity),
		zap.String("description", description),
	)
	return nil
}

// UpdateAgentPerformance upserts the per-(agent, task) counters with the same
// running-mean semantics as LogQuery.
func (c *Client) UpdateAgentPerformance(agentName, taskType string, success bool, responseTime float64) error {
	successInc := 0
	if success {
		successInc = 1
	}

	query := `
		INSERT INTO agent_performance (agent_name, task_type, success_count, total_count, avg_response_time, last_updated)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(agent_name, task_type) DO UPDATE SET
			success_count = agent_performance.success_count + excluded.success_count,
			avg_response_time = (agent_performance.avg_response_time * agent_performance.total_count + excluded.avg_response_time) / (agent_performance.total_count + 1),
			total_count = agent_performance.total_count + 1,
			last_updated = excluded.last_updated
	`

	_, err := c.db.Exec(query, agentName, taskType, successInc, responseTime, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to update agent performance: %w", err)
	}
	return nil
}

func (c *Client) GetAgentPerformance(agentName, taskType string) (*models.AgentPerformanceStat, error) {
	var stat models.AgentPerformanceStat
	var lastUpdated int64

	err := c.db.QueryRow(`
		SELECT agent_name, task_type, success_count, total_count, avg_response_time, last_updated
		FROM agent_performance WHERE agent_name = ? AND task_type = ?
	`, agentName, taskType).Scan(
		&stat.AgentName,
		&stat.TaskType,
		&stat.SuccessCount,
		&stat.TotalCount,
		&stat.AvgResponseTime,
		&lastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent performance: %w", err)
	}

	stat.LastUpdated = time.Unix(lastUpdated, 0)
	return &stat, nil
}

// StoreInsight appends a typed insight payload serialized as JSON.
func (c *Client) StoreInsight(insightType string, payload interface{}, confidence float64) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal insight payload: %w", err)
	}

	_, err = c.db.Exec(`
		INSERT INTO system_insights (insight_type, insight_data, confidence, created_at)
		VALUES (?, ?, ?, ?)
	`, insightType, string(data), confidence, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store insight: %w", err)
	}
	return nil
}

// RecentInsights returns the newest insights, optionally filtered by type.
func (c *Client) RecentInsights(insightType string, limit int) ([]models.Insight, error) {
	var rows *sql.Rows
	var err error

	if insightType != "" {
		rows, err = c.db.Query(`
			SELECT id, insight_type, insight_data, confidence, created_at
			FROM system_insights WHERE insight_type = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		`, insightType, limit)
	} else {
		rows, err = c.db.Query(`
			SELECT id, insight_type, insight_data, confidence, created_at
			FROM system_insights
			ORDER BY created_at DESC, id DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insights: %w", err)
	}
	defer rows.Close()

	var insights []models.Insight
	for rows.Next() {
		var in models.Insight
		var data string
		var createdAt int64

		if err := rows.Scan(&in.ID, &in.Type, &data, &in.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight row: %w", err)
		}

		in.Payload = []byte(data)
		in.Timestamp = time.Unix(createdAt, 0)
		insights = append(insights, in)
	}

	return insights, rows.Err()
}

// CommonViolations groups unresolved violations within the trailing window by
// (type, severity), ranked by count, capped at 10.
func (c *Client) CommonViolations(days int) ([]models.ViolationSummary, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Unix()

	rows, err := c.db.Query(`
		SELECT violation_type, COUNT(*) as count, severity
		FROM compliance_violations
		WHERE created_at > ? AND resolved = 0
		GROUP BY violation_type, severity
		ORDER BY count DESC
		LIMIT 10
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get common violations: %w", err)
	}
	defer rows.Close()

	var summaries []models.ViolationSummary
	for rows.Next() {
		var s models.ViolationSummary
		if err := rows.Scan(&s.Type, &s.Count, &s.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan violation row: %w", err)
		}
		summaries = append(summaries, s)
	}

	return summaries, rows.Err()
}

// SystemSnapshot derives the overall ledger view: totals, health bucket, and
// a trend comparing the trailing 7 days against the 7 days before. The trend
// reads the stored running means rather than replaying raw events, so a stat
// last touched outside the window contributes at its final value.
func (c *Client) SystemSnapshot() (*models.SystemSnapshot, error) {
	snapshot := &models.SystemSnapshot{
		AgentPerformance: make(map[string]models.AgentSummary),
	}

	if err := c.db.QueryRow(`SELECT COUNT(*) FROM query_history`).Scan(&snapshot.TotalQueries); err != nil {
		return nil, fmt.Errorf("failed to count queries: %w", err)
	}

	var avgSuccess sql.NullFloat64
	if err := c.db.QueryRow(`SELECT AVG(success_rate) FROM query_history`).Scan(&avgSuccess); err != nil {
		return nil, fmt.Errorf("failed to average success rate: %w", err)
	}
	if avgSuccess.Valid {
		snapshot.AvgSuccessRate = avgSuccess.Float64
	}

	violations, err := c.CommonViolations(7)
	if err != nil {
		return nil, err
	}
	snapshot.CommonViolations = violations

	rows, err := c.db.Query(`
		SELECT agent_name,
		       AVG(success_count * 1.0 / total_count) as success_rate,
		       AVG(avg_response_time) as avg_time
		FROM agent_performance
		GROUP BY agent_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent performance: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var successRate, avgTime sql.NullFloat64
		if err := rows.Scan(&name, &successRate, &avgTime); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		snapshot.AgentPerformance[name] = models.AgentSummary{
			SuccessRate:     successRate.Float64,
			AvgResponseTime: avgTime.Float64,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snapshot.SystemHealth = healthLabel(snapshot.AvgSuccessRate)

	trend, err := c.performanceTrend()
	if err != nil {
		return nil, err
	}
	snapshot.PerformanceTrend = trend

	return snapshot, nil
}

func healthLabel(avgSuccessRate float64) string {
	switch {
	case avgSuccessRate > 0.8:
		return models.HealthExcellent
	case avgSuccessRate > 0.6:
		return models.HealthGood
	case avgSuccessRate > 0.4:
		return models.HealthFair
	default:
		return models.HealthPoor
	}
}

func (c *Client) performanceTrend() (string, error) {
	now := time.Now()
	weekAgo := now.AddDate(0, 0, -7).Unix()
	twoWeeksAgo := now.AddDate(0, 0, -14).Unix()

	var recent, previous sql.NullFloat64

	err := c.db.QueryRow(
		`SELECT AVG(success_rate) FROM query_history WHERE last_seen > ?`, weekAgo,
	).Scan(&recent)
	if err != nil {
		return "", fmt.Errorf("failed to compute recent trend window: %w", err)
	}

	err = c.db.QueryRow(
		`SELECT AVG(success_rate) FROM query_history WHERE last_seen > ? AND last_seen <= ?`,
		twoWeeksAgo, weekAgo,
	).Scan(&previous)
	if err != nil {
		return "", fmt.Errorf("failed to compute previous trend window: %w", err)
	}

	delta := recent.Float64 - previous.Float64
	switch {
	case delta > 0.05:
		return models.TrendImproving, nil
	case delta < -0.05:
		return models.TrendDeclining, nil
	default:
		return models.TrendStable, nil
	}
}

// Recommendations derives operator guidance from the ledger: per-agent
// performance issues first, then the top compliance issue, then a general
// health note. Capped at 5. Nothing here is stored.
func (c *Client) Recommendations() ([]string, error) {
	snapshot, err := c.SystemSnapshot()
	if err != nil {
		return nil, err
	}

	var recommendations []string

	rows, err := c.db.Query(`
		SELECT agent_name,
		       AVG(success_count * 1.0 / total_count) as success_rate,
		       AVG(avg_response_time) as avg_time
		FROM agent_performance
		GROUP BY agent_name
		ORDER BY agent_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent performance: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var successRate, avgTime sql.NullFloat64
		if err := rows.Scan(&name, &successRate, &avgTime); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}
		if successRate.Float64 < 0.6 {
			recommendations = append(recommendations,
				fmt.Sprintf("Review %s performance - low success rate detected", name))
		}
		if avgTime.Float64 > c.latencyThresholdSec {
			recommendations = append(recommendations,
				fmt.Sprintf("Optimize %s - high response time detected", name))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(snapshot.CommonViolations) > 0 {
		top := snapshot.CommonViolations[0]
		recommendations = append(recommendations,
			fmt.Sprintf("Address frequent %s compliance violations", top.Type))
	}

	if snapshot.SystemHealth == models.HealthFair || snapshot.SystemHealth == models.HealthPoor {
		recommendations = append(recommendations,
			"System performance needs attention - review logs and metrics")
	}

	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations, nil
}
