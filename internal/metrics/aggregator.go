// Package metrics aggregates the daily performance rows synced from the ad
// platforms into the single values automation conditions compare against.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paramads/adops-engine/internal/ads"
)

// Aggregator computes one metric over a date window for one entity.
type Aggregator interface {
	Aggregate(ctx context.Context, metric string, entityID uuid.UUID, kind ads.TargetKind, from, to time.Time) (float64, error)
}

// Metrics stored per day and summed over the window.
var sumMetrics = map[string]bool{
	"spend":       true,
	"impressions": true,
	"clicks":      true,
	"conversions": true,
	"revenue":     true,
}

// Metrics stored per day and averaged over the window. These are already
// ratios; summing them would be meaningless.
var avgMetrics = map[string]bool{
	"cpc":       true,
	"cpm":       true,
	"ctr":       true,
	"frequency": true,
}

// SQLAggregator reads the per-day metric tables in Postgres.
type SQLAggregator struct {
	db *sql.DB
}

func NewSQLAggregator(db *sql.DB) *SQLAggregator {
	return &SQLAggregator{db: db}
}

func metricsTableFor(kind ads.TargetKind) (table, idCol string, err error) {
	switch kind {
	case ads.KindCampaign:
		return "campaign_metrics", "campaign_id", nil
	case ads.KindAdSet:
		return "adset_metrics", "ad_set_id", nil
	case ads.KindAd:
		return "ad_metrics", "ad_id", nil
	}
	return "", "", fmt.Errorf("metrics: unknown target kind %q", kind)
}

// Aggregate computes metric for the entity between from and to inclusive.
// Rows may be missing for some days; absent days simply contribute nothing.
// A window with no rows at all aggregates to 0.
func (a *SQLAggregator) Aggregate(ctx context.Context, metric string, entityID uuid.UUID, kind ads.TargetKind, from, to time.Time) (float64, error) {
	table, idCol, err := metricsTableFor(kind)
	if err != nil {
		return 0, err
	}

	var expr string
	switch {
	case sumMetrics[metric]:
		expr = fmt.Sprintf("COALESCE(SUM(%s), 0)", metric)
	case avgMetrics[metric]:
		expr = fmt.Sprintf("COALESCE(AVG(%s), 0)", metric)
	case metric == "roas":
		// Recomputed from the underlying sums rather than averaging the
		// per-day ratio, so heavy-spend days weigh correctly.
		expr = "CASE WHEN COALESCE(SUM(spend), 0) = 0 THEN 0 ELSE COALESCE(SUM(revenue), 0) / SUM(spend) END"
	case metric == "cpa":
		expr = "CASE WHEN COALESCE(SUM(conversions), 0) = 0 THEN 0 ELSE COALESCE(SUM(spend), 0) / SUM(conversions) END"
	default:
		return 0, fmt.Errorf("metrics: unknown metric %q", metric)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 AND date >= $2 AND date <= $3`, expr, table, idCol)

	var value float64
	err = a.db.QueryRowContext(ctx, query, entityID, from.Format("2006-01-02"), to.Format("2006-01-02")).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("metrics: aggregate %s over %s: %w", metric, table, err)
	}
	return value, nil
}
