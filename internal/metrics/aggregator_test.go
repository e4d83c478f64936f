package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/paramads/adops-engine/internal/ads"
)

func newAggregator(t *testing.T) (*SQLAggregator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLAggregator(db), mock
}

func window() (time.Time, time.Time) {
	to := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	return to.AddDate(0, 0, -7), to
}

func TestAggregate_SumMetric(t *testing.T) {
	agg, mock := newAggregator(t)
	id := uuid.New()
	from, to := window()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(spend\), 0\) FROM campaign_metrics`).
		WithArgs(id, from.Format("2006-01-02"), to.Format("2006-01-02")).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(123.45))

	got, err := agg.Aggregate(context.Background(), "spend", id, ads.KindCampaign, from, to)
	if err != nil {
		t.Fatalf("Aggregate() error: %v", err)
	}
	if got != 123.45 {
		t.Errorf("got %v, want 123.45", got)
	}
}

func TestAggregate_AvgMetric(t *testing.T) {
	agg, mock := newAggregator(t)
	id := uuid.New()
	from, to := window()

	mock.ExpectQuery(`SELECT COALESCE\(AVG\(ctr\), 0\) FROM adset_metrics`).
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(2.1))

	got, err := agg.Aggregate(context.Background(), "ctr", id, ads.KindAdSet, from, to)
	if err != nil {
		t.Fatalf("Aggregate() error: %v", err)
	}
	if got != 2.1 {
		t.Errorf("got %v, want 2.1", got)
	}
}

func TestAggregate_DerivedMetrics(t *testing.T) {
	agg, mock := newAggregator(t)
	id := uuid.New()
	from, to := window()

	mock.ExpectQuery(`CASE WHEN COALESCE\(SUM\(spend\), 0\) = 0 .+ FROM ad_metrics`).
		WillReturnRows(sqlmock.NewRows([]string{"roas"}).AddRow(3.5))

	got, err := agg.Aggregate(context.Background(), "roas", id, ads.KindAd, from, to)
	if err != nil {
		t.Fatalf("Aggregate(roas) error: %v", err)
	}
	if got != 3.5 {
		t.Errorf("roas = %v, want 3.5", got)
	}

	mock.ExpectQuery(`CASE WHEN COALESCE\(SUM\(conversions\), 0\) = 0 .+ FROM campaign_metrics`).
		WillReturnRows(sqlmock.NewRows([]string{"cpa"}).AddRow(12.0))

	got, err = agg.Aggregate(context.Background(), "cpa", id, ads.KindCampaign, from, to)
	if err != nil {
		t.Fatalf("Aggregate(cpa) error: %v", err)
	}
	if got != 12.0 {
		t.Errorf("cpa = %v, want 12", got)
	}
}

func TestAggregate_UnknownMetric(t *testing.T) {
	agg, _ := newAggregator(t)
	from, to := window()

	if _, err := agg.Aggregate(context.Background(), "engagement_score", uuid.New(), ads.KindCampaign, from, to); err == nil {
		t.Fatal("expected error for unknown metric")
	}
}

func TestAggregate_UnknownKind(t *testing.T) {
	agg, _ := newAggregator(t)
	from, to := window()

	if _, err := agg.Aggregate(context.Background(), "spend", uuid.New(), ads.TargetKind("keyword"), from, to); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
