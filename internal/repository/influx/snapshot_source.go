// Package influx reads and writes variant metric series in InfluxDB.
package influx

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"budgetPilot/domain"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

const measurement = "ad_metrics"

// variant ids go into Flux source text
var safeID = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Bucket width of the returned series.
	Window time.Duration
}

type SnapshotSource struct {
	client influxdb2.Client
	query  api.QueryAPI
	write  api.WriteAPIBlocking
	cfg    Config
}

func NewSnapshotSource(cfg Config) *SnapshotSource {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &SnapshotSource{
		client: client,
		query:  client.QueryAPI(cfg.Org),
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		cfg:    cfg,
	}
}

func (s *SnapshotSource) Close() {
	s.client.Close()
}

// WriteBatch mirrors one metric batch as a point.
func (s *SnapshotSource) WriteBatch(ctx context.Context, b domain.MetricBatch) error {
	p := influxdb2.NewPoint(
		measurement,
		map[string]string{"variant_id": b.VariantID},
		map[string]interface{}{
			"impressions": float64(b.Impressions),
			"clicks":      float64(b.Clicks),
			"spend":       b.Spend,
			"conversions": float64(b.Conversions),
			"revenue":     b.Revenue,
		},
		b.BucketStart,
	)
	if err := s.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write for %s: %w", b.VariantID, err)
	}
	return nil
}

func (s *SnapshotSource) Snapshots(ctx context.Context, variantID string, since time.Time) ([]domain.MetricSnapshot, error) {
	if !safeID.MatchString(variantID) {
		return nil, fmt.Errorf("invalid variant id %q", variantID)
	}

	flux := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: %s)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.variant_id == "%s")
		  |> aggregateWindow(every: %s, fn: sum, createEmpty: false, timeSrc: "_start")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, s.cfg.Bucket, since.UTC().Format(time.RFC3339), measurement, variantID, s.cfg.Window.String())

	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query for %s: %w", variantID, err)
	}
	defer result.Close()

	out := make([]domain.MetricSnapshot, 0)
	for result.Next() {
		rec := result.Record()
		out = append(out, domain.MetricSnapshot{
			BucketStart: rec.Time().UTC(),
			Impressions: int64(num(rec.ValueByKey("impressions"))),
			Clicks:      int64(num(rec.ValueByKey("clicks"))),
			Spend:       num(rec.ValueByKey("spend")),
			Conversions: int64(num(rec.ValueByKey("conversions"))),
			Revenue:     num(rec.ValueByKey("revenue")),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx result for %s: %w", variantID, result.Err())
	}
	return out, nil
}

// num reads a numeric column; missing or non-numeric values count as 0.
func num(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	}
	return 0
}
