package anomaly

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/propfin/internal/config"
	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/store"
)

var metricTypes = []model.MetricType{model.MetricRevenue, model.MetricExpense, model.MetricNOI}

// Detector runs the anomaly detection batch over all properties.
type Detector struct {
	store store.Store
	cfg   config.AnomalyConfig
	log   *zap.Logger
}

// New builds a Detector, applying defaults for zero config values.
func New(st store.Store, cfg config.AnomalyConfig) *Detector {
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = 6
	}
	if cfg.Window <= 0 {
		cfg.Window = 12
	}
	if cfg.ZThreshold <= 0 {
		cfg.ZThreshold = 2.0
	}
	if cfg.CThreshold <= 0 {
		cfg.CThreshold = 5.0
	}
	return &Detector{
		store: st,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "anomaly")),
	}
}

// Run evaluates every (property, metricType) series with sufficient
// history and upserts one anomaly record per evaluated series. A failure
// in one property's computation is logged and counted; it never aborts
// the batch for other properties. When propertyIDs are given, only those
// properties are scanned.
func (d *Detector) Run(ctx context.Context, propertyIDs ...string) (*model.AnomalyRunSummary, error) {
	props, err := d.store.ListProperties(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "anomaly: list properties")
	}
	if len(propertyIDs) > 0 {
		wanted := make(map[string]bool, len(propertyIDs))
		for _, id := range propertyIDs {
			wanted[id] = true
		}
		filtered := props[:0]
		for _, p := range props {
			if wanted[p.ID] {
				filtered = append(filtered, p)
			}
		}
		props = filtered
	}

	summary := &model.AnomalyRunSummary{AsOf: time.Now().UTC()}

	for _, prop := range props {
		summary.PropertiesScanned++
		if err := d.scanProperty(ctx, prop, summary); err != nil {
			summary.Failed++
			d.log.Error("property scan failed",
				zap.String("property_id", prop.ID),
				zap.Error(err),
			)
		}
		if ctx.Err() != nil {
			return summary, eris.Wrap(ctx.Err(), "anomaly: run cancelled")
		}
	}

	d.log.Info("anomaly batch complete",
		zap.Int("properties", summary.PropertiesScanned),
		zap.Int("series", summary.SeriesEvaluated),
		zap.Int("flags", summary.FlagsRaised),
		zap.Int("skipped_short", summary.SkippedShort),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (d *Detector) scanProperty(ctx context.Context, prop model.Property, summary *model.AnomalyRunSummary) error {
	zThresh, cThresh := d.thresholds(prop.PropertyClass)

	for _, mt := range metricTypes {
		series, err := d.store.ListMetricSeries(ctx, prop.ID, mt, d.cfg.Window*4)
		if err != nil {
			return eris.Wrapf(err, "anomaly: series %s/%s", prop.ID, mt)
		}
		if len(series) == 0 {
			continue
		}
		if len(series) < d.cfg.MinHistory {
			summary.SkippedShort++
			continue
		}

		values := make([]float64, len(series))
		for i, m := range series {
			values[i] = m.Value
		}

		stats := Evaluate(values, d.cfg.Window)
		flagged := math.Abs(stats.ZScore) >= zThresh || math.Abs(stats.CUSUM) >= cThresh

		rec := model.AnomalyRecord{
			PropertyID:     prop.ID,
			MetricType:     mt,
			Period:         series[len(series)-1].Period,
			Mean:           stats.Mean,
			StdDev:         stats.StdDev,
			ZScore:         stats.ZScore,
			CUSUMStatistic: stats.CUSUM,
			Flagged:        flagged,
			ComputedAt:     summary.AsOf,
		}
		if err := d.store.UpsertAnomalyRecord(ctx, rec); err != nil {
			return eris.Wrapf(err, "anomaly: upsert %s/%s", prop.ID, mt)
		}

		summary.SeriesEvaluated++
		if flagged {
			summary.FlagsRaised++
			d.log.Warn("anomaly flagged",
				zap.String("property_id", prop.ID),
				zap.String("metric_type", string(mt)),
				zap.Float64("zscore", stats.ZScore),
				zap.Float64("cusum", stats.CUSUM),
			)
		}
	}
	return nil
}

// thresholds returns the flagging thresholds for a property class,
// falling back to the base thresholds for unconfigured classes.
func (d *Detector) thresholds(class model.PropertyClass) (float64, float64) {
	z, c := d.cfg.ZThreshold, d.cfg.CThreshold
	if ct, ok := d.cfg.ClassThresholds[string(class)]; ok {
		if ct.ZThreshold > 0 {
			z = ct.ZThreshold
		}
		if ct.CThreshold > 0 {
			c = ct.CThreshold
		}
	}
	return z, c
}
