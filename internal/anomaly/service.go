package anomaly

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/corridorlabs/roamsight/internal/alert/domain"
	"github.com/corridorlabs/roamsight/internal/clock"
	"github.com/corridorlabs/roamsight/internal/config"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	"github.com/corridorlabs/roamsight/internal/quality"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Detection *config.DetectionConfigHolder
	EtlRepo   etldomain.Repository
	Alerts    alertdomain.Service
	Quality   quality.Reader
}

// Service sweeps active partners and raises findings through the alert
// lifecycle. It never writes alert rows itself.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	detection *config.DetectionConfigHolder
	etlRepo   etldomain.Repository
	alerts    alertdomain.Service
	quality   quality.Reader
}

func New(p Params) *Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("anomaly"),
		clock:     p.Clock,
		detection: p.Detection,
		etlRepo:   p.EtlRepo,
		alerts:    p.Alerts,
		quality:   p.Quality,
	}
}

// RunProject evaluates every partner active inside the lookback window and
// returns how many findings were raised. A failing partner does not stop
// the sweep for the rest.
func (s *Service) RunProject(ctx context.Context, projectID snowflake.ID) (int, error) {
	cfg := s.detection.Get()
	now := s.clock.Now()
	since := now.AddDate(0, 0, -cfg.LookbackDays)

	partners, err := s.etlRepo.ActivePartners(ctx, s.db, projectID, since)
	if err != nil {
		return 0, fmt.Errorf("anomaly: list active partners: %w", err)
	}

	var raised int
	var errs []error
	for _, key := range partners {
		n, err := s.runPartner(ctx, cfg, key, since, now)
		if err != nil {
			s.log.Warn("partner detection failed",
				zap.Int64("project_id", int64(key.ProjectID)),
				zap.String("partner", key.Partner),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		raised += n
	}
	return raised, errors.Join(errs...)
}

// RunQuality raises a warning for every recently uploaded file whose
// quality score fell below the configured floor. A zero project sweeps all
// projects.
func (s *Service) RunQuality(ctx context.Context, projectID snowflake.ID) (int, error) {
	cfg := s.detection.Get()
	if cfg.MinQualityScore <= 0 {
		return 0, nil
	}
	since := s.clock.Now().AddDate(0, 0, -cfg.LookbackDays)

	scores, err := s.quality.LowScores(ctx, projectID, cfg.MinQualityScore, since)
	if err != nil {
		return 0, fmt.Errorf("anomaly: low quality scores: %w", err)
	}

	var raised int
	var errs []error
	for _, fs := range scores {
		severity := alertdomain.SeverityMedium
		if fs.Score < cfg.MinQualityScore/2 {
			severity = alertdomain.SeverityHigh
		}
		fileProject := fs.ProjectID

		result, err := s.alerts.Upsert(ctx, alertdomain.Event{
			Fingerprint: alertdomain.Fingerprint(alertdomain.TypeQualityWarning, map[string]string{
				"project": strconv.FormatInt(int64(fs.ProjectID), 10),
				"file":    strconv.FormatInt(int64(fs.FileID), 10),
			}),
			Type:      alertdomain.TypeQualityWarning,
			Severity:  severity,
			Title:     fmt.Sprintf("Low quality score for %s", fs.FileName),
			Message:   fmt.Sprintf("File %s scored %.1f, below the configured floor of %.0f.", fs.FileName, fs.Score, cfg.MinQualityScore),
			Source:    "quality",
			ProjectID: &fileProject,
			Payload: map[string]any{
				"file_id": fs.FileID.String(),
				"score":   fs.Score,
				"floor":   cfg.MinQualityScore,
			},
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		raised++
		if result.Created || result.Reopened {
			s.log.Info("quality warning raised",
				zap.Int64("file_id", int64(fs.FileID)),
				zap.Float64("score", fs.Score),
				zap.String("severity", string(severity)),
			)
		}
	}
	return raised, errors.Join(errs...)
}

func (s *Service) runPartner(ctx context.Context, cfg config.DetectionConfig, key etldomain.PartnerKey, since, now time.Time) (int, error) {
	series, err := s.etlRepo.PartnerDaily(ctx, s.db, key.ProjectID, key.Partner, since, now)
	if err != nil {
		return 0, err
	}

	findings := Evaluate(cfg, series)
	var raised int
	for _, finding := range findings {
		if err := s.raise(ctx, key, finding); err != nil {
			return raised, err
		}
		raised++
	}
	return raised, nil
}

func (s *Service) raise(ctx context.Context, key etldomain.PartnerKey, finding Finding) error {
	day := finding.Day.UTC().Format(time.DateOnly)
	dimensions := map[string]string{
		"project": strconv.FormatInt(int64(key.ProjectID), 10),
		"partner": key.Partner,
		"day":     day,
	}
	if finding.Type == alertdomain.TypeMetricOutlier {
		dimensions["metric"] = finding.Metric
	}

	title, message := finding.describe(key.Partner)
	partner := key.Partner
	projectID := key.ProjectID

	result, err := s.alerts.Upsert(ctx, alertdomain.Event{
		Fingerprint: alertdomain.Fingerprint(finding.Type, dimensions),
		Type:        finding.Type,
		Severity:    finding.Severity,
		Title:       title,
		Message:     message,
		Source:      "anomaly",
		ProjectID:   &projectID,
		Partner:     &partner,
		Payload: map[string]any{
			"metric":    finding.Metric,
			"day":       day,
			"current":   finding.Current,
			"baseline":  finding.Baseline,
			"ratio":     finding.Ratio,
			"threshold": finding.Threshold,
		},
	})
	if err != nil {
		return err
	}
	if result.Created || result.Reopened {
		s.log.Info("anomaly raised",
			zap.String("type", finding.Type),
			zap.String("partner", key.Partner),
			zap.String("day", day),
			zap.String("severity", string(finding.Severity)),
		)
	}
	return nil
}

var Module = fx.Module("anomaly",
	fx.Provide(New),
)
