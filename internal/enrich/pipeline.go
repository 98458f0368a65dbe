package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tidewatch.in/hazard/internal/config"
	"tidewatch.in/hazard/internal/observability"
)

// Input is the report state a pipeline run annotates. Coordinates are always
// present; everything else gates individual stages.
type Input struct {
	HazardType string
	Text       string
	ImageRef   string
	Lat        float64
	Lon        float64
}

// Annotations is the fixed set of optional stage results. A nil field means
// the stage was skipped or inconclusive; it never means false.
type Annotations struct {
	ConsistencyScore *float64
	SatelliteChange  *bool
	StylometryFlag   *bool
	ReasoningVerdict *string
}

// Pipeline runs the independent verification stages. Every stage call is
// bounded by its own timeout and absorbed on failure: enrichment can annotate
// a report but can never fail one.
type Pipeline struct {
	consistency *ConsistencyClient
	satellite   *SatelliteClient
	stylometry  *StylometryClient
	reasoning   *ReasoningClient

	timeout time.Duration
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// New wires the configured capability clients. Stages whose endpoint is not
// configured are permanently skipped; the pipeline is usable even with no
// capabilities at all.
func New(cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics) *Pipeline {
	client := newCapabilityClient(cfg.EnrichTimeout, cfg.EnrichRatePerSec, cfg.EnrichRateBurst)

	p := &Pipeline{
		timeout: cfg.EnrichTimeout,
		logger:  logger,
		metrics: metrics,
	}
	if cfg.ConsistencyAPIURL != "" {
		p.consistency = NewConsistencyClient(client, cfg.ConsistencyAPIURL)
	}
	if cfg.SatelliteAPIURL != "" && cfg.ChangeDetectURL != "" {
		p.satellite = NewSatelliteClient(client, SatelliteOptions{
			ImageryURL:      cfg.SatelliteAPIURL,
			ChangeDetectURL: cfg.ChangeDetectURL,
			APIKey:          cfg.SatelliteAPIKey,
			RadiusMeters:    cfg.SatelliteRadiusM,
			Before:          cfg.SatelliteBefore,
			After:           cfg.SatelliteAfter,
		})
	}
	if cfg.StylometryAPIURL != "" {
		p.stylometry = NewStylometryClient(client, cfg.StylometryAPIURL)
	}
	if cfg.DisasterFeedURL != "" && cfg.ReasoningAPIURL != "" {
		p.reasoning = NewReasoningClient(client, cfg.DisasterFeedURL, cfg.ReasoningAPIURL, cfg.DisasterFeedTTL)
	}
	return p
}

// Enrich runs all applicable stages concurrently and returns whatever
// annotations succeeded. It never returns an error.
func (p *Pipeline) Enrich(ctx context.Context, input Input) Annotations {
	if p == nil {
		return Annotations{}
	}

	var (
		wg  sync.WaitGroup
		ann Annotations
	)

	if p.consistency != nil && input.Text != "" && input.ImageRef != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			score, ok := runStage(ctx, p, "consistency", func(stageCtx context.Context) (float64, error) {
				return p.consistency.Score(stageCtx, input.Text, input.ImageRef)
			})
			if ok {
				ann.ConsistencyScore = &score
			}
		}()
	} else {
		p.metrics.CountEnrichment("consistency", "skipped")
	}

	if p.satellite != nil && IsHighPriority(input.HazardType, input.Text) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, ok := runStage(ctx, p, "satellite", func(stageCtx context.Context) (bool, error) {
				return p.satellite.CheckChange(stageCtx, input.Lat, input.Lon)
			})
			if ok {
				ann.SatelliteChange = &changed
			}
		}()
	} else {
		p.metrics.CountEnrichment("satellite", "skipped")
	}

	if p.stylometry != nil && input.Text != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isFake, ok := runStage(ctx, p, "stylometry", func(stageCtx context.Context) (bool, error) {
				return p.stylometry.Check(stageCtx, input.Text)
			})
			if ok {
				ann.StylometryFlag = &isFake
			}
		}()
	} else {
		p.metrics.CountEnrichment("stylometry", "skipped")
	}

	if p.reasoning != nil && ContainsDisasterClaim(input.Text) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict, ok := runStage(ctx, p, "reasoning", func(stageCtx context.Context) (string, error) {
				return p.reasoning.Verdict(stageCtx, input.Text, input.Lat, input.Lon)
			})
			if ok {
				ann.ReasoningVerdict = &verdict
			}
		}()
	} else {
		p.metrics.CountEnrichment("reasoning", "skipped")
	}

	wg.Wait()
	return ann
}

// runStage applies the uniform adapter contract: a bounded timeout, a typed
// result or nothing, never a raised error past this point.
func runStage[T any](ctx context.Context, p *Pipeline, stage string, call func(ctx context.Context) (T, error)) (T, bool) {
	stageCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	value, err := call(stageCtx)
	p.metrics.ObserveEnrichmentDuration(stage, time.Since(started).Seconds())

	if err != nil {
		p.logger.Warn().Err(err).Str("stage", stage).Msg("enrichment stage failed")
		p.metrics.CountEnrichment(stage, "failed")
		var zero T
		return zero, false
	}

	p.metrics.CountEnrichment(stage, "attached")
	return value, true
}
