package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tidewatch.in/hazard/internal/db"
	"tidewatch.in/hazard/internal/enrich"
	"tidewatch.in/hazard/internal/events"
	"tidewatch.in/hazard/internal/globaltime"
	"tidewatch.in/hazard/internal/observability"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// Store is the persistence surface the report lifecycle needs.
type Store interface {
	UpsertSubmission(ctx context.Context, params db.SubmissionParams, epsilon float64) (*db.PendingCluster, bool, error)
	UpdateClusterAnnotations(ctx context.Context, clusterID int64, patch db.AnnotationPatch) error
	ListPendingClusters(ctx context.Context, page, limit int) (int64, []db.PendingCluster, error)
	GetClusterByUUID(ctx context.Context, clusterUUID string) (*db.PendingCluster, error)
	InsertVerifiedReport(ctx context.Context, cluster *db.PendingCluster, validatedBy string, validatedAt time.Time) (*db.VerifiedRecord, error)
	DeleteClusterByID(ctx context.Context, clusterID int64) (int64, error)
}

// Enricher annotates a report; it never fails one.
type Enricher interface {
	Enrich(ctx context.Context, input enrich.Input) enrich.Annotations
}

// Service drives the report lifecycle: normalize, cluster, enrich, list,
// promote.
type Service struct {
	store     Store
	enricher  Enricher
	publisher events.Publisher
	logger    zerolog.Logger
	metrics   *observability.Metrics
	epsilon   float64

	// Serializes the find-or-create critical section per coordinate cell so
	// two near-simultaneous submissions at the same spot cannot each create
	// a cluster for one incident.
	cellMu    sync.Mutex
	cellLocks map[string]*sync.Mutex
}

type Options struct {
	Store     Store
	Enricher  Enricher
	Publisher events.Publisher
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
	Epsilon   float64
}

func NewService(opts Options) *Service {
	epsilon := opts.Epsilon
	if epsilon <= 0 {
		epsilon = 0.001
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		store:     opts.Store,
		enricher:  opts.Enricher,
		publisher: publisher,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		epsilon:   epsilon,
		cellLocks: map[string]*sync.Mutex{},
	}
}

func (s *Service) Epsilon() float64 {
	return s.epsilon
}

// Submit normalizes one raw submission, merges it into a matching pending
// cluster or creates a new one, then runs enrichment and persists whatever
// annotations succeeded. Enrichment failures never fail the submission.
func (s *Service) Submit(ctx context.Context, raw RawSubmission) (*db.PendingCluster, error) {
	sub, err := Normalize(raw)
	if err != nil {
		s.metrics.CountSubmission("rejected")
		return nil, err
	}

	params := db.SubmissionParams{
		HazardType: sub.HazardType,
		Text:       sub.Text,
		ImageRefs:  sub.ImageRefs,
		VideoRefs:  sub.VideoRefs,
		Lat:        sub.Lat,
		Lon:        sub.Lon,
	}

	lock := s.cellLock(sub.Lat, sub.Lon)
	lock.Lock()
	cluster, created, err := s.store.UpsertSubmission(ctx, params, s.epsilon)
	lock.Unlock()
	if err != nil {
		s.metrics.CountSubmission("failed")
		return nil, &PersistenceError{Op: "upsert submission", Err: err}
	}

	if created {
		s.metrics.CountSubmission("created")
	} else {
		s.metrics.CountSubmission("merged")
	}

	if s.enricher != nil {
		input := enrich.Input{
			Text: cluster.Text,
			Lat:  cluster.Lat,
			Lon:  cluster.Lon,
		}
		if cluster.HazardType != nil {
			input.HazardType = *cluster.HazardType
		}
		if len(cluster.ImageRefs) > 0 {
			input.ImageRef = cluster.ImageRefs[0]
		}

		ann := s.enricher.Enrich(ctx, input)
		patch := db.AnnotationPatch{
			ConsistencyScore: ann.ConsistencyScore,
			SatelliteChange:  ann.SatelliteChange,
			StylometryFlag:   ann.StylometryFlag,
			ReasoningVerdict: ann.ReasoningVerdict,
		}
		if !patch.IsZero() {
			if err := s.store.UpdateClusterAnnotations(ctx, cluster.ClusterID, patch); err != nil {
				// The cluster itself is already durable; annotation loss is
				// the same degradation as a failed enrichment stage.
				s.logger.Error().Err(err).Int64("cluster_id", cluster.ClusterID).Msg("persist enrichment annotations failed")
			} else {
				applyAnnotations(cluster, patch)
			}
		}
	}

	eventType := events.TypeClusterMerged
	if created {
		eventType = events.TypeClusterCreated
	}
	s.publishEvent(ctx, events.ReportEvent{
		Type:        eventType,
		ClusterUUID: cluster.ClusterUUID,
		HazardType:  cluster.HazardType,
		Lat:         cluster.Lat,
		Lon:         cluster.Lon,
		OccurredAt:  globaltime.UTC(),
	})

	return cluster, nil
}

// ListPending returns one page of pending clusters, newest first. Page and
// limit are clamped rather than rejected.
func (s *Service) ListPending(ctx context.Context, page, limit int) (int64, []db.PendingCluster, int, int, error) {
	page, limit = ClampPagination(page, limit)

	total, items, err := s.store.ListPendingClusters(ctx, page, limit)
	if err != nil {
		return 0, nil, page, limit, &PersistenceError{Op: "list pending clusters", Err: err}
	}
	return total, items, page, limit, nil
}

// Promote moves a pending cluster to the immutable verified store. The copy
// always runs before the delete; a failed delete leaves a duplicate that the
// reconcile command cleans up, so it is flagged but not fatal.
func (s *Service) Promote(ctx context.Context, clusterUUID, validatedBy string) (*db.VerifiedRecord, error) {
	validatedBy = strings.TrimSpace(validatedBy)
	if validatedBy == "" {
		return nil, NewValidationError("validatedBy is required")
	}

	clusterUUID = strings.TrimSpace(clusterUUID)
	if !uuidPattern.MatchString(clusterUUID) {
		return nil, NewNotFoundError("report not found")
	}

	cluster, err := s.store.GetClusterByUUID(ctx, clusterUUID)
	if err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, NewNotFoundError("report not found")
		}
		return nil, &PersistenceError{Op: "load cluster", Err: err}
	}

	record, err := s.store.InsertVerifiedReport(ctx, cluster, validatedBy, globaltime.UTC())
	if err != nil {
		return nil, &PersistenceError{Op: "insert verified report", Err: err}
	}

	deleted, err := s.store.DeleteClusterByID(ctx, cluster.ClusterID)
	if err != nil || deleted == 0 {
		s.metrics.CountPromotionLeftover()
		s.logger.Error().
			Err(err).
			Int64("cluster_id", cluster.ClusterID).
			Str("cluster_uuid", cluster.ClusterUUID).
			Msg("pending cluster delete failed after verified copy; run reconcile")
	}

	s.metrics.CountPromotion()
	s.publishEvent(ctx, events.ReportEvent{
		Type:        events.TypeClusterPromoted,
		ClusterUUID: record.ClusterUUID,
		HazardType:  record.HazardType,
		Lat:         record.Lat,
		Lon:         record.Lon,
		ValidatedBy: record.ValidatedBy,
		OccurredAt:  record.ValidatedAt,
	})

	return record, nil
}

// ClampPagination applies the query service bounds: page >= 1, limit within
// [1, MaxPageLimit], defaulting when unset.
func ClampPagination(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

func applyAnnotations(cluster *db.PendingCluster, patch db.AnnotationPatch) {
	if patch.ConsistencyScore != nil {
		cluster.ConsistencyScore = patch.ConsistencyScore
	}
	if patch.SatelliteChange != nil {
		cluster.SatelliteChange = patch.SatelliteChange
	}
	if patch.StylometryFlag != nil {
		cluster.StylometryFlag = patch.StylometryFlag
	}
	if patch.ReasoningVerdict != nil {
		cluster.ReasoningVerdict = patch.ReasoningVerdict
	}
}

func (s *Service) publishEvent(ctx context.Context, event events.ReportEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", event.Type).Str("cluster_uuid", event.ClusterUUID).Msg("publish report event failed")
	}
}

// cellLock returns the mutex guarding the coordinate cell containing the
// point. Cells are 10 epsilon wide so a cluster and any submission within
// tolerance of its anchor almost always share a cell; the residual
// cross-boundary window is covered by the row lock inside UpsertSubmission.
func (s *Service) cellLock(lat, lon float64) *sync.Mutex {
	cell := s.epsilon * 10
	key := fmt.Sprintf("%d:%d", int64(math.Floor(lat/cell)), int64(math.Floor(lon/cell)))

	s.cellMu.Lock()
	defer s.cellMu.Unlock()
	lock, exists := s.cellLocks[key]
	if !exists {
		lock = &sync.Mutex{}
		s.cellLocks[key] = lock
	}
	return lock
}
