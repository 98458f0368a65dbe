package report

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tidewatch.in/hazard/internal/db"
	"tidewatch.in/hazard/internal/enrich"
	"tidewatch.in/hazard/internal/events"
)

type fakeStore struct {
	clusters        []*db.PendingCluster
	verified        []*db.VerifiedRecord
	nextClusterID   int64
	upsertCalls     int
	annotationCalls []db.AnnotationPatch
	annotationErr   error
	insertErr       error
	deleteErr       error
	deleteMissing   bool
	listErr         error
	listPage        int
	listLimit       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextClusterID: 1}
}

func (s *fakeStore) UpsertSubmission(_ context.Context, params db.SubmissionParams, epsilon float64) (*db.PendingCluster, bool, error) {
	s.upsertCalls++

	for _, cluster := range s.clusters {
		if math.Abs(cluster.Lat-params.Lat) <= epsilon && math.Abs(cluster.Lon-params.Lon) <= epsilon {
			cluster.Text = db.MergeText(cluster.Text, params.Text)
			cluster.ImageRefs = append(cluster.ImageRefs, params.ImageRefs...)
			cluster.VideoRefs = append(cluster.VideoRefs, params.VideoRefs...)
			cluster.UpdatedAt = cluster.UpdatedAt.Add(time.Second)
			copyCluster := *cluster
			return &copyCluster, false, nil
		}
	}

	cluster := &db.PendingCluster{
		ClusterID:   s.nextClusterID,
		ClusterUUID: fmt.Sprintf("00000000-0000-0000-0000-%012d", s.nextClusterID),
		HazardType:  params.HazardType,
		Text:        params.Text,
		ImageRefs:   append([]string{}, params.ImageRefs...),
		VideoRefs:   append([]string{}, params.VideoRefs...),
		Lat:         params.Lat,
		Lon:         params.Lon,
		CreatedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	s.nextClusterID++
	s.clusters = append(s.clusters, cluster)
	copyCluster := *cluster
	return &copyCluster, true, nil
}

func (s *fakeStore) UpdateClusterAnnotations(_ context.Context, clusterID int64, patch db.AnnotationPatch) error {
	s.annotationCalls = append(s.annotationCalls, patch)
	if s.annotationErr != nil {
		return s.annotationErr
	}
	for _, cluster := range s.clusters {
		if cluster.ClusterID == clusterID {
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
			return nil
		}
	}
	return db.ErrNoRows
}

func (s *fakeStore) ListPendingClusters(_ context.Context, page, limit int) (int64, []db.PendingCluster, error) {
	s.listPage = page
	s.listLimit = limit
	if s.listErr != nil {
		return 0, nil, s.listErr
	}

	items := make([]db.PendingCluster, 0, len(s.clusters))
	for _, cluster := range s.clusters {
		items = append(items, *cluster)
	}
	return int64(len(s.clusters)), items, nil
}

func (s *fakeStore) GetClusterByUUID(_ context.Context, clusterUUID string) (*db.PendingCluster, error) {
	for _, cluster := range s.clusters {
		if cluster.ClusterUUID == clusterUUID {
			copyCluster := *cluster
			return &copyCluster, nil
		}
	}
	return nil, db.ErrNoRows
}

func (s *fakeStore) InsertVerifiedReport(_ context.Context, cluster *db.PendingCluster, validatedBy string, validatedAt time.Time) (*db.VerifiedRecord, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	record := &db.VerifiedRecord{
		VerifiedID:       int64(len(s.verified) + 1),
		ClusterUUID:      cluster.ClusterUUID,
		HazardType:       cluster.HazardType,
		Text:             cluster.Text,
		ImageRefs:        append([]string{}, cluster.ImageRefs...),
		VideoRefs:        append([]string{}, cluster.VideoRefs...),
		Lat:              cluster.Lat,
		Lon:              cluster.Lon,
		ConsistencyScore: cluster.ConsistencyScore,
		SatelliteChange:  cluster.SatelliteChange,
		StylometryFlag:   cluster.StylometryFlag,
		ReasoningVerdict: cluster.ReasoningVerdict,
		ReportedAt:       cluster.CreatedAt,
		ValidatedBy:      validatedBy,
		ValidatedAt:      validatedAt,
	}
	s.verified = append(s.verified, record)
	return record, nil
}

func (s *fakeStore) DeleteClusterByID(_ context.Context, clusterID int64) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	if s.deleteMissing {
		return 0, nil
	}
	for i, cluster := range s.clusters {
		if cluster.ClusterID == clusterID {
			s.clusters = append(s.clusters[:i], s.clusters[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

type fakeEnricher struct {
	annotations enrich.Annotations
	calls       []enrich.Input
}

func (e *fakeEnricher) Enrich(_ context.Context, input enrich.Input) enrich.Annotations {
	e.calls = append(e.calls, input)
	return e.annotations
}

type recordingPublisher struct {
	events []events.ReportEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.ReportEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func newTestService(store *fakeStore, enricher Enricher, publisher events.Publisher) *Service {
	return NewService(Options{
		Store:     store,
		Enricher:  enricher,
		Publisher: publisher,
		Logger:    zerolog.Nop(),
		Epsilon:   0.001,
	})
}

func submitRaw(t *testing.T, svc *Service, text string, lat, lon float64) *db.PendingCluster {
	t.Helper()
	cluster, err := svc.Submit(context.Background(), RawSubmission{
		Text: text,
		Lat:  floatPtr(lat),
		Lon:  floatPtr(lon),
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	return cluster
}

func TestSubmit_NearbyReportsMergeIntoOneCluster(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	first := submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)
	second := submitRaw(t, svc, "Water entering houses", 13.0803, 80.2699)

	if first.ClusterUUID != second.ClusterUUID {
		t.Fatalf("expected one cluster, got %q and %q", first.ClusterUUID, second.ClusterUUID)
	}
	if len(store.clusters) != 1 {
		t.Fatalf("expected 1 stored cluster, got %d", len(store.clusters))
	}
	want := "Flooding near the beach | Water entering houses"
	if second.Text != want {
		t.Fatalf("merged text = %q, want %q", second.Text, want)
	}
}

func TestSubmit_DistantReportCreatesNewCluster(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)
	other := submitRaw(t, svc, "Cyclone damage", 13.0950, 80.2701)

	if len(store.clusters) != 2 {
		t.Fatalf("expected 2 stored clusters, got %d", len(store.clusters))
	}
	if other.Text != "Cyclone damage" {
		t.Fatalf("unexpected text: %q", other.Text)
	}
}

func TestSubmit_MediaRefsOnlyGrow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	submit := func(imageRef string) *db.PendingCluster {
		cluster, err := svc.Submit(context.Background(), RawSubmission{
			Text:      "waves",
			Lat:       floatPtr(8.5),
			Lon:       floatPtr(76.9),
			ImageRefs: []string{imageRef},
		})
		if err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
		return cluster
	}

	submit("a.jpg")
	merged := submit("b.jpg")

	if len(merged.ImageRefs) != 2 || merged.ImageRefs[0] != "a.jpg" || merged.ImageRefs[1] != "b.jpg" {
		t.Fatalf("unexpected image refs: %v", merged.ImageRefs)
	}
}

func TestSubmit_EnrichmentAnnotationsPersisted(t *testing.T) {
	t.Parallel()

	score := 0.91
	verdict := "likely genuine"
	store := newFakeStore()
	enricher := &fakeEnricher{annotations: enrich.Annotations{
		ConsistencyScore: &score,
		ReasoningVerdict: &verdict,
	}}
	svc := newTestService(store, enricher, nil)

	cluster := submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)

	if len(enricher.calls) != 1 {
		t.Fatalf("expected 1 enrich call, got %d", len(enricher.calls))
	}
	if cluster.ConsistencyScore == nil || *cluster.ConsistencyScore != score {
		t.Fatalf("unexpected consistency score: %v", cluster.ConsistencyScore)
	}
	if cluster.ReasoningVerdict == nil || *cluster.ReasoningVerdict != verdict {
		t.Fatalf("unexpected verdict: %v", cluster.ReasoningVerdict)
	}
	if cluster.SatelliteChange != nil || cluster.StylometryFlag != nil {
		t.Fatalf("expected absent annotations to stay nil")
	}
	if len(store.annotationCalls) != 1 {
		t.Fatalf("expected 1 annotation write, got %d", len(store.annotationCalls))
	}
}

func TestSubmit_AnnotationWriteFailureDoesNotFailSubmission(t *testing.T) {
	t.Parallel()

	score := 0.5
	store := newFakeStore()
	store.annotationErr = errors.New("connection reset")
	enricher := &fakeEnricher{annotations: enrich.Annotations{ConsistencyScore: &score}}
	svc := newTestService(store, enricher, nil)

	cluster := submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)

	if cluster.ConsistencyScore != nil {
		t.Fatalf("expected annotation to stay nil when the write failed")
	}
}

func TestSubmit_EmptyAnnotationsSkipWrite(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, &fakeEnricher{}, nil)

	submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)

	if len(store.annotationCalls) != 0 {
		t.Fatalf("expected no annotation writes, got %d", len(store.annotationCalls))
	}
}

func TestSubmit_PublishesLifecycleEvents(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	publisher := &recordingPublisher{}
	svc := newTestService(store, nil, publisher)

	submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)
	submitRaw(t, svc, "Water entering houses", 13.0803, 80.2699)

	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(publisher.events))
	}
	if publisher.events[0].Type != events.TypeClusterCreated {
		t.Fatalf("first event = %q, want %q", publisher.events[0].Type, events.TypeClusterCreated)
	}
	if publisher.events[1].Type != events.TypeClusterMerged {
		t.Fatalf("second event = %q, want %q", publisher.events[1].Type, events.TypeClusterMerged)
	}
}

func TestSubmit_PublishFailureIsAbsorbed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	publisher := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(store, nil, publisher)

	if cluster := submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701); cluster == nil {
		t.Fatal("expected cluster despite publish failure")
	}
}

func TestSubmit_InvalidSubmissionRejected(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	_, err := svc.Submit(context.Background(), RawSubmission{Text: "no coordinates"})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.upsertCalls != 0 {
		t.Fatalf("expected no store calls, got %d", store.upsertCalls)
	}
}

func TestListPending_ClampsPagination(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		page      int
		limit     int
		wantPage  int
		wantLimit int
	}{
		{name: "defaults", page: 0, limit: 0, wantPage: 1, wantLimit: DefaultPageLimit},
		{name: "negative page", page: -3, limit: 10, wantPage: 1, wantLimit: 10},
		{name: "limit high", page: 2, limit: 500, wantPage: 2, wantLimit: MaxPageLimit},
		{name: "in range", page: 3, limit: 50, wantPage: 3, wantLimit: 50},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			svc := newTestService(store, nil, nil)

			_, _, page, limit, err := svc.ListPending(context.Background(), tc.page, tc.limit)
			if err != nil {
				t.Fatalf("ListPending returned error: %v", err)
			}
			if page != tc.wantPage || limit != tc.wantLimit {
				t.Fatalf("got page=%d limit=%d, want page=%d limit=%d", page, limit, tc.wantPage, tc.wantLimit)
			}
			if store.listPage != tc.wantPage || store.listLimit != tc.wantLimit {
				t.Fatalf("store saw page=%d limit=%d", store.listPage, store.listLimit)
			}
		})
	}
}

func TestPromote_MovesClusterToVerified(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	publisher := &recordingPublisher{}
	svc := newTestService(store, nil, publisher)

	cluster := submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)

	record, err := svc.Promote(context.Background(), cluster.ClusterUUID, "reviewer-7")
	if err != nil {
		t.Fatalf("Promote returned error: %v", err)
	}
	if record.ClusterUUID != cluster.ClusterUUID {
		t.Fatalf("verified uuid = %q, want %q", record.ClusterUUID, cluster.ClusterUUID)
	}
	if record.Text != cluster.Text {
		t.Fatalf("verified text = %q, want %q", record.Text, cluster.Text)
	}
	if record.ReportedAt != cluster.CreatedAt {
		t.Fatalf("reportedAt = %v, want cluster createdAt %v", record.ReportedAt, cluster.CreatedAt)
	}
	if record.ValidatedBy != "reviewer-7" {
		t.Fatalf("validatedBy = %q", record.ValidatedBy)
	}
	if len(store.clusters) != 0 {
		t.Fatalf("expected pending cluster removed, %d remain", len(store.clusters))
	}

	last := publisher.events[len(publisher.events)-1]
	if last.Type != events.TypeClusterPromoted {
		t.Fatalf("last event = %q, want %q", last.Type, events.TypeClusterPromoted)
	}
}

func TestPromote_SecondAttemptReturnsNotFound(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	cluster := submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)

	if _, err := svc.Promote(context.Background(), cluster.ClusterUUID, "reviewer-7"); err != nil {
		t.Fatalf("first promote failed: %v", err)
	}
	_, err := svc.Promote(context.Background(), cluster.ClusterUUID, "reviewer-7")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPromote_RequiresValidator(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeStore(), nil, nil)

	_, err := svc.Promote(context.Background(), "00000000-0000-0000-0000-000000000001", "   ")
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "validatedBy") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestPromote_MalformedUUIDIsNotFound(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeStore(), nil, nil)

	_, err := svc.Promote(context.Background(), "not-a-uuid", "reviewer-7")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPromote_InsertFailureLeavesPendingIntact(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	cluster := submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)
	store.insertErr = errors.New("disk full")

	_, err := svc.Promote(context.Background(), cluster.ClusterUUID, "reviewer-7")
	if !IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(store.clusters) != 1 {
		t.Fatalf("pending cluster must survive a failed copy, %d remain", len(store.clusters))
	}
}

func TestPromote_DeleteFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, nil, nil)

	cluster := submitRaw(t, svc, "Flooding near the beach", 13.0801, 80.2701)
	store.deleteErr = errors.New("connection reset")

	record, err := svc.Promote(context.Background(), cluster.ClusterUUID, "reviewer-7")
	if err != nil {
		t.Fatalf("Promote returned error: %v", err)
	}
	if record == nil || len(store.verified) != 1 {
		t.Fatalf("expected verified record despite delete failure")
	}
	// The leftover pending row is reconciled out of band.
	if len(store.clusters) != 1 {
		t.Fatalf("expected leftover pending cluster, got %d", len(store.clusters))
	}
}
