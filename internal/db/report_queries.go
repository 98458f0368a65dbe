package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PendingCluster is the read model for a pending report cluster.
type PendingCluster struct {
	ClusterID        int64     `json:"cluster_id"`
	ClusterUUID      string    `json:"cluster_uuid"`
	HazardType       *string   `json:"hazard_type,omitempty"`
	Text             string    `json:"text"`
	ImageRefs        []string  `json:"image_refs"`
	VideoRefs        []string  `json:"video_refs"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	ConsistencyScore *float64  `json:"consistency_score,omitempty"`
	SatelliteChange  *bool     `json:"satellite_change,omitempty"`
	StylometryFlag   *bool     `json:"stylometry_flag,omitempty"`
	ReasoningVerdict *string   `json:"reasoning_verdict,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// VerifiedRecord is the read model for a promoted, immutable verified report.
type VerifiedRecord struct {
	VerifiedID       int64     `json:"verified_id"`
	ClusterUUID      string    `json:"cluster_uuid"`
	HazardType       *string   `json:"hazard_type,omitempty"`
	Text             string    `json:"text"`
	ImageRefs        []string  `json:"image_refs"`
	VideoRefs        []string  `json:"video_refs"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	ConsistencyScore *float64  `json:"consistency_score,omitempty"`
	SatelliteChange  *bool     `json:"satellite_change,omitempty"`
	StylometryFlag   *bool     `json:"stylometry_flag,omitempty"`
	ReasoningVerdict *string   `json:"reasoning_verdict,omitempty"`
	ReportedAt       time.Time `json:"reported_at"`
	ValidatedBy      string    `json:"validated_by"`
	ValidatedAt      time.Time `json:"validated_at"`
}

// SubmissionParams carries one normalized submission into the store.
type SubmissionParams struct {
	HazardType *string
	Text       string
	ImageRefs  []string
	VideoRefs  []string
	Lat        float64
	Lon        float64
}

// AnnotationPatch updates only the enrichment fields that carry a value.
// Nil fields leave the stored annotation untouched.
type AnnotationPatch struct {
	ConsistencyScore *float64
	SatelliteChange  *bool
	StylometryFlag   *bool
	ReasoningVerdict *string
}

func (p AnnotationPatch) IsZero() bool {
	return p.ConsistencyScore == nil && p.SatelliteChange == nil &&
		p.StylometryFlag == nil && p.ReasoningVerdict == nil
}

const pendingClusterColumns = `
	cluster_id,
	cluster_uuid::text,
	hazard_type,
	text,
	image_refs,
	video_refs,
	lat,
	lon,
	consistency_score,
	satellite_change,
	stylometry_flag,
	reasoning_verdict,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingCluster(row rowScanner) (*PendingCluster, error) {
	var (
		cluster      PendingCluster
		imageRefsRaw []byte
		videoRefsRaw []byte
	)
	if err := row.Scan(
		&cluster.ClusterID,
		&cluster.ClusterUUID,
		&cluster.HazardType,
		&cluster.Text,
		&imageRefsRaw,
		&videoRefsRaw,
		&cluster.Lat,
		&cluster.Lon,
		&cluster.ConsistencyScore,
		&cluster.SatelliteChange,
		&cluster.StylometryFlag,
		&cluster.ReasoningVerdict,
		&cluster.CreatedAt,
		&cluster.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if cluster.ImageRefs, err = decodeRefs(imageRefsRaw); err != nil {
		return nil, fmt.Errorf("decode image refs: %w", err)
	}
	if cluster.VideoRefs, err = decodeRefs(videoRefsRaw); err != nil {
		return nil, fmt.Errorf("decode video refs: %w", err)
	}
	return &cluster, nil
}

func decodeRefs(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var refs []string
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []string{}
	}
	return refs, nil
}

func encodeRefs(refs []string) (string, error) {
	if refs == nil {
		refs = []string{}
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("encode media refs: %w", err)
	}
	return string(encoded), nil
}

// UpsertSubmission applies one submission as a single conditional upsert:
// inside one transaction it locks and matches the nearest pending cluster
// whose anchor lies within epsilon degrees on both axes, then either appends
// the submission to it or creates a new cluster. When several clusters
// satisfy the predicate the oldest one wins, which keeps selection
// deterministic for a given data snapshot.
//
// Returns the resulting cluster and whether it was newly created.
func (p *Pool) UpsertSubmission(ctx context.Context, params SubmissionParams, epsilon float64) (*PendingCluster, bool, error) {
	if epsilon <= 0 {
		return nil, false, fmt.Errorf("epsilon must be > 0")
	}

	imageRefsJSON, err := encodeRefs(params.ImageRefs)
	if err != nil {
		return nil, false, err
	}
	videoRefsJSON, err := encodeRefs(params.VideoRefs)
	if err != nil {
		return nil, false, err
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("begin submission transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	const matchQuery = `
SELECT` + pendingClusterColumns + `
FROM hazard.pending_report_clusters
WHERE lat BETWEEN $1 - $3 AND $1 + $3
  AND lon BETWEEN $2 - $3 AND $2 + $3
ORDER BY created_at ASC, cluster_id ASC
LIMIT 1
FOR UPDATE
`

	match, err := scanPendingCluster(tx.QueryRow(ctx, matchQuery, params.Lat, params.Lon, epsilon))
	if err != nil && !IsNoRows(err) {
		return nil, false, fmt.Errorf("match pending cluster: %w", err)
	}

	var cluster *PendingCluster
	created := false

	if match != nil {
		mergedText := MergeText(match.Text, params.Text)

		const mergeQuery = `
UPDATE hazard.pending_report_clusters
SET text = $2,
	image_refs = image_refs || $3::jsonb,
	video_refs = video_refs || $4::jsonb,
	updated_at = now()
WHERE cluster_id = $1
RETURNING` + pendingClusterColumns + `
`
		cluster, err = scanPendingCluster(tx.QueryRow(ctx, mergeQuery, match.ClusterID, mergedText, imageRefsJSON, videoRefsJSON))
		if err != nil {
			return nil, false, fmt.Errorf("merge submission into cluster %d: %w", match.ClusterID, err)
		}
	} else {
		const createQuery = `
INSERT INTO hazard.pending_report_clusters
	(hazard_type, text, image_refs, video_refs, lat, lon, created_at, updated_at)
VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, now(), now())
RETURNING` + pendingClusterColumns + `
`
		cluster, err = scanPendingCluster(tx.QueryRow(ctx, createQuery, params.HazardType, params.Text, imageRefsJSON, videoRefsJSON, params.Lat, params.Lon))
		if err != nil {
			return nil, false, fmt.Errorf("create pending cluster: %w", err)
		}
		created = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit submission transaction: %w", err)
	}
	committed = true

	return cluster, created, nil
}

// MergeText joins existing and incoming free text with the cluster delimiter.
// Order of arrival is preserved; when either side is empty the other wins.
func MergeText(existing, incoming string) string {
	switch {
	case existing == "":
		return incoming
	case incoming == "":
		return existing
	default:
		return existing + " | " + incoming
	}
}

// UpdateClusterAnnotations persists the enrichment annotations present in the
// patch. Absent annotations never overwrite previously stored ones.
func (p *Pool) UpdateClusterAnnotations(ctx context.Context, clusterID int64, patch AnnotationPatch) error {
	if patch.IsZero() {
		return nil
	}

	const q = `
UPDATE hazard.pending_report_clusters
SET consistency_score = COALESCE($2, consistency_score),
	satellite_change = COALESCE($3, satellite_change),
	stylometry_flag = COALESCE($4, stylometry_flag),
	reasoning_verdict = COALESCE($5, reasoning_verdict)
WHERE cluster_id = $1
`
	tag, err := p.Exec(ctx, q, clusterID, patch.ConsistencyScore, patch.SatelliteChange, patch.StylometryFlag, patch.ReasoningVerdict)
	if err != nil {
		return fmt.Errorf("update cluster annotations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNoRows
	}
	return nil
}

// ListPendingClusters returns one page of pending clusters, newest first.
func (p *Pool) ListPendingClusters(ctx context.Context, page, limit int) (int64, []PendingCluster, error) {
	if page < 1 || limit < 1 {
		return 0, nil, fmt.Errorf("page and limit must be >= 1")
	}

	var total int64
	if err := p.QueryRow(ctx, `SELECT COUNT(*) FROM hazard.pending_report_clusters`).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count pending clusters: %w", err)
	}

	const q = `
SELECT` + pendingClusterColumns + `
FROM hazard.pending_report_clusters
ORDER BY created_at DESC, cluster_id DESC
LIMIT $1
OFFSET $2
`
	rows, err := p.Query(ctx, q, limit, (page-1)*limit)
	if err != nil {
		return 0, nil, fmt.Errorf("query pending clusters: %w", err)
	}
	defer rows.Close()

	items := make([]PendingCluster, 0, limit)
	for rows.Next() {
		cluster, err := scanPendingCluster(rows)
		if err != nil {
			return 0, nil, fmt.Errorf("scan pending cluster: %w", err)
		}
		items = append(items, *cluster)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterate pending clusters: %w", err)
	}

	return total, items, nil
}

// GetClusterByUUID fetches one pending cluster by its stable public id.
func (p *Pool) GetClusterByUUID(ctx context.Context, clusterUUID string) (*PendingCluster, error) {
	const q = `
SELECT` + pendingClusterColumns + `
FROM hazard.pending_report_clusters
WHERE cluster_uuid = $1::uuid
`
	cluster, err := scanPendingCluster(p.QueryRow(ctx, q, clusterUUID))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query cluster %s: %w", clusterUUID, err)
	}
	return cluster, nil
}

// InsertVerifiedReport snapshots a pending cluster into the immutable
// verified store. The caller stamps reviewer identity and validation time.
func (p *Pool) InsertVerifiedReport(ctx context.Context, cluster *PendingCluster, validatedBy string, validatedAt time.Time) (*VerifiedRecord, error) {
	if cluster == nil {
		return nil, fmt.Errorf("cluster is nil")
	}

	imageRefsJSON, err := encodeRefs(cluster.ImageRefs)
	if err != nil {
		return nil, err
	}
	videoRefsJSON, err := encodeRefs(cluster.VideoRefs)
	if err != nil {
		return nil, err
	}

	const q = `
INSERT INTO hazard.verified_reports
	(cluster_uuid, hazard_type, text, image_refs, video_refs, lat, lon,
	 consistency_score, satellite_change, stylometry_flag, reasoning_verdict,
	 reported_at, validated_by, validated_at)
VALUES ($1::uuid, $2, $3, $4::jsonb, $5::jsonb, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING
	verified_id,
	cluster_uuid::text,
	hazard_type,
	text,
	image_refs,
	video_refs,
	lat,
	lon,
	consistency_score,
	satellite_change,
	stylometry_flag,
	reasoning_verdict,
	reported_at,
	validated_by,
	validated_at
`

	var (
		record       VerifiedRecord
		imageRefsRaw []byte
		videoRefsRaw []byte
	)
	if err := p.QueryRow(ctx, q,
		cluster.ClusterUUID,
		cluster.HazardType,
		cluster.Text,
		imageRefsJSON,
		videoRefsJSON,
		cluster.Lat,
		cluster.Lon,
		cluster.ConsistencyScore,
		cluster.SatelliteChange,
		cluster.StylometryFlag,
		cluster.ReasoningVerdict,
		cluster.CreatedAt,
		validatedBy,
		validatedAt,
	).Scan(
		&record.VerifiedID,
		&record.ClusterUUID,
		&record.HazardType,
		&record.Text,
		&imageRefsRaw,
		&videoRefsRaw,
		&record.Lat,
		&record.Lon,
		&record.ConsistencyScore,
		&record.SatelliteChange,
		&record.StylometryFlag,
		&record.ReasoningVerdict,
		&record.ReportedAt,
		&record.ValidatedBy,
		&record.ValidatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert verified report: %w", err)
	}

	if record.ImageRefs, err = decodeRefs(imageRefsRaw); err != nil {
		return nil, fmt.Errorf("decode image refs: %w", err)
	}
	if record.VideoRefs, err = decodeRefs(videoRefsRaw); err != nil {
		return nil, fmt.Errorf("decode video refs: %w", err)
	}

	return &record, nil
}

// DeleteClusterByID removes a pending cluster. Returns the rows removed so
// callers can detect an already-deleted source.
func (p *Pool) DeleteClusterByID(ctx context.Context, clusterID int64) (int64, error) {
	tag, err := p.Exec(ctx, `DELETE FROM hazard.pending_report_clusters WHERE cluster_id = $1`, clusterID)
	if err != nil {
		return 0, fmt.Errorf("delete pending cluster %d: %w", clusterID, err)
	}
	return tag.RowsAffected(), nil
}

// DeletePromotedPending removes pending clusters that already have a verified
// snapshot. This reconciles the duplicate state left by a crash between the
// promotion copy and delete steps.
func (p *Pool) DeletePromotedPending(ctx context.Context) (int64, error) {
	const q = `
DELETE FROM hazard.pending_report_clusters p
USING hazard.verified_reports v
WHERE v.cluster_uuid = p.cluster_uuid
`
	tag, err := p.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("delete promoted pending clusters: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountPromotedPending reports how many pending clusters a reconcile run
// would remove.
func (p *Pool) CountPromotedPending(ctx context.Context) (int64, error) {
	const q = `
SELECT COUNT(*)
FROM hazard.pending_report_clusters p
JOIN hazard.verified_reports v ON v.cluster_uuid = p.cluster_uuid
`
	var count int64
	if err := p.QueryRow(ctx, q).Scan(&count); err != nil {
		return 0, fmt.Errorf("count promoted pending clusters: %w", err)
	}
	return count, nil
}
