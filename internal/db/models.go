package db

import (
	"encoding/json"
	"time"
)

// PendingReportCluster maps hazard.pending_report_clusters. One row per
// distinct incident location while unverified. The lat/lon anchor is fixed at
// creation; proximity matching always runs against the anchor, never a
// recomputed centroid.
type PendingReportCluster struct {
	ClusterID   int64   `gorm:"column:cluster_id;primaryKey;autoIncrement"`
	ClusterUUID string  `gorm:"column:cluster_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	HazardType  *string `gorm:"column:hazard_type;type:text"`
	Text        string  `gorm:"column:text;type:text;not null;default:''"`

	// Ordered, append-only sequences of stable media identifiers.
	ImageRefs json.RawMessage `gorm:"column:image_refs;type:jsonb;not null;default:'[]'"`
	VideoRefs json.RawMessage `gorm:"column:video_refs;type:jsonb;not null;default:'[]'"`

	Lat float64 `gorm:"column:lat;type:double precision;not null"`
	Lon float64 `gorm:"column:lon;type:double precision;not null"`

	// Enrichment annotations. NULL means "inconclusive or not attempted",
	// which is distinct from a stored false.
	ConsistencyScore *float64 `gorm:"column:consistency_score;type:double precision"`
	SatelliteChange  *bool    `gorm:"column:satellite_change;type:boolean"`
	StylometryFlag   *bool    `gorm:"column:stylometry_flag;type:boolean"`
	ReasoningVerdict *string  `gorm:"column:reasoning_verdict;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (PendingReportCluster) TableName() string { return "hazard.pending_report_clusters" }

// VerifiedReport maps hazard.verified_reports. Immutable snapshot of a
// pending cluster at the moment of promotion. The source cluster_uuid is
// retained so a crash between copy and delete can be reconciled.
type VerifiedReport struct {
	VerifiedID  int64   `gorm:"column:verified_id;primaryKey;autoIncrement"`
	ClusterUUID string  `gorm:"column:cluster_uuid;type:uuid;not null;unique"`
	HazardType  *string `gorm:"column:hazard_type;type:text"`
	Text        string  `gorm:"column:text;type:text;not null;default:''"`

	ImageRefs json.RawMessage `gorm:"column:image_refs;type:jsonb;not null;default:'[]'"`
	VideoRefs json.RawMessage `gorm:"column:video_refs;type:jsonb;not null;default:'[]'"`

	Lat float64 `gorm:"column:lat;type:double precision;not null"`
	Lon float64 `gorm:"column:lon;type:double precision;not null"`

	ConsistencyScore *float64 `gorm:"column:consistency_score;type:double precision"`
	SatelliteChange  *bool    `gorm:"column:satellite_change;type:boolean"`
	StylometryFlag   *bool    `gorm:"column:stylometry_flag;type:boolean"`
	ReasoningVerdict *string  `gorm:"column:reasoning_verdict;type:text"`

	ReportedAt  time.Time `gorm:"column:reported_at;type:timestamptz;not null"`
	ValidatedBy string    `gorm:"column:validated_by;type:text;not null"`
	ValidatedAt time.Time `gorm:"column:validated_at;type:timestamptz;not null;default:now()"`
}

func (VerifiedReport) TableName() string { return "hazard.verified_reports" }

func autoMigrateModels() []any {
	return []any{
		&PendingReportCluster{},
		&VerifiedReport{},
	}
}
