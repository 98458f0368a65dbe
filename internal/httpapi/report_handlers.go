package httpapi

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"tidewatch.in/hazard/internal/db"
	"tidewatch.in/hazard/internal/report"
	"tidewatch.in/hazard/internal/schema"
)

const maxSubmissionBody = 1 << 20 // JSON bodies only; multipart streams to the media store

type reportService interface {
	Submit(ctx context.Context, raw report.RawSubmission) (*db.PendingCluster, error)
	ListPending(ctx context.Context, page, limit int) (int64, []db.PendingCluster, int, int, error)
	Promote(ctx context.Context, clusterUUID, validatedBy string) (*db.VerifiedRecord, error)
}

type messageResponse struct {
	Message string `json:"message"`
}

type messageDataResponse struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type clusterResponse struct {
	ID               string    `json:"id"`
	HazardType       *string   `json:"hazardType,omitempty"`
	Text             string    `json:"text"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	ImageURLs        []string  `json:"image_url"`
	VideoURLs        []string  `json:"video_url"`
	ConsistencyScore *float64  `json:"consistency_score,omitempty"`
	SatelliteChange  *bool     `json:"satellite_change,omitempty"`
	StylometryFlag   *bool     `json:"stylometry_flag,omitempty"`
	ReasoningVerdict *string   `json:"reasoning_verdict,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type verifiedResponse struct {
	ID               string    `json:"id"`
	HazardType       *string   `json:"hazardType,omitempty"`
	Text             string    `json:"text"`
	Lat              float64   `json:"lat"`
	Lon              float64   `json:"lon"`
	ImageURLs        []string  `json:"image_url"`
	VideoURLs        []string  `json:"video_url"`
	ConsistencyScore *float64  `json:"consistency_score,omitempty"`
	SatelliteChange  *bool     `json:"satellite_change,omitempty"`
	StylometryFlag   *bool     `json:"stylometry_flag,omitempty"`
	ReasoningVerdict *string   `json:"reasoning_verdict,omitempty"`
	ReportedAt       time.Time `json:"reportedAt"`
	ValidatedBy      string    `json:"validatedBy"`
	ValidatedAt      time.Time `json:"validatedAt"`
}

type paginationResponse struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type reportListResponse struct {
	Data       []clusterResponse  `json:"data"`
	Pagination paginationResponse `json:"pagination"`
}

type verifyRequest struct {
	ValidatedBy string `json:"validatedBy"`
}

func (s *Server) handleSubmitReport(c echo.Context) error {
	raw, err := s.decodeSubmission(c)
	if err != nil {
		return s.mapServiceError(c, err)
	}

	cluster, err := s.service.Submit(c.Request().Context(), *raw)
	if err != nil {
		return s.mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, messageDataResponse{
		Message: "Report submitted successfully",
		Data:    s.toClusterResponse(c, cluster),
	})
}

func (s *Server) handleListReports(c echo.Context) error {
	page := parseClampedInt(c.QueryParam("page"), 1)
	limit := parseClampedInt(c.QueryParam("limit"), report.DefaultPageLimit)

	total, items, page, limit, err := s.service.ListPending(c.Request().Context(), page, limit)
	if err != nil {
		return s.mapServiceError(c, err)
	}

	data := make([]clusterResponse, 0, len(items))
	for i := range items {
		data = append(data, s.toClusterResponse(c, &items[i]))
	}

	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return c.JSON(http.StatusOK, reportListResponse{
		Data: data,
		Pagination: paginationResponse{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

func (s *Server) handleVerifyReport(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "invalid request body"})
	}

	record, err := s.service.Promote(c.Request().Context(), c.Param("id"), req.ValidatedBy)
	if err != nil {
		return s.mapServiceError(c, err)
	}

	return c.JSON(http.StatusOK, messageDataResponse{
		Message: "Report verified successfully",
		Data:    s.toVerifiedResponse(c, record),
	})
}

// decodeSubmission accepts either a JSON body with pre-resolved media
// identifiers or a multipart form whose file parts are resolved into
// identifiers through the media store.
func (s *Server) decodeSubmission(c echo.Context) (*report.RawSubmission, error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		return s.decodeMultipartSubmission(c)
	}
	return decodeJSONSubmission(c)
}

func decodeJSONSubmission(c echo.Context) (*report.RawSubmission, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSubmissionBody))
	if err != nil {
		return nil, report.NewValidationError("unable to read request body")
	}

	payload, err := schema.ValidateSubmissionPayload(body)
	if err != nil {
		return nil, report.NewValidationError(err.Error())
	}

	return &report.RawSubmission{
		HazardType: payload.HazardType,
		Text:       payload.Text,
		Lat:        payload.Lat,
		Lon:        payload.Lon,
		ImageRefs:  payload.Image,
		VideoRefs:  payload.Video,
	}, nil
}

func (s *Server) decodeMultipartSubmission(c echo.Context) (*report.RawSubmission, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, report.NewValidationError("invalid multipart form")
	}

	raw := &report.RawSubmission{
		HazardType: c.FormValue("hazardType"),
		Text:       c.FormValue("text"),
		Lat:        report.ParseCoordinate(c.FormValue("lat")),
		Lon:        report.ParseCoordinate(c.FormValue("lon")),
	}

	if raw.ImageRefs, err = s.storeUploads(form.File["image"]); err != nil {
		return nil, err
	}
	if raw.VideoRefs, err = s.storeUploads(form.File["video"]); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Server) storeUploads(files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if s.media == nil {
		return nil, report.NewValidationError("media uploads are not supported")
	}

	refs := make([]string, 0, len(files))
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			return nil, report.NewValidationError("unable to read uploaded file")
		}
		identifier, err := s.media.Save(fh.Filename, src)
		_ = src.Close()
		if err != nil {
			s.logger.Error().Err(err).Str("filename", fh.Filename).Msg("store upload failed")
			return nil, &report.PersistenceError{Op: "store upload", Err: err}
		}
		refs = append(refs, identifier)
	}
	return refs, nil
}

func (s *Server) mapServiceError(c echo.Context, err error) error {
	switch {
	case report.IsValidation(err):
		return c.JSON(http.StatusBadRequest, messageResponse{Message: err.Error()})
	case report.IsNotFound(err):
		return c.JSON(http.StatusNotFound, messageResponse{Message: err.Error()})
	default:
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Server error"})
	}
}

// mediaURL materializes a stored identifier into an absolute URL from the
// caller-observed origin. Identifiers are never stored as absolute URLs so
// the service stays portable across hostnames.
func (s *Server) mediaURL(c echo.Context, identifier string) string {
	return c.Scheme() + "://" + c.Request().Host + s.opts.MediaPathPrefix + "/" + identifier
}

func (s *Server) materializeRefs(c echo.Context, refs []string) []string {
	urls := make([]string, 0, len(refs))
	for _, ref := range refs {
		urls = append(urls, s.mediaURL(c, ref))
	}
	return urls
}

func (s *Server) toClusterResponse(c echo.Context, cluster *db.PendingCluster) clusterResponse {
	return clusterResponse{
		ID:               cluster.ClusterUUID,
		HazardType:       cluster.HazardType,
		Text:             cluster.Text,
		Lat:              cluster.Lat,
		Lon:              cluster.Lon,
		ImageURLs:        s.materializeRefs(c, cluster.ImageRefs),
		VideoURLs:        s.materializeRefs(c, cluster.VideoRefs),
		ConsistencyScore: cluster.ConsistencyScore,
		SatelliteChange:  cluster.SatelliteChange,
		StylometryFlag:   cluster.StylometryFlag,
		ReasoningVerdict: cluster.ReasoningVerdict,
		CreatedAt:        cluster.CreatedAt,
		UpdatedAt:        cluster.UpdatedAt,
	}
}

func (s *Server) toVerifiedResponse(c echo.Context, record *db.VerifiedRecord) verifiedResponse {
	return verifiedResponse{
		ID:               record.ClusterUUID,
		HazardType:       record.HazardType,
		Text:             record.Text,
		Lat:              record.Lat,
		Lon:              record.Lon,
		ImageURLs:        s.materializeRefs(c, record.ImageRefs),
		VideoURLs:        s.materializeRefs(c, record.VideoRefs),
		ConsistencyScore: record.ConsistencyScore,
		SatelliteChange:  record.SatelliteChange,
		StylometryFlag:   record.StylometryFlag,
		ReasoningVerdict: record.ReasoningVerdict,
		ReportedAt:       record.ReportedAt,
		ValidatedBy:      record.ValidatedBy,
		ValidatedAt:      record.ValidatedAt,
	}
}
