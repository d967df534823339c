package handlers

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-importer/internal/api/dto"
	"github.com/spec-kit/ticket-importer/internal/auth"
	"github.com/spec-kit/ticket-importer/internal/domain"
	"github.com/spec-kit/ticket-importer/internal/importer"
	apperrors "github.com/spec-kit/ticket-importer/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ImportAPI is the service behind the import endpoints.
type ImportAPI interface {
	Submit(ctx context.Context, filename string, content io.Reader, submittedBy string) (domain.JobStatus, error)
	Status(ctx context.Context, jobID string) (domain.JobStatus, error)
	Result(ctx context.Context, jobID string) (*importer.Artifact, error)
	ArtifactPath(ctx context.Context, jobID string) (string, error)
	History(ctx context.Context, limit, offset int) ([]domain.JobRun, error)
}

// ImportsHandler manages upload and job endpoints.
type ImportsHandler struct {
	service        ImportAPI
	maxUploadBytes int
}

// NewImportsHandler constructs handler. A non-positive maxUploadBytes
// disables the size check.
func NewImportsHandler(service ImportAPI, maxUploadBytes int) *ImportsHandler {
	return &ImportsHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Submit POST /api/v1/imports.
func (h *ImportsHandler) Submit(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("multipart field \"file\" required", nil)
	}
	if h.maxUploadBytes > 0 && fh.Size > int64(h.maxUploadBytes) {
		return apperrors.NewPayloadTooLarge(h.maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return apperrors.NewValidationError("unreadable upload", nil)
	}
	defer f.Close()

	operator := ""
	if principal, ok := auth.PrincipalFromContext(c); ok {
		operator = principal.Operator
	}
	status, err := h.service.Submit(c.UserContext(), fh.Filename, f, operator)
	if err != nil {
		return err
	}
	c.Location("/api/v1/imports/" + status.JobID)
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": dto.JobStatusFromDomain(status)})
}

// List GET /api/v1/imports.
func (h *ImportsHandler) List(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := h.service.History(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.JobRunResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, dto.JobRunFromDomain(run))
	}
	return c.JSON(fiber.Map{"data": items, "limit": limit, "offset": offset})
}

// Status GET /api/v1/imports/:id.
func (h *ImportsHandler) Status(c *fiber.Ctx) error {
	status, err := h.service.Status(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.JobStatusFromDomain(status)})
}

// Result GET /api/v1/imports/:id/result.
func (h *ImportsHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("id")
	artifact, err := h.service.Result(c.UserContext(), jobID)
	if err != nil {
		return err
	}
	rows := artifact.Rows
	if rows == nil {
		rows = [][]string{}
	}
	return c.JSON(fiber.Map{"data": dto.ArtifactResponse{
		JobID:  jobID,
		Header: artifact.Header,
		Rows:   rows,
	}})
}

// Download GET /api/v1/imports/:id/artifact.
func (h *ImportsHandler) Download(c *fiber.Ctx) error {
	path, err := h.service.ArtifactPath(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Download(path, filepath.Base(path))
}

func queryInt(c *fiber.Ctx, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError("invalid "+key, map[string]any{key: raw})
	}
	return n, nil
}
