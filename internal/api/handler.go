package api

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"student-bulk-import/internal/config"
	"student-bulk-import/internal/db"
	"student-bulk-import/internal/excel"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/model"
	"student-bulk-import/internal/storage"
	"student-bulk-import/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const archiveTimeout = 2 * time.Minute

type Dispatcher interface {
	Dispatch(ctx context.Context, rows []excel.ParsedRow, userID string) (string, error)
}

type ProgressReader interface {
	Progress(batchID string) (model.ImportProgress, error)
	OpenBatches() int
}

type Handler struct {
	cfg        *config.Config
	repo       db.Repository
	parser     excel.ParsingStrategy
	dispatcher Dispatcher
	progress   ProgressReader
	archive    storage.Storage
	archiving  sync.WaitGroup
	log        zerolog.Logger
}

// NewHandler wires the HTTP surface. archive may be nil when uploads are not
// kept.
func NewHandler(
	cfg *config.Config,
	repo db.Repository,
	dispatcher Dispatcher,
	progress ProgressReader,
	archive storage.Storage,
) *Handler {
	return &Handler{
		cfg:        cfg,
		repo:       repo,
		parser:     excel.NewExcelStrategy(),
		dispatcher: dispatcher,
		progress:   progress,
		archive:    archive,
		log:        logger.For("api"),
	}
}

func (h *Handler) UploadExcel(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Server.MaxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	userID := strings.TrimSpace(c.PostForm("userId"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	ctx := c.Request.Context()
	rows, err := h.parser.Parse(ctx, data)
	if err != nil {
		h.log.Warn().Err(err).Str("filename", fileHeader.Filename).Msg("Failed to parse upload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestID, err := h.dispatcher.Dispatch(ctx, rows, userID)
	if err != nil {
		if stderrors.Is(err, errors.ErrEmptyBatch) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No data found in the Excel file"})
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to dispatch upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start processing"})
		return
	}

	if h.archive != nil {
		h.archiving.Add(1)
		go h.archiveUpload(requestID, data)
	}

	c.JSON(http.StatusAccepted, model.UploadResponse{
		Message:   "File uploaded successfully. Processing started.",
		RequestID: requestID,
		Rows:      len(rows),
	})
}

// archiveUpload runs after the upload is acknowledged, on its own deadline
// rather than the request's.
func (h *Handler) archiveUpload(requestID string, data []byte) {
	defer h.archiving.Done()

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := h.archive.Upload(ctx, storage.UploadKey(requestID), bytes.NewReader(data)); err != nil {
		h.log.Warn().Err(err).Str("batch_id", requestID).Msg("Failed to archive upload")
	}
}

// WaitForArchives blocks until every pending upload archive has finished.
func (h *Handler) WaitForArchives() {
	h.archiving.Wait()
}

func (h *Handler) GetImportProgress(c *gin.Context) {
	progress, err := h.progress.Progress(c.Param("request_id"))
	if err != nil {
		if stderrors.Is(err, errors.ErrTrackerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Import not found or already completed"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *Handler) DownloadImportFile(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Upload archive is disabled"})
		return
	}

	requestID := c.Param("request_id")
	body, err := h.archive.Download(c.Request.Context(), storage.UploadKey(requestID))
	if err != nil {
		h.log.Debug().Err(err).Str("batch_id", requestID).Msg("Archived upload not available")
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", body,
		map[string]string{"Content-Disposition": `attachment; filename="` + requestID + `.xlsx"`})
}

func entryType(c *gin.Context) (model.UploadEntryType, bool) {
	t := model.UploadEntryType(c.Param("type"))
	if !t.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload entry type"})
		return "", false
	}
	return t, true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) ListUploadEntries(c *gin.Context) {
	t, ok := entryType(c)
	if !ok {
		return
	}

	entries, err := h.repo.ListUploadEntries(c.Request.Context(), t)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(t)).Msg("Failed to list upload entries")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if entries == nil {
		entries = []model.UploadEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) CreateUploadEntry(c *gin.Context) {
	t, ok := entryType(c)
	if !ok {
		return
	}

	var req model.UploadEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	entry, err := h.repo.CreateUploadEntry(c.Request.Context(), t, strings.TrimSpace(req.Name))
	if err != nil {
		if stderrors.Is(err, errors.ErrDuplicateKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Entry already exists"})
			return
		}
		h.log.Error().Err(err).Str("type", string(t)).Msg("Failed to create upload entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) DeleteUploadEntry(c *gin.Context) {
	t, ok := entryType(c)
	if !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.repo.DeleteUploadEntry(c.Request.Context(), t, id); err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to delete upload entry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Entry deleted"})
}

func (h *Handler) ListNotifications(c *gin.Context) {
	notifications, err := h.repo.ListNotifications(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list notifications")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	c.JSON(http.StatusOK, notifications)
}

func (h *Handler) UpdateNotification(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req model.NotificationUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	n, err := h.repo.SetNotificationViewed(c.Request.Context(), id, req.Viewed)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to update notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.repo.DeleteNotification(c.Request.Context(), id); err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		h.log.Error().Err(err).Int64("id", id).Msg("Failed to delete notification")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

func studentFilter(c *gin.Context) (model.StudentFilter, bool) {
	filter := model.StudentFilter{
		BatchName:  strings.ToUpper(strings.TrimSpace(c.Query("batch"))),
		Year:       strings.TrimSpace(c.Query("year")),
		Department: strings.ToUpper(strings.TrimSpace(c.Query("department"))),
	}
	if filter.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "At least one of batch, year or department is required"})
		return filter, false
	}
	return filter, true
}

func (h *Handler) ListStudents(c *gin.Context) {
	filter, ok := studentFilter(c)
	if !ok {
		return
	}

	students, err := h.repo.ListStudents(c.Request.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list students")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	c.JSON(http.StatusOK, students)
}

// DeleteStudents removes the matching students. When a batch is named its
// upload entry goes too.
func (h *Handler) DeleteStudents(c *gin.Context) {
	filter, ok := studentFilter(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	deleted, err := h.repo.DeleteStudents(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to delete students")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if filter.BatchName != "" {
		if err := h.repo.DeleteUploadEntryByName(ctx, model.UploadEntryBatch, filter.BatchName); err != nil {
			h.log.Warn().Err(err).Str("batch", filter.BatchName).Msg("Failed to delete batch entry")
		}
	}

	h.log.Info().Int64("deleted", deleted).Msg("Students deleted")
	c.JSON(http.StatusOK, gin.H{"message": "Students deleted", "deleted": deleted})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      h.cfg.App.Name,
		"version":      h.cfg.App.Version,
		"open_batches": h.progress.OpenBatches(),
	})
}
