// Package handler is the thin HTTP transport layer over internal/app: it
// decodes requests, calls into the queue/fileproc/batch packages, and
// encodes responses via internal/http/response. It carries no business
// logic of its own.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/fileforge/fileforge/internal/app"
	"github.com/fileforge/fileforge/internal/batch"
	"github.com/fileforge/fileforge/internal/domain"
	"github.com/fileforge/fileforge/internal/fileproc"
	"github.com/fileforge/fileforge/internal/http/response"
	"github.com/fileforge/fileforge/internal/queue"
	"github.com/fileforge/fileforge/internal/repository"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// maxUploadBytes caps a single multipart upload read into memory. Batch
// uploads are capped per-file by the same constant.
const maxUploadBytes = 64 << 20

// Handler holds the wired App and exposes its operations as http.Handlers.
type Handler struct {
	app *app.App
}

// New constructs a Handler over a.
func New(a *app.App) *Handler {
	return &Handler{app: a}
}

// Routes registers every route on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /files", h.submitFile)
	mux.HandleFunc("GET /jobs", h.listJobs)
	mux.HandleFunc("GET /jobs/{id}", h.getJob)
	mux.HandleFunc("GET /jobs/{id}/await", h.awaitJob)
	mux.HandleFunc("DELETE /jobs/{id}", h.cancelJob)
	mux.HandleFunc("GET /stats", h.queueStats)

	mux.HandleFunc("POST /batches", h.createBatch)
	mux.HandleFunc("GET /batches", h.listBatches)
	mux.HandleFunc("GET /batches/{id}", h.getBatch)
	mux.HandleFunc("POST /batches/{id}/start", h.startBatch)
	mux.HandleFunc("POST /batches/{id}/cancel", h.cancelBatch)
	mux.HandleFunc("DELETE /batches/{id}", h.deleteBatch)

	mux.HandleFunc("POST /shares", h.createShare)
	mux.HandleFunc("GET /shares/{token}", h.getShare)
	mux.HandleFunc("DELETE /shares/{token}", h.revokeShare)
}

// submitFile accepts a single multipart file upload, stores it, and submits
// it to the processing queue without waiting for completion. Poll
// GET /jobs/{id} or block on GET /jobs/{id}/await for the outcome.
func (h *Handler) submitFile(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	file, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "missing multipart field \"file\"")
		return
	}
	defer file.Close()

	meta, err := h.storeUpload(r.Context(), userID, file, header)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	priority := domain.Priority(queryInt(r, "priority", int(domain.PriorityNormal)))
	snapshot, err := h.app.Orchestrator.Start(r.Context(), h.app.Queue, meta, queue.AddJobOptions{
		UserID:   userID,
		Priority: priority,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.Created(w, newJobDTO(snapshot))
}

// storeUpload sniffs the upload's MIME type, uploads its bytes to object
// storage, and returns the fileproc.FileMeta describing the stored object.
func (h *Handler) storeUpload(ctx context.Context, userID string, file multipart.File, header *multipart.FileHeader) (fileproc.FileMeta, error) {
	limited := io.LimitReader(file, maxUploadBytes+1)
	buf, err := io.ReadAll(limited)
	if err != nil {
		return fileproc.FileMeta{}, domain.NewAppError(http.StatusBadRequest, "READ_FAILED", "failed to read upload", err)
	}
	if int64(len(buf)) > maxUploadBytes {
		return fileproc.FileMeta{}, domain.NewAppError(http.StatusRequestEntityTooLarge, "TOO_LARGE", "upload exceeds size limit", nil)
	}

	mtype := mimetype.Detect(buf)
	fileID := uuid.NewString()
	key := "uploads/" + userID + "/" + fileID

	uploaded, err := h.app.Store.Upload(ctx, key, bytes.NewReader(buf), int64(len(buf)), mtype.String())
	if err != nil {
		return fileproc.FileMeta{}, domain.RetryableErrorf("failed to store %q: %v", header.Filename, err)
	}

	return fileproc.FileMeta{
		FileID:       fileID,
		UserID:       userID,
		OriginalName: header.Filename,
		Mimetype:     mtype.String(),
		Size:         uploaded.Size,
		StorageKey:   uploaded.Key,
	}, nil
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snapshot, ok := h.app.Queue.GetJob(id)
	if !ok {
		response.NotFound(w, "job")
		return
	}
	response.OK(w, newJobDTO(snapshot))
}

// awaitJob blocks until the job reaches a terminal state or the request's
// context is cancelled (e.g. client disconnect or ?timeout deadline).
func (h *Handler) awaitJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ctx := r.Context()
	if secs := queryInt(r, "timeout", 0); secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	snapshot, err := h.app.Orchestrator.Await(ctx, h.app.Queue, id)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			response.Error(w, "TIMEOUT", "job did not reach a terminal state in time", http.StatusRequestTimeout)
			return
		}
		writeDomainError(w, r, err)
		return
	}
	response.OK(w, newJobDTO(snapshot))
}

func (h *Handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.app.Queue.CancelJob(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

// listJobs lists the queue's active jobs, optionally filtered by status,
// userId, or type.
func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	all := h.app.Queue.GetJobs(queue.Filter{
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		UserID: r.URL.Query().Get("userId"),
		Type:   domain.JobType(r.URL.Query().Get("type")),
	})
	out := make([]jobDTO, 0, len(all))
	for _, s := range all {
		out = append(out, newJobDTO(s))
	}
	response.OK(w, out)
}

func (h *Handler) queueStats(w http.ResponseWriter, r *http.Request) {
	stats := h.app.Registry.AllStats()
	out := make(map[string]queueStatsDTO, len(stats))
	for name, s := range stats {
		out[name] = queueStatsDTO{
			Name:                    s.Name,
			Pending:                 s.Pending,
			Processing:              s.Processing,
			Completed:               s.Completed,
			Failed:                  s.Failed,
			Cancelled:               s.Cancelled,
			Retrying:                s.Retrying,
			TotalJobs:               s.TotalJobs,
			RetriedJobs:             s.RetriedJobs,
			AverageProcessingTimeMS: s.AverageProcessingTime.Milliseconds(),
			LastProcessedAt:         s.LastProcessedAt,
		}
	}
	response.OK(w, out)
}

// createBatch decodes a multipart form: one or more "files" fields plus
// optional policy fields.
func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	if err := r.ParseMultipartForm(maxUploadBytes * 4); err != nil {
		response.BadRequest(w, "failed to parse multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		response.BadRequest(w, "at least one \"files\" field is required")
		return
	}

	inputs := make([]batch.FileInput, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			response.BadRequest(w, "failed to open uploaded file "+fh.Filename)
			return
		}
		buf, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		f.Close()
		if err != nil || int64(len(buf)) > maxUploadBytes {
			response.BadRequest(w, "file "+fh.Filename+" exceeds size limit")
			return
		}
		inputs = append(inputs, batch.FileInput{
			OriginalName: fh.Filename,
			Mimetype:     mimetype.Detect(buf).String(),
			Buffer:       buf,
		})
	}

	opts := batch.CreateBatchOptions{
		Description:       r.FormValue("description"),
		ProcessInParallel: r.FormValue("parallel") == "true",
		MaxConcurrency:    queryInt(r, "maxConcurrency", 0),
	}

	job, err := h.app.Batches.CreateBatch(r.Context(), userID, inputs, opts)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.Created(w, newBatchDTO(job))
}

func (h *Handler) startBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.app.Batches.StartBatch(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.app.Batches.GetBatch(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.OK(w, newBatchDTO(job))
}

func (h *Handler) cancelBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID, role := requestUserID(r), requestRole(r)
	if err := h.app.Batches.CancelBatch(r.Context(), id, userID, role); err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) deleteBatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	userID, role := requestUserID(r), requestRole(r)
	if err := h.app.Batches.DeleteBatch(r.Context(), id, userID, role); err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	userID, role := requestUserID(r), requestRole(r)
	jobs, err := h.app.Batches.ListBatches(r.Context(), userID, role)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]batchDTO, len(jobs))
	for i, j := range jobs {
		out[i] = newBatchDTO(j)
	}
	response.OK(w, out)
}

// createShare grants a share link to one of the caller's own files.
func (h *Handler) createShare(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	var req struct {
		FileID    string `json:"fileId"`
		ExpiresIn int64  `json:"expiresInSeconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.FileID == "" {
		response.BadRequest(w, "fileId is required")
		return
	}

	if h.app.Files != nil {
		rec, err := h.app.Files.Get(r.Context(), req.FileID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if rec.UserID != userID {
			response.Forbidden(w, "you do not own this file")
			return
		}
	}

	now := time.Now()
	rec := repository.ShareRecord{
		Token:     uuid.NewString(),
		FileID:    req.FileID,
		UserID:    userID,
		CreatedAt: now,
	}
	if req.ExpiresIn > 0 {
		rec.ExpiresAt = now.Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	if err := h.app.Shares.Create(r.Context(), rec); err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.Created(w, shareDTO{
		Token: rec.Token, FileID: rec.FileID, UserID: rec.UserID,
		ExpiresAt: rec.ExpiresAt, Revoked: rec.Revoked, CreatedAt: rec.CreatedAt,
	})
}

// getShare resolves a share token, returning 404 for an unknown, revoked, or
// expired token alike so token enumeration can't distinguish the three.
func (h *Handler) getShare(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	rec, err := h.app.Shares.Get(r.Context(), token)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rec.Revoked || (!rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt)) {
		response.NotFound(w, "share")
		return
	}
	response.OK(w, shareDTO{
		Token: rec.Token, FileID: rec.FileID, UserID: rec.UserID,
		ExpiresAt: rec.ExpiresAt, Revoked: rec.Revoked, CreatedAt: rec.CreatedAt,
	})
}

func (h *Handler) revokeShare(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	userID := requestUserID(r)

	rec, err := h.app.Shares.Get(r.Context(), token)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if rec.UserID != userID {
		response.Forbidden(w, "you do not own this share")
		return
	}
	if err := h.app.Shares.Revoke(r.Context(), token); err != nil {
		writeDomainError(w, r, err)
		return
	}
	response.NoContent(w)
}

// writeDomainError maps a domain/repository sentinel error (or *domain.AppError)
// to the appropriate response helper. Unrecognized errors are treated as
// internal and logged server-side rather than described to the caller.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		response.Error(w, appErr.Code, appErr.Message, appErr.Status)
		return
	}

	switch {
	case errors.Is(err, domain.ErrQueueFull):
		response.Conflict(w, "queue is at capacity")
	case errors.Is(err, domain.ErrNoProcessor):
		response.BadRequest(w, "no processor registered for this job type")
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrBatchNotFound), errors.Is(err, repository.ErrNotFound):
		response.NotFound(w, "resource")
	case errors.Is(err, domain.ErrJobProcessing):
		response.Conflict(w, "job is currently processing")
	case errors.Is(err, domain.ErrJobAlreadyCancel):
		response.Conflict(w, "job already reached a terminal state")
	case errors.Is(err, domain.ErrBatchNotCreated):
		response.Conflict(w, "batch has already been started")
	case errors.Is(err, domain.ErrBatchTerminal):
		response.Conflict(w, "batch already reached a terminal state")
	case errors.Is(err, domain.ErrForbidden):
		response.Forbidden(w, "not permitted")
	case errors.Is(err, domain.ErrQuotaExceeded):
		response.Error(w, "QUOTA_EXCEEDED", "storage quota exceeded", http.StatusPaymentRequired)
	default:
		response.InternalError(w, r, err)
	}
}

// requestUserID extracts the caller's user id from an upstream-trusted
// header. Authentication itself is expected to run in front of this
// service (e.g. an API gateway or sidecar); this handler only consumes its
// output.
func requestUserID(r *http.Request) string {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return id
	}
	return "anonymous"
}

func requestRole(r *http.Request) string {
	return r.Header.Get("X-User-Role")
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
