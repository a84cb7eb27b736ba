package handler

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/service"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/httputil"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// multipart bodies carry boundaries and part headers on top of the file bytes
const multipartOverhead = 1 << 20

func init() {
	err := httputil.RegisterCustomValidation("objectid", func(fl validator.FieldLevel) bool {
		return domain.IsValidID(fl.Field().String())
	})
	if err != nil {
		panic("register objectid validation: " + err.Error())
	}
}

// Limits bounds a single upload request.
type Limits struct {
	MaxFileBytes int64
	MaxFiles     int
}

// CVHandler handles CV bank HTTP requests
type CVHandler struct {
	service *service.CVService
	limits  Limits
	logger  *logger.Logger
}

// NewCVHandler creates a new CV handler
func NewCVHandler(svc *service.CVService, limits Limits, log *logger.Logger) *CVHandler {
	return &CVHandler{
		service: svc,
		limits:  limits,
		logger:  log,
	}
}

// Routes mounts the CV bank endpoints. Callers wrap r with the auth middleware.
func (h *CVHandler) Routes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Get("/", h.List)
	r.Get("/positions", h.Positions)
	r.Post("/bulk-delete", h.BulkDelete)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/download", h.Download)
	r.Delete("/{id}", h.Delete)
}

// Upload accepts up to MaxFiles CVs in the multipart field "files".
func (h *CVHandler) Upload(w http.ResponseWriter, r *http.Request) {
	maxBody := h.limits.MaxFileBytes*int64(h.limits.MaxFiles) + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	if err := r.ParseMultipartForm(h.limits.MaxFileBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, errors.New("PAYLOAD_TOO_LARGE", "upload exceeds the allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		httputil.Error(w, errors.BadRequest("invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		httputil.Error(w, errors.BadRequest("no files uploaded"))
		return
	}
	if len(headers) > h.limits.MaxFiles {
		httputil.Error(w, errors.Validation(map[string]string{
			"files": "at most " + strconv.Itoa(h.limits.MaxFiles) + " files per upload",
		}))
		return
	}

	files := make([]service.FileUpload, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, fh := range headers {
		if fh.Size > h.limits.MaxFileBytes {
			httputil.Error(w, errors.New("PAYLOAD_TOO_LARGE", "file "+fh.Filename+" exceeds the allowed size", http.StatusRequestEntityTooLarge))
			return
		}
		f, err := fh.Open()
		if err != nil {
			httputil.Error(w, errors.BadRequest("failed to read uploaded file"))
			return
		}
		opened = append(opened, f)
		files = append(files, service.FileUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     f,
		})
	}

	result, err := h.service.AcceptUpload(r.Context(), httputil.GetUserID(r.Context()), files)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONMessage(w, http.StatusCreated, "CVs uploaded, enrichment in progress", result)
}

// List returns the caller's active CVs, optionally filtered by ?position=.
func (h *CVHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.List(r.Context(), httputil.GetUserID(r.Context()), r.URL.Query().Get("position"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, &httputil.Meta{Count: len(records)})
}

// Positions returns the distinct inferred positions.
func (h *CVHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.Positions(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, positions, &httputil.Meta{Count: len(positions)})
}

// Get returns one CV
func (h *CVHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rec)
}

// Download streams the original file.
func (h *CVHandler) Download(w http.ResponseWriter, r *http.Request) {
	dl, err := h.service.Download(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}
	defer dl.Body.Close()

	if err := httputil.Attachment(w, dl.Record.OriginalName, dl.Record.MimeType, dl.Record.FileSizeBytes, dl.Body); err != nil {
		// headers are already out, nothing left to tell the client
		logger.FromContext(r.Context(), h.logger).WithCVID(dl.Record.ID).Warn().Err(err).Msg("download interrupted")
	}
}

// Delete retires one CV
func (h *CVHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Retire(r.Context(), httputil.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONMessage(w, http.StatusOK, "CV deleted", nil)
}

// BulkDeleteRequest is the body of POST /bulk-delete
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,objectid"`
}

// BulkDelete retires several CVs at once.
func (h *CVHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.BulkRetire(r.Context(), httputil.GetUserID(r.Context()), req.IDs)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
