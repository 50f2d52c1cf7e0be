package handlers

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pawhouse/apiserver/internal/services"
)

const (
	maxPhotoBytes     = 10 << 20
	formFieldPhoto    = "photo"
	sniffContentBytes = 512
)

// AdoptionHandler provides HTTP handlers for adoptions.
type AdoptionHandler struct {
	adoptionService *services.AdoptionService
	logger          *slog.Logger
}

// NewAdoptionHandler constructs a handler with the provided service.
func NewAdoptionHandler(adoptionService *services.AdoptionService, logger *slog.Logger) *AdoptionHandler {
	return &AdoptionHandler{adoptionService: adoptionService, logger: logger}
}

// AdoptionRouter registers adoption routes on the given router. Reads are
// public; writes and the per-user listing require authMiddleware.
func AdoptionRouter(
	r chi.Router,
	adoptionService *services.AdoptionService,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	handler := NewAdoptionHandler(adoptionService, logger)

	r.Get("/", handler.ListAdoptions)
	r.With(authMiddleware).Post("/", handler.CreateAdoption)
	r.With(authMiddleware).Get("/user/{userID}", handler.ListUserAdoptions)
	r.Route("/{adoptionID}", func(r chi.Router) {
		r.Get("/", handler.GetAdoption)
		r.With(authMiddleware).Put("/", handler.UpdateAdoption)
		r.With(authMiddleware).Delete("/", handler.DeleteAdoption)
		r.Get("/photo", handler.GetPhoto)
		r.With(authMiddleware).Put("/photo", handler.UploadPhoto)
	})
}

type CreateAdoptionRequest struct {
	PetName string `json:"petName"`
	PetType string `json:"petType"`
	Adopter string `json:"adopter"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`
}

type UpdateAdoptionRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (h *AdoptionHandler) ListAdoptions(w http.ResponseWriter, r *http.Request) {
	adoptions, err := h.adoptionService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", adoptions)
}

func (h *AdoptionHandler) ListUserAdoptions(w http.ResponseWriter, r *http.Request) {
	adoptions, err := h.adoptionService.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", adoptions)
}

func (h *AdoptionHandler) GetAdoption(w http.ResponseWriter, r *http.Request) {
	adoption, err := h.adoptionService.Get(r.Context(), chi.URLParam(r, "adoptionID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", adoption)
}

func (h *AdoptionHandler) CreateAdoption(w http.ResponseWriter, r *http.Request) {
	actor, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateAdoptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	adoption, err := h.adoptionService.Create(r.Context(), actor, services.CreateAdoptionInput{
		PetName: req.PetName,
		PetType: req.PetType,
		Adopter: req.Adopter,
		Status:  req.Status,
		Notes:   req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "adoption created", adoption)
}

func (h *AdoptionHandler) UpdateAdoption(w http.ResponseWriter, r *http.Request) {
	actor, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req UpdateAdoptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	adoption, err := h.adoptionService.Update(r.Context(), actor, chi.URLParam(r, "adoptionID"), services.UpdateAdoptionInput{
		Status: req.Status,
		Notes:  req.Notes,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "adoption updated", adoption)
}

func (h *AdoptionHandler) DeleteAdoption(w http.ResponseWriter, r *http.Request) {
	actor, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	adoption, err := h.adoptionService.Delete(r.Context(), actor, chi.URLParam(r, "adoptionID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, fmt.Sprintf("adoption %s deleted", adoption.ID), nil)
}

// UploadPhoto stores the multipart "photo" field as the adoption's photo.
func (h *AdoptionHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	actor, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.adoptionService.PhotosEnabled() {
		writeServiceError(w, r, h.logger, services.ErrPhotoStorageDisabled)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes+(1<<20))
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(formFieldPhoto)
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	if header.Size > maxPhotoBytes {
		writeError(w, http.StatusBadRequest, "uploaded file too large")
		return
	}

	contentType, body, err := sniffContentType(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	adoption, err := h.adoptionService.UploadPhoto(r.Context(), actor, chi.URLParam(r, "adoptionID"), body, header.Size, contentType)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "photo uploaded", adoption)
}

// GetPhoto streams the adoption's photo.
func (h *AdoptionHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	rc, err := h.adoptionService.OpenPhoto(r.Context(), chi.URLParam(r, "adoptionID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	contentType, body, err := sniffContentType(rc)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "stream photo", "error", err)
	}
}

// sniffContentType detects the content type from the leading bytes of r and
// returns a reader that still yields all of r.
func sniffContentType(r io.Reader) (string, io.Reader, error) {
	buffered := bufio.NewReaderSize(r, sniffContentBytes)
	head, err := buffered.Peek(sniffContentBytes)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", nil, err
	}
	return http.DetectContentType(head), buffered, nil
}
