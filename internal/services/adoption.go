package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pawhouse/apiserver/internal/storage"
	"github.com/pawhouse/apiserver/internal/store"
	"github.com/pawhouse/apiserver/types"
)

// AdoptionRepository defines persistence operations for adoptions.
type AdoptionRepository interface {
	List(ctx context.Context) ([]types.Adoption, error)
	ListByUser(ctx context.Context, userID string) ([]types.Adoption, error)
	Get(ctx context.Context, id string) (types.Adoption, error)
	Create(ctx context.Context, adoption types.Adoption) (types.Adoption, error)
	Update(ctx context.Context, id string, patch types.AdoptionPatch) (types.Adoption, error)
	SetPhotoKey(ctx context.Context, id, key string) (types.Adoption, error)
	Delete(ctx context.Context, id string) (types.Adoption, error)
}

// PhotoStorage stores adoption photos as objects.
type PhotoStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// CreateAdoptionInput holds the fields of a new adoption. Status and Notes
// are optional.
type CreateAdoptionInput struct {
	PetName string
	PetType string
	Adopter string
	Status  string
	Notes   string
}

// UpdateAdoptionInput holds a partial update. Nil fields keep their current
// value.
type UpdateAdoptionInput struct {
	Status *string
	Notes  *string
}

// AdoptionOption configures optional collaborators of an AdoptionService.
type AdoptionOption func(*AdoptionService)

// WithEventPublisher publishes adoption events to channel after each write.
func WithEventPublisher(events EventPublisher, channel string) AdoptionOption {
	return func(s *AdoptionService) {
		s.events = events
		s.channel = channel
	}
}

// WithPhotoStorage enables the photo operations.
func WithPhotoStorage(photos PhotoStorage) AdoptionOption {
	return func(s *AdoptionService) {
		s.photos = photos
	}
}

// AdoptionService encapsulates adoption use-cases.
type AdoptionService struct {
	repo    AdoptionRepository
	photos  PhotoStorage
	events  EventPublisher
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

func NewAdoptionService(repo AdoptionRepository, logger *slog.Logger, opts ...AdoptionOption) *AdoptionService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AdoptionService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PhotosEnabled reports whether a photo storage backend is configured.
func (s *AdoptionService) PhotosEnabled() bool {
	return s.photos != nil
}

func (s *AdoptionService) List(ctx context.Context) ([]types.Adoption, error) {
	return s.repo.List(ctx)
}

// ListByUser returns the adoptions registered by userID in creation order.
func (s *AdoptionService) ListByUser(ctx context.Context, userID string) ([]types.Adoption, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return []types.Adoption{}, nil
	}
	return s.repo.ListByUser(ctx, parsed.String())
}

func (s *AdoptionService) Get(ctx context.Context, id string) (types.Adoption, error) {
	id, err := parseAdoptionID(id)
	if err != nil {
		return types.Adoption{}, err
	}
	adoption, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Adoption{}, adoptionError(err)
	}
	return adoption, nil
}

func (s *AdoptionService) Create(ctx context.Context, actor types.User, in CreateAdoptionInput) (types.Adoption, error) {
	in.PetName = strings.TrimSpace(in.PetName)
	in.PetType = strings.TrimSpace(in.PetType)
	in.Adopter = strings.TrimSpace(in.Adopter)
	in.Status = strings.TrimSpace(in.Status)

	var missing []string
	if in.PetName == "" {
		missing = append(missing, "petName")
	}
	if in.PetType == "" {
		missing = append(missing, "petType")
	}
	if in.Adopter == "" {
		missing = append(missing, "adopter")
	}
	if len(missing) > 0 {
		return types.Adoption{}, validationError("missing required fields: " + strings.Join(missing, ", "))
	}

	status := types.AdoptionPending
	if in.Status != "" {
		status = types.AdoptionStatus(in.Status)
	}

	adoption, err := s.repo.Create(ctx, types.Adoption{
		ID:           uuid.NewString(),
		PetName:      in.PetName,
		PetType:      in.PetType,
		Adopter:      in.Adopter,
		AdoptionDate: s.now().UTC().Format(types.AdoptionDateLayout),
		Status:       status,
		Notes:        in.Notes,
		UserID:       actor.ID,
	})
	if err != nil {
		return types.Adoption{}, fmt.Errorf("create adoption: %w", err)
	}

	s.publish(ctx, EventAdoptionCreated, actor, adoption)
	return adoption, nil
}

// Update changes only the supplied fields. A blank status is treated as
// omitted.
func (s *AdoptionService) Update(ctx context.Context, actor types.User, id string, in UpdateAdoptionInput) (types.Adoption, error) {
	id, err := parseAdoptionID(id)
	if err != nil {
		return types.Adoption{}, err
	}

	var patch types.AdoptionPatch
	if in.Status != nil {
		if status := strings.TrimSpace(*in.Status); status != "" {
			value := types.AdoptionStatus(status)
			patch.Status = &value
		}
	}
	patch.Notes = in.Notes

	adoption, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return types.Adoption{}, adoptionError(err)
	}

	s.publish(ctx, EventAdoptionUpdated, actor, adoption)
	return adoption, nil
}

// Delete removes the adoption and, when present, its photo.
func (s *AdoptionService) Delete(ctx context.Context, actor types.User, id string) (types.Adoption, error) {
	id, err := parseAdoptionID(id)
	if err != nil {
		return types.Adoption{}, err
	}

	adoption, err := s.repo.Delete(ctx, id)
	if err != nil {
		return types.Adoption{}, adoptionError(err)
	}

	if adoption.PhotoKey != "" && s.photos != nil {
		if err := s.photos.Delete(ctx, adoption.PhotoKey); err != nil {
			s.logger.WarnContext(ctx, "delete adoption photo", "adoption_id", id, "key", adoption.PhotoKey, "error", err)
		}
	}

	s.publish(ctx, EventAdoptionDeleted, actor, adoption)
	return adoption, nil
}

// UploadPhoto stores r as the adoption's photo and records its key.
func (s *AdoptionService) UploadPhoto(ctx context.Context, actor types.User, id string, r io.Reader, size int64, contentType string) (types.Adoption, error) {
	if s.photos == nil {
		return types.Adoption{}, ErrPhotoStorageDisabled
	}
	if !strings.HasPrefix(contentType, "image/") {
		return types.Adoption{}, validationError("photo must be an image")
	}

	id, err := parseAdoptionID(id)
	if err != nil {
		return types.Adoption{}, err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return types.Adoption{}, adoptionError(err)
	}

	key := PhotoKey(id)
	if err := s.photos.Put(ctx, key, r, size, contentType); err != nil {
		return types.Adoption{}, fmt.Errorf("store photo: %w", err)
	}

	adoption, err := s.repo.SetPhotoKey(ctx, id, key)
	if err != nil {
		// The adoption may have been deleted since the check above.
		if delErr := s.photos.Delete(ctx, key); delErr != nil {
			s.logger.WarnContext(ctx, "delete orphaned photo", "adoption_id", id, "key", key, "error", delErr)
		}
		return types.Adoption{}, adoptionError(err)
	}

	s.publish(ctx, EventAdoptionUpdated, actor, adoption)
	return adoption, nil
}

// OpenPhoto returns a reader for the adoption's photo. The caller closes it.
func (s *AdoptionService) OpenPhoto(ctx context.Context, id string) (io.ReadCloser, error) {
	if s.photos == nil {
		return nil, ErrPhotoStorageDisabled
	}

	adoption, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if adoption.PhotoKey == "" {
		return nil, notFoundError("photo not found")
	}

	rc, err := s.photos.Get(ctx, adoption.PhotoKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, notFoundError("photo not found")
		}
		return nil, fmt.Errorf("open photo: %w", err)
	}
	return rc, nil
}

// PhotoKey is the object key of an adoption's photo.
func PhotoKey(adoptionID string) string {
	return "adoptions/" + adoptionID + "/photo"
}

func parseAdoptionID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", notFoundError("adoption not found")
	}
	return parsed.String(), nil
}

func adoptionError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("adoption not found")
	}
	return err
}
