package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pawhouse/apiserver/internal/store/memory"
	"github.com/pawhouse/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedMessage struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, publishedMessage{channel: channel, data: data, attrs: attrs})
	return fmt.Sprintf("msg-%d", len(p.messages)), nil
}

func (p *recordingPublisher) events(t *testing.T) []AdoptionEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]AdoptionEvent, 0, len(p.messages))
	for _, msg := range p.messages {
		var event AdoptionEvent
		require.NoError(t, json.Unmarshal(msg.data, &event))
		assert.Equal(t, event.Type, msg.attrs[EventTypeAttribute])
		events = append(events, event)
	}
	return events
}

type memoryPhotos struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryPhotos() *memoryPhotos {
	return &memoryPhotos{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryPhotos) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryPhotos) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryPhotos) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

var actor = types.User{ID: "6f1c2b9e-8a4d-4a53-9a3e-0d4f1b2c3d4e", Role: types.RoleUser}

func newTestAdoptionService(opts ...AdoptionOption) (*AdoptionService, *memory.AdoptionRepository) {
	repo := memory.NewAdoptionRepository()
	svc := NewAdoptionService(repo, discardLogger(), opts...)
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC) }
	return svc, repo
}

func lunaInput() CreateAdoptionInput {
	return CreateAdoptionInput{PetName: "Luna", PetType: "Cat", Adopter: "Ana"}
}

func TestAdoptionService_Create_Defaults(t *testing.T) {
	svc, repo := newTestAdoptionService()

	adoption, err := svc.Create(context.Background(), actor, lunaInput())
	require.NoError(t, err)

	_, err = uuid.Parse(adoption.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Luna", adoption.PetName)
	assert.Equal(t, types.AdoptionPending, adoption.Status)
	assert.Equal(t, "", adoption.Notes)
	assert.Equal(t, "2026-10-19", adoption.AdoptionDate)
	assert.Equal(t, actor.ID, adoption.UserID)
	assert.Equal(t, 1, repo.Len())
}

func TestAdoptionService_Create_ExplicitStatusAndNotes(t *testing.T) {
	svc, _ := newTestAdoptionService()

	in := lunaInput()
	in.Status = "completed"
	in.Notes = "indoor only"
	adoption, err := svc.Create(context.Background(), actor, in)
	require.NoError(t, err)
	assert.Equal(t, types.AdoptionCompleted, adoption.Status)
	assert.Equal(t, "indoor only", adoption.Notes)
}

func TestAdoptionService_Create_MissingFields(t *testing.T) {
	tests := map[string]struct {
		mutate  func(*CreateAdoptionInput)
		missing string
	}{
		"pet name": {func(in *CreateAdoptionInput) { in.PetName = "" }, "petName"},
		"pet type": {func(in *CreateAdoptionInput) { in.PetType = " " }, "petType"},
		"adopter":  {func(in *CreateAdoptionInput) { in.Adopter = "" }, "adopter"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			svc, repo := newTestAdoptionService()
			in := lunaInput()
			tc.mutate(&in)

			_, err := svc.Create(context.Background(), actor, in)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tc.missing)
			assert.Equal(t, 0, repo.Len())
		})
	}
}

func TestAdoptionService_Update(t *testing.T) {
	svc, _ := newTestAdoptionService()
	created, err := svc.Create(context.Background(), actor, lunaInput())
	require.NoError(t, err)

	completed := "completed"
	updated, err := svc.Update(context.Background(), actor, created.ID, UpdateAdoptionInput{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, types.AdoptionCompleted, updated.Status)
	assert.Equal(t, created.PetName, updated.PetName)
	assert.Equal(t, created.AdoptionDate, updated.AdoptionDate)

	notes := "vaccinated"
	updated, err = svc.Update(context.Background(), actor, created.ID, UpdateAdoptionInput{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "vaccinated", updated.Notes)
	assert.Equal(t, types.AdoptionCompleted, updated.Status, "omitted status is retained")

	blank := "  "
	updated, err = svc.Update(context.Background(), actor, created.ID, UpdateAdoptionInput{Status: &blank})
	require.NoError(t, err)
	assert.Equal(t, types.AdoptionCompleted, updated.Status)

	got, err := svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestAdoptionService_NotFound(t *testing.T) {
	svc, _ := newTestAdoptionService()
	status := "completed"

	for _, id := range []string{uuid.NewString(), "not-a-uuid", ""} {
		_, err := svc.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, id)

		_, err = svc.Update(context.Background(), actor, id, UpdateAdoptionInput{Status: &status})
		assert.ErrorIs(t, err, ErrNotFound, id)

		_, err = svc.Delete(context.Background(), actor, id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
}

func TestAdoptionService_Delete(t *testing.T) {
	svc, repo := newTestAdoptionService()
	created, err := svc.Create(context.Background(), actor, lunaInput())
	require.NoError(t, err)

	deleted, err := svc.Delete(context.Background(), actor, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, deleted.ID)
	assert.Equal(t, 0, repo.Len())

	_, err = svc.Get(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Delete(context.Background(), actor, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdoptionService_ListOrderAndByUser(t *testing.T) {
	svc, _ := newTestAdoptionService()
	other := types.User{ID: uuid.NewString()}

	first, err := svc.Create(context.Background(), actor, lunaInput())
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), other, CreateAdoptionInput{PetName: "Rex", PetType: "Dog", Adopter: "Leo"})
	require.NoError(t, err)
	third, err := svc.Create(context.Background(), actor, CreateAdoptionInput{PetName: "Milo", PetType: "Cat", Adopter: "Ana"})
	require.NoError(t, err)

	all, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Luna", "Rex", "Milo"}, []string{all[0].PetName, all[1].PetName, all[2].PetName})

	mine, err := svc.ListByUser(context.Background(), actor.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, first.ID, mine[0].ID)
	assert.Equal(t, third.ID, mine[1].ID)

	upper, err := svc.ListByUser(context.Background(), strings.ToUpper(actor.ID))
	require.NoError(t, err)
	assert.Len(t, upper, 2)

	urn, err := svc.ListByUser(context.Background(), "urn:uuid:"+actor.ID)
	require.NoError(t, err)
	assert.Len(t, urn, 2)

	none, err := svc.ListByUser(context.Background(), "bogus")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestAdoptionService_PublishesEvents(t *testing.T) {
	publisher := &recordingPublisher{}
	svc, _ := newTestAdoptionService(WithEventPublisher(publisher, "adoption-events"))

	created, err := svc.Create(context.Background(), actor, lunaInput())
	require.NoError(t, err)
	notes := "vaccinated"
	_, err = svc.Update(context.Background(), actor, created.ID, UpdateAdoptionInput{Notes: &notes})
	require.NoError(t, err)
	_, err = svc.Delete(context.Background(), actor, created.ID)
	require.NoError(t, err)

	events := publisher.events(t)
	require.Len(t, events, 3)
	assert.Equal(t, EventAdoptionCreated, events[0].Type)
	assert.Equal(t, EventAdoptionUpdated, events[1].Type)
	assert.Equal(t, "vaccinated", events[1].Adoption.Notes)
	assert.Equal(t, EventAdoptionDeleted, events[2].Type)
	for _, event := range events {
		assert.Equal(t, actor.ID, event.ActorID)
		assert.Equal(t, created.ID, event.Adoption.ID)
	}
	assert.Equal(t, "adoption-events", publisher.messages[0].channel)
}

func TestAdoptionService_PublishFailureDoesNotFailWrite(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("broker down")}
	svc, repo := newTestAdoptionService(WithEventPublisher(publisher, "adoption-events"))

	_, err := svc.Create(context.Background(), actor, lunaInput())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Len())
}

func TestAdoptionService_Photos(t *testing.T) {
	photos := newMemoryPhotos()
	svc, _ := newTestAdoptionService(WithPhotoStorage(photos))
	require.True(t, svc.PhotosEnabled())

	created, err := svc.Create(context.Background(), actor, lunaInput())
	require.NoError(t, err)

	_, err = svc.OpenPhoto(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound, "no photo uploaded yet")

	_, err = svc.UploadPhoto(context.Background(), actor, created.ID, strings.NewReader("text"), 4, "text/plain")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UploadPhoto(context.Background(), actor, uuid.NewString(), strings.NewReader("png"), 3, "image/png")
	assert.ErrorIs(t, err, ErrNotFound)

	updated, err := svc.UploadPhoto(context.Background(), actor, created.ID, strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	assert.Equal(t, PhotoKey(created.ID), updated.PhotoKey)
	assert.Equal(t, "image/png", photos.types[updated.PhotoKey])

	rc, err := svc.OpenPhoto(context.Background(), created.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "png-bytes", string(data))

	_, err = svc.Delete(context.Background(), actor, created.ID)
	require.NoError(t, err)
	assert.Empty(t, photos.objects, "photo is removed with the adoption")
}

// deletedDuringUpload removes the adoption right before the photo key is set.
type deletedDuringUpload struct {
	*memory.AdoptionRepository
}

func (r deletedDuringUpload) SetPhotoKey(ctx context.Context, id, key string) (types.Adoption, error) {
	if _, err := r.AdoptionRepository.Delete(ctx, id); err != nil {
		return types.Adoption{}, err
	}
	return r.AdoptionRepository.SetPhotoKey(ctx, id, key)
}

func TestAdoptionService_UploadPhoto_AdoptionDeletedMeanwhile(t *testing.T) {
	photos := newMemoryPhotos()
	repo := memory.NewAdoptionRepository()
	svc := NewAdoptionService(deletedDuringUpload{repo}, discardLogger(), WithPhotoStorage(photos))

	created, err := svc.Create(context.Background(), actor, lunaInput())
	require.NoError(t, err)

	_, err = svc.UploadPhoto(context.Background(), actor, created.ID, strings.NewReader("png-bytes"), 9, "image/png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, photos.objects, "no photo is left without an adoption")
}

func TestAdoptionService_PhotosDisabled(t *testing.T) {
	svc, _ := newTestAdoptionService()
	assert.False(t, svc.PhotosEnabled())

	_, err := svc.UploadPhoto(context.Background(), actor, uuid.NewString(), strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrPhotoStorageDisabled)

	_, err = svc.OpenPhoto(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrPhotoStorageDisabled)
}
