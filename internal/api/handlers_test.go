package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelsmith/internal/db"
	"reelsmith/internal/models"
)

// stubStore holds canned rows and records the calls the handlers make.
type stubStore struct {
	users      map[uuid.UUID]*models.User
	jobs       map[uuid.UUID]*models.ContentJob
	spent      decimal.Decimal
	listLimits []int

	createdJobs  []*models.ContentJob
	deletedJobs  []uuid.UUID
	deletedUsers []uuid.UUID
}

func newApiStubStore() *stubStore {
	return &stubStore{
		users: make(map[uuid.UUID]*models.User),
		jobs:  make(map[uuid.UUID]*models.ContentJob),
		spent: decimal.Zero,
	}
}

func (s *stubStore) CreateUser(ctx context.Context, user *models.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *stubStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %w", db.ErrNotFound)
}

func (s *stubStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %w", db.ErrNotFound)
}

func (s *stubStore) ListUsers(ctx context.Context) ([]models.User, error) { return nil, nil }

func (s *stubStore) CountUsers(ctx context.Context) (int, error) { return len(s.users), nil }

func (s *stubStore) SetUserApproval(ctx context.Context, id uuid.UUID, approved bool) error {
	return nil
}

func (s *stubStore) SetUserManualBudget(ctx context.Context, id uuid.UUID, ceiling decimal.Decimal) error {
	return nil
}

func (s *stubStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	s.deletedUsers = append(s.deletedUsers, id)
	return nil
}

func (s *stubStore) CreateJob(ctx context.Context, job *models.ContentJob) error {
	s.jobs[job.ID] = job
	s.createdJobs = append(s.createdJobs, job)
	return nil
}

func (s *stubStore) GetJobForUser(ctx context.Context, id, userID uuid.UUID) (*models.ContentJob, error) {
	if job, ok := s.jobs[id]; ok && job.UserID == userID {
		copied := *job
		return &copied, nil
	}
	return nil, fmt.Errorf("job %w", db.ErrNotFound)
}

func (s *stubStore) ListUserJobs(ctx context.Context, userID uuid.UUID, limit int) ([]models.ContentJob, error) {
	s.listLimits = append(s.listLimits, limit)
	var jobs []models.ContentJob
	for _, job := range s.jobs {
		if job.UserID == userID {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

func (s *stubStore) DeleteJob(ctx context.Context, id uuid.UUID) error {
	s.deletedJobs = append(s.deletedJobs, id)
	delete(s.jobs, id)
	return nil
}

func (s *stubStore) SumUserCosts(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.spent, nil
}

func (s *stubStore) GetJobVariations(ctx context.Context, jobID uuid.UUID) ([]models.JobVariation, error) {
	return nil, nil
}

func (s *stubStore) SetVariationFavorite(ctx context.Context, variationID, jobID uuid.UUID, favorite bool) error {
	return nil
}

func (s *stubStore) ListCatalogModels(ctx context.Context) ([]models.CatalogModel, error) {
	return nil, nil
}

func (s *stubStore) GetCatalogModel(ctx context.Context, slug string) (*models.CatalogModel, error) {
	return nil, fmt.Errorf("model %w", db.ErrNotFound)
}

func (s *stubStore) GetModelPreference(ctx context.Context, userID uuid.UUID) (*models.ModelPreference, error) {
	return &models.ModelPreference{UserID: userID, VideoDuration: 5}, nil
}

func (s *stubStore) UpsertModelPreference(ctx context.Context, pref *models.ModelPreference) error {
	return nil
}

type enqueued struct {
	jobID uuid.UUID
	count int
}

type stubQueue struct {
	processed  []uuid.UUID
	variations []enqueued
}

func (q *stubQueue) EnqueueProcessJob(ctx context.Context, jobID uuid.UUID) error {
	q.processed = append(q.processed, jobID)
	return nil
}

func (q *stubQueue) EnqueueGenerateVariations(ctx context.Context, jobID uuid.UUID, count int) error {
	q.variations = append(q.variations, enqueued{jobID: jobID, count: count})
	return nil
}

type stubObjectStore struct {
	uploaded []string
	deleted  []string
}

func (o *stubObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	o.uploaded = append(o.uploaded, key)
	return nil
}

func (o *stubObjectStore) Delete(ctx context.Context, key string) error {
	o.deleted = append(o.deleted, key)
	return nil
}

func (o *stubObjectStore) GenerateUploadKey(folder, filename string) string {
	return folder + "/" + uuid.New().String() + "-" + filename
}

func (o *stubObjectStore) KeyFromURL(url string) string { return "" }

type handlerFixture struct {
	handler *Handler
	store   *stubStore
	queue   *stubQueue
	objects *stubObjectStore
}

func newFixture() *handlerFixture {
	store := newApiStubStore()
	q := &stubQueue{}
	objects := &stubObjectStore{}
	return &handlerFixture{
		handler: NewHandler(store, q, objects, nil, decimal.NewFromInt(20), "uploads", zerolog.Nop()),
		store:   store,
		queue:   q,
		objects: objects,
	}
}

func authedRequest(method, path string, body io.Reader, user *models.User) *http.Request {
	r := httptest.NewRequest(method, path, body)
	return r.WithContext(context.WithValue(r.Context(), userContextKey, user))
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func approvedUser() *models.User {
	return &models.User{ID: uuid.New(), Email: "user@example.com", Role: models.RoleUser, IsApproved: true}
}

func seedCompletedJob(store *stubStore, user *models.User) *models.ContentJob {
	transformed := "https://cdn.example.com/transformed.png"
	final := "https://cdn.example.com/final.mp4"
	job := &models.ContentJob{
		ID:                  uuid.New(),
		UserID:              user.ID,
		OriginalImageKey:    "uploads/cat.png",
		ImagePrompt:         "make it cinematic",
		VideoPrompt:         "slow pan upward",
		TransformedImageURL: &transformed,
		FinalVideoURL:       &final,
		Status:              models.JobStatusCompleted,
		CurrentStage:        models.JobStageCompleted,
		Progress:            models.ProgressDone,
		Cost:                decimal.NewFromFloat(0.155),
	}
	store.jobs[job.ID] = job
	return job
}

func TestRegenerateEnqueuesOneVariation(t *testing.T) {
	f := newFixture()
	user := approvedUser()
	job := seedCompletedJob(f.store, user)

	r := withURLParam(authedRequest(http.MethodPost, "/api/jobs/"+job.ID.String()+"/regenerate", nil, user), "id", job.ID.String())
	rec := httptest.NewRecorder()
	f.handler.RegenerateJob(rec, r)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.queue.variations, 1)
	assert.Equal(t, enqueued{jobID: job.ID, count: 1}, f.queue.variations[0])
	assert.Empty(t, f.queue.processed, "regeneration must not re-run the job pipeline")

	// The job row keeps its outputs and terminal state.
	after := f.store.jobs[job.ID]
	assert.Equal(t, models.JobStatusCompleted, after.Status)
	assert.Equal(t, models.JobStageCompleted, after.CurrentStage)
	assert.Equal(t, models.ProgressDone, after.Progress)
	assert.NotNil(t, after.FinalVideoURL)
}

func TestRegenerateRequiresTransformedImage(t *testing.T) {
	f := newFixture()
	user := approvedUser()
	job := seedCompletedJob(f.store, user)
	f.store.jobs[job.ID].TransformedImageURL = nil

	r := withURLParam(authedRequest(http.MethodPost, "/api/jobs/"+job.ID.String()+"/regenerate", nil, user), "id", job.ID.String())
	rec := httptest.NewRecorder()
	f.handler.RegenerateJob(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.queue.variations)
}

func multipartUpload(t *testing.T) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("imagePrompt", "make it cinematic"))
	require.NoError(t, mw.WriteField("videoPrompt", "slow pan upward"))
	fw, err := mw.CreateFormFile("image", "cat.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("\x89PNG\r\n\x1a\nrest-of-image"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadNotBlockedByExhaustedBudget(t *testing.T) {
	f := newFixture()
	f.store.spent = decimal.NewFromInt(1000) // far past the 20 ceiling
	user := approvedUser()

	body, contentType := multipartUpload(t)
	r := authedRequest(http.MethodPost, "/api/upload", body, user)
	r.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	f.handler.UploadJob(rec, r)

	require.Equal(t, http.StatusCreated, rec.Code, "budget is a read-side aggregate, not admission control: %s", rec.Body.String())
	require.Len(t, f.store.createdJobs, 1)
	assert.Len(t, f.queue.processed, 1)
	assert.Len(t, f.objects.uploaded, 1)
}

func TestGenerateVariationsNotBlockedByExhaustedBudget(t *testing.T) {
	f := newFixture()
	f.store.spent = decimal.NewFromInt(1000)
	user := approvedUser()
	job := seedCompletedJob(f.store, user)

	body := bytes.NewBufferString(`{"count": 2}`)
	r := withURLParam(authedRequest(http.MethodPost, "/api/jobs/"+job.ID.String()+"/generate-variations", body, user), "id", job.ID.String())
	rec := httptest.NewRecorder()
	f.handler.GenerateVariations(rec, r)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.queue.variations, 1)
	assert.Equal(t, 2, f.queue.variations[0].count)
}

func TestDeleteUserCleansEveryJob(t *testing.T) {
	f := newFixture()
	admin := &models.User{ID: uuid.New(), Email: "admin@example.com", Role: models.RoleAdmin, IsApproved: true}
	target := approvedUser()

	const jobCount = 60 // more than one listing page
	for i := 0; i < jobCount; i++ {
		job := &models.ContentJob{
			ID:               uuid.New(),
			UserID:           target.ID,
			OriginalImageKey: fmt.Sprintf("uploads/photo-%d.png", i),
			Status:           models.JobStatusCompleted,
		}
		f.store.jobs[job.ID] = job
	}

	r := withURLParam(authedRequest(http.MethodDelete, "/api/admin/users/"+target.ID.String(), nil, admin), "id", target.ID.String())
	rec := httptest.NewRecorder()
	f.handler.DeleteUser(rec, r)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []int{0}, f.store.listLimits, "cleanup must list without a page limit")
	assert.Len(t, f.objects.deleted, jobCount)
	assert.Equal(t, []uuid.UUID{target.ID}, f.store.deletedUsers)
}
