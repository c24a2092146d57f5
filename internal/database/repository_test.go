package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/selector"
)

// connectTestDB needs a disposable Postgres in TEST_DATABASE_URL.
func connectTestDB(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := ConnectDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestRepositoryPlatformCounterConcurrent(t *testing.T) {
	repo := connectTestDB(t)
	ctx := context.Background()
	day := "test-" + uuid.NewString()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementPlatformCounter(ctx, models.PlatformLinkedIn, day)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := repo.PlatformCount(ctx, models.PlatformLinkedIn, day)
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestRepositoryUserCounters(t *testing.T) {
	repo := connectTestDB(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	require.NoError(t, repo.IncrementUserCounters(ctx, user, "2026-03-01", "2026-03"))
	require.NoError(t, repo.IncrementUserCounters(ctx, user, "2026-03-02", "2026-03"))

	daily, err := repo.UserDailyCount(ctx, user, "2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, 1, daily)

	monthly, err := repo.UserMonthlyCount(ctx, user, "2026-03")
	require.NoError(t, err)
	assert.Equal(t, 2, monthly)
}

func TestRepositoryCatalogAndApplications(t *testing.T) {
	repo := connectTestDB(t)
	ctx := context.Background()
	user := "user-" + uuid.NewString()

	job := &models.Job{
		Fingerprint: uuid.NewString(),
		Source:      "linkedin",
		Title:       "Backend Engineer",
		Company:     "Acme",
		URL:         "https://www.linkedin.com/jobs/view/1",
	}
	inserted, err := repo.UpsertJob(ctx, job)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.UpsertJob(ctx, job)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, repo.SaveJobScore(ctx, user, job.ID, 82, []string{"go"}))

	q := selector.JobQuery{UserID: user, MinFitScore: 60, ExcludeApplied: true, ExcludeBlacklisted: true, Limit: 5}
	jobs, err := repo.SelectEligibleJobs(ctx, q)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].JobID)
	assert.Equal(t, float64(82), jobs[0].FitScore)

	rec := models.ApplicationRecord{
		ID:         uuid.NewString(),
		UserID:     user,
		JobID:      job.ID,
		Status:     models.StatusApplied,
		AutoStatus: models.AutoStatusQueued,
		ReviewMode: true,
		Method:     models.MethodLinkedInEasy,
		Platform:   models.PlatformLinkedIn,
		FitScore:   82,
		AppliedAt:  time.Now(),
	}
	require.NoError(t, repo.InsertApplicationRecord(ctx, rec))

	rec.ID = uuid.NewString()
	assert.ErrorIs(t, repo.InsertApplicationRecord(ctx, rec), ErrDuplicate)

	jobs, err = repo.SelectEligibleJobs(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	n, err := repo.CountApplicationsSince(ctx, user, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepositoryProfileNotFound(t *testing.T) {
	repo := connectTestDB(t)
	_, err := repo.GetUserAutomationProfile(context.Background(), "missing-"+uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
