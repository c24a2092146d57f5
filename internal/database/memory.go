package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-openclaw-autoapply/internal/dedup"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/selector"
)

// Memory is an in-process store with the same contract as Repository. It
// backs dry runs and tests.
type Memory struct {
	mu sync.Mutex

	profiles    map[string]models.UserAutomationProfile
	blacklist   map[string]map[string]bool
	userCounts  map[string]int
	platCounts  map[string]int
	scores      map[string][]models.JobCandidate
	jobs        map[string]*models.Job
	records     []models.ApplicationRecord
	applied     map[string]bool
	credentials map[string]models.EncryptedCredential
	signals     []models.LearningSignal
	runLogs     []models.RunLogEntry
}

func NewMemory() *Memory {
	return &Memory{
		profiles:    make(map[string]models.UserAutomationProfile),
		blacklist:   make(map[string]map[string]bool),
		userCounts:  make(map[string]int),
		platCounts:  make(map[string]int),
		scores:      make(map[string][]models.JobCandidate),
		jobs:        make(map[string]*models.Job),
		applied:     make(map[string]bool),
		credentials: make(map[string]models.EncryptedCredential),
	}
}

func pairKey(a, b string) string { return a + "\x00" + b }

// ---------------- seeding ----------------

func (m *Memory) PutProfile(p models.UserAutomationProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

func (m *Memory) Blacklist(userID string, companies ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blacklist[userID] == nil {
		m.blacklist[userID] = make(map[string]bool)
	}
	for _, c := range companies {
		m.blacklist[userID][dedup.Canonical(c)] = true
	}
}

// AddCandidate registers a scored job for userID.
func (m *Memory) AddCandidate(userID string, job models.JobCandidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.CompanyCanonical == "" {
		job.CompanyCanonical = dedup.Canonical(job.Company)
	}
	m.scores[userID] = append(m.scores[userID], job)
}

func (m *Memory) PutCredential(c models.EncryptedCredential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[pairKey(c.UserID, string(c.Platform))] = c
}

// SetPlatformCount overwrites a platform's counter for day.
func (m *Memory) SetPlatformCount(platform models.Platform, day string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platCounts[pairKey(string(platform), day)] = n
}

// SetUserCount overwrites a user's counter; periodType is "day" or "month".
func (m *Memory) SetUserCount(userID, periodType, key string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userCounts[pairKey(userID, periodType+"|"+key)] = n
}

func (m *Memory) Records() []models.ApplicationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ApplicationRecord(nil), m.records...)
}

func (m *Memory) Signals() []models.LearningSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LearningSignal(nil), m.signals...)
}

func (m *Memory) RunLogs() []models.RunLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RunLogEntry(nil), m.runLogs...)
}

func (m *Memory) Jobs() []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Fingerprint < out[b].Fingerprint })
	return out
}

// ---------------- profiles ----------------

func (m *Memory) GetUserAutomationProfile(_ context.Context, userID string) (*models.UserAutomationProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) TelegramChatID(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok || p.TelegramChatID == 0 {
		return 0, ErrNotFound
	}
	return p.TelegramChatID, nil
}

func (m *Memory) IsCompanyBlacklisted(_ context.Context, userID, companyCanonical string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blacklist[userID][companyCanonical], nil
}

// ---------------- counters ----------------

func (m *Memory) UserDailyCount(_ context.Context, userID, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userCounts[pairKey(userID, "day|"+day)], nil
}

func (m *Memory) UserMonthlyCount(_ context.Context, userID, month string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userCounts[pairKey(userID, "month|"+month)], nil
}

func (m *Memory) IncrementUserCounters(_ context.Context, userID, day, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userCounts[pairKey(userID, "day|"+day)]++
	m.userCounts[pairKey(userID, "month|"+month)]++
	return nil
}

func (m *Memory) PlatformCount(_ context.Context, platform models.Platform, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.platCounts[pairKey(string(platform), day)], nil
}

func (m *Memory) IncrementPlatformCounter(_ context.Context, platform models.Platform, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey(string(platform), day)
	m.platCounts[k]++
	return m.platCounts[k], nil
}

func (m *Memory) UpsertUserAutomationProfile(_ context.Context, p models.UserAutomationProfile) error {
	m.PutProfile(p)
	return nil
}

// ---------------- catalog ----------------

// SaveJobScore attaches a fit score for userID to a job already in the
// catalog, replacing any earlier score.
func (m *Memory) SaveJobScore(_ context.Context, userID, jobID string, fit float64, skills []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var job *models.Job
	for _, j := range m.jobs {
		if j.ID == jobID {
			job = j
			break
		}
	}
	if job == nil {
		return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	cand := models.JobCandidate{
		JobID:            job.ID,
		Title:            job.Title,
		Company:          job.Company,
		CompanyCanonical: dedup.Canonical(job.Company),
		Location:         job.Location,
		Source:           job.Source,
		ApplyURL:         job.URL,
		RequiredSkills:   skills,
		FitScore:         fit,
		PostedAt:         job.CreatedAt,
	}
	scored := m.scores[userID][:0:0]
	for _, c := range m.scores[userID] {
		if c.JobID != jobID {
			scored = append(scored, c)
		}
	}
	m.scores[userID] = append(scored, cand)
	return nil
}

func (m *Memory) UpsertJob(_ context.Context, job *models.Job) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.jobs[job.Fingerprint]; ok {
		existing.LastSeenAt = now
		job.ID, job.CreatedAt, job.LastSeenAt = existing.ID, existing.CreatedAt, existing.LastSeenAt
		return false, nil
	}
	stored := *job
	stored.ID = uuid.NewString()
	stored.CreatedAt, stored.LastSeenAt = now, now
	m.jobs[job.Fingerprint] = &stored
	job.ID, job.CreatedAt, job.LastSeenAt = stored.ID, now, now
	return true, nil
}

func (m *Memory) SelectEligibleJobs(_ context.Context, q selector.JobQuery) ([]models.JobCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.JobCandidate
	for _, j := range m.scores[q.UserID] {
		if j.FitScore < q.MinFitScore {
			continue
		}
		if q.ExcludeApplied && m.applied[pairKey(q.UserID, j.JobID)] {
			continue
		}
		if q.ExcludeBlacklisted && m.blacklist[q.UserID][j.CompanyCanonical] {
			continue
		}
		out = append(out, j)
	}
	sort.SliceStable(out, func(a, b int) bool { return selector.Less(out[a], out[b]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ---------------- applications ----------------

func (m *Memory) ExistsApplicationRecord(_ context.Context, userID, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[pairKey(userID, jobID)], nil
}

func (m *Memory) InsertApplicationRecord(_ context.Context, rec models.ApplicationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey(rec.UserID, rec.JobID)
	if m.applied[k] {
		return fmt.Errorf("application %s/%s: %w", rec.UserID, rec.JobID, ErrDuplicate)
	}
	m.applied[k] = true
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) CountApplicationsSince(_ context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.UserID == userID && !r.AppliedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertLearningSignal(_ context.Context, sig models.LearningSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, sig)
	return nil
}

func (m *Memory) InsertRunLog(_ context.Context, e models.RunLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runLogs = append(m.runLogs, e)
	return nil
}

// ---------------- sessions ----------------

func (m *Memory) ValidCredential(_ context.Context, userID string, platform models.Platform) (*models.EncryptedCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[pairKey(userID, string(platform))]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) CredentialCreatedAt(_ context.Context, userID string, platform models.Platform) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[pairKey(userID, string(platform))]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	return c.CreatedAt, nil
}

// SaveCredential stores c as the user's valid session for its platform.
func (m *Memory) SaveCredential(_ context.Context, c models.EncryptedCredential) error {
	c.Valid = true
	c.CreatedAt = time.Now()
	m.PutCredential(c)
	return nil
}
