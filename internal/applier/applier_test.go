package applier_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-openclaw-autoapply/internal/applier"
	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/credential"
	"go-openclaw-autoapply/internal/database"
	"go-openclaw-autoapply/internal/executor"
	"go-openclaw-autoapply/internal/ledger"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/risk"
	"go-openclaw-autoapply/internal/runlog"
	"go-openclaw-autoapply/internal/selector"
)

const (
	testUser = "user-1"
	testKey  = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

// 22:00 in Asia/Kolkata, inside the nightly window.
var nightIST = time.Date(2026, 3, 10, 16, 30, 0, 0, time.UTC)

// ---------------- fakes ----------------

type fakeSurface struct {
	mu        sync.Mutex
	injected  int
	submitted []string
	panicOn   map[string]bool
	failOn    map[string]error
}

func (f *fakeSurface) WithIsolatedSession(_ context.Context, _ models.Platform, fn func(executor.Session) error) error {
	return fn(&fakeSession{f: f})
}

func (f *fakeSurface) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type fakeSession struct{ f *fakeSurface }

func (s *fakeSession) InjectCredential(_ context.Context, cookies []browser.Cookie) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if len(cookies) == 0 {
		return errors.New("empty cookie jar")
	}
	s.f.injected++
	return nil
}

func (s *fakeSession) Submit(_ context.Context, job models.JobCandidate) (string, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.panicOn[job.JobID] {
		panic("page crashed")
	}
	if err := s.f.failOn[job.JobID]; err != nil {
		return "", err
	}
	s.f.submitted = append(s.f.submitted, job.JobID)
	return "submitted", nil
}

func (s *fakeSession) CaptureEvidence(runID, jobID string) (string, error) {
	return filepath.Join("logs", "screenshots", runID, jobID+".png"), nil
}

// trackingCreds keeps every opened session so tests can check it was destroyed.
type trackingCreds struct {
	inner  *credential.Provider
	mu     sync.Mutex
	opened []*credential.Session
}

func (c *trackingCreds) HasUsable(ctx context.Context, userID string, p models.Platform) (bool, error) {
	return c.inner.HasUsable(ctx, userID, p)
}

func (c *trackingCreds) Open(ctx context.Context, userID string, p models.Platform) (*credential.Session, error) {
	s, err := c.inner.Open(ctx, userID, p)
	if err == nil {
		c.mu.Lock()
		c.opened = append(c.opened, s)
		c.mu.Unlock()
	}
	return s, err
}

type countingSelector struct {
	inner applier.JobSelector
	calls int
}

func (s *countingSelector) Select(ctx context.Context, userID string, remaining int) ([]models.JobCandidate, error) {
	s.calls++
	return s.inner.Select(ctx, userID, remaining)
}

// fixedSelector ignores the catalog and always returns jobs.
type fixedSelector []models.JobCandidate

func (s fixedSelector) Select(context.Context, string, int) ([]models.JobCandidate, error) {
	return s, nil
}

// scriptedGate delegates to a real guard unless a call index is overridden.
type scriptedGate struct {
	inner    applier.RiskGate
	override map[int]risk.Assessment
	calls    int
}

func (g *scriptedGate) Assess(ctx context.Context, actor risk.ActorContext, action models.ActionType, pc risk.PlatformContext) risk.Assessment {
	g.calls++
	if a, ok := g.override[g.calls]; ok {
		return a
	}
	return g.inner.Assess(ctx, actor, action, pc)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) NotifyApplied(ctx context.Context, userID string, job models.JobCandidate, reviewMode bool) error {
	return m.Called(ctx, userID, job, reviewMode).Error(0)
}

type panickingNotifier struct{ calls int }

func (n *panickingNotifier) NotifyApplied(context.Context, string, models.JobCandidate, bool) error {
	n.calls++
	panic("telegram client not initialised")
}

type failingProfiles struct{}

func (failingProfiles) GetUserAutomationProfile(context.Context, string) (*models.UserAutomationProfile, error) {
	return nil, errors.New("connection refused")
}

// ---------------- harness ----------------

type harness struct {
	t        *testing.T
	now      time.Time
	store    *database.Memory
	ledger   *ledger.Ledger
	surface  *fakeSurface
	creds    *trackingCreds
	selector *countingSelector
	gate     *scriptedGate
	notifier *mockNotifier
	slept    []time.Duration
	deps     applier.Deps
	opts     applier.Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	h := &harness{
		t:       t,
		now:     nightIST,
		store:   database.NewMemory(),
		surface: &fakeSurface{panicOn: map[string]bool{}, failOn: map[string]error{}},
	}
	clock := func() time.Time { return h.now }

	vault, err := credential.NewVault(testKey)
	require.NoError(t, err)

	h.ledger = ledger.New(h.store, ist, ledger.WithClock(clock))
	h.creds = &trackingCreds{inner: credential.NewProvider(h.store, vault, clock)}
	h.selector = &countingSelector{inner: selector.New(h.store, 60, 5)}
	h.gate = &scriptedGate{inner: risk.NewGuard(h.ledger), override: map[int]risk.Assessment{}}
	h.notifier = &mockNotifier{}
	h.notifier.On("NotifyApplied", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	h.deps = applier.Deps{
		Profiles:    h.store,
		Records:     h.store,
		Quota:       h.ledger,
		Selector:    h.selector,
		Risk:        h.gate,
		Credentials: h.creds,
		Executor:    executor.New(h.surface),
		Notifier:    h.notifier,
		RunLog:      runlog.New("applier", h.store),
	}
	h.opts = applier.Options{
		WindowStartHour:      20,
		WindowEndHour:        6,
		Location:             ist,
		MonthlyCap:           250,
		DefaultDailyLimit:    10,
		MaxAppliesPerRun:     10,
		ReviewPeriod:         14 * 24 * time.Hour,
		RateLimitedPlatforms: []models.Platform{models.PlatformLinkedIn},
		Now:                  clock,
		Sleep: func(_ context.Context, d time.Duration) error {
			h.slept = append(h.slept, d)
			return nil
		},
	}

	activated := nightIST.Add(-30 * 24 * time.Hour)
	h.store.PutProfile(models.UserAutomationProfile{
		UserID:            testUser,
		Tier:              models.TierPaid,
		AutomationEnabled: true,
		Consent:           true,
		DailyApplyLimit:   10,
		ActivatedAt:       &activated,
	})

	blob, err := vault.Encrypt([]byte(`[{"name":"li_at","value":"AQEDAS-secret","domain":".linkedin.com"}]`))
	require.NoError(t, err)
	for _, p := range []models.Platform{models.PlatformLinkedIn, models.PlatformIndeed} {
		h.store.PutCredential(models.EncryptedCredential{
			UserID:    testUser,
			Platform:  p,
			Blob:      blob,
			Valid:     true,
			CreatedAt: nightIST.Add(-48 * time.Hour),
		})
	}
	return h
}

func (h *harness) applier() *applier.Applier {
	return applier.New(h.deps, h.opts)
}

func (h *harness) addJobs(jobs ...models.JobCandidate) {
	for _, j := range jobs {
		h.store.AddCandidate(testUser, j)
	}
}

func (h *harness) dailyCount() int {
	n, err := h.ledger.DailyCount(context.Background(), testUser)
	require.NoError(h.t, err)
	return n
}

func (h *harness) platformCount(p models.Platform) int {
	n, err := h.ledger.PlatformCountToday(context.Background(), p)
	require.NoError(h.t, err)
	return n
}

func job(id, company string, p models.Platform, fit float64) models.JobCandidate {
	return models.JobCandidate{
		JobID:    id,
		Title:    "Backend Engineer",
		Company:  company,
		Source:   string(p),
		ApplyURL: "https://jobs.example.com/" + id,
		FitScore: fit,
		PostedAt: nightIST.Add(-24 * time.Hour),
	}
}

func threeLinkedInJobs() []models.JobCandidate {
	return []models.JobCandidate{
		job("job-1", "Acme", models.PlatformLinkedIn, 90),
		job("job-2", "Globex", models.PlatformLinkedIn, 80),
		job("job-3", "Initech", models.PlatformLinkedIn, 70),
	}
}

func outcomeFor(t *testing.T, res *applier.RunResult, jobID string) applier.Outcome {
	t.Helper()
	for _, o := range res.Outcomes {
		if o.JobID == jobID {
			return o
		}
	}
	t.Fatalf("no outcome for %s", jobID)
	return applier.Outcome{}
}

// ---------------- tests ----------------

func TestInWindow(t *testing.T) {
	tests := []struct {
		hour, start, end int
		want             bool
	}{
		{22, 20, 6, true},
		{20, 20, 6, true},
		{3, 20, 6, true},
		{6, 20, 6, false},
		{14, 20, 6, false},
		{10, 9, 17, true},
		{17, 9, 17, false},
		{5, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_in_%d-%d", tt.hour, tt.start, tt.end), func(t *testing.T) {
			assert.Equal(t, tt.want, applier.InWindow(tt.hour, tt.start, tt.end))
		})
	}
}

func TestFreeTierIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.store.PutProfile(models.UserAutomationProfile{UserID: testUser, Tier: models.TierFree, AutomationEnabled: true, Consent: true})
	h.addJobs(threeLinkedInJobs()...)

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunSkipped, res.Status)
	assert.Contains(t, res.Reason, "free")
	assert.Empty(t, h.store.Records())
	assert.Zero(t, h.selector.calls)
}

func TestOutsideWindowNeverSelectsJobs(t *testing.T) {
	h := newHarness(t)
	h.now = time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC) // 14:00 IST
	h.addJobs(threeLinkedInJobs()...)

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunSkipped, res.Status)
	assert.Contains(t, res.Reason, "window")
	assert.Zero(t, h.selector.calls)
	assert.Zero(t, h.surface.submitCount())
}

func TestDailyCapReached(t *testing.T) {
	h := newHarness(t)
	h.store.SetUserCount(testUser, "day", h.ledger.DayKey(), 10)
	h.addJobs(threeLinkedInJobs()...)

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunSkipped, res.Status)
	assert.Contains(t, res.Reason, "daily")
	assert.Zero(t, h.gate.calls)
	assert.Zero(t, h.surface.submitCount())
}

func TestGateSequence(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness)
		reason string
	}{
		{
			name:   "unknown user",
			mutate: func(h *harness) { h.deps.Profiles = database.NewMemory() },
			reason: applier.ReasonUserNotFound,
		},
		{
			name: "automation disabled",
			mutate: func(h *harness) {
				h.store.PutProfile(models.UserAutomationProfile{UserID: testUser, Tier: models.TierPaid, Consent: true})
			},
			reason: applier.ReasonNotEnabled,
		},
		{
			name: "paused",
			mutate: func(h *harness) {
				h.store.PutProfile(models.UserAutomationProfile{UserID: testUser, Tier: models.TierPaid, AutomationEnabled: true, Paused: true, Consent: true})
			},
			reason: applier.ReasonPaused,
		},
		{
			name: "no consent",
			mutate: func(h *harness) {
				h.store.PutProfile(models.UserAutomationProfile{UserID: testUser, Tier: models.TierPaid, AutomationEnabled: true})
			},
			reason: applier.ReasonConsentMissing,
		},
		{
			name:   "monthly cap",
			mutate: func(h *harness) { h.store.SetUserCount(testUser, "month", h.ledger.MonthKey(), 250) },
			reason: applier.ReasonMonthlyCap,
		},
		{
			name:   "nothing eligible",
			mutate: func(h *harness) {},
			reason: applier.ReasonNoEligibleJobs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.mutate(h)

			res, err := h.applier().Run(context.Background(), testUser, 0)
			require.NoError(t, err)
			assert.Equal(t, models.RunSkipped, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Empty(t, res.Outcomes)

			logs := h.store.RunLogs()
			require.NotEmpty(t, logs)
			assert.Equal(t, models.RunSkipped, logs[len(logs)-1].Status)
		})
	}
}

func TestOneRiskBlockAmongThree(t *testing.T) {
	h := newHarness(t)
	h.addJobs(threeLinkedInJobs()...)
	h.gate.override[2] = risk.Assessment{Level: risk.Critical, Proceed: false, Reason: "critical band: 1250 linkedin actions today"}

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunCompleted, res.Status)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Skipped)
	assert.Len(t, h.store.Records(), 2)
	assert.Equal(t, 2, h.dailyCount())
	assert.Equal(t, 2, h.platformCount(models.PlatformLinkedIn))

	blocked := outcomeFor(t, res, "job-2")
	assert.Equal(t, applier.OutcomeSkipped, blocked.Status)
	assert.Equal(t, "anti_ban:critical", blocked.Reason)
	assert.Contains(t, blocked.Detail, "critical band")

	for _, id := range []string{"job-1", "job-3"} {
		o := outcomeFor(t, res, id)
		assert.Equal(t, applier.OutcomeApplied, o.Status)
		assert.NotEmpty(t, o.ApplicationID)
	}
}

func TestKillSwitchOnlyBlocksThatPlatform(t *testing.T) {
	h := newHarness(t)
	h.store.SetPlatformCount(models.PlatformLinkedIn, h.ledger.DayKey(), 1500)
	h.addJobs(
		job("li-1", "Acme", models.PlatformLinkedIn, 95),
		job("in-1", "Globex", models.PlatformIndeed, 90),
		job("li-2", "Initech", models.PlatformLinkedIn, 85),
	)

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunCompleted, res.Status)
	for _, id := range []string{"li-1", "li-2"} {
		o := outcomeFor(t, res, id)
		assert.Equal(t, applier.OutcomeSkipped, o.Status)
		assert.Equal(t, "anti_ban:critical", o.Reason)
		assert.Contains(t, o.Detail, "kill switch")
	}
	assert.Equal(t, applier.OutcomeApplied, outcomeFor(t, res, "in-1").Status)

	assert.Equal(t, 1500, h.platformCount(models.PlatformLinkedIn))
	assert.Zero(t, h.platformCount(models.PlatformIndeed))
	assert.Equal(t, []string{"in-1"}, h.surface.submitted)
}

func TestExecutorCrashIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.addJobs(threeLinkedInJobs()...)
	h.surface.panicOn["job-2"] = true

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunCompleted, res.Status)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Failed)

	failed := outcomeFor(t, res, "job-2")
	assert.Equal(t, applier.OutcomeFailed, failed.Status)
	assert.Equal(t, applier.ReasonApplyFailed, failed.Reason)
	assert.NotEmpty(t, failed.EvidencePath)
	assert.Contains(t, failed.EvidencePath, res.RunID)
	assert.Empty(t, failed.ApplicationID)

	assert.Equal(t, applier.OutcomeApplied, outcomeFor(t, res, "job-3").Status)
	assert.Equal(t, 2, h.dailyCount())
}

func TestFailedSubmitDoesNotConsumeQuota(t *testing.T) {
	h := newHarness(t)
	h.addJobs(job("job-1", "Acme", models.PlatformLinkedIn, 90))
	h.surface.failOn["job-1"] = errors.New("timeout waiting for submit button")

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunCompleted, res.Status)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, h.dailyCount())
	assert.Zero(t, h.platformCount(models.PlatformLinkedIn))
	assert.Empty(t, h.store.Records())
	assert.Contains(t, outcomeFor(t, res, "job-1").Detail, "timeout")
}

func TestSecondAttemptRejectedBeforeExecutor(t *testing.T) {
	h := newHarness(t)
	same := job("job-1", "Acme", models.PlatformLinkedIn, 90)
	h.deps.Selector = fixedSelector{same}

	first, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)
	require.Equal(t, 1, first.Applied)

	second, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, applier.ReasonAlreadyApplied, outcomeFor(t, second, "job-1").Reason)
	assert.Len(t, h.store.Records(), 1)
	assert.Equal(t, 1, h.surface.submitCount())
	assert.Equal(t, 1, h.dailyCount())
}

func TestCredentialDestroyedAfterEveryInjection(t *testing.T) {
	h := newHarness(t)
	h.addJobs(threeLinkedInJobs()...)
	h.surface.failOn["job-3"] = errors.New("form validation error")

	_, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	require.Len(t, h.creds.opened, 3)
	assert.Equal(t, len(h.creds.opened), h.surface.injected)
	for _, s := range h.creds.opened {
		assert.True(t, s.Destroyed())
		assert.Nil(t, s.Cookies())
	}
}

func TestAllCandidatesRiskBlocked(t *testing.T) {
	h := newHarness(t)
	h.store.SetPlatformCount(models.PlatformLinkedIn, h.ledger.DayKey(), 1300)
	h.addJobs(threeLinkedInJobs()...)

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, models.RunSkipped, res.Status)
	assert.Equal(t, applier.ReasonRiskBlocked, res.Reason)
	assert.Len(t, res.Outcomes, 3)
	assert.Zero(t, h.surface.submitCount())
}

func TestCandidateSkips(t *testing.T) {
	h := newHarness(t)
	h.store.Blacklist(testUser, "Évil Corp")
	h.store.PutCredential(models.EncryptedCredential{UserID: testUser, Platform: models.PlatformIndeed, Valid: false, Blob: "x"})
	h.deps.Selector = fixedSelector{
		job("bl-1", "evil corp", models.PlatformLinkedIn, 95),
		job("tc-1", "Acme", models.Platform("topcv"), 90),
		job("in-1", "Globex", models.PlatformIndeed, 85),
	}

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, applier.ReasonCompanyBlacklisted, outcomeFor(t, res, "bl-1").Reason)
	assert.Equal(t, applier.ReasonNoValidSession, outcomeFor(t, res, "tc-1").Reason)
	assert.Equal(t, applier.ReasonNoValidSession, outcomeFor(t, res, "in-1").Reason)
	assert.Zero(t, h.gate.calls)
	assert.Zero(t, h.surface.submitCount())
	// skips that never reached the gate are not a risk block
	assert.Equal(t, models.RunCompleted, res.Status)
}

func TestUndecryptableSessionIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.store.PutCredential(models.EncryptedCredential{UserID: testUser, Platform: models.PlatformLinkedIn, Valid: true, Blob: "bm90LWEtcmVhbC1ibG9i"})
	h.addJobs(job("job-1", "Acme", models.PlatformLinkedIn, 90))

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	o := outcomeFor(t, res, "job-1")
	assert.Equal(t, applier.OutcomeSkipped, o.Status)
	assert.Equal(t, applier.ReasonNoValidSession, o.Reason)
	assert.Zero(t, h.surface.injected)
}

func TestReviewModeLabelsRecordQueued(t *testing.T) {
	h := newHarness(t)
	recent := nightIST.Add(-3 * 24 * time.Hour)
	h.store.PutProfile(models.UserAutomationProfile{
		UserID: testUser, Tier: models.TierPaid, AutomationEnabled: true, Consent: true, ActivatedAt: &recent,
	})
	h.addJobs(job("job-1", "Acme", models.PlatformLinkedIn, 90))

	_, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	recs := h.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.AutoStatusQueued, recs[0].AutoStatus)
	assert.True(t, recs[0].ReviewMode)
	assert.Equal(t, models.MethodLinkedInEasy, recs[0].Method)

	h.notifier.AssertCalled(t, "NotifyApplied", mock.Anything, testUser, mock.Anything, true)
}

func TestSubmittedAfterReviewPeriod(t *testing.T) {
	h := newHarness(t)
	h.addJobs(job("job-1", "Acme", models.PlatformLinkedIn, 90))

	_, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	recs := h.store.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.AutoStatusSubmitted, recs[0].AutoStatus)
	assert.Equal(t, float64(90), recs[0].FitScore)

	sigs := h.store.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, "application_submitted", sigs[0].SignalType)
	assert.Equal(t, "linkedin", sigs[0].Context["platform"])
}

func TestNotificationFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	n := &mockNotifier{}
	n.On("NotifyApplied", mock.Anything, testUser, mock.Anything, false).Return(errors.New("telegram: chat not found"))
	h.deps.Notifier = n
	h.addJobs(threeLinkedInJobs()...)

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Applied)
	assert.Len(t, h.store.Records(), 3)
	n.AssertNumberOfCalls(t, "NotifyApplied", 3)
}

func TestNotifierPanicKeepsAppliedOutcome(t *testing.T) {
	h := newHarness(t)
	n := &panickingNotifier{}
	h.deps.Notifier = n
	h.addJobs(job("job-1", "Acme", models.PlatformLinkedIn, 90))

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 0, res.Failed)
	o := outcomeFor(t, res, "job-1")
	assert.Equal(t, applier.OutcomeApplied, o.Status)
	assert.Empty(t, o.Reason)
	assert.NotEmpty(t, o.ApplicationID)

	assert.Equal(t, 1, n.calls)
	assert.Len(t, h.store.Records(), 1)
	assert.Len(t, h.store.Signals(), 1)
	assert.Equal(t, 1, h.dailyCount())
	assert.Equal(t, 1, h.platformCount(models.PlatformLinkedIn))
}

func TestRiskDelayIsHonored(t *testing.T) {
	h := newHarness(t)
	h.addJobs(job("job-1", "Acme", models.PlatformLinkedIn, 90))
	h.gate.override[1] = risk.Assessment{Level: risk.Medium, Proceed: true, Delay: 30 * time.Second, Reason: "medium band"}

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, []time.Duration{30 * time.Second}, h.slept)
}

func TestBudgetStopsTheLoop(t *testing.T) {
	h := newHarness(t)
	h.store.SetUserCount(testUser, "day", h.ledger.DayKey(), 8)
	for i := 0; i < 6; i++ {
		h.addJobs(job(fmt.Sprintf("job-%d", i), fmt.Sprintf("Company %d", i), models.PlatformLinkedIn, float64(90-i)))
	}

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 10, h.dailyCount())
	assert.Equal(t, []string{"job-0", "job-1"}, h.surface.submitted)
}

func TestRunMaxCapsApplies(t *testing.T) {
	h := newHarness(t)
	h.addJobs(threeLinkedInJobs()...)

	res, err := h.applier().Run(context.Background(), testUser, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	assert.Len(t, res.Outcomes, 1)
}

func TestProfileStoreErrorFailsRun(t *testing.T) {
	h := newHarness(t)
	h.deps.Profiles = failingProfiles{}

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.Error(t, err)

	assert.Equal(t, models.RunFailed, res.Status)
	assert.Contains(t, res.Reason, "connection refused")
	logs := h.store.RunLogs()
	require.NotEmpty(t, logs)
	assert.Equal(t, models.RunFailed, logs[len(logs)-1].Status)
}

func TestResultCarriesRunMetadata(t *testing.T) {
	h := newHarness(t)
	h.opts.NewID = func() string { return "run-fixed" }
	h.addJobs(job("job-1", "Acme", models.PlatformLinkedIn, 90))

	res, err := h.applier().Run(context.Background(), testUser, 0)
	require.NoError(t, err)

	assert.Equal(t, "run-fixed", res.RunID)
	assert.Equal(t, testUser, res.UserID)
	logs := h.store.RunLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, models.RunRunning, logs[0].Status)
	assert.Equal(t, models.RunCompleted, logs[1].Status)
	assert.Equal(t, 1, logs[1].Processed)
}
