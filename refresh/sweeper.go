package refresh

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-crm-install/core"
	"github.com/goliatone/go-crm-install/install"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultLookahead = 7200 * time.Second
	defaultBudget    = 120 * time.Second
	defaultLockTTL   = 30 * time.Second
)

// Report summarizes one sweep pass. Failed rows are counted, not fatal;
// they stay expiring and the next pass picks them up again.
type Report struct {
	Companies int
	Locations int
	Refreshed int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// Sweeper refreshes credentials that expire inside the lookahead window. Each
// row is processed under its own subject lease, and a row failure never stops
// the rest of the pass.
type Sweeper struct {
	companies core.CompanyStore
	locations core.LocationStore
	exchanger core.CredentialExchanger
	tasks     core.TaskQueue
	locker    core.SubjectLocker
	lookahead time.Duration
	budget    time.Duration
	lockTTL   time.Duration
	now       func() time.Time
	logger    core.Logger
}

type SweeperOption func(*Sweeper)

func WithLookahead(lookahead time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if lookahead > 0 {
			s.lookahead = lookahead
		}
	}
}

func WithBudget(budget time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if budget > 0 {
			s.budget = budget
		}
	}
}

func WithLockTTL(ttl time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithTaskQueue routes exchanges through the background task runner so the
// sweep shares retry accounting with everything else. Without it the sweeper
// calls the exchanger directly.
func WithTaskQueue(tasks core.TaskQueue) SweeperOption {
	return func(s *Sweeper) {
		s.tasks = tasks
	}
}

func WithLocker(locker core.SubjectLocker) SweeperOption {
	return func(s *Sweeper) {
		if locker != nil {
			s.locker = locker
		}
	}
}

func WithNowFunc(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSweeperLogger(logger core.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSweeper(
	companies core.CompanyStore,
	locations core.LocationStore,
	exchanger core.CredentialExchanger,
	options ...SweeperOption,
) (*Sweeper, error) {
	if companies == nil {
		return nil, fmt.Errorf("refresh: company store is required")
	}
	if locations == nil {
		return nil, fmt.Errorf("refresh: location store is required")
	}
	if exchanger == nil {
		return nil, fmt.Errorf("refresh: credential exchanger is required")
	}
	sweeper := &Sweeper{
		companies: companies,
		locations: locations,
		exchanger: exchanger,
		locker:    core.NewMemorySubjectLocker(),
		lookahead: defaultLookahead,
		budget:    defaultBudget,
		lockTTL:   defaultLockTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		if option != nil {
			option(sweeper)
		}
	}
	_, sweeper.logger = glog.Resolve("crm-install.refresh", nil, sweeper.logger)
	return sweeper, nil
}

// Sweep runs one pass under the time budget. Listing failures end the pass;
// per-row failures are logged and counted.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	if s == nil || s.companies == nil || s.locations == nil || s.exchanger == nil {
		return Report{}, fmt.Errorf("refresh: sweeper is not configured")
	}

	started := s.now()
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	horizon := started.Unix() + int64(s.lookahead/time.Second)
	report := Report{}

	companies, err := s.companies.ListExpiring(ctx, horizon)
	if err != nil {
		return report, fmt.Errorf("refresh: list expiring companies: %w", err)
	}
	report.Companies = len(companies)

	locations, err := s.locations.ListExpiring(ctx, horizon)
	if err != nil {
		return report, fmt.Errorf("refresh: list expiring locations: %w", err)
	}
	report.Locations = len(locations)

	for _, company := range companies {
		if ctx.Err() != nil {
			break
		}
		s.refreshCompany(ctx, company, &report)
	}
	for _, location := range locations {
		if ctx.Err() != nil {
			break
		}
		s.refreshLocation(ctx, location, &report)
	}

	report.Elapsed = s.now().Sub(started)
	s.logger.Info("refresh sweep finished",
		"companies", report.Companies,
		"locations", report.Locations,
		"refreshed", report.Refreshed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"elapsed", report.Elapsed.String(),
	)
	return report, nil
}

func (s *Sweeper) refreshCompany(ctx context.Context, company core.Company, report *Report) {
	subjectKey := core.SubjectKey(core.SubjectCompany, company.CompanyID)
	handle, err := s.locker.Acquire(ctx, subjectKey, s.lockTTL)
	if err != nil {
		report.Skipped++
		s.logger.Debug("subject lease held, skipping", "subject", subjectKey)
		return
	}
	defer func() { _ = handle.Unlock(ctx) }()

	credential, err := s.exchange(ctx, core.SubjectCompany, company.RefreshToken)
	if err != nil {
		report.Failed++
		s.logger.Error("company refresh failed", "company_id", company.CompanyID, "error", err)
		return
	}

	if _, err := s.companies.Upsert(ctx, core.UpsertCompanyInput{
		CompanyID:    company.CompanyID,
		AccessToken:  credential.AccessToken,
		RefreshToken: coalesce(credential.RefreshToken, company.RefreshToken),
		ExpiresAt:    credential.ExpiresAt,
		UserID:       coalesce(credential.UserID, company.UserID),
	}); err != nil {
		report.Failed++
		s.logger.Error("company refresh write-back failed", "company_id", company.CompanyID, "error", err)
		return
	}
	report.Refreshed++
}

func (s *Sweeper) refreshLocation(ctx context.Context, location core.Location, report *Report) {
	subjectKey := core.SubjectKey(core.SubjectLocation, location.LocationID)
	handle, err := s.locker.Acquire(ctx, subjectKey, s.lockTTL)
	if err != nil {
		report.Skipped++
		s.logger.Debug("subject lease held, skipping", "subject", subjectKey)
		return
	}
	defer func() { _ = handle.Unlock(ctx) }()

	credential, err := s.exchange(ctx, core.SubjectLocation, location.RefreshToken)
	if err != nil {
		report.Failed++
		s.logger.Error("location refresh failed", "location_id", location.LocationID, "error", err)
		return
	}

	if _, err := s.locations.Upsert(ctx, core.UpsertLocationInput{
		LocationID:   location.LocationID,
		CompanyID:    location.CompanyID,
		AccessToken:  credential.AccessToken,
		RefreshToken: coalesce(credential.RefreshToken, location.RefreshToken),
		ExpiresAt:    credential.ExpiresAt,
	}); err != nil {
		report.Failed++
		s.logger.Error("location refresh write-back failed", "location_id", location.LocationID, "error", err)
		return
	}
	report.Refreshed++
}

// exchange runs a refresh-token grant, through the task runner when one is
// wired, otherwise straight against the exchanger.
func (s *Sweeper) exchange(ctx context.Context, subject core.SubjectType, refreshToken string) (core.Credential, error) {
	grant := core.RefreshTokenGrant{
		RefreshToken: refreshToken,
		SubjectType:  subject,
	}
	if s.tasks == nil {
		return s.exchanger.Exchange(ctx, grant)
	}

	result, err := s.tasks.EnqueueAndAwait(ctx, &core.TaskMessage{
		TaskID: install.TaskExchangeCredential,
		Parameters: map[string]any{
			install.ParamGrantType:    core.GrantTypeRefreshToken,
			install.ParamRefreshToken: refreshToken,
			install.ParamSubjectType:  string(subject),
		},
	})
	if err != nil {
		return core.Credential{}, err
	}
	return credentialFromResult(subject, result)
}

func credentialFromResult(subject core.SubjectType, result map[string]any) (core.Credential, error) {
	credential := core.Credential{
		SubjectType:  subject,
		SubjectID:    resultString(result, "subject_id"),
		AccessToken:  resultString(result, "access_token"),
		RefreshToken: resultString(result, "refresh_token"),
		ExpiresAt:    resultInt64(result, "expires_at"),
	}
	if credential.AccessToken == "" {
		return core.Credential{}, fmt.Errorf("refresh: exchange task returned no access token")
	}
	return credential, nil
}

func resultString(result map[string]any, key string) string {
	if result == nil {
		return ""
	}
	value, ok := result[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func resultInt64(result map[string]any, key string) int64 {
	if result == nil {
		return 0
	}
	switch value := result[key].(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case float64:
		return int64(value)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func coalesce(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
