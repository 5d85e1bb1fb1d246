package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nebulink/vpn-platform/subscribe-service/internal/client"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/config"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
	"github.com/nebulink/vpn-platform/subscribe-service/internal/repository"
)

// ==================== fakes ====================

type fakeSubStore struct {
	subs      map[string]*models.Subscription
	createErr error
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{subs: make(map[string]*models.Subscription)}
}

func (f *fakeSubStore) Create(ctx context.Context, sub *models.Subscription) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.subs[sub.ID] = sub
	return nil
}

func (f *fakeSubStore) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	if sub, ok := f.subs[id]; ok {
		return sub, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSubStore) GetByToken(ctx context.Context, token string) (*models.Subscription, error) {
	for _, sub := range f.subs {
		if sub.Token == token {
			return sub, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSubStore) GetActiveByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	now := time.Now()
	for _, sub := range f.subs {
		if sub.UserID == userID && sub.IsUsable(now) {
			return sub, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeSubStore) ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	var out []*models.Subscription
	for _, sub := range f.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeSubStore) UpdateStatus(ctx context.Context, id, status string) error {
	sub, ok := f.subs[id]
	if !ok {
		return repository.ErrNotFound
	}
	sub.Status = status
	return nil
}

func (f *fakeSubStore) UpdateTrafficUsed(ctx context.Context, id string, trafficUsed int64) error {
	sub, ok := f.subs[id]
	if !ok {
		return repository.ErrNotFound
	}
	sub.TrafficUsed = trafficUsed
	return nil
}

func (f *fakeSubStore) UpdateTerms(ctx context.Context, sub *models.Subscription) error {
	if _, ok := f.subs[sub.ID]; !ok {
		return repository.ErrNotFound
	}
	f.subs[sub.ID] = sub
	return nil
}

type fakePlanStore struct {
	plans map[string]*models.Plan
}

func (f *fakePlanStore) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	if p, ok := f.plans[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

type fakeGroupStore struct {
	groups map[string]*models.ServerGroup
}

func (f *fakeGroupStore) GetByID(ctx context.Context, id string) (*models.ServerGroup, error) {
	if g, ok := f.groups[id]; ok {
		return g, nil
	}
	return nil, repository.ErrNotFound
}

type fakePanel struct {
	addFail   bool
	valid     bool
	validFail bool
	added     []string
	removed   []string
}

func (f *fakePanel) AddUUID(ctx context.Context, panel client.Panel, uuid string) client.Result {
	if f.addFail {
		return client.Result{Success: false, Message: "panel rejected"}
	}
	f.added = append(f.added, uuid)
	return client.Result{Success: true}
}

func (f *fakePanel) RemoveUUID(ctx context.Context, panel client.Panel, uuid string) client.Result {
	f.removed = append(f.removed, uuid)
	return client.Result{Success: true}
}

func (f *fakePanel) ValidateUUID(ctx context.Context, panel client.Panel, uuid string) client.ValidateResult {
	if f.validFail {
		return client.ValidateResult{Result: client.Result{Success: false, Message: "unreachable"}}
	}
	return client.ValidateResult{Result: client.Result{Success: true}, Valid: f.valid}
}

type loggedAction struct {
	subscriptionID string
	action         string
}

type fakeLogger struct {
	entries []loggedAction
}

func (f *fakeLogger) LogAction(ctx context.Context, subscriptionID, action, status, message string) error {
	f.entries = append(f.entries, loggedAction{subscriptionID, action})
	return nil
}

func (f *fakeLogger) LogActionWithMetadata(ctx context.Context, subscriptionID, action, status, message string, metadata map[string]interface{}) error {
	f.entries = append(f.entries, loggedAction{subscriptionID, action})
	return nil
}

// ==================== fixtures ====================

func testConfig() *config.Config {
	return &config.Config{
		Subscribe: config.SubscribeConfig{
			PublicBaseURL: "https://sub.example.com",
			DefaultFormat: "base64",
			CodeLength:    8,
		},
	}
}

type serviceFixture struct {
	svc    *SubscriptionService
	subs   *fakeSubStore
	plans  *fakePlanStore
	groups *fakeGroupStore
	panel  *fakePanel
	logs   *fakeLogger
}

func newFixture(panelEnabled bool) *serviceFixture {
	group := &models.ServerGroup{ID: "group-1", Name: "SG Pool"}
	if panelEnabled {
		group.PanelAPIURL = "http://panel.internal"
		group.PanelAPIKey = "key"
	}

	f := &serviceFixture{
		subs:   newFakeSubStore(),
		plans:  &fakePlanStore{plans: map[string]*models.Plan{"plan-1": {ID: "plan-1", Name: "月付套餐", ServerGroupID: "group-1", Active: true}}},
		groups: &fakeGroupStore{groups: map[string]*models.ServerGroup{"group-1": group}},
		panel:  &fakePanel{valid: true},
		logs:   &fakeLogger{},
	}
	f.svc = NewSubscriptionService(testConfig(), f.subs, f.plans, f.groups, f.logs, f.panel)
	return f
}

// ==================== tests ====================

func TestCreateRegistersCredentialBeforePersisting(t *testing.T) {
	f := newFixture(true)

	sub, err := f.svc.Create(context.Background(), "user-1", "plan-1", 1_000_000_000, 30)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(f.panel.added) != 1 || f.panel.added[0] != sub.Credential {
		t.Errorf("panel.added = %v, want the subscription credential", f.panel.added)
	}
	if _, ok := f.subs.subs[sub.ID]; !ok {
		t.Error("subscription was not persisted")
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Errorf("status = %q, want active", sub.Status)
	}
}

func TestCreateCredentialAndTokenDiffer(t *testing.T) {
	f := newFixture(true)

	sub, err := f.svc.Create(context.Background(), "user-1", "plan-1", 1_000_000_000, 30)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.Credential == sub.Token {
		t.Error("credential and token must never be the same value")
	}
	if sub.Credential == "" || sub.Token == "" {
		t.Error("credential and token must both be set")
	}
}

func TestCreateAbortsWhenPanelRejects(t *testing.T) {
	f := newFixture(true)
	f.panel.addFail = true

	_, err := f.svc.Create(context.Background(), "user-1", "plan-1", 1_000_000_000, 30)
	if err == nil {
		t.Fatal("expected error when panel registration fails")
	}
	if len(f.subs.subs) != 0 {
		t.Error("no subscription row may be written when panel registration fails")
	}
	for _, e := range f.logs.entries {
		if e.subscriptionID == "" {
			t.Errorf("audit entry %q written without a subscription id", e.action)
		}
	}
}

func TestCreateRollsBackPanelOnPersistFailure(t *testing.T) {
	f := newFixture(true)
	f.subs.createErr = errors.New("db down")

	_, err := f.svc.Create(context.Background(), "user-1", "plan-1", 1_000_000_000, 30)
	if err == nil {
		t.Fatal("expected error when persistence fails")
	}
	if len(f.panel.removed) != 1 {
		t.Errorf("panel.removed = %v, want the orphaned credential removed", f.panel.removed)
	}
}

func TestCreateSkipsPanelForDisabledGroup(t *testing.T) {
	f := newFixture(false)

	sub, err := f.svc.Create(context.Background(), "user-1", "plan-1", 1_000_000_000, 30)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(f.panel.added) != 0 {
		t.Error("panel must not be called for a panel-disabled group")
	}
	if _, ok := f.subs.subs[sub.ID]; !ok {
		t.Error("subscription was not persisted")
	}
}

func TestCreateRejectsInvalidTerms(t *testing.T) {
	f := newFixture(true)

	if _, err := f.svc.Create(context.Background(), "user-1", "plan-1", 1_000_000_000, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("zero duration: err = %v, want ErrInvalidDuration", err)
	}
	if _, err := f.svc.Create(context.Background(), "user-1", "plan-1", 0, 30); !errors.Is(err, ErrInvalidQuota) {
		t.Errorf("zero quota: err = %v, want ErrInvalidQuota", err)
	}
}

func TestCreateFromPlanResolvesTerms(t *testing.T) {
	f := newFixture(false)
	f.plans.plans["plan-q"] = &models.Plan{
		ID: "plan-q", Name: "季度套餐", ServerGroupID: "group-1",
		BillingPeriod: models.BillingPeriodQuarterly, Active: true,
	}

	sub, err := f.svc.CreateFromPlan(context.Background(), "user-1", "plan-q")
	if err != nil {
		t.Fatalf("CreateFromPlan: %v", err)
	}
	if sub.TrafficTotal != 3_000_000_000 {
		t.Errorf("TrafficTotal = %d, want 3000000000", sub.TrafficTotal)
	}
	days := int(time.Until(sub.ExpiresAt).Hours()/24 + 0.5)
	if days != 90 {
		t.Errorf("duration = %d days, want 90", days)
	}
}

func TestGetActiveReturnsNilWhenNone(t *testing.T) {
	f := newFixture(false)

	sub, err := f.svc.GetActive(context.Background(), "user-without-sub")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if sub != nil {
		t.Errorf("expected nil subscription, got %+v", sub)
	}
}

func TestGetActiveIgnoresLapsedActiveRow(t *testing.T) {
	// An expired subscription may still be stored with status=active: expiry
	// is computed at read time, never written back. It must stay invisible.
	f := newFixture(false)
	f.subs.subs["sub-lapsed"] = &models.Subscription{
		ID:        "sub-lapsed",
		UserID:    "user-1",
		Status:    models.SubscriptionStatusActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	sub, err := f.svc.GetActive(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if sub != nil {
		t.Errorf("expected nil for a lapsed row still stored active, got %+v", sub)
	}
	if f.subs.subs["sub-lapsed"].Status != models.SubscriptionStatusActive {
		t.Error("stored status must not be transitioned by a read")
	}
}

func TestResumeRefusesLapsedSubscription(t *testing.T) {
	f := newFixture(false)
	f.subs.subs["sub-old"] = &models.Subscription{
		ID:        "sub-old",
		UserID:    "user-1",
		Status:    models.SubscriptionStatusSuspended,
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}

	if err := f.svc.Resume(context.Background(), "sub-old"); !errors.Is(err, ErrSubscriptionLapsed) {
		t.Errorf("err = %v, want ErrSubscriptionLapsed", err)
	}
	if f.subs.subs["sub-old"].Status != models.SubscriptionStatusSuspended {
		t.Error("lapsed subscription must stay suspended")
	}
}

func TestSuspendAndResume(t *testing.T) {
	f := newFixture(false)
	f.subs.subs["sub-1"] = &models.Subscription{
		ID:        "sub-1",
		UserID:    "user-1",
		Status:    models.SubscriptionStatusActive,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	if err := f.svc.Suspend(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if f.subs.subs["sub-1"].Status != models.SubscriptionStatusSuspended {
		t.Error("subscription not suspended")
	}

	if err := f.svc.Resume(context.Background(), "sub-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if f.subs.subs["sub-1"].Status != models.SubscriptionStatusActive {
		t.Error("subscription not resumed")
	}
}

func TestRevokeRemovesCredentialAndSuspends(t *testing.T) {
	f := newFixture(true)

	sub, err := f.svc.Create(context.Background(), "user-1", "plan-1", 1_000_000_000, 30)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := f.svc.Revoke(context.Background(), sub.ID, "abuse"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if len(f.panel.removed) != 1 || f.panel.removed[0] != sub.Credential {
		t.Errorf("panel.removed = %v, want the credential", f.panel.removed)
	}
	if f.subs.subs[sub.ID].Status != models.SubscriptionStatusSuspended {
		t.Error("revoked subscription must be suspended")
	}
}

func TestRenewExtendsUnexpiredSubscription(t *testing.T) {
	f := newFixture(false)
	f.plans.plans["plan-q"] = &models.Plan{
		ID: "plan-q", Name: "季度套餐", ServerGroupID: "group-1",
		BillingPeriod: models.BillingPeriodQuarterly, Active: true,
	}
	expiry := time.Now().Add(10 * 24 * time.Hour).Truncate(time.Second)
	f.subs.subs["sub-1"] = &models.Subscription{
		ID:           "sub-1",
		UserID:       "user-1",
		PlanID:       "plan-q",
		Credential:   "cred",
		Token:        "tok",
		Status:       models.SubscriptionStatusActive,
		TrafficTotal: 3_000_000_000,
		TrafficUsed:  2_000_000_000,
		ExpiresAt:    expiry,
	}

	sub, err := f.svc.Renew(context.Background(), "sub-1", "")
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}

	if want := expiry.AddDate(0, 0, 90); !sub.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v (extended from current expiry)", sub.ExpiresAt, want)
	}
	if sub.TrafficUsed != 0 {
		t.Errorf("TrafficUsed = %d, want 0 after renewal", sub.TrafficUsed)
	}
	if sub.Credential != "cred" || sub.Token != "tok" {
		t.Error("renewal must not rotate credential or token")
	}
}

func TestRenewLapsedSubscriptionRestartsFromNow(t *testing.T) {
	f := newFixture(false)
	f.subs.subs["sub-1"] = &models.Subscription{
		ID:        "sub-1",
		UserID:    "user-1",
		PlanID:    "plan-1",
		Status:    models.SubscriptionStatusSuspended,
		ExpiresAt: time.Now().Add(-30 * 24 * time.Hour),
	}

	sub, err := f.svc.Renew(context.Background(), "sub-1", "")
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}

	if sub.Status != models.SubscriptionStatusActive {
		t.Errorf("status = %q, want active after renewal", sub.Status)
	}
	days := int(time.Until(sub.ExpiresAt).Hours()/24 + 0.5)
	if days != 30 {
		t.Errorf("duration = %d days, want 30 counted from now", days)
	}
}

func TestListForUser(t *testing.T) {
	f := newFixture(false)
	f.subs.subs["a"] = &models.Subscription{ID: "a", UserID: "user-1"}
	f.subs.subs["b"] = &models.Subscription{ID: "b", UserID: "user-2"}

	subs, err := f.svc.ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "a" {
		t.Errorf("got %+v, want only user-1's subscription", subs)
	}
}

func TestVerifyCredentialPanelDisabled(t *testing.T) {
	f := newFixture(false)
	group := f.groups.groups["group-1"]

	res := f.svc.VerifyCredential(context.Background(), group, "whatever")
	if !res.Success || !res.Valid {
		t.Errorf("panel-disabled group must verify as present, got %+v", res)
	}
	if f.panel.validFail {
		t.Error("panel must not be consulted")
	}
}

func TestBuildInfoNeverExposesCredential(t *testing.T) {
	f := newFixture(false)
	sub := &models.Subscription{
		ID:           "sub-1",
		PlanID:       "plan-1",
		Credential:   "secret-credential",
		Token:        "public-token",
		Status:       models.SubscriptionStatusActive,
		TrafficTotal: 100,
		TrafficUsed:  25,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}

	info := f.svc.BuildInfo(sub)
	if info.Token != "public-token" {
		t.Errorf("Token = %q, want public-token", info.Token)
	}
	if !strings.Contains(info.SubscribeURL, "token=public-token") {
		t.Errorf("SubscribeURL = %q, want it built from the token", info.SubscribeURL)
	}
	if strings.Contains(info.SubscribeURL, "secret-credential") {
		t.Error("credential leaked into the subscribe URL")
	}
	if info.TrafficPercent != 25.0 {
		t.Errorf("TrafficPercent = %v, want 25", info.TrafficPercent)
	}
}

func TestBuildInfoEffectiveStatus(t *testing.T) {
	f := newFixture(false)
	sub := &models.Subscription{
		ID:        "sub-1",
		Status:    models.SubscriptionStatusActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	info := f.svc.BuildInfo(sub)
	if info.Status != models.SubscriptionStatusExpired {
		t.Errorf("Status = %q, want expired (computed at read time)", info.Status)
	}
}
