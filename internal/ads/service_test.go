package ads

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	platformpkg "github.com/paramads/adops-engine/internal/platform"
)

type fakeClient struct {
	statusCalls int
	budgetCalls int
	lastStatus  string
	lastBudget  float64
	err         error
}

func (f *fakeClient) UpdateStatus(ctx context.Context, account platformpkg.AdAccount, entityID, status string) error {
	f.statusCalls++
	f.lastStatus = status
	return f.err
}

func (f *fakeClient) UpdateBudget(ctx context.Context, account platformpkg.AdAccount, entityID string, dailyBudget float64) error {
	f.budgetCalls++
	f.lastBudget = dailyBudget
	return f.err
}

func newTestService(t *testing.T, client platformpkg.Client) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(NewStore(db), platformpkg.Registry{"meta": client}), mock
}

func testTarget() Target {
	return Target{
		ID:               uuid.New(),
		OrganizationID:   uuid.New(),
		AdAccountID:      uuid.New(),
		Kind:             KindCampaign,
		Platform:         "meta",
		PlatformEntityID: "238512",
		Status:           "active",
		DailyBudget:      100,
	}
}

func accountRows(target Target) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "organization_id", "platform", "platform_account_id", "access_token", "status"}).
		AddRow(target.AdAccountID, target.OrganizationID, "meta", "act_1", "tok", "active")
}

func TestService_UpdateStatus_RemoteThenLocal(t *testing.T) {
	client := &fakeClient{}
	svc, mock := newTestService(t, client)
	target := testTarget()

	mock.ExpectQuery("SELECT .+ FROM ad_accounts").
		WithArgs(target.AdAccountID).
		WillReturnRows(accountRows(target))
	mock.ExpectExec("UPDATE campaigns SET status").
		WithArgs("paused", target.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ruleID := uuid.New()
	if err := svc.UpdateStatus(context.Background(), target, "paused", ruleID); err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}
	if client.statusCalls != 1 || client.lastStatus != "paused" {
		t.Errorf("platform call: calls=%d status=%s", client.statusCalls, client.lastStatus)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestService_UpdateStatus_RemoteFailureSkipsLocal(t *testing.T) {
	client := &fakeClient{err: errors.New("token expired")}
	svc, mock := newTestService(t, client)
	target := testTarget()

	mock.ExpectQuery("SELECT .+ FROM ad_accounts").
		WillReturnRows(accountRows(target))

	err := svc.UpdateStatus(context.Background(), target, "paused", uuid.New())
	if err == nil {
		t.Fatal("expected error when platform call fails")
	}
	// No UPDATE or audit INSERT was expected; any would fail the mock.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestService_UpdateBudget(t *testing.T) {
	client := &fakeClient{}
	svc, mock := newTestService(t, client)
	target := testTarget()

	mock.ExpectQuery("SELECT .+ FROM ad_accounts").
		WillReturnRows(accountRows(target))
	mock.ExpectExec("UPDATE campaigns SET daily_budget").
		WithArgs(55.0, target.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.UpdateBudget(context.Background(), target, 55.0, uuid.New()); err != nil {
		t.Fatalf("UpdateBudget() error: %v", err)
	}
	if client.lastBudget != 55.0 {
		t.Errorf("platform budget = %v, want 55", client.lastBudget)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestService_UpdateStatus_UnknownPlatform(t *testing.T) {
	svc, _ := newTestService(t, &fakeClient{})
	target := testTarget()
	target.Platform = "tiktok"

	if err := svc.UpdateStatus(context.Background(), target, "paused", uuid.New()); err == nil {
		t.Fatal("expected error for unregistered platform")
	}
}

func TestStore_ListTargets_ExplicitIDs(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	orgID := uuid.New()
	id := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "organization_id", "campaign_id", "ad_account_id", "platform", "platform_campaign_id", "name", "status", "daily_budget"}).
		AddRow(id, orgID, id, uuid.New(), "meta", "111", "Spring Sale", "active", 40.0)

	mock.ExpectQuery("SELECT .+ FROM campaigns").
		WillReturnRows(rows)

	targets, err := store.ListTargets(context.Background(), orgID, KindCampaign, "meta", false, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("ListTargets() error: %v", err)
	}
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1", len(targets))
	}
	if targets[0].Kind != KindCampaign || targets[0].Name != "Spring Sale" {
		t.Errorf("unexpected target: %+v", targets[0])
	}
}

func TestStore_ListTargets_EmptySelectionWithoutApplyToAll(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	store := NewStore(db)

	targets, err := store.ListTargets(context.Background(), uuid.New(), KindAdSet, "all", false, nil)
	if err != nil {
		t.Fatalf("ListTargets() error: %v", err)
	}
	if targets != nil {
		t.Errorf("got %v, want nil without a query", targets)
	}
}

func TestStore_ListTargets_UnknownKind(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	if _, err := NewStore(db).ListTargets(context.Background(), uuid.New(), TargetKind("keyword"), "all", true, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
