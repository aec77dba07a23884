package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-crm-install/core"
	crmmigrations "github.com/goliatone/go-crm-install/migrations"
	sqlstore "github.com/goliatone/go-crm-install/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "crm-install-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:crm-install-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = crmmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != crmmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, crmmigrations.WithValidationTargets(crmmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newTestFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"crm_companies", "crm_locations", "crm_contacts"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestCompanyStoreUpsertConverges(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newTestFactory(t)
	defer cleanup()

	companies := factory.CompanyStore()
	created, err := companies.Upsert(ctx, core.UpsertCompanyInput{
		CompanyID:    "comp_1",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    1_700_086_400,
		UserID:       "user_1",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if created.CompanyID != "comp_1" || created.AccessToken != "at-1" {
		t.Fatalf("unexpected company %+v", created)
	}

	updated, err := companies.Upsert(ctx, core.UpsertCompanyInput{
		CompanyID:    "comp_1",
		AccessToken:  "at-2",
		RefreshToken: "rt-2",
		ExpiresAt:    1_700_172_800,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if updated.AccessToken != "at-2" || updated.ExpiresAt != 1_700_172_800 {
		t.Fatalf("expected rotated credential, got %+v", updated)
	}
	if updated.UserID != "user_1" {
		t.Fatalf("user id must survive a rotation that omits it, got %q", updated.UserID)
	}

	fetched, err := companies.Get(ctx, "comp_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.AccessToken != "at-2" {
		t.Fatalf("expected latest credential, got %+v", fetched)
	}
}

func TestCompanyStoreGetMissingIsNotFound(t *testing.T) {
	factory, cleanup := newTestFactory(t)
	defer cleanup()

	_, err := factory.CompanyStore().Get(context.Background(), "comp_missing")
	if !core.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestCompanyStoreListExpiringHonorsHorizon(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newTestFactory(t)
	defer cleanup()

	companies := factory.CompanyStore()
	horizon := int64(1_700_007_200)
	rows := []core.UpsertCompanyInput{
		{CompanyID: "comp_due", AccessToken: "at", ExpiresAt: horizon - 3600},
		{CompanyID: "comp_close", AccessToken: "at", ExpiresAt: horizon - 1},
		{CompanyID: "comp_edge", AccessToken: "at", ExpiresAt: horizon},
		{CompanyID: "comp_later", AccessToken: "at", ExpiresAt: horizon + 2800},
		{CompanyID: "comp_never", AccessToken: "at"},
	}
	for _, row := range rows {
		if _, err := companies.Upsert(ctx, row); err != nil {
			t.Fatalf("seed %s: %v", row.CompanyID, err)
		}
	}

	expiring, err := companies.ListExpiring(ctx, horizon)
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}
	if len(expiring) != 2 {
		t.Fatalf("expected only rows strictly inside the horizon, got %d", len(expiring))
	}
	if expiring[0].CompanyID != "comp_due" || expiring[1].CompanyID != "comp_close" {
		t.Fatalf("expected ascending expiry order, got %+v", expiring)
	}
	for _, company := range expiring {
		if company.CompanyID == "comp_edge" {
			t.Fatalf("row expiring exactly at the horizon must wait for the next sweep")
		}
	}
}

func TestLocationStoreUpsertAndListByCompany(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newTestFactory(t)
	defer cleanup()

	locations := factory.LocationStore().(*sqlstore.LocationStore)
	for _, id := range []string{"loc_1", "loc_2"} {
		if _, err := locations.Upsert(ctx, core.UpsertLocationInput{
			LocationID:  id,
			CompanyID:   "comp_1",
			AccessToken: "at-" + id,
			ExpiresAt:   1_700_086_400,
		}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	byCompany, err := locations.ListByCompany(ctx, "comp_1")
	if err != nil {
		t.Fatalf("list by company: %v", err)
	}
	if len(byCompany) != 2 {
		t.Fatalf("expected two locations, got %d", len(byCompany))
	}

	rotated, err := locations.Upsert(ctx, core.UpsertLocationInput{
		LocationID:  "loc_1",
		CompanyID:   "comp_1",
		AccessToken: "at-rotated",
		ExpiresAt:   1_700_172_800,
	})
	if err != nil {
		t.Fatalf("rotate loc_1: %v", err)
	}
	if rotated.AccessToken != "at-rotated" {
		t.Fatalf("expected rotated token, got %+v", rotated)
	}
	if again, err := locations.ListByCompany(ctx, "comp_1"); err != nil || len(again) != 2 {
		t.Fatalf("rotation must not add rows: len=%d err=%v", len(again), err)
	}
}

func TestContactStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newTestFactory(t)
	defer cleanup()

	contacts := factory.ContactStore()
	for i := 0; i < 3; i++ {
		if _, err := contacts.Upsert(ctx, core.UpsertContactInput{
			ContactID:  "contact_1",
			LocationID: "loc_1",
		}); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}

	contact, err := contacts.Get(ctx, "contact_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if contact.LocationID != "loc_1" {
		t.Fatalf("unexpected contact %+v", contact)
	}

	var count int
	if err := factory.DB().NewRaw(
		"SELECT COUNT(*) FROM crm_contacts WHERE id = ?",
		"contact_1",
	).Scan(ctx, &count); err != nil {
		t.Fatalf("count contacts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}
