package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"workforce-auth/internal/policy/domain"
)

func TestPostgres_GetByOrg(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT org_id, rules, updated_at FROM org_channel_policies").
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"org_id", "rules", "updated_at"}).AddRow("o1", "package workforce.channels", now))
	p, err := repo.GetByOrg(context.Background(), "o1")
	if err != nil || p == nil || p.Rules != "package workforce.channels" {
		t.Fatalf("GetByOrg = %+v, %v", p, err)
	}

	mock.ExpectQuery("SELECT org_id, rules, updated_at FROM org_channel_policies").
		WithArgs("o2").
		WillReturnRows(sqlmock.NewRows([]string{"org_id", "rules", "updated_at"}))
	p, err = repo.GetByOrg(context.Background(), "o2")
	if err != nil || p != nil {
		t.Fatalf("missing policy = %+v, %v", p, err)
	}

	mock.ExpectExec("INSERT INTO org_channel_policies").
		WithArgs("o1", "rules", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Upsert(context.Background(), &domain.ChannelPolicy{OrgID: "o1", Rules: "rules", UpdatedAt: now}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
