package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"workforce-auth/internal/audit/domain"
)

func TestPostgres_CreateAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewPostgresRepository(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO auth_audit_log").
		WithArgs("a1", "o1", "e1", "sign_in", "sms", "10.0.0.1", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err = repo.Create(context.Background(), &domain.AuditLog{
		ID: "a1", OrgID: "o1", EmployeeID: "e1", Action: "sign_in", Channel: "sms", IP: "10.0.0.1", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	mock.ExpectQuery("SELECT id, org_id, employee_id, action, channel, ip, metadata, created_at").
		WithArgs("e1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "employee_id", "action", "channel", "ip", "metadata", "created_at"}).
			AddRow("a1", "o1", "e1", "sign_in", "sms", "10.0.0.1", nil, now).
			AddRow("a0", "o1", "e1", "sign_out", "", "10.0.0.1", `{"reason":"user"}`, now.Add(-time.Hour)))
	list, err := repo.ListByEmployee(context.Background(), "e1", 10)
	if err != nil {
		t.Fatalf("ListByEmployee: %v", err)
	}
	if len(list) != 2 || list[0].Action != "sign_in" || list[1].Metadata != `{"reason":"user"}` {
		t.Errorf("list = %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
