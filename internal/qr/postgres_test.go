package qr

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresStore_Authenticate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := NewPostgresStore(db)
	now := t0.Add(time.Minute)
	emp, _ := json.Marshal(ana())

	mock.ExpectExec("UPDATE qr_sessions SET status = 'authenticated'").
		WithArgs("qr_a", emp, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := s.Authenticate(context.Background(), "qr_a", ana(), now); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	mock.ExpectExec("UPDATE qr_sessions SET status = 'authenticated'").
		WithArgs("qr_a", emp, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, employee_data, created_at, expires_at FROM qr_sessions").
		WithArgs("qr_a").
		WillReturnRows(sqlmock.NewRows([]string{"status", "employee_data", "created_at", "expires_at"}).
			AddRow("authenticated", emp, t0, t0.Add(5*time.Minute)))
	if err := s.Authenticate(context.Background(), "qr_a", ana(), now); !errors.Is(err, ErrNotWaiting) {
		t.Errorf("want ErrNotWaiting, got %v", err)
	}

	mock.ExpectExec("UPDATE qr_sessions SET status = 'authenticated'").
		WithArgs("qr_gone", emp, now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status, employee_data, created_at, expires_at FROM qr_sessions").
		WithArgs("qr_gone").
		WillReturnRows(sqlmock.NewRows([]string{"status", "employee_data", "created_at", "expires_at"}))
	if err := s.Authenticate(context.Background(), "qr_gone", ana(), now); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresStore_Claim(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := NewPostgresStore(db)
	emp, _ := json.Marshal(ana())

	mock.ExpectQuery("DELETE FROM qr_sessions WHERE id = \\$1 AND status = 'authenticated'").
		WithArgs("qr_a").
		WillReturnRows(sqlmock.NewRows([]string{"employee_data", "created_at", "expires_at"}).
			AddRow(emp, t0, t0.Add(5*time.Minute)))
	got, err := s.Claim(context.Background(), "qr_a")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if got.Employee == nil || got.Employee.ID != "e1" || got.Status != "authenticated" {
		t.Errorf("Claim = %+v", got)
	}

	mock.ExpectQuery("DELETE FROM qr_sessions WHERE id = \\$1 AND status = 'authenticated'").
		WithArgs("qr_w").
		WillReturnRows(sqlmock.NewRows([]string{"employee_data", "created_at", "expires_at"}))
	mock.ExpectQuery("SELECT status, employee_data, created_at, expires_at FROM qr_sessions").
		WithArgs("qr_w").
		WillReturnRows(sqlmock.NewRows([]string{"status", "employee_data", "created_at", "expires_at"}).
			AddRow("waiting", nil, t0, t0.Add(5*time.Minute)))
	if _, err := s.Claim(context.Background(), "qr_w"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("want ErrNotAuthenticated, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestPostgresStore_CreateExpireDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	s := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO qr_sessions").
		WithArgs("qr_a", "waiting", t0, t0.Add(5*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE qr_sessions SET status = 'expired'").
		WithArgs("qr_a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM qr_sessions WHERE id").
		WithArgs("qr_a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM qr_sessions WHERE expires_at").
		WithArgs(t0).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := s.Create(ctx, waiting("qr_a")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Expire(ctx, "qr_a"); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if err := s.Delete(ctx, "qr_a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, err := s.DeleteExpired(ctx, t0); err != nil || n != 3 {
		t.Errorf("DeleteExpired = %d, %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}
