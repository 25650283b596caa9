// seed inserts development sample data for local testing: go run ./cmd/seed after migrating.
// Idempotent: rows that already exist are left alone.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"workforce-auth/internal/config"
	"workforce-auth/internal/db"
	"workforce-auth/internal/employee/domain"
	employeerepo "workforce-auth/internal/employee/repository"
	"workforce-auth/internal/platform/logging"
	policydomain "workforce-auth/internal/policy/domain"
	policyrepo "workforce-auth/internal/policy/repository"
	"workforce-auth/internal/security"
)

// contractorPolicy keeps contractors off WhatsApp; every other channel stays open.
const contractorPolicy = `package workforce.channels

default allow := true

allow := false if {
	input.channel == "whatsapp"
	input.employee.role == "contractor"
}
`

const (
	devPassword    = "password123"
	devOrgID       = "dev-org-001"
	contractorOrg  = "dev-org-002"
	devPushToken   = "dev-fcm-token-001"
	devPushProfile = "android"
)

var employees = []domain.Employee{
	{
		ID: "dev-emp-001", OrganizationID: devOrgID, FirstName: "Dev", LastName: "Owner",
		Email: "dev@example.com", Phone: "+15555550100", Username: "dev",
		Role: "admin", Active: true, CanExpense: true,
	},
	{
		ID: "dev-emp-002", OrganizationID: devOrgID, FirstName: "Mia", LastName: "Member",
		Email: "member@example.com", Phone: "+15555550101", Username: "member",
		Role: "employee", Active: true,
	},
	{
		ID: "dev-emp-003", OrganizationID: devOrgID, FirstName: "Eli", LastName: "Emailonly",
		Email: "emailonly@example.com", Username: "emailonly",
		Role: "employee", Active: true,
	},
	{
		ID: "dev-emp-004", OrganizationID: devOrgID, FirstName: "Ina", LastName: "Inactive",
		Email: "inactive@example.com", Phone: "+15555550103", Username: "inactive",
		Role: "employee", Active: false,
	},
	{
		ID: "dev-emp-005", OrganizationID: contractorOrg, FirstName: "Cam", LastName: "Contractor",
		Email: "contractor@example.com", Phone: "+15555550104", Username: "contractor",
		Role: "contractor", Active: true,
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(false, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := seed(context.Background(), cfg, logger); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func seed(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	repo := employeerepo.NewPostgresRepository(conn)
	if err := repo.CreateOrganization(ctx, devOrgID, "Acme Dev"); err != nil {
		return fmt.Errorf("create org: %w", err)
	}
	if err := repo.CreateOrganization(ctx, contractorOrg, "Acme Contractors"); err != nil {
		return fmt.Errorf("create contractor org: %w", err)
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	for i := range employees {
		e := &employees[i]
		if err := repo.Create(ctx, e, hash); err != nil {
			return fmt.Errorf("create employee %s: %w", e.ID, err)
		}
	}
	if err := repo.AddPushToken(ctx, employees[0].ID, devPushToken, devPushProfile); err != nil {
		return fmt.Errorf("add push token: %w", err)
	}

	policies := policyrepo.NewPostgresRepository(conn)
	if err := policies.Upsert(ctx, &policydomain.ChannelPolicy{
		OrgID:     contractorOrg,
		Rules:     contractorPolicy,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}

	logger.Info("seed completed")
	for _, e := range employees {
		fmt.Printf("%-12s %-24s %-14s password: %s active: %t\n", e.Username, e.Email, e.Phone, devPassword, e.Active)
	}
	return nil
}
