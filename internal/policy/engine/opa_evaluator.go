package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"workforce-auth/internal/employee/domain"
	"workforce-auth/internal/policy/repository"
)

const allowQuery = "data.workforce.channels.allow"

// Default Rego policy: every channel is allowed.
const defaultRegoPolicy = `package workforce.channels

default allow := true
`

// OPAEvaluator evaluates channel policies using OPA Rego. Organizations without a stored policy get the
// default; a policy that fails to load or evaluate also falls back to the default.
type OPAEvaluator struct {
	policyRepo repository.Repository
	logger     *zap.Logger
}

// NewOPAEvaluator returns an OPA-based policy evaluator. logger may be nil.
func NewOPAEvaluator(policyRepo repository.Repository, logger *zap.Logger) *OPAEvaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OPAEvaluator{policyRepo: policyRepo, logger: logger}
}

// HealthCheck verifies that the in-process OPA Rego engine can compile and evaluate the default policy.
// Does not call the policy repo or database.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evaluate(ctx, defaultRegoPolicy, buildInput(&domain.Employee{}, "sms"))
	return err
}

// Allowed evaluates the organization's channel policy for employee.
func (e *OPAEvaluator) Allowed(ctx context.Context, employee *domain.Employee, channel string) (bool, error) {
	policy := defaultRegoPolicy
	p, err := e.policyRepo.GetByOrg(ctx, employee.OrganizationID)
	if err != nil {
		e.logger.Warn("policy: failed to load channel policy, using default",
			zap.String("org_id", employee.OrganizationID), zap.Error(err))
	} else if p != nil && p.Rules != "" {
		policy = p.Rules
	}

	allowed, err := e.evaluate(ctx, policy, buildInput(employee, channel))
	if err != nil {
		e.logger.Warn("policy: evaluation failed, using default",
			zap.String("org_id", employee.OrganizationID), zap.Error(err))
		return e.evaluate(ctx, defaultRegoPolicy, buildInput(employee, channel))
	}
	return allowed, nil
}

func buildInput(employee *domain.Employee, channel string) map[string]interface{} {
	return map[string]interface{}{
		"channel": channel,
		"employee": map[string]interface{}{
			"id":              employee.ID,
			"organization_id": employee.OrganizationID,
			"role":            employee.Role,
			"has_phone":       employee.Phone != "",
			"has_email":       employee.Email != "",
			"can_expense":     employee.CanExpense,
		},
	}
}

// evaluate compiles module and queries allow. An undefined allow (no default in the module) is a deny.
func (e *OPAEvaluator) evaluate(ctx context.Context, module string, input map[string]interface{}) (bool, error) {
	compiler, err := ast.CompileModules(map[string]string{"channels.rego": module})
	if err != nil {
		return false, fmt.Errorf("compile policy: %w", err)
	}
	rs, err := rego.New(
		rego.Query(allowQuery),
		rego.Compiler(compiler),
		rego.Input(input),
	).Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy allow is %T, want bool", rs[0].Expressions[0].Value)
	}
	return allowed, nil
}
