package engine

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const allowQuery = "data.auth.authz.allow"

// DefaultPolicy grants admins every action and regular users their own profile and sessions.
const DefaultPolicy = `package auth.authz

default allow := false

user_actions := {"profile:read", "sessions:list"}

allow if {
	input.role == "admin"
}

allow if {
	input.role == "user"
	input.action in user_actions
}
`

// OPAEvaluator evaluates role/action decisions with an in-process OPA Rego policy.
// The policy is compiled and prepared once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultPolicy when empty). The policy must define data.auth.authz.allow.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"authz.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("policy: compile: %w", err)
	}
	pq, err := rego.New(rego.Query(allowQuery), rego.Compiler(compiler)).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: prepare: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// Allow evaluates the policy for {role, action}. An undefined result is a denial.
func (e *OPAEvaluator) Allow(ctx context.Context, role, action string) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"role":   role,
		"action": action,
	}))
	if err != nil {
		return false, fmt.Errorf("policy: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}

// HealthCheck verifies the prepared policy still evaluates. Used by the readiness check.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	if _, err := e.Allow(ctx, "admin", ActionPurgeSessions); err != nil {
		return err
	}
	return nil
}
