package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// DefaultQuery is the document evaluated by [Rego].
const DefaultQuery = "data.authgate.otp"

// DefaultModule is the Rego rendering of the built-in rules. Custom modules must
// define the same package with a boolean "required" rule and a "reasons" set.
const DefaultModule = `package authgate.otp

default required := false

reasons contains "sensitive_operation" if {
	input.mfa.require_for_sensitive_ops
	input.sensitive
}

reasons contains "login_mfa" if {
	input.operation == "login"
	input.mfa.require_for_login
}

reasons contains "unknown_device" if {
	input.enforce_device_verification
	not input.device.known
}

reasons contains "untrusted_device" if {
	input.enforce_device_verification
	input.device.known
	not input.device.trusted
}

reasons contains "high_risk" if {
	input.risk_level == "high"
}

required if count(reasons) > 0
`

var reasonOrder = map[string]int{
	ReasonSensitiveOperation: 0,
	ReasonLoginMFA:           1,
	ReasonUnknownDevice:      2,
	ReasonUntrustedDevice:    3,
	ReasonHighRisk:           4,
}

// Rego evaluates requirement rules with Open Policy Agent.
type Rego struct {
	query rego.PreparedEvalQuery
}

// NewRego compiles module (DefaultModule when empty) and prepares the query.
func NewRego(ctx context.Context, module string) (*Rego, error) {
	if module == "" {
		module = DefaultModule
	}
	compiler, err := ast.CompileModules(map[string]string{"otp.rego": module})
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}
	prepared, err := rego.New(
		rego.Query(DefaultQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	return &Rego{query: prepared}, nil
}

// Evaluate runs the prepared query against in.
func (r *Rego) Evaluate(ctx context.Context, in Input) (Decision, error) {
	if r == nil {
		return Decision{}, errors.New("policy: rego evaluator not initialized")
	}
	rs, err := r.query.Eval(ctx, rego.EvalInput(buildInput(in)))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, errors.New("policy: empty result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, errors.New("policy: unexpected result type")
	}

	var out Decision
	if v, ok := doc["required"].(bool); ok {
		out.Required = v
	}
	if raw, ok := doc["reasons"].([]interface{}); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out.Reasons = append(out.Reasons, s)
			}
		}
	}
	sort.SliceStable(out.Reasons, func(i, j int) bool {
		return rank(out.Reasons[i]) < rank(out.Reasons[j])
	})
	return out, nil
}

func rank(reason string) int {
	if v, ok := reasonOrder[reason]; ok {
		return v
	}
	return len(reasonOrder)
}

func buildInput(in Input) map[string]interface{} {
	return map[string]interface{}{
		"operation": in.Operation,
		"sensitive": in.Sensitive,
		"mfa": map[string]interface{}{
			"enabled":                   in.MFA.Enabled,
			"require_for_login":         in.MFA.RequireForLogin,
			"require_for_sensitive_ops": in.MFA.RequireForSensitiveOps,
		},
		"device": map[string]interface{}{
			"known":   in.Device.Known,
			"trusted": in.Device.Trusted,
		},
		"enforce_device_verification": in.EnforceDeviceVerification,
		"risk_level":                  in.RiskLevel,
	}
}
