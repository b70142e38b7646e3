// Package policy decides whether an operation needs an additional one-time
// passcode factor.
//
// Two evaluators ship with the package: [Default], a direct Go rendering of the
// built-in rules, and [Rego], which evaluates the same rules (or an operator
// supplied module) with Open Policy Agent. Both return a [Decision] listing every
// rule that fired.
//
// # What this package must NOT do
//
//   - Read or mutate user state. All facts arrive in [Input].
//   - Issue or verify challenges; that belongs to the otp package.
package policy

import "context"

// Reasons reported in [Decision.Reasons].
const (
	ReasonSensitiveOperation = "sensitive_operation"
	ReasonLoginMFA           = "login_mfa"
	ReasonUnknownDevice      = "unknown_device"
	ReasonUntrustedDevice    = "untrusted_device"
	ReasonHighRisk           = "high_risk"
)

// OperationLogin is the operation name used for password login.
const OperationLogin = "login"

// RiskLevelHigh is the risk level that forces a challenge.
const RiskLevelHigh = "high"

// MFA mirrors the user's MFA enforcement flags.
type MFA struct {
	Enabled                bool
	RequireForLogin        bool
	RequireForSensitiveOps bool
}

// Device describes the requesting device as known to the registry.
type Device struct {
	Known   bool
	Trusted bool
}

// Input carries every fact the rules may inspect.
type Input struct {
	Operation                 string
	Sensitive                 bool
	MFA                       MFA
	Device                    Device
	EnforceDeviceVerification bool
	RiskLevel                 string
}

// Decision is the evaluator output. Required is true iff Reasons is non-empty.
type Decision struct {
	Required bool
	Reasons  []string
}

// Evaluator evaluates the requirement rules.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (Decision, error)
}

// Default is the built-in Go evaluator.
type Default struct{}

// Evaluate applies the built-in rules in a fixed order.
func (Default) Evaluate(_ context.Context, in Input) (Decision, error) {
	var reasons []string
	if in.MFA.RequireForSensitiveOps && in.Sensitive {
		reasons = append(reasons, ReasonSensitiveOperation)
	}
	if in.Operation == OperationLogin && in.MFA.RequireForLogin {
		reasons = append(reasons, ReasonLoginMFA)
	}
	if in.EnforceDeviceVerification {
		switch {
		case !in.Device.Known:
			reasons = append(reasons, ReasonUnknownDevice)
		case !in.Device.Trusted:
			reasons = append(reasons, ReasonUntrustedDevice)
		}
	}
	if in.RiskLevel == RiskLevelHigh {
		reasons = append(reasons, ReasonHighRisk)
	}
	return Decision{Required: len(reasons) > 0, Reasons: reasons}, nil
}
