package policy

import (
	"context"
	"reflect"
	"testing"
)

func requirementCases() []struct {
	name    string
	in      Input
	reasons []string
} {
	return []struct {
		name    string
		in      Input
		reasons []string
	}{
		{
			name: "trusted device plain operation",
			in: Input{
				Operation:                 "view_orders",
				Device:                    Device{Known: true, Trusted: true},
				EnforceDeviceVerification: true,
				RiskLevel:                 "low",
			},
		},
		{
			name: "sensitive operation with enforcement flag",
			in: Input{
				Operation:                 "change_password",
				Sensitive:                 true,
				MFA:                       MFA{RequireForSensitiveOps: true},
				Device:                    Device{Known: true, Trusted: true},
				EnforceDeviceVerification: true,
			},
			reasons: []string{ReasonSensitiveOperation},
		},
		{
			name: "sensitive operation without enforcement flag",
			in: Input{
				Operation: "change_password",
				Sensitive: true,
				Device:    Device{Known: true, Trusted: true},
			},
		},
		{
			name: "new device at login",
			in: Input{
				Operation:                 OperationLogin,
				MFA:                       MFA{RequireForSensitiveOps: true},
				EnforceDeviceVerification: true,
			},
			reasons: []string{ReasonUnknownDevice},
		},
		{
			name: "known untrusted device with login mfa",
			in: Input{
				Operation:                 OperationLogin,
				MFA:                       MFA{Enabled: true, RequireForLogin: true},
				Device:                    Device{Known: true},
				EnforceDeviceVerification: true,
			},
			reasons: []string{ReasonLoginMFA, ReasonUntrustedDevice},
		},
		{
			name: "device verification disabled",
			in: Input{
				Operation: OperationLogin,
				Device:    Device{},
			},
		},
		{
			name: "high risk alone",
			in: Input{
				Operation: "view_orders",
				Device:    Device{Known: true, Trusted: true},
				RiskLevel: RiskLevelHigh,
			},
			reasons: []string{ReasonHighRisk},
		},
	}
}

func TestDefaultEvaluator(t *testing.T) {
	for _, tc := range requirementCases() {
		got, err := Default{}.Evaluate(context.Background(), tc.in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got.Required != (len(tc.reasons) > 0) {
			t.Fatalf("%s: required=%v, want %v", tc.name, got.Required, len(tc.reasons) > 0)
		}
		if len(tc.reasons) == 0 && len(got.Reasons) == 0 {
			continue
		}
		if !reflect.DeepEqual(got.Reasons, tc.reasons) {
			t.Fatalf("%s: reasons=%v, want %v", tc.name, got.Reasons, tc.reasons)
		}
	}
}

func TestRegoMatchesDefault(t *testing.T) {
	ctx := context.Background()
	evaluator, err := NewRego(ctx, "")
	if err != nil {
		t.Fatalf("NewRego: %v", err)
	}

	for _, tc := range requirementCases() {
		want, _ := Default{}.Evaluate(ctx, tc.in)
		got, err := evaluator.Evaluate(ctx, tc.in)
		if err != nil {
			t.Fatalf("%s: rego evaluate: %v", tc.name, err)
		}
		if got.Required != want.Required {
			t.Fatalf("%s: rego required=%v, default %v", tc.name, got.Required, want.Required)
		}
		if len(want.Reasons) == 0 && len(got.Reasons) == 0 {
			continue
		}
		if !reflect.DeepEqual(got.Reasons, want.Reasons) {
			t.Fatalf("%s: rego reasons=%v, default %v", tc.name, got.Reasons, want.Reasons)
		}
	}
}

func TestRegoCustomModule(t *testing.T) {
	module := `package authgate.otp

default required := false

reasons contains "always" if {
	input.operation != ""
}

required if count(reasons) > 0
`
	evaluator, err := NewRego(context.Background(), module)
	if err != nil {
		t.Fatalf("NewRego: %v", err)
	}
	got, err := evaluator.Evaluate(context.Background(), Input{Operation: "anything"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !got.Required || len(got.Reasons) == 0 || got.Reasons[0] != "always" {
		t.Fatalf("unexpected decision: %+v", got)
	}
}

func TestRegoRejectsBrokenModule(t *testing.T) {
	if _, err := NewRego(context.Background(), "package broken\nthis is not rego"); err == nil {
		t.Fatal("expected compile error")
	}
}
