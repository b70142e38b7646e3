package permission

import (
	"reflect"
	"testing"
)

func newTestRoles(t *testing.T) (*Registry, *RoleManager) {
	t.Helper()
	reg, err := NewRegistry(64, true)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	for _, p := range []string{"orders:read", "orders:refund", "products:*"} {
		if _, err := reg.Register(p); err != nil {
			t.Fatalf("Register %s: %v", p, err)
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	if err := rm.RegisterRole("support", []string{"orders:read"}); err != nil {
		t.Fatalf("RegisterRole: %v", err)
	}
	if err := rm.RegisterRole("catalog", []string{"products:*"}); err != nil {
		t.Fatalf("RegisterRole: %v", err)
	}
	if err := rm.RegisterRole("admin", []string{Wildcard}); err != nil {
		t.Fatalf("RegisterRole: %v", err)
	}
	rm.Freeze()
	return reg, rm
}

func TestAllowed(t *testing.T) {
	_, rm := newTestRoles(t)

	cases := []struct {
		role, resource, action string
		want                   bool
	}{
		{"support", "orders", "read", true},
		{"support", "orders", "refund", false},
		{"catalog", "products", "delete", true},
		{"catalog", "orders", "read", false},
		{"admin", "anything", "goes", true},
		{"ghost", "orders", "read", false},
	}
	for _, tc := range cases {
		if got := rm.Allowed(tc.role, tc.resource, tc.action); got != tc.want {
			t.Fatalf("Allowed(%s, %s, %s) = %v, want %v", tc.role, tc.resource, tc.action, got, tc.want)
		}
	}
}

func TestRegistryRejectsBadNamesAndFreeze(t *testing.T) {
	reg, err := NewRegistry(64, false)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := reg.Register("orders"); err == nil {
		t.Fatal("expected error for name without action")
	}
	if _, err := reg.Register("orders:read"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Register("orders:read"); err == nil {
		t.Fatal("expected duplicate error")
	}
	reg.Freeze()
	if _, err := reg.Register("orders:write"); err == nil {
		t.Fatal("expected frozen error")
	}
	if _, err := NewRegistry(100, false); err == nil {
		t.Fatal("expected invalid width error")
	}
}

func TestMaskWidthAndNames(t *testing.T) {
	reg, _ := NewRegistry(128, false)
	for i := 0; i < 70; i++ {
		if _, err := reg.Register(Name("r", string(rune('a'+i%26))+string(rune('a'+i/26)))); err != nil {
			t.Fatalf("Register %d: %v", i, err)
		}
	}
	m := reg.NewMask()
	m.Set(3)
	m.Set(69)
	m.Set(500)
	if !m.Has(69) || m.Has(68) || m.Has(500) {
		t.Fatal("unexpected mask bits")
	}
	n3, _ := reg.Name(3)
	n69, _ := reg.Name(69)
	if got := reg.Names(m); !reflect.DeepEqual(got, []string{n3, n69}) {
		t.Fatalf("Names = %v", got)
	}
	m.Clear(69)
	if m.Has(69) {
		t.Fatal("Clear did not clear")
	}
}

func TestRoleRequiresRegisteredPermission(t *testing.T) {
	reg, _ := NewRegistry(64, false)
	rm := NewRoleManager(reg)
	if err := rm.RegisterRole("x", []string{"orders:read"}); err == nil {
		t.Fatal("expected unregistered permission error")
	}
	if err := rm.RegisterRole("root", []string{Wildcard}); err == nil {
		t.Fatal("expected root bit error")
	}
}

func TestResourceWildcardExpandsRegisteredActions(t *testing.T) {
	reg, _ := NewRegistry(64, false)
	for _, p := range []string{"orders:read", "orders:write", "reports:read"} {
		if _, err := reg.Register(p); err != nil {
			t.Fatalf("Register %s: %v", p, err)
		}
	}
	reg.Freeze()

	rm := NewRoleManager(reg)
	if err := rm.RegisterRole("manager", []string{"orders:*"}); err != nil {
		t.Fatalf("RegisterRole: %v", err)
	}
	if err := rm.RegisterRole("auditor", []string{"invoices:*"}); err == nil {
		t.Fatal("expected error for a resource without registered actions")
	}
	if !rm.Allowed("manager", "orders", "write") || !rm.Allowed("manager", "orders", "read") {
		t.Fatal("expected orders:* to allow every registered orders action")
	}
	if rm.Allowed("manager", "reports", "read") {
		t.Fatal("orders:* must not leak into other resources")
	}
	if got := rm.Permissions("manager"); !reflect.DeepEqual(got, []string{"orders:read", "orders:write"}) {
		t.Fatalf("Permissions = %v", got)
	}
}

func TestPermissionsReportsRootAndUnknownRoles(t *testing.T) {
	_, rm := newTestRoles(t)
	if got := rm.Permissions("admin"); !reflect.DeepEqual(got, []string{Wildcard}) {
		t.Fatalf("admin Permissions = %v", got)
	}
	if got := rm.Permissions("support"); !reflect.DeepEqual(got, []string{"orders:read"}) {
		t.Fatalf("support Permissions = %v", got)
	}
	if got := rm.Permissions("ghost"); got != nil {
		t.Fatalf("ghost Permissions = %v", got)
	}
}
