package auth_test

import (
	"sort"
	"testing"

	"shopadmin.org/internal/auth"
)

func testPrincipal(super bool, perms ...string) auth.Principal {
	var list []auth.Permission
	for _, name := range perms {
		resource, action := splitPerm(name)
		list = append(list, auth.Permission{Name: name, Resource: resource, Action: action})
	}
	return auth.NewPrincipal(&auth.User{ID: "u1", IsSuperAdmin: super}, list)
}

func splitPerm(name string) (string, string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}

func TestHasPermissionExactMatch(t *testing.T) {
	p := testPrincipal(false, "users.read", "products.update")

	if !p.HasPermission("users", "read") {
		t.Fatal("granted permission denied")
	}
	if p.HasPermission("users", "delete") {
		t.Fatal("missing permission granted")
	}
	// No hierarchy or wildcard semantics.
	if p.HasPermission("users", "") || p.HasPermission("", "read") {
		t.Fatal("partial match granted")
	}
}

func TestSuperAdminBypass(t *testing.T) {
	p := testPrincipal(true)
	if !p.HasPermission("anything", "at-all") {
		t.Fatal("super admin denied")
	}
	if !p.HasAnyPermission(auth.PermissionRef{Resource: "x", Action: "y"}) {
		t.Fatal("super admin denied by any-of check")
	}
}

func TestHasAnyPermission(t *testing.T) {
	p := testPrincipal(false, "reports.read")

	ok := p.HasAnyPermission(
		auth.PermissionRef{Resource: "reports", Action: "export"},
		auth.PermissionRef{Resource: "reports", Action: "read"},
	)
	if !ok {
		t.Fatal("any-of with one match denied")
	}
	if p.HasAnyPermission(auth.PermissionRef{Resource: "settings", Action: "update"}) {
		t.Fatal("any-of with no match granted")
	}
	if p.HasAnyPermission() {
		t.Fatal("empty any-of granted")
	}
}

func TestPermissionKeysSorted(t *testing.T) {
	p := testPrincipal(false, "users.read", "audit.read", "products.update")
	keys := p.PermissionKeys()
	if len(keys) != 3 {
		t.Fatalf("keys = %v, want 3 entries", keys)
	}
	if !sort.StringsAreSorted(keys) {
		t.Fatalf("keys not sorted: %v", keys)
	}
}
