package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "operator write", role: RoleOperator, action: ActionWrite, allow: true},
		{name: "operator review", role: RoleOperator, action: ActionReview, allow: false},
		{name: "operator submit", role: RoleOperator, action: ActionSubmit, allow: false},
		{name: "supervisor review", role: RoleSupervisor, action: ActionReview, allow: true},
		{name: "supervisor unlock", role: RoleSupervisor, action: ActionUnlock, allow: true},
		{name: "supervisor admin", role: RoleSupervisor, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalizeDefaultsToViewer(t *testing.T) {
	if got := Normalize("captain"); got != RoleViewer {
		t.Fatalf("Normalize(captain) = %q, want viewer", got)
	}
	if got := Normalize("supervisor"); got != RoleSupervisor {
		t.Fatalf("Normalize(supervisor) = %q", got)
	}
}
