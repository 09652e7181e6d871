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
		{name: "viewer edit", role: RoleViewer, action: ActionEdit, allow: false},
		{name: "viewer manage", role: RoleViewer, action: ActionManage, allow: false},
		{name: "collaborator edit", role: RoleCollaborator, action: ActionEdit, allow: true},
		{name: "collaborator manage", role: RoleCollaborator, action: ActionManage, allow: false},
		{name: "owner manage", role: RoleOwner, action: ActionManage, allow: true},
		{name: "owner administer", role: RoleOwner, action: ActionAdminister, allow: false},
		{name: "admin administer", role: RoleAdmin, action: ActionAdminister, allow: true},
		{name: "none read", role: RoleNone, action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestLevelsAreOrdered(t *testing.T) {
	ladder := []Role{RoleViewer, RoleCollaborator, RoleOwner, RoleAdmin}
	for i, role := range ladder {
		if role.Level() != i+1 {
			t.Fatalf("%q.Level() = %d, want %d", role, role.Level(), i+1)
		}
		for j, other := range ladder {
			if got := role.AtLeast(other); got != (i >= j) {
				t.Fatalf("%q.AtLeast(%q) = %v", role, other, got)
			}
		}
	}
	if RoleNone.AtLeast(RoleNone) {
		t.Fatal("no standing must never satisfy a minimum")
	}
}

func TestUnknownActionNeedsAdmin(t *testing.T) {
	if Can(RoleOwner, Action("purge")) {
		t.Fatal("owner must not pass an unknown action")
	}
	if !Can(RoleAdmin, Action("purge")) {
		t.Fatal("admin must pass every action")
	}
}

func TestParseCollaboratorRole(t *testing.T) {
	for _, value := range []string{"viewer", "collaborator"} {
		if _, ok := ParseCollaboratorRole(value); !ok {
			t.Fatalf("expected %q to parse", value)
		}
	}
	for _, value := range []string{"owner", "admin", "", "Viewer"} {
		if _, ok := ParseCollaboratorRole(value); ok {
			t.Fatalf("expected %q to be rejected", value)
		}
	}
}

func TestNormalizeUnknownRoleHasNoStanding(t *testing.T) {
	if got := Normalize("editor"); got != RoleNone {
		t.Fatalf("Normalize(editor) = %q, want %q", got, RoleNone)
	}
	if got := Normalize("owner"); got != RoleOwner {
		t.Fatalf("Normalize(owner) = %q, want %q", got, RoleOwner)
	}
}
