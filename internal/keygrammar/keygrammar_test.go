package keygrammar

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"User.Name":             "user.name",
		"users/name":            "user.name",
		"  Project/Tasks/done ": "project.tasks.done",
		"agent.case.test":       "agent.case.test",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := []string{"user.name", "agent.case.test_failure.abc123", "project.tasks.done"}
	for _, k := range valid {
		if !Validate(k) {
			t.Errorf("Validate(%q) = false, want true", k)
		}
	}

	invalid := []string{"", "user", "bogus.category", "user.", ".name"}
	for _, k := range invalid {
		if Validate(k) {
			t.Errorf("Validate(%q) = true, want false", k)
		}
	}
}

func TestCategory(t *testing.T) {
	if got := Category("user.name"); got != "user" {
		t.Errorf("Category = %q, want user", got)
	}
	if got := Category("noDot"); got != "noDot" {
		t.Errorf("Category = %q, want noDot", got)
	}
}
