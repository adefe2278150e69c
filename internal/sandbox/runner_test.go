package sandbox

import "testing"

func TestContainerWorkdir_MapsPlanRelativePath(t *testing.T) {
	got := containerWorkdir("/plans/abc", "/plans/abc/cache/git/repo1")
	want := "/workspace/cache/git/repo1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestContainerWorkdir_RootItself(t *testing.T) {
	got := containerWorkdir("/plans/abc", "/plans/abc")
	if got != containerRoot {
		t.Fatalf("got %q, want %q", got, containerRoot)
	}
}

func TestContainerWorkdir_OutsidePlanMapsToRoot(t *testing.T) {
	got := containerWorkdir("/plans/abc", "/etc/passwd")
	if got != containerRoot {
		t.Fatalf("got %q, want container root for a path outside the plan", got)
	}
}

func TestContainerWorkdir_NeverLeaksHostAbsolutePath(t *testing.T) {
	cases := []string{"/etc", "/plans/other-plan/x", "/"}
	for _, wd := range cases {
		got := containerWorkdir("/plans/abc", wd)
		if got != containerRoot {
			t.Fatalf("containerWorkdir(%q) = %q, want %q (must never leak a host path)", wd, got, containerRoot)
		}
	}
}

func TestContainerName_SanitisesKey(t *testing.T) {
	got := containerName("proposal:2026-07-31-abc123:agent/1")
	for _, r := range got {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			t.Fatalf("containerName produced disallowed rune %q in %q", r, got)
		}
	}
}

func TestKey_IncludesAgentIDWhenPresent(t *testing.T) {
	if k := key("plan1", ""); k != "proposal:plan1" {
		t.Fatalf("key without agent = %q", k)
	}
	if k := key("plan1", "agentA"); k != "proposal:plan1:agentA" {
		t.Fatalf("key with agent = %q", k)
	}
}
