package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "ingest-rules"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBackendForDefaultsToOpenAI(t *testing.T) {
	cases := map[string]string{
		"":          "openai",
		"openai":    "openai",
		"OpenAI":    "openai",
		"anthropic": "anthropic",
		"bogus":     "openai",
	}
	for in, want := range cases {
		if got := string(backendFor(in)); got != want {
			t.Errorf("backendFor(%q) = %q, want %q", in, got, want)
		}
	}
}
