package cmd

import (
	"testing"
)

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()

	if cmd.Use != "matchday" {
		t.Errorf("expected use 'matchday', got %q", cmd.Use)
	}
	if !cmd.SilenceUsage || !cmd.SilenceErrors {
		t.Error("expected usage and errors to be silenced")
	}
	if flag := cmd.PersistentFlags().Lookup("config"); flag == nil {
		t.Fatal("expected config flag")
	}

	want := map[string]bool{"crawl": false, "serve": false, "cache": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s subcommand", name)
		}
	}
}

func TestNewCacheCmd(t *testing.T) {
	t.Parallel()

	cmd := newCacheCmd()

	want := map[string]bool{"export": false, "import": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s subcommand", name)
		}
	}
	export, _, err := cmd.Find([]string{"export"})
	if err != nil {
		t.Fatalf("find export: %v", err)
	}
	if flag := export.Flags().Lookup("out"); flag == nil {
		t.Fatal("expected out flag on export")
	}
}
