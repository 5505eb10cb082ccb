package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"--help"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "experiment") {
		t.Fatalf("help output missing experiment command: %s", stdout.String())
	}
}

func TestRunReportsExitCodes(t *testing.T) {
	db := filepath.Join(t.TempDir(), "lab.db")
	var stdout, stderr bytes.Buffer

	if code := run([]string{"--env-file", "", "--db", db, "reagent", "show", "Ethanol"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for unknown reagent, got %d", code)
	}
	if !strings.Contains(stderr.String(), `reagent "Ethanol" not found`) {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}

	stderr.Reset()
	if code := run([]string{"--env-file", "", "--db", db, "reagent", "consume", "Ethanol", "lots"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for invalid quantity, got %d", code)
	}

	stderr.Reset()
	if code := run([]string{"--format", "xml", "reagent", "list"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for bad format, got %d", code)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	got := -1
	orig := exitFunc
	exitFunc = func(code int) { got = code }
	defer func() { exitFunc = orig }()
	main()
	if got < 0 {
		t.Fatal("exitFunc not called")
	}
}
