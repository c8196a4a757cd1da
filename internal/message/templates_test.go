package message

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestDefaults_Formatting(t *testing.T) {
	tmpl := Defaults()

	if got := tmpl.ConfirmedText("SO001"); !strings.Contains(got, "SO001") || !strings.Contains(got, "confirmed") {
		t.Errorf("unexpected confirmation text: %s", got)
	}
	if got := tmpl.CancelledText("SO001"); !strings.Contains(got, "cancelled") {
		t.Errorf("unexpected cancellation text: %s", got)
	}
	if got := tmpl.ComposerDefaultText("SO001"); !strings.Contains(got, "SO001") {
		t.Errorf("composer default should mention the order: %s", got)
	}
}

func TestLoad_MissingFileFallsBack(t *testing.T) {
	tmpl := Load(filepath.Join(t.TempDir(), "nope.yaml"), testLogger())
	if tmpl != Defaults() {
		t.Errorf("expected defaults for missing file, got %+v", tmpl)
	}
}

func TestLoad_EmptyPathFallsBack(t *testing.T) {
	if tmpl := Load("", testLogger()); tmpl != Defaults() {
		t.Errorf("expected defaults for empty path")
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	content := "confirmed: \"Pedido %s confirmado!\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tmpl := Load(path, testLogger())
	if got := tmpl.ConfirmedText("SO001"); got != "Pedido SO001 confirmado!" {
		t.Errorf("override not applied: %s", got)
	}
	// Unspecified fields keep their defaults.
	if tmpl.Cancelled != Defaults().Cancelled {
		t.Errorf("cancelled should keep the default, got %s", tmpl.Cancelled)
	}
}

func TestLoad_InvalidYAMLFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	os.WriteFile(path, []byte(":\n\t- broken"), 0o644)

	if tmpl := Load(path, testLogger()); tmpl != Defaults() {
		t.Errorf("expected defaults for unparsable file")
	}
}
