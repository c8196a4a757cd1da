package message

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Templates holds the customer-facing message texts. Each template takes the
// order name as its single %s parameter.
type Templates struct {
	Confirmed       string `yaml:"confirmed"`
	Cancelled       string `yaml:"cancelled"`
	ComposerDefault string `yaml:"composerDefault"`
}

func Defaults() Templates {
	return Templates{
		Confirmed:       "Your order %s has been confirmed!",
		Cancelled:       "Your order %s has been cancelled.",
		ComposerDefault: "Your order %s has been placed and is being processed. The payment slip is attached.",
	}
}

// Load reads template overrides from a YAML file, falling back to the
// built-in defaults when the file is absent or a field is empty.
func Load(path string, logger *slog.Logger) Templates {
	tmpl := Defaults()
	if path == "" {
		return tmpl
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("cannot read templates file", "path", path, "err", err)
		}
		return tmpl
	}

	var overrides Templates
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		logger.Warn("cannot parse templates file", "path", path, "err", err)
		return tmpl
	}

	if overrides.Confirmed != "" {
		tmpl.Confirmed = overrides.Confirmed
	}
	if overrides.Cancelled != "" {
		tmpl.Cancelled = overrides.Cancelled
	}
	if overrides.ComposerDefault != "" {
		tmpl.ComposerDefault = overrides.ComposerDefault
	}

	logger.Info("loaded message templates", "path", path)
	return tmpl
}

func (t Templates) ConfirmedText(orderName string) string {
	return fmt.Sprintf(t.Confirmed, orderName)
}

func (t Templates) CancelledText(orderName string) string {
	return fmt.Sprintf(t.Cancelled, orderName)
}

func (t Templates) ComposerDefaultText(orderName string) string {
	return fmt.Sprintf(t.ComposerDefault, orderName)
}
