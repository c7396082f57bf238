package selection

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

//go:embed templates/*.json
var templateFS embed.FS

// Template set file names within the bundle.
const (
	questTemplateFile        = "templates/quests.json"
	notificationTemplateFile = "templates/notifications.json"
)

// LoadTemplates parses one bundled template set.
func LoadTemplates(name string) ([]Template, error) {
	data, err := templateFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read template set %s: %w", name, err)
	}

	var templates []Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse template set %s: %w", name, err)
	}
	return templates, nil
}

// LoadQuestTemplates parses the bundled quest template set.
func LoadQuestTemplates() ([]Template, error) {
	return LoadTemplates(questTemplateFile)
}

// LoadNotificationTemplates parses the bundled notification template set.
func LoadNotificationTemplates() ([]Template, error) {
	return LoadTemplates(notificationTemplateFile)
}

// MustLoad loads a template set, degrading to an empty set on failure so a
// broken bundle disables selection instead of crashing the process.
func MustLoad(loader func() ([]Template, error), logger zerolog.Logger) []Template {
	templates, err := loader()
	if err != nil {
		logger.Error().Err(err).Msg("template set failed to load, selection will yield nothing")
		return nil
	}
	return templates
}
