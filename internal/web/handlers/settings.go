package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/driftworks/playdeck/internal/logging"
)

// SettingsList returns all persisted settings.
func (h *Handlers) SettingsList(w http.ResponseWriter, r *http.Request) {
	settings, err := h.db.GetAllSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// SettingsUpdate persists the submitted key/value pairs. Logging settings
// take effect immediately; everything else is picked up on its next read.
func (h *Handlers) SettingsUpdate(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := decodeJSON(r, &updates); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(updates) == 0 {
		respondError(w, http.StatusBadRequest, "no settings provided")
		return
	}

	loggingChanged := false
	for key, value := range updates {
		if key == "log.level" {
			switch value {
			case "trace", "debug", "info":
				// valid
			default:
				respondError(w, http.StatusBadRequest, "invalid log level: "+value)
				return
			}
		}
		if err := h.db.SetSetting(key, value); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to save setting "+key)
			return
		}
		if strings.HasPrefix(key, "log.") {
			loggingChanged = true
		}
	}

	if loggingChanged {
		logging.Apply(h.loader.String("log.level", "info"), h.loader, logging.FilePathForDB(h.db.Path()))
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// SettingsDelete removes a persisted setting, reverting it to its default
// on the next read.
func (h *Handlers) SettingsDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		respondError(w, http.StatusBadRequest, "missing setting key")
		return
	}
	if err := h.db.DeleteSetting(key); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete setting "+key)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}
