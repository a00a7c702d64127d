package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigHandler serves /api/config. GET returns the runtime part of the
// file at cfile as JSON, POST merges a JSON RuntimeConfig into the file
// and answers with what was stored. The file is the source of truth, it
// is read on every request.
func ConfigHandler(cfile string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			serveRuntime(w, cfile)
		case http.MethodPost:
			storeRuntime(w, r, cfile)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func serveRuntime(w http.ResponseWriter, cfile string) {
	conf, err := readFile(cfile)
	if err != nil {
		slog.Error("Config API read failed", "file", cfile, "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, conf.Runtime())
}

// storeRuntime validates the merged configuration before anything is
// written. Hardware, link and logging sections are taken from the file
// as it is, environment overrides never end up on disk.
func storeRuntime(w http.ResponseWriter, r *http.Request, cfile string) {
	defer r.Body.Close()

	var update RuntimeConfig
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		slog.Warn("Config API rejected body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	conf, err := readFile(cfile)
	if err != nil {
		slog.Error("Config API read failed", "file", cfile, "error", err)
		http.Error(w, "Failed to read configuration", http.StatusInternalServerError)
		return
	}
	conf.applyRuntime(update)

	if err := conf.Validate(); err != nil {
		slog.Warn("Config API rejected update", "error", err)
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}

	if err := writeFileAtomic(cfile, conf); err != nil {
		slog.Error("Config API write failed", "file", cfile, "error", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	slog.Info("Config file updated through the API, gate will reload", "file", cfile)
	writeJSON(w, conf.Runtime())
}

// writeFileAtomic replaces cfile through a rename in the same directory,
// so a reload never sees a half written file.
func writeFileAtomic(cfile string, conf *Config) error {
	data, err := yaml.Marshal(conf)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cfile), ".gogate-*.yml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after the rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), cfile); err != nil {
		return fmt.Errorf("replace %s: %w", cfile, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
