package appdirs

import (
	"os"
	"path/filepath"
)

const appDirName = "lexreview"

// DataDir resolves the engine's data directory, honoring the
// LEXREVIEW_DATA_DIR override.
func DataDir() (string, error) {
	if override := os.Getenv("LEXREVIEW_DATA_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

// SettingsPath is the settings file location under the data directory.
func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.json")
}
