package config

import (
	"os"
	"path/filepath"
)

func GetRuntimePath() string {
	path := os.Getenv("KAI_RUNTIME_PATH")
	if path == "" {
		path = ".kaidesk"
	}
	return absRuntimePath(path)
}

func absRuntimePath(path string) string {
	if !filepath.IsAbs(path) {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path)
	}
	return path
}
