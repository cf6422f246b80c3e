package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded, when present, before the environment is
// parsed. Variables already set in the process environment win.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Env is the process environment of a run.
type Env struct {
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost"`
	APIURL     string `env:"API_URL" envDefault:"http://localhost:3001"`
	ResultsDir string `env:"RESULTS_DIR" envDefault:"/results"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"LOG_FORMAT" envDefault:"console"`
	NoColor    bool   `env:"NO_COLOR"`
}

// LoadEnvFiles loads the files that exist and returns how many were loaded.
func LoadEnvFiles(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// LoadEnv loads the env files and parses the environment.
func LoadEnv(files ...string) (Env, error) {
	if _, err := LoadEnvFiles(files); err != nil {
		return Env{}, fmt.Errorf("failed to load env files: %w", err)
	}
	return ParseEnv()
}

// ParseEnv parses the process environment without loading any file.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return e, nil
}

// Variables returns the run variables the environment provides.
func (e Env) Variables() map[string]string {
	return map[string]string{
		"BASE_URL": e.BaseURL,
		"API_URL":  e.APIURL,
	}
}
