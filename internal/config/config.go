package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/Flowka-lab/Scenario-2/internal/dataset"
	"github.com/Flowka-lab/Scenario-2/internal/fsutil"
	"github.com/Flowka-lab/Scenario-2/internal/gantt"
	"github.com/Flowka-lab/Scenario-2/internal/journal"
	"github.com/Flowka-lab/Scenario-2/internal/llm"
	"github.com/Flowka-lab/Scenario-2/internal/transcribe"
)

// FileNames are the config names searched for, in order of preference.
var FileNames = []string{"planner.json", "planner.jsonc", "planner.yaml", "planner.yml"}

// Providers accepted by the model and transcription sections.
const (
	ProviderOpenAI   = "openai"
	ProviderExec     = "exec"
	ProviderDeepgram = "deepgram"
	ProviderNone     = "none"
)

// Config represents the planner.json (or planner.yaml) configuration file
type Config struct {
	Version       string        `json:"version" yaml:"version"`
	Data          Data          `json:"data" yaml:"data"`
	Model         Model         `json:"model" yaml:"model"`
	Transcription Transcription `json:"transcription" yaml:"transcription"`
	Journal       Journal       `json:"journal" yaml:"journal"`
	Render        Render        `json:"render" yaml:"render"`
}

// Data locates the input tables and the persisted session. Relative paths
// are resolved against the directory holding the config file.
type Data struct {
	OrdersPath string `json:"orders_path" yaml:"orders_path"`
	LinesPath  string `json:"lines_path" yaml:"lines_path"`
	StatePath  string `json:"state_path" yaml:"state_path"`
	// BaseStart is where generated schedules begin, in the data timezone.
	BaseStart string `json:"base_start" yaml:"base_start"`
	Timezone  string `json:"timezone" yaml:"timezone"`
}

// Model configures the language model behind the parser's fallback tier.
type Model struct {
	Provider  string   `json:"provider" yaml:"provider"`
	Endpoint  string   `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model     string   `json:"model,omitempty" yaml:"model,omitempty"`
	APIKeyEnv string   `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Cmd       []string `json:"cmd,omitempty" yaml:"cmd,omitempty"`
	TimeoutS  int      `json:"timeout_s" yaml:"timeout_s"`
	// Retries is how often an unavailable model is retried, 0 or 1.
	Retries int `json:"retries" yaml:"retries"`
}

// Transcription configures speech-to-text for voice commands.
type Transcription struct {
	Provider  string `json:"provider" yaml:"provider"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model     string `json:"model,omitempty" yaml:"model,omitempty"`
	Language  string `json:"language,omitempty" yaml:"language,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	TimeoutS  int    `json:"timeout_s" yaml:"timeout_s"`
}

// Journal configures the command journal.
type Journal struct {
	Path       string `json:"path" yaml:"path"`
	MaxEntries int    `json:"max_entries" yaml:"max_entries"`
}

// Render configures the terminal chart. A zero width follows the terminal.
type Render struct {
	MaxOrders int    `json:"max_orders" yaml:"max_orders"`
	ColorBy   string `json:"color_by" yaml:"color_by"`
	Width     int    `json:"width" yaml:"width"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version: "1.0",
		Data: Data{
			OrdersPath: "data/orders.csv",
			LinesPath:  "data/lines.csv",
			StatePath:  ".planner/session.json",
			BaseStart:  dataset.DefaultBaseStart.Format("2006-01-02 15:04"),
			Timezone:   "UTC",
		},
		Model: Model{
			Provider:  ProviderOpenAI,
			Endpoint:  llm.DefaultOpenAIEndpoint,
			Model:     llm.DefaultOpenAIModel,
			APIKeyEnv: "OPENAI_API_KEY",
			TimeoutS:  30,
			Retries:   1,
		},
		Transcription: Transcription{
			Provider:  ProviderDeepgram,
			Endpoint:  transcribe.DefaultEndpoint,
			Model:     transcribe.DefaultModel,
			Language:  transcribe.DefaultLanguage,
			APIKeyEnv: "DEEPGRAM_API_KEY",
			TimeoutS:  int(transcribe.DefaultTimeout / time.Second),
		},
		Journal: Journal{
			Path:       ".planner/journal.ndjson",
			MaxEntries: journal.DefaultMaxEntries,
		},
		Render: Render{
			MaxOrders: gantt.DefaultMaxOrders,
			ColorBy:   string(gantt.ColorByProduct),
		},
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if c.Data.OrdersPath == "" || c.Data.LinesPath == "" {
		return fmt.Errorf("configuration error: 'data.orders_path' and 'data.lines_path' are required\n\nHint: Point them at the CSV files:\n  \"data\": {\n    \"orders_path\": \"data/orders.csv\",\n    \"lines_path\": \"data/lines.csv\"\n  }")
	}

	loc, err := c.Data.Location()
	if err != nil {
		return fmt.Errorf("configuration error: invalid 'data.timezone' value %q: %v\n\nHint: Use an IANA zone name such as \"UTC\" or \"Africa/Casablanca\"", c.Data.Timezone, err)
	}
	if _, err := c.Data.BaseStartTime(loc); err != nil {
		return fmt.Errorf("configuration error: invalid 'data.base_start' value %q\n\nHint: Use \"2006-01-02 15:04\" or RFC 3339, for example:\n  \"base_start\": \"2025-11-03 06:00\"", c.Data.BaseStart)
	}

	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Transcription.Validate(); err != nil {
		return err
	}

	if c.Journal.MaxEntries <= 0 {
		return fmt.Errorf("configuration error: invalid 'journal.max_entries' value: %d\n\nHint: Keep at least one entry:\n  \"journal\": {\n    \"max_entries\": %d\n  }", c.Journal.MaxEntries, journal.DefaultMaxEntries)
	}

	if c.Render.MaxOrders < 0 || c.Render.Width < 0 {
		return fmt.Errorf("configuration error: 'render.max_orders' and 'render.width' must not be negative\n\nHint: Use 0 for the default")
	}
	if _, err := gantt.ParseColorBy(c.Render.ColorBy); err != nil {
		return fmt.Errorf("configuration error: invalid 'render.color_by' value %q\n\nHint: Color by one of \"order\", \"product\" or \"machine\"", c.Render.ColorBy)
	}

	return nil
}

// Validate checks the model section.
func (m *Model) Validate() error {
	switch m.Provider {
	case ProviderOpenAI, ProviderNone:
	case ProviderExec:
		if len(m.Cmd) == 0 {
			return fmt.Errorf("configuration error: model provider 'exec' has empty 'cmd' field\n\nHint: Specify the command that reads a prompt on stdin:\n  \"cmd\": [\"llm\", \"-m\", \"gpt-4o-mini\"]")
		}
	default:
		return fmt.Errorf("configuration error: invalid 'model.provider' value %q\n\nHint: Use one of \"openai\", \"exec\" or \"none\"", m.Provider)
	}
	if m.TimeoutS < 0 {
		return fmt.Errorf("configuration error: invalid 'model.timeout_s' value: %d", m.TimeoutS)
	}
	if m.Retries < 0 || m.Retries > 1 {
		return fmt.Errorf("configuration error: invalid 'model.retries' value: %d\n\nHint: A failed model call is retried at most once:\n  \"retries\": 1", m.Retries)
	}
	return nil
}

// Validate checks the transcription section.
func (t *Transcription) Validate() error {
	if t.Provider != ProviderDeepgram && t.Provider != ProviderNone {
		return fmt.Errorf("configuration error: invalid 'transcription.provider' value %q\n\nHint: Use \"deepgram\" or \"none\"", t.Provider)
	}
	if t.TimeoutS < 0 {
		return fmt.Errorf("configuration error: invalid 'transcription.timeout_s' value: %d", t.TimeoutS)
	}
	return nil
}

// Timeout returns the model call deadline. Zero means no deadline.
func (m *Model) Timeout() time.Duration {
	return time.Duration(m.TimeoutS) * time.Second
}

// APIKey reads the model key from the environment.
func (m *Model) APIKey() string {
	if m.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(m.APIKeyEnv)
}

// Timeout returns the transcription deadline. Zero means no deadline.
func (t *Transcription) Timeout() time.Duration {
	return time.Duration(t.TimeoutS) * time.Second
}

// APIKey reads the transcription key from the environment.
func (t *Transcription) APIKey() string {
	if t.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(t.APIKeyEnv)
}

// Location loads the data timezone. An empty name is UTC.
func (d *Data) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(d.Timezone)
}

// BaseStartTime parses BaseStart in loc. An empty value is the zero time.
func (d *Data) BaseStartTime(loc *time.Location) (time.Time, error) {
	if d.BaseStart == "" {
		return time.Time{}, nil
	}
	return dataset.ParseTime(d.BaseStart, loc)
}

// ResolvePaths makes the relative data and journal paths absolute against dir.
func (c *Config) ResolvePaths(dir string) {
	for _, p := range []*string{&c.Data.OrdersPath, &c.Data.LinesPath, &c.Data.StatePath, &c.Journal.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFromFile loads a configuration from a JSON, JSONC or YAML file.
// Fields the file omits keep their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := GenerateDefault()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// SaveToFile writes the configuration atomically with 0600 permissions,
// as YAML when path ends in .yaml or .yml and as JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var err error
	if isYAML(path) {
		err = fsutil.AtomicWriteYAML(path, c)
	} else {
		err = fsutil.AtomicWriteJSON(path, c)
	}
	if err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// FindInTree searches dir and its parents for a config file and returns
// "" when there is none.
func FindInTree(dir string) string {
	for {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
