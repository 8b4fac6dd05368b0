// internal/config/config.go
//
// Build configurations live in a YAML table keyed by name. The table always
// has a "default" record; a named record only lists what differs from it.

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/cbuildbot/internal/retry"
)

// DefaultName is the record every other record is merged over.
const DefaultName = "default"

//go:embed builtin.yaml
var builtinTableYAML []byte

var validate = validator.New()

// BuildConfig is one merged build configuration.
type BuildConfig struct {
	Name string `yaml:"-"`
	// Board is the target architecture identifier handed to setup_board.
	Board string `yaml:"board" validate:"required"`
	// Uprev advances and publishes stable package versions around the build.
	Uprev bool `yaml:"uprev"`
	// RWCheckout rewrites remotes for pushing after every sync.
	RWCheckout bool `yaml:"rw_checkout"`
	// Retries is the sync attempt budget. Zero selects retry.DefaultRetries.
	Retries int `yaml:"retries" validate:"gte=0"`
	// Extra keeps keys the pipeline does not interpret.
	Extra map[string]any `yaml:",inline"`
}

// Table holds raw, unmerged records.
type Table struct {
	records map[string]map[string]any
}

// Builtin returns the table compiled into the binary.
func Builtin() (*Table, error) {
	return Parse(builtinTableYAML)
}

// Load reads a table from path. An empty path returns the builtin table.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: table %s does not exist", path)
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return table, nil
}

// Parse decodes a YAML table.
func Parse(data []byte) (*Table, error) {
	var records map[string]map[string]any
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("config: decode table: %w", err)
	}
	if _, ok := records[DefaultName]; !ok {
		return nil, fmt.Errorf("config: table has no %q record", DefaultName)
	}
	for name, record := range records {
		if record == nil {
			records[name] = map[string]any{}
		}
	}
	return &Table{records: records}, nil
}

// Names returns every record name, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.records))
	for name := range t.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a record in the table.
func (t *Table) Has(name string) bool {
	_, ok := t.records[name]
	return ok
}

// Merged returns the raw record for name with every default key filled in.
// An unknown name yields a copy of the default record.
func (t *Table) Merged(name string) map[string]any {
	defaults := t.records[DefaultName]
	merged := make(map[string]any, len(defaults))
	for key, value := range t.records[name] {
		merged[key] = value
	}
	for key, value := range defaults {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return merged
}

// Get merges and decodes the record for name.
func (t *Table) Get(name string) (BuildConfig, error) {
	encoded, err := yaml.Marshal(t.Merged(name))
	if err != nil {
		return BuildConfig{}, fmt.Errorf("config: encode %s: %w", name, err)
	}
	var cfg BuildConfig
	if err := yaml.Unmarshal(encoded, &cfg); err != nil {
		return BuildConfig{}, fmt.Errorf("config: decode %s: %w", name, err)
	}
	cfg.Name = name
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return BuildConfig{}, fmt.Errorf("config: %s: %w", name, err)
	}
	return cfg, nil
}

// Validate checks the merged record.
func (c BuildConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("%s failed %q validation", strings.ToLower(fe.Field()), fe.Tag())
		}
		return err
	}
	return nil
}

func (c *BuildConfig) applyDefaults() {
	c.Board = strings.TrimSpace(c.Board)
	if c.Retries == 0 {
		c.Retries = retry.DefaultRetries
	}
	if len(c.Extra) == 0 {
		c.Extra = nil
	}
}
