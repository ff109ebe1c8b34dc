package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/gojsonschema"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/datenknoten/restic-orchestrator/internal/errors"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
)

const (
	// AppDirName is the directory under the user config dir.
	AppDirName = "restic-orchestrator"
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.json"
)

// DefaultPath returns <user config dir>/restic-orchestrator/config.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Can't figure out where the config directory is",
			"Pass the config file explicitly with --config")
	}
	return filepath.Join(dir, AppDirName, ConfigFileName), nil
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	schemaPath string
	log        logger.Logger
}

// WithSchemaFile validates against a schema read from path instead of the
// built-in one.
func WithSchemaFile(path string) StoreOption {
	return func(o *storeOptions) {
		o.schemaPath = path
	}
}

// WithLogger sets the logger used while loading.
func WithLogger(log logger.Logger) StoreOption {
	return func(o *storeOptions) {
		o.log = log
	}
}

// Store reads host configs from a filesystem.
type Store struct {
	fs       afero.Fs
	schema   *gojsonschema.Schema
	required []string
	log      logger.Logger
}

// NewStore compiles the validation schema and returns a Store reading from fs.
// A schema that can't be read or compiled is an ErrSchema error.
func NewStore(fs afero.Fs, opts ...StoreOption) (*Store, error) {
	o := storeOptions{log: logger.Noop()}
	for _, opt := range opts {
		opt(&o)
	}

	loader, required, err := schemaLoader(fs, o.schemaPath)
	if err != nil {
		return nil, err
	}

	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSchema,
			"Config schema doesn't compile",
			"Run 'restic-orchestrator schema' to get a working schema")
	}

	return &Store{fs: fs, schema: schema, required: required, log: o.log}, nil
}

// schemaLoader also returns the top-level required list, which names the
// property behind each "missing and required" error.
func schemaLoader(fs afero.Fs, path string) (gojsonschema.JSONLoader, []string, error) {
	if path == "" {
		var required []string
		for _, r := range Rules {
			if r.Required {
				required = append(required, r.Field)
			}
		}
		return gojsonschema.NewGoLoader(Schema()), required, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, nil, errors.WrapWithCode(err, errors.ErrSchema,
			"Can't read the config schema at "+path,
			"Check the --schema path, or drop the flag to use the built-in schema")
	}
	// A malformed document fails in NewSchema with a better message.
	var doc struct {
		Required []string `json:"required"`
	}
	_ = json.Unmarshal(data, &doc)
	return gojsonschema.NewStringLoader(string(data)), doc.Required, nil
}

// Load reads, validates and decodes the host list at path. An empty path
// resolves to DefaultPath. Files ending in .yaml or .yml are parsed as YAML.
//
// Validation is all-or-nothing: the first failing entry aborts the load.
func (s *Store) Load(path string) ([]HostConfig, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't access config file: "+path,
			"Check file permissions")
	}
	if !exists {
		return nil, errors.New(errors.ErrConfigNotFound,
			"Config file not found: "+path,
			"Create it, or point at another file with --config")
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Can't read config file: "+path,
			"Check file permissions")
	}
	if len(data) == 0 {
		return nil, errors.New(errors.ErrConfigEmpty,
			"Config file is empty: "+path,
			"Add a JSON array with at least one host entry")
	}

	format := formatFor(path)
	s.log.Debug("loading %s config from %s (%d bytes)", format, path, len(data))

	raw, err := format.decodeGeneric(data)
	if err != nil {
		return nil, invalid(path, Reason{Message: err.Error(), Index: -1})
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil, invalid(path, Reason{Message: NotAnArray, Index: -1})
	}

	for i, item := range items {
		if reason, ok := s.validate(item, i); !ok {
			return nil, invalid(path, reason)
		}
	}

	var hosts []HostConfig
	if err := format.decode(data, &hosts); err != nil {
		return nil, invalid(path, Reason{Message: err.Error(), Index: -1})
	}

	s.log.Verbose("loaded %d host(s) from %s", len(hosts), path)
	return hosts, nil
}

func (s *Store) validate(item interface{}, index int) (Reason, bool) {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(item))
	if err != nil {
		return Reason{Message: err.Error(), Index: index}, false
	}
	if result.Valid() {
		return Reason{}, true
	}

	reason := Reason{Index: index}
	for _, re := range result.Errors() {
		fe := FieldError{
			Field:       contextField(re.Context.String()),
			Type:        violationType(re.Description),
			Description: re.Description,
		}
		if fe.Type == ViolationRequired {
			if name := s.missingField(item, re.Description); name != "" {
				fe.Field = name
			}
		}
		reason.Fields = append(reason.Fields, fe)
	}
	return reason, false
}

// contextField turns "(root).files.0" into "files.0". The root itself is "".
func contextField(ctx string) string {
	ctx = strings.TrimPrefix(ctx, "(root)")
	return strings.TrimPrefix(ctx, ".")
}

// missingField finds the required property a root-level error is about.
func (s *Store) missingField(item interface{}, description string) string {
	m, _ := item.(map[string]interface{})
	for _, name := range s.required {
		if _, ok := m[name]; ok {
			continue
		}
		if strings.Contains(description, `"`+name+`"`) {
			return name
		}
	}
	return ""
}

func invalid(path string, reason Reason) error {
	return errors.WrapWithCode(&InvalidError{Reason: reason}, errors.ErrConfigInvalid,
		"Config file is invalid: "+path,
		"Fix the entries listed above. 'restic-orchestrator schema' prints the expected shape")
}

type fileFormat string

const (
	formatJSON fileFormat = "json"
	formatYAML fileFormat = "yaml"
)

func formatFor(path string) fileFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func (f fileFormat) decodeGeneric(data []byte) (interface{}, error) {
	var v interface{}
	if f == formatYAML {
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after the top-level value")
	}
	return v, nil
}

func (f fileFormat) decode(data []byte, out *[]HostConfig) error {
	if f == formatYAML {
		return yaml.Unmarshal(data, out)
	}
	return json.Unmarshal(data, out)
}
