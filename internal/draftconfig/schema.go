package draftconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/juvistr/draftspec/internal/specerr"
)

// filterSpecSchema is the JSON Schema a `--filter-file` document must
// satisfy, mirroring spec.md §3's FilterSpec shape. Grounded on
// internal/agent/tool_registry.go's compileSchema, the pack's only
// jsonschema/v5 consumer.
const filterSpecSchema = `{
  "type": "object",
  "properties": {
    "include_tags": {"type": "array", "items": {"type": "string"}},
    "exclude_tags": {"type": "array", "items": {"type": "string"}},
    "include_names": {"type": "array", "items": {"type": "string"}},
    "exclude_names": {"type": "array", "items": {"type": "string"}},
    "include_contexts": {"type": "array", "items": {"type": "string"}},
    "exclude_contexts": {"type": "array", "items": {"type": "string"}},
    "focused_only": {"type": "boolean"},
    "pending_only": {"type": "boolean"},
    "skipped_only": {"type": "boolean"}
  },
  "additionalProperties": false
}`

// projectConfigSchema is the JSON Schema the loaded project config
// document must satisfy before Load populates ProjectConfig, so typos and
// wrong-typed fields surface as Configuration errors instead of silently
// decoding to zero values.
const projectConfigSchema = `{
  "type": "object",
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "spec_root": {"type": "string"},
    "source_roots": {"type": "array", "items": {"type": "string"}},
    "snapshot_dir": {"type": "string"},
    "reporters": {"type": "array", "items": {"type": "string"}},
    "retry": {
      "type": "object",
      "properties": {
        "max_retries": {"type": "integer"},
        "delay_ms": {"type": "integer"},
        "backoff_ms": {"type": "integer"},
        "jitter": {"type": "boolean"}
      },
      "additionalProperties": false
    },
    "timeout": {
      "type": "object",
      "properties": {
        "default_ms": {"type": "integer"}
      },
      "additionalProperties": false
    },
    "parallel": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "degree": {"type": "integer"}
      },
      "additionalProperties": false
    },
    "watch_debounce_ms": {"type": "integer"}
  },
  "additionalProperties": false
}`

func compileSchema(name, source string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(source)); err != nil {
		return nil, err
	}
	return c.Compile(name)
}

// ValidateFilterDocument validates raw JSON bytes against the FilterSpec
// schema before the caller unmarshals them into a concrete struct,
// surfacing malformed filter files as Configuration errors pre-run.
func ValidateFilterDocument(raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return specerr.NewConfiguration(fmt.Sprintf("invalid filter document: %v", err))
	}
	schema, err := compileSchema("filter.json", filterSpecSchema)
	if err != nil {
		return specerr.NewConfiguration(fmt.Sprintf("compiling filter schema: %v", err))
	}
	if err := schema.Validate(doc); err != nil {
		return specerr.NewConfiguration(fmt.Sprintf("filter document failed validation: %v", err))
	}
	return nil
}

// validateProjectDocument validates the raw YAML config bytes against the
// project-config schema. The document is round-tripped through
// encoding/json first because jsonschema validates values as decoded by
// json.Unmarshal, not yaml's native int/map types.
func validateProjectDocument(raw []byte) error {
	var yamlDoc any
	if err := yaml.Unmarshal(raw, &yamlDoc); err != nil {
		return specerr.NewConfiguration(fmt.Sprintf("invalid config document: %v", err))
	}
	if yamlDoc == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(yamlDoc)
	if err != nil {
		return specerr.NewConfiguration(fmt.Sprintf("invalid config document: %v", err))
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return specerr.NewConfiguration(fmt.Sprintf("invalid config document: %v", err))
	}
	schema, err := compileSchema("config.json", projectConfigSchema)
	if err != nil {
		return specerr.NewConfiguration(fmt.Sprintf("compiling config schema: %v", err))
	}
	if err := schema.Validate(doc); err != nil {
		return specerr.NewConfiguration(fmt.Sprintf("config document failed validation: %v", err))
	}
	return nil
}

// FilterDocument is the decoded shape of a `--filter-file` JSON document.
// Name rules are lists of regexes; callers alternate them into the single
// include/exclude patterns FilterSpec carries.
type FilterDocument struct {
	IncludeTags     []string `json:"include_tags,omitempty"`
	ExcludeTags     []string `json:"exclude_tags,omitempty"`
	IncludeNames    []string `json:"include_names,omitempty"`
	ExcludeNames    []string `json:"exclude_names,omitempty"`
	IncludeContexts []string `json:"include_contexts,omitempty"`
	ExcludeContexts []string `json:"exclude_contexts,omitempty"`
	FocusedOnly     bool     `json:"focused_only,omitempty"`
	PendingOnly     bool     `json:"pending_only,omitempty"`
	SkippedOnly     bool     `json:"skipped_only,omitempty"`
}

// LoadFilterFile reads path, validates it against the FilterSpec schema,
// and decodes it. Every failure is a Configuration error: a bad filter
// file must be fatal before any spec executes (spec.md §7).
func LoadFilterFile(path string) (FilterDocument, error) {
	var doc FilterDocument
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, specerr.NewConfiguration(fmt.Sprintf("reading filter file %s: %v", path, err))
	}
	if err := ValidateFilterDocument(raw); err != nil {
		return doc, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, specerr.NewConfiguration(fmt.Sprintf("decoding filter file %s: %v", path, err))
	}
	return doc, nil
}
