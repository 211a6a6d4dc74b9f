// Package registry holds the static catalog of measurable modules. The
// catalog is declared in YAML (an embedded default, overridable by a file on
// disk), validated once at load, and immutable afterwards.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boardscout/boardscout/internal/convert"
	"github.com/boardscout/boardscout/internal/extract"
)

//go:embed modules.yaml
var defaultCatalog []byte

// MinInterval is the global floor on polling periods, bounding the load a
// misconfigured catalog can place on the device.
const MinInterval = time.Second

// DefaultTimeout bounds source reads when the catalog does not set one.
const DefaultTimeout = 5 * time.Second

// Source describes where a module's raw text comes from: exactly one of a
// pseudo-file path or an external command line.
type Source struct {
	File    string
	Command string
	Timeout time.Duration
}

// Target maps one capture group to a published reading. Reading names may
// embed {group} placeholders expanded per record, so a multi-match module
// can emit per-interface names like net.{iface}.rx_bytes.
type Target struct {
	Reading string `yaml:"reading"`
	Type    string `yaml:"type,omitempty"`
	Unit    string `yaml:"unit,omitempty"`
}

// Module is one statically declared unit of measurement.
type Module struct {
	ID       string
	Source   Source
	Pattern  *extract.Pattern
	Targets  map[string]Target
	Convert  map[string][]convert.Op
	Interval time.Duration
	Enabled  bool
}

// Override carries per-module settings from the agent configuration.
type Override struct {
	Enabled  *bool
	Interval time.Duration
}

// Options controls catalog loading.
type Options struct {
	// DefaultInterval applies to modules that declare no interval.
	DefaultInterval time.Duration
	// Overrides are keyed by module id.
	Overrides map[string]Override
}

// Registry is the immutable module catalog.
type Registry struct {
	modules []*Module
	byID    map[string]*Module
}

type moduleSpec struct {
	ID       string                  `yaml:"id"`
	Source   sourceSpec              `yaml:"source"`
	Pattern  patternSpec             `yaml:"pattern"`
	Targets  map[string]Target       `yaml:"targets"`
	Convert  map[string][]convert.Op `yaml:"convert,omitempty"`
	Interval duration                `yaml:"interval,omitempty"`
	Enabled  *bool                   `yaml:"enabled,omitempty"`
}

type sourceSpec struct {
	File    string   `yaml:"file,omitempty"`
	Command string   `yaml:"command,omitempty"`
	Timeout duration `yaml:"timeout,omitempty"`
}

type patternSpec struct {
	Regex string `yaml:"regex"`
	Match string `yaml:"match,omitempty"`
}

// duration accepts Go duration strings ("15s") and bare integer seconds.
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = duration(v)
		return nil
	}
	var secs int64
	if err := node.Decode(&secs); err != nil {
		return fmt.Errorf("duration must be a string like \"15s\" or integer seconds")
	}
	*d = duration(time.Duration(secs) * time.Second)
	return nil
}

type catalogFile struct {
	Modules []moduleSpec `yaml:"modules"`
}

// LoadDefault parses the embedded module catalog.
func LoadDefault(opts Options) (*Registry, error) {
	return Load(defaultCatalog, opts)
}

// LoadFile parses a catalog from disk.
func LoadFile(path string, opts Options) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %q: %w", path, err)
	}
	return Load(data, opts)
}

// Load parses and validates a YAML catalog. Any violation is a configuration
// error: the agent refuses to start rather than discovering the problem at
// collection time.
func Load(data []byte, opts Options) (*Registry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if len(f.Modules) == 0 {
		return nil, fmt.Errorf("catalog declares no modules")
	}

	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = 30 * time.Second
	}

	r := &Registry{byID: make(map[string]*Module, len(f.Modules))}
	for i := range f.Modules {
		mod, err := buildModule(&f.Modules[i], opts)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", f.Modules[i].ID, err)
		}
		if _, dup := r.byID[mod.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %q", mod.ID)
		}
		r.byID[mod.ID] = mod
		r.modules = append(r.modules, mod)
	}
	return r, nil
}

func buildModule(spec *moduleSpec, opts Options) (*Module, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	if (spec.Source.File == "") == (spec.Source.Command == "") {
		return nil, fmt.Errorf("source must declare exactly one of file or command")
	}
	src := Source{
		File:    spec.Source.File,
		Command: spec.Source.Command,
		Timeout: time.Duration(spec.Source.Timeout),
	}
	if src.Timeout <= 0 {
		src.Timeout = DefaultTimeout
	}

	pattern, err := extract.Compile(spec.Pattern.Regex, spec.Pattern.Match)
	if err != nil {
		return nil, err
	}
	groups := pattern.Groups()

	if len(spec.Targets) == 0 {
		return nil, fmt.Errorf("no targets declared")
	}
	for group, tgt := range spec.Targets {
		if !contains(groups, group) {
			return nil, fmt.Errorf("target %q is not a capture group of the pattern", group)
		}
		if tgt.Reading == "" {
			return nil, fmt.Errorf("target %q has no reading name", group)
		}
		for _, ph := range placeholders(tgt.Reading) {
			if !contains(groups, ph) {
				return nil, fmt.Errorf("target %q: reading placeholder {%s} is not a capture group", group, ph)
			}
		}
		typ := tgt.Type
		if typ == "" {
			typ = convert.TypeFloat
			tgt.Type = typ
			spec.Targets[group] = tgt
		}
		if err := convert.Validate(spec.Convert[group], groups, typ); err != nil {
			return nil, fmt.Errorf("target %q: %w", group, err)
		}
	}
	for group := range spec.Convert {
		if _, ok := spec.Targets[group]; !ok {
			return nil, fmt.Errorf("conversion declared for %q which is not a target", group)
		}
	}

	interval := time.Duration(spec.Interval)
	if interval == 0 {
		interval = opts.DefaultInterval
	}
	enabled := true
	if spec.Enabled != nil {
		enabled = *spec.Enabled
	}
	if ov, ok := opts.Overrides[spec.ID]; ok {
		if ov.Enabled != nil {
			enabled = *ov.Enabled
		}
		if ov.Interval > 0 {
			interval = ov.Interval
		}
	}
	if interval < MinInterval {
		return nil, fmt.Errorf("interval %v below floor %v", interval, MinInterval)
	}

	return &Module{
		ID:       spec.ID,
		Source:   src,
		Pattern:  pattern,
		Targets:  spec.Targets,
		Convert:  spec.Convert,
		Interval: interval,
		Enabled:  enabled,
	}, nil
}

// Modules returns all modules in catalog order.
func (r *Registry) Modules() []*Module {
	out := make([]*Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// Get returns a module by id.
func (r *Registry) Get(id string) (*Module, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// IDs returns all module ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// ExpandName substitutes {group} placeholders in a reading name with the
// record's captured values.
func ExpandName(template string, record map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		return record[strings.Trim(m, "{}")]
	})
}

// FailureReadings returns the reading names to publish as unavailable when a
// module fails. Templated names cannot be expanded without a record, so a
// module whose targets are all templated reports under its own id.
func (m *Module) FailureReadings() []string {
	var names []string
	for _, tgt := range m.Targets {
		if !strings.Contains(tgt.Reading, "{") {
			names = append(names, tgt.Reading)
		}
	}
	if len(names) == 0 {
		names = []string{m.ID}
	}
	sort.Strings(names)
	return names
}

func placeholders(name string) []string {
	var out []string
	for _, m := range placeholderRe.FindAllStringSubmatch(name, -1) {
		out = append(out, m[1])
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
