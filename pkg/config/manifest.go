package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/gpuprep/pkg/engine"
)

//go:embed manifest.cue
var defaultManifest string

// Manifest is the resolved provisioning plan. It is constant for a run.
type Manifest struct {
	Interpreter  InterpreterSpec  `json:"interpreter" yaml:"interpreter"`
	Toolkit      ToolkitSpec      `json:"toolkit" yaml:"toolkit"`
	Dependencies []DependencySpec `json:"dependencies" yaml:"dependencies" validate:"dive"`
	Steps        []StepSpec       `json:"steps" yaml:"steps" validate:"min=1,dive"`
	Converter    ConverterSpec    `json:"converter" yaml:"converter"`
}

// InterpreterSpec describes the required Python interpreter.
type InterpreterSpec struct {
	Executable   string `json:"executable" yaml:"executable" validate:"required"`
	Version      string `json:"version" yaml:"version" validate:"required"`
	InstallerURL string `json:"installer_url" yaml:"installer_url" validate:"omitempty,url"`
}

// ToolkitSpec describes the required CUDA toolkit and where to get it.
type ToolkitSpec struct {
	Version       string   `json:"version" yaml:"version" validate:"required"`
	URL           string   `json:"url" yaml:"url" validate:"required,url"`
	Artifact      string   `json:"artifact" yaml:"artifact" validate:"required"`
	InstallerArgs []string `json:"installer_args" yaml:"installer_args"`
	Timeout       string   `json:"timeout" yaml:"timeout" validate:"required"`
	RootEnv       string   `json:"root_env" yaml:"root_env"`
	RootFallback  string   `json:"root_fallback" yaml:"root_fallback" validate:"required"`
}

// TimeoutDuration parses Timeout. It is validated at load time.
func (t ToolkitSpec) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(t.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Requirement returns the toolkit version requirement.
func (t ToolkitSpec) Requirement() engine.VersionRequirement {
	return engine.VersionRequirement{Component: engine.ComponentToolkit, Expected: t.Version}
}

// Requirement returns the interpreter version requirement.
func (i InterpreterSpec) Requirement() engine.VersionRequirement {
	return engine.VersionRequirement{Component: engine.ComponentInterpreter, Expected: i.Version}
}

// DependencySpec is an auxiliary library and its import name.
type DependencySpec struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Module string `json:"module" yaml:"module" validate:"required"`
}

// StepSpec is one package-manager command.
type StepSpec struct {
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description" yaml:"description" validate:"required"`
	Failure     string   `json:"failure" yaml:"failure" validate:"required"`
	Argv        []string `json:"argv" yaml:"argv" validate:"min=1,dive,required"`
}

// ConverterSpec configures the model conversion CLI.
type ConverterSpec struct {
	Command    string   `json:"command" yaml:"command" validate:"required"`
	Format     string   `json:"format" yaml:"format" validate:"required"`
	ImageSize  int      `json:"image_size" yaml:"image_size" validate:"gt=0"`
	Extensions []string `json:"extensions" yaml:"extensions" validate:"min=1,dive,startswith=."`
}

// DependencyList converts the dependencies for the installer.
func (m *Manifest) DependencyList() []engine.Dependency {
	deps := make([]engine.Dependency, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		deps = append(deps, engine.Dependency{Package: d.Name, Module: d.Module})
	}
	return deps
}

// CommandSpecs converts the steps into immutable command specs, in order.
func (m *Manifest) CommandSpecs() []engine.CommandSpec {
	specs := make([]engine.CommandSpec, 0, len(m.Steps))
	for _, s := range m.Steps {
		specs = append(specs, engine.NewCommandSpec(s.Name, s.Description, s.Failure, s.Argv...))
	}
	return specs
}

// ValidationError is a manifest problem with its source location.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// String renders the error as file:line:col: message.
func (e ValidationError) String() string {
	var loc string
	switch {
	case e.File != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", e.File, e.Line, e.Column)
	case e.Path != "":
		loc = e.Path + ": "
	}
	return loc + e.Message
}

// ValidationErrors collects every problem found while loading a manifest.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.String())
	}
	return "invalid manifest: " + strings.Join(parts, "; ")
}

// Loader evaluates the embedded default manifest and user overrides.
type Loader struct {
	ctx       *cue.Context
	validator *validator.Validate
}

// NewLoader creates a new manifest loader.
func NewLoader() *Loader {
	return &Loader{
		ctx:       cuecontext.New(),
		validator: validator.New(),
	}
}

// Load returns the default manifest unified with each override file in order.
func (l *Loader) Load(overrides ...string) (*Manifest, error) {
	sources := make(map[string][]byte, len(overrides))
	order := make([]string, 0, len(overrides))
	for _, path := range overrides {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
		}
		sources[path] = content
		order = append(order, path)
	}
	return l.load(order, sources)
}

// LoadInline is Load for in-memory overrides. The name only labels errors.
func (l *Loader) LoadInline(name, content string) (*Manifest, error) {
	return l.load([]string{name}, map[string][]byte{name: []byte(content)})
}

func (l *Loader) load(order []string, sources map[string][]byte) (*Manifest, error) {
	val := l.ctx.CompileString(defaultManifest, cue.Filename("manifest.cue"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("embedded manifest is invalid: %w", err)
	}

	for _, name := range order {
		override := l.ctx.CompileBytes(sources[name], cue.Filename(name))
		if err := override.Err(); err != nil {
			return nil, convertCUEErrors(err)
		}
		val = val.Unify(override)
	}

	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	var m Manifest
	if err := val.Decode(&m); err != nil {
		return nil, convertCUEErrors(err)
	}

	if err := l.Validate(&m); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks struct tags and values CUE cannot express.
func (l *Loader) Validate(m *Manifest) error {
	var problems ValidationErrors

	if err := l.validator.Struct(m); err != nil {
		var fieldErrs validator.ValidationErrors
		if ok := asValidationErrors(err, &fieldErrs); ok {
			for _, fe := range fieldErrs {
				problems = append(problems, ValidationError{
					Path:    fe.Namespace(),
					Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
				})
			}
		} else {
			problems = append(problems, ValidationError{Message: err.Error()})
		}
	}

	if _, err := time.ParseDuration(m.Toolkit.Timeout); err != nil {
		problems = append(problems, ValidationError{
			Path:    "toolkit.timeout",
			Message: fmt.Sprintf("invalid duration %q", m.Toolkit.Timeout),
		})
	}

	seen := make(map[string]bool, len(m.Steps))
	for i, s := range m.Steps {
		if seen[s.Name] {
			problems = append(problems, ValidationError{
				Path:    fmt.Sprintf("steps[%d].name", i),
				Message: fmt.Sprintf("duplicate step name %q", s.Name),
			})
		}
		seen[s.Name] = true
	}

	if len(problems) > 0 {
		return problems
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = fieldErrs
	}
	return ok
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: errors.Details(e, nil),
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}

// ExportJSON renders the resolved manifest as indented JSON.
func ExportJSON(m *Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ExportYAML renders the resolved manifest as YAML.
func ExportYAML(m *Manifest) ([]byte, error) {
	return yaml.Marshal(m)
}
