// Package idlfile reads interface descriptions that are already reduced to
// typed declarators, from TOML or YAML, and builds the idl model from them.
package idlfile

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"l4idl/internal/diag"
	"l4idl/internal/idl"
	"l4idl/internal/source"
)

// Format is the encoding of a description file.
type Format uint8

const (
	FormatTOML Format = iota + 1
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatYAML:
		return "yaml"
	}
	return "unknown"
}

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, &DecodeError{Kind: ErrFormat, File: path, Detail: ext}
	}
}

// Description is one decoded file.
type Description struct {
	Path       string
	Digest     string // hex sha256 of the normalised content
	Types      []*idl.Type
	Interfaces []*idl.Interface
}

// Interface returns the interface called name.
func (d *Description) Interface(name string) *idl.Interface {
	for _, it := range d.Interfaces {
		if it.Name == name {
			return it
		}
	}
	return nil
}

// Loader decodes description files into a shared FileSet.
type Loader struct {
	files    *source.FileSet
	reporter diag.Reporter
}

// NewLoader creates a loader. files and r may be nil.
func NewLoader(files *source.FileSet, r diag.Reporter) *Loader {
	if files == nil {
		files = source.NewFileSet()
	}
	if r == nil {
		r = diag.NopReporter{}
	}
	return &Loader{files: files, reporter: r}
}

// Files returns the file set the loader fills.
func (l *Loader) Files() *source.FileSet { return l.files }

// LoadFile reads and decodes path.
func (l *Loader) LoadFile(path string) (*Description, error) {
	format, err := FormatOf(path)
	if err != nil {
		l.report(err)
		return nil, err
	}
	id, err := l.files.Load(path)
	if err != nil {
		diag.ReportError(l.reporter, diag.DrvIO, source.Loc{File: path}, err.Error()).Emit()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return l.decode(l.files.Get(id), format)
}

// LoadBytes decodes an in-memory description.
func (l *Loader) LoadBytes(name string, data []byte, format Format) (*Description, error) {
	id := l.files.AddVirtual(name, data)
	return l.decode(l.files.Get(id), format)
}

func (l *Loader) decode(f *source.File, format Format) (*Description, error) {
	var raw rawFile
	if err := unmarshal(f.Path, f.Content, format, &raw); err != nil {
		l.report(err)
		return nil, err
	}
	d, errs := build(f.Path, &raw)
	for _, err := range errs {
		l.report(err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	d.Digest = hex.EncodeToString(f.Hash[:])
	return d, nil
}

func (l *Loader) report(err error) {
	var de *DecodeError
	if !errors.As(err, &de) {
		diag.ReportError(l.reporter, diag.DescSyntax, source.Loc{}, err.Error()).Emit()
		return
	}
	diag.ReportError(l.reporter, de.Code(), source.Loc{File: de.File, Element: de.Element}, de.Error()).Emit()
}

func unmarshal(path string, data []byte, format Format, raw *rawFile) error {
	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(data), raw)
		if err != nil {
			return &DecodeError{Kind: ErrSyntax, File: path, Err: err}
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return &DecodeError{Kind: ErrSyntax, File: path, Err: fmt.Errorf("unknown keys %s", strings.Join(keys, ", "))}
		}
		if !meta.IsDefined("interface") {
			return &DecodeError{Kind: ErrMissingField, File: path, Detail: "[[interface]]"}
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(raw); err != nil {
			return &DecodeError{Kind: ErrSyntax, File: path, Err: err}
		}
		if len(raw.Interfaces) == 0 {
			return &DecodeError{Kind: ErrMissingField, File: path, Detail: "interface"}
		}
	default:
		return &DecodeError{Kind: ErrFormat, File: path, Detail: format.String()}
	}
	return nil
}
