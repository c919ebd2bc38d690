package schema

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	kgerrors "github.com/uforge/kgraph/internal/errors"
)

// LoadDir reads every *.yaml/*.yml file in dir as a schema Definition and
// registers it. Files are read in directory order; a later file registering
// the same (name, version) overwrites the earlier one.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return kgerrors.StorageError(kgerrors.ErrCodeIO, "read schema_dir", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return kgerrors.StorageError(kgerrors.ErrCodeIO, "read schema file "+path, err)
		}
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return kgerrors.SchemaError(kgerrors.ErrCodeInvalidValue, path, "malformed schema yaml", err)
		}
		if err := r.RegisterSchema(&def); err != nil {
			return err
		}
	}
	return nil
}
