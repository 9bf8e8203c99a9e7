package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/aatuh/scenario"
)

// MigrationsDir is the directory name holding the migrations of one
// deployment: <root>/<network>/<deployment>/migrations.
const MigrationsDir = "migrations"

// LoadFile decodes and compiles a single migration file. The migration name
// defaults to the file name without extension.
func LoadFile(path string) (scenario.Migration, error) {
	var f File
	if err := decode(path, &f); err != nil {
		return scenario.Migration{}, fmt.Errorf("%s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = baseName(path)
	}
	mig, err := Compile(f, path)
	if err != nil {
		return scenario.Migration{}, fmt.Errorf("%s: %w", path, err)
	}
	return mig, nil
}

// DirSource loads every manifest file in a directory as a migration.
type DirSource struct {
	Dir    string
	Logger *slog.Logger
}

// NewDirSource returns a DirSource for dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir, Logger: slog.Default()}
}

// LoadMigrations implements scenario.MigrationSource. A missing directory
// yields no migrations.
func (d *DirSource) LoadMigrations() ([]scenario.Migration, error) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(d.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("migration directory does not exist", "dir", d.Dir)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var migs []scenario.Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !isManifest(e.Name()) {
			log.Debug("skipping non-manifest file", "file", e.Name())
			continue
		}
		mig, err := LoadFile(filepath.Join(d.Dir, e.Name()))
		if err != nil {
			return nil, err
		}
		migs = append(migs, mig)
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Name < migs[j].Name })
	log.Debug("loaded migrations from directory", "dir", d.Dir, "count", len(migs))
	return migs, nil
}

func (d *DirSource) String() string { return d.Dir }

// RegisterTree registers a DirSource for every
// <root>/<network>/<deployment>/migrations directory and returns the scopes
// it found. A non-nil wrap decorates each source before it is registered.
func RegisterTree(
	reg *scenario.Registry,
	root string,
	wrap func(scenario.MigrationSource) scenario.MigrationSource,
) ([]scenario.Scope, error) {
	networks, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading deployments root: %w", err)
	}
	var scopes []scenario.Scope
	for _, n := range networks {
		if !n.IsDir() {
			continue
		}
		deployments, err := os.ReadDir(filepath.Join(root, n.Name()))
		if err != nil {
			return nil, err
		}
		for _, d := range deployments {
			if !d.IsDir() {
				continue
			}
			dir := filepath.Join(root, n.Name(), d.Name(), MigrationsDir)
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				continue
			}
			scope := scenario.Scope{Network: n.Name(), Deployment: d.Name()}
			var src scenario.MigrationSource = NewDirSource(dir)
			if wrap != nil {
				src = wrap(src)
			}
			reg.Register(scope, src)
			scopes = append(scopes, scope)
		}
	}
	return scopes, nil
}
