package seed

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/kennel/pkg/credentials"
)

// Manifest describes the desired state of one backend
type Manifest struct {
	BackendID string `yaml:"backendId"`
	// Superadmin is created with the backend. It is ignored when the backend
	// already exists.
	Superadmin          *credentials.CreateRequest        `yaml:"superadmin,omitempty"`
	CredentialsSettings map[string]interface{}            `yaml:"credentialsSettings,omitempty"`
	Settings            map[string]map[string]interface{} `yaml:"settings,omitempty"`
	Schemas             map[string]map[string]interface{} `yaml:"schemas,omitempty"`
	Credentials         []credentials.CreateRequest       `yaml:"credentials,omitempty"`

	// Source is the file the manifest was read from
	Source string `yaml:"-"`
}

// Validate checks the parts of a manifest that do not need a backend
func (m *Manifest) Validate() error {
	if m.BackendID == "" {
		return fmt.Errorf("backendId is required")
	}
	if m.Superadmin != nil && (m.Superadmin.Username == "" || m.Superadmin.Password == "") {
		return fmt.Errorf("superadmin needs a username and a password")
	}
	for i, c := range m.Credentials {
		if c.Username == "" || c.Password == "" {
			return fmt.Errorf("credentials #%d need a username and a password", i+1)
		}
	}
	return nil
}

// ParseManifest decodes a YAML manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// IsManifest reports whether path names a manifest file
func IsManifest(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Loader reads manifests from the filesystem
type Loader struct {
	log *logrus.Logger
}

// NewLoader creates a new manifest loader
func NewLoader(log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.New()
	}
	return &Loader{log: log}
}

// LoadFile reads one manifest
func (l *Loader) LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Source = path
	return m, nil
}

// LoadDir reads every manifest of a directory sorted by file name. Two
// manifests of one backend are rejected.
func (l *Loader) LoadDir(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsManifest(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	manifests := make([]*Manifest, 0, len(names))
	for _, name := range names {
		m, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[m.BackendID]; ok {
			return nil, fmt.Errorf("backend %s is described by both %s and %s", m.BackendID, prev, m.Source)
		}
		seen[m.BackendID] = m.Source
		l.log.Debugf("Loaded manifest %s for backend %s", m.Source, m.BackendID)
		manifests = append(manifests, m)
	}
	return manifests, nil
}
