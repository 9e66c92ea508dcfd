// Package permission decides per-application access from a token's embedded
// permission snapshot. The check is a pure function over the claims: no
// store lookup happens at request time.
package permission

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/gatehouse-sso/gatehouse/pkg/token"
)

// defaultAppKeys maps application names, including URL-path synonyms, to
// the canonical permission key carried in token snapshots.
var defaultAppKeys = map[string]string{
	"wiki":              "wiki_access",
	"dashboard":         "dashboard_access",
	"expense_system":    "expense_system",
	"expenses":          "expense_system",
	"crm_system":        "crm_system",
	"crm":               "crm_system",
	"reports":           "report_access",
	"reporting":         "report_access",
	"admin_panel":       "admin_panel",
	"admin":             "admin_panel",
	"leave_management":  "leave_management",
	"leave":             "leave_management",
	"attendance_system": "attendance_system",
	"attendance":        "attendance_system",
	"event_management":  "event_management",
	"events":            "event_management",
	"quotation_system":  "quotation_system",
	"quotations":        "quotation_system",
}

// Checker resolves application names to permission keys and evaluates them
// against a claims snapshot.
type Checker struct {
	mu      sync.RWMutex
	appKeys map[string]string
}

// NewChecker creates a checker with the built-in application table
func NewChecker() *Checker {
	appKeys := make(map[string]string, len(defaultAppKeys))
	for name, key := range defaultAppKeys {
		appKeys[name] = key
	}
	return &Checker{appKeys: appKeys}
}

// appKeysFile is the YAML shape for extending the application table
type appKeysFile struct {
	Applications map[string]string `yaml:"applications"`
}

// LoadFile merges application mappings from a YAML file into the table.
// Entries in the file override built-in ones with the same name.
func (c *Checker) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read application map: %w", err)
	}

	var parsed appKeysFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse application map: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, key := range parsed.Applications {
		c.appKeys[name] = key
	}
	return nil
}

// Resolve returns the canonical permission key for an application name.
// The second result is false for unknown applications.
func (c *Checker) Resolve(appName string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.appKeys[appName]
	return key, ok
}

// Applications returns the known application names, sorted
func (c *Checker) Applications() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.appKeys))
	for name := range c.appKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports whether the claims grant access to the application.
// Superusers and staff pass unconditionally; everyone else needs the
// application's permission key granted in the snapshot. Unknown
// applications are denied.
func (c *Checker) Check(claims *token.Claims, appName string) bool {
	if claims == nil {
		return false
	}
	if claims.IsSuperuser || claims.IsStaff {
		return true
	}

	key, ok := c.Resolve(appName)
	if !ok {
		return false
	}
	return claims.Permissions[key]
}
