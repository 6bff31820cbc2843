package config

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultMirrors are the package index mirrors known out of the box.
var DefaultMirrors = map[string]string{
	"aliyun":   "https://mirrors.aliyun.com/pypi/simple/",
	"tsinghua": "https://pypi.tuna.tsinghua.edu.cn/simple/",
	"ustc":     "https://pypi.mirrors.ustc.edu.cn/simple/",
	"douban":   "https://pypi.douban.com/simple/",
	"huawei":   "https://mirrors.huaweicloud.com/repository/pypi/simple/",
	"tencent":  "https://mirrors.cloud.tencent.com/pypi/simple/",
}

// Config holds application configuration.
type Config struct {
	// Mirrors maps a short mirror name to its index URL.
	// Entries here are added to (and override) DefaultMirrors.
	Mirrors map[string]string `json:"mirrors,omitempty"`

	// Mirror is the default mirror, either a name from Mirrors or a full URL.
	// Empty means the package manager's own default index.
	Mirror string `json:"mirror,omitempty"`

	// ManifestName is the dependency manifest filename looked for during scans.
	ManifestName string `json:"manifest_name"`

	// ProtectedPackages are never planned for uninstallation.
	ProtectedPackages []string `json:"protected_packages,omitempty"`

	// CacheTTLSeconds bounds the age of a cached installed-package listing.
	CacheTTLSeconds int `json:"cache_ttl_seconds"`

	// QueryTimeoutSeconds bounds list/show/freeze/check invocations.
	QueryTimeoutSeconds int `json:"query_timeout_seconds"`

	// InstallTimeoutSeconds bounds a single install attempt.
	InstallTimeoutSeconds int `json:"install_timeout_seconds"`

	// UninstallTimeoutSeconds bounds a single uninstall.
	UninstallTimeoutSeconds int `json:"uninstall_timeout_seconds"`

	// UninstallShare is the fraction of run progress given to the uninstall phase.
	UninstallShare float64 `json:"uninstall_share"`

	// RequireSameEnvRoot rejects scans whose directory is not under the
	// interpreter's environment root (drive + first path segment).
	RequireSameEnvRoot bool `json:"require_same_env_root,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ManifestName:            "requirements.txt",
		ProtectedPackages:       []string{"pip", "setuptools", "wheel"},
		CacheTTLSeconds:         30,
		QueryTimeoutSeconds:     30,
		InstallTimeoutSeconds:   1200,
		UninstallTimeoutSeconds: 600,
		UninstallShare:          0.3,
	}
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// QueryTimeout returns QueryTimeoutSeconds as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// InstallTimeout returns InstallTimeoutSeconds as a duration.
func (c *Config) InstallTimeout() time.Duration {
	return time.Duration(c.InstallTimeoutSeconds) * time.Second
}

// UninstallTimeout returns UninstallTimeoutSeconds as a duration.
func (c *Config) UninstallTimeout() time.Duration {
	return time.Duration(c.UninstallTimeoutSeconds) * time.Second
}

// ResolveMirror maps a mirror name or URL to an index URL.
// Empty input falls back to c.Mirror; an unknown name that is not a URL resolves to "".
func (c *Config) ResolveMirror(nameOrURL string) string {
	s := strings.TrimSpace(nameOrURL)
	if s == "" {
		s = strings.TrimSpace(c.Mirror)
	}
	if s == "" {
		return ""
	}
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		return s
	}
	if u, ok := c.Mirrors[s]; ok {
		return u
	}
	if u, ok := DefaultMirrors[s]; ok {
		return u
	}
	return ""
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.venvkeep.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.venvkeep) and repo (.venvkeep) directories.
// Repo config is found by walking upward from startDir to find the nearest .venvkeep/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .venvkeep/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".venvkeep", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated;
// mirror maps are merged with overlay entries winning.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.Mirror = overlay.Mirror
	if result.Mirror == "" {
		result.Mirror = base.Mirror
	}

	result.ManifestName = overlay.ManifestName
	if result.ManifestName == "" {
		result.ManifestName = base.ManifestName
	}

	result.CacheTTLSeconds = firstPositive(overlay.CacheTTLSeconds, base.CacheTTLSeconds)
	result.QueryTimeoutSeconds = firstPositive(overlay.QueryTimeoutSeconds, base.QueryTimeoutSeconds)
	result.InstallTimeoutSeconds = firstPositive(overlay.InstallTimeoutSeconds, base.InstallTimeoutSeconds)
	result.UninstallTimeoutSeconds = firstPositive(overlay.UninstallTimeoutSeconds, base.UninstallTimeoutSeconds)
	result.DBMaxOpenConns = firstPositive(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstPositive(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.UninstallShare = overlay.UninstallShare
	if result.UninstallShare <= 0 || result.UninstallShare >= 1 {
		result.UninstallShare = base.UninstallShare
	}

	// Booleans: overlay wins if true, else base
	result.RequireSameEnvRoot = base.RequireSameEnvRoot || overlay.RequireSameEnvRoot

	result.ProtectedPackages = mergeStringSlice(base.ProtectedPackages, overlay.ProtectedPackages)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	if len(base.Mirrors)+len(overlay.Mirrors) > 0 {
		result.Mirrors = make(map[string]string, len(base.Mirrors)+len(overlay.Mirrors))
		for k, v := range base.Mirrors {
			result.Mirrors[k] = v
		}
		for k, v := range overlay.Mirrors {
			result.Mirrors[k] = v
		}
	}

	return result
}

func firstPositive(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
