package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up in the base and repo directories.
const FileName = "config.toml"

// Config holds application configuration.
type Config struct {
	// BaseDir is the data directory the configuration was loaded from. It is
	// not read from the file.
	BaseDir string `toml:"-"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.qsolog/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `toml:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `toml:"allow_unsafe_paths,omitempty"`

	// RecentLimit is the default number of contacts shown by the recent view.
	RecentLimit int `toml:"recent_limit,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `toml:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type ("qso", "station").
	DisabledTypes []string `toml:"disabled_types,omitempty"`

	Station StationConfig `toml:"station"`
	QRZ     QRZConfig     `toml:"qrz"`
	LoTW    LoTWConfig    `toml:"lotw"`
	CAT     CATConfig     `toml:"cat"`
	Log     LogConfig     `toml:"log"`
}

// StationConfig describes the operator's own station.
type StationConfig struct {
	Call string `toml:"call,omitempty"`
	Grid string `toml:"grid,omitempty"`
}

// QRZConfig holds QRZ.com credentials. Password and APIKey may carry the
// "enc:" prefix, in which case they are decrypted before use.
type QRZConfig struct {
	Username   string `toml:"username,omitempty"`
	Password   string `toml:"password,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	Upload     bool   `toml:"upload,omitempty"`
	BaseURL    string `toml:"base_url,omitempty"`    // lookup endpoint override
	LogbookURL string `toml:"logbook_url,omitempty"` // logbook endpoint override
}

// LoTWConfig configures signing through the tqsl executable.
type LoTWConfig struct {
	Location        string `toml:"location,omitempty"`
	CertPassword    string `toml:"cert_password,omitempty"`
	Upload          bool   `toml:"upload,omitempty"`
	TQSLPath        string `toml:"tqsl_path,omitempty"`
	DuplicatePolicy string `toml:"duplicate_policy,omitempty"` // ask, abort, compliant, all
}

// CATConfig configures the radio control port.
type CATConfig struct {
	ComPort     string `toml:"com_port,omitempty"`
	Baudrate    int    `toml:"baudrate,omitempty"`
	FreqCmd     string `toml:"freq_cmd,omitempty"`
	BandCmd     string `toml:"band_cmd,omitempty"`
	ModeCmd     string `toml:"mode_cmd,omitempty"`
	AutoConnect bool   `toml:"auto_connect,omitempty"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `toml:"level,omitempty"`  // debug, info, warn, error
	Format string `toml:"format,omitempty"` // console or json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RecentLimit: 10,
		LoTW: LoTWConfig{
			TQSLPath:        "tqsl",
			DuplicatePolicy: "compliant",
		},
		CAT: CATConfig{
			Baudrate: 9600,
			FreqCmd:  "FA;",
			BandCmd:  "BN;",
			ModeCmd:  "MD;",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from baseDir/config.toml.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.qsolog.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, FileName))
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = baseDir
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.qsolog) and repo (.qsolog) directories.
// Repo config is found by walking upward from startDir to find the nearest .qsolog/config.toml.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, FileName))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	cfg.BaseDir = globalDir
	return cfg, nil
}

// DefaultBaseDir returns $QSOLOG_HOME, or ~/.qsolog when it is unset.
func DefaultBaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("QSOLOG_HOME")); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".qsolog"), nil
}

// ExportsDir is the default directory for interchange files.
func (c *Config) ExportsDir() string {
	return filepath.Join(c.BaseDir, "exports")
}

// FindRepoConfig walks upward from startDir to find the nearest .qsolog/config.toml.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".qsolog", FileName)
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

// Read decodes a Config from r without applying defaults.
func Read(r io.Reader) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes cfg to w.
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Save writes cfg to baseDir/config.toml, replacing any existing file.
func Save(baseDir string, cfg *Config) error {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}
	path := filepath.Join(baseDir, FileName)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := Write(f, cfg); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	f, err := os.Open(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", configPath, err)
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
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{BaseDir: pick(base.BaseDir, overlay.BaseDir)}

	result.RecentLimit = overlay.RecentLimit
	if result.RecentLimit == 0 {
		result.RecentLimit = base.RecentLimit
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	result.Station = StationConfig{
		Call: pick(base.Station.Call, overlay.Station.Call),
		Grid: pick(base.Station.Grid, overlay.Station.Grid),
	}

	result.QRZ = QRZConfig{
		Username:   pick(base.QRZ.Username, overlay.QRZ.Username),
		Password:   pick(base.QRZ.Password, overlay.QRZ.Password),
		APIKey:     pick(base.QRZ.APIKey, overlay.QRZ.APIKey),
		Upload:     base.QRZ.Upload || overlay.QRZ.Upload,
		BaseURL:    pick(base.QRZ.BaseURL, overlay.QRZ.BaseURL),
		LogbookURL: pick(base.QRZ.LogbookURL, overlay.QRZ.LogbookURL),
	}

	result.LoTW = LoTWConfig{
		Location:        pick(base.LoTW.Location, overlay.LoTW.Location),
		CertPassword:    pick(base.LoTW.CertPassword, overlay.LoTW.CertPassword),
		Upload:          base.LoTW.Upload || overlay.LoTW.Upload,
		TQSLPath:        pick(base.LoTW.TQSLPath, overlay.LoTW.TQSLPath),
		DuplicatePolicy: pick(base.LoTW.DuplicatePolicy, overlay.LoTW.DuplicatePolicy),
	}

	result.CAT = CATConfig{
		ComPort:     pick(base.CAT.ComPort, overlay.CAT.ComPort),
		Baudrate:    overlay.CAT.Baudrate,
		FreqCmd:     pick(base.CAT.FreqCmd, overlay.CAT.FreqCmd),
		BandCmd:     pick(base.CAT.BandCmd, overlay.CAT.BandCmd),
		ModeCmd:     pick(base.CAT.ModeCmd, overlay.CAT.ModeCmd),
		AutoConnect: base.CAT.AutoConnect || overlay.CAT.AutoConnect,
	}
	if result.CAT.Baudrate == 0 {
		result.CAT.Baudrate = base.CAT.Baudrate
	}

	result.Log = LogConfig{
		Level:  pick(base.Log.Level, overlay.Log.Level),
		Format: pick(base.Log.Format, overlay.Log.Format),
	}

	return result
}

// pick returns overlay unless it is blank.
func pick(base, overlay string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
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
