package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	apperrors "upcheck/internal/errors"
	"upcheck/internal/history"
	"upcheck/internal/update"
)

const (
	KeyUpdateChannel       = "update.channel"
	KeyUpdateMirrorURL     = "update.mirror-url"
	KeyUpdateTimeout       = "update.timeout"
	KeyUpdateArtifactExt   = "update.artifact-ext"
	KeyUpdateCheckInterval = "update.check-interval"
	KeyChannels            = "channels"

	KeyIntegrityDisable = "integrity.disable"
	KeyHistoryPath      = "history.path"
	KeyOutputFormat     = "output.format"
	KeyLogLevel         = "log.level"
	KeyDebug            = "debug"
	KeyNoColor          = "no-color"
)

const (
	// DirName is the per-user and per-project configuration directory.
	DirName   = ".upcheck"
	fileName  = "config.yaml"
	envPrefix = "UPCHECK"
)

type initSettings struct {
	workingDir        string
	projectConfigPath string
	userConfigPath    string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithWorkingDir overrides the directory used for project config discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig overrides the default user config path.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error

	// userConfigPathOverride is used by tests to override the user config path.
	userConfigPathOverride string
)

// Initialize loads configuration using the precedence:
// defaults < user config < project config < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

// channelConfig is one entry of the "channels" table.
type channelConfig struct {
	Family        string `mapstructure:"family"`
	URL           string `mapstructure:"url"`
	ContentsURL   string `mapstructure:"contents_url"`
	DownloadURL   string `mapstructure:"download_url"`
	Rewrite       *bool  `mapstructure:"rewrite"`
	RewritePrefix string `mapstructure:"rewrite_prefix"`
}

// Channels returns the built-in channels merged with the "channels" table.
// A configured entry overrides the non-empty fields of a built-in channel
// with the same id, or adds a new channel.
func Channels() ([]update.Channel, error) {
	v, err := getViper()
	if err != nil {
		return nil, err
	}

	byID := make(map[update.ChannelID]update.Channel)
	for _, ch := range update.DefaultChannels() {
		byID[ch.ID] = ch
	}

	configured := map[string]channelConfig{}
	configMu.RLock()
	err = v.UnmarshalKey(KeyChannels, &configured)
	configMu.RUnlock()
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConfigurationError, "decode channels", err)
	}

	for id, cc := range configured {
		chID := update.ChannelID(strings.ToLower(strings.TrimSpace(id)))
		ch, ok := byID[chID]
		if !ok {
			ch = update.Channel{ID: chID}
		}
		if cc.Family != "" {
			ch.Family = update.Family(strings.ToLower(cc.Family))
		}
		if cc.URL != "" {
			ch.URL = cc.URL
		}
		if cc.ContentsURL != "" {
			ch.ContentsURL = cc.ContentsURL
		}
		if cc.DownloadURL != "" {
			ch.DownloadURL = cc.DownloadURL
		}
		if cc.Rewrite != nil {
			ch.Rewrite = *cc.Rewrite
		}
		if cc.RewritePrefix != "" {
			ch.RewritePrefix = cc.RewritePrefix
		}
		if err := ch.Validate(); err != nil {
			return nil, apperrors.New(apperrors.CodeConfigurationError, "invalid channel config", err)
		}
		byID[chID] = ch
	}

	out := make([]update.Channel, 0, len(byID))
	for _, ch := range byID {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Registry builds the channel registry with the configured active channel.
func Registry() (*update.Registry, error) {
	channels, err := Channels()
	if err != nil {
		return nil, err
	}
	active := update.ChannelID(strings.ToLower(strings.TrimSpace(GetString(KeyUpdateChannel))))
	reg, err := update.NewRegistry(active, channels...)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeConfigurationError, "build channel registry", err)
	}
	return reg, nil
}

// FetcherOptions translates the update.* keys into fetcher options.
func FetcherOptions() []update.FetcherOption {
	opts := []update.FetcherOption{
		update.WithArtifactSuffix(GetString(KeyUpdateArtifactExt)),
		update.WithMirror(GetString(KeyUpdateMirrorURL)),
	}
	if d := GetDuration(KeyUpdateTimeout); d > 0 {
		opts = append(opts, update.WithTimeout(d))
	}
	return opts
}

// HistoryPath returns the configured history database, defaulting to
// ~/.upcheck/history.db.
func HistoryPath() (string, error) {
	if p := strings.TrimSpace(GetString(KeyHistoryPath)); p != "" {
		return p, nil
	}
	return history.DefaultPath()
}

func configure(settings *initSettings) error {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	userConfigPath := strings.TrimSpace(settings.userConfigPath)
	if userConfigPath == "" {
		path, err := defaultUserConfigPath()
		if err != nil {
			return err
		}
		userConfigPath = path
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return err
		}
		projectConfigPath = path
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	if err := mergeConfigFile(v, projectConfigPath); err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	if userConfigPathOverride != "" {
		return userConfigPathOverride, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine user home: %w", err)
	}
	return filepath.Join(home, DirName, fileName), nil
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, DirName, fileName)
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyUpdateChannel, string(update.ChannelGitHub))
	v.SetDefault(KeyUpdateMirrorURL, "")
	v.SetDefault(KeyUpdateTimeout, update.DefaultRequestTimeout)
	v.SetDefault(KeyUpdateArtifactExt, update.DefaultArtifactSuffix)
	v.SetDefault(KeyUpdateCheckInterval, update.DefaultCheckInterval)
	v.SetDefault(KeyIntegrityDisable, false)
	v.SetDefault(KeyHistoryPath, "")
	v.SetDefault(KeyOutputFormat, "text")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyNoColor, false)
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// reset clears package state for tests.
//
//nolint:unused // Used in config_test.go
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	configOnce = sync.Once{}
	userConfigPathOverride = ""
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	userConfigPathOverride = filepath.Join(tmp, fileName)
	_ = Initialize(WithWorkingDir(tmp))
	return reset
}

// setUserConfigPathOverride sets the user config path for tests.
//
//nolint:unused // Used in config_test.go
func setUserConfigPathOverride(path string) {
	userConfigPathOverride = path
}

// SaveChannel persists the active channel to the appropriate config file.
// If a project config (.upcheck/config.yaml) exists, it updates that file.
// Otherwise, it updates the user config (~/.upcheck/config.yaml).
// The user config directory is auto-created if needed, but project config
// directories are never auto-created.
func SaveChannel(id update.ChannelID) error {
	targetPath, err := findWritableConfigPath()
	if err != nil {
		return fmt.Errorf("find config path: %w", err)
	}

	// Create a fresh viper instance for this file only
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(targetPath)

	// Read existing config (if any) to preserve other settings
	_ = v.ReadInConfig() // ignore error if file doesn't exist

	v.Set(KeyUpdateChannel, string(id))

	dir := filepath.Dir(targetPath)
	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := v.WriteConfigAs(targetPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return Set(KeyUpdateChannel, string(id))
}

// findWritableConfigPath determines which config file to write to.
// Returns project config path if it exists, otherwise user config path.
func findWritableConfigPath() (string, error) {
	wd, err := os.Getwd()
	if err == nil {
		projectPath, err := findProjectConfig(wd)
		if err == nil && projectPath != "" {
			return projectPath, nil
		}
	}
	return defaultUserConfigPath()
}
