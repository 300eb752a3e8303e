package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultTranscriptionModel = "gpt-4o-transcribe"
	DefaultGPTModel           = "gpt-4o"
	DefaultTemperature        = 0.1
	DefaultAudioQuality       = "high"
	DefaultLanguage           = "en"
	DefaultMaxTokens          = 1000
	DefaultBaseURL            = "https://api.openai.com/v1"
	DefaultStartTimeout       = 10 * time.Second
	DefaultSaveTimeout        = 30 * time.Second
)

// Settings is the read-only input to the gateway and controller.
type Settings struct {
	APIKey             string
	TranscriptionModel string
	GPTModel           string
	Temperature        float64
	AudioQuality       string // informational only
	Language           string
	MaxTokens          int
	BaseURL            string
	StartTimeout       time.Duration
	SaveTimeout        time.Duration
}

type fileConfig struct {
	VoiceAI struct {
		APIKey              string  `toml:"api_key"`
		TranscriptionModel  string  `toml:"transcription_model"`
		GPTModel            string  `toml:"gpt_model"`
		Temperature         float64 `toml:"temperature"`
		AudioQuality        string  `toml:"audio_quality"`
		Language            string  `toml:"language"`
		MaxTokens           int     `toml:"max_tokens"`
		BaseURL             string  `toml:"base_url"`
		StartTimeoutSeconds int     `toml:"start_timeout_seconds"`
		SaveTimeoutSeconds  int     `toml:"save_timeout_seconds"`
	} `toml:"voiceai"`
}

func Defaults() Settings {
	return Settings{
		TranscriptionModel: DefaultTranscriptionModel,
		GPTModel:           DefaultGPTModel,
		Temperature:        DefaultTemperature,
		AudioQuality:       DefaultAudioQuality,
		Language:           DefaultLanguage,
		MaxTokens:          DefaultMaxTokens,
		BaseURL:            DefaultBaseURL,
		StartTimeout:       DefaultStartTimeout,
		SaveTimeout:        DefaultSaveTimeout,
	}
}

// HasAPIKey reports whether a non-blank credential is configured.
func (s Settings) HasAPIKey() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// Path resolves the settings file: VOICEAI_CONFIG, then the user config dir.
func Path() (string, error) {
	if p := os.Getenv("VOICEAI_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voiceai", "config.toml"), nil
}

// Load reads path (a missing file is not an error) and applies env overrides.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		if err := s.decodeFile(path); err != nil {
			return s, err
		}
	}
	applyEnvOverrides(&s)
	return s, nil
}

func (s *Settings) decodeFile(path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	v := fc.VoiceAI
	s.APIKey = strings.TrimSpace(v.APIKey)
	if v.TranscriptionModel != "" {
		s.TranscriptionModel = v.TranscriptionModel
	}
	if v.GPTModel != "" {
		s.GPTModel = v.GPTModel
	}
	// temperature = 0 is a legitimate choice, so presence decides
	if md.IsDefined("voiceai", "temperature") {
		s.Temperature = v.Temperature
	}
	if v.AudioQuality != "" {
		s.AudioQuality = v.AudioQuality
	}
	if md.IsDefined("voiceai", "language") {
		s.Language = v.Language
	}
	if v.MaxTokens > 0 {
		s.MaxTokens = v.MaxTokens
	}
	if v.BaseURL != "" {
		s.BaseURL = strings.TrimRight(v.BaseURL, "/")
	}
	if v.StartTimeoutSeconds > 0 {
		s.StartTimeout = time.Duration(v.StartTimeoutSeconds) * time.Second
	}
	if v.SaveTimeoutSeconds > 0 {
		s.SaveTimeout = time.Duration(v.SaveTimeoutSeconds) * time.Second
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("parse %s: temperature %v out of range [0, 2]", path, s.Temperature)
	}
	return nil
}

func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("VOICEAI_API_KEY"); v != "" {
		s.APIKey = strings.TrimSpace(v)
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && s.APIKey == "" {
		s.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("VOICEAI_BASE_URL"); v != "" {
		s.BaseURL = strings.TrimRight(v, "/")
	}
}

// MaskKey shows only the shape of a credential.
func MaskKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "NOT SET"
	}
	if len(key) <= 8 {
		return "***(" + strconv.Itoa(len(key)) + " chars)"
	}
	return key[:3] + "…(" + strconv.Itoa(len(key)) + " chars)"
}

const template = `# voiceai settings
[voiceai]
# OpenAI API key (VOICEAI_API_KEY or OPENAI_API_KEY override this)
api_key = ""
transcription_model = "gpt-4o-transcribe"
gpt_model = "gpt-4o"
temperature = 0.1
# informational, not sent to the recorder
audio_quality = "high"
language = "en"
max_tokens = 1000
`

// EnsureFile writes a commented template at path if nothing is there yet.
func EnsureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0o600); err != nil {
		return fmt.Errorf("write config template: %w", err)
	}
	return nil
}

// Store serves the current Settings, re-reading the file when it changes
// on disk so edits take effect without a restart.
type Store struct {
	path string

	mu      sync.Mutex
	current Settings
	modTime time.Time
	size    int64
}

func NewStore(path string) (*Store, error) {
	st := &Store{path: path}
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	st.current = s
	st.modTime, st.size = stat(path)
	return st, nil
}

func (st *Store) Path() string { return st.path }

// Settings returns the latest valid settings. A file that fails to parse
// keeps the previous values; the error is returned alongside them.
func (st *Store) Settings() (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	mt, size := stat(st.path)
	if mt.Equal(st.modTime) && size == st.size {
		return st.current, nil
	}
	s, err := Load(st.path)
	if err != nil {
		return st.current, err
	}
	st.current = s
	st.modTime, st.size = mt, size
	return s, nil
}

func stat(path string) (time.Time, int64) {
	if path == "" {
		return time.Time{}, 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}
