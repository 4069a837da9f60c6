package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "DIGEST_RANKER_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	llmAPIKeyEnv      = "LLM_API_KEY"
	llmModelEnv       = "LLM_MODEL"
	llmEndpointEnv    = "LLM_ENDPOINT"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Store         StoreConfig        `yaml:"store"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	LLM           LLMConfig          `yaml:"llm"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Topics        []TopicConfig      `yaml:"topics"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StoreConfig selects the candidate and published-URL backends.
type StoreConfig struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	RedisAddr string `yaml:"redisAddr"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	RunAt        string         `yaml:"runAt"`
	Timezone     string         `yaml:"timezone"`
	SkipWeekends bool           `yaml:"skipWeekends"`
	location     *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// TimeOfDay parses RunAt ("HH:MM") into hour and minute.
func (s SchedulerConfig) TimeOfDay() (int, int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s.RunAt))
	if err != nil {
		return 0, 0, fmt.Errorf("parse runAt %q: %w", s.RunAt, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	BaseURL  string `yaml:"baseUrl"`
}

// Enabled reports whether delivery credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LLMConfig describes the text-generation backend and how hard to drive it.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Endpoint          string        `yaml:"endpoint"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"apiKey"`
	SystemPrompt      string        `yaml:"systemPrompt"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxInputChars     int           `yaml:"maxInputChars"`
	CacheSize         int           `yaml:"cacheSize"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig configures exponential backoff for LLM calls.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"maxAttempts"`
	BaseDelay     time.Duration `yaml:"baseDelay"`
	MaxDelay      time.Duration `yaml:"maxDelay"`
	BackoffFactor float64       `yaml:"backoffFactor"`
	JitterFactor  float64       `yaml:"jitterFactor"`
}

// MetricsConfig configures the Prometheus endpoint used by serve.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// TopicConfig is one digest with its own sources, scoring table and limits.
type TopicConfig struct {
	Name           string         `yaml:"name"`
	Buckets        []BucketConfig `yaml:"buckets"`
	DefaultCap     int            `yaml:"defaultCap"`
	TopK           int            `yaml:"topK"`
	MaxAgeDays     int            `yaml:"maxAgeDays"`
	RequireSummary bool           `yaml:"requireSummary"`
	NotifyEmpty    bool           `yaml:"notifyEmpty"`
	SystemPrompt   string         `yaml:"systemPrompt"`
	Scoring        ScoringConfig  `yaml:"scoring"`
	Ranking        RankingConfig  `yaml:"ranking"`
	Feeds          []FeedConfig   `yaml:"feeds"`
}

// BucketConfig caps how many candidates of one source reach the LLM stage.
type BucketConfig struct {
	Source string `yaml:"source"`
	Cap    int    `yaml:"cap"`
}

// ScoringConfig feeds the rule scorer. RepetitionPenalty is nil when unset; an
// explicit 0 disables the penalty.
type ScoringConfig struct {
	KeywordWeights    map[string]float64 `yaml:"keywordWeights"`
	IssueKeywords     []string           `yaml:"issueKeywords"`
	ProductKeywords   []string           `yaml:"productKeywords"`
	RecencyWindows    map[string][]int   `yaml:"recencyWindows"`
	RepetitionPenalty *float64           `yaml:"repetitionPenalty"`
	RecencyWeight     float64            `yaml:"recencyWeight"`
	KeywordWeight     float64            `yaml:"keywordWeight"`
	BoostWeight       float64            `yaml:"boostWeight"`
}

// Penalty returns the configured repetition penalty, 0 when unset.
func (s ScoringConfig) Penalty() float64 {
	if s.RepetitionPenalty == nil {
		return 0
	}
	return *s.RepetitionPenalty
}

// RankingConfig sets the finalization sort key: llm*LLMWeight + rule*RuleWeight.
type RankingConfig struct {
	LLMWeight  float64 `yaml:"llmWeight"`
	RuleWeight float64 `yaml:"ruleWeight"`
}

// FeedConfig describes a single feed with its scanner strategy.
type FeedConfig struct {
	Source  string            `yaml:"source"`
	Scanner string            `yaml:"scanner"`
	URL     string            `yaml:"url"`
	Options map[string]string `yaml:"options"`
}

// Topic returns the named topic configuration.
func (c Config) Topic(name string) (TopicConfig, bool) {
	for _, t := range c.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return TopicConfig{}, false
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := LoadFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg
}

// LoadPath is LoadFile followed by environment overrides.
func LoadPath(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg, nil
}

// LoadFile overlays the YAML file at path on top of the defaults.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse overlays raw YAML on top of the defaults.
func Parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	cfg.Topics = nil
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse config: %w", err)
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = defaultConfig().Topics
	}
	for i := range cfg.Topics {
		cfg.Topics[i].applyDefaults()
	}
	cfg.bindTimezone()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Store.DSN = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Store.RedisAddr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(llmEndpointEnv); v != "" {
		c.LLM.Endpoint = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func (t *TopicConfig) applyDefaults() {
	def := defaultTopic()
	if t.TopK <= 0 {
		t.TopK = def.TopK
	}
	if t.Scoring.KeywordWeights == nil {
		t.Scoring.KeywordWeights = def.Scoring.KeywordWeights
	}
	if t.Scoring.RepetitionPenalty == nil {
		t.Scoring.RepetitionPenalty = def.Scoring.RepetitionPenalty
	}
	if t.Scoring.RecencyWeight == 0 && t.Scoring.KeywordWeight == 0 && t.Scoring.BoostWeight == 0 {
		t.Scoring.RecencyWeight = def.Scoring.RecencyWeight
		t.Scoring.KeywordWeight = def.Scoring.KeywordWeight
		t.Scoring.BoostWeight = def.Scoring.BoostWeight
	}
	if t.Ranking.LLMWeight == 0 && t.Ranking.RuleWeight == 0 {
		t.Ranking = def.Ranking
	}
	for i := range t.Feeds {
		if t.Feeds[i].Scanner == "" {
			t.Feeds[i].Scanner = "rss"
		}
	}
}

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every invalid field at once.
func (c Config) Validate() []error {
	var errs []error
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	switch c.Store.Driver {
	case StorePostgres:
		if c.Store.DSN == "" {
			add("store.dsn", "required for postgres driver")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			add("store.redisAddr", "required for redis driver")
		}
	case StoreMemory:
	default:
		add("store.driver", fmt.Sprintf("unknown driver %q", c.Store.Driver))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		add("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.Concurrency <= 0 {
		add("llm.concurrency", "must be positive")
	}
	if c.LLM.Timeout <= 0 {
		add("llm.timeout", "must be positive")
	}
	if c.LLM.Retry.MaxAttempts <= 0 {
		add("llm.retry.maxAttempts", "must be positive")
	}
	if c.LLM.Retry.BackoffFactor < 1 {
		add("llm.retry.backoffFactor", "must be at least 1")
	}
	if c.LLM.RequestsPerSecond < 0 {
		add("llm.requestsPerSecond", "must not be negative")
	}

	if _, _, err := c.Scheduler.TimeOfDay(); err != nil {
		add("scheduler.runAt", "expected HH:MM")
	}

	seen := map[string]bool{}
	for i, t := range c.Topics {
		prefix := "topics[" + strconv.Itoa(i) + "]"
		if t.Name == "" {
			add(prefix+".name", "required")
		} else if seen[t.Name] {
			add(prefix+".name", "duplicate topic "+t.Name)
		}
		seen[t.Name] = true
		if t.TopK <= 0 {
			add(prefix+".topK", "must be positive")
		}
		if t.DefaultCap < 0 {
			add(prefix+".defaultCap", "must not be negative")
		}
		for j, b := range t.Buckets {
			if b.Source == "" {
				add(prefix+".buckets["+strconv.Itoa(j)+"].source", "required")
			}
			if b.Cap < 0 {
				add(prefix+".buckets["+strconv.Itoa(j)+"].cap", "must not be negative")
			}
		}
		for src, windows := range t.Scoring.RecencyWindows {
			for k := 1; k < len(windows); k++ {
				if windows[k] < windows[k-1] {
					add(prefix+".scoring.recencyWindows."+src, "must be ascending")
					break
				}
			}
		}
		if t.Scoring.Penalty() < 0 {
			add(prefix+".scoring.repetitionPenalty", "must not be negative")
		}
		if t.Ranking.LLMWeight < 0 || t.Ranking.RuleWeight < 0 {
			add(prefix+".ranking", "weights must not be negative")
		}
		for j, f := range t.Feeds {
			if f.URL == "" {
				add(prefix+".feeds["+strconv.Itoa(j)+"].url", "required")
			}
		}
	}

	return errs
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Store:     StoreConfig{Driver: StoreMemory, DSN: "", RedisAddr: "localhost:6379"},
		Scheduler: SchedulerConfig{RunAt: "09:00", Timezone: defaultTimezone, SkipWeekends: true, location: tz},
		LLM: LLMConfig{
			Provider:      ProviderOpenAI,
			Endpoint:      "https://api.openai.com/v1/chat/completions",
			Model:         "gpt-4o",
			Concurrency:   5,
			Timeout:       60 * time.Second,
			MaxInputChars: 1500,
			CacheSize:     512,
			Retry: RetryConfig{
				MaxAttempts:   3,
				BaseDelay:     time.Second,
				MaxDelay:      30 * time.Second,
				BackoffFactor: 2,
				JitterFactor:  0.1,
			},
		},
		Metrics: MetricsConfig{Addr: ":9090"},
		Topics:  []TopicConfig{defaultTopic()},
	}
}

func defaultTopic() TopicConfig {
	penalty := 5.0
	return TopicConfig{
		Name: "geeknews",
		Buckets: []BucketConfig{
			{Source: "blog", Cap: 5},
			{Source: "forum", Cap: 5},
		},
		TopK:       10,
		MaxAgeDays: 3,
		Scoring: ScoringConfig{
			KeywordWeights:    DefaultKeywordWeights(),
			IssueKeywords:     []string{"오류", "에러", "장애", "불편", "불가", "거절", "outage", "breach"},
			ProductKeywords:   []string{"카드", "결제", "payment"},
			RecencyWindows:    map[string][]int{"default": {10, 20, 30}},
			RepetitionPenalty: &penalty,
			RecencyWeight:     1,
			KeywordWeight:     1,
			BoostWeight:       1,
		},
		Ranking: RankingConfig{LLMWeight: 1, RuleWeight: 0},
		Feeds: []FeedConfig{
			{Source: "forum", Scanner: "rss", URL: "https://feeds.feedburner.com/geeknews-feed"},
		},
	}
}

// DefaultKeywordWeights is the fintech and security relevance table.
func DefaultKeywordWeights() map[string]float64 {
	return map[string]float64{
		"금융": 22, "카드": 22, "결제": 18, "핀테크": 20, "fraud": 20,
		"보안": 20, "해킹": 20, "개인정보": 25, "유출": 25, "누출": 25,
		"카카오": 13, "네이버": 13, "토스": 16, "삼성": 15, "신한": 15, "현대카드": 15, "kb": 15,
		"ai": 8, "llm": 8, "gpt": 6, "rag": 6, "embedding": 4, "prompt": 4, "inference": 4, "agent": 5,
		"자동화": 2, "workflow": 2, "pipeline": 2, "devops": 2, "mcp": 1, "cli": 1, "api": 1,
		"data": 2, "데이터": 2, "sql": 2, "ml": 1, "machine learning": 1, "업무": 1,
	}
}
