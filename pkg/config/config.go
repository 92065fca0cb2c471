package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	DSN        string           `toml:"dsn"`
	OutDir     string           `toml:"out_dir"`
	Crawler    CrawlerConfig    `toml:"crawler"`
	Politeness PolitenessConfig `toml:"politeness"`
	Classifier ClassifierConfig `toml:"classifier"`
	Chunking   ChunkingConfig   `toml:"chunking"`
	Embedder   EmbedderConfig   `toml:"embedder"`
	LLM        LLMConfig        `toml:"llm"`
	Retrieval  RetrievalConfig  `toml:"retrieval"`
	Web        WebConfig        `toml:"web"`
	Logging    LoggingConfig    `toml:"logging"`
}

type CrawlerConfig struct {
	UserAgent     string   `toml:"user_agent"`
	BaseURL       string   `toml:"base_url"`
	Seeds         []string `toml:"seeds"`
	SeedsFile     string   `toml:"seeds_file"`
	MaxDepth      int      `toml:"max_depth"`
	MaxPages      int      `toml:"max_pages"`
	MaxDocs       int      `toml:"max_docs"`
	Workers       int      `toml:"workers"`
	FetchTimeout  string   `toml:"fetch_timeout"`
	RespectRobots bool     `toml:"respect_robots"`
}

type PolitenessConfig struct {
	Delay         string `toml:"delay"`
	RobotsTimeout string `toml:"robots_timeout"`
}

// ClassifierConfig holds the doc-page heuristic thresholds, in characters.
type ClassifierConfig struct {
	MinDocChars  int `toml:"min_doc_chars"`
	LongDocChars int `toml:"long_doc_chars"`
}

type ChunkingConfig struct {
	Size         int `toml:"size"`
	Overlap      int `toml:"overlap"`
	MinPageChars int `toml:"min_page_chars"`
}

type EmbedderConfig struct {
	BaseURL   string `toml:"base_url"`
	Model     string `toml:"model"`
	BatchSize int    `toml:"batch_size"`
	Timeout   string `toml:"timeout"`
}

type LLMConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	Timeout string `toml:"timeout"`
}

type RetrievalConfig struct {
	TopK          int     `toml:"top_k"`
	MinScore      float64 `toml:"min_score"`
	UnknownAnswer string  `toml:"unknown_answer"`
}

type WebConfig struct {
	Addr string `toml:"addr"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	var cfg Config
	cfg.OutDir = "data/knowledge_base"

	cfg.Crawler.UserAgent = "Mozilla/5.0 (compatible; normkb/1.0; +local)"
	cfg.Crawler.BaseURL = "http://sniprf.ru/snip"
	cfg.Crawler.MaxDepth = 4
	cfg.Crawler.MaxPages = 2000
	cfg.Crawler.MaxDocs = 400
	cfg.Crawler.Workers = 1
	cfg.Crawler.FetchTimeout = "30s"
	cfg.Crawler.RespectRobots = true

	cfg.Politeness.Delay = "400ms"
	cfg.Politeness.RobotsTimeout = "10s"

	cfg.Classifier.MinDocChars = 800
	cfg.Classifier.LongDocChars = 1500

	cfg.Chunking.Size = 1600
	cfg.Chunking.Overlap = 250
	cfg.Chunking.MinPageChars = 400

	cfg.Embedder.BaseURL = "http://localhost:11434"
	cfg.Embedder.Model = "paraphrase-multilingual"
	cfg.Embedder.BatchSize = 32
	cfg.Embedder.Timeout = "120s"

	cfg.LLM.BaseURL = "http://localhost:11434"
	cfg.LLM.Model = "llama3.1"
	cfg.LLM.Timeout = "120s"

	cfg.Retrieval.TopK = 5
	cfg.Retrieval.MinScore = 0.25
	cfg.Retrieval.UnknownAnswer = "I don't know."

	cfg.Web.Addr = ":8080"

	cfg.Logging.Format = "text"
	cfg.Logging.Level = "info"
	return &cfg
}

// Load reads a TOML config file on top of Default. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data into cfg and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func (c *Config) Validate() error {
	switch {
	case c.Chunking.Size <= 0:
		return fmt.Errorf("%w: chunking.size must be positive, got %d", ErrInvalid, c.Chunking.Size)
	case c.Chunking.Overlap < 0:
		return fmt.Errorf("%w: chunking.overlap must not be negative, got %d", ErrInvalid, c.Chunking.Overlap)
	case c.Chunking.Overlap >= c.Chunking.Size:
		return fmt.Errorf("%w: chunking.overlap (%d) must be less than chunking.size (%d)", ErrInvalid, c.Chunking.Overlap, c.Chunking.Size)
	case c.Crawler.MaxPages <= 0:
		return fmt.Errorf("%w: crawler.max_pages must be positive", ErrInvalid)
	case c.Crawler.MaxDocs <= 0:
		return fmt.Errorf("%w: crawler.max_docs must be positive", ErrInvalid)
	case c.Crawler.MaxDepth < 0:
		return fmt.Errorf("%w: crawler.max_depth must not be negative", ErrInvalid)
	case c.Retrieval.TopK <= 0:
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalid)
	}
	return nil
}

func (c *PolitenessConfig) GetDelay() time.Duration {
	return parseDuration(c.Delay, 400*time.Millisecond)
}

func (c *PolitenessConfig) GetRobotsTimeout() time.Duration {
	return parseDuration(c.RobotsTimeout, 10*time.Second)
}

func (c *CrawlerConfig) GetFetchTimeout() time.Duration {
	return parseDuration(c.FetchTimeout, 30*time.Second)
}

func (c *EmbedderConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 120*time.Second)
}

func (c *LLMConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 120*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
