package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bananya-ml/arxiv-feed/internal/envHelper"
)

const Version = "1.0.0"

type AppConfig struct {
	AppEnv      string            `yaml:"app_env"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Source      SourceConfig      `yaml:"source"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Parser      ParserConfig      `yaml:"parser"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Index       IndexConfig       `yaml:"index"`
	Store       StoreConfig       `yaml:"store"`
	Queue       QueueConfig       `yaml:"queue"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Cache       CacheConfig       `yaml:"cache"`
	AWS         AWSConfig         `yaml:"aws"`
}

type ServerConfig struct {
	Addr             string   `yaml:"addr"`
	CORSOrigins      []string `yaml:"cors_origins"`
	CORSMethods      []string `yaml:"cors_methods"`
	CORSHeaders      []string `yaml:"cors_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

type IngestionConfig struct {
	DefaultCategory string `yaml:"default_category"`
	DefaultMax      int    `yaml:"default_max"`
}

type SourceConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type AcquisitionConfig struct {
	PDFBaseURL string        `yaml:"pdf_base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	// S3Bucket enables the PDF cache when set.
	S3Bucket string `yaml:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix"`
}

type ParserConfig struct {
	GrobidURL                 string        `yaml:"grobid_url"`
	Timeout                   time.Duration `yaml:"timeout"`
	MaxAttempts               int           `yaml:"max_attempts"`
	RetryInterval             time.Duration `yaml:"retry_interval"`
	MinimumGapBetweenRequests time.Duration `yaml:"minimum_gap_between_requests"`
	HealthInterval            time.Duration `yaml:"health_interval"`
}

type LLMConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	// RecursiveSummary condenses long papers chunk by chunk before summarizing.
	RecursiveSummary bool `yaml:"recursive_summary"`
}

type EmbedderConfig struct {
	// Type is "hashing" (local, default) or "openai".
	Type      string        `yaml:"type"`
	BaseURL   string        `yaml:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

type IndexConfig struct {
	// Dir holds the sqlite file; empty keeps the index in memory only.
	Dir string `yaml:"dir"`
}

type StoreConfig struct {
	// Type is "file" (default) or "mysql".
	Type    string      `yaml:"type"`
	DataDir string      `yaml:"data_dir"`
	MySQL   MySQLConfig `yaml:"mysql"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN builds the go-sql-driver connection string.
func (c MySQLConfig) DSN() string {
	return c.User + ":" + c.Password + "@tcp(" + c.Host + ":" + c.Port + ")/" + c.Database + "?charset=utf8mb4"
}

type QueueConfig struct {
	// Type is "local" (default) or "sqs".
	Type              string `yaml:"type"`
	WorkerCount       int    `yaml:"worker_count"`
	MaxAttempts       int    `yaml:"max_attempts"`
	SQSURL            string `yaml:"sqs_url"`
	PollingWaitTime   int64  `yaml:"polling_wait_time"`
	VisibilityTimeout int64  `yaml:"visibility_timeout"`
	// RetryDelay keeps a failed SQS message invisible before redelivery.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type TrackerConfig struct {
	// Type is "memory" (default) or "dynamodb".
	Type      string `yaml:"type"`
	TableName string `yaml:"table_name"`
}

type CacheConfig struct {
	// RedisAddr enables the embedding cache when set.
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// AWSEnabled reports whether any AWS backed component was requested.
func (c *AppConfig) AWSEnabled() bool {
	return c.Acquisition.S3Bucket != "" || c.Queue.Type == "sqs" || c.Tracker.Type == "dynamodb"
}

// Load reads the YAML file at path (missing file means defaults) and applies env overrides.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func Default() *AppConfig {
	return &AppConfig{
		AppEnv: "local",
		Server: ServerConfig{
			Addr:             ":8000",
			CORSOrigins:      []string{"http://localhost:3000"},
			CORSMethods:      []string{"GET", "POST", "PUT", "DELETE"},
			CORSHeaders:      []string{"*"},
			AllowCredentials: true,
		},
		Log:       LogConfig{Mode: "dev", Level: "info"},
		Ingestion: IngestionConfig{DefaultCategory: "astro-ph.SR", DefaultMax: 10},
		Source:    SourceConfig{BaseURL: "http://export.arxiv.org/api/query", Timeout: 30 * time.Second},
		Acquisition: AcquisitionConfig{
			PDFBaseURL: "https://arxiv.org/pdf",
			Timeout:    60 * time.Second,
			S3Prefix:   "pdfs/",
		},
		Parser: ParserConfig{
			GrobidURL:      "http://grobid:8070",
			Timeout:        120 * time.Second,
			MaxAttempts:    8,
			RetryInterval:  2 * time.Second,
			HealthInterval: time.Minute,
		},
		LLM: LLMConfig{
			BaseURL:   "https://generativelanguage.googleapis.com/v1beta/openai",
			APIKeyEnv: "GOOGLE_API_KEY",
			Model:     "gemini-1.5-flash-8b",
			Timeout:   120 * time.Second,
		},
		Embedder: EmbedderConfig{
			Type:      "hashing",
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Model:     "text-embedding-3-small",
			Dimension: 384,
			BatchSize: 32,
			Timeout:   30 * time.Second,
		},
		Chunker: ChunkerConfig{Size: 500, Overlap: 50},
		Index:   IndexConfig{Dir: "./chroma_storage"},
		Store:   StoreConfig{Type: "file", DataDir: "./data", MySQL: MySQLConfig{Host: "localhost", Port: "3306"}},
		Queue: QueueConfig{
			Type:              "local",
			WorkerCount:       2,
			MaxAttempts:       3,
			PollingWaitTime:   20,
			VisibilityTimeout: 120,
			RetryDelay:        30 * time.Second,
		},
		Tracker: TrackerConfig{Type: "memory"},
		Cache:   CacheConfig{TTL: 7 * 24 * time.Hour},
	}
}

func applyEnv(cfg *AppConfig) {
	cfg.AppEnv = envHelper.GetEnvOrDefault("APP_ENV", cfg.AppEnv)

	cfg.Server.Addr = envHelper.GetEnvOrDefault("SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.CORSOrigins = envHelper.GetEnvList("CORS_ORIGINS", cfg.Server.CORSOrigins)
	cfg.Server.CORSMethods = envHelper.GetEnvList("CORS_METHODS", cfg.Server.CORSMethods)
	cfg.Server.CORSHeaders = envHelper.GetEnvList("CORS_HEADERS", cfg.Server.CORSHeaders)
	cfg.Server.AllowCredentials = envHelper.GetEnvBool("ALLOW_CREDENTIALS", cfg.Server.AllowCredentials)

	cfg.Log.Mode = envHelper.GetEnvOrDefault("LOG_MODE", cfg.Log.Mode)
	cfg.Log.Level = envHelper.GetEnvOrDefault("LOG_LEVEL", cfg.Log.Level)

	cfg.Ingestion.DefaultCategory = envHelper.GetEnvOrDefault("DEFAULT_CATEGORY", cfg.Ingestion.DefaultCategory)

	cfg.Source.BaseURL = envHelper.GetEnvOrDefault("ARXIV_API_URL", cfg.Source.BaseURL)
	cfg.Acquisition.PDFBaseURL = envHelper.GetEnvOrDefault("ARXIV_PDF_URL", cfg.Acquisition.PDFBaseURL)
	cfg.Acquisition.S3Bucket = envHelper.GetEnvOrDefault("AWS_BUCKET", cfg.Acquisition.S3Bucket)
	cfg.Acquisition.S3Prefix = envHelper.GetEnvOrDefault("AWS_BUCKET_PREFIX", cfg.Acquisition.S3Prefix)

	cfg.Parser.GrobidURL = envHelper.GetEnvOrDefault("GROBID_URL", cfg.Parser.GrobidURL)
	cfg.Parser.MaxAttempts = envHelper.GetEnvInt("PARSE_MAX_ATTEMPTS", cfg.Parser.MaxAttempts)
	cfg.Parser.RetryInterval = envHelper.GetEnvDuration("PARSE_RETRY_INTERVAL", cfg.Parser.RetryInterval)
	cfg.Parser.MinimumGapBetweenRequests = envHelper.GetEnvDuration("MINIMUM_GAP_BETWEEN_REQUESTS_SECONDS", cfg.Parser.MinimumGapBetweenRequests)
	cfg.Parser.HealthInterval = envHelper.GetEnvDuration("GROBID_HEALTH_INTERVAL", cfg.Parser.HealthInterval)

	cfg.LLM.BaseURL = envHelper.GetEnvOrDefault("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKeyEnv = envHelper.GetEnvOrDefault("LLM_API_KEY_ENV", cfg.LLM.APIKeyEnv)
	cfg.LLM.Model = envHelper.GetEnvOrDefault("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.RecursiveSummary = envHelper.GetEnvBool("RECURSIVE_SUMMARY", cfg.LLM.RecursiveSummary)

	cfg.Embedder.Type = envHelper.GetEnvOrDefault("EMBEDDER_TYPE", cfg.Embedder.Type)
	cfg.Embedder.BaseURL = envHelper.GetEnvOrDefault("EMBEDDER_BASE_URL", cfg.Embedder.BaseURL)
	cfg.Embedder.Model = envHelper.GetEnvOrDefault("EMBEDDER_MODEL", cfg.Embedder.Model)
	cfg.Embedder.Dimension = envHelper.GetEnvInt("EMBEDDER_DIMENSION", cfg.Embedder.Dimension)

	cfg.Chunker.Size = envHelper.GetEnvInt("CHUNK_SIZE", cfg.Chunker.Size)
	cfg.Chunker.Overlap = envHelper.GetEnvInt("CHUNK_OVERLAP", cfg.Chunker.Overlap)

	cfg.Index.Dir = envHelper.GetEnvOrDefault("INDEX_DIR", cfg.Index.Dir)

	cfg.Store.Type = envHelper.GetEnvOrDefault("STORE_TYPE", cfg.Store.Type)
	cfg.Store.DataDir = envHelper.GetEnvOrDefault("DATA_DIR", cfg.Store.DataDir)
	cfg.Store.MySQL.Host = envHelper.GetEnvOrDefault("DB_HOST", cfg.Store.MySQL.Host)
	cfg.Store.MySQL.Port = envHelper.GetEnvOrDefault("DB_PORT", cfg.Store.MySQL.Port)
	cfg.Store.MySQL.User = envHelper.GetEnvOrDefault("DB_USERNAME", cfg.Store.MySQL.User)
	cfg.Store.MySQL.Password = envHelper.GetEnvOrDefault("DB_PASSWORD", cfg.Store.MySQL.Password)
	cfg.Store.MySQL.Database = envHelper.GetEnvOrDefault("DB_DATABASE", cfg.Store.MySQL.Database)

	cfg.Queue.Type = envHelper.GetEnvOrDefault("QUEUE_TYPE", cfg.Queue.Type)
	cfg.Queue.WorkerCount = envHelper.GetEnvInt("WORKER_COUNT", cfg.Queue.WorkerCount)
	cfg.Queue.MaxAttempts = envHelper.GetEnvInt("INDEX_MAX_ATTEMPTS", cfg.Queue.MaxAttempts)
	cfg.Queue.RetryDelay = envHelper.GetEnvDuration("INDEX_RETRY_DELAY", cfg.Queue.RetryDelay)
	if prefix, name := envHelper.GetEnvOrDefault("SQS_PREFIX", ""), envHelper.GetEnvOrDefault("REQUESTS_QUEUE", ""); prefix != "" && name != "" {
		cfg.Queue.SQSURL = prefix + "/" + name
	}

	cfg.Tracker.Type = envHelper.GetEnvOrDefault("TRACKER_TYPE", cfg.Tracker.Type)
	cfg.Tracker.TableName = envHelper.GetEnvOrDefault("DYNAMODB_TABLE", cfg.Tracker.TableName)

	cfg.Cache.RedisAddr = envHelper.GetEnvOrDefault("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = envHelper.GetEnvOrDefault("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = envHelper.GetEnvInt("REDIS_DB", cfg.Cache.RedisDB)

	cfg.AWS.Region = envHelper.GetEnvOrDefault("AWS_REGION", cfg.AWS.Region)
	cfg.AWS.AccessKey = envHelper.GetEnvOrDefault("AWS_ACCESS_KEY_ID", cfg.AWS.AccessKey)
	cfg.AWS.SecretKey = envHelper.GetEnvOrDefault("AWS_SECRET_ACCESS_KEY", cfg.AWS.SecretKey)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Chunker.Size <= 0 {
		cfg.Chunker.Size = 500
	}
	if cfg.Chunker.Overlap < 0 || cfg.Chunker.Overlap >= cfg.Chunker.Size {
		cfg.Chunker.Overlap = cfg.Chunker.Size / 10
	}
	if cfg.Parser.MaxAttempts <= 0 {
		cfg.Parser.MaxAttempts = 8
	}
	if cfg.Queue.WorkerCount <= 0 {
		cfg.Queue.WorkerCount = 1
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 1
	}
	if cfg.Embedder.Dimension <= 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.BatchSize <= 0 {
		cfg.Embedder.BatchSize = 32
	}
}
