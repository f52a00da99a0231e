// Package app builds the process-wide collaborators once and hands them to
// the HTTP server and the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/bananya-ml/arxiv-feed/config"
	"github.com/bananya-ml/arxiv-feed/internal/arxiv"
	"github.com/bananya-ml/arxiv-feed/internal/chunker"
	"github.com/bananya-ml/arxiv-feed/internal/dispatcher"
	"github.com/bananya-ml/arxiv-feed/internal/embedding"
	"github.com/bananya-ml/arxiv-feed/internal/extract"
	"github.com/bananya-ml/arxiv-feed/internal/grobid"
	"github.com/bananya-ml/arxiv-feed/internal/index"
	"github.com/bananya-ml/arxiv-feed/internal/llm"
	"github.com/bananya-ml/arxiv-feed/internal/logging"
	"github.com/bananya-ml/arxiv-feed/internal/pdf"
	"github.com/bananya-ml/arxiv-feed/internal/pipeline"
	"github.com/bananya-ml/arxiv-feed/internal/rag"
	"github.com/bananya-ml/arxiv-feed/internal/server"
	"github.com/bananya-ml/arxiv-feed/internal/store"
	"github.com/bananya-ml/arxiv-feed/internal/summarize"
)

type App struct {
	Config *config.AppConfig
	Log    *logging.Logger

	Store     store.ArtifactStore
	Index     *index.Index
	Embedder  embedding.Embedder
	Generator llm.Generator
	Grobid    *grobid.Client
	Queue     dispatcher.Queue
	Tracker   dispatcher.Tracker
	Indexer   *dispatcher.Indexer
	Pipeline  *pipeline.Pipeline
	RAG       *rag.Engine

	redis *redis.Client
}

// New wires every component from cfg. Close releases what New opened.
func New(ctx context.Context, cfg *config.AppConfig, log *logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Nop()
	}
	a := &App{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var sess *session.Session
	if cfg.AWSEnabled() {
		var err error
		sess, err = newAWSSession(cfg.AWS)
		if err != nil {
			return nil, err
		}
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openIndex(ctx); err != nil {
		return nil, err
	}
	if err := a.buildEmbedder(); err != nil {
		return nil, err
	}
	a.buildGenerator()
	if err := a.buildQueue(sess); err != nil {
		return nil, err
	}

	a.Grobid = grobid.New(grobid.Config{
		URL:                       cfg.Parser.GrobidURL,
		Timeout:                   cfg.Parser.Timeout,
		MinimumGapBetweenRequests: cfg.Parser.MinimumGapBetweenRequests,
	}, log.With("component", "grobid"))

	var fetcher pdf.Fetcher = pdf.NewDownloader(cfg.Acquisition.PDFBaseURL, cfg.Acquisition.Timeout, log.With("component", "pdf"))
	if cfg.Acquisition.S3Bucket != "" {
		fetcher = pdf.NewS3Cache(s3.New(sess), cfg.Acquisition.S3Bucket, cfg.Acquisition.S3Prefix, fetcher, log.With("component", "s3"))
	}

	a.Indexer = dispatcher.NewIndexer(
		a.Store,
		chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap),
		a.Embedder,
		a.Index,
		a.Tracker,
		log.With("component", "indexer"),
	)

	a.Pipeline = pipeline.New(pipeline.Deps{
		Source:     arxiv.New(cfg.Source.BaseURL, cfg.Source.Timeout, log.With("component", "arxiv")),
		Fetcher:    fetcher,
		Parser:     a.Grobid,
		Extractor:  extract.New(a.Generator, log.With("component", "extract")),
		Summarizer: summarize.New(a.Generator, summarize.Config{Recursive: cfg.LLM.RecursiveSummary}, log.With("component", "summarize")),
		Store:      a.Store,
		Queue:      a.Queue,
		Tracker:    a.Tracker,
	}, pipeline.Config{
		DefaultCategory:    cfg.Ingestion.DefaultCategory,
		ParseMaxAttempts:   cfg.Parser.MaxAttempts,
		ParseRetryInterval: cfg.Parser.RetryInterval,
	}, log.With("component", "pipeline"))

	a.RAG = rag.New(a.Embedder, a.Index, a.Generator, log.With("component", "rag"))

	ok = true
	return a, nil
}

func newAWSSession(cfg config.AWSConfig) (*session.Session, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return sess, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Store.Type {
	case "", "file":
		fs, err := store.NewFileStore(a.Config.Store.DataDir)
		if err != nil {
			return fmt.Errorf("opening file store: %w", err)
		}
		a.Store = fs
	case "mysql":
		ms, err := store.OpenMySQL(ctx, a.Config.Store.MySQL.DSN())
		if err != nil {
			return err
		}
		a.Store = ms
		if err := ms.Migrate(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown store type %q", a.Config.Store.Type)
	}
	a.Log.Info("artifact store ready", "type", a.Config.Store.Type)
	return nil
}

func (a *App) openIndex(ctx context.Context) error {
	if a.Config.Index.Dir == "" {
		a.Index = index.NewMemory()
		return nil
	}
	idx, err := index.Open(ctx, a.Config.Index.Dir)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	a.Index = idx
	a.Log.Info("vector index ready", "dir", a.Config.Index.Dir, "entries", idx.Count())
	return nil
}

func (a *App) buildEmbedder() error {
	cfg := a.Config.Embedder
	switch cfg.Type {
	case "", "hashing":
		a.Embedder = embedding.NewHashing(cfg.Dimension)
	case "openai":
		e, err := embedding.NewOpenAI(embedding.OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			BatchSize: cfg.BatchSize,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		a.Embedder = e
	default:
		return fmt.Errorf("unknown embedder type %q", cfg.Type)
	}

	if a.Config.Cache.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.Config.Cache.RedisAddr,
			Password: a.Config.Cache.RedisPassword,
			DB:       a.Config.Cache.RedisDB,
		})
		a.Embedder = embedding.NewCached(a.Embedder, embedding.NewRedisCache(a.redis, a.Config.Cache.TTL), a.Log.With("component", "embedding_cache"))
	}
	a.Log.Info("embedder ready", "name", a.Embedder.Name(), "dimension", a.Embedder.Dimension())
	return nil
}

// buildGenerator falls back to llm.Unavailable so the service still starts
// without credentials; extraction and summaries then degrade to defaults.
func (a *App) buildGenerator() {
	client, err := llm.NewClient(llm.Config{
		BaseURL:   a.Config.LLM.BaseURL,
		APIKeyEnv: a.Config.LLM.APIKeyEnv,
		Model:     a.Config.LLM.Model,
		Timeout:   a.Config.LLM.Timeout,
	})
	if err != nil {
		a.Log.Warn("text generation disabled", "error", err)
		a.Generator = llm.Unavailable{Reason: err}
		return
	}
	a.Generator = client
}

func (a *App) buildQueue(sess *session.Session) error {
	qc := a.Config.Queue
	switch qc.Type {
	case "", "local":
		a.Queue = dispatcher.NewLocalQueue(qc.WorkerCount, qc.MaxAttempts, a.Log.With("component", "queue"))
	case "sqs":
		if qc.SQSURL == "" {
			return errors.New("sqs queue requires SQS_PREFIX and REQUESTS_QUEUE")
		}
		a.Queue = dispatcher.NewSQSQueue(sqs.New(sess), dispatcher.SQSConfig{
			URL:               qc.SQSURL,
			Workers:           qc.WorkerCount,
			MaxAttempts:       qc.MaxAttempts,
			WaitTimeSeconds:   qc.PollingWaitTime,
			VisibilityTimeout: qc.VisibilityTimeout,
			RetryDelay:        qc.RetryDelay,
		}, a.Log.With("component", "queue"))
	default:
		return fmt.Errorf("unknown queue type %q", qc.Type)
	}

	switch a.Config.Tracker.Type {
	case "", "memory":
		a.Tracker = dispatcher.NewMemoryTracker()
	case "dynamodb":
		if a.Config.Tracker.TableName == "" {
			return errors.New("dynamodb tracker requires DYNAMODB_TABLE")
		}
		a.Tracker = dispatcher.NewDynamoTracker(dynamodb.New(sess), a.Config.Tracker.TableName)
	default:
		return fmt.Errorf("unknown tracker type %q", a.Config.Tracker.Type)
	}
	return nil
}

func (a *App) Router() *gin.Engine {
	cfg := a.Config
	return server.NewRouter(server.Options{
		Version:         config.Version,
		DefaultCategory: cfg.Ingestion.DefaultCategory,
		DefaultMax:      cfg.Ingestion.DefaultMax,
		CORS: server.CORSConfig{
			Origins:          cfg.Server.CORSOrigins,
			Methods:          cfg.Server.CORSMethods,
			Headers:          cfg.Server.CORSHeaders,
			AllowCredentials: cfg.Server.AllowCredentials,
		},
		Ingester: a.Pipeline,
		Answerer: a.RAG,
		Catalog:  a.Store,
		Pending:  a.Tracker,
		Parser:   a.Grobid,
		Index:    a.Index,
		Log:      a.Log.With("component", "http"),
	})
}

// RunWorkers runs the index queue and the GROBID health monitor until ctx is
// done or the queue is closed and drained.
func (a *App) RunWorkers(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	monitorCtx, stopMonitor := context.WithCancel(gctx)
	g.Go(func() error {
		a.Grobid.MonitorHealth(monitorCtx, a.Config.Parser.HealthInterval)
		return nil
	})
	g.Go(func() error {
		defer stopMonitor()
		return a.Queue.Run(gctx, a.Indexer.Handle)
	})
	return g.Wait()
}

func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		a.Queue.Close()
	}
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
