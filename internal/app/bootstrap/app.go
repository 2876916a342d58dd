package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dajobrague/au-call-system-sub004/internal/api/router"
	"github.com/dajobrague/au-call-system-sub004/internal/archive"
	"github.com/dajobrague/au-call-system-sub004/internal/assignment"
	"github.com/dajobrague/au-call-system-sub004/internal/callflow"
	"github.com/dajobrague/au-call-system-sub004/internal/calllog"
	appconfig "github.com/dajobrague/au-call-system-sub004/internal/config"
	"github.com/dajobrague/au-call-system-sub004/internal/http/handlers"
	"github.com/dajobrague/au-call-system-sub004/internal/jobqueue"
	"github.com/dajobrague/au-call-system-sub004/internal/jobstatus"
	"github.com/dajobrague/au-call-system-sub004/internal/notifications"
	"github.com/dajobrague/au-call-system-sub004/internal/notify"
	obsmetrics "github.com/dajobrague/au-call-system-sub004/internal/observability/metrics"
	"github.com/dajobrague/au-call-system-sub004/internal/outbound"
	"github.com/dajobrague/au-call-system-sub004/internal/pgretry"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/internal/speech"
	"github.com/dajobrague/au-call-system-sub004/internal/telephony"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

// App is the fully wired coverage pipeline. The API binary serves App.Handler;
// the worker binary runs App.Queue with App.JobHandler.
type App struct {
	Config  *appconfig.Config
	Logger  *logging.Logger
	Handler http.Handler

	Queue     *jobqueue.Queue
	Scheduler *notifications.Scheduler
	Engine    *outbound.Engine
	Arbiter   *assignment.Arbiter
	Flow      *callflow.Flow
	JobStatus *jobstatus.Store

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// Build assembles the application from configuration. It connects to
// PostgreSQL and Redis and constructs every component the coverage pipeline
// needs; optional pieces (archive, job status, email alerts) degrade to
// logged no-ops when unconfigured.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("bootstrap: DATABASE_URL required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)

	// Reads ride a short retry; Exec passes through untouched so the status
	// compare-and-set stays single-shot.
	db := pgretry.Wrap(pool)
	rosterRepo := roster.NewRepository(db)
	shiftRepo := shifts.NewRepository(db)
	offerStore := notifications.NewOfferStore(db)
	callLogs := calllog.NewStore(sqlDB)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	assignMetrics := obsmetrics.NewAssignmentMetrics(registry)
	callMetrics := obsmetrics.NewCallMetrics(registry)
	smsMetrics := obsmetrics.NewSMSMetrics(registry)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)

	var queueStore jobqueue.Store
	if cfg.UseMemoryQueue || redisClient == nil {
		logger.Info("job queue using in-memory store")
		queueStore = jobqueue.NewMemoryStore()
	} else {
		queueStore = jobqueue.NewRedisStore(redisClient)
	}
	var queueOpts []jobqueue.Option
	if cfg.DeadLetterQueueURL != "" {
		sqsClient := sqs.NewFromConfig(awsCfg)
		queueOpts = append(queueOpts, jobqueue.WithDeadLetterer(
			jobqueue.NewSQSDeadLetter(sqsClient, cfg.DeadLetterQueueURL, logger)))
	}
	queue := jobqueue.New(queueStore, logger, queueOpts...)

	var sessions callflow.SessionStore
	if redisClient != nil {
		sessions = callflow.NewRedisSessionStore(redisClient)
	} else {
		logger.Warn("redis unavailable; call sessions held in memory")
		sessions = callflow.NewMemorySessionStore()
	}

	dialer, err := telephony.NewClient(telephony.Config{
		APIKey:        cfg.TelnyxAPIKey,
		ConnectionID:  cfg.TelnyxConnectionID,
		WebhookSecret: cfg.VoiceWebhookSecret,
		Logger:        logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: telephony client: %w", err)
	}

	smsSender := BuildSMSSender(cfg, logger)

	var emailSender notify.EmailSender
	if cfg.SESFromEmail != "" {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); ses != nil {
			emailSender = ses
		}
	}
	if emailSender == nil {
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sg != nil {
			emailSender = sg
		}
	}
	alerts := notify.NewService(emailSender, rosterRepo, logger)

	arbiter := assignment.New(assignment.Config{
		Occurrences: shiftRepo,
		Roster:      rosterRepo,
		Queue:       queue,
		Sender:      smsSender,
		Finalizer:   alerts,
		Metrics:     assignMetrics,
		Logger:      logger,
	})

	scheduler := notifications.NewScheduler(notifications.Config{
		Occurrences: shiftRepo,
		Roster:      rosterRepo,
		Queue:       queue,
		Sender:      smsSender,
		Arbiter:     arbiter,
		Offers:      offerStore,
		Metrics:     smsMetrics,
		Logger:      logger,
		Wave2Delay:  cfg.Wave2Delay,
		Wave3Delay:  cfg.Wave3Delay,
	})

	engine := outbound.NewEngine(outbound.Config{
		Occurrences: shiftRepo,
		Roster:      rosterRepo,
		Queue:       queue,
		Dialer:      dialer,
		Arbiter:     arbiter,
		Logs:        callLogs,
		Metrics:     callMetrics,
		Logger:      logger,
	})

	arbiter.SetWaveStarter(scheduler)
	arbiter.SetCallScheduler(engine)

	var reasons *speech.ReasonClassifier
	if cfg.BedrockModelID != "" {
		reasons = speech.NewReasonClassifier(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID, logger)
	}

	var recorder *archive.Recorder
	if cfg.TranscriptBucket != "" {
		store := archive.NewStore(s3.NewFromConfig(awsCfg), cfg.TranscriptBucket, logger)
		recorder = archive.NewRecorder(store, logger)
	}

	flowCfg := callflow.Config{
		Roster:      rosterRepo,
		Occurrences: shiftRepo,
		Arbiter:     arbiter,
		Sessions:    sessions,
		Dialer:      dialer,
		Logs:        callLogs,
		Metrics:     callMetrics,
		Logger:      logger,
	}
	if reasons != nil {
		flowCfg.Reasons = reasons
	}
	if recorder != nil {
		flowCfg.Archiver = recorder
	}
	flow := callflow.New(flowCfg)

	var jobStatus *jobstatus.Store
	if cfg.JobStatusTable != "" {
		jobStatus = jobstatus.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.JobStatusTable, logger)
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		VoiceWebhook:       handlers.NewVoiceWebhookHandler(dialer, callMetrics, logger, flow, engine),
		SMSWebhook:         handlers.NewSMSWebhookHandler(rosterRepo, offerStore, arbiter, smsMetrics, logger),
		Admin:              handlers.NewAdminHandler(shiftRepo, queue, callLogs, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Handler:   handler,
		Queue:     queue,
		Scheduler: scheduler,
		Engine:    engine,
		Arbiter:   arbiter,
		Flow:      flow,
		JobStatus: jobStatus,
		pool:      pool,
		sqlDB:     sqlDB,
	}, nil
}

// JobHandler dispatches queue jobs by key shape: ":wave:" jobs go to the SMS
// scheduler, ":call:" jobs to the outbound engine. Each delivery is mirrored
// into the job status table when one is configured.
func (a *App) JobHandler() jobqueue.Handler {
	return func(ctx context.Context, job jobqueue.Job) error {
		if job.Attempts == 0 {
			if err := a.JobStatus.MarkPending(ctx, job.Key); err != nil {
				a.Logger.Warn("job status pending failed", "error", err, "job_key", job.Key)
			}
		}

		var err error
		switch {
		case strings.Contains(job.Key, ":wave:"):
			err = a.Scheduler.HandleWave(ctx, job)
		case strings.Contains(job.Key, ":call:"):
			err = a.Engine.HandleCall(ctx, job)
		default:
			a.Logger.Warn("unrecognised job key dropped", "job_key", job.Key)
			return nil
		}

		if err != nil {
			if statusErr := a.JobStatus.MarkFailed(ctx, job.Key, err.Error()); statusErr != nil {
				a.Logger.Warn("job status failed-mark failed", "error", statusErr, "job_key", job.Key)
			}
			return err
		}
		if statusErr := a.JobStatus.MarkCompleted(ctx, job.Key); statusErr != nil {
			a.Logger.Warn("job status completed-mark failed", "error", statusErr, "job_key", job.Key)
		}
		return nil
	}
}

// Close releases the database connections.
func (a *App) Close() {
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
