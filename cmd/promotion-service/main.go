// cmd/promotion-service/main.go
package main

import (
	"context"
	"net/http"

	"bogo/internal/pkg/bootstrap"
	"bogo/internal/pkg/httpclient"
	"bogo/internal/pkg/mq"
	pkgredis "bogo/internal/pkg/redis"
	"bogo/internal/service/promotion/application"
	"bogo/internal/service/promotion/domain"
	"bogo/internal/service/promotion/infrastructure"
	"bogo/internal/service/promotion/infrastructure/rule"
	"bogo/internal/service/promotion/interfaces"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "promotion-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	cfg := bootstrap.Init(serviceName)
	ctx := context.Background()

	// 1. 基础设施
	db, err := infrastructure.OpenMySQL(cfg.Infra.Mysql.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	ruleRepo := infrastructure.NewGormRuleRepository(db)
	if err := ruleRepo.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate promotion_rules")
	}

	redisClient, err := pkgredis.NewClient(ctx, cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	ledger, err := infrastructure.NewRedisUsageLedger(ctx, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize usage ledger")
	}

	planWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.PlanTopic)

	conditions, err := rule.NewCELConditionEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize condition engine")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := infrastructure.NewPrometheusMetrics(registry)

	tracer := otel.Tracer(serviceName)
	var (
		consumer  *interfaces.RedemptionConsumer
		dltWriter *kafka.Writer
	)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) error {
			resolver, err := newCollectionResolver(appCtx, redisClient, tracer)
			if err != nil {
				return err
			}

			// 2. 应用层
			svc := application.NewPromotionService(application.Dependencies{
				Rules:      ruleRepo,
				Resolver:   resolver,
				Ledger:     ledger,
				Conditions: conditions,
				Publisher:  infrastructure.NewKafkaPlanPublisher(planWriter),
				Metrics:    metrics,
				Tracer:     tracer,
			})

			// 3. 接口层
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			interfaces.NewPromotionHandler(svc).RegisterRoutes(appCtx.Mux)

			// 4. 订单确认事件驱动核销
			if kafkaCfg := appCtx.Config.Infra.Kafka; kafkaCfg.OrderTopic != "" {
				reader := mq.NewKafkaReader(kafkaCfg.Brokers, kafkaCfg.OrderTopic, kafkaCfg.GroupID)
				opts := []interfaces.ConsumerOption{interfaces.WithRetry(kafkaCfg.RedeemAttempts, 0)}
				if kafkaCfg.OrderDLTTopic != "" {
					dltWriter = mq.NewKafkaWriter(kafkaCfg.Brokers, kafkaCfg.OrderDLTTopic)
					opts = append(opts, interfaces.WithDeadLetter(dltWriter))
				}
				consumer = interfaces.NewRedemptionConsumer(reader, svc, opts...)
				consumer.Start(context.Background())
			}
			return nil
		},
		OnShutdown: func(ctx context.Context) {
			if consumer != nil {
				consumer.Stop()
			}
			if dltWriter != nil {
				closeWriter(dltWriter)
			}
			closeWriter(planWriter)
			if err := redisClient.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing redis client")
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	})
}

// newCollectionResolver 组装 collection 解析链：HTTP 目录服务 + Redis 缓存。
// 启用 Nacos 并配置了目录服务名时，通过服务发现获取地址。
func newCollectionResolver(appCtx bootstrap.AppCtx, redisClient *pkgredis.Client, tracer trace.Tracer) (domain.CollectionResolver, error) {
	catalog := appCtx.Config.Catalog
	baseURL := catalog.BaseURL
	if appCtx.Nacos != nil && catalog.ServiceName != "" {
		url, err := appCtx.Nacos.Resolve(catalog.ServiceName)
		if err != nil {
			return nil, err
		}
		baseURL = url
	}
	log.Info().Str("catalog", baseURL).Msg("Resolving collections through catalog service")

	httpResolver := infrastructure.NewHTTPCollectionResolver(httpclient.NewClient(tracer), baseURL, catalog.Timeout)
	return infrastructure.NewCachedCollectionResolver(httpResolver, redisClient.GetClient(), catalog.CacheTTL), nil
}

func closeWriter(w *kafka.Writer) {
	if err := w.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing kafka writer")
	}
}
