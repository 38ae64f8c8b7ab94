// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"bogo/internal/pkg/logger"
	"bogo/internal/pkg/nacos"
	"bogo/internal/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
	Nacos  *nacos.Client // 未启用 Nacos 时为 nil
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	RegisterHandlers func(appCtx AppCtx) error // 允许每个服务注册自己独特的 HTTP 路由
	OnShutdown       func(ctx context.Context) // 释放服务自己创建的资源，在 HTTP 服务关闭之后调用
}

// Init 加载 .env 与配置文件并初始化日志，需在 StartService 之前调用。
func Init(serviceName string) *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg, err := LoadConfig(getEnv("CONFIG_FILE", "config/"+serviceName+".yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setCurrentConfig(cfg)

	logger.Setup(serviceName, cfg.Log.Level, cfg.Log.Pretty)
	return cfg
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()

	// 1. Tracer
	var tp *sdktrace.TracerProvider
	if cfg.Infra.Jaeger.Enabled {
		var err error
		tp, err = tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize tracer provider")
		}
	}

	// 2. Nacos（可选）
	var namingClient *nacos.Client
	ip := cfg.Infra.Nacos.IP
	if cfg.Infra.Nacos.Enabled {
		var err error
		namingClient, err = nacos.New(nacos.Options{
			ServerAddrs: cfg.Infra.Nacos.ServerAddrs,
			Namespace:   cfg.Infra.Nacos.Namespace,
			Group:       cfg.Infra.Nacos.Group,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		if ip == "" {
			ip, err = getOutboundIP()
			if err != nil {
				log.Fatal().Err(err).Msg("failed to get outbound IP address")
			}
		}
	}

	// 3. 注册路由
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg, Nacos: namingClient}); err != nil {
			log.Fatal().Err(err).Msg("failed to register handlers")
		}
	}

	// 4. 启动 HTTP Server
	server := &http.Server{Addr: ":" + strconv.Itoa(cfg.Server.Port), Handler: mux}
	go func() {
		log.Info().Msgf("%s listening on :%d", info.ServiceName, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 5. 注册到 Nacos
	self := nacos.Instance{Service: info.ServiceName, IP: ip, Port: cfg.Server.Port}
	if namingClient != nil {
		if err := namingClient.Register(self); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 6. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先摘除流量，再关闭服务，最后刷新 trace
	if namingClient != nil {
		if err := namingClient.Deregister(self); err != nil {
			log.Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	} else {
		log.Info().Msg("HTTP server shut down.")
	}

	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}

	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Error shutting down tracer provider")
		}
	}

	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// getOutboundIP 通过一次 UDP "连接"获取本机的出口 IP，不会真正发送数据。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
