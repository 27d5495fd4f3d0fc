package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"snipr.local/internal/app/shortlink"
	slcache "snipr.local/internal/app/shortlink/cache"
	shortlinkhttpapi "snipr.local/internal/app/shortlink/httpapi"
	"snipr.local/internal/app/shortlink/stats"
	"snipr.local/internal/platform/auth"
	platformcache "snipr.local/internal/platform/cache"
	"snipr.local/internal/platform/config"
	"snipr.local/internal/platform/httpmiddleware"
	"snipr.local/internal/platform/httpserver"
	"snipr.local/internal/platform/logger"
	"snipr.local/internal/platform/metrics"
	"snipr.local/internal/platform/ratelimit"
	"snipr.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger.Init(cfg.LogFormat, cfg.LogLevel, cfg.ServiceName)
	metrics.Init()

	// 存储
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// Redis，没配置时只用本地缓存，限流关闭
	var redisClient *redis.Client
	if cfg.RedisConfigured() {
		if cfg.RedisURL != "" {
			redisClient, err = platformcache.NewRedisClientFromURL(cfg.RedisURL)
		} else {
			redisClient, err = platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		}
		if err != nil {
			log.Fatal(err)
		}
		defer redisClient.Close()
	} else {
		slog.Warn("redis not configured, distributed cache and rate limit disabled")
	}

	// 限流器
	var limiter httpmiddleware.Allower
	if cfg.RateLimitEnabled && redisClient != nil {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled", "RATELIMIT_ENABLED", cfg.RateLimitEnabled, "redis", redisClient != nil)
	}

	resolverOpts := []shortlink.ResolverOption{}
	creatorOpts := []shortlink.CreatorOption{shortlink.RequireDottedHost(cfg.RequireDottedHost)}

	// 短链缓存：L1 ristretto + L2 Redis
	if cfg.CacheEnabled {
		var local *slcache.LocalCache
		if cfg.LocalCacheEnabled {
			local, err = slcache.NewLocalCache(cfg.LocalCacheItems, 1<<24, cfg.LocalCacheTTL) // 16MB
			if err != nil {
				log.Fatal(err)
			}
		}
		if local != nil || redisClient != nil {
			slCache := slcache.NewShortlinkCache(redisClient, local)
			defer slCache.Close()
			resolverOpts = append(resolverOpts, shortlink.WithCache(slCache, cfg.CacheTTL))
			creatorOpts = append(creatorOpts, shortlink.WithPriming(slCache, cfg.CacheTTL))
		}
	}

	// 布隆过滤器，启动时用已有的 token 预热，之后定期重建
	var bloomFilter *slcache.BloomFilter
	if cfg.BloomEnabled {
		bf := slcache.NewBloomFilter(cfg.BloomExpected, cfg.BloomFPRate)
		warmCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		n, err := bf.Warm(warmCtx, store)
		cancel()
		if err != nil {
			// 预热不完整时不能用来拒绝请求
			slog.Error("bloom warm failed, filter disabled", "err", err)
		} else {
			slog.Info("bloom filter warmed", "tokens", n)
			resolverOpts = append(resolverOpts, shortlink.WithTokenFilter(bf))
			creatorOpts = append(creatorOpts, shortlink.WithFilter(bf))
			bloomFilter = bf
		}
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if bloomFilter != nil {
		go bloomFilter.RunRefresh(stopCtx, store, cfg.BloomRefresh)
	}

	// 点击统计（根据配置选择 Channel 或 Kafka）
	// consumer 用独立的 ctx，HTTP 停完以后才停，避免丢掉最后一批点击
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	var collector stats.Collector
	consumerDone := make(chan struct{})
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 收集点击统计", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kc := stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, store, cfg.ClickBatchSize, cfg.ClickFlushInterval)
		go func() {
			defer close(consumerDone)
			defer kc.Close()
			kc.Run(consumerCtx)
		}()
	} else {
		slog.Info("使用 Channel 收集点击统计")
		cc := stats.NewChannelCollector(cfg.ClickBufferSize)
		collector = cc
		consumer := stats.NewConsumer(store, cc, cfg.ClickBatchSize, cfg.ClickFlushInterval)
		go func() {
			defer close(consumerDone)
			consumer.Run(consumerCtx)
		}()
	}
	resolverOpts = append(resolverOpts, shortlink.WithClickSink(collector))

	// JWT，没配密钥时用进程内随机密钥（此时也没有管理员可以登录）
	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
	}
	ts, err := auth.NewHS256Service(secret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}
	admin := auth.NewAdminAuthenticator(cfg.AdminUsername, cfg.AdminPasswordHash)
	if !admin.Enabled() {
		slog.Warn("admin login disabled, ADMIN_PASSWORD_HASH is empty")
	}

	if cfg.TracingEnabled {
		shutdown, err := trace.InitTrace(trace.Options{
			Endpoint:    cfg.OtlpGrpcEndpoint,
			ServiceName: cfg.OtlpServiceName,
			SampleRatio: cfg.OtlpSampleRatio,
		})
		if err != nil {
			slog.Error("trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	deps := shortlinkhttpapi.Deps{
		Resolver:  shortlink.NewResolver(store, resolverOpts...),
		Creator:   shortlink.NewCreator(store, cfg.BaseURL, creatorOpts...),
		Inspector: shortlink.NewInspector(store),
		Tokens:    ts,
		Admin:     admin,
		Limiter:   limiter,
	}

	// 对外业务
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	if err := httpmiddleware.ConfigureClientIP(r, cfg.TrustedProxies); err != nil {
		log.Fatal(err)
	}
	r.Use(httpmiddleware.Recovery(), httpmiddleware.ReqID(), httpmiddleware.AccessLog(), httpmiddleware.Metrics(), httpmiddleware.TraceName())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	shortlinkhttpapi.RegisterAPIRoutes(r.Group("/api"), deps)
	shortlinkhttpapi.RegisterPublicRoutes(r, deps)

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("store not ready"))
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				// 缓存挂了还能从库里读，只记日志
				slog.Warn("readyz: redis ping failed", "err", err)
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})
	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	adminSrv := httpserver.NewAdmin(cfg, adminMux)

	err = httpserver.Run(stopCtx, cfg.ShutdownTimeout, publicSrv, adminSrv)
	stop()

	// HTTP 停了以后再关 collector，consumer 把剩下的点击写完
	collector.Close()
	stopConsumer()
	select {
	case <-consumerDone:
	case <-time.After(cfg.ShutdownTimeout):
		slog.Warn("click consumer did not finish in time")
	}

	if err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal(err)
	}
	return hex.EncodeToString(b)
}
