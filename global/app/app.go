package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"PPDirect/global/config"
	"PPDirect/logger"
	"PPDirect/middleware"
	"PPDirect/middleware/security"
	"PPDirect/module/chat"
	"PPDirect/module/chat/message"
	chatmodel "PPDirect/module/chat/model"
	"PPDirect/module/user"
	userservice "PPDirect/module/user/service"
	relay "PPDirect/service/chat"
	"PPDirect/service/events"
	"PPDirect/service/kafka"
	"PPDirect/service/mgo"
	"PPDirect/service/natsx"
	"PPDirect/service/storage"
	rds "PPDirect/service/storage/redis"
	"PPDirect/tools/ids"
	"PPDirect/tools/safe"
	tokens "PPDirect/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	chatNamespace   = "chat."
	mongoReadyAfter = 30 * time.Second
)

// Params 启动参数
type Params struct {
	EnvFiles []string
}

// Module composes the whole service.
func Module(p Params) fx.Option {
	return fx.Module("ppdirect",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideTokens,
			provideStores,
			provideRedis,
			provideLastSeen,
			provideUserService,
			provideDirectory,
			provideMessageService,
			provideRelay,
			provideWSServer,
			provideSinks,
			provideEngine,
		),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.EnvFiles...)
}

func provideLogger(cfg *config.Config) *zap.Logger {
	ids.SetNodeID(cfg.NodeID)
	return logger.Init(cfg.Log.Level, cfg.Log.JSON)
}

func provideBus() *events.Bus {
	return events.NewBus()
}

func provideTokens(cfg *config.Config) tokens.Options {
	opts := tokens.DefaultOptions([]byte(cfg.JWT.Secret))
	opts.TTL = cfg.JWT.TTL
	opts.Issuer = cfg.JWT.Issuer
	return opts
}

// Stores 持久化层，按 STORE_DRIVER 选择 mongo 或内存实现
type Stores struct {
	Chat  message.Store
	Users userservice.Repository
}

func provideStores(lc fx.Lifecycle, cfg *config.Config, _ *zap.Logger) Stores {
	if cfg.Store.Driver == config.StoreMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		return Stores{Chat: message.NewMemStore(), Users: userservice.NewMemRepository()}
	}

	mongoCfg := cfg.Mongo
	mgr := mgo.NewManager(&mongoCfg)
	chatStore := message.NewMongoStore(mgr)
	users := userservice.NewMongoRepository(mgr)

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			mgr.Start(runCtx)
			waitCtx, done := context.WithTimeout(ctx, mongoReadyAfter)
			defer done()
			if err := mgr.WaitReady(waitCtx); err != nil {
				return err
			}
			if err := chatStore.EnsureIndexes(ctx); err != nil {
				return err
			}
			return users.EnsureIndexes(ctx)
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-mgr.Stopped():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return Stores{Chat: chatStore, Users: users}
}

// provideRedis 未配置地址时返回 nil，last-seen 与资料缓存随之关闭
func provideRedis(lc fx.Lifecycle, cfg *config.Config, _ *zap.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled() {
		logger.Info("redis disabled")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := rds.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(rdb.Close))
	return rdb, nil
}

func provideLastSeen(rdb *redis.Client) *storage.LastSeenStore {
	if rdb == nil {
		return nil
	}
	return storage.NewLastSeenStore(rdb)
}

func provideUserService(s Stores, opts tokens.Options, seen *storage.LastSeenStore) *userservice.Service {
	if seen == nil {
		return userservice.NewService(s.Users, opts, nil)
	}
	return userservice.NewService(s.Users, opts, seen)
}

func provideDirectory(cfg *config.Config, users *userservice.Service, rdb *redis.Client) message.UserDirectory {
	if rdb == nil {
		return users
	}
	return storage.NewProfileCache(rdb, users, cfg.Relay.ProfileCacheTTL)
}

func provideMessageService(s Stores, dir message.UserDirectory, bus *events.Bus) *message.Service {
	return message.NewService(s.Chat, dir, bus)
}

func provideRelay(seen *storage.LastSeenStore) *relay.Relay {
	if seen == nil {
		return relay.NewRelay(relay.NewRegistry(), nil)
	}
	return relay.NewRelay(relay.NewRegistry(), seen)
}

func provideWSServer(cfg *config.Config, r *relay.Relay, opts tokens.Options) *relay.Server {
	return relay.NewServer(r, opts, relay.ServerConfig{
		SendQueue:   cfg.Relay.SendQueue,
		CheckOrigin: middleware.CheckOrigin(cfg.HTTP.AllowedOrigins),
	})
}

// provideSinks 事件外发：配置了哪个就接哪个
func provideSinks(lc fx.Lifecycle, cfg *config.Config, _ *zap.Logger) ([]events.Sink, error) {
	var sinks []events.Sink
	if cfg.NATS.URL != "" {
		mode := natsx.Core
		if cfg.NATS.JetStream {
			mode = natsx.JetStream
		}
		nm, err := natsx.NewNatsManager(natsx.NatsxConfig{
			Servers:  []string{cfg.NATS.URL},
			Name:     "ppdirect-" + strconv.FormatInt(cfg.NodeID, 10),
			User:     cfg.NATS.User,
			Password: cfg.NATS.Password,
		}, cfg.NATS.SubjectPrefix, mode, chatmodel.EventMessageSent, chatmodel.EventMessageDeleted)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(nm.Close))
		sinks = append(sinks, nm)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kc := kafka.DefaultConfig()
		kc.Brokers = cfg.Kafka.Brokers
		kc.Topic = cfg.Kafka.Topic
		kc.EnsureTopic = cfg.Kafka.EnsureTopic
		p, err := kafka.NewProducer(kc)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(p.Close))
		sinks = append(sinks, p)
	}
	return sinks, nil
}

func provideEngine(cfg *config.Config, opts tokens.Options, users *userservice.Service, msgs *message.Service, ws *relay.Server) *gin.Engine {
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	e := gin.New()

	mids := middleware.NewManager()
	mids.Add(
		middleware.RequestIDMiddleware(),
		middleware.Recovery(),
		middleware.AccessLog(),
		middleware.Origin(cfg.HTTP.AllowedOrigins),
		middleware.ErrorHandler(),
	)
	mids.Install(e)

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"online":      len(ws.Relay().Online()),
			"connections": ws.Relay().Connections(),
		})
	})
	e.GET("/ws", ws.HandleWS)

	api := e.Group("/api")
	api.Use(middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst).Middleware())
	r := middleware.NewRouter(api, security.Middleware(opts))
	user.NewHandler(users).Register(r)
	chat.NewHandler(msgs).Register(r)
	return e
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, e *gin.Engine, bus *events.Bus, r *relay.Relay, sinks []events.Sink) {
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	runCtx, cancel := context.WithCancel(context.Background())
	fwd := events.NewForwarder(bus, chatNamespace, cfg.Relay.EventBuffer, sinks...)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			sub, unsub := bus.Subscribe(chatNamespace, cfg.Relay.EventBuffer)
			safe.Go("relay events", func() {
				defer unsub()
				r.Run(runCtx, sub)
			})
			safe.Go("event forwarder", func() { fwd.Run(runCtx) })
			safe.Go("http server", func() {
				logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.Int("sinks", len(sinks)))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server failed", zap.Error(err))
				}
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, done := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
			defer done()
			err := srv.Shutdown(shutdownCtx)
			cancel()
			logger.Info("stopped", zap.Int64("droppedEvents", bus.Dropped()))
			logger.Sync()
			return err
		},
	})
}
