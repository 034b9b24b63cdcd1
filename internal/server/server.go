// Package server wires the HTTP surface from spec.md §6 onto the service
// layer: ada mux + middleware chain, bearer-credential resolution into a
// cached Principal, and one route group per resource family.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"
	mtelemetry "github.com/rakunlabs/ada/middleware/telemetry"

	apicrypto "github.com/computor-platform/computor-api/internal/crypto"

	"github.com/computor-platform/computor-api/internal/apitoken"
	"github.com/computor-platform/computor-api/internal/authz"
	"github.com/computor-platform/computor-api/internal/blob"
	"github.com/computor-platform/computor-api/internal/cluster"
	"github.com/computor-platform/computor-api/internal/config"
	"github.com/computor-platform/computor-api/internal/deployment"
	"github.com/computor-platform/computor-api/internal/message"
	"github.com/computor-platform/computor-api/internal/principal"
	"github.com/computor-platform/computor-api/internal/profile"
	"github.com/computor-platform/computor-api/internal/session"
	"github.com/computor-platform/computor-api/internal/store/postgres"
	"github.com/computor-platform/computor-api/internal/submission"
	"github.com/computor-platform/computor-api/internal/taskexec"
	"github.com/computor-platform/computor-api/internal/taskexec/fake"
	tasktemporal "github.com/computor-platform/computor-api/internal/taskexec/temporal"
	"github.com/computor-platform/computor-api/internal/teammgmt"
	"github.com/computor-platform/computor-api/internal/testscheduler"
	"github.com/computor-platform/computor-api/internal/viewcache"
	"github.com/computor-platform/computor-api/internal/ws"
)

// Server aggregates every wired component and exposes the HTTP surface.
type Server struct {
	config config.Config

	mux *ada.Server

	store   *postgres.Postgres
	cluster *cluster.Cluster

	redisClient *redis.Client
	blobStore   *blob.Store
	cache       *viewcache.Cache

	sessionStore     *session.Store
	principalBuilder *principal.Builder
	principalCache   *principal.Cache
	authzRegistry    *authz.Registry

	executor         taskexec.Executor
	submissionSvc    *submission.Service
	gradingQueue     *submission.GradingQueue
	testScheduler    *testscheduler.Scheduler
	deploymentEngine *deployment.Engine
	releaseScheduler *deployment.ReleaseScheduler
	messageSvc       *message.Service
	profileSvc       *profile.Service
	teammgmtSvc      *teammgmt.Service
	apitokenSvc      *apitoken.Service
	wsHub            *ws.Hub
}

// New constructs every component from cfg and registers routes. The caller
// is responsible for eventually calling Close.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	var encKey []byte
	if cfg.Auth.EncryptionKey != "" {
		var err error
		encKey, err = apicrypto.DeriveKey(cfg.Auth.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("derive encryption key: %w", err)
		}
	}

	store, err := postgres.New(ctx, &cfg.Store.Postgres, encKey)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	blobStore, err := blob.New(cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	cl, err := cluster.New(cfg.Server.Alan)
	if err != nil {
		return nil, fmt.Errorf("init cluster: %w", err)
	}

	cache := viewcache.New(redisClient)

	sessionStore := session.New(redisClient, store, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	principalBuilder := principal.NewBuilder(store)
	principalCache := principal.NewCache(principalBuilder, cfg.Auth.PrincipalTTL)
	authzRegistry := authz.NewDefaultRegistry()

	executor, err := newExecutor(ctx, cfg.Temporal)
	if err != nil {
		return nil, fmt.Errorf("init task executor: %w", err)
	}

	submissionSvc := submission.New(store, blobStore, cache, cfg.Auth.MaxUploadBytes)
	gradingQueue := submission.NewGradingQueue(store, cache)
	testScheduler := testscheduler.New(store, executor)
	deploymentEngine := deployment.New(store)
	releaseScheduler := deployment.NewReleaseScheduler(store, executor, cl, 0)
	messageSvc := message.New(store, cache)
	profileSvc := profile.New(store, cache)
	teammgmtSvc := teammgmt.New(store, cache)
	apitokenSvc := apitoken.New(store)

	s := &Server{
		config:           *cfg,
		store:            store,
		cluster:          cl,
		redisClient:      redisClient,
		blobStore:        blobStore,
		cache:            cache,
		sessionStore:     sessionStore,
		principalBuilder: principalBuilder,
		principalCache:   principalCache,
		authzRegistry:    authzRegistry,
		executor:         executor,
		submissionSvc:    submissionSvc,
		gradingQueue:     gradingQueue,
		testScheduler:    testScheduler,
		deploymentEngine: deploymentEngine,
		releaseScheduler: releaseScheduler,
		messageSvc:       messageSvc,
		profileSvc:       profileSvc,
		teammgmtSvc:      teammgmtSvc,
		apitokenSvc:      apitokenSvc,
	}

	s.wsHub = ws.NewHub(ws.Config{
		MaxTotalConnections:   cfg.WebSocket.MaxTotalConnections,
		MaxConnectionsPerUser: cfg.WebSocket.MaxConnectionsPerUser,
		PresenceTTL:           cfg.WebSocket.PresenceTTL,
		SendTimeout:           cfg.WebSocket.SendTimeout,
	}, redisClient, cl, s.authorizeChannel)

	if err := s.releaseScheduler.Start(ctx); err != nil {
		return nil, fmt.Errorf("start release scheduler: %w", err)
	}

	if cl != nil {
		go func() {
			if err := cl.Start(ctx, nil); err != nil {
				slog.Error("cluster stopped", "error", err)
			}
		}()
	}

	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
		mtelemetry.Middleware(),
	)
	s.mux = mux

	s.registerRoutes(cfg.Server)

	return s, nil
}

// newExecutor picks the Temporal-backed executor when a host is configured,
// falling back to the in-memory fake for local development, mirroring the
// teacher's provider-factory hot-reload pattern of injecting the adapter at
// construction time rather than branching deep in business logic.
func newExecutor(ctx context.Context, cfg config.Temporal) (taskexec.Executor, error) {
	if cfg.Host == "" {
		return fake.New(), nil
	}

	c, err := client.Dial(client.Options{
		HostPort:  net.JoinHostPort(cfg.Host, cfg.Port),
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal: %w", err)
	}
	return tasktemporal.New(c, cfg.TaskQueue), nil
}

func (s *Server) registerRoutes(cfg config.Server) {
	baseGroup := s.mux.Group(cfg.BasePath)

	if cfg.ForwardAuth != nil {
		baseGroup.Use(mforwardauth.Middleware(mforwardauth.WithConfig(*cfg.ForwardAuth)))
	}

	authGroup := baseGroup.Group("/auth")
	authGroup.POST("/login", s.LoginAPI)
	authGroup.POST("/refresh", s.RefreshAPI)
	authGroup.POST("/logout", s.LogoutAPI)

	api := baseGroup.Group("")
	api.Use(s.authMiddleware())

	api.POST("/submissions/{group_id}/upload", s.UploadSubmissionAPI)
	api.POST("/tests", s.CreateTestAPI)
	api.GET("/tests/status/{result_id}", s.TestStatusAPI)
	api.POST("/course-contents/{id}/assign-example", s.AssignExampleAPI)
	api.DELETE("/course-contents/{id}/example", s.UnassignExampleAPI)
	api.POST("/submission-groups/{id}/join", s.JoinSubmissionGroupAPI)

	api.GET("/messages", s.ListMessagesAPI)
	api.POST("/messages", s.CreateMessageAPI)
	api.PUT("/messages/{id}", s.UpdateMessageAPI)
	api.DELETE("/messages/{id}", s.DeleteMessageAPI)
	api.POST("/messages/{id}/read", s.MarkMessageReadAPI)
	api.DELETE("/messages/{id}/read", s.MarkMessageUnreadAPI)

	api.GET("/auth/sessions", s.GetSessionsAPI)

	api.GET("/grading/ungraded", s.ListUngradedAPI)
	api.POST("/grading/{artifact_id}", s.CreateGradeAPI)

	api.GET("/profile", s.GetProfileAPI)
	api.PUT("/profile", s.UpsertProfileAPI)
	api.DELETE("/profile", s.DeleteProfileAPI)

	api.GET("/api-tokens", s.ListApiTokensAPI)
	api.POST("/api-tokens", s.CreateApiTokenAPI)
	api.DELETE("/api-tokens/{id}", s.RevokeApiTokenAPI)

	api.POST("/coder/workspaces/provision", s.ProvisionWorkspaceAPI)

	baseGroup.GET("/ws", s.ServeWebSocket)

	adminGroup := baseGroup.Group("/admin")
	adminGroup.Use(s.authMiddleware(), s.requireAdminMiddleware())
	adminGroup.POST("/rotate-key", s.RotateKeyAPI)
}

// Start blocks serving HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.mux.StartWithContext(ctx, net.JoinHostPort(s.config.Server.Host, s.config.Server.Port))
}

// Close releases every long-lived connection the server opened.
func (s *Server) Close() error {
	if s.cluster != nil {
		s.cluster.Stop()
	}
	if err := s.redisClient.Close(); err != nil {
		return err
	}
	s.store.Close()
	return nil
}
