package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog"
	"github.com/go-chi/traceid"
	"github.com/goware/cachestore/memlru"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	walletgate "github.com/halyardhq/walletgate"
	"github.com/halyardhq/walletgate/account"
	"github.com/halyardhq/walletgate/auth"
	"github.com/halyardhq/walletgate/auth/delegated"
	"github.com/halyardhq/walletgate/auth/passkey"
	"github.com/halyardhq/walletgate/auth/remote"
	"github.com/halyardhq/walletgate/auth/social"
	"github.com/halyardhq/walletgate/auth/walletsig"
	"github.com/halyardhq/walletgate/config"
	"github.com/halyardhq/walletgate/data"
	"github.com/halyardhq/walletgate/o11y"
	"github.com/halyardhq/walletgate/session"
	"github.com/halyardhq/walletgate/wallet"
)

type RPC struct {
	Config     *config.Config
	Log        zerolog.Logger
	Server     *http.Server
	HTTPClient o11y.HTTPClient

	DB         *bun.DB
	Challenges *data.ChallengeStore
	Accounts   *account.Manager
	Resolver   *auth.Resolver
	Social     *social.Service
	Passkeys   *passkey.Service
	Sessions   *session.Issuer

	startTime time.Time
	running   int32
}

func New(cfg *config.Config, transport http.RoundTripper) (*RPC, error) {
	ctx := context.Background()

	log := o11y.NewLogger("walletgate", cfg.Mode == config.LocalMode)

	client := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
	wrappedClient := o11y.WrapClient(client, log)

	options := []func(options *awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(wrappedClient),
	}
	if cfg.Endpoints.AWSEndpoint != "" {
		options = append(options, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: cfg.Endpoints.AWSEndpoint}, nil
			}),
		), awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", "test"),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, err
	}

	var durable data.ChallengeBackend
	if cfg.Database.ChallengesTable != "" {
		durable = data.NewChallengeTable(dynamodb.NewFromConfig(awsCfg), cfg.Database.ChallengesTable, data.ChallengeIndices{})
	}
	challenges := data.NewChallengeStore(durable, cfg.Auth.RequireDurableChallenges, log)

	dsn := cfg.Database.SQLDSN
	if dsn == "" {
		dsn = "file:walletgate.db?cache=shared&mode=rwc"
	}
	db, err := data.OpenSQL(dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql database: %w", err)
	}

	users, err := data.NewUserStore(ctx, db)
	if err != nil {
		return nil, err
	}
	bindings, err := data.NewBindingStore(ctx, db)
	if err != nil {
		return nil, err
	}
	passkeyCreds, err := data.NewPasskeyStore(ctx, db)
	if err != nil {
		return nil, err
	}
	vault, err := data.NewKeyVaultStore(ctx, db)
	if err != nil {
		return nil, err
	}

	mode := auth.PermissiveWithLocalFallback
	if cfg.Auth.Strict {
		mode = auth.Strict
	}
	remoteClient := remote.NewClient(
		cfg.Auth.RemoteVerifier.Endpoint,
		cfg.Auth.RemoteVerifier.Secret,
		cfg.Auth.RemoteVerifier.Timeout.Duration,
		client,
	)
	policy := auth.NewProviderPolicy(cfg.Auth.AllowedProviders, remoteClient.Configured(), mode)
	verifiers := []auth.Verifier{
		walletsig.NewVerifier(),
		delegated.NewVerifier(remoteClient, mode, cfg.Auth.LocalProofSecret, cfg.Auth.Audience, log),
	}
	resolver := auth.NewResolver(challenges, policy, verifiers, cfg.Auth.ChallengeTTL.Duration, log)

	accounts := account.NewManager(users, bindings, log)

	secretIDs := make(map[string]string, len(cfg.Social))
	for provider, providerCfg := range cfg.Social {
		secretIDs[provider] = providerCfg.SecretID
	}
	secrets, err := social.NewCachedSecrets(memlru.Backend(1024),
		social.NewSecretsManagerProvider(secretsmanager.NewFromConfig(awsCfg), secretIDs))
	if err != nil {
		return nil, err
	}
	socialSvc := social.NewService(cfg.Social, challenges, secrets, client, cfg.Auth.OAuthStateTTL.Duration, log)

	var ceremonies passkey.CeremonyVerifier
	switch {
	case cfg.Passkey.Endpoint != "":
		ceremonies = passkey.NewHTTPCeremonyVerifier(cfg.Passkey.Endpoint, cfg.Passkey.Timeout.Duration, client)
	case mode == auth.PermissiveWithLocalFallback && cfg.Auth.LocalProofSecret != "":
		ceremonies = passkey.NewLocalCeremonyVerifier(cfg.Auth.LocalProofSecret, cfg.Auth.Audience)
	}
	passkeySvc := passkey.NewService(
		accounts,
		passkeyCreds,
		challenges,
		ceremonies,
		wallet.NewLocalProvisioner(vault),
		cfg.Passkey.RPID,
		cfg.Passkey.RPName,
		cfg.Auth.ChallengeTTL.Duration,
		log,
	)

	s := &RPC{
		Config:     cfg,
		Log:        log,
		HTTPClient: wrappedClient,
		Server: &http.Server{
			ReadTimeout:       45 * time.Second,
			WriteTimeout:      45 * time.Second,
			IdleTimeout:       45 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
		},
		DB:         db,
		Challenges: challenges,
		Accounts:   accounts,
		Resolver:   resolver,
		Social:     socialSvc,
		Passkeys:   passkeySvc,
		Sessions:   session.NewIssuer(cfg.Session.Secret, cfg.Session.Issuer, cfg.Session.TTL.Duration),
		startTime:  time.Now(),
	}
	return s, nil
}

func (s *RPC) Run(ctx context.Context, l net.Listener) error {
	if s.IsRunning() {
		return fmt.Errorf("rpc: already running")
	}

	s.Log.Info().
		Str("op", "run").
		Str("ver", walletgate.VERSION).
		Msgf("-> rpc: started")

	atomic.StoreInt32(&s.running, 1)
	defer atomic.StoreInt32(&s.running, 0)

	s.Server.Handler = s.Handler()

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	gcCtx, stopGC := context.WithCancel(ctx)
	defer stopGC()

	var g errgroup.Group
	g.Go(func() error {
		defer stopGC()
		err := s.Server.Serve(l)
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := s.Challenges.GC(gcCtx, time.Minute)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func (s *RPC) Stop(timeoutCtx context.Context) {
	if !s.IsRunning() || s.IsStopping() {
		return
	}
	atomic.StoreInt32(&s.running, 2)

	s.Log.Info().Str("op", "stop").Msg("-> rpc: stopping..")
	s.Server.Shutdown(timeoutCtx)
	if s.DB != nil {
		s.DB.Close()
	}
	s.Log.Info().Str("op", "stop").Msg("-> rpc: stopped.")
}

func (s *RPC) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *RPC) IsStopping() bool {
	return atomic.LoadInt32(&s.running) == 2
}

func (s *RPC) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// Propagate TraceId
	r.Use(traceid.Middleware)

	// HTTP request logger
	r.Use(httplog.RequestLogger(s.Log, []string{"/", "/ping", "/status", "/favicon.ico"}))

	// Timeout any request after 28 seconds as Cloudflare has a 30 second limit anyways.
	r.Use(middleware.Timeout(28 * time.Second))

	r.Use(cors.New(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool { return true },
		AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Trace-Id"},
		MaxAge:          600,
	}).Handler)

	r.Use(middleware.PageRoute("/health", http.HandlerFunc(s.healthHandler)))
	r.Use(middleware.PageRoute("/status", http.HandlerFunc(s.statusHandler)))

	r.Handle("/metrics", o11y.MetricsHandler())

	r.Route("/rpc/WalletGate", func(r chi.Router) {
		r.Post("/Challenge", s.challengeHandler)
		r.Post("/Verify", s.verifyHandler)
		r.Post("/SocialStart", s.socialStartHandler)
		r.Post("/SocialExchange", s.socialExchangeHandler)
		r.Post("/PasskeyRegisterOptions", s.passkeyRegisterOptionsHandler)
		r.Post("/PasskeyRegisterVerify", s.passkeyRegisterVerifyHandler)
		r.Post("/PasskeyLoginOptions", s.passkeyLoginOptionsHandler)
		r.Post("/PasskeyLoginVerify", s.passkeyLoginVerifyHandler)
	})

	return r
}

func (s *RPC) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"startTime": s.startTime,
		"uptime":    uint64(time.Now().UTC().Sub(s.startTime).Seconds()),
		"ver":       walletgate.VERSION,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}

func (s *RPC) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
