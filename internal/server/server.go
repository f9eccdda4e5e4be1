package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/quizbox/internal/api"
	"github.com/victornm/quizbox/internal/domain"
	"github.com/victornm/quizbox/internal/event"
	"github.com/victornm/quizbox/internal/leaderboard"
	"github.com/victornm/quizbox/internal/question"
	"github.com/victornm/quizbox/internal/score"
	"github.com/victornm/quizbox/internal/session"
	"github.com/victornm/quizbox/internal/telemetry"
	"github.com/victornm/quizbox/internal/timer"
	"github.com/victornm/quizbox/internal/turn"
)

const (
	QuestionSourceFile     = "file"
	QuestionSourcePostgres = "postgres"
)

type Postgres struct {
	Addr string
	User string
	Pass string
	Name string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	// Postgres connections are optional. Results are only persisted when
	// Postgres.Results.Addr is set.
	Postgres struct {
		Questions Postgres
		Results   Postgres
	}

	Questions struct {
		// Source is "file" or "postgres".
		Source string
		File   string
	}

	Game struct {
		Categories       []string
		JoinPolicy       string
		MaxNameLength    int
		BasePoints       int
		SpeedBonusFactor float64
		BaseDuration     time.Duration
		MinDuration      time.Duration
		MaxDuration      time.Duration
		PointsThreshold  int
		MaxCycles        int
	}
}

type Server struct {
	c Config

	// ctx lives until Shutdown and bounds background work such as the
	// question load.
	ctx    context.Context
	cancel context.CancelFunc

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			questions *pgxpool.Pool
			results   *pgxpool.Pool
		}
	}

	bank   *question.Bank
	source question.Source

	service struct {
		session     *session.Service
		results     *score.Store
		leaderboard *leaderboard.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		s.cancel()
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		s.cancel()
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	connect := func(c Postgres) (*pgxpool.Pool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
		if err != nil {
			return nil, err
		}

		db, err := pgxpool.NewWithConfig(ctx, cc)
		if err != nil {
			return nil, err
		}

		if err := db.Ping(ctx); err != nil {
			return nil, err
		}

		return db, nil
	}

	if s.c.Questions.Source == QuestionSourcePostgres {
		s.infra.postgres.questions, err = connect(s.c.Postgres.Questions)
		if err != nil {
			return fmt.Errorf("questions: %w", err)
		}
	}

	if s.c.Postgres.Results.Addr != "" {
		s.infra.postgres.results, err = connect(s.c.Postgres.Results)
		if err != nil {
			return fmt.Errorf("results: %w", err)
		}
	}

	return nil
}

func (s *Server) initService() error {
	switch s.c.Questions.Source {
	case QuestionSourcePostgres:
		s.source = question.NewRepository(question.RepositoryConfig{DB: s.infra.postgres.questions})
	case QuestionSourceFile, "":
		s.source = question.File{Path: s.c.Questions.File}
	default:
		return fmt.Errorf("unknown question source %q", s.c.Questions.Source)
	}
	s.bank = question.NewBank()

	g := s.c.Game
	scorer, err := score.NewEngine(score.EngineConfig{
		BasePoints:       g.BasePoints,
		SpeedBonusFactor: g.SpeedBonusFactor,
	})
	if err != nil {
		return err
	}

	categories := make([]domain.Category, 0, len(g.Categories))
	for _, c := range g.Categories {
		categories = append(categories, domain.Category(c))
	}

	m, err := session.NewMachine(session.MachineConfig{
		Categories:    categories,
		JoinPolicy:    session.JoinPolicy(g.JoinPolicy),
		MaxNameLength: g.MaxNameLength,
		Rules: turn.Rules{
			PointsThreshold: g.PointsThreshold,
			MaxCycles:       g.MaxCycles,
		},
		Questions: s.bank,
		Durations: timer.NewDurations(timer.Config{
			BaseDuration: g.BaseDuration,
			MinDuration:  g.MinDuration,
			MaxDuration:  g.MaxDuration,
		}),
		Scorer: scorer,
	})
	if err != nil {
		return err
	}

	s.service.session, err = session.NewService(session.Config{
		Machine:  m,
		EventBus: s.eb,
	})
	if err != nil {
		return err
	}

	if s.infra.postgres.results != nil {
		s.service.results = score.NewStore(score.StoreConfig{
			DB:       s.infra.postgres.results,
			EventBus: s.eb,
		})
	}

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(), telemetry.GRPCStreamInterceptor())

	api.New(api.Config{
		GRPC:         s.grpc,
		HTTP:         e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Leaderboard:  s.service.leaderboard,
		Results:      s.service.results,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// loadQuestions fills the bank in the background, retrying until it succeeds
// or the server shuts down. Rounds opened before it finishes fail with a
// loading error and are resumed by the host.
func (s *Server) loadQuestions(ctx context.Context) {
	n, err := s.bank.LoadRetry(ctx, s.source, question.Retry{})
	if err != nil {
		slog.ErrorContext(ctx, "server: load questions failed", "error", err)
		return
	}

	slog.InfoContext(ctx, "server: questions loaded", "count", n)
	if missing := s.bank.Missing(s.service.session.Categories()); len(missing) > 0 {
		slog.WarnContext(ctx, "server: categories without questions", "categories", missing)
	}
}

func (s *Server) Start() {
	ctx := s.ctx

	go s.loadQuestions(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.cancel()

	// Closing the sessions ends the watch streams GracefulStop would wait on.
	s.service.session.Stop()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.postgres.questions != nil {
		s.infra.postgres.questions.Close()
	}
	if s.infra.postgres.results != nil {
		s.infra.postgres.results.Close()
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
