package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	_ "deviceguard/docs"
	"deviceguard/internal/config"
	"deviceguard/internal/handlers"
	"deviceguard/internal/middleware"
	"deviceguard/internal/notify"
	"deviceguard/internal/pdf"
	"deviceguard/internal/ratelimit"
	"deviceguard/internal/repositories"
	"deviceguard/internal/routes"
	"deviceguard/internal/services"
	"deviceguard/pkg/domain"
)

// App is the assembled HTTP service.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
	router *gin.Engine
}

// Run loads configuration, serves until SIGINT/SIGTERM and shuts down gracefully.
func Run() error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("[app] listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("storage", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("[app] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// New wires storage, channels, services and routes from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	bindings, invitations, err := a.storage(ctx)
	if err != nil {
		return nil, err
	}

	templates, err := notify.NewTemplates()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("templates: %w", err)
	}
	dispatcher := notify.NewFallbackDispatcher(templates, logger, a.channels(),
		notify.WithDefaultChannel(domain.Channel(cfg.Channels.Default)),
		notify.WithTimeout(cfg.Protocol.DispatchTimeout),
	)

	deps := services.Deps{
		Bindings:    bindings,
		Invitations: invitations,
		Dispatcher:  dispatcher,
		Alerter:     a.alerter(),
		Logger:      logger,
	}
	set := services.SettingsFromConfig(cfg)
	reg := services.NewRegistrationService(deps, set)
	verify := services.NewVerificationService(deps, set)
	access := services.NewAccessService(deps, set)

	guard := ratelimit.NewLimiter(ratelimit.Policy{
		Window:       cfg.Protocol.RegisterWindow,
		MaxPerWindow: cfg.Protocol.MaxRegisters,
	})
	go pruneLoop(ctx, guard, cfg.Protocol.RegisterWindow)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger.Named("http")))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	routes.SetupRoutes(
		router,
		handlers.NewDeviceHandler(reg, verify, access),
		handlers.NewModerationHandler(access, pdf.NewReportGenerator(cfg.Reports.FontPath), cfg.AppName, logger.Named("moderation")),
		guard,
		routes.Auth{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer},
	)
	a.router = router
	return a, nil
}

func (a *App) Router() *gin.Engine { return a.router }

func (a *App) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("[app] db close failed", zap.Error(err))
	}
	a.db = nil
}

func (a *App) storage(ctx context.Context) (repositories.DeviceBindingRepository, repositories.InvitationRepository, error) {
	if a.cfg.Storage.Driver == "memory" {
		a.logger.Warn("[app] using in-memory registry; data is lost on restart")
		return repositories.NewMemoryDeviceBindingRepository(), repositories.NewMemoryInvitationRepository(), nil
	}

	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	if err := repositories.EnsureSchema(pingCtx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	a.db = db
	return repositories.NewDeviceBindingRepository(db), repositories.NewInvitationRepository(db), nil
}

func (a *App) channels() []notify.Channel {
	ch := a.cfg.Channels
	return []notify.Channel{
		notify.NewWhatsAppChannel(ch.WhatsApp.AccessToken, ch.WhatsApp.PhoneNumberID, ch.WhatsApp.APIVersion, ch.WhatsApp.DryRun, a.logger),
		notify.NewSMSChannel(ch.Mobizon.APIKey, ch.Mobizon.SenderID, ch.Mobizon.DryRun, a.logger),
		notify.NewEmailChannel(ch.Email.SMTPHost, ch.Email.SMTPPort, ch.Email.SMTPUser, ch.Email.SMTPPassword, ch.Email.FromEmail, ch.Email.DryRun, a.logger),
	}
}

func (a *App) alerter() notify.Alerter {
	tg := a.cfg.Telegram
	if tg.BotToken == "" || tg.ChatID == 0 {
		a.logger.Info("[app] telegram alerts disabled")
		return notify.NopAlerter{}
	}
	alerter, err := notify.NewTelegramAlerter(tg.BotToken, tg.ChatID, tg.Endpoint, a.logger)
	if err != nil {
		a.logger.Warn("[app] telegram alerts unavailable", zap.Error(err))
		return notify.NopAlerter{}
	}
	return alerter
}

func pruneLoop(ctx context.Context, l *ratelimit.Limiter, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Prune()
		}
	}
}
