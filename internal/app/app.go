package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"memo/internal/alarm"
	"memo/internal/config"
	"memo/internal/handlers"
	"memo/internal/logger"
	"memo/internal/metrics"
	"memo/internal/migrations"
	"memo/internal/notify/telegram"
	"memo/internal/reminder"
	taskmem "memo/internal/repository/task/inmemory"
	taskpg "memo/internal/repository/task/postgres"
	usermem "memo/internal/repository/user/inmemory"
	userpg "memo/internal/repository/user/postgres"
	"memo/internal/service"
	"memo/internal/storage"
	"memo/internal/worker"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config    *config.Config
	clk       clock.Clock
	server    *http.Server
	metrics   *metrics.Metrics
	tasks     service.TaskRepository
	users     service.UserRepository
	alarms    *alarm.Manager
	presenter *reminder.Presenter
	worker    *worker.ReminderWorker
	bot       *tg.BotAPI
	telegram  *telegram.Notifier
	shutdowns []func() // функции для graceful shutdown
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		clk:       clock.New(),
		shutdowns: make([]func(), 0),
	}
}

func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(a.config.Logging.Development, a.config.Logging.Level); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("App: Завершение работы логгирования")
		logger.Sync()
	})

	if a.config.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	if err := a.initRepositories(ctx); err != nil {
		return err
	}

	blobs, err := storage.New(a.config.Storage)
	if err != nil {
		return fmt.Errorf("инициализация хранилища вложений: %w", err)
	}

	if a.config.Telegram.Enabled {
		bot, err := telegram.NewBotAPI(a.config.Telegram.Token)
		if err != nil {
			return err
		}
		a.bot = bot
		a.telegram = telegram.New(bot, a.users)
	}

	rc := a.config.Reminder
	a.alarms = alarm.NewManager(a.clk, alarm.Capabilities{
		ExactGranted: rc.ExactAlarms,
		IdleTolerant: rc.AllowWhileIdle,
	}, alarm.WithPendingObserver(a.metrics.AlarmsPending))
	a.shutdowns = append(a.shutdowns, a.alarms.Close)

	scheduler := reminder.NewScheduler(a.alarms, a.clk, rc.Lookahead, a.config.Location(), a.metrics)

	var notifiers []reminder.Notifier
	if a.telegram != nil {
		notifiers = append(notifiers, a.telegram)
	}
	a.presenter = reminder.NewPresenter(a.tasks, scheduler, a.clk, rc.Snooze, a.metrics, notifiers...)

	sync := reminder.NewSync(reminder.NewQuery(a.tasks, rc.Lookahead, rc.BatchSize), scheduler, a.clk, a.metrics)
	a.worker = worker.NewReminderWorker(sync, a.clk, &rc.PollInterval)

	taskOpts := []service.Option{service.WithBlobStorage(blobs, a.config.Storage.MaxUploadBytes)}
	if rc.Enabled {
		taskOpts = append(taskOpts, service.WithReminderHooks(reminder.NewHooks(scheduler, a.presenter, a.worker.Trigger)))
	}
	taskService := service.NewTaskService(a.tasks, taskOpts...)
	authService := service.NewAuthService(a.users, a.config.Auth, a.clk)

	router := handlers.NewRouter(handlers.RouterConfig{
		Tasks:              handlers.NewTaskHandler(taskService, a.clk),
		Auth:               handlers.NewAuthHandler(authService),
		Notifications:      handlers.NewNotificationHandler(a.presenter, a.worker),
		Tokens:             authService,
		Metrics:            a.metrics,
		CORSAllowedOrigins: a.config.Security.CORSAllowedOrigins,
		RateLimitRPM:       a.config.Security.RateLimitRPM,
		RequestTimeout:     a.config.Server.RequestTimeout,
	})

	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}

	logger.Info("App: Приложение инициализировано",
		zap.String("repository", a.config.Repository.Type),
		zap.String("storage", a.config.Storage.Type),
		zap.Bool("reminders", rc.Enabled),
		zap.Bool("telegram", a.telegram != nil),
		zap.String("alarm_mode", a.alarms.Mode().String()))
	return nil
}

func (a *App) initRepositories(ctx context.Context) error {
	switch a.config.Repository.Type {
	case "postgres":
		if a.config.Database.MigrateOnStart {
			if err := migrations.Up(a.config.Database.URL); err != nil {
				return fmt.Errorf("миграции: %w", err)
			}
		}

		pg, err := taskpg.New(ctx, a.config.Database)
		if err != nil {
			return fmt.Errorf("подключение к postgres: %w", err)
		}
		a.shutdowns = append(a.shutdowns, func() {
			logger.Info("App: Закрытие пула соединений")
			pg.Close()
		})
		a.tasks = pg
		a.users = userpg.New(pg.Pool())

	default:
		a.tasks = taskmem.NewTaskStorage()
		a.users = usermem.NewUserStorage()
	}
	return nil
}

// Run запускает сервер и фоновые процессы и блокируется до отмены ctx
// или ошибки одного из них.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	actions := make(chan reminder.ActionRequest)

	g.Go(func() error {
		return a.presenter.Run(gctx, a.alarms.Events(), actions)
	})

	if a.config.Reminder.Enabled {
		g.Go(func() error {
			a.worker.Start(gctx)
			return nil
		})
	}

	if a.telegram != nil {
		g.Go(func() error {
			updates := a.bot.GetUpdatesChan(tg.NewUpdate(0))
			a.telegram.Listen(gctx, updates, actions)
			a.bot.StopReceivingUpdates()
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("App: HTTP сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http сервер: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("App: Остановка HTTP сервера")

		timeout := a.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("остановка http сервера: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close выполняет функции завершения в обратном порядке.
func (a *App) Close() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
	a.shutdowns = nil
}
