package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"villagewalks/backend/internal/clock"
	"villagewalks/backend/internal/config"
	"villagewalks/backend/internal/domain/availability"
	"villagewalks/backend/internal/domain/notifications"
	"villagewalks/backend/internal/domain/reservation"
	"villagewalks/backend/internal/domain/slots"
	"villagewalks/backend/internal/domain/subscription"
	"villagewalks/backend/internal/domain/user"
	"villagewalks/backend/internal/domain/volunteer"
	"villagewalks/backend/internal/firebase"
	apihttp "villagewalks/backend/internal/http"
	"villagewalks/backend/internal/logging"
	"villagewalks/backend/internal/middleware"
	"villagewalks/backend/internal/realtime"
	"villagewalks/backend/internal/store"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// stores is the storage backend chosen by STORE.
type stores struct {
	volunteers    volunteer.Store
	windows       availability.Store
	reservations  reservation.Store
	profiles      notifications.Profiles
	notifications notifications.Store
	verifier      middleware.TokenVerifier
	sender        notifications.Sender
	close         func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer st.close()

	clk := clock.Real{}
	loc := cfg.Engine.Location()

	// Services
	volunteerSvc := volunteer.NewService(st.volunteers, clk, volunteer.Options{
		GracePeriod:     cfg.Engine.GracePeriod,
		VillageCooldown: cfg.Engine.VillageCooldown,
	}, logger.Named("volunteer"))
	availabilitySvc := availability.NewService(st.windows, clk, logger.Named("availability"))
	reservationSvc := reservation.NewService(st.reservations, volunteerSvc, availabilitySvc, clk, loc, cfg.Engine.MaxRangeDays, logger.Named("reservation"))
	volunteerSvc.SetActiveReservations(reservationSvc)

	notificationsSvc := notifications.NewService(st.notifications, st.profiles, st.sender, clk, logger.Named("notifications"))
	reservationSvc.SetNotifier(notificationsSvc)

	slotsSvc := slots.NewService(volunteerSvc, availabilitySvc, reservationSvc, clk, loc, cfg.Engine.MaxRangeDays, logger.Named("slots"))

	// Realtime
	hub := realtime.NewHub(logger.Named("hub"))
	go hub.Run(ctx)

	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}

		relay := realtime.NewRelay(rdb, hub, realtime.DefaultChannel, logger.Named("relay"))
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("relay stopped", zap.Error(err))
			}
		}()
		reservationSvc.SetBroadcaster(realtime.NewRedisBroadcaster(rdb, realtime.DefaultChannel))
		logger.Info("realtime fan-out via redis", zap.String("addr", cfg.RedisAddr))
	} else {
		reservationSvc.SetBroadcaster(hub)
	}

	// Stripe (optional - only if configured)
	var reconciler *subscription.Reconciler
	if cfg.StripeEnabled() {
		reconciler = subscription.NewReconciler(
			st.volunteers,
			st.profiles,
			subscription.NewStripeProvider(cfg.StripeSecretKey),
			clk,
			subscription.Config{
				WebhookSecret: cfg.StripeWebhookSecret,
				PriceMonthly:  cfg.StripePriceMonthly,
				RecheckDelay:  cfg.Engine.RecheckDelay,
			},
			logger.Named("subscription"),
		)
		defer reconciler.Close()
		logger.Info("stripe enabled")
	} else {
		logger.Info("STRIPE_SECRET_KEY not set, billing disabled")
	}

	router := apihttp.NewRouter(apihttp.RouterDeps{
		Cfg:              cfg,
		Log:              logger.Named("http"),
		Verifier:         st.verifier,
		VolunteerSvc:     volunteerSvc,
		AvailabilitySvc:  availabilitySvc,
		ReservationSvc:   reservationSvc,
		SlotsSvc:         slotsSvc,
		NotificationsSvc: notificationsSvc,
		Reconciler:       reconciler,
		Realtime:         realtime.NewHandler(hub, cfg.AllowedOrigins, logger.Named("ws")),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("API listening", zap.String("port", cfg.Port), zap.String("project", cfg.ProjectID), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down")
	_ = srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	if cfg.Store == "memory" {
		mem := store.NewMemory()
		st := &stores{
			volunteers:    mem.Volunteers,
			windows:       mem.Windows,
			reservations:  mem.Reservations,
			profiles:      mem.Profiles,
			notifications: mem.Notifications,
			close:         func() {},
		}
		if cfg.ProjectID == "" {
			logger.Warn("no Firebase project: accepting development tokens of the form uid[:role]")
			st.verifier = devVerifier{}
			return st, nil
		}
		app, err := firebase.NewApp(ctx, cfg)
		if err != nil {
			return nil, err
		}
		authClient, err := firebase.NewAuthClient(ctx, app)
		if err != nil {
			return nil, err
		}
		st.verifier = authClient
		return st, nil
	}

	app, err := firebase.NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	authClient, err := firebase.NewAuthClient(ctx, app)
	if err != nil {
		return nil, err
	}
	fs, err := firebase.NewFirestore(ctx, app)
	if err != nil {
		return nil, err
	}

	st := &stores{
		volunteers:    volunteer.NewRepo(fs.Client),
		windows:       availability.NewRepo(fs.Client),
		reservations:  reservation.NewRepo(fs.Client),
		profiles:      user.NewRepo(fs.Client),
		notifications: notifications.NewRepo(fs.Client),
		verifier:      authClient,
		close:         fs.Close,
	}

	// push is optional
	if msg, err := firebase.NewMessaging(ctx, app); err != nil {
		logger.Warn("messaging unavailable, push notifications disabled", zap.Error(err))
	} else {
		st.sender = msg
	}
	return st, nil
}
