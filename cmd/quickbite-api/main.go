// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"quickbite/internal/config"
	httptransport "quickbite/internal/http"
	"quickbite/internal/infra"
	"quickbite/internal/maps"
	"quickbite/internal/modules/dispatch"
	"quickbite/internal/modules/driver"
	"quickbite/internal/modules/matching"
	"quickbite/internal/modules/notification"
	"quickbite/internal/modules/order"
	"quickbite/internal/modules/pricing"
	"quickbite/internal/push"
	"quickbite/internal/realtime"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config load")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal("QB_FIREBASE_PROJECT_ID is required")
	}
	fbApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		log.WithError(err).Fatal("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, fbApp)
	if err != nil {
		log.WithError(err).Fatal("firebase auth init")
	}
	msgClient, err := infra.NewMessaging(ctx, fbApp)
	if err != nil {
		log.WithError(err).Fatal("firebase messaging init")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.WithError(err).Fatal("postgres init")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	matchingStore := matching.NewStore(redisClient)

	driverStore := driver.NewPgStore(dbPool)
	driverSvc := driver.NewService(driverStore, matchingStore)

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))

	orderStore := order.NewPgStore(dbPool)
	orderSvc := order.NewService(orderStore, pricingSvc, driverSvc, log)

	matcherSvc := matching.NewService(matchingStore, driverStore, cfg.Dispatch)

	publisher := realtime.NewRedisPublisher(redisClient)
	defer func() { _ = publisher.Close() }()

	fcmGateway := push.NewFCMGateway(msgClient, log)
	fanout := notification.NewFanout(notification.NewPgStore(dbPool), fcmGateway, publisher, driverStore, log)

	var geocoder dispatch.Geocoder
	if cfg.Maps.APIKey != "" {
		gc, err := maps.NewGeocodeService(cfg.Maps.APIKey)
		if err != nil {
			log.WithError(err).Fatal("maps init")
		}
		geocoder = gc
	}

	coordinator := dispatch.NewCoordinator(dispatch.CoordinatorDeps{
		Orders:   orderSvc,
		Matcher:  matcherSvc,
		Fanout:   fanout,
		Drivers:  driverSvc,
		Recorder: matchingStore,
		Geocoder: geocoder,
		Config:   cfg.Dispatch,
		Log:      log,
	})

	gateway := realtime.NewGateway(publisher, log)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Dispatch:      coordinator,
		Orders:        orderSvc,
		Drivers:       driverSvc,
		Notifications: fanout,
		Gateway:       gateway,
		Verifier:      verifier,
		Log:           log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
}
