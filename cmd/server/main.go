package main

import (
	"context"
	"flag"
	"log/syslog"
	"os"
	"os/signal"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/blogsphare/sphare/inmem"
	"github.com/blogsphare/sphare/persistent"
	"github.com/blogsphare/sphare/transport/rest"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	logrusys "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/tidwall/buntdb"
)

type stores struct {
	profiles   sphare.ProfileStore
	categories sphare.CategoryStore
	close      func()
}

func openStores(ctx context.Context, cfg config) stores {
	switch cfg.store {
	case storePostgres:
		logrus.Infoln("Opening postgres database.")
		db := persistent.PgOpen(ctx, cfg.pgDsn)
		if err := persistent.CreatePgSchema(ctx, db); err != nil {
			logrus.WithError(err).Fatalln("Could not create pg schema.")
		}
		return stores{
			profiles:   &persistent.PgProfileStore{DB: db},
			categories: &persistent.PgCategoryStore{DB: db},
			close:      func() { _ = db.Close() },
		}
	case storeMemory:
		logrus.Warningln("Using in-memory stores, data is lost on shutdown.")
		return stores{
			profiles:   inmem.NewTxProfileStore(),
			categories: inmem.NewCategoryStore(),
			close:      func() {},
		}
	default:
		logrus.Infoln("Opening mongo database.")
		db := persistent.MongoOpen(ctx, cfg.mongoUri, cfg.mongoDatabase)
		profileStore := persistent.NewProfileStore(db)
		if err := profileStore.CreateIndexes(ctx); err != nil {
			logrus.WithError(err).Fatalln("Could not create profile indexes.")
		}
		categoryStore := persistent.NewCategoryStore(db)
		if err := categoryStore.CreateIndexes(ctx); err != nil {
			logrus.WithError(err).Fatalln("Could not create category indexes.")
		}

		var profiles sphare.ProfileStore = profileStore
		if cfg.mongoTransactions {
			profiles = persistent.TxProfileStore{ProfileStore: profileStore}
		}
		return stores{
			profiles:   profiles,
			categories: categoryStore,
			close:      func() { persistent.MongoClose(db) },
		}
	}
}

func openJournal(path string) (*persistent.IntentJournal, func()) {
	bdb, err := buntdb.Open(path)
	if err != nil {
		logrus.WithError(err).Fatalln("Could not open buntdb.")
	}
	journal := &persistent.IntentJournal{Buntdb: bdb}
	if err := journal.CreateIndexes(); err != nil {
		logrus.WithError(err).Fatalln("Could not create journal indexes.")
	}
	return journal, func() { _ = bdb.Close() }
}

// replayJournal repairs pending intents at startup and then every interval
// until ctx is done.
func replayJournal(ctx context.Context, service *sphare.FollowService, interval time.Duration) {
	replay := func() {
		replayed, err := service.Replay(ctx)
		if err != nil {
			logrus.WithError(err).Warningln("Journal replay failed.")
			return
		}
		if replayed > 0 {
			logrus.WithField("replayed", replayed).Infoln("Repaired pending follow intents.")
		}
	}

	replay()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			replay()
		}
	}
}

func newServer(cfg config, stores stores, followService *sphare.FollowService) *fiber.App {
	followController := rest.FollowController{Service: followService}
	profileController := rest.ProfileController{Store: stores.profiles, Timeout: cfg.storeTimeout}
	categoryController := rest.CategoryController{Store: stores.categories}

	server := fiber.New(fiber.Config{
		ErrorHandler:          rest.ErrorHandler,
		DisableStartupMessage: !cfg.debug,
	})
	server.Use(rest.LogHandler())

	api := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorHandler: rest.ErrorHandler,
	})
	api.Use(cors.New(cors.Config{AllowOrigins: cfg.allowOrigins}))

	api.Get("/status", monitor.New())
	followController.InstallTo(api)
	profileController.InstallTo(api)
	categoryController.InstallTo(api)

	server.Mount("/api/", api)
	rest.InstallMetrics(server, prometheus.DefaultGatherer)

	server.Use(rest.NotFoundHandler)
	return server
}

func setupLogger(verbose bool, useSyslog bool) {
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.Stamp,
		FullTimestamp:   true,
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if !useSyslog {
		return
	}

	syslogHook, err := logrusys.NewSyslogHook("", "", syslog.LOG_USER, "sphare")
	if err != nil {
		logrus.WithError(err).Fatalln("Could not create syslog hook.")
		return
	}
	logrus.AddHook(syslogHook)
}

func awaitInterruption() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c
}

func main() {
	flag.Parse()
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warningln("Could not load .env file.")
	}

	cfg, err := configFromEnv(os.Getenv)
	if err != nil {
		logrus.WithError(err).Fatalln("Invalid configuration.")
	}
	setupLogger(cfg.debug, cfg.syslog)
	logrus.WithField("store", cfg.store).Infoln("Starting backend.")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores := openStores(ctx, cfg)
	defer stores.close()

	journal, closeJournal := openJournal(cfg.journalPath)
	defer closeJournal()

	followService := &sphare.FollowService{
		Store:           stores.profiles,
		Journal:         journal,
		AllowSelfFollow: cfg.allowSelfFollow,
		Timeout:         cfg.storeTimeout,
	}
	if _, ok := stores.profiles.(sphare.Transactor); ok {
		logrus.Infoln("Store supports transactions, follow intents are applied atomically.")
	}
	go replayJournal(ctx, followService, cfg.replayInterval)

	server := newServer(cfg, stores, followService)
	go func() {
		if err := server.Listen(cfg.listenAddr); err != nil {
			logrus.WithError(err).Fatalln("Could not listen.")
		}
	}()
	logrus.WithField("addr", cfg.listenAddr).Infoln("Listening... To shut down use ^C")

	awaitInterruption()

	logrus.Infoln("Shutting down...")
	cancel()
	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Warningln("Fiber shutdown failed.")
	}
}
