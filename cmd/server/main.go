package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/metrogrid/cityql/internal/api"
	"github.com/metrogrid/cityql/internal/auth"
	"github.com/metrogrid/cityql/internal/config"
	"github.com/metrogrid/cityql/internal/db"
	"github.com/metrogrid/cityql/internal/maps"
	"github.com/metrogrid/cityql/internal/middleware"
	"github.com/metrogrid/cityql/internal/queryplan"
	"github.com/metrogrid/cityql/internal/repository"
	"github.com/metrogrid/cityql/internal/scopes"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.DB, cfg.MigrationsPath); err != nil {
		logrus.Fatalf("failed to run migrations: %v", err)
	}

	graph := auth.NewGraph(conn.Pool)
	resolver := auth.NewResolver(graph)

	catalogRepo := repository.NewCatalogRepository(conn.Pool)
	scopeRepo := repository.NewScopeRepository(conn)

	composer := queryplan.NewComposer(catalogRepo)
	executor := db.NewPlanExecutor(conn.Pool)

	scopeService := scopes.NewService(scopeRepo, resolver, graph, catalogRepo, cfg.DefaultCARTOAccount)
	mapService := maps.NewService(composer, executor, cfg.LookbackHours)

	router := mux.NewRouter()
	api.NewHandler(scopeService, mapService).Register(router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	handler := corsHandler.Handler(middleware.Logging(middleware.Principal(router)))

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.WithField("addr", cfg.ServerAddr).Info("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("server forced to shutdown: %v", err)
	}

	logrus.Info("server exited")
}
