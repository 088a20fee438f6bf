package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dhronas-fees/internal/clients"
	"dhronas-fees/internal/config"
	"dhronas-fees/internal/repository"
	"dhronas-fees/internal/service"
	"dhronas-fees/internal/transport/auth"
	"dhronas-fees/internal/transport/rest"
	"dhronas-fees/internal/transport/websocket"
	"dhronas-fees/pkg/database/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system env or defaults")
	}

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Load()

	gstRate, err := decimal.NewFromString(cfg.Fees.GSTRate)
	if err != nil {
		log.Fatalf("invalid GST_RATE %q: %v", cfg.Fees.GSTRate, err)
	}

	db := mustInitPostgres(cfg.Postgres)
	defer postgres.Close(db)

	studentRepo := repository.NewStudentRepository(db)
	installmentRepo := repository.NewInstallmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)

	// Redis carries the allocation locks and export status. Without it a
	// single instance falls back to in-process equivalents.
	var (
		locker   service.Locker
		statuses service.ExportStatusStore
	)
	if cfg.Redis.Enabled() {
		redisClient := mustInitRedis(cfg.Redis)
		defer redisClient.Close()
		locker = service.NewRedisLocker(redisClient, cfg.Fees.LockTTL, cfg.Fees.LockWait)
		statuses = redisClient
	} else {
		log.Println("[REDIS] disabled, using in-process locks and export status")
		locker = service.NewLocalLocker(cfg.Fees.LockWait)
		statuses = clients.NewMemoryCache()
	}

	storageClient, err := clients.NewLocalStorage(cfg.ExportDir, cfg.FilesPublicPrefix, cfg.ExternalURL)
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}
	var files service.FileStore = storageClient
	var resolver rest.FileResolver = storageClient
	if cfg.S3.Enabled {
		s3Client := mustInitS3(ctx, cfg.S3)
		files = s3Client
		resolver = nil
	}

	downloads, err := clients.NewDownloadLog(cfg.LogDir)
	if err != nil {
		log.Fatalf("download log init error: %v", err)
	}

	var mailer clients.Mailer = clients.ConsoleMailer{}
	if cfg.Mail.SendGridKey != "" {
		mailer = clients.NewSendGridMailer(cfg.Mail.SendGridKey, cfg.Mail.FromName, cfg.Mail.FromEmail)
	} else {
		log.Println("[MAIL] SENDGRID_API_KEY not set, mail is logged only")
	}

	wsHub := websocket.NewHub()
	wsHub.AllowOrigins(cfg.AllowedOrigins...)
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	ledger := service.NewPaymentLedger(paymentRepo)
	paymentSvc := service.NewPaymentService(studentRepo, installmentRepo, paymentRepo, ledger, locker, wsClient, gstRate)
	enrollmentSvc := service.NewEnrollmentService(studentRepo, enrollmentRepo, courseRepo, ledger, service.EnrollmentOptions{
		FrontendURL: cfg.FrontendURL,
		LinkTTL:     cfg.Auth.EnrollmentTTL,
		BcryptCost:  cfg.Auth.BcryptCost,
		GSTRate:     gstRate,
	})
	accountSvc := service.NewAccountService(studentRepo, tokens, mailer, service.AccountOptions{
		FrontendURL:   cfg.FrontendURL,
		ResetTokenTTL: cfg.Auth.ResetTokenTTL,
		BcryptCost:    cfg.Auth.BcryptCost,
	})
	dashboardSvc := service.NewDashboardService(studentRepo, installmentRepo, paymentRepo, mailer, service.InstituteInfo{
		Name:    cfg.Institute.Name,
		Address: cfg.Institute.Address,
		Phone:   cfg.Institute.Phone,
		Email:   cfg.Institute.Email,
		Website: cfg.Institute.Website,
		GSTIN:   cfg.Institute.GSTIN,
	}, gstRate, cfg.Auth.NotifyDueWithin)
	reportSvc := service.NewReportService(studentRepo, installmentRepo, paymentRepo, enrollmentRepo, downloads)
	ledgerExportSvc := service.NewLedgerExportService(paymentRepo, statuses, files, wsClient, cfg.ExportMaxRows)
	exportSvc := service.NewExportService(statuses)

	handler := rest.NewHandler(rest.Services{
		Accounts:    accountSvc,
		Payments:    paymentSvc,
		Enrollments: enrollmentSvc,
		Dashboards:  dashboardSvc,
		Reports:     reportSvc,
		Exporter:    ledgerExportSvc,
		ExportList:  exportSvc,
		Files:       resolver,
		Hub:         wsHub,
	})
	router := handler.InitRouterWithAuth(auth.Authenticate(tokens, studentRepo))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run HTTP server in goroutine so we can listen for shutdown signals
	srvErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	// generated files live as long as their export status
	go runEvery(ctx, 5*time.Minute, func() {
		if err := storageClient.CleanupOlderThan(30 * time.Minute); err != nil {
			log.Printf("[STORAGE] cleanup error: %v", err)
		}
	})
	go runEvery(ctx, time.Hour, func() {
		n, err := enrollmentSvc.PurgeExpired(ctx)
		if err != nil {
			log.Printf("[ENROLL] purge expired links error: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[ENROLL] purged %d expired enrollment links", n)
		}
	})

	// Listen for OS shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	case sig := <-stop:
		log.Printf("Shutdown signal received: %v", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server Shutdown error: %v", err)
		}

		// let running exports finish writing their status before the stores close
		ledgerExportSvc.Wait()
		cancel()

		log.Println("Shutdown complete")
	}
}

func runEvery(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func mustInitPostgres(cfg config.PostgresConfig) *sql.DB {
	info := postgres.ConnectionInfo{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Username:     cfg.User,
		DBName:       cfg.DBName,
		SSLMode:      cfg.SSLMode,
		Password:     cfg.Password,
		MaxOpenConns: 20,
		PingAttempts: 10,
	}
	db, err := postgres.NewPostgresConnection(info)
	if err != nil {
		log.Fatalf("postgres init error: %v", err)
	}

	if cfg.Migrate {
		if err := repository.Migrate(info.DSN()); err != nil {
			log.Fatalf("postgres migrate error: %v", err)
		}
		log.Println("[DB] migrations applied")
	}
	return db
}

func mustInitRedis(cfg config.RedisConfig) *clients.RedisClient {
	client, err := clients.NewRedisClient(clients.RedisConfig{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: time.Duration(cfg.DialTimeout) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		Prefix:      cfg.Prefix,
	})
	if err != nil {
		log.Fatalf("redis init error: %v", err)
	}
	return client
}

func mustInitS3(ctx context.Context, cfg config.S3Config) *clients.S3Client {
	client, err := clients.NewS3Client(ctx, clients.S3Config{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Bucket:          cfg.Bucket,
		UseSSL:          cfg.UseSSL,
		Region:          cfg.Region,
		Prefix:          cfg.Prefix,
	})
	if err != nil {
		log.Fatalf("s3 init error: %v", err)
	}
	return client
}
