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

	_ "github.com/jackc/pgx/v5/stdlib"

	"hybridaccess.org/internal/audit"
	"hybridaccess.org/internal/directory"
	"hybridaccess.org/internal/factor"
	"hybridaccess.org/internal/httpapi"
	"hybridaccess.org/internal/obs"
	"hybridaccess.org/internal/session"
	"hybridaccess.org/internal/stepup"
	"hybridaccess.org/internal/token"
)

var version = "0.3.1"

const sweepInterval = time.Minute

func main() {
	obs.Init()

	secret := os.Getenv("HYBRIDACCESS_JWT_SECRET")
	if secret == "" {
		log.Fatal("HYBRIDACCESS_JWT_SECRET is required")
	}
	addr := os.Getenv("HYBRIDACCESS_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// Postgres if a DSN is given; in-memory stores otherwise (dev mode).
	var db *sql.DB
	if dsn := os.Getenv("HYBRIDACCESS_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var (
		dir      directory.Store
		sessions session.Store
		recorder audit.Recorder
		events   audit.Reader
	)
	if db != nil {
		dir = directory.NewPGStore(db)
		sessions = session.NewPGStore(db)
		pg := audit.NewPGRecorder(db)
		recorder, events = pg, pg
	} else {
		log.Print("no HYBRIDACCESS_PG_DSN set, using in-memory stores")
		dir = directory.NewMemory()
		sessions = session.NewMemory()
		mem := audit.NewMemory()
		recorder, events = mem, mem
	}
	ctx := context.Background()
	users := dir.Users(ctx)
	resources := dir.Resources(ctx)

	// Factor verifiers. Without a face service URL the biometric factor is
	// unavailable and submissions for it are rejected.
	svcOpts := []stepup.Option{stepup.WithAuditRecorder(recorder)}
	verifiers := []factor.Verifier{factor.NewTOTPVerifier(stepup.SecretSource(users))}
	if faceURL := os.Getenv("HYBRIDACCESS_FACE_URL"); faceURL != "" {
		face := factor.NewFaceVerifier(faceURL,
			factor.WithAutoEnrollHook(stepup.FaceEnrollmentHook(users)))
		verifiers = append(verifiers, face)
		svcOpts = append(svcOpts, stepup.WithFaceEnroller(face))
	} else {
		log.Print("no HYBRIDACCESS_FACE_URL set, biometric factor disabled")
	}
	registry, err := factor.NewRegistry(verifiers...)
	if err != nil {
		log.Fatalf("factor registry: %v", err)
	}

	issuer, err := token.NewIssuer(secret)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	svc, err := stepup.NewService(users, resources, sessions, registry, issuer, svcOpts...)
	if err != nil {
		log.Fatalf("stepup service: %v", err)
	}

	api := httpapi.New(svc, issuer, resources, httpapi.ReadyProbe{DB: db}, version,
		httpapi.WithAuditReader(events))

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting hybridaccess-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Periodic expiry sweep for step-up sessions.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if _, err := svc.SweepExpired(sweepCtx); err != nil {
					log.Printf("sweep sessions: %v", err)
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
