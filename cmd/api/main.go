package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conselho.org/internal/auth"
	"conselho.org/internal/httpapi"
	"conselho.org/internal/infraction"
	"conselho.org/internal/obs"
	"conselho.org/internal/store/pg"
	"conselho.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// With a DSN the record and user stores live in Postgres; without one
	// the service runs fully in memory (local development, demos).
	var (
		recordStore infraction.Store
		userStore   auth.UserStore
		probe       httpapi.ReadyProbe
		closeStore  func()
	)
	if dsn := os.Getenv("CONSELHO_PG_DSN"); dsn != "" {
		st, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		recordStore = st
		userStore = st
		probe = httpapi.ReadyProbe{DB: st.DB()}
		closeStore = func() { _ = st.Close() }
	} else {
		recordStore = infraction.NewInMemory()
		userStore = auth.NewInMemoryUsers()
		closeStore = func() {}
	}

	records, err := infraction.NewService(recordStore)
	if err != nil {
		log.Fatalf("record service: %v", err)
	}
	users, err := auth.NewService(userStore)
	if err != nil {
		log.Fatalf("user service: %v", err)
	}

	api := httpapi.New(probe, version, records, users, stream.New())

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting conselho-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv *httpapi.GRPCServer
	if addr := os.Getenv("CONSELHO_GRPC_ADDR"); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(probe)
		log.Printf("Starting gRPC health on %s", addr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	closeStore()
	log.Println("Stopped")
}
