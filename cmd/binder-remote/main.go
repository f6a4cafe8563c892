// Package main serves binder documents over HTTP for the companion's remote
// sync. Documents live in a directory, or in memory with -memory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ramonehamilton/binder-companion/internal/remote"
)

var (
	port   = flag.Int("port", 8766, "Listen port")
	dir    = flag.String("dir", "", "Document directory (required unless -memory)")
	memory = flag.Bool("memory", false, "Keep documents in memory")
)

func main() {
	flag.Parse()

	var store remote.Store
	switch {
	case *memory:
		store = remote.NewMemoryStore()
		fmt.Println("Documents: in memory")
	case *dir != "":
		disk, err := remote.NewDiskStore(*dir)
		if err != nil {
			log.Fatalf("Failed to open document directory: %v", err)
		}
		store = disk
		fmt.Printf("Documents: %s\n", *dir)
	default:
		fmt.Fprintln(os.Stderr, "either -dir or -memory is required")
		os.Exit(2)
	}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Mount("/", remote.NewHandler(store))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("[Remote] Listening on port %d", *port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Remote] Server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
