package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/fieldlink/fieldlink-go/internal/devserver"
	"github.com/fieldlink/fieldlink-go/internal/logging"
)

func main() {

	addr := flag.String("a", "127.0.0.1:8080", "listen address")
	flag.Parse()

	log := logging.Default()
	srv := devserver.New(devserver.Config{}, log)

	slog.Info("devserver listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, srv.Handler()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
