package main

import (
	"log/slog"
	"net/http"
	"os"

	_ "net/http/pprof" // profiling

	"ouroboros/internal/ouroboros/cmd"
	"ouroboros/internal/ouroboros/log"
)

func main() {
	defer log.RecoverPanic("main", func() {
		slog.Error("Application terminated due to unhandled panic")
	})

	if addr := os.Getenv("OUROBOROS_PROFILE"); addr != "" {
		if addr == "1" {
			addr = "localhost:6060"
		}
		go func() {
			slog.Info("Serving pprof", "addr", addr)
			if httpErr := http.ListenAndServe(addr, nil); httpErr != nil {
				slog.Error("Failed to pprof listen", "error", httpErr)
			}
		}()
	}

	cmd.Execute()
	log.Close()
}
