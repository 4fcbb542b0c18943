package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/transcript-digest/internal/mockstore"
)

func main() {
	addr := defaultString("MOCK_STORE_ADDR", ":54321")
	dataDir := defaultString("MOCK_STORE_DATA_DIR", "")
	token := defaultString("MOCK_STORE_TOKEN", "")

	fs := flag.NewFlagSet("mock-store", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&dataDir, "data-dir", dataDir, "Directory to preload; first path segment is the bucket (<dir>/<bucket>/<key>)")
	fs.StringVar(&token, "token", token, "Require Authorization: Bearer <token> when set (env: MOCK_STORE_TOKEN)")
	_ = fs.Parse(os.Args[1:])

	srv := mockstore.New()
	srv.RequireBearerToken(token)
	if dataDir != "" {
		n, err := srv.LoadDir(dataDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "preload %s: %v\n", dataDir, err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(os.Stdout, "mock-store preloaded %d objects from %s\n", n, dataDir)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-store listening on %s (SUPABASE_URL=http://localhost%s)\n", addr, portSuffix(addr))
	hs := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	if err := hs.ListenAndServe(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func portSuffix(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ""
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
