package main

import (
	"context"
	"errand-route-service/internal/app"
	"errand-route-service/internal/config"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

const usage = `usage: dbtool [-store none|file|sqlite|postgres|redis] <command>

commands:
  stats   print entry count of the persisted distance cache
  purge   drop expired entries and write the cache back
  clear   remove every entry from the store`

// dbtool maintains the persisted distance cache without starting the server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	store := flag.String("store", config.Get("CACHE_STORE", "file"), "cache store to operate on")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	// The tool never calls the provider, so a placeholder key satisfies validation.
	if config.Get("ORS_API_KEY", "") == "" && config.Get("GOOGLE_MAPS_API_KEY", "") == "" {
		os.Setenv("ORS_API_KEY", "unused")
		os.Setenv("ROUTE_PROVIDER", "ors")
	}
	os.Setenv("CACHE_STORE", *store)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	switch cmd := flag.Arg(0); cmd {
	case "stats":
		log.Printf("store=%s entries=%d", cfg.Cache.Store, a.Cache.Len())
		if err := a.Release(); err != nil {
			log.Fatal(err)
		}
		return
	case "purge":
		n := a.Planner.CacheClearExpired()
		log.Printf("store=%s purged=%d remaining=%d", cfg.Cache.Store, n, a.Cache.Len())
	case "clear":
		n := a.Planner.CacheClearAll()
		log.Printf("store=%s cleared=%d", cfg.Cache.Store, n)
	default:
		a.Release()
		log.Fatalf("unknown command %q\n%s", cmd, usage)
	}

	if err := a.Close(ctx); err != nil {
		log.Fatal(err)
	}
}
