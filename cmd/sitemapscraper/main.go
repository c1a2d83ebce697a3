// Command sitemapscraper is the CLI entrypoint: show/print/data/rescrape
// against a sitemap store, plus an optional long-running server mode that
// also starts the scheduler and the HTTP mirror.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nickheyer/sitemapscraper/internal/api"
	"github.com/nickheyer/sitemapscraper/internal/config"
	"github.com/nickheyer/sitemapscraper/internal/fetch"
	"github.com/nickheyer/sitemapscraper/internal/scheduler"
	"github.com/nickheyer/sitemapscraper/internal/scrapeutil"
	"github.com/nickheyer/sitemapscraper/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sitemapscraper", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a JSON config file (optional)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage()
		return 1
	}

	cfg := config.GetDefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	scrapeutil.Configure(cfg.LogDir)

	if scrapeutil.FileExists(cfg.StorePath) {
		scrapeutil.GetLogger().Debug("opening existing store", map[string]any{"path": cfg.StorePath})
	} else {
		scrapeutil.GetLogger().Info("no store found, creating a new one", map[string]any{"path": cfg.StorePath})
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening store: %v\n", err)
		return 1
	}
	defer st.Close()

	cmd := rest[0]
	switch cmd {
	case "show":
		return cmdShow(st)
	case "print":
		return cmdPrint(st, rest[1:])
	case "data":
		return cmdData(st, rest[1:])
	case "rescrape":
		return cmdRescrape(st, cfg, rest[1:])
	case "serve":
		return cmdServe(st, cfg)
	default:
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: sitemapscraper [-config <path>] <show|print|data|rescrape|serve> [name]")
}

func cmdShow(st *store.Store) int {
	ids, err := st.ListSitemaps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing sitemaps: %v\n", err)
		return 1
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return 0
}

func cmdPrint(st *store.Store, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: sitemapscraper print <name>")
		return 1
	}
	sm, err := st.GetSitemap(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading sitemap: %v\n", err)
		return 1
	}
	data, err := json.MarshalIndent(sm, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "serializing sitemap: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func cmdData(st *store.Store, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: sitemapscraper data <name>")
		return 1
	}
	records, err := st.GetRecords(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading records: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(os.Stdout)
	for _, rec := range records {
		scrapeutil.GetLogger().Debug("dumping record", map[string]any{"preview": scrapeutil.TruncateString(fmt.Sprint(rec), 200)})
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintf(os.Stderr, "encoding record: %v\n", err)
			return 1
		}
	}
	return 0
}

func cmdRescrape(st *store.Store, cfg *config.Config, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: sitemapscraper rescrape <name>")
		return 1
	}

	fetcher, closeFetcher, err := buildFetcher(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building fetcher: %v\n", err)
		return 1
	}
	defer closeFetcher()

	sch := scheduler.New(st, fetcher,
		time.Duration(cfg.RequestIntervalMS)*time.Millisecond,
		time.Duration(cfg.PageloadDelayMS)*time.Millisecond,
		1,
	)
	defer sch.Stop()

	if err := sch.Rescrape(context.Background(), args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "rescrape failed: %v\n", err)
		return 1
	}
	return 0
}

func cmdServe(st *store.Store, cfg *config.Config) int {
	fetcher, closeFetcher, err := buildFetcher(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building fetcher: %v\n", err)
		return 1
	}
	defer closeFetcher()

	sch := scheduler.New(st, fetcher,
		time.Duration(cfg.RequestIntervalMS)*time.Millisecond,
		time.Duration(cfg.PageloadDelayMS)*time.Millisecond,
		3,
	)
	sch.Start()
	defer sch.Stop()

	ids, err := st.ListSitemaps()
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing sitemaps: %v\n", err)
		return 1
	}
	for _, id := range ids {
		cron, err := st.GetSitemapCron(id)
		if err != nil {
			continue
		}
		if err := sch.ScheduleSitemap(id, cron); err != nil {
			scrapeutil.GetLogger().Warn("failed to schedule sitemap", map[string]any{"sitemap": id, "error": err.Error()})
		}
	}

	router := api.Router(st, sch)
	addr := ":" + cfg.Port
	scrapeutil.GetLogger().Info("starting HTTP server", map[string]any{"addr": addr})
	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "server exited: %v\n", err)
		return 1
	}
	return 0
}

func buildFetcher(cfg *config.Config) (fetch.Fetcher, func(), error) {
	timeout := time.Duration(cfg.FetcherTimeoutMS) * time.Millisecond
	if cfg.UseBrowserFetcher {
		bf, err := fetch.NewBrowserFetcher(context.Background(), cfg.FetcherUserAgent, timeout)
		if err != nil {
			return nil, func() {}, err
		}
		return bf, bf.Close, nil
	}
	return fetch.NewHTTPFetcher(cfg.FetcherUserAgent, timeout), func() {}, nil
}
