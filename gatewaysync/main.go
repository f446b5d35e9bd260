package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/siritami/gatewaysync/internal/api"
	"github.com/siritami/gatewaysync/internal/blocklist"
	"github.com/siritami/gatewaysync/internal/config"
	"github.com/siritami/gatewaysync/internal/notify"
	"github.com/siritami/gatewaysync/internal/reconcile"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file. Environment variables override file values.")
	blocklists := flag.String("blocklists", "", "Comma-separated block-list files or URLs.")
	allowlists := flag.String("allowlists", "", "Comma-separated allow-list files or URLs.")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "apply"
	}

	// --- 1. Configuration Loading ---
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		log.Fatalf("FATAL: Error loading configuration: %v", err)
	}
	log.Printf("INFO: Configuration loaded for account %s (host %s, %d tokens)", cfg.AccountID, cfg.APIHost, len(cfg.Tokens()))

	// --- 2. Wiring ---
	// No per-attempt timeout is set; the request client bounds the whole
	// operation by attempt count.
	httpClient := &http.Client{}
	notifier := notify.NewWebhook(cfg.WebhookURL, httpClient)
	client := api.New(cfg, httpClient, notifier)
	syncer := reconcile.New(client, notifier, cfg.ListPrefix)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- 3. Command Dispatch ---
	switch command {
	case "apply":
		domainSet, err := collectDomains(ctx, httpClient, *blocklists, *allowlists)
		if err != nil {
			log.Fatalf("FATAL: %v", err)
		}
		if len(domainSet) == 0 {
			log.Fatalf("FATAL: no domains to sync; provide -blocklists")
		}
		log.Printf("INFO: syncing %d domains", len(domainSet))
		if err := syncer.Apply(ctx, domainSet); err != nil {
			log.Fatalf("FATAL: apply failed: %v", err)
		}
		log.Println("INFO: apply complete")
	case "teardown":
		if err := syncer.Teardown(ctx); err != nil {
			log.Fatalf("FATAL: teardown failed: %v", err)
		}
		log.Println("INFO: teardown complete")
	case "status":
		if err := syncer.Status(ctx); err != nil {
			log.Fatalf("FATAL: status failed: %v", err)
		}
	default:
		log.Fatalf("FATAL: unknown command %q (want apply, teardown, or status)", command)
	}
}

// collectDomains loads the block-list entries and removes any domain that
// also appears on an allow-list.
func collectDomains(ctx context.Context, httpClient *http.Client, blockArg, allowArg string) ([]string, error) {
	blocked, err := loadSources(ctx, httpClient, blockArg, false)
	if err != nil {
		return nil, err
	}
	allowed, err := loadSources(ctx, httpClient, allowArg, true)
	if err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return blocked, nil
	}

	skip := make(map[string]struct{}, len(allowed))
	for _, d := range allowed {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(blocked))
	for _, d := range blocked {
		if _, ok := skip[d]; !ok {
			out = append(out, d)
		}
	}
	log.Printf("INFO: allow-lists removed %d domains", len(blocked)-len(out))
	return out, nil
}

// loadSources reads one or more comma-separated list sources, each either a
// local file path or an http(s) URL, deduplicating across sources.
func loadSources(ctx context.Context, httpClient *http.Client, arg string, allowlisting bool) ([]string, error) {
	if arg == "" {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, src := range strings.Split(arg, ",") {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}

		var entries []string
		var err error
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			entries, err = blocklist.Download(ctx, httpClient, src, allowlisting)
		} else {
			var f *os.File
			f, err = os.Open(src)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", src, err)
			}
			entries, err = blocklist.Parse(f, allowlisting)
			f.Close()
		}
		if err != nil {
			return nil, err
		}

		for _, d := range entries {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
		log.Printf("INFO: loaded %d entries from %s", len(entries), src)
	}
	return out, nil
}
