package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ledgerdesk/backoffice/internal/config"
	"github.com/ledgerdesk/backoffice/internal/domain/document"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/ledgerdesk/backoffice/internal/store"
	"github.com/ledgerdesk/backoffice/internal/types"
)

// counters prints the sequence counters of every document kind and can seed
// one of them, for example when numbering continues from a previous system.
// The store takes the data directory lock, so the server must be stopped.
func main() {
	kind := flag.String("kind", "", "Document kind whose counter is seeded")
	value := flag.Int("set", -1, "Last issued number; the next document gets value+1")
	dryRun := flag.Bool("dry-run", false, "Print the change without writing it")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	s, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to open record store", "dir", cfg.Storage.DataDir, "error", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *kind != "" {
		spec, err := document.SpecFor(types.DocumentKind(*kind))
		if err != nil {
			logger.Fatalw("Unknown document kind", "kind", *kind, "error", err)
		}
		if *value < 0 {
			logger.Fatalw("A value is required with -kind", "kind", *kind)
		}

		current, err := s.Peek(ctx, spec.Prefix)
		if err != nil {
			logger.Fatalw("Failed to read counter", "sequence", spec.Prefix, "error", err)
		}

		if *dryRun {
			logger.Infow("Dry run, counter not changed",
				"sequence", spec.Prefix,
				"current", current,
				"value", *value,
				"next_number", store.FormatNumber(spec.Prefix, *value+1, cfg.Storage.NumberWidth))
		} else {
			if err := s.Set(ctx, spec.Prefix, *value); err != nil {
				logger.Fatalw("Failed to seed counter", "sequence", spec.Prefix, "error", err)
			}
			logger.Infow("Counter seeded", "sequence", spec.Prefix, "previous", current, "value", *value)
		}
	}

	for _, k := range types.DocumentKinds {
		spec, err := document.SpecFor(k)
		if err != nil {
			logger.Fatalw("Unknown document kind", "kind", k, "error", err)
		}
		last, err := s.Peek(ctx, spec.Prefix)
		if err != nil {
			logger.Fatalw("Failed to read counter", "sequence", spec.Prefix, "error", err)
		}
		fmt.Fprintf(os.Stdout, "%-16s %-4s last=%-6d next=%s\n",
			k, spec.Prefix, last, store.FormatNumber(spec.Prefix, last+1, cfg.Storage.NumberWidth))
	}
}
