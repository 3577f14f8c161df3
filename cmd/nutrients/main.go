package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"nutriagent"
	"nutriagent/coordinator/mock"
	"nutriagent/nutrients"
	"nutriagent/slack"
	"nutriagent/storage"
	"nutriagent/tools"
)

func main() {
	flat := flag.Bool("flat", false, "also print the ungrouped nutriments, one line per key")
	dump := flag.Bool("dump", false, "dump the grouped result for debugging")
	post := flag.Bool("slack", false, "post the grouped result to the configured Slack webhook")
	agent := flag.Bool("agent", false, "also run the offline mock coordinator on the search term")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-flat] [-dump] [-slack] [-agent] <search term>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	term := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(term) == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("SETUP: Failed to load .env", "error", err)
	}

	var offConfig nutriagent.OpenFoodFactsConfig
	if err := envdecode.Decode(&offConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	opts := offConfig.FetcherOpts()
	opts.HTTPClient = nutriagent.NewTracedHTTPClient(offConfig.Timeout)
	fetcher := nutrients.NewFetcher(opts)

	ctx := context.Background()

	raw, outcome, err := fetcher.FetchWithOutcome(ctx, term)
	if err != nil {
		slog.Warn("FETCHER: Lookup failed; treating as no results", "outcome", outcome, "error", err)
	}
	grouped := nutrients.Group(raw)

	fmt.Printf("Getting nutriments for %s from Open Food Facts and grouping them:\n", term)
	for g := grouped.Oldest(); g != nil; g = g.Next() {
		b, err := json.Marshal(g.Value)
		if err != nil {
			slog.Error("Failed to encode group", "group", g.Key, "error", err)
			continue
		}
		fmt.Printf("%s: %s\n", g.Key, b)
	}

	if *flat {
		fmt.Println("\nUngrouped nutriments, one line per key:")
		for p := raw.Oldest(); p != nil; p = p.Next() {
			fmt.Printf("%s: %v\n", p.Key, p.Value)
		}
	}

	if *dump {
		nutriagent.Dump(nutrients.ToMap(grouped))
	}

	if *agent {
		if err := runAgent(ctx, fetcher, term); err != nil {
			slog.Error("FAILURE: Error handling task", "error", err)
			os.Exit(1)
		}
	}

	if *post {
		var agentConfig nutriagent.AgentConfig
		if err := envdecode.Decode(&agentConfig); err != nil {
			log.Fatalf("SETUP: Failed to decode: %s", err)
		}
		client := slack.NewClient(agentConfig.SlackWebhookURL, nutriagent.NewTracedHTTPClient(offConfig.Timeout))
		if err := client.PostMessage(ctx, agentConfig.SlackChannel, slack.FormatNutrients(term, grouped)); err != nil {
			slog.Error("Failed to post result to Slack", "error", err)
			os.Exit(1)
		}
	}
}

// runAgent answers term with the offline coordinator, reusing the fetcher through the tool
// registry so the whole tool path runs without a model.
func runAgent(ctx context.Context, fetcher *nutrients.Fetcher, term string) error {
	var agentConfig nutriagent.AgentConfig
	if err := envdecode.Decode(&agentConfig); err != nil {
		return fmt.Errorf("failed to decode agent config: %w", err)
	}

	instructions, err := storage.LoadInstructions(ctx, storage.NewFileInstructionState(agentConfig.InstructionsPath))
	if err != nil {
		return err
	}

	registry, err := tools.NewRegistry(nutrients.NewService(fetcher))
	if err != nil {
		return err
	}

	out, err := mock.NewCoordinator(mock.NewLLMClient(), registry, instructions, agentConfig.MaxIterations, nil).Run(ctx, term)
	if err != nil {
		return err
	}
	fmt.Printf("\nAgent: %s\n", out)
	return nil
}
