// Command ingest runs one ingest batch against a storage.Adapter (§4.14),
// mirroring original_source's "ingest-cli seed <dir>" shape.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/batvault/batvault/internal/catalog"
	"github.com/batvault/batvault/internal/config"
	"github.com/batvault/batvault/internal/ingestpipeline"
	"github.com/batvault/batvault/internal/policy"
	"github.com/batvault/batvault/internal/storage"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ingest [--arango-url URL] [--check-policies] seed <dir>")
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	arangoURL := flag.String("arango-url", "", "override ARANGO_ENDPOINTS for this run")
	checkPolicies := flag.Bool("check-policies", false, "validate every role-*.json under the policy dir and exit")
	flag.Parse()

	cfg := config.Get()

	if *checkPolicies {
		runPolicyCheck(cfg)
		return
	}

	args := flag.Args()
	if len(args) != 2 || args[0] != "seed" {
		usage()
		os.Exit(2)
	}
	dir := args[1]

	endpoints := cfg.Storage.ArangoEndpoints
	if *arangoURL != "" {
		endpoints = []string{*arangoURL}
		log.Printf(`{"event":"override_arango_url","arango_url":%q}`, *arangoURL)
	}

	ctx := context.Background()
	var adapter storage.Adapter
	if len(endpoints) == 0 {
		log.Printf(`{"event":"no_arango_endpoints","fallback":"stub_adapter"}`)
		adapter = storage.NewStubAdapter()
	} else {
		a, err := storage.DialArango(ctx, endpoints, cfg.Storage.ArangoUser, cfg.Storage.ArangoPassword, cfg.Storage.ArangoDatabase, cfg.Storage.BatchSize, cfg.IsDevelopment())
		if err != nil {
			log.Fatalf("ingest: dial arango: %v", err)
		}
		adapter = a
	}

	catalogStore := catalog.NewStore()
	versionStore := catalog.NewVersionStore()
	pipeline := ingestpipeline.NewPipeline(adapter, catalogStore, versionStore)

	report, err := pipeline.Run(ctx, dir)
	if err != nil {
		log.Fatalf("ingest: run: %v", err)
	}

	out, _ := json.Marshal(report)
	fmt.Println(string(out))
	if !report.OK {
		os.Exit(1)
	}
}

func runPolicyCheck(cfg *config.Config) {
	errs := policy.Smoke(cfg.Policy.PolicyDir)
	for _, e := range errs {
		fmt.Fprintln(os.Stderr, e)
	}
	result := map[string]interface{}{"ok": len(errs) == 0, "errors": len(errs)}
	out, _ := json.Marshal(result)
	fmt.Println(string(out))
	if len(errs) > 0 {
		os.Exit(1)
	}
}
