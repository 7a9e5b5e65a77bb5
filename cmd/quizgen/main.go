// Command quizgen runs one generation pass over a units file without
// Temporal or Postgres. Items are kept in memory and printed as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"quizgen/internal/config"
	"quizgen/internal/logger"
	"quizgen/internal/models"
	"quizgen/internal/providers"
	"quizgen/internal/quiz"
	"quizgen/internal/storage"
	"quizgen/internal/util"

	"github.com/joho/godotenv"
)

type unitsFile struct {
	DocumentID string               `json:"document_id"`
	Units      []models.ContentUnit `json:"units"`
}

type output struct {
	Result quiz.RunResult         `json:"result"`
	Items  []models.GeneratedItem `json:"items"`
}

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()

	unitsPath := flag.String("units", "", "path to a JSON units file")
	docID := flag.String("doc", "", "document id (overrides the file)")
	niveau := flag.String("niveau", string(models.DefaultNiveau), "light|standard|deep|exhaustive")
	lang := flag.String("lang", cfg.DefaultLanguage, "item language")
	types := flag.String("types", "", "comma separated item kinds, e.g. multiple_choice,true_false")
	providerList := flag.String("providers", cfg.LLMProviders, "pipe separated provider list")
	outPath := flag.String("out", "", "write the result to this file instead of stdout")
	flag.Parse()

	if err := run(cfg, *unitsPath, *docID, *niveau, *lang, *types, *providerList, *outPath); err != nil {
		fmt.Fprintln(os.Stderr, "quizgen:", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, unitsPath, docID, niveau, lang, types, providerList, outPath string) error {
	if strings.TrimSpace(unitsPath) == "" {
		return fmt.Errorf("-units is required")
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	in, err := loadUnits(unitsPath)
	if err != nil {
		return err
	}
	if docID != "" {
		in.DocumentID = docID
	}
	if in.DocumentID == "" {
		in.DocumentID = "local"
	}
	for i := range in.Units {
		in.Units[i].DocumentID = in.DocumentID
		for j := range in.Units[i].Concepts {
			in.Units[i].Concepts[j].UnitID = in.Units[i].UnitID
		}
	}

	pm, err := providers.NewManager(providerList)
	if err != nil {
		return fmt.Errorf("configure providers: %w", err)
	}
	store := storage.NewMemoryStore()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := store.UpsertUnits(ctx, in.Units); err != nil {
		return err
	}

	policy := quiz.DefaultPolicy()
	policy.BatchSize = cfg.BatchSize
	policy.RetryDelay = cfg.RetryDelay()
	policy.SweepDelay = cfg.SweepDelay()
	policy.Persistence = quiz.ParsePersistence(cfg.Persistence)
	orch := quiz.NewOrchestrator(quiz.NewLLMGenerator(pm, store, log), store, store,
		quiz.WithLogger(log),
		quiz.WithPolicy(policy),
	)
	res, runErr := orch.Run(ctx, quiz.RunRequest{
		DocumentID: in.DocumentID,
		Language:   lang,
		Config: models.GenerationConfig{
			Niveau:    models.ParseNiveau(niveau),
			ItemTypes: parseTypes(types),
		},
		Units: in.Units,
	})
	items, err := store.ListItems(ctx, in.DocumentID, "")
	if err != nil {
		return err
	}
	out := output{Result: res, Items: items}
	if outPath != "" {
		if err := util.WriteJSONAtomic(outPath, out); err != nil {
			return err
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	log.Info("generation finished", "document_id", in.DocumentID, "status", res.Status, "accepted", res.Accepted, "target", res.Target, "calls", len(store.Calls()))
	return runErr
}

// loadUnits accepts either {"document_id": ..., "units": [...]} or a bare array.
func loadUnits(path string) (unitsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return unitsFile{}, fmt.Errorf("read units: %w", err)
	}
	var in unitsFile
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(raw, &in.Units)
	} else {
		err = json.Unmarshal(raw, &in)
	}
	if err != nil {
		return unitsFile{}, fmt.Errorf("decode units: %w", err)
	}
	if len(in.Units) == 0 {
		return unitsFile{}, fmt.Errorf("no units in %s", path)
	}
	return in, nil
}

func parseTypes(s string) map[string]bool {
	out := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		if k, ok := quiz.CanonicalKind(part); ok {
			out[string(k)] = true
		}
	}
	return out
}
