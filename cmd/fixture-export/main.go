package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/replay"
	"github.com/danielpatrickdp/assessment-engine/internal/store"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to assessment.db")
	user := flag.String("user", "", "user id to export")
	session := flag.String("session", "", "session id to export")
	outPath := flag.String("out", "", "output scenario YAML path")
	catalogPath := flag.String("catalog", "", "if set, replay the export in memory and record outcomes as expectations")
	description := flag.String("description", "", "scenario description")
	flag.Parse()

	if *dbPath == "" || *user == "" || *session == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --user id --session id --out scenario.yml [--catalog catalog.yml]")
		os.Exit(2)
	}

	s := subject.Key{UserID: *user, SessionID: *session}
	if err := run(*dbPath, *catalogPath, *outPath, *description, s); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, catalogPath, outPath, description string, s subject.Key) error {
	ctx := context.Background()
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	responses, err := st.ListResponses(ctx, s)
	if err != nil {
		return err
	}
	if len(responses) == 0 {
		return fmt.Errorf("no responses recorded for %s", s)
	}
	progress, err := st.ListProgress(ctx, s)
	if err != nil {
		return err
	}

	if description == "" {
		description = fmt.Sprintf("exported from %s", s)
	}
	sc := replay.Export(description, s, responses, progress)

	if catalogPath != "" {
		sc, err = baseline(ctx, catalogPath, sc)
		if err != nil {
			return err
		}
	}

	data, err := sc.Marshal()
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Printf("Exported %d steps (%d responses) to %s\n", len(sc.Steps), len(responses), outPath)
	return nil
}

func baseline(ctx context.Context, catalogPath string, sc replay.Scenario) (replay.Scenario, error) {
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return sc, err
	}
	mem, err := store.NewStore(":memory:")
	if err != nil {
		return sc, err
	}
	defer mem.Close()
	return replay.Baseline(ctx, flow.NewController(mem, cat, flow.Options{}), sc)
}

// #endregion extract
