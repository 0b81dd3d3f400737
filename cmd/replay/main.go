package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/flow"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/replay"
	"github.com/danielpatrickdp/assessment-engine/internal/store"
	"github.com/danielpatrickdp/assessment-engine/internal/transport"
)

// #region main

func main() {
	catalogPath := flag.String("catalog", "", "catalog YAML (local mode)")
	addr := flag.String("addr", "", "replay against a running engine at this gRPC address (remote mode)")
	policy := flag.String("resubmit", "append", "resubmit policy for local mode: append or ignore")
	boost := flag.String("boost", "once", "boost policy for local mode: once or every")
	verbose := flag.Bool("v", false, "print every step, not only failures")
	flag.Parse()

	if flag.NArg() == 0 || (*catalogPath == "") == (*addr == "") {
		fmt.Fprintln(os.Stderr, "usage: replay --catalog catalog.yml scenario.yml [scenario.json ...]")
		fmt.Fprintln(os.Stderr, "       replay --addr host:port scenario.yml [...]")
		os.Exit(2)
	}

	var scenarios []replay.Scenario
	for _, path := range flag.Args() {
		sc, err := replay.LoadScenario(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		scenarios = append(scenarios, *sc)
	}

	eng, closeFn, err := engine(*catalogPath, *addr, *policy, *boost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(2)
	}
	defer closeFn()

	reports, err := replay.RunAll(context.Background(), eng, scenarios)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
	if printReports(reports, *verbose) > 0 {
		os.Exit(1)
	}
}

// #endregion main

// #region engine

// engine returns an in-memory controller for local mode or a gRPC client for remote mode.
func engine(catalogPath, addr, policy, boost string) (replay.Engine, func(), error) {
	if addr != "" {
		c, err := transport.NewClient(addr)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	}

	p, err := flow.ParseResubmitPolicy(policy)
	if err != nil {
		return nil, nil, err
	}
	b, err := intervention.ParseBoostPolicy(boost)
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewStore(":memory:")
	if err != nil {
		return nil, nil, err
	}
	return flow.NewController(st, cat, flow.Options{ResubmitPolicy: p, BoostPolicy: b}), func() { st.Close() }, nil
}

// #endregion engine

// #region output

func printReports(reports []replay.Report, verbose bool) int {
	failed := 0
	for _, rep := range reports {
		sum := rep.Summary
		status := "PASS"
		if sum.Failed > 0 {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%s  %-40s  %s  steps=%d passed=%d failed=%d final=%s\n",
			status, truncate(sum.Description, 40), rep.Subject, sum.Steps, sum.Passed, sum.Failed,
			finalStep(sum))
		for _, r := range rep.Results {
			if r.Passed() && !verbose {
				continue
			}
			mark := "ok"
			if !r.Passed() {
				mark = "!!"
			}
			fmt.Printf("    %s %2d %-8s %s:%s", mark, r.Index, r.Op, r.StepType, r.StepCode)
			if len(r.Mismatches) > 0 {
				fmt.Printf("  %s", strings.Join(r.Mismatches, "; "))
			}
			fmt.Println()
		}
	}
	fmt.Printf("\n%d scenarios, %d failed\n", len(reports), failed)
	return failed
}

func finalStep(s replay.Summary) string {
	if s.FinalStepCode == "" {
		return string(s.FinalStepType)
	}
	return string(s.FinalStepType) + ":" + s.FinalStepCode
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// #endregion output
