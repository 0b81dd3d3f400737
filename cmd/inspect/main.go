package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/danielpatrickdp/assessment-engine/internal/catalog"
	"github.com/danielpatrickdp/assessment-engine/internal/intervention"
	"github.com/danielpatrickdp/assessment-engine/internal/store"
	"github.com/danielpatrickdp/assessment-engine/internal/subject"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to assessment.db")
	user := flag.String("user", "", "user id")
	session := flag.String("session", "", "session id")
	catalogPath := flag.String("catalog", "", "optional catalog YAML for score interpretation")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" || *user == "" || *session == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/assessment.db --user id --session id [--catalog catalog.yml] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	var cat catalog.Catalog
	if *catalogPath != "" {
		m, err := catalog.Load(*catalogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
			os.Exit(1)
		}
		cat = m
	}

	rep, err := collect(context.Background(), st, cat, subject.Key{UserID: *user, SessionID: *session})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *jsonOut {
		err = printJSON(rep)
	} else {
		printReport(rep)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region collect

type scoreRow struct {
	Metric string `json:"metric"`
	Value  int    `json:"value"`
	Band   string `json:"band,omitempty"`
	Label  string `json:"label,omitempty"`
}

type eventRow struct {
	Type      string `json:"type"`
	StepType  string `json:"step_type"`
	StepCode  string `json:"step_code,omitempty"`
	CreatedAt string `json:"created_at"`
}

type decisionRow struct {
	Trigger   string `json:"trigger"`
	Source    string `json:"source,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
	Step      string `json:"step"`
	Scores    string `json:"scores,omitempty"`
	Flags     string `json:"flags,omitempty"`
	CreatedAt string `json:"created_at"`
}

type moduleRow struct {
	ModuleID string `json:"module_id"`
	Status   string `json:"status"`
}

type report struct {
	Subject      subject.Key   `json:"subject"`
	FlowCode     string        `json:"flow_code,omitempty"`
	Status       string        `json:"status"`
	Step         string        `json:"step,omitempty"`
	LastQuestion string        `json:"last_question,omitempty"`
	Responses    int           `json:"responses"`
	Scores       []scoreRow    `json:"scores"`
	Flags        []string      `json:"flags"`
	Modules      []moduleRow   `json:"modules"`
	Events       []eventRow    `json:"events"`
	Decisions    []decisionRow `json:"decisions"`
}

func collect(ctx context.Context, st *store.Store, cat catalog.Catalog, s subject.Key) (report, error) {
	rep := report{Subject: s, Status: "not_started"}

	fs, err := st.FlowState(ctx, s)
	if err != nil {
		return rep, err
	}
	if fs != nil {
		rep.FlowCode = fs.FlowCode
		rep.Status = string(fs.Status)
		rep.Step = stepString(string(fs.Step.Type), fs.Step.Code)
		rep.LastQuestion = fs.LastQuestion
	}

	if rep.Responses, err = st.CountResponses(ctx, s); err != nil {
		return rep, err
	}

	regs, err := st.ScoreRegisters(ctx, s)
	if err != nil {
		return rep, err
	}
	defs := map[string]catalog.ScoreDefinition{}
	if cat != nil {
		ds, err := cat.ScoreDefinitions(ctx)
		if err != nil {
			return rep, err
		}
		for _, d := range ds {
			defs[d.MetricCode] = d
		}
	}
	for metric, v := range regs {
		row := scoreRow{Metric: metric, Value: v}
		if d, ok := defs[metric]; ok {
			row.Band, row.Label = d.Interpret(v)
		}
		rep.Scores = append(rep.Scores, row)
	}
	sort.Slice(rep.Scores, func(i, j int) bool { return rep.Scores[i].Metric < rep.Scores[j].Metric })

	flagRows, err := st.Flags(ctx, s)
	if err != nil {
		return rep, err
	}
	for _, f := range flagRows {
		rep.Flags = append(rep.Flags, f.Code)
	}

	progress, err := st.ListProgress(ctx, s)
	if err != nil {
		return rep, err
	}
	for i := range progress {
		rep.Modules = append(rep.Modules, moduleRow{
			ModuleID: progress[i].ModuleID,
			Status:   string(intervention.State(&progress[i])),
		})
	}

	events, err := st.FlowEvents(ctx, s)
	if err != nil {
		return rep, err
	}
	for _, ev := range events {
		rep.Events = append(rep.Events, eventRow{
			Type:      string(ev.Type),
			StepType:  string(ev.StepType),
			StepCode:  ev.StepCode,
			CreatedAt: ev.CreatedAt.Format(time.RFC3339),
		})
	}

	decisions, err := st.Decisions(ctx, s)
	if err != nil {
		return rep, err
	}
	for _, d := range decisions {
		source := d.QuestionCode
		if source == "" {
			source = d.ModuleID
		}
		rep.Decisions = append(rep.Decisions, decisionRow{
			Trigger:   string(d.Trigger),
			Source:    source,
			RuleID:    d.RuleID,
			Step:      stepString(d.StepType, d.StepCode),
			Scores:    d.ScoresJSON,
			Flags:     d.FlagsJSON,
			CreatedAt: d.CreatedAt.Format(time.RFC3339),
		})
	}
	return rep, nil
}

func stepString(stepType, code string) string {
	if code == "" {
		return stepType
	}
	return stepType + ":" + code
}

// #endregion collect

// #region output

func printReport(rep report) {
	fmt.Printf("Subject:   %s\n", rep.Subject)
	fmt.Printf("Flow:      %s (%s)\n", orDash(rep.FlowCode), rep.Status)
	fmt.Printf("Step:      %s\n", orDash(rep.Step))
	fmt.Printf("Last Q:    %s\n", orDash(rep.LastQuestion))
	fmt.Printf("Responses: %d\n", rep.Responses)

	fmt.Println("\nScores")
	fmt.Printf("%-28s  %5s  %-8s  %s\n", "Metric", "Value", "Band", "Label")
	fmt.Printf("%-28s+-%5s+-%-8s+-%s\n", "----------------------------", "-----", "--------", "------------")
	for _, r := range rep.Scores {
		fmt.Printf("%-28s  %5d  %-8s  %s\n", r.Metric, r.Value, orDash(r.Band), orDash(r.Label))
	}

	fmt.Println("\nFlags")
	if len(rep.Flags) == 0 {
		fmt.Println("  —")
	}
	for _, f := range rep.Flags {
		fmt.Printf("  %s\n", f)
	}

	fmt.Println("\nModules")
	if len(rep.Modules) == 0 {
		fmt.Println("  —")
	}
	for _, m := range rep.Modules {
		fmt.Printf("  %-28s  %s\n", m.ModuleID, m.Status)
	}

	fmt.Println("\nEvents")
	fmt.Printf("%-8s  %-32s  %s\n", "Type", "Step", "Time")
	for _, e := range rep.Events {
		fmt.Printf("%-8s  %-32s  %s\n", e.Type, stepString(e.StepType, e.StepCode), e.CreatedAt)
	}

	fmt.Println("\nDecisions")
	fmt.Printf("%-12s  %-14s  %-26s  %-32s  %s\n", "Trigger", "Source", "Rule", "Step", "Time")
	for _, d := range rep.Decisions {
		fmt.Printf("%-12s  %-14s  %-26s  %-32s  %s\n", d.Trigger, orDash(d.Source), orDash(d.RuleID), d.Step, d.CreatedAt)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// #endregion output
