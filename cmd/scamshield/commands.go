package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/scamshield/internal/export"
	"github.com/dusk-indust/scamshield/internal/failure"
	"github.com/dusk-indust/scamshield/internal/mcptools"
	"github.com/dusk-indust/scamshield/internal/orchestrator"
	"github.com/dusk-indust/scamshield/internal/record"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/state"
	"github.com/dusk-indust/scamshield/internal/status"
)

// newFlagSet returns a subcommand flag set that reports errors instead of
// exiting.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("scamshield "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = a.out.Write(append(data, '\n'))
	return err
}

// userError turns a pipeline error into the message shown to the officer.
func userError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %s", op, failure.UserMessage(err))
}

// printResult prints a stage result's output or returns its error.
func (a *app) printResult(name string, res stage.Result) error {
	if !res.Success {
		if res.Err == nil {
			return fmt.Errorf("%s failed", name)
		}
		return userError(name, res.Err)
	}
	if res.LowConfidence {
		a.log.Warn("low confidence output", zap.String("stage", name))
	}
	return a.printJSON(res.Output)
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// creatorFlags binds the creator config options shared by run, resume and
// full.
type creatorFlags struct {
	file      string
	languages string
}

func (c *creatorFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.file, "config", "", "creator config JSON file")
	fs.StringVar(&c.languages, "languages", "", "comma-separated languages overriding the creator config")
}

// load returns nil when neither flag is set.
func (c *creatorFlags) load() (*record.CreatorConfig, error) {
	if c.file == "" && c.languages == "" {
		return nil, nil
	}
	cfg := record.DefaultCreatorConfig()
	if c.file != "" {
		if err := readJSONFile(c.file, &cfg); err != nil {
			return nil, fmt.Errorf("creator config: %w", err)
		}
	}
	if names := splitList(c.languages); len(names) > 0 {
		cfg.Languages = cfg.Languages[:0]
		for _, n := range names {
			cfg.Languages = append(cfg.Languages, record.ParseLanguage(n))
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("creator config: %w", err)
	}
	return &cfg, nil
}

func requireFlag(name, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func runIntake(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("intake")
	text := fs.String("text", "", "report text, news URL or police report")
	source := fs.String("source", string(record.SourceManualDescription), "source type: manual_description, news_url, police_report or trending_newsroom")
	extra := fs.String("context", "", "additional context for the researcher")
	officer := fs.String("officer", "", "officer id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	content := *text
	if content == "" {
		content = strings.Join(fs.Args(), " ")
	}
	src, err := record.ParseInputSource(*source)
	if err != nil {
		return err
	}

	sheet, id, err := a.orch.StartIntake(ctx, record.IntakeInput{
		SourceType:        src,
		Content:           content,
		AdditionalContext: *extra,
		OfficerID:         *officer,
	})
	if id != "" {
		a.printf("session %s\n", id)
	}
	if err != nil {
		return userError("intake", err)
	}
	return a.printJSON(sheet)
}

func runChat(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("chat")
	id := fs.String("session", "", "session id")
	msg := fs.String("message", "", "message to the researcher")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("session", *id); err != nil {
		return err
	}
	if *msg == "" {
		*msg = strings.Join(fs.Args(), " ")
	}
	reply, err := a.orch.ChatRefine(ctx, *id, *msg)
	if err != nil {
		return userError("chat", err)
	}
	a.printf("%s\n", reply.Reply)
	if reply.Updated {
		a.printf("\nfact sheet updated to revision %d\n", reply.FactSheet.Revision)
	}
	return nil
}

func runVerify(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("verify")
	id := fs.String("session", "", "session id")
	officer := fs.String("officer", "", "verifying officer id")
	notes := fs.String("notes", "", "officer notes added to the fact sheet")
	file := fs.String("corrections", "", "JSON file of fact sheet corrections")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("session", *id); err != nil {
		return err
	}
	if err := requireFlag("officer", *officer); err != nil {
		return err
	}

	var c *record.Corrections
	if *file != "" {
		c = &record.Corrections{}
		if err := readJSONFile(*file, c); err != nil {
			return fmt.Errorf("corrections: %w", err)
		}
	}
	if *notes != "" {
		if c == nil {
			c = &record.Corrections{}
		}
		c.OfficerNotes = notes
	}

	sheet, err := a.orch.Verify(ctx, *id, *officer, c)
	if err != nil {
		return userError("verify", err)
	}
	return a.printJSON(sheet)
}

func runStage(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("run")
	id := fs.String("session", "", "session id")
	name := fs.String("stage", "", "stage to run")
	platform := fs.String("platform", "", "social platform for social_strategy")
	stop := fs.String("stop-after", "", "end visual_assets after this step")
	var cf creatorFlags
	cf.bind(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("session", *id); err != nil {
		return err
	}
	if _, ok := state.ParseStage(*name); !ok {
		return fmt.Errorf("unknown stage %q", *name)
	}
	creator, err := cf.load()
	if err != nil {
		return err
	}
	res := a.orch.RunStage(ctx, *id, *name, orchestrator.StageInput{
		Creator:   creator,
		Platform:  *platform,
		StopAfter: *stop,
	})
	return a.printResult(*name, res)
}

func runFull(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("full")
	id := fs.String("session", "", "session id")
	var cf creatorFlags
	cf.bind(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("session", *id); err != nil {
		return err
	}
	creator, err := cf.load()
	if err != nil {
		return err
	}
	c := record.DefaultCreatorConfig()
	if creator != nil {
		c = *creator
	}
	pkg, err := a.orch.RunFull(ctx, *id, c)
	if err != nil {
		if len(pkg.VideoInputs) > 0 {
			_ = a.printJSON(pkg)
		}
		return userError("full", err)
	}
	return a.printJSON(pkg)
}

func runResume(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("resume")
	id := fs.String("session", "", "session id")
	checkpoint := fs.String("checkpoint", "", "stage name or visual step")
	stop := fs.String("stop-after", "", "end visual_assets after this step")
	var cf creatorFlags
	cf.bind(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("session", *id); err != nil {
		return err
	}
	if err := requireFlag("checkpoint", *checkpoint); err != nil {
		return err
	}
	creator, err := cf.load()
	if err != nil {
		return err
	}
	res := a.orch.ResumeFrom(ctx, *id, *checkpoint, orchestrator.StageInput{Creator: creator, StopAfter: *stop})
	return a.printResult(*checkpoint, res)
}

func runRefine(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("refine")
	id := fs.String("session", "", "session id")
	target := fs.String("target", string(state.StageScript), "script or social_strategy")
	feedback := fs.String("feedback", "", "officer feedback")
	section := fs.String("section", string(record.SectionAll), "social section: trends, captions, thumbnail, hashtags or all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("session", *id); err != nil {
		return err
	}
	if err := requireFlag("feedback", *feedback); err != nil {
		return err
	}

	switch state.StageName(*target) {
	case state.StageScript:
		out, err := a.orch.RefineScript(ctx, *id, *feedback)
		if err != nil {
			return userError("refine", err)
		}
		return a.printJSON(out)
	case state.StageSocial:
		out, err := a.orch.RefineSocial(ctx, *id, *feedback, *section)
		if err != nil {
			return userError("refine", err)
		}
		return a.printJSON(out)
	}
	return fmt.Errorf("--target must be script or social_strategy, got %q", *target)
}

func runStatus(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("status")
	id := fs.String("session", "", "session id; lists sessions when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		ids, err := a.store.List(ctx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			a.printf("No sessions found.\nRun 'scamshield intake' to start one.\n")
			return nil
		}
		for _, s := range ids {
			a.printf("%s\n", s)
		}
		return nil
	}
	st, err := a.orch.GetState(ctx, *id)
	if err != nil {
		return userError("status", err)
	}
	status.Print(a.out, status.Summarize(st))
	return nil
}

func runReport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("report")
	id := fs.String("session", "", "session id")
	severity := fs.String("severity", string(record.SeverityMedium), "low, medium, high or critical")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("session", *id); err != nil {
		return err
	}
	report, err := a.orch.CreateScamReport(ctx, *id, *severity)
	if err != nil {
		return userError("report", err)
	}
	return a.printJSON(report)
}

func runDiagram(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("diagram")
	id := fs.String("session", "", "colour nodes by this session's stage status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var st *state.PipelineState
	if *id != "" {
		var err error
		if st, err = a.orch.GetState(ctx, *id); err != nil {
			return userError("diagram", err)
		}
	}
	a.printf("%s", export.GenerateMermaid(st))
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("export")
	id := fs.String("session", "", "session id")
	dir := fs.String("out", "", "output directory (default export/<session>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("session", *id); err != nil {
		return err
	}
	if *dir == "" {
		*dir = filepath.Join("export", *id)
	}
	st, err := a.orch.GetState(ctx, *id)
	if err != nil {
		return userError("export", err)
	}
	exports, err := export.ExportPackage(st, time.Now())
	if err != nil {
		return err
	}
	paths, err := export.WritePackages(*dir, exports)
	for _, p := range paths {
		a.printf("  wrote %s\n", p)
	}
	return err
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("serve")
	addr := fs.String("http", "", "serve streamable HTTP on this address instead of stdio")
	if err := fs.Parse(args); err != nil {
		return err
	}
	server := mcptools.NewServer(mcptools.NewPipelineService(a.orch, a.log))
	if *addr == "" {
		a.log.Info("mcp: serving on stdio")
		err := mcptools.RunStdio(ctx, server)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	a.log.Info("mcp: serving streamable HTTP", zap.String("addr", *addr))
	return mcptools.RunHTTP(ctx, server, *addr)
}
