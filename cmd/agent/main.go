package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sgurov/browserflow/internal/agent"
	"github.com/sgurov/browserflow/internal/browser"
	"github.com/sgurov/browserflow/internal/config"
	"github.com/sgurov/browserflow/internal/llm"
	"github.com/sgurov/browserflow/internal/progress"
	"github.com/sgurov/browserflow/internal/workflow"
)

const usage = `browserflow: record browser workflows, replay them, and run AI-driven tasks.

Commands:
  record   -name NAME -url URL [-session NAME]     record a new workflow
  run      -workflow NAME [-mode direct|ai] [-params k=v,...] [-session NAME] [-ws ADDR]
  task     -instruction TEXT [-url URL] [-session NAME] [-ws ADDR]
  batch    -workflow NAME -csv FILE [-mode direct|ai] [-session NAME] [-ws ADDR]
  list
  preview  -workflow NAME
  delete   -workflow NAME
`

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "record":
		err = cmdRecord(ctx, cfg, os.Args[2:])
	case "run":
		err = cmdRun(ctx, cfg, os.Args[2:])
	case "task":
		err = cmdTask(ctx, cfg, os.Args[2:])
	case "batch":
		err = cmdBatch(ctx, cfg, os.Args[2:])
	case "list":
		err = cmdList(cfg)
	case "preview":
		err = cmdPreview(cfg, os.Args[2:])
	case "delete":
		err = cmdDelete(cfg, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("command failed")
	}
}

func cmdRecord(ctx context.Context, cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	name := fs.String("name", "", "Workflow name")
	url := fs.String("url", "", "Start URL")
	description := fs.String("description", "", "Workflow description")
	session := fs.String("session", "", "Session name to restore and save")
	_ = fs.Parse(args)
	if *name == "" || *url == "" {
		return errors.New("record requires -name and -url")
	}

	launcher, drv, err := openBrowser(ctx, cfg, *session)
	if err != nil {
		return err
	}
	defer launcher.Close()
	defer drv.Close(ctx)

	if err := drv.Navigate(ctx, *url); err != nil {
		return err
	}

	rec := browser.NewRecorder(drv.Page(), log.With().Str("comp", "recorder").Logger())
	if err := rec.Start(ctx); err != nil {
		return err
	}
	fmt.Println("Recording. Perform the workflow in the browser, then press Enter to stop.")
	waitForEnter(ctx)
	events := rec.Stop()

	canon := workflow.NewCanonicalizer(*url)
	canon.FragmentMarker = cfg.EphemeralFragmentMarker
	canon.FragmentMinLen = cfg.EphemeralFragmentMinLen
	steps := canon.Steps(events)
	if len(steps) == 0 {
		return errors.New("no actionable events were recorded")
	}

	wf := workflow.New(*name, *description, *url, steps)
	store := workflow.NewStore(cfg.WorkflowsDir, log.With().Str("comp", "store").Logger())
	if err := store.Save(wf); err != nil {
		return err
	}
	if path, err := browser.SaveSession(ctx, drv, cfg.SessionsDir, *session); err != nil {
		log.Warn().Err(err).Msg("session save failed")
	} else {
		log.Info().Str("path", path).Msg("session saved")
	}

	fmt.Printf("Saved workflow %q with %d steps (%d raw events).\n", wf.Name, len(steps), len(events))
	return nil
}

func cmdRun(ctx context.Context, cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	name := fs.String("workflow", "", "Workflow name")
	mode := fs.String("mode", "direct", "Execution mode: direct or ai")
	params := fs.String("params", "", "Parameter values as k=v,k=v")
	session := fs.String("session", "", "Session name to restore")
	wsAddr := fs.String("ws", "", "Serve progress websocket on this address")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("run requires -workflow")
	}
	useAI, err := parseMode(*mode)
	if err != nil {
		return err
	}

	store := workflow.NewStore(cfg.WorkflowsDir, log.With().Str("comp", "store").Logger())
	wf, err := store.Load(*name)
	if err != nil {
		return err
	}
	resolved, err := wf.Resolve(parseParams(*params))
	if err != nil {
		return err
	}

	launcher, drv, err := openBrowser(ctx, cfg, *session)
	if err != nil {
		return err
	}
	defer launcher.Close()
	defer drv.Close(ctx)

	hub := startHub(*wsAddr)
	shots := browser.NewCapturer(cfg, log.With().Str("comp", "screenshot").Logger())
	registry := agent.NewRegistry()

	instruction := resolved.Instruction()
	task, err := registry.CreateTask(instruction)
	if err != nil {
		return err
	}
	cancelOnSignal(ctx, task)

	if resolved.StartURL != "" {
		if err := drv.Navigate(ctx, resolved.StartURL); err != nil {
			return err
		}
	}

	if useAI {
		loop, err := newLoop(cfg, drv, shots, hub)
		if err != nil {
			return err
		}
		loop.Run(ctx, task)
	} else {
		replayer := agent.NewReplayer(drv, shots, hub, cfg, log.With().Str("comp", "replay").Logger())
		replayer.Run(ctx, task, resolved)
	}
	return reportTask(task)
}

func cmdTask(ctx context.Context, cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("task", flag.ExitOnError)
	instruction := fs.String("instruction", "", "Natural-language task for the agent")
	url := fs.String("url", "", "Optional start URL")
	session := fs.String("session", "", "Session name to restore")
	wsAddr := fs.String("ws", "", "Serve progress websocket on this address")
	_ = fs.Parse(args)
	if strings.TrimSpace(*instruction) == "" {
		return errors.New("task requires -instruction")
	}

	launcher, drv, err := openBrowser(ctx, cfg, *session)
	if err != nil {
		return err
	}
	defer launcher.Close()
	defer drv.Close(ctx)

	if *url != "" {
		if err := drv.Navigate(ctx, *url); err != nil {
			return err
		}
	}

	hub := startHub(*wsAddr)
	shots := browser.NewCapturer(cfg, log.With().Str("comp", "screenshot").Logger())
	registry := agent.NewRegistry()
	task, err := registry.CreateTask(*instruction)
	if err != nil {
		return err
	}
	cancelOnSignal(ctx, task)

	loop, err := newLoop(cfg, drv, shots, hub)
	if err != nil {
		return err
	}
	loop.Run(ctx, task)
	return reportTask(task)
}

func cmdBatch(ctx context.Context, cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	name := fs.String("workflow", "", "Workflow name")
	csvPath := fs.String("csv", "", "CSV file with a header row of parameter names")
	mode := fs.String("mode", "direct", "Execution mode: direct or ai")
	session := fs.String("session", "", "Session name to restore")
	wsAddr := fs.String("ws", "", "Serve progress websocket on this address")
	_ = fs.Parse(args)
	if *name == "" || *csvPath == "" {
		return errors.New("batch requires -workflow and -csv")
	}
	useAI, err := parseMode(*mode)
	if err != nil {
		return err
	}

	store := workflow.NewStore(cfg.WorkflowsDir, log.With().Str("comp", "store").Logger())
	wf, err := store.Load(*name)
	if err != nil {
		return err
	}
	rows, err := readRows(*csvPath)
	if err != nil {
		return err
	}

	registry := agent.NewRegistry()
	batch, err := registry.CreateBatch(wf, rows)
	if err != nil {
		return err
	}

	launcher, drv, err := openBrowser(ctx, cfg, *session)
	if err != nil {
		return err
	}
	defer launcher.Close()
	defer drv.Close(ctx)

	hub := startHub(*wsAddr)
	shots := browser.NewCapturer(cfg, log.With().Str("comp", "screenshot").Logger())
	replayer := agent.NewReplayer(drv, shots, hub, cfg, log.With().Str("comp", "replay").Logger())
	var loop *agent.Loop
	if useAI {
		if loop, err = newLoop(cfg, drv, shots, hub); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		_ = registry.CancelBatch(batch.ID)
	}()

	runner := agent.NewBatchRunner(registry, drv, replayer, loop, hub, log.With().Str("comp", "batch").Logger())
	runner.Run(ctx, batch, wf, useAI)

	ev := batch.Event()
	fmt.Printf("Batch %s: %s (%d completed, %d failed of %d)\n", batch.ID, ev.Status, ev.Completed, ev.Failed, ev.Total)
	for i, row := range batch.Rows() {
		line := fmt.Sprintf("  row %d: %s", i+1, row.Status)
		if row.Error != "" {
			line += " (" + row.Error + ")"
		}
		fmt.Println(line)
	}
	if ev.Status != agent.StatusCompleted {
		return fmt.Errorf("batch finished with status %s", ev.Status)
	}
	return nil
}

func cmdList(cfg config.Settings) error {
	store := workflow.NewStore(cfg.WorkflowsDir, log.With().Str("comp", "store").Logger())
	workflows, err := store.List()
	if err != nil {
		return err
	}
	if len(workflows) == 0 {
		fmt.Println("No workflows recorded yet.")
		return nil
	}
	for _, wf := range workflows {
		params := make([]string, len(wf.Parameters))
		for i, p := range wf.Parameters {
			params[i] = p.Name
		}
		fmt.Printf("%-24s %3d steps  params: %s\n", wf.Name, len(wf.Steps), strings.Join(params, ", "))
	}
	return nil
}

func cmdPreview(cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	name := fs.String("workflow", "", "Workflow name")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("preview requires -workflow")
	}
	store := workflow.NewStore(cfg.WorkflowsDir, log.With().Str("comp", "store").Logger())
	wf, err := store.Load(*name)
	if err != nil {
		return err
	}
	fmt.Println(wf.Instruction())
	return nil
}

func cmdDelete(cfg config.Settings, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	name := fs.String("workflow", "", "Workflow name")
	_ = fs.Parse(args)
	if *name == "" {
		return errors.New("delete requires -workflow")
	}
	store := workflow.NewStore(cfg.WorkflowsDir, log.With().Str("comp", "store").Logger())
	if err := store.Delete(*name); err != nil {
		return err
	}
	fmt.Printf("Deleted workflow %q.\n", *name)
	return nil
}

func openBrowser(ctx context.Context, cfg config.Settings, session string) (*browser.Launcher, browser.Driver, error) {
	launcher, err := browser.NewLauncher(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	storage := browser.ExistingSession(cfg.SessionsDir, session)
	drv, err := launcher.NewDriver(ctx, cfg, storage)
	if err != nil {
		_ = launcher.Close()
		return nil, nil, err
	}
	return launcher, drv, nil
}

func newLoop(cfg config.Settings, drv browser.Driver, shots *browser.Capturer, hub agent.Broadcaster) (*agent.Loop, error) {
	client, err := llm.NewClient(cfg, shots.ScaledWidth, shots.ScaledHeight, log.With().Str("comp", "llm").Logger())
	if err != nil {
		return nil, err
	}
	exec := agent.NewExecutor(drv, shots, log.With().Str("comp", "exec").Logger())
	return agent.NewLoop(client, exec, drv, shots, hub, cfg, log.With().Str("comp", "loop").Logger()), nil
}

// startHub returns a live websocket hub when addr is set, otherwise a
// no-op broadcaster.
func startHub(addr string) agent.Broadcaster {
	if addr == "" {
		return agent.NopBroadcaster{}
	}
	hub := progress.NewHub(log.With().Str("comp", "progress").Logger())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("progress server stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("progress websocket listening on /ws")
	return hub
}

func cancelOnSignal(ctx context.Context, task *agent.Task) {
	go func() {
		<-ctx.Done()
		task.Cancel()
	}()
}

func reportTask(task *agent.Task) error {
	switch task.Status() {
	case agent.StatusCompleted:
		fmt.Printf("Completed after %d steps: %s\n", task.StepsCompleted(), task.Result())
		return nil
	case agent.StatusCancelled:
		fmt.Println(task.Result())
		return nil
	default:
		return fmt.Errorf("task %s: %s", task.Status(), task.ErrMessage())
	}
}

func waitForEnter(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		reader := bufio.NewReader(os.Stdin)
		_, _ = reader.ReadString('\n')
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
}

func parseMode(mode string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "direct", "":
		return false, nil
	case "ai":
		return true, nil
	default:
		return false, fmt.Errorf("unknown mode: %s (use direct or ai)", mode)
	}
}

func parseParams(s string) map[string]string {
	values := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	return values
}

// readRows loads batch parameter rows from a CSV file whose header names
// the workflow parameters.
func readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, errors.New("csv needs a header row and at least one data row")
	}
	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[strings.TrimSpace(name)] = strings.TrimSpace(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
