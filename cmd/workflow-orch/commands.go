package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/decisional/workflow-orchestrator/internal/config"
	"github.com/decisional/workflow-orchestrator/internal/domain"
	"github.com/decisional/workflow-orchestrator/internal/engine"
	"github.com/decisional/workflow-orchestrator/internal/history"
	"github.com/decisional/workflow-orchestrator/internal/notify"
	"github.com/decisional/workflow-orchestrator/internal/pr"
	"github.com/decisional/workflow-orchestrator/internal/runner"
	"github.com/decisional/workflow-orchestrator/internal/store"
	"github.com/decisional/workflow-orchestrator/internal/ticket"
	"github.com/decisional/workflow-orchestrator/internal/watch"
)

var listStatus string

func init() {
	startCmd := &cobra.Command{
		Use:   "start WORK_ITEM",
		Short: "Start a workflow for a work item",
		Args:  cobra.ExactArgs(1),
		RunE:  runStart,
	}
	rootCmd.AddCommand(startCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume WORKFLOW",
		Short: "Retry the current phase of a paused workflow",
		Args:  cobra.ExactArgs(1),
		RunE:  runResume,
	}
	resumeCmd.Flags().Bool("override", false, "resume past the review iteration limit")
	rootCmd.AddCommand(resumeCmd)

	respondCmd := &cobra.Command{
		Use:   "respond WORKFLOW ANSWER",
		Short: "Answer a blocked workflow's question",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runRespond,
	}
	rootCmd.AddCommand(respondCmd)

	statusCmd := &cobra.Command{
		Use:   "status WORKFLOW",
		Short: "Show a workflow's current state",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE:  runList,
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	rootCmd.AddCommand(listCmd)

	cancelCmd := &cobra.Command{
		Use:   "cancel WORKFLOW",
		Short: "Cancel a workflow and kill its agent",
		Args:  cobra.ExactArgs(1),
		RunE:  runCancel,
	}
	rootCmd.AddCommand(cancelCmd)

	logsCmd := &cobra.Command{
		Use:   "logs WORKFLOW",
		Short: "Print a workflow's agent logs",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	rootCmd.AddCommand(logsCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Sweep workflows on a schedule and notify on state changes",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.New(cfg.General.WorkflowsDir)
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	return notify.NewMulti(
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
	)
}

// buildEngine wires all collaborators from config. The returned closer
// releases the history database.
func buildEngine(cfg *config.Config) (*engine.Engine, func(), error) {
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	commands := make(map[domain.Role]runner.Command, len(cfg.Agents))
	for name, a := range cfg.Agents {
		commands[domain.Role(name)] = runner.Command{Program: a.Command, Args: a.Args}
	}

	closer := func() {}
	var recorder engine.Recorder
	if err := os.MkdirAll(filepath.Dir(cfg.General.DatabasePath), 0755); err != nil {
		fmt.Printf("Warning: invocation history disabled: %v\n", err)
	} else if hist, err := history.New(cfg.General.DatabasePath); err != nil {
		fmt.Printf("Warning: invocation history disabled: %v\n", err)
	} else {
		recorder = hist
		closer = func() { hist.Close() }
	}

	eng := engine.New(engine.Options{
		Store:         s,
		Agents:        runner.New(commands, cfg.PollInterval()),
		Tickets:       ticket.NewFetcher(cfg.Git.Repo),
		PRs:           pr.NewGH(cfg.Git.BaseBranch),
		History:       recorder,
		Notifier:      buildNotifier(cfg),
		Timeouts:      cfg.Timeouts(),
		MaxIterations: cfg.Review.MaxIterations,
	})
	return eng, closer, nil
}

// signalContext is cancelled on SIGINT/SIGTERM so a running agent is
// stopped before the orchestrator exits
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, closer, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer closer()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Starting workflow for %s\n", args[0])
	w, err := eng.Start(ctx, args[0])
	if err != nil {
		return interrupted(w, err)
	}
	printWorkflow(w)
	return nil
}

// interrupted turns a SIGINT-aborted run into a clean exit: the agent is
// already stopped and the persisted record is what a resume will see
func interrupted(w *domain.Workflow, err error) error {
	if !errors.Is(err, context.Canceled) || w == nil {
		return err
	}
	fmt.Println("Interrupted; run resume to continue")
	printWorkflow(w)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, closer, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer closer()

	ctx, cancel := signalContext()
	defer cancel()

	override, _ := cmd.Flags().GetBool("override")
	w, err := eng.Resume(ctx, args[0], override)
	if err != nil {
		return interrupted(w, err)
	}
	printWorkflow(w)
	return nil
}

func runRespond(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, closer, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer closer()

	ctx, cancel := signalContext()
	defer cancel()

	answer := strings.Join(args[1:], " ")
	w, err := eng.Respond(ctx, args[0], answer)
	if err != nil {
		return interrupted(w, err)
	}
	printWorkflow(w)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}

	w, err := s.Load(args[0])
	if err != nil {
		return err
	}
	printWorkflow(w)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}

	workflows, err := s.List(store.ListOptions{Status: domain.Status(listStatus)})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWORK ITEM\tPHASE\tSTATUS\tITER\tUPDATED")
	for _, wf := range workflows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			wf.ID, wf.WorkItemID, wf.Phase, wf.Status,
			wf.Iteration, wf.MaxIterations,
			wf.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eng, closer, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer closer()

	w, err := eng.Cancel(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Cancelled %s\n", w.ID)
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}

	w, err := s.Load(args[0])
	if err != nil {
		return err
	}

	logsDir := filepath.Join(s.Dir(w.ID), store.LogsDir)
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return fmt.Errorf("reading logs: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No agent logs yet")
		return nil
	}

	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(logsDir, entry.Name()))
		if err != nil {
			return err
		}
		fmt.Printf("--- %s ---\n%s\n", entry.Name(), data)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(cfg)
	if err != nil {
		return err
	}

	watcher, err := watch.New(s, buildNotifier(cfg), cfg.Watch.Cron)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Watching workflows in %s (next sweep %s)\n",
		cfg.General.WorkflowsDir, watcher.NextRun().Local().Format("15:04:05"))
	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func printWorkflow(w *domain.Workflow) {
	fmt.Printf("Workflow:   %s\n", w.ID)
	fmt.Printf("Work item:  %s\n", w.WorkItemID)
	if w.Title != "" {
		fmt.Printf("Title:      %s\n", w.Title)
	}
	fmt.Printf("Phase:      %s\n", w.Phase)
	fmt.Printf("Status:     %s\n", w.Status)
	fmt.Printf("Iteration:  %d/%d\n", w.Iteration, w.MaxIterations)
	if w.Branch != "" {
		fmt.Printf("Branch:     %s\n", w.Branch)
	}
	if w.PRURL != "" {
		fmt.Printf("PR:         %s\n", w.PRURL)
	}
	if w.Blocked() {
		fmt.Printf("Question:   %s\n", w.Question)
		if len(w.Options) > 0 {
			fmt.Printf("Options:    %s\n", strings.Join(w.Options, ", "))
		}
		fmt.Printf("\nAnswer with: workflow-orch respond %s \"...\"\n", w.ID)
	}
	if w.Error != "" {
		fmt.Printf("Error:      %s\n", w.Error)
	}
}
