package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/agent"
	"github.com/BaSui01/experimentkit/agent/hypothesis"
	"github.com/BaSui01/experimentkit/config"
	"github.com/BaSui01/experimentkit/internal/history"
	"github.com/BaSui01/experimentkit/llm"
	"github.com/BaSui01/experimentkit/workflow"
)

// =============================================================================
// 🧪 Agent 命令（refine / analyze）
// =============================================================================

// agentFlags --model / --provider
type agentFlags struct {
	model    string
	provider string
}

func (f *agentFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.model, "model", "", "LLM model to use (defaults to configuration)")
	fs.StringVar(&f.provider, "provider", "", "LLM provider: openai, anthropic or mistral (defaults to configuration)")
}

// args 返回 agent 构造参数，只包含显式指定的项
func (f *agentFlags) args() (agent.Args, error) {
	args := agent.Args{}
	if f.model != "" {
		args["model"] = f.model
	}
	if f.provider != "" {
		p := strings.ToLower(f.provider)
		if !llm.IsKnownProvider(p) {
			return nil, fmt.Errorf("invalid --provider %q (choose from %s)", f.provider, strings.Join(llm.KnownProviders, ", "))
		}
		args["provider"] = p
	}
	return args, nil
}

// agentCommand 描述一个单 agent 子命令
type agentCommand struct {
	name        string
	capability  string
	inputKey    string
	inputTitle  string
	outputTitle string
}

var (
	refineCommand = agentCommand{
		name:        "refine",
		capability:  hypothesis.RefinerName,
		inputKey:    "hypothesis",
		inputTitle:  "ORIGINAL HYPOTHESIS",
		outputTitle: "REFINED HYPOTHESIS",
	}
	analyzeCommand = agentCommand{
		name:        "analyze",
		capability:  hypothesis.AnalyzerName,
		inputKey:    "refined_hypothesis",
		inputTitle:  "HYPOTHESIS TO ANALYZE",
		outputTitle: "ANALYSIS",
	}
)

func runRefine(args []string, out io.Writer) error {
	return refineCommand.run(args, out)
}

func runAnalyze(args []string, out io.Writer) error {
	return analyzeCommand.run(args, out)
}

func (c agentCommand) run(args []string, out io.Writer) error {
	fs, g := newFlagSet(c.name)
	var af agentFlags
	af.register(fs)
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	text, err := hypothesisArg(c.name, positional)
	if err != nil {
		return err
	}
	ctorArgs, err := af.args()
	if err != nil {
		return err
	}

	return withApp(g, appOptions{cache: true}, func(ctx context.Context, a *app) error {
		capability, err := a.registry.GetInstance(c.capability, ctorArgs)
		if err != nil {
			return err
		}

		printSection(out, c.inputTitle, text)
		result, err := capability.Invoke(ctx, map[string]any{c.inputKey: text})
		if err != nil {
			return err
		}
		printSection(out, c.outputTitle, formatValue(result))
		return nil
	})
}

// =============================================================================
// 🔄 workflow 命令
// =============================================================================

func runWorkflow(args []string, out io.Writer) error {
	fs, g := newFlagSet("workflow")
	var af agentFlags
	af.register(fs)
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	text, err := hypothesisArg("workflow", positional)
	if err != nil {
		return err
	}
	ctorArgs, err := af.args()
	if err != nil {
		return err
	}

	return withApp(g, appOptions{cache: true, database: true}, func(ctx context.Context, a *app) error {
		// 先以命令行参数实例化，工作流查找时复用缓存实例
		for _, name := range []string{hypothesis.RefinerName, hypothesis.AnalyzerName, hypothesis.ReviserName} {
			if _, err := a.registry.GetInstance(name, ctorArgs); err != nil {
				return err
			}
		}

		printSection(out, "ORIGINAL HYPOTHESIS", text)
		inputs := map[string]any{"hypothesis": text}
		res, err := hypothesis.NewRefinementWorkflow(a.workflowOptions()...).Execute(ctx, a.registry, inputs)
		if err != nil {
			return err
		}
		a.saveRun(ctx, res, inputs)
		printRefinementResult(out, res)
		return nil
	})
}

// printRefinementResult 打印 REFINED / ANALYSIS / REVISED，失败时打印 WORKFLOW FAILED
func printRefinementResult(out io.Writer, res *workflow.WorkflowResult) {
	if res.Status != workflow.StatusCompleted {
		msg := res.Error
		if msg == "" {
			msg = "Unknown error"
		}
		printSection(out, "WORKFLOW FAILED", msg)
		return
	}
	printSection(out, "REFINED HYPOTHESIS", formatValue(res.StepValue("refine")))
	printSection(out, "ANALYSIS", formatValue(res.StepValue("analyze")))
	printSection(out, "REVISED HYPOTHESIS", formatValue(res.StepValue("revise")))
}

// =============================================================================
// 📄 run 命令（YAML 工作流定义）
// =============================================================================

// inputFlags 可重复的 --input key=value
type inputFlags map[string]any

func (f inputFlags) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (f inputFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("input must be key=value, got %q", v)
	}
	f[key] = value
	return nil
}

func runDefinition(args []string, out io.Writer) error {
	fs, g := newFlagSet("run")
	inputs := inputFlags{}
	fs.Var(inputs, "input", "Initial input as key=value (repeatable)")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return errors.New("usage: experimentkit run <definition.yaml> [--input key=value ...]")
	}

	def, err := workflow.LoadDefinitionFile(positional[0])
	if err != nil {
		return err
	}

	return withApp(g, appOptions{cache: true, database: true}, func(ctx context.Context, a *app) error {
		res, err := def.Build(a.workflowOptions()...).Execute(ctx, a.registry, inputs)
		if err != nil {
			return err
		}
		a.saveRun(ctx, res, inputs)
		printRunResult(out, res)
		if res.Status == workflow.StatusFailed {
			return fmt.Errorf("workflow %s failed: %s", res.WorkflowName, res.Error)
		}
		return nil
	})
}

// printRunResult 按解析顺序打印每个步骤和最终结果
func printRunResult(out io.Writer, res *workflow.WorkflowResult) {
	for _, name := range res.StepOrder {
		step := res.Steps[name]
		body := formatValue(step.Result)
		if step.Error != "" {
			body = step.Error
		}
		printSection(out, fmt.Sprintf("STEP %s (%s)", name, step.Status), body)
	}
	printSection(out, fmt.Sprintf("RESULT (%s)", res.Status), formatValue(res.FinalResult))
}

// =============================================================================
// 📜 history 命令
// =============================================================================

func runHistory(args []string, out io.Writer) error {
	fs, g := newFlagSet("history")
	limit := fs.Int("limit", 20, "Number of runs to show")
	name := fs.String("workflow", "", "Only show runs of this workflow")
	status := fs.String("status", "", "Only show runs with this status")
	pruneBefore := fs.Duration("prune-before", 0, "Delete runs started longer ago than this (e.g. 720h) before listing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pruneBefore < 0 {
		return fmt.Errorf("invalid --prune-before %s: must be positive", *pruneBefore)
	}

	return withApp(g, appOptions{database: true}, func(ctx context.Context, a *app) error {
		if a.history == nil {
			return errors.New("run history is not configured (set database.enabled)")
		}
		return showHistory(ctx, a.history, historyOptions{
			list:        history.ListOptions{Workflow: *name, Status: *status, Limit: *limit},
			pruneBefore: *pruneBefore,
		}, out)
	})
}

type historyOptions struct {
	list        history.ListOptions
	pruneBefore time.Duration
}

// showHistory 可选地先清理旧记录，然后打印运行列表与各状态计数
func showHistory(ctx context.Context, store *history.Store, opts historyOptions, out io.Writer) error {
	if opts.pruneBefore > 0 {
		deleted, err := store.Prune(ctx, time.Now().Add(-opts.pruneBefore))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Pruned %d run(s) older than %s\n\n", deleted, opts.pruneBefore)
	}

	runs, err := store.List(ctx, opts.list)
	if err != nil {
		return err
	}
	counts, err := store.CountByStatus(ctx)
	if err != nil {
		return err
	}
	printRuns(out, runs)
	printStatusCounts(out, counts)
	return nil
}

func printRuns(out io.Writer, runs []history.RunRecord) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tSTATUS\tSTARTED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.WorkflowName, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
		)
	}
	_ = tw.Flush()
}

// printStatusCounts 按状态名排序输出一行汇总，例如 "Totals: completed=3 failed=1"
func printStatusCounts(out io.Writer, counts map[string]int64) {
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	parts := make([]string, 0, len(statuses))
	for _, s := range statuses {
		parts = append(parts, fmt.Sprintf("%s=%d", s, counts[s]))
	}
	if len(parts) == 0 {
		parts = append(parts, "none")
	}
	fmt.Fprintf(out, "\nTotals: %s\n", strings.Join(parts, " "))
}

// =============================================================================
// ⚙️ config 命令
// =============================================================================

func runConfig(args []string, out io.Writer) error {
	fs, g := newFlagSet("config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	printConfig(out, cfg)
	return nil
}

func printConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "=== ExperimentKit Configuration ===")
	fmt.Fprintf(out, "Default Provider: %s\n", cfg.LLM.DefaultProvider)
	fmt.Fprintf(out, "Default Model: %s\n", cfg.LLM.DefaultModel)
	fmt.Fprintf(out, "Log Level: %s\n", strings.ToUpper(cfg.Log.Level))
	fmt.Fprintf(out, "Metrics Enabled: %t\n", cfg.Metrics.Enabled)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// withApp 加载配置、组装组件并在 SIGINT/SIGTERM 时取消 fn 的 ctx。
// 命令行模式下日志写到 stderr，stdout 只留给结果。
func withApp(g *globalFlags, opts appOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	logCfg := cfg.Log
	logCfg.OutputPaths = []string{"stderr"}
	logger := initLogger(logCfg)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return fn(ctx, a)
}

// saveRun 记录运行历史；未配置数据库时跳过，写入失败只记日志
func (a *app) saveRun(ctx context.Context, res *workflow.WorkflowResult, inputs map[string]any) {
	if a.history == nil {
		return
	}
	if err := a.history.Save(context.WithoutCancel(ctx), res, inputs); err != nil {
		a.logger.Warn("failed to save workflow run",
			zap.String("run_id", res.ID),
			zap.Error(err))
	}
}

// hypothesisArg 取唯一的位置参数
func hypothesisArg(cmd string, positional []string) (string, error) {
	if len(positional) != 1 || strings.TrimSpace(positional[0]) == "" {
		return "", fmt.Errorf("usage: experimentkit %s <hypothesis> [--model name] [--provider name]", cmd)
	}
	return positional[0], nil
}

func printSection(out io.Writer, title, body string) {
	fmt.Fprintf(out, "\n=== %s ===\n%s\n", title, body)
}

// formatValue 字符串与 fmt.Stringer 原样输出，其余渲染为缩进 JSON
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
