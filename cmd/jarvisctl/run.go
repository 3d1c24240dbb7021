package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"Jarvis-Orchestrator/internal/app"
	"Jarvis-Orchestrator/internal/approval"
	"Jarvis-Orchestrator/internal/confirm"
	"Jarvis-Orchestrator/internal/intent"
)

type conditionFlags struct {
	hour       int
	battery    float64
	confidence float64
	prefer     string
}

func (f *conditionFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.hour, "hour", -1, "覆盖当前小时 (0-23)，-1 表示使用本地时间")
	cmd.Flags().Float64Var(&f.battery, "battery", -1, "电量 (0-1)，-1 表示未知")
	cmd.Flags().Float64Var(&f.confidence, "confidence", 0.9, "识别置信度")
	cmd.Flags().StringVar(&f.prefer, "prefer", "", "优先选择的 agent")
}

func (f *conditionFlags) conditions() intent.Conditions {
	hour := f.hour
	if hour < 0 || hour > 23 {
		hour = time.Now().Hour()
	}
	cond := intent.Conditions{PreferAgent: f.prefer}.WithHour(hour)
	if f.battery >= 0 {
		cond = cond.WithBattery(f.battery)
	}
	return cond
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var flags conditionFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "交互式输入指令，经本地流水线路由、确认并执行",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			// 提示器、确认器与 REPL 共享同一个缓冲读取器。
			reader := bufio.NewReader(cmd.InOrStdin())
			core, err := app.Build(cmd.Context(), cfg, app.WithConfirmer(approval.NewPromptConfirmer(reader, out)))
			if err != nil {
				return err
			}
			defer core.Close()
			return repl(cmd.Context(), core, reader, out, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func repl(ctx context.Context, core *app.App, reader *bufio.Reader, out io.Writer, flags *conditionFlags) error {
	prompter := confirm.NewLinePrompter(reader, out)
	var parser intent.KeywordParser
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "jarvis> ")
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}
		text := strings.TrimSpace(line)
		switch strings.ToLower(text) {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		in := parser.Parse(text, flags.confidence)
		res := core.Pipeline.Handle(ctx, in, flags.conditions(), prompter)
		if err := printJSON(out, res); err != nil {
			return err
		}
	}
}

func newDelegateCmd(opts *globalOptions) *cobra.Command {
	var agentName string
	var query string
	cmd := &cobra.Command{
		Use:   "delegate <intent>",
		Short: "跳过规划，直接把意图委派给最合适的 agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			core, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer core.Close()

			in := intent.Intent{Name: args[0], Confidence: 1, Agent: agentName, Text: query}
			if query != "" {
				in.Entities = map[string]any{"query": query}
			}
			res := core.Pipeline.Delegate(cmd.Context(), in)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Succeeded() {
				return fmt.Errorf("委派失败: %s", res.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentName, "agent", "", "指定目标 agent")
	cmd.Flags().StringVar(&query, "query", "", "附带的查询文本")
	return cmd
}
