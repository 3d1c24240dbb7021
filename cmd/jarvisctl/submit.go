package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/sdk/go/jarvis"
)

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var flags conditionFlags
	var (
		mode    string
		agent   string
		wait    bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit <text>",
		Short: "把文本解析为意图并提交给 jarvisd 异步处理",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			sub := buildSubmission(intent.KeywordParser{}.Parse(text, flags.confidence), flags.conditions(), mode, agent)

			ctx := cmd.Context()
			req, err := client.SubmitIntent(ctx, sub)
			if err != nil {
				return err
			}
			if wait {
				waitCtx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				id := req.ID
				req, err = client.WaitIntent(waitCtx, id, 200*time.Millisecond)
				if err != nil {
					return fmt.Errorf("等待请求 %s 失败: %w", id, err)
				}
			}
			return printJSON(cmd.OutOrStdout(), req)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&mode, "mode", "plan", "plan 或 delegate")
	cmd.Flags().StringVar(&agent, "agent", "", "delegate 模式下指定目标 agent")
	cmd.Flags().BoolVar(&wait, "wait", false, "等待请求结束或进入待确认状态")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "--wait 的最长等待时间")
	return cmd
}

func newConfirmCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <request-id> <yes|no> [remember-hours]",
		Short: "回答等待确认的请求",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			hours := 0
			if len(args) == 3 {
				parsed, err := strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("remember-hours 必须是整数: %w", err)
				}
				hours = parsed
			}
			approve := strings.EqualFold(args[1], "yes") || strings.EqualFold(args[1], "y")
			req, err := client.Confirm(cmd.Context(), args[0], approve, hours)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), req)
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var (
		statuses []string
		mode     string
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "按状态统计 jarvisd 中的请求",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context(), jarvis.ListOptions{Statuses: statuses, Mode: mode})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "只统计指定状态，可重复或以逗号分隔")
	cmd.Flags().StringVar(&mode, "mode", "", "只统计 plan 或 delegate 请求")
	return cmd
}

func buildSubmission(in intent.Intent, cond intent.Conditions, mode, agent string) jarvis.Submission {
	return jarvis.Submission{
		Mode: mode,
		Intent: jarvis.Intent{
			Name:       in.Name,
			Confidence: in.Confidence,
			Entities:   in.Entities,
			Text:       in.Text,
			Agent:      agent,
		},
		Conditions: jarvis.Conditions{
			Hour:           cond.Hour,
			Battery:        cond.Battery,
			UserConfidence: cond.UserConfidence,
			PreferAgent:    cond.PreferAgent,
		},
	}
}
