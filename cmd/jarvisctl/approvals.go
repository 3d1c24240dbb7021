package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"Jarvis-Orchestrator/internal/app"
	"Jarvis-Orchestrator/internal/approval"
	"Jarvis-Orchestrator/internal/config"
	"Jarvis-Orchestrator/internal/eventlog"
)

func newApprovalsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "查看或管理 agent:action 授权",
	}
	var path string
	cmd.PersistentFlags().StringVar(&path, "path", "", "直接操作指定的授权 JSONL 文件，忽略配置中的驱动")

	list := &cobra.Command{
		Use:   "list",
		Short: "列出未过期的授权",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.remote() {
				client, err := opts.client()
				if err != nil {
					return err
				}
				grants, err := client.ListApprovals(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), grants)
			}
			return withApprovals(cmd.Context(), opts, path, func(store *approval.Store) error {
				return printJSON(cmd.OutOrStdout(), store.ActiveSorted())
			})
		},
	}

	var hours float64
	grant := &cobra.Command{
		Use:   "grant <agent> <action>",
		Short: "授权 agent 在一段时间内执行 action，action 为 * 表示全部",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.remote() {
				client, err := opts.client()
				if err != nil {
					return err
				}
				g, err := client.Grant(cmd.Context(), args[0], args[1], hours)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), g)
			}
			return withApprovals(cmd.Context(), opts, path, func(store *approval.Store) error {
				ttl, err := approval.HoursTTL(hours)
				if err != nil {
					return err
				}
				expiry, err := store.Grant(cmd.Context(), args[0], args[1], ttl)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), approval.ActiveGrant{Key: approval.Key(args[0], args[1]), Expiry: expiry})
			})
		},
	}
	grant.Flags().Float64Var(&hours, "hours", 1, "授权时长（小时）")

	revoke := &cobra.Command{
		Use:   "revoke <agent> <action>",
		Short: "撤销授权",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.remote() {
				client, err := opts.client()
				if err != nil {
					return err
				}
				if err := client.Revoke(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
			} else {
				err := withApprovals(cmd.Context(), opts, path, func(store *approval.Store) error {
					return store.Revoke(cmd.Context(), args[0], args[1])
				})
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", approval.Key(args[0], args[1]))
			return nil
		},
	}

	cmd.AddCommand(list, grant, revoke)
	return cmd
}

func withApprovals(ctx context.Context, opts *globalOptions, path string, fn func(*approval.Store) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if path != "" {
		cfg.Approvals = config.ApprovalConfig{Driver: "file", Path: path}
	}
	store, err := app.OpenApprovals(ctx, cfg.Approvals)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newEventsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "读取事件日志",
	}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "输出最近的 n 条事件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.remote() {
				client, err := opts.client()
				if err != nil {
					return err
				}
				events, err := client.TailEvents(cmd.Context(), n)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), events)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			events, err := tailFile(cfg.EventLog.Path, n)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), events)
		},
	}
	tail.Flags().IntVarP(&n, "lines", "n", 20, "事件条数")
	cmd.AddCommand(tail)
	return cmd
}

// tailFile 只读地扫描事件日志，不创建文件。
func tailFile(path string, n int) ([]eventlog.Envelope, error) {
	if n <= 0 {
		return []eventlog.Envelope{}, nil
	}
	var all []eventlog.Envelope
	err := eventlog.ReadFile(path, func(env eventlog.Envelope) error {
		all = append(all, env)
		if len(all) > n {
			all = all[1:]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = []eventlog.Envelope{}
	}
	return all, nil
}

func newAgentsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "列出已注册的 agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.remote() {
				client, err := opts.client()
				if err != nil {
					return err
				}
				agents, err := client.Agents(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), agents)
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			core, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer core.Close()
			return printJSON(cmd.OutOrStdout(), core.Registry.Describe())
		},
	}
}
