package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"Jarvis-Orchestrator/internal/config"
	"Jarvis-Orchestrator/pkg/logger"
	"Jarvis-Orchestrator/sdk/go/jarvis"
)

type globalOptions struct {
	configPath string
	server     string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "jarvisctl",
		Short:         "jarvisctl - operate the Jarvis orchestrator",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("加载 .env 失败: %w", err)
			}
			if opts.server == "" {
				opts.server = os.Getenv("JARVIS_SERVER")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "配置文件路径，默认读取 $JARVIS_CONFIG 或 configs/jarvis.yaml")
	root.PersistentFlags().StringVar(&opts.server, "server", "", "jarvisd 地址，例如 http://localhost:8080；为空时直接操作本地数据")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "输出 info 级别日志")

	root.AddCommand(
		newRunCmd(opts),
		newDelegateCmd(opts),
		newSubmitCmd(opts),
		newConfirmCmd(opts),
		newStatsCmd(opts),
		newApprovalsCmd(opts),
		newEventsCmd(opts),
		newAgentsCmd(opts),
	)
	return root
}

// loadConfig 读取配置并初始化日志。未显式指定且默认文件不存在时使用内置默认值。
func (o *globalOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	explicit := path != ""
	if !explicit {
		path = config.PathFromEnv()
		explicit = os.Getenv(config.EnvConfigPath) != ""
	}

	var cfg *config.Config
	if _, err := os.Stat(path); err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		cfg = config.Default(".")
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if !o.verbose {
		cfg.Logging.Level = "warn"
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *globalOptions) client() (*jarvis.Client, error) {
	if strings.TrimSpace(o.server) == "" {
		return nil, errors.New("需要通过 --server 或 JARVIS_SERVER 指定 jarvisd 地址")
	}
	return jarvis.NewClient(o.server, nil)
}

func (o *globalOptions) remote() bool {
	return strings.TrimSpace(o.server) != ""
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
