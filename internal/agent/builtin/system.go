package builtin

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"Jarvis-Orchestrator/internal/agent"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/pkg/logger"
)

// Approver 在运行时向用户请求一次性许可。
type Approver interface {
	RequestApproval(ctx context.Context, message string) bool
}

// Runner 执行主机命令。
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// RunnerFunc 允许普通函数实现 Runner。
type RunnerFunc func(ctx context.Context, name string, args ...string) error

// Run 实现 Runner。
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) error {
	return f(ctx, name, args...)
}

// ExecRunner 通过 os/exec 执行命令。
type ExecRunner struct{}

// Run 实现 Runner。
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeProviderFault, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// DryRunner 只记录命令，不执行。
type DryRunner struct{}

// Run 实现 Runner。
func (DryRunner) Run(_ context.Context, name string, args ...string) error {
	logger.Named("agent.system").Info("dry-run 命令", slog.String("cmd", name), slog.Any("args", args))
	return nil
}

type systemOp struct {
	prompt  string
	denied  string
	done    string
	command []string
	apply   func(*System)
}

// System 是高风险的主机操作提供方，每次执行都需要运行时许可。
type System struct {
	approver Approver
	runner   Runner
	radio    *Radio
	ops      map[string]systemOp
}

// NewSystem 创建 system_agent。runner 为 nil 时使用 DryRunner。
func NewSystem(approver Approver, runner Runner, radio *Radio) *System {
	if runner == nil {
		runner = DryRunner{}
	}
	if radio == nil {
		radio = NewRadio(false)
	}
	return &System{
		approver: approver,
		runner:   runner,
		radio:    radio,
		ops: map[string]systemOp{
			"enable_wifi": {
				prompt:  "Allow Jarvis to enable WiFi?",
				denied:  "User denied enabling WiFi",
				done:    "WiFi enabled",
				command: []string{"nmcli", "radio", "wifi", "on"},
				apply:   func(s *System) { s.radio.Set(true) },
			},
			"disable_wifi": {
				prompt:  "Allow Jarvis to disable WiFi?",
				denied:  "User denied disabling WiFi",
				done:    "WiFi disabled",
				command: []string{"nmcli", "radio", "wifi", "off"},
				apply:   func(s *System) { s.radio.Set(false) },
			},
			"shutdown": {
				prompt:  "Confirm shutdown of this machine?",
				denied:  "Shutdown cancelled",
				done:    "Shutting down",
				command: []string{"systemctl", "poweroff"},
			},
			"reboot": {
				prompt:  "Confirm reboot of this machine?",
				denied:  "Reboot cancelled",
				done:    "Rebooting",
				command: []string{"systemctl", "reboot"},
			},
		},
	}
}

func (s *System) Name() string { return "system_agent" }

func (s *System) Risk() intent.RiskTier { return intent.RiskHigh }

func (s *System) Priority() int { return 10 }

// CanHandle 只识别 enable_wifi、disable_wifi、shutdown、reboot。
func (s *System) CanHandle(in intent.Intent) (bool, error) {
	_, ok := s.ops[in.Name]
	return ok, nil
}

// CheckPrecondition 在 Wi-Fi 关闭时要求先由自身完成 enable_wifi。
func (s *System) CheckPrecondition(_ context.Context, in intent.Intent) agent.Precondition {
	if in.Name != "enable_wifi" || s.radio.Enabled() {
		return agent.Satisfied
	}
	return agent.Precondition{
		OK:     false,
		Reason: "wifi_disabled",
		Requires: &agent.Requirement{
			Agent:  s.Name(),
			Intent: intent.Intent{Name: "enable_wifi"},
		},
	}
}

// Perform 请求许可后执行对应命令。
func (s *System) Perform(ctx context.Context, in intent.Intent) agent.Outcome {
	op, ok := s.ops[in.Name]
	if !ok {
		return agent.Fail("Unknown action")
	}
	if s.approver == nil || !s.approver.RequestApproval(ctx, op.prompt) {
		return agent.Fail(op.denied)
	}
	if err := s.runner.Run(ctx, op.command[0], op.command[1:]...); err != nil {
		return agent.Fail(xerrors.MessageOf(err))
	}
	if op.apply != nil {
		op.apply(s)
	}
	return agent.Outcome{OK: true, Message: op.done}
}

// Execute 将动作转换为意图并复用 Perform。
func (s *System) Execute(ctx context.Context, action string, args map[string]any) (map[string]any, error) {
	if _, ok := s.ops[action]; !ok {
		return nil, agent.UnknownAction(action)
	}
	out := s.Perform(ctx, intent.Intent{Name: action, Entities: intent.CloneArgs(args)})
	if !out.OK {
		return nil, xerrors.New(xerrors.CodeProviderFault, out.Message)
	}
	return map[string]any{"ok": true, "message": out.Message}, nil
}
