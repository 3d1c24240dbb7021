package confirm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter 向用户展示提示并返回一行回答。
type Prompter interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// PrompterFunc 允许普通函数实现 Prompter。
type PrompterFunc func(ctx context.Context, message string) (string, error)

// Prompt 实现 Prompter。
func (f PrompterFunc) Prompt(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// LinePrompter 基于行的控制台交互。
type LinePrompter struct {
	mu     sync.Mutex
	reader *bufio.Reader
	out    io.Writer
}

// NewLinePrompter 创建控制台提示器。
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	if out == nil {
		out = io.Discard
	}
	return &LinePrompter{reader: bufio.NewReader(in), out: out}
}

// Prompt 输出提示并读取一行。
func (p *LinePrompter) Prompt(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprint(p.out, message); err != nil {
		return "", err
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ScriptedPrompter 按顺序返回预置回答，用尽后返回 io.EOF。
type ScriptedPrompter struct {
	mu      sync.Mutex
	answers []string
	asked   []string
}

// NewScriptedPrompter 创建脚本提示器。
func NewScriptedPrompter(answers ...string) *ScriptedPrompter {
	return &ScriptedPrompter{answers: append([]string(nil), answers...)}
}

// Prompt 实现 Prompter。
func (p *ScriptedPrompter) Prompt(_ context.Context, message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asked = append(p.asked, message)
	if len(p.answers) == 0 {
		return "", io.EOF
	}
	next := p.answers[0]
	p.answers = p.answers[1:]
	return next, nil
}

// Asked 返回已展示过的提示。
func (p *ScriptedPrompter) Asked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.asked...)
}
