package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	xerrors "Jarvis-Orchestrator/internal/errors"
)

// Confirmer 在运行时向用户请求一次性确认。
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// ConfirmerFunc 允许普通函数实现 Confirmer。
type ConfirmerFunc func(ctx context.Context, message string) (bool, error)

// Confirm 实现 Confirmer。
func (f ConfirmerFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}

var yesWords = map[string]struct{}{
	"yes": {}, "yeah": {}, "y": {}, "confirm": {}, "ok": {}, "sure": {},
}

// IsAffirmative 判断回答是否为肯定词。
func IsAffirmative(reply string) bool {
	_, ok := yesWords[strings.ToLower(strings.TrimSpace(reply))]
	return ok
}

// PromptConfirmer 通过文本输入输出询问用户，接受 yes/yeah/y/confirm/ok/sure。
type PromptConfirmer struct {
	mu     sync.Mutex
	reader *bufio.Reader
	out    io.Writer
}

// NewPromptConfirmer 创建基于 io.Reader/io.Writer 的确认器。
func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	if out == nil {
		out = io.Discard
	}
	return &PromptConfirmer{reader: bufio.NewReader(in), out: out}
}

// Confirm 输出提示并读取一行回答。
func (p *PromptConfirmer) Confirm(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintf(p.out, "%s (yes/no): ", message); err != nil {
		return false, xerrors.Wrap(xerrors.CodeInputFailure, err, "")
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return false, xerrors.Wrap(xerrors.CodeInputFailure, err, "")
	}
	return IsAffirmative(line), nil
}
