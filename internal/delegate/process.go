package delegate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// waitDelay 限制进程被终止后等待其输出管道关闭的时间。
const waitDelay = time.Second

// runProcess 启动子进程，把 body 写入 stdin 后关闭，读取全部 stdout。
func (d *Delegator) runProcess(ctx context.Context, t ProcessTarget, body []byte, timeout time.Duration) (*Result, error) {
	cmd := exec.CommandContext(ctx, t.Command, t.Args...)
	if t.Dir != "" {
		cmd.Dir = t.Dir
	}
	if env := t.env(os.Environ()); env != nil {
		cmd.Env = env
	}
	cmd.Stdin = bytes.NewReader(body)
	cmd.WaitDelay = waitDelay

	stdout := &limitedBuffer{limit: d.maxOutputBytes}
	stderr := &limitedBuffer{limit: maxDetailBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		f := newFailure(CodeTimeout, t.Server, ModeProcess, ctx.Err(),
			fmt.Sprintf("进程在 %s 内未完成", timeout))
		f.Detail = strings.TrimSpace(stderr.String())
		return nil, f
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			f := newFailure(CodeExecFailed, t.Server, ModeProcess, err, "进程以非零状态退出").
				withExitCode(exitErr.ExitCode())
			f.Detail = strings.TrimSpace(stderr.String())
			return nil, f
		}
		// 启动失败：命令不存在、无执行权限或调用方取消。
		return nil, newFailure(CodeExecFailed, t.Server, ModeProcess, err, "无法执行进程").withExitCode(-1)
	}
	if stdout.overflow {
		return nil, newFailure(CodeExecFailed, t.Server, ModeProcess, nil,
			fmt.Sprintf("进程输出超过 %d 字节上限", d.maxOutputBytes)).withExitCode(0)
	}

	return &Result{
		Server: t.Server,
		Mode:   ModeProcess,
		Output: stdout.String(),
	}, nil
}

// limitedBuffer 超过上限后丢弃数据并记录溢出，Write 从不返回错误。
type limitedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.buf.Write(p)
	}
	remaining := b.limit - int64(b.buf.Len())
	if remaining <= 0 {
		b.overflow = b.overflow || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		b.overflow = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
