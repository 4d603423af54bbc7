// Package sandbox runs untrusted python snippets in a throwaway subprocess.
// The child applies its own CPU/memory/file-size limits and prints exactly
// one JSON line; the parent enforces a wall-clock kill and treats anything
// malformed as a failure.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Result is the child's verdict. A nil Result/Error follows the JSON null.
type Result struct {
	Success bool    `json:"success"`
	Result  *string `json:"result"`
	Time    float64 `json:"time"`
	Error   *string `json:"error"`
}

type Runner struct {
	Python    string        // interpreter binary, default python3
	Timeout   time.Duration // wall clock, default 3s
	CPUSec    int           // RLIMIT_CPU seconds
	MemoryMB  int           // RLIMIT_AS megabytes
	MaxOutput int           // bytes of child stdout kept
}

func NewRunner(timeout time.Duration, cpuSec, memoryMB, maxOutput int) *Runner {
	return &Runner{
		Python:    "python3",
		Timeout:   timeout,
		CPUSec:    cpuSec,
		MemoryMB:  memoryMB,
		MaxOutput: maxOutput,
	}
}

// harness is the child program. It reads the snippet from stdin, drops to a
// restricted builtin set, applies resource limits, evals/execs the code and
// prints a single JSON line on stdout no matter what happens.
const harness = `
import sys, json, time, resource, builtins

CPU_SEC = int(sys.argv[1])
MEM_MB = int(sys.argv[2])

resource.setrlimit(resource.RLIMIT_CPU, (CPU_SEC, CPU_SEC))
resource.setrlimit(resource.RLIMIT_AS, (MEM_MB * 1024 * 1024, MEM_MB * 1024 * 1024))
resource.setrlimit(resource.RLIMIT_FSIZE, (64 * 1024, 64 * 1024))

ALLOWED = {
    "abs", "all", "any", "bin", "bool", "bytes", "chr", "dict", "divmod",
    "enumerate", "filter", "float", "format", "frozenset", "hash", "hex",
    "int", "isinstance", "issubclass", "iter", "len", "list", "map", "max",
    "min", "next", "oct", "ord", "pow", "print", "range", "repr", "reversed",
    "round", "set", "slice", "sorted", "str", "sum", "tuple", "zip",
    "True", "False", "None", "ValueError", "TypeError", "ZeroDivisionError",
    "Exception", "StopIteration", "KeyError", "IndexError",
}
safe_builtins = {name: getattr(builtins, name) for name in ALLOWED if hasattr(builtins, name)}
env = {"__builtins__": safe_builtins}

code = sys.stdin.read()
start = time.monotonic()
out = {"success": False, "result": None, "time": 0.0, "error": None}
try:
    try:
        value = eval(compile(code, "<sandbox>", "eval"), env)
    except SyntaxError:
        exec(compile(code, "<sandbox>", "exec"), env)
        value = env.get("result")
    out["success"] = True
    out["result"] = None if value is None else repr(value)
except BaseException as exc:
    out["error"] = "%s: %s" % (type(exc).__name__, exc)
out["time"] = round(time.monotonic() - start, 4)
sys.stdout.write(json.dumps(out) + "\n")
`

// Run executes code and always returns a Result; err is reserved for the
// parent's own failures (spawn problems), and even then the Result is a
// usable failure payload.
func (r *Runner) Run(ctx context.Context, code string) Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	python := r.Python
	if python == "" {
		python = "python3"
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, python, "-c", harness,
		fmt.Sprintf("%d", max(r.CPUSec, 1)), fmt.Sprintf("%d", max(r.MemoryMB, 16)))
	cmd.Stdin = strings.NewReader(code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Run the child in its own process group and kill the whole group on
	// timeout. Killing only the direct child leaves forked descendants
	// holding the output pipes, which would block Run past the deadline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = timeout / 2

	err := cmd.Run()
	elapsed := time.Since(start).Seconds()

	if ctx.Err() == context.DeadlineExceeded {
		return failure(fmt.Sprintf("execution timed out after %s", timeout), elapsed)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return failure("sandbox process failed: "+truncate(detail, 500), elapsed)
	}

	line := strings.TrimSpace(stdout.String())
	if idx := strings.LastIndexByte(line, '\n'); idx >= 0 {
		line = line[idx+1:]
	}
	var res Result
	if jsonErr := json.Unmarshal([]byte(line), &res); jsonErr != nil {
		return failure("sandbox produced unparsable output", elapsed)
	}

	if res.Result != nil && r.MaxOutput > 0 && len(*res.Result) > r.MaxOutput {
		trimmed := (*res.Result)[:r.MaxOutput] + "... (output truncated)"
		res.Result = &trimmed
	}
	return res
}

func failure(msg string, elapsed float64) Result {
	return Result{Success: false, Result: nil, Time: elapsed, Error: &msg}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
