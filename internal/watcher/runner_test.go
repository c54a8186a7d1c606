package watcher

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	sh := ExecRunner{Binary: "sh", Timeout: 5 * time.Second}

	t.Run("exit code and streams", func(t *testing.T) {
		res := sh.Run(context.Background(), "-c", "echo out; echo err >&2; exit 3")
		if res.Err != nil {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if res.ExitCode != 3 || res.Stdout != "out\n" || res.Stderr != "err\n" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		slow := ExecRunner{Binary: "sh", Timeout: 50 * time.Millisecond}
		res := slow.Run(context.Background(), "-c", "sleep 5")
		if res.Err == nil || res.ExitCode != -1 {
			t.Errorf("result = %+v, want timeout error", res)
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		res := ExecRunner{Binary: "definitely-not-openclaw-xyz"}.Run(context.Background(), "status")
		if res.Err == nil || res.ExitCode != -1 {
			t.Errorf("result = %+v, want spawn error", res)
		}
	})
}
