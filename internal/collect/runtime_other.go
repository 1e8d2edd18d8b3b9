//go:build !windows

package collect

import (
	"os/exec"
)

func FindRuntime(runtime string) (string, error) {
	return exec.LookPath(runtime)
}
