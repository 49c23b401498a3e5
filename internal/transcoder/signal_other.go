//go:build !unix

package transcoder

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// terminate kills the process; there is no graceful signal to send here.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
