//go:build !windows

package capture

import "os/exec"

func defaultCommand(string) (*exec.Cmd, error) {
	return nil, ErrUnsupported
}

func Available() error {
	return ErrUnsupported
}

const simulatedScript = `echo RECORDING_STARTED
read _
head -c 32044 /dev/zero > "$1" || exit 3
echo "RECORDING_SAVED:$1"
`

// SimulatedCommand stands in for the Windows recorder with a shell process
// that speaks the same protocol and saves a block of silence.
func SimulatedCommand(outputPath string) (*exec.Cmd, error) {
	return exec.Command("sh", "-c", simulatedScript, "voiceai-recorder", outputPath), nil
}
