package led

import (
	"os"
	"strings"

	"github.com/smazurov/rtspcam/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boards maps a device tree model substring to the LEDs of that board.
var boards = []struct {
	model string
	leds  map[string]string
}{
	{"NanoPC-T6", map[string]string{"user": "usr_led", "system": "sys_led"}},
	{"Orange Pi", map[string]string{"blue": "blue_led", "green": "green_led"}},
	{"Raspberry Pi", map[string]string{"act": "ACT"}},
}

// New returns the controller for the running board, or a no-op
// controller when the board is unknown.
func New(logger logging.Logger) Controller {
	return newFor(detectBoard(deviceTreeModelPath), sysfsLEDPath, logger)
}

func newFor(model, root string, logger logging.Logger) Controller {
	for _, b := range boards {
		if strings.Contains(model, b.model) {
			logger.Info("Using sysfs LED controller", "board_model", model)
			return newSysfs(root, b.leds)
		}
	}
	logger.Info("No LED support detected", "board_model", model)
	return newNoop(logger)
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated.
	return strings.TrimRight(string(data), "\x00")
}
