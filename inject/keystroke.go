package inject

import (
	"runtime"

	"github.com/micmonay/keybd_event"
)

// SystemKeystroker synthesizes the platform paste keystroke
// (Cmd+V on macOS, Ctrl+V elsewhere).
type SystemKeystroker struct{}

func (SystemKeystroker) Paste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}

// NoFocus is a Focus implementation for platforms without an accessibility
// bridge. It never finds a target, which routes delivery through the
// clipboard strategy.
type NoFocus struct{}

func (NoFocus) FocusedTarget() (Target, bool) { return nil, false }
func (NoFocus) Activate(string) error         { return nil }
func (NoFocus) FrontmostApp() string          { return "" }
