package input

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"screenlink/internal/core/ports"
)

// ExecDriver injects pointer and key events through the platform's command
// line tooling: xdotool on Linux, cliclick plus osascript on macOS, and
// PowerShell on Windows. Keys arrive as web KeyboardEvent names and are
// translated per platform.
type ExecDriver struct {
	goos string
	run  func(name string, args ...string) error

	checkOnce sync.Once
	toolOK    bool

	logger *zap.SugaredLogger
}

// NewExecDriver creates a driver for the current platform.
func NewExecDriver(logger *zap.SugaredLogger) *ExecDriver {
	d := &ExecDriver{goos: runtime.GOOS, logger: logger}
	d.run = func(name string, args ...string) error {
		out, err := exec.Command(name, args...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s failed: %w (output: %s)", name, err, out)
		}
		return nil
	}
	return d
}

// available checks for the platform tool once and logs installation hints.
func (d *ExecDriver) available() bool {
	d.checkOnce.Do(func() {
		var tool, hint string
		switch d.goos {
		case "linux":
			tool, hint = "xdotool", "install with: sudo apt install xdotool"
		case "darwin":
			tool, hint = "cliclick", "install with: brew install cliclick, then grant Accessibility permissions"
		case "windows":
			tool = "powershell"
		default:
			d.logger.Warnw("input injection not supported", "os", d.goos)
			return
		}
		if _, err := exec.LookPath(tool); err != nil {
			d.logger.Warnw("input tool not found", "tool", tool, "hint", hint)
			return
		}
		d.toolOK = true
	})
	return d.toolOK
}

func (d *ExecDriver) MouseMove(x, y int) error {
	if !d.available() {
		return nil
	}
	switch d.goos {
	case "linux":
		return d.run("xdotool", "mousemove", itoa(x), itoa(y))
	case "darwin":
		return d.run("cliclick", fmt.Sprintf("m:%d,%d", x, y))
	case "windows":
		return d.powershell(windowsMouseScript(x, y, ""))
	}
	return nil
}

func (d *ExecDriver) MouseDown(x, y int, button ports.MouseButton) error {
	if !d.available() {
		return nil
	}
	switch d.goos {
	case "linux":
		if err := d.run("xdotool", "mousemove", itoa(x), itoa(y)); err != nil {
			return err
		}
		return d.run("xdotool", "mousedown", xdoButton(button))
	case "darwin":
		return d.run("cliclick", fmt.Sprintf("dd:%d,%d", x, y))
	case "windows":
		return d.powershell(windowsMouseScript(x, y, winDownFlag(button)))
	}
	return nil
}

func (d *ExecDriver) MouseUp(x, y int, button ports.MouseButton) error {
	if !d.available() {
		return nil
	}
	switch d.goos {
	case "linux":
		if err := d.run("xdotool", "mousemove", itoa(x), itoa(y)); err != nil {
			return err
		}
		return d.run("xdotool", "mouseup", xdoButton(button))
	case "darwin":
		return d.run("cliclick", fmt.Sprintf("du:%d,%d", x, y))
	case "windows":
		return d.powershell(windowsMouseScript(x, y, winUpFlag(button)))
	}
	return nil
}

func (d *ExecDriver) Click(x, y int, button ports.MouseButton) error {
	if !d.available() {
		return nil
	}
	switch d.goos {
	case "linux":
		if err := d.run("xdotool", "mousemove", itoa(x), itoa(y)); err != nil {
			return err
		}
		return d.run("xdotool", "click", xdoButton(button))
	case "darwin":
		if button == ports.MouseRight {
			return d.run("cliclick", fmt.Sprintf("rc:%d,%d", x, y))
		}
		return d.run("cliclick", fmt.Sprintf("c:%d,%d", x, y))
	case "windows":
		if err := d.powershell(windowsMouseScript(x, y, winDownFlag(button))); err != nil {
			return err
		}
		return d.powershell(windowsMouseScript(x, y, winUpFlag(button)))
	}
	return nil
}

func (d *ExecDriver) DoubleClick(x, y int, button ports.MouseButton) error {
	if !d.available() {
		return nil
	}
	switch d.goos {
	case "linux":
		if err := d.run("xdotool", "mousemove", itoa(x), itoa(y)); err != nil {
			return err
		}
		return d.run("xdotool", "click", "--repeat", "2", xdoButton(button))
	case "darwin":
		return d.run("cliclick", fmt.Sprintf("dc:%d,%d", x, y))
	default:
		if err := d.Click(x, y, button); err != nil {
			return err
		}
		return d.Click(x, y, button)
	}
}

// Scroll scrolls by whole wheel clicks at the given position. Positive dy
// scrolls up.
func (d *ExecDriver) Scroll(x, y, dx, dy int) error {
	if !d.available() {
		return nil
	}
	switch d.goos {
	case "linux":
		if err := d.run("xdotool", "mousemove", itoa(x), itoa(y)); err != nil {
			return err
		}
		if err := d.xdoScroll(dy, "4", "5"); err != nil {
			return err
		}
		return d.xdoScroll(dx, "7", "6")
	case "darwin":
		// cliclick has no scroll command.
		return d.unsupported("scroll")
	case "windows":
		return d.powershell(windowsWheelScript(x, y, dy*120))
	}
	return nil
}

func (d *ExecDriver) xdoScroll(amount int, positive, negative string) error {
	button := positive
	if amount < 0 {
		button = negative
		amount = -amount
	}
	for i := 0; i < amount; i++ {
		if err := d.run("xdotool", "click", button); err != nil {
			return err
		}
	}
	return nil
}

func (d *ExecDriver) KeyDown(key string) error {
	if !d.available() {
		return nil
	}
	switch d.goos {
	case "linux":
		return d.run("xdotool", "keydown", xdoKey(key))
	case "darwin":
		// osascript cannot hold a key; emit the full keystroke on down.
		return d.darwinKeystroke(key)
	case "windows":
		return d.powershell(windowsSendKeysScript(key))
	}
	return nil
}

func (d *ExecDriver) KeyUp(key string) error {
	if !d.available() {
		return nil
	}
	switch d.goos {
	case "linux":
		return d.run("xdotool", "keyup", xdoKey(key))
	default:
		// Keystroke already completed on KeyDown.
		return nil
	}
}

func (d *ExecDriver) powershell(script string) error {
	return d.run("powershell", "-NoProfile", "-Command", script)
}

func (d *ExecDriver) unsupported(action string) error {
	d.logger.Debugw("input action not supported on platform", "action", action, "os", d.goos)
	return nil
}

func (d *ExecDriver) darwinKeystroke(key string) error {
	if code, ok := darwinKeyCodes[key]; ok {
		return d.run("osascript", "-e",
			fmt.Sprintf(`tell application "System Events" to key code %d`, code))
	}
	if len([]rune(key)) == 1 {
		return d.run("osascript", "-e",
			fmt.Sprintf(`tell application "System Events" to keystroke %q`, key))
	}
	d.logger.Debugw("unmapped key ignored", "key", key, "os", d.goos)
	return nil
}

func itoa(v int) string { return fmt.Sprintf("%d", v) }

func xdoButton(button ports.MouseButton) string {
	switch button {
	case ports.MouseMiddle:
		return "2"
	case ports.MouseRight:
		return "3"
	default:
		return "1"
	}
}

func winDownFlag(button ports.MouseButton) string {
	switch button {
	case ports.MouseMiddle:
		return "0x0020"
	case ports.MouseRight:
		return "0x0008"
	default:
		return "0x0002"
	}
}

func winUpFlag(button ports.MouseButton) string {
	switch button {
	case ports.MouseMiddle:
		return "0x0040"
	case ports.MouseRight:
		return "0x0010"
	default:
		return "0x0004"
	}
}

// xdoKey translates web KeyboardEvent names to xdotool keysyms. Unlisted
// names pass through unchanged; single characters are already valid keysyms.
func xdoKey(key string) string {
	if mapped, ok := xdoKeysyms[key]; ok {
		return mapped
	}
	return key
}

var xdoKeysyms = map[string]string{
	"Enter":       "Return",
	"Backspace":   "BackSpace",
	"Escape":      "Escape",
	"Tab":         "Tab",
	"Delete":      "Delete",
	"Home":        "Home",
	"End":         "End",
	"PageUp":      "Page_Up",
	"PageDown":    "Page_Down",
	"ArrowUp":     "Up",
	"ArrowDown":   "Down",
	"ArrowLeft":   "Left",
	"ArrowRight":  "Right",
	"Shift":       "shift",
	"Control":     "ctrl",
	"Alt":         "alt",
	"Meta":        "super",
	"CapsLock":    "Caps_Lock",
	"Insert":      "Insert",
	"PrintScreen": "Print",
	" ":           "space",
	"F1":          "F1",
	"F2":          "F2",
	"F3":          "F3",
	"F4":          "F4",
	"F5":          "F5",
	"F6":          "F6",
	"F7":          "F7",
	"F8":          "F8",
	"F9":          "F9",
	"F10":         "F10",
	"F11":         "F11",
	"F12":         "F12",
}

var darwinKeyCodes = map[string]int{
	"Enter":      36,
	"Tab":        48,
	"Backspace":  51,
	"Escape":     53,
	"ArrowUp":    126,
	"ArrowDown":  125,
	"ArrowLeft":  123,
	"ArrowRight": 124,
	"Delete":     117,
	"Home":       115,
	"End":        119,
	"PageUp":     116,
	"PageDown":   121,
	" ":          49,
}

func windowsMouseScript(x, y int, mouseEventFlag string) string {
	base := fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.Cursor]::Position = New-Object System.Drawing.Point(%d, %d)
`, x, y)
	if mouseEventFlag == "" {
		return base
	}
	return base + fmt.Sprintf(`$signature = @"
[DllImport("user32.dll")]
public static extern void mouse_event(int dwFlags, int dx, int dy, int dwData, int dwExtraInfo);
"@
$mouse = Add-Type -MemberDefinition $signature -Name "MouseEvent" -Namespace "Win32" -PassThru
$mouse::mouse_event(%s, 0, 0, 0, 0)
`, mouseEventFlag)
}

func windowsWheelScript(x, y, delta int) string {
	return fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.Cursor]::Position = New-Object System.Drawing.Point(%d, %d)
$signature = @"
[DllImport("user32.dll")]
public static extern void mouse_event(int dwFlags, int dx, int dy, int dwData, int dwExtraInfo);
"@
$mouse = Add-Type -MemberDefinition $signature -Name "MouseEvent" -Namespace "Win32" -PassThru
$mouse::mouse_event(0x0800, 0, 0, %d, 0)
`, x, y, delta)
}

var windowsSendKeys = map[string]string{
	"Enter":      "{ENTER}",
	"Tab":        "{TAB}",
	"Backspace":  "{BACKSPACE}",
	"Escape":     "{ESC}",
	"Delete":     "{DELETE}",
	"Home":       "{HOME}",
	"End":        "{END}",
	"PageUp":     "{PGUP}",
	"PageDown":   "{PGDN}",
	"ArrowUp":    "{UP}",
	"ArrowDown":  "{DOWN}",
	"ArrowLeft":  "{LEFT}",
	"ArrowRight": "{RIGHT}",
	"F1":         "{F1}",
	"F2":         "{F2}",
	"F3":         "{F3}",
	"F4":         "{F4}",
	"F5":         "{F5}",
	"F6":         "{F6}",
	"F7":         "{F7}",
	"F8":         "{F8}",
	"F9":         "{F9}",
	"F10":        "{F10}",
	"F11":        "{F11}",
	"F12":        "{F12}",
	" ":          " ",
}

func windowsSendKeysScript(key string) string {
	send, ok := windowsSendKeys[key]
	if !ok {
		send = key
	}
	return fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
[System.Windows.Forms.SendKeys]::SendWait(%q)
`, send)
}
