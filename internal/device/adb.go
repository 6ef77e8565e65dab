package device

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"screenpilot/internal/model"
)

// ADB drives a device through the adb binary. Every operation is a
// short-lived `adb shell ...` invocation; the connection itself is
// managed by the adb server, not by this process.
type ADB struct {
	// Binary is the adb executable, "adb" when empty.
	Binary string
	// Serial selects a device with -s when more than one is attached.
	Serial string
	// DumpPath is where uiautomator writes the UI hierarchy on-device.
	DumpPath string
}

// NewADB returns an ADB controller for the given device serial. An
// empty serial uses whatever single device the adb server knows about.
func NewADB(serial string) *ADB {
	return &ADB{Binary: "adb", Serial: serial, DumpPath: "/sdcard/ui_dump.xml"}
}

func (a *ADB) shell(ctx context.Context, args ...string) (string, error) {
	bin := a.Binary
	if bin == "" {
		bin = "adb"
	}
	full := make([]string, 0, len(args)+3)
	if a.Serial != "" {
		full = append(full, "-s", a.Serial)
	}
	full = append(full, "shell")
	full = append(full, args...)

	out, err := exec.CommandContext(ctx, bin, full...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("adb shell %s: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

var (
	focusRe   = regexp.MustCompile(`mCurrentFocus=.*?\s([\w.]+)/`)
	uiTextRe  = regexp.MustCompile(`text="([^"]+)"`)
	levelRe   = regexp.MustCompile(`level:\s*(\d+)`)
	acPowerRe = regexp.MustCompile(`(AC|USB|Wireless) powered:\s*true`)
)

// Observe captures foreground app, visible text and battery state in
// one snapshot.
func (a *ADB) Observe(ctx context.Context) (model.Observation, error) {
	app, err := a.foregroundApp(ctx)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: %v", model.ErrObservationFailed, err)
	}
	text, err := a.screenText(ctx)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: %v", model.ErrObservationFailed, err)
	}
	level, charging, err := a.Battery(ctx)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: %v", model.ErrObservationFailed, err)
	}

	return model.Observation{
		Timestamp:  time.Now().UTC(),
		App:        app,
		ScreenText: text,
		Battery:    level,
		Charging:   charging,
	}, nil
}

func (a *ADB) foregroundApp(ctx context.Context) (string, error) {
	out, err := a.shell(ctx, "dumpsys", "window", "windows")
	if err != nil {
		return "", err
	}
	m := focusRe.FindStringSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("no focused window in dumpsys output")
	}
	return m[1], nil
}

// screenText dumps the UI hierarchy and flattens the visible text
// attributes into one newline-joined string.
func (a *ADB) screenText(ctx context.Context) (string, error) {
	if _, err := a.shell(ctx, "uiautomator", "dump", a.DumpPath); err != nil {
		return "", err
	}
	xml, err := a.shell(ctx, "cat", a.DumpPath)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, m := range uiTextRe.FindAllStringSubmatch(xml, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// Battery returns the charge level and charging state from dumpsys.
func (a *ADB) Battery(ctx context.Context) (int, bool, error) {
	out, err := a.shell(ctx, "dumpsys", "battery")
	if err != nil {
		return 0, false, err
	}
	m := levelRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false, fmt.Errorf("no battery level in dumpsys output")
	}
	level, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false, fmt.Errorf("parse battery level %q: %w", m[1], err)
	}
	return level, acPowerRe.MatchString(out), nil
}

// Dispatch performs one action with `input`, `am`, `monkey`, or a
// settings put, depending on the verb.
func (a *ADB) Dispatch(ctx context.Context, action model.Action) (Outcome, error) {
	switch action.Verb {
	case model.VerbTap:
		x, y, err := intPair(action, "x", "y")
		if err != nil {
			return Outcome{}, err
		}
		return a.input(ctx, "tap", strconv.Itoa(x), strconv.Itoa(y))

	case model.VerbSwipe:
		x1, y1, err := intPair(action, "x1", "y1")
		if err != nil {
			return Outcome{}, err
		}
		x2, y2, err := intPair(action, "x2", "y2")
		if err != nil {
			return Outcome{}, err
		}
		dur := intParam(action, "duration_ms", 300)
		return a.input(ctx, "swipe",
			strconv.Itoa(x1), strconv.Itoa(y1),
			strconv.Itoa(x2), strconv.Itoa(y2), strconv.Itoa(dur))

	case model.VerbType:
		text, ok := action.Params["text"].(string)
		if !ok || text == "" {
			return Outcome{}, fmt.Errorf("type action missing text param")
		}
		return a.input(ctx, "text", escapeText(text))

	case model.VerbPressKey:
		key, ok := action.Params["key"].(string)
		if !ok || key == "" {
			return Outcome{}, fmt.Errorf("press_key action missing key param")
		}
		return a.input(ctx, "keyevent", "KEYCODE_"+strings.ToUpper(key))

	case model.VerbBack:
		return a.input(ctx, "keyevent", "KEYCODE_BACK")

	case model.VerbHome:
		return a.input(ctx, "keyevent", "KEYCODE_HOME")

	case model.VerbScroll:
		dir, _ := action.Params["direction"].(string)
		return a.scroll(ctx, dir)

	case model.VerbLaunch:
		if action.App == "" {
			return Outcome{}, fmt.Errorf("launch action missing app")
		}
		_, err := a.shell(ctx, "monkey", "-p", action.App, "-c", "android.intent.category.LAUNCHER", "1")
		if err != nil {
			return Outcome{Success: false, Detail: err.Error()}, nil
		}
		return Outcome{Success: true, Detail: "launched " + action.App}, nil

	case model.VerbReadScreen:
		// The observation already carries screen text; a read_screen
		// action just confirms the current contents.
		text, err := a.screenText(ctx)
		if err != nil {
			return Outcome{Success: false, Detail: err.Error()}, nil
		}
		return Outcome{Success: true, Detail: text}, nil

	case model.VerbSettingToggle:
		ns, _ := action.Params["namespace"].(string)
		key, _ := action.Params["key"].(string)
		value, _ := action.Params["value"].(string)
		if ns == "" || key == "" {
			return Outcome{}, fmt.Errorf("setting_toggle action missing namespace or key")
		}
		if _, err := a.shell(ctx, "settings", "put", ns, key, value); err != nil {
			return Outcome{Success: false, Detail: err.Error()}, nil
		}
		return Outcome{Success: true, Detail: fmt.Sprintf("set %s/%s=%s", ns, key, value)}, nil

	default:
		return Outcome{}, fmt.Errorf("unknown verb %q", action.Verb)
	}
}

func (a *ADB) input(ctx context.Context, args ...string) (Outcome, error) {
	full := append([]string{"input"}, args...)
	if _, err := a.shell(ctx, full...); err != nil {
		return Outcome{Success: false, Detail: err.Error()}, nil
	}
	return Outcome{Success: true, Detail: "input " + args[0]}, nil
}

// scroll translates a direction into a mid-screen swipe. Coordinates
// assume a 1080x1920 layout; callers with exotic screens pass explicit
// swipe actions instead.
func (a *ADB) scroll(ctx context.Context, direction string) (Outcome, error) {
	const x, top, bottom = 540, 600, 1400
	switch direction {
	case "up":
		return a.input(ctx, "swipe", strconv.Itoa(x), strconv.Itoa(top), strconv.Itoa(x), strconv.Itoa(bottom), "300")
	case "down", "":
		return a.input(ctx, "swipe", strconv.Itoa(x), strconv.Itoa(bottom), strconv.Itoa(x), strconv.Itoa(top), "300")
	default:
		return Outcome{}, fmt.Errorf("unknown scroll direction %q", direction)
	}
}

// intPair pulls two required integer params.
func intPair(action model.Action, k1, k2 string) (int, int, error) {
	a, ok1 := numParam(action, k1)
	b, ok2 := numParam(action, k2)
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("%s action missing %s/%s params", action.Verb, k1, k2)
	}
	return a, b, nil
}

func intParam(action model.Action, key string, fallback int) int {
	if v, ok := numParam(action, key); ok {
		return v
	}
	return fallback
}

// numParam accepts both float64 (JSON decoding) and int values.
func numParam(action model.Action, key string) (int, bool) {
	switch v := action.Params[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// escapeText prepares a string for `input text`, which treats spaces
// as argument separators and %s as a literal space marker.
func escapeText(text string) string {
	return strings.ReplaceAll(text, " ", "%s")
}
