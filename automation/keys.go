package automation

import "strings"

// keyAliases maps the key names computer-use models emit to DOM key names.
var keyAliases = map[string]string{
	"ctrl":       "Control",
	"control":    "Control",
	"cmd":        "Meta",
	"command":    "Meta",
	"meta":       "Meta",
	"super":      "Meta",
	"alt":        "Alt",
	"option":     "Alt",
	"shift":      "Shift",
	"enter":      "Enter",
	"return":     "Enter",
	"tab":        "Tab",
	"esc":        "Escape",
	"escape":     "Escape",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"del":        "Delete",
	"space":      " ",
	"up":         "ArrowUp",
	"arrowup":    "ArrowUp",
	"down":       "ArrowDown",
	"arrowdown":  "ArrowDown",
	"left":       "ArrowLeft",
	"arrowleft":  "ArrowLeft",
	"right":      "ArrowRight",
	"arrowright": "ArrowRight",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pagedown":   "PageDown",
}

func canonicalKey(name string) string {
	trimmed := strings.TrimSpace(name)
	if alias, ok := keyAliases[strings.ToLower(trimmed)]; ok {
		return alias
	}
	return trimmed
}

func isModifier(key string) bool {
	switch key {
	case "Control", "Meta", "Alt", "Shift":
		return true
	}
	return false
}

// splitChord separates modifiers from the final key of a combination. A chord
// made only of modifiers presses the last one as the key.
func splitChord(keys []string) (mods []string, key string) {
	canon := make([]string, 0, len(keys))
	for _, k := range keys {
		if c := canonicalKey(k); c != "" {
			canon = append(canon, c)
		}
	}
	for i, k := range canon {
		if i < len(canon)-1 && isModifier(k) {
			mods = append(mods, k)
			continue
		}
		if i == len(canon)-1 {
			key = k
		}
	}
	return mods, key
}
