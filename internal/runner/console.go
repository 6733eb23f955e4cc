package runner

import (
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"
)

const truncatedMarker = "[output truncated]"

// capture collects console.log lines up to a byte limit.
type capture struct {
	lines     []string
	size      int
	limit     int
	truncated bool
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) add(line string) {
	if c.truncated {
		return
	}
	if c.size+len(line) > c.limit {
		room := c.limit - c.size
		for room > 0 && !utf8.RuneStart(line[room]) {
			room--
		}
		if room > 0 {
			c.lines = append(c.lines, line[:room])
		}
		c.lines = append(c.lines, truncatedMarker)
		c.truncated = true
		return
	}
	c.lines = append(c.lines, line)
	c.size += len(line) + 1
}

func (c *capture) String() string {
	return strings.Join(c.lines, "\n")
}

// installConsole binds a console object whose log method writes to out. The
// other console methods exist but discard their arguments.
func installConsole(vm *goja.Runtime, out *capture) error {
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return errNoJSON
	}

	console := vm.NewObject()
	if err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = formatValue(vm, stringify, arg)
		}
		out.add(strings.Join(parts, " "))
		return goja.Undefined()
	}); err != nil {
		return err
	}

	discard := func(goja.FunctionCall) goja.Value { return goja.Undefined() }
	for _, name := range []string{"info", "warn", "error", "debug"} {
		if err := console.Set(name, discard); err != nil {
			return err
		}
	}
	return vm.Set("console", console)
}

// formatValue renders one console.log argument: strings raw, objects and
// arrays as indented JSON, everything else by JS string coercion.
func formatValue(vm *goja.Runtime, stringify goja.Callable, v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if sym, ok := v.(*goja.Symbol); ok {
		return "Symbol(" + sym.String() + ")"
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, isFunc := goja.AssertFunction(obj); isFunc {
		return obj.String()
	}

	s, err := stringify(goja.Undefined(), obj, goja.Null(), vm.ToValue(2))
	if err != nil || s == nil || goja.IsUndefined(s) {
		// cyclic structures and objects with a throwing toJSON
		return obj.String()
	}
	return s.String()
}
