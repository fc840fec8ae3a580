package myolink

import (
	_ "embed"
	"sort"
)

// DefaultGestureScript contains the embedded default.lua gesture
//
//go:embed examples/default.lua
var DefaultGestureScript string

// WaveGestureScript contains the embedded wave.lua gesture
//
//go:embed examples/wave.lua
var WaveGestureScript string

// GestureLibScript contains the embedded gestures.lua helper library.
// Script runners preload it so gesture scripts can require("gestures")
//
//go:embed examples/lib/gestures.lua
var GestureLibScript string

// builtinScripts maps builtin gesture names to their embedded sources
var builtinScripts = map[string]string{
	"default": DefaultGestureScript,
	"wave":    WaveGestureScript,
}

// BuiltinScript resolves a builtin gesture by name.
func BuiltinScript(name string) (string, bool) {
	src, ok := builtinScripts[name]
	return src, ok
}

// BuiltinScriptNames lists the builtin gesture names, sorted.
func BuiltinScriptNames() []string {
	names := make([]string, 0, len(builtinScripts))
	for name := range builtinScripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
