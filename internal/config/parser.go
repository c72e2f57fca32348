package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/binshim/internal/platform"
)

// Parser evaluates Lua config files with the platform table injected.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile evaluates the config file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	values, err := p.ParseString(ctx, string(data))
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			parseErr.Path = path
		}
		return nil, err
	}
	return values, nil
}

// ParseString evaluates Lua config code and returns the settings assigned
// in the global "binshim" table, keyed by setting name.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (map[string]any, error) {
	L, cancel := newSandboxedVM(ctx)
	defer cancel()
	defer L.Close()

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		return nil, &ParseError{
			Message: "Lua error",
			Detail:  err.Error(),
		}
	}

	return extractSettings(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Path    string // Config file, empty for in-memory code
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractSettings reads the global settings table.
// Nil values are skipped so platform conditionals can leave a key unset:
//
//	binshim = { proxy = platform.is_windows and "http://proxy:3128" or nil }
func extractSettings(L *lua.LState) (map[string]any, error) {
	global := L.GetGlobal(luaGlobal)
	table, ok := global.(*lua.LTable)
	if !ok {
		return nil, &ParseError{
			Message: fmt.Sprintf("missing or invalid '%s' table", luaGlobal),
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}

	values := make(map[string]any)
	var problems []string

	table.ForEach(func(key, value lua.LValue) {
		if value.Type() == lua.LTNil {
			return
		}

		name, ok := key.(lua.LString)
		if !ok {
			problems = append(problems, fmt.Sprintf("non-string key %s", key.String()))
			return
		}

		v, err := convertValue(string(name), value)
		if err != nil {
			problems = append(problems, err.Error())
			return
		}
		values[string(name)] = v
	})

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &ParseError{
			Message: "invalid settings",
			Detail:  strings.Join(problems, "; "),
		}
	}

	return values, nil
}

func convertValue(key string, value lua.LValue) (any, error) {
	switch {
	case stringKeys[key]:
		s, ok := value.(lua.LString)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %s", key, value.Type())
		}
		return string(s), nil

	case key == KeyTimeout:
		switch v := value.(type) {
		case lua.LString:
			d, err := time.ParseDuration(string(v))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			return d, nil
		case lua.LNumber:
			// Plain numbers are seconds
			return time.Duration(float64(v) * float64(time.Second)), nil
		default:
			return nil, fmt.Errorf("%s: expected duration string or seconds, got %s", key, value.Type())
		}

	case key == KeyRetries:
		n, ok := value.(lua.LNumber)
		if !ok || float64(n) != math.Trunc(float64(n)) || n < 0 {
			return nil, fmt.Errorf("%s: expected non-negative integer, got %s", key, value.String())
		}
		return int(n), nil

	default:
		return nil, fmt.Errorf("unknown setting %q", key)
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		return err.Error()
	}

	prefix := parseErr.Message
	if parseErr.Path != "" {
		prefix = parseErr.Path + ": " + prefix
	}

	if verbose {
		return fmt.Sprintf("%s\n\nDetails:\n%s", prefix, parseErr.Detail)
	}

	detail := parseErr.Detail
	if idx := strings.Index(detail, "stack traceback"); idx > 0 {
		detail = strings.TrimSpace(detail[:idx])
	}
	return fmt.Sprintf("%s: %s", prefix, detail)
}
