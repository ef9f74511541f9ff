package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
	lua "github.com/yuin/gopher-lua"
)

// Parser evaluates provision.lua with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new settings parser with the given platform detector.
// A nil detector leaves the platform table undefined.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseString parses settings from Lua source.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Settings, error) {
	L := newSandboxedVM()
	defer L.Close()
	L.SetContext(ctx)

	if p.detector != nil {
		info, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, info); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractSettings(L)
}

// ParseFile reads and parses a settings file.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, &ParseError{
			Message: "settings file too large",
			Detail:  fmt.Sprintf("%s exceeds %d bytes", path, MaxFileSize),
		}
	}

	return p.ParseString(ctx, string(data))
}

// Load parses path if it exists. A missing file yields empty Settings.
func Load(ctx context.Context, path string, detector platform.Detector) (*Settings, error) {
	settings, err := NewParser(detector).ParseFile(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		return &Settings{}, nil
	}
	return settings, err
}

// ParseError represents a settings parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractSettings reads the global "provision" table. A script that never
// assigns it yields empty Settings.
func extractSettings(L *lua.LState) (*Settings, error) {
	global := L.GetGlobal(luaGlobalProvision)
	if global.Type() == lua.LTNil {
		return &Settings{}, nil
	}
	if global.Type() != lua.LTTable {
		return nil, &ParseError{
			Message: fmt.Sprintf("invalid '%s' table", luaGlobalProvision),
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}
	table := global.(*lua.LTable)

	s := &Settings{}
	strs := []struct {
		field string
		dst   *string
	}{
		{luaFieldRepo, &s.Repo},
		{luaFieldTool, &s.Tool},
		{luaFieldExecutable, &s.Executable},
		{luaFieldAPIURL, &s.APIURL},
		{luaFieldUserAgent, &s.UserAgent},
		{luaFieldToken, &s.Token},
		{luaFieldStorageRoot, &s.StorageRoot},
		{luaFieldLogLevel, &s.LogLevel},
	}
	for _, f := range strs {
		v, err := optString(table, f.field)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}

	if v := table.RawGetString(luaFieldRedirects); v.Type() != lua.LTNil {
		n, err := integer(v, luaFieldRedirects)
		if err != nil {
			return nil, err
		}
		s.RedirectBudget = &n
	}

	if v := table.RawGetString(luaFieldTimeout); v.Type() != lua.LTNil {
		n, err := integer(v, luaFieldTimeout)
		if err != nil {
			return nil, err
		}
		s.Timeout = time.Duration(n) * time.Second
	}

	if v := table.RawGetString(luaFieldPlatform); v.Type() != lua.LTNil {
		t, ok := v.(*lua.LTable)
		if !ok {
			return nil, typeError(luaFieldPlatform, "table", v)
		}
		var err error
		if s.Platform.OS, err = optString(t, luaFieldOS); err != nil {
			return nil, err
		}
		if s.Platform.Arch, err = optString(t, luaFieldArch); err != nil {
			return nil, err
		}
	}

	if v := table.RawGetString(luaFieldVerify); v.Type() != lua.LTNil {
		t, ok := v.(*lua.LTable)
		if !ok {
			return nil, typeError(luaFieldVerify, "table", v)
		}
		if c := t.RawGetString(luaFieldChecksums); c.Type() != lua.LTNil {
			b, ok := c.(lua.LBool)
			if !ok {
				return nil, typeError(luaFieldVerify+"."+luaFieldChecksums, "boolean", c)
			}
			s.Verify.Checksums = bool(b)
		}
		keyring, err := optString(t, luaFieldKeyring)
		if err != nil {
			return nil, err
		}
		s.Verify.Keyring = keyring
	}

	for _, p := range []*string{&s.StorageRoot, &s.Verify.Keyring, &s.Executable} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := s.Validate(); err != nil {
		return nil, &ParseError{
			Message: "settings validation failed",
			Detail:  err.Error(),
		}
	}

	return s, nil
}

func optString(table *lua.LTable, field string) (string, error) {
	v := table.RawGetString(field)
	switch v.Type() {
	case lua.LTNil:
		return "", nil
	case lua.LTString:
		return v.String(), nil
	}
	return "", typeError(field, "string", v)
}

func integer(v lua.LValue, field string) (int, error) {
	if v.Type() != lua.LTNumber {
		return 0, typeError(field, "number", v)
	}
	f := float64(lua.LVAsNumber(v))
	if f != float64(int(f)) {
		return 0, &ParseError{
			Message: fmt.Sprintf("invalid '%s'", field),
			Detail:  fmt.Sprintf("expected integer, got %v", f),
		}
	}
	return int(f), nil
}

func typeError(field, want string, got lua.LValue) error {
	return &ParseError{
		Message: fmt.Sprintf("invalid '%s'", field),
		Detail:  fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// FormatError formats a ParseError for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
