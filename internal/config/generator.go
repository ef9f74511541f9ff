package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Generator renders Settings as provision.lua source.
type Generator struct {
	indent string // Indentation string (default: two spaces)
	now    func() time.Time
}

// NewGenerator creates a new settings generator.
func NewGenerator() *Generator {
	return &Generator{
		indent: "  ",
		now:    time.Now,
	}
}

// Generate renders s. Unset fields are written as comments showing the
// default, so the file doubles as documentation.
func (g *Generator) Generate(s *Settings, defaults Settings) string {
	var buf bytes.Buffer

	buf.WriteString("-- provision settings\n")
	buf.WriteString("-- Generated: ")
	buf.WriteString(g.now().Format(time.RFC3339))
	buf.WriteString("\n")
	buf.WriteString("-- The read-only platform table (platform.os, platform.is_windows, ...)\n")
	buf.WriteString("-- describes this host and may be used in expressions.\n\n")

	buf.WriteString(luaGlobalProvision + " = {\n")

	g.writeString(&buf, luaFieldRepo, s.Repo, defaults.Repo)
	g.writeString(&buf, luaFieldTool, s.Tool, defaults.Tool)
	g.writeString(&buf, luaFieldStorageRoot, s.StorageRoot, defaults.StorageRoot)
	g.writeString(&buf, luaFieldExecutable, s.Executable, "")
	g.writeString(&buf, luaFieldAPIURL, s.APIURL, defaults.APIURL)
	g.writeString(&buf, luaFieldUserAgent, s.UserAgent, defaults.UserAgent)

	if s.RedirectBudget != nil {
		fmt.Fprintf(&buf, "%s%s = %d,\n", g.indent, luaFieldRedirects, *s.RedirectBudget)
	} else if defaults.RedirectBudget != nil {
		fmt.Fprintf(&buf, "%s-- %s = %d,\n", g.indent, luaFieldRedirects, *defaults.RedirectBudget)
	}

	switch {
	case s.Timeout > 0:
		fmt.Fprintf(&buf, "%s%s = %d, -- seconds\n", g.indent, luaFieldTimeout, int(s.Timeout/time.Second))
	case defaults.Timeout > 0:
		fmt.Fprintf(&buf, "%s-- %s = %d, -- seconds\n", g.indent, luaFieldTimeout, int(defaults.Timeout/time.Second))
	}

	if s.Platform.IsSet() {
		g.writePlatform(&buf, s.Platform)
	}

	g.writeVerify(&buf, s.Verify)

	g.writeString(&buf, luaFieldLogLevel, s.LogLevel, defaults.LogLevel)

	buf.WriteString("}\n")

	return buf.String()
}

// writeString writes field = value, or a commented-out default when value
// is empty. Nothing is written when both are empty.
func (g *Generator) writeString(buf *bytes.Buffer, field, value, def string) {
	switch {
	case value != "":
		fmt.Fprintf(buf, "%s%s = %s,\n", g.indent, field, g.quoteLuaString(value))
	case def != "":
		fmt.Fprintf(buf, "%s-- %s = %s,\n", g.indent, field, g.quoteLuaString(def))
	}
}

func (g *Generator) writePlatform(buf *bytes.Buffer, p PlatformOverride) {
	buf.WriteString(g.indent)
	buf.WriteString(luaFieldPlatform + " = {\n")
	if p.OS != "" {
		fmt.Fprintf(buf, "%s%s%s = %s,\n", g.indent, g.indent, luaFieldOS, g.quoteLuaString(p.OS))
	}
	if p.Arch != "" {
		fmt.Fprintf(buf, "%s%s%s = %s,\n", g.indent, g.indent, luaFieldArch, g.quoteLuaString(p.Arch))
	}
	buf.WriteString(g.indent)
	buf.WriteString("},\n")
}

func (g *Generator) writeVerify(buf *bytes.Buffer, v Verify) {
	if !v.Checksums && v.Keyring == "" {
		fmt.Fprintf(buf, "%s-- %s = { %s = true, %s = %s },\n",
			g.indent, luaFieldVerify, luaFieldChecksums, luaFieldKeyring, g.quoteLuaString("~/.config/provision/release.asc"))
		return
	}

	buf.WriteString(g.indent)
	buf.WriteString(luaFieldVerify + " = {\n")
	if v.Checksums {
		fmt.Fprintf(buf, "%s%s%s = true,\n", g.indent, g.indent, luaFieldChecksums)
	}
	if v.Keyring != "" {
		fmt.Fprintf(buf, "%s%s%s = %s,\n", g.indent, g.indent, luaFieldKeyring, g.quoteLuaString(v.Keyring))
	}
	buf.WriteString(g.indent)
	buf.WriteString("},\n")
}

// quoteLuaString quotes a string for Lua, handling special characters.
func (g *Generator) quoteLuaString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslashes first
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return "\"" + s + "\""
}
