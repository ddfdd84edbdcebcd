package tool

import (
	"fmt"
	"context"
	"os"
	"regexp"
	"strings"

	"github.com/termpilot/engine/internal/domain/entity"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
)

const maxFullReadBytes = 500 * 1024 // 500 KB

// WriteMode is one of write_file's supported write strategies.
type WriteMode string

const (
	WriteOverwrite    WriteMode = "overwrite"
	WriteCreate       WriteMode = "create"
	WriteAppend       WriteMode = "append"
	WriteInsert       WriteMode = "insert"
	WriteReplaceLines WriteMode = "replace_lines"
	WriteRegexReplace WriteMode = "regex_replace"
)

// FileBackend abstracts the filesystem a host's write_file targets — a
// local path on the local terminal's host, or the SSH variant's remote
// filesystem over SFTP. The local backend is the only one implemented
// here; an SSH-backed FileBackend is a TerminalConnector-adjacent
// collaborator outside this package's scope, same as terminal.RawTransport.
type FileBackend interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, content []byte) error
	Exists(path string) bool
	// SupportsAllModes reports whether this backend can perform every
	// WriteMode. SSH backends support only overwrite/create/append.
	SupportsAllModes() bool
}

// LocalFileBackend reads and writes files on the local filesystem.
type LocalFileBackend struct{}

func (LocalFileBackend) ReadFile(path string) ([]byte, error)  { return os.ReadFile(path) }
func (LocalFileBackend) WriteFile(path string, c []byte) error { return os.WriteFile(path, c, 0644) }
func (LocalFileBackend) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
func (LocalFileBackend) SupportsAllModes() bool { return true }

// ReadFileTool reads a file from the bound host's filesystem, with range
// and info-only modes so the model never has to pull a huge file whole.
type ReadFileTool struct {
	fs FileBackend
}

func NewReadFileTool(fs FileBackend) *ReadFileTool { return &ReadFileTool{fs: fs} }

func (t *ReadFileTool) Name() string         { return "read_file" }
func (t *ReadFileTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *ReadFileTool) Description() string {
	return `Read a file. Files over 500KB must use info_only, a line range (start_line/end_line),
max_lines, or tail_lines rather than a full read.`
}

func (t *ReadFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":       map[string]interface{}{"type": "string"},
			"info_only":  map[string]interface{}{"type": "boolean", "description": "Return only size/line count, not contents"},
			"start_line": map[string]interface{}{"type": "integer"},
			"end_line":   map[string]interface{}{"type": "integer"},
			"max_lines":  map[string]interface{}{"type": "integer"},
			"tail_lines": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return &domaintool.Result{Success: false, Error: "path is required"}, nil
	}
	if !t.fs.Exists(path) {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("file not found: %s", path)}, nil
	}

	data, err := t.fs.ReadFile(path)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	infoOnly, _ := args["info_only"].(bool)
	lines := strings.Split(string(data), "\n")

	if infoOnly {
		return &domaintool.Result{
			Success: true,
			Output:  fmt.Sprintf("%s: %d bytes, %d lines", path, len(data), len(lines)),
			Metadata: map[string]interface{}{"bytes": len(data), "lines": len(lines)},
		}, nil
	}

	hasRange := args["start_line"] != nil || args["end_line"] != nil || args["max_lines"] != nil || args["tail_lines"] != nil
	if len(data) > maxFullReadBytes && !hasRange {
		return &domaintool.Result{
			Success: false,
			Error: fmt.Sprintf("%s is %d bytes, over the 500KB full-read limit. Use info_only, a start_line/end_line range, max_lines, or tail_lines.",
				path, len(data)),
		}, nil
	}

	selected := lines
	if v, ok := intArg(args, "tail_lines"); ok {
		if v < len(lines) {
			selected = lines[len(lines)-v:]
		}
	} else if start, hasStart := intArg(args, "start_line"); hasStart {
		end := len(lines)
		if e, ok := intArg(args, "end_line"); ok {
			end = e
		}
		if start < 1 {
			start = 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start > end {
			return &domaintool.Result{Success: false, Error: "start_line must be <= end_line"}, nil
		}
		selected = lines[start-1 : end]
	} else if v, ok := intArg(args, "max_lines"); ok && v < len(lines) {
		selected = lines[:v]
	}

	return &domaintool.Result{
		Success:  true,
		Output:   strings.Join(selected, "\n"),
		Metadata: map[string]interface{}{"total_lines": len(lines), "returned_lines": len(selected)},
	}, nil
}

func intArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// WriteFileTool creates, overwrites, appends to, or patches a file on the
// bound host's filesystem.
type WriteFileTool struct {
	fs FileBackend
}

func NewWriteFileTool(fs FileBackend) *WriteFileTool { return &WriteFileTool{fs: fs} }

func (t *WriteFileTool) Name() string         { return "write_file" }
func (t *WriteFileTool) Kind() domaintool.Kind { return domaintool.KindEdit }
func (t *WriteFileTool) Description() string {
	return `Write to a file. mode: overwrite (replace or create), create (fails if exists),
append, insert (at insert_at_line), replace_lines (start_line..end_line), or
regex_replace (pattern/replacement, scope=first|all). SSH terminals only support
overwrite/create/append — use execute_command with sed/awk for the rest.`
}

func (t *WriteFileTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":          map[string]interface{}{"type": "string"},
			"content":       map[string]interface{}{"type": "string"},
			"mode":          map[string]interface{}{"type": "string", "enum": []string{"overwrite", "create", "append", "insert", "replace_lines", "regex_replace"}},
			"insert_at_line": map[string]interface{}{"type": "integer"},
			"start_line":    map[string]interface{}{"type": "integer"},
			"end_line":      map[string]interface{}{"type": "integer"},
			"pattern":       map[string]interface{}{"type": "string"},
			"replacement":   map[string]interface{}{"type": "string"},
			"scope":         map[string]interface{}{"type": "string", "enum": []string{"first", "all"}},
		},
		"required": []string{"path", "mode"},
	}
}

func (t *WriteFileTool) RiskLevel(map[string]interface{}) entity.RiskLevel {
	return entity.RiskModerate
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return &domaintool.Result{Success: false, Error: "path is required"}, nil
	}
	mode := WriteMode(stringArg(args, "mode"))
	content := stringArg(args, "content")

	if !t.fs.SupportsAllModes() {
		switch mode {
		case WriteOverwrite, WriteCreate, WriteAppend:
		default:
			return &domaintool.Result{
				Success: false,
				Error:   fmt.Sprintf("mode %q is not supported over this connection; use execute_command with sed/awk instead", mode),
			}, nil
		}
	}

	switch mode {
	case WriteCreate:
		if t.fs.Exists(path) {
			return &domaintool.Result{Success: false, Error: fmt.Sprintf("%s already exists", path)}, nil
		}
		if err := t.fs.WriteFile(path, []byte(content)); err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("created %s", path)}, nil

	case WriteOverwrite:
		if err := t.fs.WriteFile(path, []byte(content)); err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", len(content), path)}, nil

	case WriteAppend:
		existing := ""
		if t.fs.Exists(path) {
			data, err := t.fs.ReadFile(path)
			if err != nil {
				return &domaintool.Result{Success: false, Error: err.Error()}, nil
			}
			existing = string(data)
		}
		if err := t.fs.WriteFile(path, []byte(existing+content)); err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("appended %d bytes to %s", len(content), path)}, nil

	case WriteInsert:
		if !t.fs.Exists(path) {
			return &domaintool.Result{Success: false, Error: fmt.Sprintf("%s does not exist", path)}, nil
		}
		lineNo, ok := intArg(args, "insert_at_line")
		if !ok {
			return &domaintool.Result{Success: false, Error: "insert_at_line is required"}, nil
		}
		data, err := t.fs.ReadFile(path)
		if err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		lines := strings.Split(string(data), "\n")
		if lineNo < 1 || lineNo > len(lines)+1 {
			return &domaintool.Result{Success: false, Error: fmt.Sprintf("insert_at_line %d out of range (1..%d)", lineNo, len(lines)+1)}, nil
		}
		idx := lineNo - 1
		updated := append([]string{}, lines[:idx]...)
		updated = append(updated, content)
		updated = append(updated, lines[idx:]...)
		if err := t.fs.WriteFile(path, []byte(strings.Join(updated, "\n"))); err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("inserted at line %d of %s", lineNo, path)}, nil

	case WriteReplaceLines:
		if !t.fs.Exists(path) {
			return &domaintool.Result{Success: false, Error: fmt.Sprintf("%s does not exist", path)}, nil
		}
		start, hasStart := intArg(args, "start_line")
		end, hasEnd := intArg(args, "end_line")
		if !hasStart || !hasEnd {
			return &domaintool.Result{Success: false, Error: "start_line and end_line are required"}, nil
		}
		data, err := t.fs.ReadFile(path)
		if err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		lines := strings.Split(string(data), "\n")
		if start < 1 || start > len(lines) {
			return &domaintool.Result{Success: false, Error: fmt.Sprintf("start_line %d out of range (1..%d)", start, len(lines))}, nil
		}
		if end < start {
			return &domaintool.Result{Success: false, Error: "end_line must be >= start_line"}, nil
		}
		if end > len(lines) {
			end = len(lines)
		}
		updated := append([]string{}, lines[:start-1]...)
		updated = append(updated, content)
		updated = append(updated, lines[end:]...)
		if err := t.fs.WriteFile(path, []byte(strings.Join(updated, "\n"))); err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("replaced lines %d-%d of %s", start, end, path)}, nil

	case WriteRegexReplace:
		if !t.fs.Exists(path) {
			return &domaintool.Result{Success: false, Error: fmt.Sprintf("%s does not exist", path)}, nil
		}
		pattern := stringArg(args, "pattern")
		replacement := stringArg(args, "replacement")
		scope := stringArg(args, "scope")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return &domaintool.Result{Success: false, Error: fmt.Sprintf("invalid regex: %v", err)}, nil
		}
		data, err := t.fs.ReadFile(path)
		if err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		text := string(data)
		matches := re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			return &domaintool.Result{Success: false, Error: "regex_replace matched nothing"}, nil
		}
		var updated string
		n := 0
		if scope == "first" {
			n = 1
		}
		replaced := len(matches)
		if n == 1 {
			replaced = 1
			loc := matches[0]
			updated = text[:loc[0]] + re.ReplaceAllString(text[loc[0]:loc[1]], replacement) + text[loc[1]:]
		} else {
			updated = re.ReplaceAllString(text, replacement)
		}
		if err := t.fs.WriteFile(path, []byte(updated)); err != nil {
			return &domaintool.Result{Success: false, Error: err.Error()}, nil
		}
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("replaced %d match(es) in %s", replaced, path)}, nil

	default:
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("unknown mode %q", mode)}, nil
	}
}

func stringArg(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}
