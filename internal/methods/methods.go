// Package methods enumerates the recognized LSP methods from spec §6,
// their role tags, and the LSP 3.17 parameter shapes each one needs.
package methods

// Role is the method-family tag spec §3 assigns, driving which runner
// variant handles a method.
type Role string

const (
	RolePosition  Role = "position"
	RoleDocument  Role = "document"
	RoleWorkspace Role = "workspace"
	RoleLifecycle Role = "lifecycle"
	RoleDiagnostic Role = "diagnostic"
)

// All is the full method set "all" expands to, in spec §6's order.
var All = []string{
	"initialize",
	"textDocument/diagnostic",
	"textDocument/definition",
	"textDocument/declaration",
	"textDocument/typeDefinition",
	"textDocument/implementation",
	"textDocument/hover",
	"textDocument/references",
	"textDocument/completion",
	"textDocument/signatureHelp",
	"textDocument/rename",
	"textDocument/prepareRename",
	"textDocument/documentSymbol",
	"textDocument/documentLink",
	"textDocument/formatting",
	"textDocument/foldingRange",
	"textDocument/selectionRange",
	"textDocument/codeLens",
	"textDocument/inlayHint",
	"textDocument/semanticTokens/full",
	"textDocument/semanticTokens/range",
	"textDocument/semanticTokens/full/delta",
	"textDocument/documentColor",
	"workspace/symbol",
}

// RoleFor classifies a method name per spec §3's role tags.
func RoleFor(method string) Role {
	switch method {
	case "initialize":
		return RoleLifecycle
	case "textDocument/diagnostic":
		return RoleDiagnostic
	case "workspace/symbol":
		return RoleWorkspace
	case "textDocument/documentSymbol",
		"textDocument/documentLink",
		"textDocument/formatting",
		"textDocument/foldingRange",
		"textDocument/codeLens",
		"textDocument/inlayHint",
		"textDocument/semanticTokens/full",
		"textDocument/semanticTokens/full/delta",
		"textDocument/documentColor":
		return RoleDocument
	default:
		return RolePosition
	}
}

// Position is a 0-based LSP cursor position.
type Position struct {
	Line      int
	Character int
}

func (p Position) asMap() map[string]interface{} {
	return map[string]interface{}{"line": p.Line, "character": p.Character}
}

// Range is an LSP start/end position pair.
type Range struct {
	Start, End Position
}

func (r Range) asMap() map[string]interface{} {
	return map[string]interface{}{"start": r.Start.asMap(), "end": r.End.asMap()}
}

// CursorOverride carries the per-method overrides spec §3's Method
// descriptor allows: an alternate cursor, a completion trigger
// character, a rename target, or a range start.
type CursorOverride struct {
	Position         *Position
	TriggerCharacter string
	NewName          string
	RangeStart       *Position
}

// BuildParams constructs the LSP request params for method at uri/pos,
// per the parameter shapes in spec §6. override may be nil.
func BuildParams(method, uri string, pos Position, override *CursorOverride) interface{} {
	if override != nil && override.Position != nil {
		pos = *override.Position
	}

	textDocument := map[string]interface{}{"uri": uri}
	positional := map[string]interface{}{
		"textDocument": textDocument,
		"position":     pos.asMap(),
	}

	switch method {
	case "textDocument/references":
		positional["context"] = map[string]interface{}{"includeDeclaration": true}
		return positional

	case "textDocument/rename":
		newName := "renamedSymbol"
		if override != nil && override.NewName != "" {
			newName = override.NewName
		}
		positional["newName"] = newName
		return positional

	case "textDocument/prepareRename":
		return positional

	case "textDocument/completion":
		if override != nil && override.TriggerCharacter != "" {
			positional["context"] = map[string]interface{}{
				"triggerKind":      2,
				"triggerCharacter": override.TriggerCharacter,
			}
		}
		return positional

	case "textDocument/signatureHelp",
		"textDocument/definition",
		"textDocument/declaration",
		"textDocument/typeDefinition",
		"textDocument/implementation",
		"textDocument/hover":
		return positional

	case "textDocument/formatting":
		return map[string]interface{}{
			"textDocument": textDocument,
			"options":      map[string]interface{}{"tabSize": 4, "insertSpaces": true},
		}

	case "textDocument/semanticTokens/range":
		start := pos
		if override != nil && override.RangeStart != nil {
			start = *override.RangeStart
		}
		return map[string]interface{}{
			"textDocument": textDocument,
			"range":        Range{Start: start, End: pos}.asMap(),
		}

	case "textDocument/selectionRange":
		return map[string]interface{}{
			"textDocument": textDocument,
			"positions":    []map[string]interface{}{pos.asMap()},
		}

	case "workspace/symbol":
		return map[string]interface{}{"query": ""}

	case "textDocument/documentSymbol",
		"textDocument/documentLink",
		"textDocument/foldingRange",
		"textDocument/codeLens",
		"textDocument/inlayHint",
		"textDocument/semanticTokens/full",
		"textDocument/semanticTokens/full/delta",
		"textDocument/documentColor",
		"textDocument/diagnostic":
		return map[string]interface{}{"textDocument": textDocument}

	default:
		return positional
	}
}
