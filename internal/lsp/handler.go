// Package lsp is the editor-integration endpoint: a language server that
// turns a live schedule document (the same JSON internal/schedule.File
// shape cmd/scheduler and repl consume) into diagnostics and semantic
// tokens, so an author editing a schedule gets immediate feedback on
// unknown directives and malformed authoring patterns. Adapted from
// kanso's own internal/lsp, generalized from contract-AST diagnostics to
// scheduling diagnostics: the transport (glsp/commonlog) and handler
// shape are unchanged, only the thing being diagnosed is different, since
// there is no surface-syntax AST in this domain (spec.md §1) to walk.
package lsp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/exo-lang/loopsched/internal/pattern"
	"github.com/exo-lang/loopsched/internal/schedule"
)

// SemanticTokenTypes is the set of token types this server advertises.
var SemanticTokenTypes = []string{
	"namespace", "type", "typeParameter", "function", "variable",
	"parameter", "property", "keyword", "number", "operator", "modifier",
}

// SemanticTokenModifiers is the set of token modifiers this server
// advertises.
var SemanticTokenModifiers = []string{
	"declaration", "definition", "readonly", "static", "deprecated", "abstract",
}

// Handler implements the LSP server handlers for schedule documents.
type Handler struct {
	mu       sync.RWMutex
	content  map[string]string
	docs     map[string]*schedule.File
}

// NewHandler creates and returns a new Handler instance.
func NewHandler() *Handler {
	return &Handler{
		content: make(map[string]string),
		docs:    make(map[string]*schedule.File),
	}
}

// Initialize responds to the LSP client's initialize request and
// advertises the server's capabilities.
func (h *Handler) Initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: ptrBool(true),
				Change:    ptrSyncKind(protocol.TextDocumentSyncKindFull),
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider: ptrBool(false),
			},
			SemanticTokensProvider: &protocol.SemanticTokensOptions{
				Legend: protocol.SemanticTokensLegend{
					TokenTypes:     SemanticTokenTypes,
					TokenModifiers: SemanticTokenModifiers,
				},
				Full: ptrBool(true),
			},
		},
	}, nil
}

func (h *Handler) Initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (h *Handler) Shutdown(ctx *glsp.Context) error {
	return nil
}

// TextDocumentDidOpen handles file open notifications from the editor.
func (h *Handler) TextDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	diagnostics, err := h.updateDoc(params.TextDocument.URI)
	if err != nil {
		return fmt.Errorf("failed to update schedule document: %w", err)
	}
	sendDiagnosticNotification(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

// TextDocumentDidClose handles file close notifications from the editor.
func (h *Handler) TextDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	path, err := uriToPath(params.TextDocument.URI)
	if err != nil {
		return fmt.Errorf("failed to convert URI %s: %w", params.TextDocument.URI, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.content, path)
	delete(h.docs, path)
	return nil
}

// TextDocumentDidChange handles file change notifications from the editor.
func (h *Handler) TextDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	diagnostics, err := h.updateDoc(params.TextDocument.URI)
	if err != nil {
		return fmt.Errorf("failed to update schedule document: %w", err)
	}
	sendDiagnosticNotification(ctx, params.TextDocument.URI, diagnostics)
	return nil
}

// TextDocumentCompletion handles completion requests (currently returns
// an empty list).
func (h *Handler) TextDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (interface{}, error) {
	return &protocol.CompletionList{IsIncomplete: false, Items: []protocol.CompletionItem{}}, nil
}

// TextDocumentSemanticTokensFull handles semantic token requests for the
// entire document.
func (h *Handler) TextDocumentSemanticTokensFull(ctx *glsp.Context, params *protocol.SemanticTokensParams) (*protocol.SemanticTokens, error) {
	rawURI := params.TextDocument.URI
	path, err := uriToPath(rawURI)
	if err != nil {
		return nil, fmt.Errorf("failed to convert URI %s: %w", rawURI, err)
	}

	text, err := h.getOrLoadContent(ctx, path, rawURI)
	if err != nil {
		return nil, err
	}

	tokens := collectSemanticTokens(text)

	var data []uint32
	var prevLine, prevStart uint32
	for _, token := range tokens {
		deltaLine := token.Line - prevLine
		var deltaStart uint32
		if deltaLine == 0 {
			deltaStart = token.StartChar - prevStart
		} else {
			deltaStart = token.StartChar
		}
		data = append(data, deltaLine, deltaStart, token.Length, uint32(token.TokenType), uint32(token.TokenModifiers))
		prevLine, prevStart = token.Line, token.StartChar
	}

	return &protocol.SemanticTokens{Data: data}, nil
}

func (h *Handler) getOrLoadContent(ctx *glsp.Context, path string, rawURI protocol.DocumentUri) (string, error) {
	h.mu.RLock()
	text, ok := h.content[path]
	h.mu.RUnlock()
	if ok {
		return text, nil
	}

	diagnostics, err := h.updateDoc(rawURI)
	if err != nil {
		return "", err
	}
	sendDiagnosticNotification(ctx, rawURI, diagnostics)

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.content[path], nil
}

// updateDoc reads, parses and validates the schedule document at rawURI,
// caching its content and parsed form and returning any diagnostics found.
func (h *Handler) updateDoc(rawURI protocol.DocumentUri) ([]protocol.Diagnostic, error) {
	path, err := uriToPath(rawURI)
	if err != nil {
		return nil, fmt.Errorf("failed to convert URI %s: %w", rawURI, err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	text := string(content)

	var doc schedule.File
	if err := json.Unmarshal(content, &doc); err != nil {
		h.mu.Lock()
		h.content[path] = text
		delete(h.docs, path)
		h.mu.Unlock()
		return ConvertJSONError(text, err), nil
	}

	diagnostics := validateSchedule(text, doc)

	h.mu.Lock()
	h.content[path] = text
	h.docs[path] = &doc
	h.mu.Unlock()

	return diagnostics, nil
}

// validateSchedule flags every directive whose op is unknown to
// internal/schedule's registry, or whose pattern fails to compile, as a
// diagnostic anchored to the line the directive appears on.
func validateSchedule(text string, doc schedule.File) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic
	lines := strings.Split(text, "\n")

	for _, call := range doc.Directives {
		if !schedule.KnownOps[call.Op] {
			diagnostics = append(diagnostics, lineDiagnostic(lines, call.Op, fmt.Sprintf("unknown directive %q", call.Op)))
			continue
		}
		if call.Pattern != "" {
			if _, err := pattern.Compile(call.Pattern); err != nil {
				diagnostics = append(diagnostics, lineDiagnostic(lines, call.Pattern, fmt.Sprintf("invalid pattern %q: %s", call.Pattern, err)))
			}
		}
	}
	return diagnostics
}

func lineDiagnostic(lines []string, needle, message string) protocol.Diagnostic {
	for i, line := range lines {
		if col := strings.Index(line, needle); col >= 0 {
			return protocol.Diagnostic{
				Range: protocol.Range{
					Start: protocol.Position{Line: uint32(i), Character: uint32(col)},
					End:   protocol.Position{Line: uint32(i), Character: uint32(col + len(needle))},
				},
				Severity: ptrSeverity(protocol.DiagnosticSeverityError),
				Source:   ptrString("scheduler"),
				Message:  message,
			}
		}
	}
	return protocol.Diagnostic{Severity: ptrSeverity(protocol.DiagnosticSeverityError), Source: ptrString("scheduler"), Message: message}
}

func uriToPath(rawURI string) (string, error) {
	u, err := url.Parse(rawURI)
	if err != nil {
		return "", fmt.Errorf("invalid URI %s: %w", rawURI, err)
	}

	path := u.Path
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 3 && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}

func sendDiagnosticNotification(ctx *glsp.Context, uri protocol.URI, diagnostics []protocol.Diagnostic) {
	ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, &protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func ptrBool(b bool) *bool { return &b }

func ptrSyncKind(k protocol.TextDocumentSyncKind) *protocol.TextDocumentSyncKind { return &k }
