package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"knightvm/knight"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	_ "github.com/tliron/commonlog/simple"
)

const (
	lsName      = "knight-ls"
	CIKFunction = protocol.CompletionItemKindFunction
	CIKVariable = protocol.CompletionItemKindVariable
	CIKConstant = protocol.CompletionItemKindConstant
)

var (
	version string = "0.1.0"
	handler protocol.Handler
	log     commonlog.Logger

	table *knight.DispatchTable

	documentsMutex sync.RWMutex
	documents      = make(map[string]string)
)

func main() {
	features := flag.String("features", "", "comma separated features ("+strings.Join(knight.FeatureNames(), ", ")+")")
	verbose := flag.Int("v", 1, "log verbosity")
	flag.Parse()

	commonlog.Configure(*verbose, nil)
	log = commonlog.GetLogger("knight-ls")

	f, err := knight.ParseFeatures(*features)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg, err := knight.FindConfig("."); err != nil {
		log.Warningf("ignoring config: %s", err)
	} else if cfg != nil {
		f = f.Merge(cfg.Features)
	}
	table = knight.NewDispatchTable(f)
	log.Infof("features: %s", table.Features())

	handler = protocol.Handler{
		Initialize:             initialize,
		Initialized:            initialized,
		Shutdown:               shutdown,
		SetTrace:               setTrace,
		TextDocumentDidOpen:    textDocumentDidOpen,
		TextDocumentDidChange:  textDocumentDidChange,
		TextDocumentDidClose:   textDocumentDidClose,
		TextDocumentDidSave:    textDocumentDidSave,
		TextDocumentCompletion: textDocumentCompletion,
		TextDocumentHover:      textDocumentHover,
	}

	s := server.NewServer(&handler, lsName, false)
	if err := s.RunStdio(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initialize(context *glsp.Context, params *protocol.InitializeParams) (interface{}, error) {
	capabilities := handler.CreateServerCapabilities()
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &[]bool{true}[0],
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &[]bool{false}[0]},
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lsName,
			Version: &version,
		},
	}, nil
}

func initialized(context *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func shutdown(context *glsp.Context) error {
	return nil
}

func setTrace(context *glsp.Context, params *protocol.SetTraceParams) error {
	protocol.SetTraceValue(params.Value)
	return nil
}

func textDocumentDidOpen(context *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	documentsMutex.Lock()
	defer documentsMutex.Unlock()
	documents[params.TextDocument.URI] = params.TextDocument.Text
	go publishDiagnostics(context, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func textDocumentDidChange(context *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	if len(params.ContentChanges) == 0 {
		return nil
	}
	change, ok := params.ContentChanges[len(params.ContentChanges)-1].(protocol.TextDocumentContentChangeEventWhole)
	if !ok {
		return nil
	}

	documentsMutex.Lock()
	documents[params.TextDocument.URI] = change.Text
	documentsMutex.Unlock()

	go publishDiagnostics(context, params.TextDocument.URI, change.Text)
	return nil
}

func textDocumentDidClose(context *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	documentsMutex.Lock()
	defer documentsMutex.Unlock()
	delete(documents, params.TextDocument.URI)
	return nil
}

func textDocumentDidSave(context *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	if content, ok := document(params.TextDocument.URI); ok {
		go publishDiagnostics(context, params.TextDocument.URI, content)
	}
	return nil
}

func document(uri string) (string, bool) {
	documentsMutex.RLock()
	defer documentsMutex.RUnlock()
	content, ok := documents[uri]
	return content, ok
}

func textDocumentCompletion(context *glsp.Context, params *protocol.CompletionParams) (interface{}, error) {
	items := []protocol.CompletionItem{}
	seen := make(map[string]bool)

	kindFunc := CIKFunction
	kindConst := CIKConstant
	for _, b := range table.Entries() {
		if seen[b.Name] {
			continue
		}
		seen[b.Name] = true
		kind := &kindFunc
		if b.Form == knight.FormLiteral {
			kind = &kindConst
		}
		detail := fmt.Sprintf("%s/%d", b.Key, b.Arity)
		item := protocol.CompletionItem{
			Label:  b.Name,
			Kind:   kind,
			Detail: &detail,
		}
		if b.Doc != nil {
			item.Documentation = protocol.MarkupContent{
				Kind:  protocol.MarkupKindMarkdown,
				Value: operatorMarkdown(b),
			}
		}
		items = append(items, item)
	}

	content, ok := document(params.TextDocument.URI)
	if !ok {
		return protocol.CompletionList{IsIncomplete: false, Items: items}, nil
	}

	kindVar := CIKVariable
	detailVar := "variable"
	for _, name := range variableNames(params.TextDocument.URI, content) {
		if seen[name] {
			continue
		}
		seen[name] = true
		items = append(items, protocol.CompletionItem{
			Label:  name,
			Kind:   &kindVar,
			Detail: &detailVar,
		})
	}

	log.Debugf("completion for %s at %d:%d: %d items", params.TextDocument.URI, params.Position.Line+1, params.Position.Character, len(items))
	return protocol.CompletionList{
		IsIncomplete: false,
		Items:        items,
	}, nil
}

// variableNames collects the variables a document mentions. A document that
// does not parse still offers the identifiers its tokens carry.
func variableNames(uri, content string) []string {
	found := make(map[string]bool)
	if tree, err := knight.Parse(uri, content, table); err == nil {
		knight.Walk(tree, knight.WalkFunc(func(node knight.ASTNode) {
			if ref, ok := node.(*knight.VariableRef); ok {
				found[ref.Name] = true
			}
		}))
	} else {
		tokens, _ := knight.NewLexer(uri, content, table.Features()).Tokenize()
		for _, tok := range tokens {
			if tok.Kind == knight.TokenIdent {
				found[tok.Value] = true
			}
		}
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func textDocumentHover(context *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	content, ok := document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	tokens, _ := knight.NewLexer(params.TextDocument.URI, content, table.Features()).Tokenize()
	tok := tokenAt(tokens, params.Position)
	if tok == nil {
		return nil, nil
	}

	var value string
	switch tok.Kind {
	case knight.TokenFunc:
		b, ok := table.Lookup(tok.Key())
		if !ok {
			return nil, nil
		}
		value = operatorMarkdown(b)
	case knight.TokenIdent:
		value = fmt.Sprintf("```knight\n%s\n```\nvariable", tok.Value)
	default:
		return nil, nil
	}

	r := lspRangeFromLoc(tok.Loc)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
		Range: &r,
	}, nil
}

func tokenAt(tokens []knight.Token, pos protocol.Position) *knight.Token {
	for i := range tokens {
		tok := &tokens[i]
		if tok.Kind == knight.TokenEOF || tok.Loc.Line != int(pos.Line)+1 {
			continue
		}
		r := lspRangeFromLoc(tok.Loc)
		if pos.Character >= r.Start.Character && pos.Character <= r.End.Character {
			return tok
		}
	}
	return nil
}

func operatorMarkdown(b *knight.Builtin) string {
	var sb strings.Builder
	params := make([]string, 0, b.Arity)
	if b.Doc != nil {
		for _, p := range b.Doc.Params {
			params = append(params, p.Name)
		}
	}
	fmt.Fprintf(&sb, "```knight\n%s\n```\n", strings.TrimSpace(b.Name+" "+strings.Join(params, " ")))
	if b.Doc == nil {
		fmt.Fprintf(&sb, "arity %d\n", b.Arity)
		return sb.String()
	}
	sb.WriteString(b.Doc.Description)
	sb.WriteString("\n")
	if len(b.Doc.Params) > 0 {
		sb.WriteString("\n")
		for _, p := range b.Doc.Params {
			fmt.Fprintf(&sb, "- `%s`: %s\n", p.Name, p.Description)
		}
	}
	if b.Doc.Returns != "" {
		fmt.Fprintf(&sb, "\nReturns `%s`.\n", b.Doc.Returns)
	}
	return sb.String()
}

func publishDiagnostics(context *glsp.Context, uri string, content string) {
	diagnostics := []protocol.Diagnostic{}
	severity := protocol.DiagnosticSeverityError

	addError := func(err error, source string) {
		kerr, ok := knight.AsKnightError(err)
		if !ok {
			diagnostics = append(diagnostics, protocol.Diagnostic{
				Severity: &severity,
				Source:   &source,
				Message:  err.Error(),
			})
			return
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    lspRangeFromLoc(kerr.Loc),
			Severity: &severity,
			Source:   &source,
			Message:  kerr.Msg,
		})
	}

	tree, err := knight.Parse(uri, content, table)
	if err != nil {
		addError(err, lsName+" (parser)")
	} else if _, err := knight.NewCompiler(table).Compile(tree); err != nil {
		addError(err, lsName+" (compiler)")
	}

	context.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func lspRangeFromLoc(loc knight.Loc) protocol.Range {
	line := max(loc.Line-1, 0)
	startChar := max(loc.ColStart-1, 0)
	endChar := startChar + 1
	if loc.ColEnd != nil {
		endChar = *loc.ColEnd
	}

	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(startChar)},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(endChar)},
	}
}
