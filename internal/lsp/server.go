// Package lsp serves shotlens diagnostics and capture commands to editors
// over the Language Server Protocol on stdio.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/timvw/shotlens/internal/capture"
	"github.com/timvw/shotlens/internal/engine"
	"github.com/timvw/shotlens/internal/model"
	slotel "github.com/timvw/shotlens/internal/otel"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

const diagnosticSource = "shotlens"

// CommandExecutor runs capture commands by name. *capture.Client
// satisfies it.
type CommandExecutor interface {
	IsAvailable() bool
	Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// ServerOptions configures the language server.
type ServerOptions struct {
	Debounce  time.Duration
	CacheSize int
	// Executor runs workspace/executeCommand. Nil reports the bridge as
	// unavailable.
	Executor CommandExecutor
	Version  string
	Logger   *slog.Logger
	Metrics  *slotel.Metrics
}

// Server handles stdio JSON-RPC for the shotlens language server.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex

	docs     *engine.Documents
	engine   *engine.Engine
	executor CommandExecutor
	version  string
	logger   *slog.Logger

	mu                sync.Mutex
	shutdownRequested bool
	published         map[string]struct{}
	baseCtx           context.Context

	// commands tracks in-flight executeCommand requests.
	commands sync.WaitGroup
}

// NewServer constructs a server reading from in and writing to out.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		in:        bufio.NewReader(in),
		out:       bufio.NewWriter(out),
		docs:      engine.NewDocuments(),
		executor:  opts.Executor,
		version:   opts.Version,
		logger:    logger,
		published: make(map[string]struct{}),
		baseCtx:   context.Background(),
	}
	eng, err := engine.New(s.docs, s.publishFindings, engine.Options{
		Debounce:  opts.Debounce,
		CacheSize: opts.CacheSize,
		Logger:    logger,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	s.engine = eng
	return s, nil
}

// Run serves requests until the client exits or in is closed.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	defer func() {
		s.commands.Wait()
		s.engine.Close()
	}()

	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("failed to parse message", slog.Any("error", err))
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		s.mu.Lock()
		requested := s.shutdownRequested
		s.mu.Unlock()
		if requested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "textDocument/hover":
		return s.handleHover(msg)
	case "textDocument/codeLens":
		return s.handleCodeLens(msg)
	case "textDocument/completion":
		return s.handleCompletion(msg)
	case "workspace/executeCommand":
		return s.handleExecuteCommand(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    1, // full
			},
			HoverProvider: true,
			CompletionProvider: &completionOptions{
				TriggerCharacters: []string{"."},
			},
			CodeLensProvider: &codeLensOptions{},
			ExecuteCommandProvider: &executeCommandOptions{
				Commands: capture.Tools,
			},
		},
		ServerInfo: serverInfo{Name: "shotlens", Version: s.version},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.dropNotification(msg, err)
	}
	uri := params.TextDocument.URI
	if uri == "" {
		return nil
	}
	s.docs.Open(uri, params.TextDocument.Text, params.TextDocument.Version)
	s.engine.OnOpen(uri)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.dropNotification(msg, err)
	}
	uri := params.TextDocument.URI
	if uri == "" || len(params.ContentChanges) == 0 {
		return nil
	}
	// Full sync: the last change carries the whole document.
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	s.docs.Update(uri, text, params.TextDocument.Version)
	s.engine.OnEdit(uri)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.dropNotification(msg, err)
	}
	uri := params.TextDocument.URI
	if uri == "" {
		return nil
	}
	s.docs.Close(uri)
	s.engine.OnClose(uri)

	s.mu.Lock()
	_, had := s.published[uri]
	delete(s.published, uri)
	s.mu.Unlock()
	if had {
		if err := s.sendPublish(uri, nil, nil); err != nil {
			s.logger.Warn("failed to clear diagnostics", slog.String("uri", uri), slog.Any("error", err))
		}
	}
	return nil
}

// dropNotification logs a notification whose params do not decode. There
// is no response to carry the error, and the session stays usable.
func (s *Server) dropNotification(msg *rpcMessage, err error) error {
	s.logger.Warn("ignoring notification with invalid params",
		slog.String("method", msg.Method),
		slog.Any("error", err),
	)
	return nil
}

// publishFindings is the engine's publisher.
func (s *Server) publishFindings(doc model.Document, findings []model.Finding) {
	list := make([]lspDiagnostic, 0, len(findings))
	for _, f := range findings {
		list = append(list, lspDiagnostic{
			Range:    toLSPRange(doc.Text, f.Range),
			Severity: int(f.Severity),
			Code:     f.Code,
			Source:   diagnosticSource,
			Message:  f.Message,
		})
	}
	version := doc.Version
	if err := s.sendPublish(doc.URI, &version, list); err != nil {
		s.logger.Warn("failed to publish diagnostics", slog.String("uri", doc.URI), slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.published[doc.URI] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   rpcError{Code: code, Message: message},
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, version *int, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": publishDiagnosticsParams{
			URI:         uri,
			Version:     version,
			Diagnostics: list,
		},
	}
	return s.send(msg)
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) requestContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}
