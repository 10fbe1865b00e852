package lsp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/timvw/shotlens/internal/capture"
	"github.com/timvw/shotlens/internal/diagnostics"
	"github.com/timvw/shotlens/internal/model"
	"github.com/timvw/shotlens/internal/pattern"
)

// completionKindFunction is CompletionItemKind.Function.
const completionKindFunction = 3

type apiEntry struct {
	name    string
	summary string
}

// api lists the current capture API, in the order completions are offered.
var api = []apiEntry{
	{"captureFullScreen", "Captures every display. Requires format."},
	{"captureWindow", "Captures one window. Requires format and windowId or windowTitle."},
	{"captureRegion", "Captures a rectangle of the screen. Requires x, y, width, height and format."},
	{"listDisplays", "Lists the connected displays."},
	{"listWindows", "Lists the open windows."},
}

func summaryFor(name string) string {
	for _, e := range api {
		if strings.EqualFold(e.name, name) {
			return e.summary
		}
	}
	return ""
}

func (s *Server) handleHover(msg *rpcMessage) error {
	var params textDocumentPositionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	ctx := s.requestContext()
	p, ok := s.engine.PatternAt(ctx, params.TextDocument.URI, params.Position.Line)
	if !ok {
		return s.sendResponse(msg.ID, nil)
	}
	doc, _ := s.docs.Snapshot(params.TextDocument.URI)
	rng := patternRange(doc.Text, p)
	return s.sendResponse(msg.ID, &hover{
		Contents: markupContent{Kind: "markdown", Value: hoverText(p)},
		Range:    &rng,
	})
}

func hoverText(p model.Pattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (%s)\n", p.MatchedText, strings.ReplaceAll(p.Category.String(), "_", " "))

	name := p.MatchedText
	if replacement, deprecated := diagnostics.ReplacementFor(name); deprecated {
		fmt.Fprintf(&b, "\n_Deprecated: use `%s` instead._\n", replacement)
		name = replacement
	}
	if summary := summaryFor(name); summary != "" {
		fmt.Fprintf(&b, "\n%s\n", summary)
	}
	if p.Category == model.CategoryRegion {
		if p.HasParameters() {
			parts := make([]string, 0, len(pattern.RegionKeys))
			for _, k := range pattern.RegionKeys {
				if v, ok := p.Parameters[k]; ok {
					parts = append(parts, fmt.Sprintf("%s=%d", k, v))
				}
			}
			fmt.Fprintf(&b, "\nRegion: %s\n", strings.Join(parts, ", "))
		} else {
			b.WriteString("\nRegion: no literal coordinates\n")
		}
	}
	return b.String()
}

func (s *Server) handleCodeLens(msg *rpcMessage) error {
	var params codeLensParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	doc, patterns, ok := s.engine.Patterns(s.requestContext(), params.TextDocument.URI)
	if !ok {
		return s.sendResponse(msg.ID, []codeLens{})
	}
	lenses := make([]codeLens, 0, len(patterns))
	for _, p := range patterns {
		cmd := lensCommand(p)
		if cmd == nil {
			continue
		}
		lenses = append(lenses, codeLens{Range: patternRange(doc.Text, p), Command: cmd})
	}
	return s.sendResponse(msg.ID, lenses)
}

// lensCommand returns the command offered above a pattern, or nil when the
// call site carries too little information to run it.
func lensCommand(p model.Pattern) *command {
	switch p.Category {
	case model.CategoryRegion:
		missing := pattern.MissingRegionKeys(p.Parameters)
		if len(missing) > 0 || p.Parameters["width"] <= 0 || p.Parameters["height"] <= 0 {
			return nil
		}
		return &command{
			Title:   fmt.Sprintf("Capture %dx%d region at (%d, %d)", p.Parameters["width"], p.Parameters["height"], p.Parameters["x"], p.Parameters["y"]),
			Command: capture.ToolCaptureRegion,
			Arguments: []any{capture.RegionArgs{
				X:      capture.Int(p.Parameters["x"]),
				Y:      capture.Int(p.Parameters["y"]),
				Width:  capture.Int(p.Parameters["width"]),
				Height: capture.Int(p.Parameters["height"]),
				Format: "png",
			}},
		}
	case model.CategoryCapture:
		// Window captures need a target, so offer the window list instead.
		if strings.Contains(strings.ToLower(p.MatchedText), "window") {
			return &command{Title: "List windows", Command: capture.ToolListWindows}
		}
		return &command{
			Title:     "Capture screen",
			Command:   capture.ToolCaptureFull,
			Arguments: []any{capture.FullScreenArgs{Format: "png"}},
		}
	case model.CategoryListDisplays:
		return &command{Title: "List displays", Command: capture.ToolListDisplays}
	case model.CategoryListWindows:
		return &command{Title: "List windows", Command: capture.ToolListWindows}
	}
	return nil
}

func (s *Server) handleCompletion(msg *rpcMessage) error {
	items := make([]completionItem, 0, len(api))
	for _, e := range api {
		items = append(items, completionItem{
			Label:         e.name,
			Kind:          completionKindFunction,
			Detail:        "shotlens capture API",
			Documentation: &markupContent{Kind: "markdown", Value: e.summary},
			InsertText:    e.name,
		})
	}
	return s.sendResponse(msg.ID, completionList{Items: items})
}

func (s *Server) handleExecuteCommand(msg *rpcMessage) error {
	var params executeCommandParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.sendError(msg.ID, codeInvalidParams, "invalid params")
	}
	if !capture.IsTool(params.Command) {
		return s.sendError(msg.ID, codeInvalidParams, fmt.Sprintf("unknown command %q", params.Command))
	}
	if s.executor == nil || !s.executor.IsAvailable() {
		return s.sendError(msg.ID, codeInternalError, "capture bridge unavailable")
	}
	var args json.RawMessage
	if len(params.Arguments) > 0 {
		args = params.Arguments[0]
	}

	// Captures can take seconds; keep reading edits meanwhile.
	ctx := s.requestContext()
	id := msg.ID
	s.commands.Add(1)
	go func() {
		defer s.commands.Done()
		result, err := s.executor.Execute(ctx, params.Command, args)
		if err != nil {
			code := codeInternalError
			var verr *capture.ValidationError
			if errors.As(err, &verr) {
				code = codeInvalidParams
			}
			s.logger.Warn("capture command failed",
				slog.String("command", params.Command),
				slog.Any("error", err),
			)
			if sendErr := s.sendError(id, code, err.Error()); sendErr != nil {
				s.logger.Warn("failed to send error response", slog.Any("error", sendErr))
			}
			return
		}
		if sendErr := s.sendResponse(id, result); sendErr != nil {
			s.logger.Warn("failed to send command result", slog.Any("error", sendErr))
		}
	}()
	return nil
}
