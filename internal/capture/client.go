// Package capture is the typed façade over the capture subordinate.
//
// Each operation checks that its required arguments are present, then
// forwards them as a tools/call request. The subordinate owns all real
// behavior; argument values beyond presence are its concern.
package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/timvw/shotlens/internal/rpc"
)

// Tool names understood by the subordinate.
const (
	ToolCaptureFull   = "screenshot_capture_full"
	ToolCaptureWindow = "screenshot_capture_window"
	ToolCaptureRegion = "screenshot_capture_region"
	ToolListDisplays  = "screenshot_list_displays"
	ToolListWindows   = "screenshot_list_windows"
)

// Tools lists every operation Execute accepts.
var Tools = []string{
	ToolCaptureFull,
	ToolCaptureWindow,
	ToolCaptureRegion,
	ToolListDisplays,
	ToolListWindows,
}

// IsTool reports whether name is a known operation.
func IsTool(name string) bool {
	for _, t := range Tools {
		if t == name {
			return true
		}
	}
	return false
}

// Caller is the transport surface the façade needs. *rpc.Transport
// satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	State() rpc.State
}

// Result is the conventional capture result. Raw always holds the
// undecoded response.
type Result struct {
	Status   string          `json:"status"`
	FilePath string          `json:"filePath,omitempty"`
	Data     string          `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// Err returns ErrCaptureFailed with the subordinate's message when the
// result reports an error status.
func (r *Result) Err() error {
	if r == nil || r.Status != "error" {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrCaptureFailed, r.Message)
}

func decodeResult(raw json.RawMessage) *Result {
	r := &Result{Raw: raw}
	// Results that do not follow the convention are still returned via Raw.
	_ = json.Unmarshal(raw, r)
	return r
}

// Client exposes the five capture operations.
type Client struct {
	caller Caller
}

// New creates a Client over caller. A nil caller makes every call fail
// with rpc.ErrNotConnected.
func New(caller Caller) *Client {
	return &Client{caller: caller}
}

// IsAvailable reports whether the subordinate is connected.
func (c *Client) IsAvailable() bool {
	return c.caller != nil && c.caller.State() == rpc.StateConnected
}

func (c *Client) call(ctx context.Context, tool string, args any) (json.RawMessage, error) {
	if c.caller == nil {
		return nil, rpc.ErrNotConnected
	}
	return c.caller.Call(ctx, tool, args)
}

// CaptureFull captures the entire screen.
func (c *Client) CaptureFull(ctx context.Context, args FullScreenArgs) (*Result, error) {
	if err := validateArgs(ToolCaptureFull, args); err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, ToolCaptureFull, args)
	if err != nil {
		return nil, err
	}
	return decodeResult(raw), nil
}

// CaptureWindow captures a single window by id or title.
func (c *Client) CaptureWindow(ctx context.Context, args WindowArgs) (*Result, error) {
	if err := validateArgs(ToolCaptureWindow, args); err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, ToolCaptureWindow, args)
	if err != nil {
		return nil, err
	}
	return decodeResult(raw), nil
}

// CaptureRegion captures a rectangle of the screen.
func (c *Client) CaptureRegion(ctx context.Context, args RegionArgs) (*Result, error) {
	if err := validateArgs(ToolCaptureRegion, args); err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, ToolCaptureRegion, args)
	if err != nil {
		return nil, err
	}
	return decodeResult(raw), nil
}

// ListDisplays returns the subordinate's display list unchanged.
func (c *Client) ListDisplays(ctx context.Context) (json.RawMessage, error) {
	return c.call(ctx, ToolListDisplays, nil)
}

// ListWindows returns the subordinate's window list unchanged.
func (c *Client) ListWindows(ctx context.Context) (json.RawMessage, error) {
	return c.call(ctx, ToolListWindows, nil)
}

// Execute runs an operation by tool name with JSON arguments and returns
// the raw result. Unknown names fail with ErrUnknownCommand without
// contacting the subordinate.
func (c *Client) Execute(ctx context.Context, name string, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args any
	switch name {
	case ToolCaptureFull:
		var a FullScreenArgs
		if err := decodeArgs(rawArgs, &a); err != nil {
			return nil, fmt.Errorf("%s: invalid arguments: %w", name, err)
		}
		args = a
	case ToolCaptureWindow:
		var a WindowArgs
		if err := decodeArgs(rawArgs, &a); err != nil {
			return nil, fmt.Errorf("%s: invalid arguments: %w", name, err)
		}
		args = a
	case ToolCaptureRegion:
		var a RegionArgs
		if err := decodeArgs(rawArgs, &a); err != nil {
			return nil, fmt.Errorf("%s: invalid arguments: %w", name, err)
		}
		args = a
	case ToolListDisplays, ToolListWindows:
		return c.call(ctx, name, nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	if err := validateArgs(name, args); err != nil {
		return nil, err
	}
	return c.call(ctx, name, args)
}
