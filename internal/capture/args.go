package capture

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FullScreenArgs are the arguments of screenshot_capture_full.
type FullScreenArgs struct {
	Format           string `json:"format" validate:"required"`
	Quality          *int   `json:"quality,omitempty"`
	EnablePIIMasking *bool  `json:"enablePIIMasking,omitempty"`
	SavePath         string `json:"savePath,omitempty"`
}

// WindowArgs are the arguments of screenshot_capture_window. One of
// WindowID or WindowTitle is required.
type WindowArgs struct {
	WindowID     string `json:"windowId,omitempty" validate:"required_without=WindowTitle"`
	WindowTitle  string `json:"windowTitle,omitempty" validate:"required_without=WindowID"`
	Format       string `json:"format" validate:"required"`
	IncludeFrame *bool  `json:"includeFrame,omitempty"`
	SavePath     string `json:"savePath,omitempty"`
}

// RegionArgs are the arguments of screenshot_capture_region. Coordinates
// are pointers so that an explicit 0 counts as present.
type RegionArgs struct {
	X        *int   `json:"x" validate:"required"`
	Y        *int   `json:"y" validate:"required"`
	Width    *int   `json:"width" validate:"required"`
	Height   *int   `json:"height" validate:"required"`
	Format   string `json:"format" validate:"required"`
	Quality  *int   `json:"quality,omitempty"`
	SavePath string `json:"savePath,omitempty"`
}

// Int returns a pointer to v, for building optional arguments.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

var argsValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names so messages match what callers wrote.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateArgs checks required fields, returning a *ValidationError that
// names every missing field.
func validateArgs(command string, args any) error {
	err := argsValidate.Struct(args)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	verr := &ValidationError{Command: command}
	seen := make(map[string]bool)
	for _, fe := range fieldErrs {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		verr.Fields = append(verr.Fields, fe.Field())
	}
	return verr
}

// decodeArgs unmarshals raw into dst. Empty input leaves dst zero.
func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
