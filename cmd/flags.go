package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/podev-dev/podev/internal/config"
	"github.com/podev-dev/podev/internal/render"
)

// renderModeValue is a pflag.Value that rejects an unknown render mode at
// parse time, before configuration loading runs.
type renderModeValue struct {
	value string
}

func newRenderModeValue(def string) *renderModeValue {
	return &renderModeValue{value: def}
}

func (v *renderModeValue) String() string { return v.value }
func (v *renderModeValue) Type() string   { return "string" }

func (v *renderModeValue) Set(val string) error {
	if _, err := render.ParseMode(val); err != nil {
		return err
	}
	v.value = val
	return nil
}

// appModeValue validates the app mode flag at parse time.
type appModeValue struct {
	value string
}

func newAppModeValue(def string) *appModeValue {
	return &appModeValue{value: def}
}

func (v *appModeValue) String() string { return v.value }
func (v *appModeValue) Type() string   { return "string" }

func (v *appModeValue) Set(val string) error {
	if val != config.ModeDevelopment && val != config.ModeProduction {
		return fmt.Errorf("mode %q is not one of development, production", val)
	}
	v.value = val
	return nil
}

var (
	_ pflag.Value = (*renderModeValue)(nil)
	_ pflag.Value = (*appModeValue)(nil)
)
