// Package kflags defines the flag registration interface used by the Register
// methods of Flags structs across the repository.
//
// The interface is a subset of *pflag.FlagSet, so cobra commands can pass
// cmd.Flags() or cmd.PersistentFlags() directly.
package kflags

import (
	"time"

	"github.com/spf13/pflag"
)

// FlagSet is where Flags structs register their command line options.
type FlagSet interface {
	BoolVar(value *bool, name string, defValue bool, usage string)
	StringVar(value *string, name string, defValue string, usage string)
	StringArrayVar(value *[]string, name string, defValue []string, usage string)
	IntVar(value *int, name string, defValue int, usage string)
	DurationVar(value *time.Duration, name string, defValue time.Duration, usage string)
}

var _ FlagSet = (*pflag.FlagSet)(nil)

// CommandLine is the process wide flag set, as in the flag and pflag packages.
var CommandLine FlagSet = pflag.CommandLine
