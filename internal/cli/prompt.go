package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
)

// isInteractive reports whether stdin is a terminal.
func isInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

type field struct {
	flag     string
	title    string
	value    *string
	secret   bool
	required bool
}

// promptMissing asks for every field that is still empty. Without a
// terminal the first missing required field is an error naming its flag.
func (a *app) promptMissing(fields ...field) error {
	var inputs []huh.Field
	for _, f := range fields {
		if strings.TrimSpace(*f.value) != "" {
			continue
		}
		if !a.interactive() {
			if f.required {
				return fmt.Errorf("--%s is required", f.flag)
			}
			continue
		}
		in := huh.NewInput().Title(f.title).Value(f.value)
		if f.secret {
			in = in.EchoMode(huh.EchoModePassword)
		}
		if f.required {
			in = in.Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("required")
				}
				return nil
			})
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil
	}
	if err := huh.NewForm(huh.NewGroup(inputs...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// confirm asks a yes/no question. Without a terminal it refuses.
func (a *app) confirm(message string) (bool, error) {
	if !a.interactive() {
		return false, errors.New("refusing to continue without confirmation; pass --yes")
	}
	var ok bool
	c := huh.NewConfirm().
		Title(message).
		Affirmative("Delete").
		Negative("Cancel").
		Value(&ok)
	if err := huh.NewForm(huh.NewGroup(c)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return ok, nil
}
