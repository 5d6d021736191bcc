package cmd

import (
	"fmt"
	"os"
	"path/filepath"
)

// outputFile stages the patch script next to its destination so a failed
// run leaves any previous script untouched.
type outputFile struct {
	*os.File
	dest string
	done bool
}

func createOutput(dest string) (*outputFile, error) {
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return nil, fmt.Errorf("could not create output file: %w", err)
	}
	return &outputFile{File: f, dest: dest}, nil
}

// Commit closes the staged file and moves it over the destination.
func (o *outputFile) Commit() error {
	if err := o.Close(); err != nil {
		return fmt.Errorf("could not write output file: %w", err)
	}
	if err := os.Chmod(o.Name(), 0o644); err != nil {
		return fmt.Errorf("could not write output file: %w", err)
	}
	if err := os.Rename(o.Name(), o.dest); err != nil {
		return fmt.Errorf("could not write output file: %w", err)
	}
	o.done = true
	return nil
}

// Discard removes the staged file unless it was committed.
func (o *outputFile) Discard() {
	if o.done {
		return
	}
	o.Close()
	os.Remove(o.Name())
}
