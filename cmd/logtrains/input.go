package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var errNoInput = errors.New("no input provided; pipe logs or provide a filename")

// readInput returns the log text from path, or from stdin when path is empty
// or "-". notice is called before blocking on an interactive stdin.
func readInput(path string, stdin io.Reader, interactive bool, notice func()) (text, source string, err error) {
	var data []byte
	if path != "" && path != "-" {
		data, err = os.ReadFile(path)
		if err != nil {
			return "", path, fmt.Errorf("read %s: %w", path, err)
		}
		source = path
	} else {
		if interactive && notice != nil {
			notice()
		}
		data, err = io.ReadAll(stdin)
		if err != nil {
			return "", "stdin", fmt.Errorf("read stdin: %w", err)
		}
		source = "stdin"
	}
	text = string(data)
	if strings.TrimSpace(text) == "" {
		return "", source, errNoInput
	}
	return text, source, nil
}
