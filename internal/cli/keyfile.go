package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// KeyReader streams project keys from a list file.
type KeyReader interface {
	Read(path string, handle func(key string) error) error
}

type keyFileReader struct{}

// NewKeyFileReader creates a reader for project key files. Keys are separated by
// newlines, commas or spaces; "#" starts a comment that runs to the end of the line.
func NewKeyFileReader() KeyReader {
	return &keyFileReader{}
}

func (r *keyFileReader) Read(path string, handle func(key string) error) (err error) {
	_ = r

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open key file %q: %w", path, err)
	}
	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close key file %q: %w", path, closeErr)
		}
	}()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, key := range fields {
			if handleErr := handle(strings.ToUpper(key)); handleErr != nil {
				return fmt.Errorf("%s:%d: key %q: %w", path, lineNo, key, handleErr)
			}
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("scan key file %q: %w", path, scanErr)
	}
	return nil
}
