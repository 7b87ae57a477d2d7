package engine

import (
	"bufio"
	"io"
)

const (
	streamScannerInitialBuffer = 64 * 1024
	streamScannerMaxBuffer     = 512 * 1024
)

// newStreamScanner returns a line scanner sized for SSE frames. Status
// events embed full job documents, so lines can far exceed the default
// bufio token limit.
func newStreamScanner(reader io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, streamScannerInitialBuffer), streamScannerMaxBuffer)
	return scanner
}
