package knight

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// LineReader is the input capability PROMPT reads from. ok is false at end
// of input.
type LineReader interface {
	ReadLine() (line string, ok bool, err error)
}

// LineWriter is the output capability OUTPUT and DUMP write to.
type LineWriter interface {
	Write(s string) error
}

type bufferedLineReader struct {
	r *bufio.Reader
}

func NewLineReader(r io.Reader) LineReader {
	return &bufferedLineReader{r: bufio.NewReader(r)}
}

// ReadLine strips the trailing newline and then any carriage returns.
func (b *bufferedLineReader) ReadLine() (string, bool, error) {
	line, err := b.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	if line == "" && err != nil {
		return "", false, nil
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimRight(line, "\r")
	return line, true, nil
}

type writerSink struct {
	w io.Writer
}

func NewLineWriter(w io.Writer) LineWriter {
	return &writerSink{w: w}
}

func (s *writerSink) Write(str string) error {
	if _, err := io.WriteString(s.w, str); err != nil {
		return err
	}
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
