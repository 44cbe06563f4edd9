package data

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// Malformed input, detected before any sorting starts
type FormatError struct {
	Source string // "text" or "array"
	Index  int    // Token (text) or partition (array) that failed
	Token  string
	Reason string
}

func (self *FormatError) Error() string {
	if self.Token != "" {
		return fmt.Sprintf("Malformed %v input at item %v (%q): %v", self.Source, self.Index, self.Token, self.Reason)
	}
	return fmt.Sprintf("Malformed %v input at item %v: %v", self.Source, self.Index, self.Reason)
}

func IsFormatError(err error) bool {
	var ferr *FormatError
	return errors.As(err, &ferr)
}

// ReadText parses whitespace-separated decimal integers.
func ReadText(r io.Reader) ([]int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	out := []int64{}
	for scanner.Scan() {
		tok := scanner.Text()
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			reason := "not an integer"
			if errors.Is(err, strconv.ErrRange) {
				reason = "out of int64 range"
			}
			return nil, &FormatError{Source: "text", Index: len(out), Token: tok, Reason: reason}
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Failed to read text input")
	}
	return out, nil
}

// WriteText writes the values separated by single spaces, ending with a
// newline.
func WriteText(w io.Writer, vals []int64) error {
	bw := bufio.NewWriter(w)

	var num []byte
	for i, v := range vals {
		if i != 0 {
			if err := bw.WriteByte(' '); err != nil {
				return err
			}
		}
		num = strconv.AppendInt(num[:0], v, 10)
		if _, err := bw.Write(num); err != nil {
			return err
		}
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}
