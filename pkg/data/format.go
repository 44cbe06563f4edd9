package data

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

type Format string

const (
	// Whitespace separated decimal integers
	FormatText Format = "text"

	// A FileDistribArray directory. Output arrays hold one partition per
	// sorted run.
	FormatArray Format = "array"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatArray:
		return Format(s), nil
	default:
		return "", fmt.Errorf("Unknown format %q (expected %v or %v)", s, FormatText, FormatArray)
	}
}

func LoadInput(path string, format Format) ([]int64, error) {
	switch format {
	case FormatText:
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't read from file %v", path)
		}
		defer f.Close()
		return ReadText(f)

	case FormatArray:
		arr, err := OpenFileDistribArray(path)
		if err != nil {
			return nil, err
		}
		defer arr.Close()
		return ReadArray(arr)

	default:
		return nil, fmt.Errorf("Unknown format %q", format)
	}
}

// StoreOutput writes out to path, replacing anything already there. For
// array output runLens splits out into one partition per run; nil writes a
// single partition.
func StoreOutput(path string, format Format, out []int64, runLens []int) error {
	switch format {
	case FormatText:
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "Output file %v is not writable", path)
		}
		if err := WriteText(f, out); err != nil {
			f.Close()
			return errors.Wrapf(err, "Failed to write output %v", path)
		}
		return f.Close()

	case FormatArray:
		if runLens == nil {
			runLens = []int{len(out)}
		}
		total := 0
		for _, l := range runLens {
			total += l
		}
		if total != len(out) {
			return fmt.Errorf("Run lengths cover %v elements, output has %v", total, len(out))
		}

		arr, err := RecreateArray(FileArrayFactory, path, len(runLens))
		if err != nil {
			return err
		}
		defer arr.Close()

		pos := 0
		for i, l := range runLens {
			if err := WritePart(arr, i, out[pos:pos+l]); err != nil {
				return err
			}
			pos += l
		}
		return nil

	default:
		return fmt.Errorf("Unknown format %q", format)
	}
}
