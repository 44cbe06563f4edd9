package data

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Read exactly n little-endian int64s from r
func ReadInts(r io.Reader, n int) ([]int64, error) {
	out := make([]int64, n)
	if n == 0 {
		return out, nil
	}
	if err := binary.Read(r, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

func WriteInts(w io.Writer, vals []int64) error {
	if len(vals) == 0 {
		return nil
	}
	return binary.Write(w, binary.LittleEndian, vals)
}

// Fetch every referenced range into one slice, in the order of refs
func FetchPartRefs(refs []*PartRef) ([]int64, error) {
	totalLen := 0
	for i := 0; i < len(refs); i++ {
		totalLen += refs[i].NElem
	}

	var out = make([]int64, 0, totalLen)
	for i := 0; i < len(refs); i++ {
		ref := refs[i]

		reader, err := ref.Arr.GetPartRangeReader(ref.PartIdx, ref.Start*ElemSize, (ref.Start+ref.NElem)*ElemSize)
		if err != nil {
			return nil, errors.Wrapf(err, "Couldn't read partition from ref %v", i)
		}

		vals, err := ReadInts(reader, ref.NElem)
		reader.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "Couldn't read from input ref %v", i)
		}
		out = append(out, vals...)
	}

	return out, nil
}

// Read the whole array, partitions concatenated in order
func ReadArray(arr DistribArray) ([]int64, error) {
	shape, err := arr.GetShape()
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't get shape of array")
	}

	refs := make([]*PartRef, shape.NPart())
	for i := range refs {
		if shape.Len(i)%ElemSize != 0 {
			return nil, &FormatError{Source: "array", Index: i,
				Reason: "partition length is not a whole number of elements"}
		}
		refs[i] = &PartRef{Arr: arr, PartIdx: i, Start: 0, NElem: shape.NElem(i)}
	}
	return FetchPartRefs(refs)
}

// Append vals to one partition
func WritePart(arr DistribArray, partId int, vals []int64) error {
	writer, err := arr.GetPartWriter(partId)
	if err != nil {
		return errors.Wrapf(err, "Failed to get writer for partition %v", partId)
	}

	if err := WriteInts(writer, vals); err != nil {
		writer.Close()
		return errors.Wrapf(err, "Failed to write partition %v", partId)
	}
	return writer.Close()
}

// RecreateArray creates a fresh array called name with npart partitions,
// destroying any array that already has that name.
func RecreateArray(factory *ArrayFactory, name string, npart int) (DistribArray, error) {
	if old, err := factory.Open(name); err == nil {
		if err := old.Destroy(); err != nil {
			return nil, errors.Wrapf(err, "Failed to replace existing array %v", name)
		}
	}

	arr, err := factory.Create(name, npart)
	if err != nil {
		return nil, errors.Wrapf(err, "Couldn't create array %v", name)
	}
	return arr, nil
}

// Partition lengths of arr in elements
func PartLens(arr DistribArray) ([]int, error) {
	shape, err := arr.GetShape()
	if err != nil {
		return nil, err
	}

	lens := make([]int, shape.NPart())
	for i := range lens {
		lens[i] = shape.NElem(i)
	}
	return lens, nil
}
