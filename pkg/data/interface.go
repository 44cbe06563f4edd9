package data

import (
	"io"
)

// Size in bytes of one stored element (a little-endian int64)
const ElemSize = 8

// Current byte length of every partition of a DistribArray
type DistribArrayShape struct {
	lens []int64
}

func CreateShape(lens []int64) DistribArrayShape {
	return DistribArrayShape{lens: lens}
}

func (self DistribArrayShape) NPart() int {
	return len(self.lens)
}

// Length of partition i in bytes
func (self DistribArrayShape) Len(i int) int64 {
	return self.lens[i]
}

// Length of partition i in elements
func (self DistribArrayShape) NElem(i int) int {
	return (int)(self.lens[i] / ElemSize)
}

func (self DistribArrayShape) TotalElems() int {
	total := 0
	for i := range self.lens {
		total += self.NElem(i)
	}
	return total
}

// A partitioned array of int64s. Partitions are independent: different
// partitions may be written concurrently (even from different processes for
// file-backed arrays), a single partition may not.
type DistribArray interface {
	GetShape() (DistribArrayShape, error)

	// Returns a reader for bytes [start, end) of a partition. end may be
	// negative to index backwards from the end of the partition; zero reads
	// until the end.
	GetPartRangeReader(partId, start, end int) (io.ReadCloser, error)

	GetPartReader(partId int) (io.ReadCloser, error)

	// Returns a writer that appends to the partition
	GetPartWriter(partId int) (io.WriteCloser, error)

	// Release any resources held by this handle. The array stays available
	// to Open.
	Close() error

	// Permanently remove the array
	Destroy() error
}

// A reference to a contiguous range of elements in one partition
type PartRef struct {
	Arr     DistribArray // DistribArray to read from
	PartIdx int          // Partition to read from
	Start   int          // First element to read
	NElem   int          // Number of elements to read
}

// Creates and re-opens arrays by name. For file arrays the name is a
// directory path.
type ArrayFactory struct {
	Create func(name string, npart int) (DistribArray, error)
	Open   func(name string) (DistribArray, error)
}
