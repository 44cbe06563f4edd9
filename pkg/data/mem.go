package data

import (
	"fmt"
	"io"
	"sync"
)

// Named in-memory arrays, so Open can find what Create made
var memArrays = struct {
	sync.Mutex
	arrs map[string]*MemDistribArray
}{arrs: make(map[string]*MemDistribArray)}

var MemArrayFactory = &ArrayFactory{
	Create: func(name string, npart int) (DistribArray, error) {
		return CreateMemDistribArray(name, npart)
	},
	Open: func(name string) (DistribArray, error) {
		return OpenMemDistribArray(name)
	},
}

// A write-closer for MemDistribArray, close is a nop in this case
type memPartWriter struct {
	arr  *MemDistribArray
	part int
}

func (self *memPartWriter) Write(in []byte) (n int, err error) {
	self.arr.mu.Lock()
	defer self.arr.mu.Unlock()
	self.arr.parts[self.part] = append(self.arr.parts[self.part], in...)
	return len(in), nil
}

func (self *memPartWriter) Close() error {
	return nil
}

// A read-closer for MemDistribArray, close is a nop in this case
type memPartReader struct {
	buf []byte
}

func (self *memPartReader) Read(dst []byte) (n int, err error) {
	if len(self.buf) == 0 {
		return 0, io.EOF
	}
	n = copy(dst, self.buf)
	self.buf = self.buf[n:]

	if len(self.buf) == 0 {
		err = io.EOF
	}
	return n, err
}

func (self *memPartReader) Close() error {
	return nil
}

// In-memory 'distributed' array. Does not provide any persistence and cannot
// share between processes (only goroutines in the same address space).
type MemDistribArray struct {
	name  string
	mu    sync.Mutex
	parts [][]byte
}

func CreateMemDistribArray(name string, npart int) (*MemDistribArray, error) {
	if npart < 0 {
		return nil, fmt.Errorf("Invalid number of partitions: %v", npart)
	}

	memArrays.Lock()
	defer memArrays.Unlock()

	if _, ok := memArrays.arrs[name]; ok {
		return nil, fmt.Errorf("Array %v already exists", name)
	}

	arr := &MemDistribArray{name: name, parts: make([][]byte, npart)}
	memArrays.arrs[name] = arr
	return arr, nil
}

func OpenMemDistribArray(name string) (*MemDistribArray, error) {
	memArrays.Lock()
	defer memArrays.Unlock()

	arr, ok := memArrays.arrs[name]
	if !ok {
		return nil, fmt.Errorf("Array %v does not exist", name)
	}
	return arr, nil
}

func (self *MemDistribArray) checkPart(partId int) error {
	if partId < 0 || partId >= len(self.parts) {
		return fmt.Errorf("Partition %v out of range (array has %v)", partId, len(self.parts))
	}
	return nil
}

func (self *MemDistribArray) GetShape() (DistribArrayShape, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	lens := make([]int64, len(self.parts))
	for i, p := range self.parts {
		lens[i] = (int64)(len(p))
	}
	return CreateShape(lens), nil
}

func (self *MemDistribArray) GetPartRangeReader(partId, start, end int) (io.ReadCloser, error) {
	if err := self.checkPart(partId); err != nil {
		return nil, err
	}

	self.mu.Lock()
	buf := self.parts[partId]
	self.mu.Unlock()

	if end <= 0 {
		end = len(buf) + end
	}
	if start < 0 || start > end || end > len(buf) {
		return nil, fmt.Errorf("Invalid range [%v, %v) for partition of %v bytes", start, end, len(buf))
	}
	return &memPartReader{buf: buf[start:end]}, nil
}

func (self *MemDistribArray) GetPartReader(partId int) (io.ReadCloser, error) {
	return self.GetPartRangeReader(partId, 0, 0)
}

func (self *MemDistribArray) GetPartWriter(partId int) (io.WriteCloser, error) {
	if err := self.checkPart(partId); err != nil {
		return nil, err
	}
	return &memPartWriter{arr: self, part: partId}, nil
}

func (self *MemDistribArray) Close() error {
	return nil
}

func (self *MemDistribArray) Destroy() error {
	memArrays.Lock()
	defer memArrays.Unlock()

	if memArrays.arrs[self.name] == self {
		delete(memArrays.arrs, self.name)
	}
	return nil
}
