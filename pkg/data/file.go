package data

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const fileArrayMeta = "array.yaml"

var FileArrayFactory = &ArrayFactory{
	Create: func(name string, npart int) (DistribArray, error) {
		return CreateFileDistribArray(name, npart)
	},
	Open: func(name string) (DistribArray, error) {
		return OpenFileDistribArray(name)
	},
}

// Persistent description of a file array. Partition lengths are not stored,
// they are the sizes of the partition files.
type fileArrayMetadata struct {
	NPart    int    `yaml:"npart"`
	ElemType string `yaml:"elemType"`
}

type fileRangeReader struct {
	file *os.File

	// The number of bytes still to read before hitting the limit
	nRemaining int
}

func (self *fileRangeReader) Read(dst []byte) (n int, err error) {
	if self.nRemaining == 0 {
		return 0, io.EOF
	}
	if len(dst) > self.nRemaining {
		dst = dst[:self.nRemaining]
	}

	n, err = self.file.Read(dst)
	self.nRemaining -= n
	if err == io.EOF && self.nRemaining != 0 {
		err = io.ErrUnexpectedEOF
	} else if err == nil && self.nRemaining == 0 {
		err = io.EOF
	}
	return n, err
}

func (self *fileRangeReader) Close() error {
	return self.file.Close()
}

// A DistribArray stored as a directory holding one file per partition
// (p0.dat, p1.dat, ...) of raw little-endian int64s.
type FileDistribArray struct {
	RootPath string
	npart    int
}

func CreateFileDistribArray(rootPath string, npart int) (*FileDistribArray, error) {
	var err error

	if npart < 0 {
		return nil, fmt.Errorf("Invalid number of partitions: %v", npart)
	}

	rootPath, err = filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	err = os.Mkdir(rootPath, 0700)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to create array directory %v", rootPath)
	}

	arr := &FileDistribArray{RootPath: rootPath, npart: npart}
	for i := 0; i < npart; i++ {
		// Go's create() doesn't allow you to set permissions so we have to
		// open and then immediately close
		pFile, err := os.OpenFile(arr.partPath(i), os.O_CREATE, 0600)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to create file for partition %v", i)
		}

		if err := pFile.Close(); err != nil {
			return nil, errors.Wrapf(err, "Failed to create file for partition %v", i)
		}
	}

	meta, err := yaml.Marshal(&fileArrayMetadata{NPart: npart, ElemType: "int64le"})
	if err != nil {
		return nil, errors.Wrap(err, "Failed to encode array metadata")
	}
	err = os.WriteFile(filepath.Join(rootPath, fileArrayMeta), meta, 0600)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to write array metadata")
	}

	return arr, nil
}

// Open an existing on-disk array
func OpenFileDistribArray(rootPath string) (*FileDistribArray, error) {
	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(rootPath, fileArrayMeta))
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to read metadata of array %v", rootPath)
	}

	var meta fileArrayMetadata
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, errors.Wrapf(err, "Failed to parse metadata of array %v", rootPath)
	}
	if meta.NPart < 0 || meta.ElemType != "int64le" {
		return nil, fmt.Errorf("Unsupported array %v: %v partitions of %q", rootPath, meta.NPart, meta.ElemType)
	}

	return &FileDistribArray{RootPath: rootPath, npart: meta.NPart}, nil
}

func (self *FileDistribArray) partPath(partId int) string {
	return filepath.Join(self.RootPath, fmt.Sprintf("p%v.dat", partId))
}

func (self *FileDistribArray) checkPart(partId int) error {
	if partId < 0 || partId >= self.npart {
		return fmt.Errorf("Partition %v out of range (array has %v)", partId, self.npart)
	}
	return nil
}

func (self *FileDistribArray) GetShape() (DistribArrayShape, error) {
	lens := make([]int64, self.npart)
	for i := 0; i < self.npart; i++ {
		stat, err := os.Stat(self.partPath(i))
		if err != nil {
			return DistribArrayShape{}, errors.Wrapf(err, "Failed to stat partition %v", i)
		}
		lens[i] = stat.Size()
	}
	return CreateShape(lens), nil
}

func (self *FileDistribArray) GetPartRangeReader(partId, start, end int) (io.ReadCloser, error) {
	var err error

	if err := self.checkPart(partId); err != nil {
		return nil, err
	}

	reader := fileRangeReader{}
	reader.file, err = os.Open(self.partPath(partId))
	if err != nil {
		return nil, err
	}

	stat, err := reader.file.Stat()
	if err != nil {
		reader.file.Close()
		return nil, err
	}
	if end <= 0 {
		end = (int)(stat.Size()) + end
	}
	if start < 0 || start > end || (int64)(end) > stat.Size() {
		reader.file.Close()
		return nil, fmt.Errorf("Invalid range [%v, %v) for partition of %v bytes", start, end, stat.Size())
	}

	if start != 0 {
		_, err = reader.file.Seek((int64)(start), io.SeekStart)
		if err != nil {
			reader.file.Close()
			return nil, errors.Wrapf(err, "Could not seek to provided start: %v", start)
		}
	}

	reader.nRemaining = end - start
	return &reader, nil
}

func (self *FileDistribArray) GetPartReader(partId int) (io.ReadCloser, error) {
	return self.GetPartRangeReader(partId, 0, 0)
}

func (self *FileDistribArray) GetPartWriter(partId int) (io.WriteCloser, error) {
	if err := self.checkPart(partId); err != nil {
		return nil, err
	}
	return os.OpenFile(self.partPath(partId), os.O_APPEND|os.O_WRONLY, 0)
}

func (self *FileDistribArray) Close() error {
	return nil
}

func (self *FileDistribArray) Destroy() error {
	return os.RemoveAll(self.RootPath)
}
