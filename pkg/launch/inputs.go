package launch

import (
	"fmt"
	"time"

	"github.com/nathantp/psrs/pkg/data"
	"github.com/pkg/errors"
)

// JSON serializable version of data.PartRef. Only file arrays can be passed
// between processes.
type FilePartRef struct {
	ArrayPath string `json:"arrayPath"`
	PartId    int    `json:"partID"`
	Start     int    `json:"start"`
	NElem     int    `json:"nelem"`
}

// Argument read by a worker process on stdin
type WorkerArg struct {
	Rank  int      `json:"rank"`
	Addrs []string `json:"addrs"` // listen address of every rank, by rank

	ConnectTimeout time.Duration `json:"connectTimeout"`
	LocalWorkers   int           `json:"localWorkers"`
	Lockstep       bool          `json:"lockstep"`
	Verbose        bool          `json:"verbose"`

	// Coordinator only: where to read the input and write the sorted output
	// (partition 0 of a file array)
	Input  []*FilePartRef `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`

	// If set, every rank appends its sorted run to partition Rank of this
	// file array
	RunsDir string `json:"runsDir,omitempty"`
}

// Written by a worker process on stdout
type WorkerResp struct {
	Success bool   `json:"success"`
	Err     string `json:"err"`

	Rank   int `json:"rank"`
	RunLen int `json:"runLen"`

	// Nanoseconds spent in each phase, indexed by psrs.Phase
	Phases []int64 `json:"phases"`
}

// Convert a data.PartRef to a FilePartRef
func FilePartRefToWorker(ref *data.PartRef) (*FilePartRef, error) {
	fileArr, ok := ref.Arr.(*data.FileDistribArray)
	if !ok {
		return nil, fmt.Errorf("PartRef array has wrong type \"%T\", must be data.FileDistribArray", ref.Arr)
	}

	arg := &FilePartRef{
		ArrayPath: fileArr.RootPath,
		PartId:    ref.PartIdx,
		Start:     ref.Start,
		NElem:     ref.NElem,
	}
	return arg, nil
}

// Load a FilePartRef into a local data.PartRef
func LoadFilePartRef(ref *FilePartRef) (*data.PartRef, error) {
	arr, err := data.OpenFileDistribArray(ref.ArrayPath)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to load referenced FileDistribArray")
	}

	return &data.PartRef{Arr: arr, PartIdx: ref.PartId, Start: ref.Start, NElem: ref.NElem}, nil
}
