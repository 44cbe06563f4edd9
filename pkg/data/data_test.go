package data

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// Check if a PartRangeReader returns the right data. Always checks part0 which
// is assumed to contain ref.
func testPartRangeReader(t *testing.T, arr DistribArray, ref []byte, start int, stop int) {
	// semantics of RangeReader
	var realStop int
	if stop <= 0 {
		realStop = len(ref) + stop
	} else {
		realStop = stop
	}

	readLen := realStop - start

	reader, err := arr.GetPartRangeReader(0, start, stop)
	require.Nil(t, err, "Failed to get reader")

	out, err := io.ReadAll(reader)
	require.Nil(t, err, "Failed to read range")
	require.Equalf(t, readLen, len(out), "Didn't read enough values")
	require.Truef(t, bytes.Equal(out, ref[start:realStop]), "Returned wrong values: expected %v, got %v", ref[start:realStop], out)

	err = reader.Close()
	require.Nilf(t, err, "Failed to close reader")
}

// A very pedantic read procedure with lots of checking. Most people will just use io.ReadFull.
func readPart(t *testing.T, partReader io.ReadCloser, dst []byte) {
	var err error

	ntotal := 0
	for ntotal < len(dst) {
		var n int
		n, err = partReader.Read(dst[ntotal:])
		ntotal += n
		if err == io.EOF {
			require.Equalf(t, len(dst), ntotal, "Didn't read enough bytes")
			break
		}
		require.Nil(t, err, "Error returned after reading %v bytes: %v", ntotal, err)
		require.NotZerof(t, n, "Reader didn't return any data")
	}
	require.Equalf(t, len(dst), ntotal, "Read the wrong number of bytes")

	// ReadCloser must return io.EOF either with the last bytes or with a zero
	// length read after the last bytes
	if err != io.EOF {
		overflow := make([]byte, 1)
		n, err := partReader.Read(overflow)
		require.Zerof(t, n, "Read extra bytes")
		require.Equalf(t, io.EOF, err, "partReader failed to return io.EOF")
	}
	err = partReader.Close()
	require.Nilf(t, err, "Failed to close partReader: %v", err)
}

// Fill every partition of arr with partLen random elements
func generateInts(t *testing.T, arr DistribArray, partLen int) (raw []int64) {
	shape, err := arr.GetShape()
	require.Nilf(t, err, "Failed to get shape of array")

	raw = make([]int64, shape.NPart()*partLen)
	for i := range raw {
		raw[i] = rand.Int63() - rand.Int63()
	}
	for partIdx := 0; partIdx < shape.NPart(); partIdx++ {
		globalStart := partIdx * partLen
		err = WritePart(arr, partIdx, raw[globalStart:globalStart+partLen])
		require.Nilf(t, err, "Error while writing to part %v", partIdx)
	}

	return raw
}

func checkArr(t *testing.T, arr DistribArray, ref []int64) {
	shape, err := arr.GetShape()
	require.Nilf(t, err, "Failed to get shape of array")
	require.Equal(t, len(ref), shape.TotalElems(), "Array has the wrong size")

	refBytes := new(bytes.Buffer)
	require.Nil(t, WriteInts(refBytes, ref))

	pos := 0
	for partIdx := 0; partIdx < shape.NPart(); partIdx++ {
		partLen := (int)(shape.Len(partIdx))
		retBytes := make([]byte, partLen)

		reader, err := arr.GetPartReader(partIdx)
		require.Nilf(t, err, "Failed to get reader for part %v", partIdx)

		readPart(t, reader, retBytes)
		require.Equalf(t, refBytes.Bytes()[pos:pos+partLen], retBytes,
			"Returned bytes don't match in partition %v", partIdx)
		pos += partLen
	}

	all, err := ReadArray(arr)
	require.Nil(t, err, "ReadArray failed")
	require.Equal(t, ref, all, "ReadArray returned the wrong values")
}

func testArrayFactory(t *testing.T, fact *ArrayFactory, name string) {
	arr, err := fact.Create(name, 2)
	require.Nil(t, err, "Failed to create array from factory")
	raw := generateInts(t, arr, 5)
	arr.Close()

	openArr, err := fact.Open(name)
	require.Nil(t, err, "Failed to open array from factory")
	checkArr(t, openArr, raw)

	require.Nil(t, openArr.Destroy())
	_, err = fact.Open(name)
	require.NotNil(t, err, "Opened a destroyed array")
}
