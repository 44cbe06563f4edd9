package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileDistribArr(t *testing.T) {
	targetSz := 64

	tmpDir := t.TempDir()

	arrPath0 := filepath.Join(tmpDir, "testFileArr0")
	arrPath1 := filepath.Join(tmpDir, "testFileArr1")

	arr0, err := CreateFileDistribArray(arrPath0, 2)
	require.Nilf(t, err, "Failed to initialize array: %v", err)

	raw0 := generateInts(t, arr0, targetSz)

	t.Run("ReadWrite", func(t *testing.T) {
		checkArr(t, arr0, raw0)
	})

	t.Run("ReRead", func(t *testing.T) {
		checkArr(t, arr0, raw0)
	})

	t.Run("RangeReader", func(t *testing.T) {
		reader, err := arr0.GetPartReader(0)
		require.Nil(t, err)
		raw := make([]byte, targetSz*ElemSize)
		readPart(t, reader, raw)

		testPartRangeReader(t, arr0, raw, 0, 0)
		testPartRangeReader(t, arr0, raw, 8, 24)
		testPartRangeReader(t, arr0, raw, 3, -5)
		testPartRangeReader(t, arr0, raw, 16, 16)

		_, err = arr0.GetPartRangeReader(0, 0, len(raw)+1)
		require.NotNil(t, err, "Out of bounds range accepted")
	})

	t.Run("ReOpenArr", func(t *testing.T) {
		reArr0, err := OpenFileDistribArray(arrPath0)
		require.Nil(t, err, "Failed to re-open array")
		checkArr(t, reArr0, raw0)
	})

	t.Run("MultipleArrays", func(t *testing.T) {
		arr1, err := CreateFileDistribArray(arrPath1, 3)
		require.Nilf(t, err, "Failed to initialize array: %v", err)

		raw1 := generateInts(t, arr1, targetSz)
		arr1.Close()

		// Check reopening both
		reArr0, err := OpenFileDistribArray(arrPath0)
		require.Nilf(t, err, "Failed to reopen testFileArr0")
		reArr1, err := OpenFileDistribArray(arrPath1)
		require.Nilf(t, err, "Failed to reopen testFileArr1")

		checkArr(t, reArr0, raw0)
		checkArr(t, reArr1, raw1)

		reArr0.Close()
		reArr1.Close()
	})

	t.Run("Destroy", func(t *testing.T) {
		reArr0, err := OpenFileDistribArray(arrPath0)
		require.Nilf(t, err, "Failed to reopen testFileArr0")

		// Should Error
		_, err = CreateFileDistribArray(arrPath0, 3)
		require.NotNil(t, err, "Did not detect existing array")

		reArr0.Destroy()

		_, err = os.Stat(arrPath0)
		require.True(t, os.IsNotExist(err), "Array0 not destroyed")

		// Now should succeed
		_, err = CreateFileDistribArray(arrPath0, 3)
		require.Nil(t, err, "Failed to recreate array after destroy")
	})
}

func TestFileNotAnArray(t *testing.T) {
	_, err := OpenFileDistribArray(t.TempDir())
	require.NotNil(t, err, "Opened a directory without metadata")

	// A partial trailing element is malformed input
	arr, err := CreateFileDistribArray(filepath.Join(t.TempDir(), "partial"), 1)
	require.Nil(t, err)
	w, err := arr.GetPartWriter(0)
	require.Nil(t, err)
	_, err = w.Write([]byte{1, 2, 3})
	require.Nil(t, err)
	w.Close()

	_, err = ReadArray(arr)
	require.True(t, IsFormatError(err), "Expected a FormatError, got %v", err)
}

func TestFileFactory(t *testing.T) {
	testArrayFactory(t, FileArrayFactory, filepath.Join(t.TempDir(), "factory"))
}
