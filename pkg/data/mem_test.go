package data

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDistribPartRange(t *testing.T) {
	arr, err := CreateMemDistribArray("TestRangeReader", 1)
	require.Nil(t, err)
	defer arr.Destroy()

	generateInts(t, arr, 1)
	reader, err := arr.GetPartReader(0)
	require.Nil(t, err)
	raw := make([]byte, ElemSize)
	readPart(t, reader, raw)

	t.Run("Full Range", func(t *testing.T) { testPartRangeReader(t, arr, raw, 0, 0) })
	t.Run("First Two", func(t *testing.T) { testPartRangeReader(t, arr, raw, 0, 2) })
	t.Run("Middle", func(t *testing.T) { testPartRangeReader(t, arr, raw, 1, 3) })
	t.Run("Last Explicit", func(t *testing.T) { testPartRangeReader(t, arr, raw, 7, 8) })
	t.Run("Last Zero End", func(t *testing.T) { testPartRangeReader(t, arr, raw, 6, 0) })
	t.Run("Negative End", func(t *testing.T) { testPartRangeReader(t, arr, raw, 1, -1) })
	t.Run("Empty", func(t *testing.T) { testPartRangeReader(t, arr, raw, 4, 4) })

	_, err = arr.GetPartRangeReader(0, 2, 100)
	require.NotNil(t, err, "Out of bounds range accepted")
	_, err = arr.GetPartReader(1)
	require.NotNil(t, err, "Out of bounds partition accepted")
}

func TestMemDistribArr(t *testing.T) {
	targetSz := 64

	arr0, err := CreateMemDistribArray("memArrTest0", 2)
	require.Nilf(t, err, "Failed to initialize array: %v", err)

	raw0 := generateInts(t, arr0, targetSz)

	t.Run("ReadWrite", func(t *testing.T) {
		checkArr(t, arr0, raw0)
	})

	t.Run("ReRead", func(t *testing.T) {
		checkArr(t, arr0, raw0)
	})

	t.Run("ReOpen", func(t *testing.T) {
		arr0.Close()

		reArr0, err := OpenMemDistribArray("memArrTest0")
		require.Nil(t, err, "Failed to reopen first array")
		checkArr(t, reArr0, raw0)
	})

	t.Run("MultipleArrays", func(t *testing.T) {
		arr1, err := CreateMemDistribArray("memArrTest1", 3)
		require.Nilf(t, err, "Failed to initialize array: %v", err)
		defer arr1.Destroy()

		raw1 := generateInts(t, arr1, targetSz)

		reArr0, err := OpenMemDistribArray("memArrTest0")
		require.Nilf(t, err, "Failed to reopen memArrTest0")
		reArr1, err := OpenMemDistribArray("memArrTest1")
		require.Nilf(t, err, "Failed to reopen memArrTest1")

		checkArr(t, reArr0, raw0)
		checkArr(t, reArr1, raw1)
	})

	t.Run("Destroy", func(t *testing.T) {
		reArr0, err := OpenMemDistribArray("memArrTest0")
		require.Nilf(t, err, "Failed to reopen memArrTest0")

		// Should Error
		_, err = CreateMemDistribArray("memArrTest0", 3)
		require.NotNil(t, err, "Did not detect existing array")

		reArr0.Destroy()

		// Now should succeed
		newArr0, err := CreateMemDistribArray("memArrTest0", 3)
		require.Nil(t, err, "Failed to recreate array after destroy")

		shape, err := newArr0.GetShape()
		require.Nil(t, err)
		require.Equal(t, 3, shape.NPart())
		require.Equal(t, 0, shape.TotalElems(), "Re-used destroyed array")

		newArr0.Destroy()
	})
}

func TestMemFactory(t *testing.T) {
	testArrayFactory(t, MemArrayFactory, "memFactoryTest")
}

// Writers to different partitions may run concurrently
func TestMemConcurrentParts(t *testing.T) {
	arr, err := CreateMemDistribArray("memConcurrent", 4)
	require.Nil(t, err)
	defer arr.Destroy()

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			vals := make([]int64, 100)
			for j := range vals {
				vals[j] = (int64)(i)
			}
			done <- WritePart(arr, i, vals)
		}(i)
	}
	for i := 0; i < 4; i++ {
		require.Nil(t, <-done)
	}

	for i := 0; i < 4; i++ {
		vals, err := FetchPartRefs([]*PartRef{{Arr: arr, PartIdx: i, Start: 0, NElem: 100}})
		require.Nil(t, err)
		for _, v := range vals {
			require.Equal(t, (int64)(i), v, "Partition %v mixed with another", i)
		}
	}
}
