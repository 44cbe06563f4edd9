package psrs

// Location of each class inside a rank's sorted local partition. Class i
// occupies [Starts[i], Starts[i]+Lengths[i]).
type ClassMap struct {
	Starts  []int
	Lengths []int
}

// Number of classes (always the process count)
func (self *ClassMap) Len() int {
	return len(self.Starts)
}

// The elements of class c, as a view into the partition the map was built from
func (self *ClassMap) Class(sorted []int64, c int) []int64 {
	start := self.Starts[c]
	return sorted[start : start+self.Lengths[c]]
}

// Partition splits an ascending slice into len(pivots)+1 classes with a single
// scan. Class c holds the values v with pivots[c-1] < v <= pivots[c]; a value
// equal to a pivot goes to the lower class. Classes whose range holds no value
// come out empty.
func Partition(sorted []int64, pivots []int64) ClassMap {
	nClass := len(pivots) + 1
	cm := ClassMap{
		Starts:  make([]int, nClass),
		Lengths: make([]int, nClass),
	}

	class := 0
	for _, v := range sorted {
		for class < len(pivots) && v > pivots[class] {
			class++
		}
		cm.Lengths[class]++
	}

	for c := 1; c < nClass; c++ {
		cm.Starts[c] = cm.Starts[c-1] + cm.Lengths[c-1]
	}
	return cm
}
