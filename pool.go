package crl

import (
	"sync"
)

var (
	iterPool = make(map[int]map[int]*sync.Pool)
	poolLock sync.Mutex
)

func borrowIterator(m, n int) [][]float32 {
	poolLock.Lock()
	defer poolLock.Unlock()
	if d, ok := iterPool[m]; ok {
		if d2, ok := d[n]; ok {
			return d2.Get().([][]float32)
		}
	}
	return make([][]float32, m)
}

// MakeIterator makes a row iterator over an m x n plane stored row major.
// The rows share memory with plane. Give the iterator back with ReturnIterator.
func MakeIterator(plane []float32, m, n int) (retVal [][]float32) {
	retVal = borrowIterator(m, n)
	for i := range retVal {
		start := i * n
		retVal[i] = plane[start : start+n : start+n]
	}
	return
}

// ReturnIterator returns an iterator made by MakeIterator to the pool.
func ReturnIterator(m, n int, it [][]float32) {
	for i := range it {
		it[i] = nil
	}
	poolLock.Lock()
	defer poolLock.Unlock()
	if _, ok := iterPool[m]; !ok {
		iterPool[m] = make(map[int]*sync.Pool)
	}
	if _, ok := iterPool[m][n]; !ok {
		iterPool[m][n] = &sync.Pool{
			New: func() interface{} {
				return make([][]float32, m)
			},
		}
	}
	iterPool[m][n].Put(it)
}

// Planes calls fn with a row iterator for every (H, W) plane of an NCHW or CHW tensor.
func Planes(t []float32, shape []int, fn func(idx int, rows [][]float32) error) error {
	if len(shape) < 2 {
		return nil
	}
	m, n := shape[len(shape)-2], shape[len(shape)-1]
	size := m * n
	if size == 0 {
		return nil
	}
	for i := 0; i*size < len(t); i++ {
		it := MakeIterator(t[i*size:(i+1)*size], m, n)
		err := fn(i, it)
		ReturnIterator(m, n, it)
		if err != nil {
			return err
		}
	}
	return nil
}
