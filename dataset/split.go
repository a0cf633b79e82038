package dataset

import (
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
)

// TrainTestSplit shuffles the rows with a seeded generator and cuts them into
// a train and a test Frame. The test part holds ceil(n*testSize) rows.
// The same seed always yields the same split.
func TrainTestSplit(f *Frame, testSize float64, seed int) (train, test *Frame, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValueError("TrainTestSplit", "test size must be in (0, 1)")
	}
	n := f.Len()
	nTest := int(math.Ceil(float64(n) * testSize))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"with n_samples="+strconv.Itoa(n)+" the resulting train or test set would be empty")
	}

	perm := Permutation(n, seed)
	return f.Subset(perm[:nTrain]), f.Subset(perm[nTrain:]), nil
}

// Permutation returns a seeded random permutation of [0, n).
func Permutation(n, seed int) []int {
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	return r.Perm(n)
}

