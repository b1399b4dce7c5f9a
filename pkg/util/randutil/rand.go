// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package randutil

import (
	crypto_rand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/cockroachdb/oplogrepl/pkg/util/envutil"
	"github.com/cockroachdb/oplogrepl/pkg/util/syncutil"
)

var (
	mtx syncutil.Mutex
	// globalSeed is the seed for the stream of per-test seeds. Set it via
	// OPLOGREPL_RANDOM_SEED to reproduce a failing run.
	globalSeed int64
	rng        *rand.Rand
)

func init() {
	globalSeed = envutil.EnvOrDefaultInt64("OPLOGREPL_RANDOM_SEED", NewPseudoSeed())
	rng = rand.New(rand.NewSource(globalSeed))
}

// NewPseudoSeed generates a seed from crypto/rand.
func NewPseudoSeed() int64 {
	var seed int64
	if err := binary.Read(crypto_rand.Reader, binary.LittleEndian, &seed); err != nil {
		panic(fmt.Sprintf("could not read from crypto/rand: %s", err))
	}
	return seed
}

// NewTestRand returns an instance of math/rand.Rand seeded from the global
// seed stream, and its seed. Log the seed when a randomized test fails so the
// failure can be reproduced with OPLOGREPL_RANDOM_SEED.
func NewTestRand() (*rand.Rand, int64) {
	mtx.Lock()
	defer mtx.Unlock()
	seed := rng.Int63()
	return rand.New(rand.NewSource(seed)), seed
}

// RandBytes returns a byte slice of the given length with random data.
func RandBytes(r *rand.Rand, size int) []byte {
	if size <= 0 {
		return nil
	}
	arr := make([]byte, size)
	_, _ = r.Read(arr)
	return arr
}
