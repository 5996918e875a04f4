// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"math/rand/v2"
	"sync"
	ratomic "sync/atomic"

	"github.com/teris-io/shortid"
)

// NOTE: BEWARE: `shortid` uses hardcoded 01/2016 as a starting timestamp

const (
	// Alphabet for generating IDs similar to the shortid.DEFAULT_ABC
	// NOTE: len(uuidABC) > 0x3f - see GenTie()
	uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

	lenRandID = 9
)

var (
	sids  [16]*shortid.Shortid
	once  sync.Once
	rtie  ratomic.Uint32
	rmu   sync.Mutex
	rsrc  = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	lhabc = []byte(uuidABC)
)

// InitShortID is optional and is done lazily otherwise
func InitShortID(seed uint64) {
	once.Do(func() {
		for i := range sids {
			sids[i] = shortid.MustNew(uint8(i+1) /*worker*/, uuidABC, seed)
		}
	})
}

// GenUUID generates unique and user-friendly IDs (transfer IDs, job IDs)
func GenUUID() (uuid string) {
	InitShortID(rand.Uint64())
	var err error
	for _, sid := range sids {
		uuid, err = sid.Generate()
		if err == nil && IsAlphaNice(uuid) {
			return
		}
	}
	return RandStringStrong(lenRandID)
}

func IsAlphaNice(s string) bool {
	l := len(s)
	return l > 0 && s[0] != '-' && s[0] != '_' && s[l-1] != '-' && s[l-1] != '_'
}

// 3-letter tie breaker (fast)
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}

func RandStringStrong(n int) string {
	b := make([]byte, n)
	rmu.Lock()
	for i := range b {
		b[i] = lhabc[rsrc.IntN(len(lhabc)-2)+1] // excluding leading '-' and trailing '_'
	}
	rmu.Unlock()
	return string(b)
}

// NowRand returns a uniformly distributed random integer in [0, n)
func NowRand(n int) int {
	rmu.Lock()
	v := rsrc.IntN(n)
	rmu.Unlock()
	return v
}
