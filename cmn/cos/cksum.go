// Package cos provides common low-level types and utilities for all staging packages
/*
 * Copyright (c) 2018-2025, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/adler32"
	"hash/crc32"
	"io"
	"sort"
	"strings"

	"github.com/OneOfOne/xxhash"
	jsoniter "github.com/json-iterator/go"
)

// checksums
const (
	ChecksumNone    = "none"
	ChecksumAdler32 = "adler32"
	ChecksumCRC32   = "cksum" // crc32 (IEEE)
	ChecksumCRC32C  = "crc32c"
	ChecksumMD5     = "md5"
	ChecksumSHA256  = "sha256"
	ChecksumXXHash  = "xxhash"
)

const cksumSepa = ":"

const MLCG32 = 1103515245 // xxhash seed

type (
	noopHash struct{}

	ErrBadCksum struct {
		a, b    *Cksum
		context string
	}
	Cksum struct {
		ty    string `json:"-"`
		value string `json:"-"`
	}
	CksumHash struct {
		Cksum
		H   hash.Hash
		sum []byte
	}
)

var checksums = map[string]struct{}{
	ChecksumNone:    {},
	ChecksumAdler32: {},
	ChecksumCRC32:   {},
	ChecksumCRC32C:  {},
	ChecksumMD5:     {},
	ChecksumSHA256:  {},
	ChecksumXXHash:  {},
}

// interface guard
var (
	_ hash.Hash = (*noopHash)(nil)
	_ io.Writer = (*CksumHash)(nil)
)

///////////////
// CksumHash //
///////////////

func NewCksumHash(ty string) (ck *CksumHash) {
	ck = &CksumHash{}
	ck.Init(ty)
	return
}

func (ck *CksumHash) Init(ty string) {
	ck.ty = ty
	switch ty {
	case ChecksumNone, "":
		ck.ty, ck.H = ChecksumNone, newNoopHash()
	case ChecksumAdler32:
		ck.H = adler32.New()
	case ChecksumCRC32:
		ck.H = crc32.NewIEEE()
	case ChecksumCRC32C:
		ck.H = crc32.New(crc32.MakeTable(crc32.Castagnoli))
	case ChecksumMD5:
		ck.H = md5.New()
	case ChecksumSHA256:
		ck.H = sha256.New()
	case ChecksumXXHash:
		ck.H = xxhash.New64()
	default:
		panic("unknown checksum type: " + ty)
	}
}

func (ck *CksumHash) Write(b []byte) (int, error) { return ck.H.Write(b) }
func (ck *CksumHash) Sum() []byte                 { return ck.sum }

func (ck *CksumHash) Finalize() {
	ck.sum = ck.H.Sum(nil)
	ck.value = hex.EncodeToString(ck.sum)
}

func (ck *CksumHash) Clone() *Cksum { return ck.Cksum.Clone() }

///////////
// Cksum //
///////////

func NewCksum(ty, value string) *Cksum {
	if ty == "" {
		ty = ChecksumNone
	}
	return &Cksum{ty: ty, value: value}
}

// ParseCksum parses "type:value" as carried in URL metadata options and catalogs
func ParseCksum(s string) (*Cksum, error) {
	ty, value, ok := strings.Cut(s, cksumSepa)
	if !ok || value == "" {
		return nil, fmt.Errorf("invalid checksum %q (expecting <type>:<value>)", s)
	}
	ty = strings.ToLower(ty)
	if err := ValidateCksumType(ty); err != nil {
		return nil, err
	}
	return &Cksum{ty: ty, value: strings.ToLower(value)}, nil
}

func (ck *Cksum) IsEmpty() bool { return ck == nil || ck.ty == "" || ck.ty == ChecksumNone || ck.value == "" }

func (ck *Cksum) Equal(to *Cksum) bool {
	if ck.IsEmpty() || to.IsEmpty() {
		return false
	}
	return ck.ty == to.ty && ck.value == to.value
}

func (ck *Cksum) Type() string {
	if ck == nil {
		return ChecksumNone
	}
	return ck.ty
}

func (ck *Cksum) Value() string {
	if ck == nil {
		return ""
	}
	return ck.value
}

func (ck *Cksum) Clone() *Cksum {
	if ck == nil {
		return nil
	}
	return &Cksum{ty: ck.ty, value: ck.value}
}

// "type:value"
func (ck *Cksum) Full() string {
	if ck.IsEmpty() {
		return ""
	}
	return ck.ty + cksumSepa + ck.value
}

func (ck *Cksum) String() string {
	if ck == nil {
		return "checksum <nil>"
	}
	if ck.ty == "" || ck.ty == ChecksumNone {
		return "checksum <none>"
	}
	return ck.ty + "[" + SHead(ck.value) + "]"
}

func (ck *Cksum) MarshalJSON() ([]byte, error) {
	if ck == nil {
		return []byte("null"), nil
	}
	return jsoniter.Marshal(struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}{Type: ck.ty, Value: ck.value})
}

func (ck *Cksum) UnmarshalJSON(b []byte) error {
	var v struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := jsoniter.Unmarshal(b, &v); err != nil {
		return err
	}
	ck.ty, ck.value = v.Type, v.Value
	return nil
}

//
// helpers
//

func ValidateCksumType(ty string) error {
	if _, ok := checksums[ty]; !ok {
		return fmt.Errorf("invalid checksum type %q (expecting one of %v)", ty, SupportedChecksums())
	}
	return nil
}

func SupportedChecksums() (types []string) {
	types = make([]string, 0, len(checksums))
	for ty := range checksums {
		if ty != ChecksumNone {
			types = append(types, ty)
		}
	}
	sort.Strings(types)
	return append(types, ChecksumNone)
}

/////////////////
// ErrBadCksum //
/////////////////

func NewErrBadCksum(a, b *Cksum, context string) *ErrBadCksum {
	return &ErrBadCksum{a: a, b: b, context: context}
}

func (e *ErrBadCksum) Error() string {
	s := fmt.Sprintf("BAD DATA CHECKSUM: %s != %s", e.a, e.b)
	if e.context != "" {
		s += " (" + e.context + ")"
	}
	return s
}

func (*ErrBadCksum) Is(target error) bool {
	_, ok := target.(*ErrBadCksum)
	return ok
}

//////////////
// noopHash //
//////////////

func newNoopHash() hash.Hash                  { return &noopHash{} }
func (*noopHash) Write(b []byte) (int, error) { return len(b), nil }
func (*noopHash) Sum([]byte) []byte           { return nil }
func (*noopHash) Reset()                      {}
func (*noopHash) Size() int                   { return 0 }
func (*noopHash) BlockSize() int              { return 0 }
