// The PCG algorithm is designed by Melissa O'Neill.
// The bounded sampling in uint64n follows the multiply-and-reject method used by
// the Go standard library (math/rand/v2), which is licensed under the BSD 3-Clause License.

package core

import (
	"math/bits"
	r2 "math/rand/v2"
)

// PCG64 以 math/rand/v2 的 PCG 為底，狀態可序列化進 checkpoint。
type PCG64 struct {
	rng *r2.PCG
}

// newPCG64WithSeed 以 splitmix64 展開 seed，得到兩個 64-bit 初始狀態。
func newPCG64WithSeed(seed int64) *PCG64 {
	x := uint64(seed) ^ 0x9e3779b97f4a7c15
	hi := splitmix64(x)
	lo := splitmix64(x ^ 0xDA942042E4DD58B5)
	return &PCG64{rng: r2.NewPCG(hi, lo)}
}

func (r *PCG64) Uint64() uint64 {
	return r.rng.Uint64()
}

// IntN 產出[0,n) 的整數，若 max <= 0 回傳 -1
func (r *PCG64) IntN(max int) int {
	if max <= 0 {
		return -1
	}
	return int(r.uint64n(uint64(max)))
}

// Float64 產出 [0,1) 的 float64（53 bits 精度）
func (r *PCG64) Float64() float64 {
	return float64(r.Uint64()<<11>>11) / (1 << 53)
}

// Restore 恢復內部狀態
func (r *PCG64) Restore(data []byte) error {
	return r.rng.UnmarshalBinary(data)
}

// Snapshot 取得當下內部狀態
func (r *PCG64) Snapshot() ([]byte, error) {
	return r.rng.MarshalBinary()
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func (r *PCG64) uint64n(n uint64) uint64 {
	if n&(n-1) == 0 {
		return r.Uint64() & (n - 1)
	}
	hi, lo := bits.Mul64(r.Uint64(), n)
	if lo < n {
		thresh := -n % n
		for lo < thresh {
			hi, lo = bits.Mul64(r.Uint64(), n)
		}
	}
	return hi
}
