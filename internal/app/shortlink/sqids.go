package shortlink

import (
	"sync"

	"github.com/sqids/sqids-go"
)

var (
	sq   *sqids.Sqids
	once sync.Once
)

func getSqids() *sqids.Sqids {
	once.Do(func() {
		var err error
		sq, err = sqids.New(sqids.Options{
			Alphabet:  "k3G7QAe51FCsiWrNOYBUwM6XzZvdLT4j9JhyHKg2cVbxfERq0mSoI8lDpunPat",
			MinLength: 6,
		})
		if err != nil {
			panic("sqids init failed: " + err.Error())
		}
	})
	return sq
}

// EncodeID 把存储 id 编码成 API 对外的不透明 id。
func EncodeID(id int64) string {
	if id < 0 {
		return ""
	}
	s, err := getSqids().Encode([]uint64{uint64(id)})
	if err != nil {
		return ""
	}
	return s
}

// DecodeID 是 EncodeID 的逆过程；不是 EncodeID 能产出的字符串一律 ok=false。
func DecodeID(s string) (int64, bool) {
	nums := getSqids().Decode(s)
	if len(nums) != 1 {
		return 0, false
	}
	// sqids 对非规范字符串也能解出数字，重新编码一遍才能挡掉
	if EncodeID(int64(nums[0])) != s {
		return 0, false
	}
	return int64(nums[0]), true
}
