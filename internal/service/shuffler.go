package service

import (
	"hash/fnv"
	"math/rand"
)

// Shuffler 生成每次尝试的出题顺序。
// 排列是种子（尝试ID派生）的纯函数，同一尝试无论重算多少次结果一致，
// 因此固化到尝试记录上的顺序可以随时对照种子复核。
type Shuffler struct{}

// SeedFromAttemptID 把尝试的 UUID 压成 64 位种子
func SeedFromAttemptID(attemptID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(attemptID))
	return int64(h.Sum64())
}

// PerQuestionSeed 每道题的选项顺序使用独立种子，避免所有题共享同一排列
func PerQuestionSeed(seed int64, questionID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(questionID))
	return seed ^ int64(h.Sum64())
}

// Order 返回 [0,n) 的确定性排列；shuffle 为 false 时返回恒等顺序
func (Shuffler) Order(seed int64, n int, shuffle bool) []int {
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	if !shuffle || n < 2 {
		return indexes
	}
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(indexes), func(i, j int) {
		indexes[i], indexes[j] = indexes[j], indexes[i]
	})
	return indexes
}
