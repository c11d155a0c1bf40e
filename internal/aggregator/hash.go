package aggregator

import (
	"hash/fnv"
	"sort"
	"strconv"

	"github.com/hyperionlabs/mergebot/internal/model"
)

// requestHash derives the FNV-1a 32-bit cache key for a request: query,
// task type, budget, format, and the sorted source list all contribute,
// so two requests that would retrieve identically hash identically
// regardless of map iteration order.
func requestHash(req model.ContextRequest) uint32 {
	h := fnv.New32a()
	write := func(s string) { h.Write([]byte(s)); h.Write([]byte{0}) }

	write(req.Query)
	write(string(req.TaskType))
	write(string(req.Format))
	write(strconv.Itoa(req.MaxTokens))
	write(strconv.Itoa(req.ReservedTokens))

	srcs := make([]string, len(req.Sources))
	for i, s := range req.Sources {
		srcs[i] = string(s)
	}
	sort.Strings(srcs)
	for _, s := range srcs {
		write(s)
	}

	return h.Sum32()
}
