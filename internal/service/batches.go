package service

import (
	"github.com/leaksweep/leaksweep/internal/vcs"
)

// Batches partitions repos into consecutive slices of at most size
// elements, preserving order. A size of zero or less yields a single
// batch with every repository.
func Batches(repos []*vcs.Repo, size int) [][]*vcs.Repo {
	if len(repos) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]*vcs.Repo{repos}
	}
	batches := make([][]*vcs.Repo, 0, (len(repos)+size-1)/size)
	for start := 0; start < len(repos); start += size {
		end := min(start+size, len(repos))
		batches = append(batches, repos[start:end])
	}
	return batches
}
