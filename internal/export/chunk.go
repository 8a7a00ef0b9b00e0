package export

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Chunk size limits.
const (
	DefaultChunkSize = 50
	MinChunkSize     = 1
	MaxChunkSize     = 1000
)

// ErrInvalidChunkSize is returned for a chunk size outside [MinChunkSize, MaxChunkSize].
var ErrInvalidChunkSize = errors.New("chunk size must be between 1 and 1000")

// ChunkCount returns how many requests uploading total records takes.
func ChunkCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// walkChunks calls send for each consecutive chunk of records, then after
// reports the cumulative record count. The context is checked before every
// chunk and ctx.Err() is returned once it is done.
func walkChunks(
	ctx context.Context,
	records []SampleRecord,
	size int,
	send func(ctx context.Context, chunk []SampleRecord, index int),
	after func(done, chunks int),
) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
	}
	done, index := 0, 0
	for chunk := range slices.Chunk(records, size) {
		if err := ctx.Err(); err != nil {
			return err
		}
		send(ctx, chunk, index)
		done += len(chunk)
		index++
		after(done, index)
	}
	return nil
}
