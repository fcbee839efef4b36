package ops

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/pool"
	"github.com/Iron-Ham/lanes/internal/task"
)

// DefaultPerformTimeout is the budget Perform applies when none is given.
const DefaultPerformTimeout = 30 * time.Second

// Perform runs fn on the Compute lane with a timeout budget. A budget <= 0
// uses DefaultPerformTimeout. fn is never interrupted; overrunning only
// turns its outcome into a timeout failure.
func Perform[T any](r *pool.Registry, budget time.Duration, fn func() (T, error)) *task.Handle[T] {
	if budget <= 0 {
		budget = DefaultPerformTimeout
	}
	return pool.SubmitWithTimeout(r, budget, lane.KindCompute, fn)
}

// AppendLine appends line to the file at path on the Sequential lane, so
// lines from concurrent callers land whole and in submission order.
func AppendLine(r *pool.Registry, path, line string) *task.Handle[struct{}] {
	return pool.SubmitSequential(r, func() (struct{}, error) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return struct{}{}, err
		}
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		if _, err := f.WriteString(line); err != nil {
			_ = f.Close()
			return struct{}{}, fmt.Errorf("append to %s: %w", path, err)
		}
		return struct{}{}, f.Close()
	})
}
