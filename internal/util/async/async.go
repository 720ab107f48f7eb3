package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel executes tasks with at most limit of them running at once and
// waits for all started tasks to finish. A limit below one runs the tasks one
// at a time. Errors from every task are joined, each prefixed with its name.
//
// Once ctx is done no further task is started; tasks already running are
// left to finish and observe ctx themselves. Tasks that were never started
// contribute nothing to the returned error.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "us-east-1:sg-1", Func: syncGroup(a)},
//	    {Name: "eu-west-1:sg-2", Func: syncGroup(b)},
//	}
//	if err := RunParallel(ctx, tasks, 2); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, tasks []Task, limit int) error {
	if len(tasks) == 0 {
		return nil
	}
	if limit < 1 {
		limit = 1
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, limit)

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		acquired := false
		select {
		case sem <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			if acquired {
				<-sem
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := task.Func(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", task.Name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return errors.Join(errs...)
}
