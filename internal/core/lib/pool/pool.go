package pool

import (
	"context"
	"iter"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Size 工作协程数，<= 0 时使用 CPU 核数
func Size(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Ordered 在 ants 协程池中并发执行 fn，按 items 的输入顺序逐个产出结果
//
// 第 i 个结果完成后立即产出，不需要等待整批结束。
// 消费方提前停止迭代或 ctx 取消时，未提交的任务不再执行，已在执行的任务通过 ctx 通知退出。
func Ordered[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R) iter.Seq2[int, R] {
	return func(yield func(int, R) bool) {
		if len(items) == 0 {
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		results := make([]R, len(items))
		ready := make([]chan struct{}, len(items))
		for i := range ready {
			ready[i] = make(chan struct{})
		}

		var wg sync.WaitGroup
		p, err := ants.NewPoolWithFunc(Size(workers), func(arg interface{}) {
			i := arg.(int)
			defer wg.Done()
			defer close(ready[i])
			results[i] = fn(ctx, items[i])
		})
		if err != nil {
			// 协程池创建失败时退化为顺序执行
			for i, item := range items {
				if ctx.Err() != nil {
					return
				}
				if !yield(i, fn(ctx, item)) {
					return
				}
			}
			return
		}

		go func() {
			defer p.Release()
			for i := range items {
				if ctx.Err() != nil {
					break
				}
				wg.Add(1)
				if err := p.Invoke(i); err != nil {
					wg.Done()
					break
				}
			}
			wg.Wait()
		}()

		for i := range items {
			select {
			case <-ready[i]:
			case <-ctx.Done():
				return
			}
			if !yield(i, results[i]) {
				return
			}
		}
	}
}

// Map 并发执行 fn 并按输入顺序返回全部结果
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) R) ([]R, error) {
	results := make([]R, 0, len(items))
	for _, r := range Ordered(ctx, workers, items, fn) {
		results = append(results, r)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
