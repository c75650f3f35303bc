package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/cadence/internal/adapters/mq/queue"
	"github.com/okian/cadence/internal/adapters/mq/worker"
)

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		w := worker.NewInMemoryWorker(q, worker.WithName("w-test"), worker.WithLogger(nil))
		ctx := context.Background()
		go w.Run(ctx)

		convey.Convey("When a task panics", func() {
			done := make(chan struct{})
			convey.So(q.Enqueue(ctx, queue.Task{UserID: "u1", Kind: "attempt", Run: func(context.Context) { panic("boom") }}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, queue.Task{UserID: "u1", Kind: "attempt", Run: func(context.Context) { close(done) }}), convey.ShouldBeNil)

			convey.Convey("Then the next task still runs", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("task did not run", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When a task has already expired", func() {
			var ran atomic.Bool
			done := make(chan struct{})
			convey.So(q.Enqueue(ctx, queue.Task{UserID: "u1", Deadline: time.Now().Add(-time.Second), Run: func(context.Context) { ran.Store(true) }}), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, queue.Task{UserID: "u1", Run: func(context.Context) { close(done) }}), convey.ShouldBeNil)
			<-done

			convey.Convey("Then it is skipped", func() {
				convey.So(ran.Load(), convey.ShouldBeFalse)
			})
		})

		convey.Reset(func() {
			_ = w.Shutdown(context.Background())
		})
	})
}

func TestPool(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a started pool", t, func() {
		p := worker.NewPool(4, worker.WithQueueCapacity(1024))
		p.Start(ctx)

		convey.Convey("Then a user always maps to the same shard", func() {
			convey.So(p.Shards(), convey.ShouldEqual, 4)
			convey.So(p.ShardFor("learner-42"), convey.ShouldEqual, p.ShardFor("learner-42"))
			convey.So(p.ShardFor("learner-42"), convey.ShouldBeBetweenOrEqual, 0, 3)
		})

		convey.Convey("When many users submit interleaved tasks", func() {
			var mu sync.Mutex
			seen := map[string][]int{}
			var wg sync.WaitGroup
			users := []string{"a", "b", "c", "d", "e", "f"}
			for i := 0; i < 50; i++ {
				for _, u := range users {
					i, u := i, u
					wg.Add(1)
					err := p.Submit(ctx, queue.Task{UserID: u, Kind: "attempt", Run: func(context.Context) {
						defer wg.Done()
						mu.Lock()
						seen[u] = append(seen[u], i)
						mu.Unlock()
					}})
					convey.So(err, convey.ShouldBeNil)
				}
			}
			wg.Wait()

			convey.Convey("Then each user's tasks ran in submission order", func() {
				for _, u := range users {
					convey.So(len(seen[u]), convey.ShouldEqual, 50)
					for i, v := range seen[u] {
						convey.So(v, convey.ShouldEqual, i)
					}
				}
			})
		})

		convey.Convey("When the pool shuts down", func() {
			var ran atomic.Int32
			for i := 0; i < 20; i++ {
				convey.So(p.Submit(ctx, queue.Task{UserID: "u", Run: func(context.Context) {
					time.Sleep(time.Millisecond)
					ran.Add(1)
				}}), convey.ShouldBeNil)
			}
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then accepted tasks are drained and new ones rejected", func() {
				convey.So(ran.Load(), convey.ShouldEqual, int32(20))
				err := p.Submit(ctx, queue.Task{UserID: "u"})
				convey.So(errors.Is(err, queue.ErrQueueClosed), convey.ShouldBeTrue)
				convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
			})
		})

		convey.Reset(func() {
			_ = p.Shutdown(ctx)
		})
	})

	convey.Convey("Given a pool that is not consuming", t, func() {
		p := worker.NewPool(1, worker.WithQueueCapacity(1))

		convey.Convey("Then a full shard rejects work", func() {
			convey.So(p.Submit(ctx, queue.Task{UserID: "u"}), convey.ShouldBeNil)
			err := p.Submit(ctx, queue.Task{UserID: "u"})
			convey.So(errors.Is(err, queue.ErrQueueFull), convey.ShouldBeTrue)
			convey.So(p.Len(ctx), convey.ShouldEqual, 1)
		})

		convey.Reset(func() {
			_ = p.Shutdown(ctx)
		})
	})
}
