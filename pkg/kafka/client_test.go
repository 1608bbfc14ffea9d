package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"smart-notebook-go/pkg/tasks"
)

// scriptedProcessor 按顺序返回 errs 中的错误，用完后返回 nil。
type scriptedProcessor struct {
	errs   []error
	calls  int
	cancel context.CancelFunc
}

func (p *scriptedProcessor) Process(context.Context, tasks.DocumentIndexTask) error {
	p.calls++
	if p.cancel != nil {
		p.cancel()
	}
	if p.calls <= len(p.errs) {
		return p.errs[p.calls-1]
	}
	return nil
}

type memCounter struct{ counts map[string]int64 }

func (m *memCounter) IncrRetry(_ context.Context, id string) (int64, error) {
	m.counts[id]++
	return m.counts[id], nil
}

func (m *memCounter) ClearRetry(_ context.Context, id string) error {
	delete(m.counts, id)
	return nil
}

func TestConsumer_Handle(t *testing.T) {
	backoff := retryBackoff
	retryBackoff = 0
	defer func() { retryBackoff = backoff }()

	ctx := context.Background()
	value, _ := json.Marshal(tasks.DocumentIndexTask{DocumentID: "doc-1"})
	dbDown := errors.New("db down")

	t.Run("terminal outcome commits", func(t *testing.T) {
		p := &scriptedProcessor{}
		c := &Consumer{processor: p, retries: &memCounter{counts: map[string]int64{}}}
		assert.True(t, c.handle(ctx, value))
		assert.Equal(t, 1, p.calls)
	})

	t.Run("malformed message commits", func(t *testing.T) {
		p := &scriptedProcessor{}
		c := &Consumer{processor: p, retries: &memCounter{counts: map[string]int64{}}}
		assert.True(t, c.handle(ctx, []byte("{not json")))
		assert.Zero(t, p.calls)
	})

	t.Run("transient error is retried within the same delivery", func(t *testing.T) {
		p := &scriptedProcessor{errs: []error{dbDown}}
		counter := &memCounter{counts: map[string]int64{}}
		c := &Consumer{processor: p, retries: counter}
		assert.True(t, c.handle(ctx, value))
		assert.Equal(t, 2, p.calls)
		assert.Empty(t, counter.counts)
	})

	t.Run("persistent error stops at the limit and commits", func(t *testing.T) {
		p := &scriptedProcessor{errs: []error{dbDown, dbDown, dbDown, dbDown}}
		counter := &memCounter{counts: map[string]int64{}}
		c := &Consumer{processor: p, retries: counter}
		assert.True(t, c.handle(ctx, value))
		assert.Equal(t, maxAttempts, p.calls)
		assert.Empty(t, counter.counts)
	})

	t.Run("failures before a restart count toward the limit", func(t *testing.T) {
		p := &scriptedProcessor{errs: []error{dbDown, dbDown, dbDown}}
		counter := &memCounter{counts: map[string]int64{"doc-1": maxAttempts - 1}}
		c := &Consumer{processor: p, retries: counter}
		assert.True(t, c.handle(ctx, value))
		assert.Equal(t, 1, p.calls)
	})

	t.Run("shutdown leaves the message uncommitted", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		p := &scriptedProcessor{errs: []error{context.Canceled}, cancel: cancel}
		c := &Consumer{processor: p, retries: &memCounter{counts: map[string]int64{}}}
		assert.False(t, c.handle(cctx, value))
		assert.Equal(t, 1, p.calls)
	})
}
