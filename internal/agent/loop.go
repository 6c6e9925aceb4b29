// Package agent implements the turn-taking orchestration loop.
//
// Each incoming message flows through a route step that either answers
// directly or emits tool-call requests, and an execute step that turns
// those requests into result messages. The two alternate until the
// route step produces a plain reply or the hop budget runs out.
package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oswin/parley/internal/llm"
)

// DefaultMaxHops bounds route/execute alternations within one run. Well
// above any legitimate multi-tool turn; hitting it means the routing is
// stuck in a loop.
const DefaultMaxHops = 50

var (
	// ErrRecursionExceeded reports that a run burned its whole hop
	// budget without reaching a plain reply. The thread itself is left
	// consistent; callers should offer the user a fresh thread.
	ErrRecursionExceeded = errors.New("conversation hop budget exceeded")

	// ErrUpstreamUnavailable reports that the completion service stayed
	// unreachable after all retry attempts.
	ErrUpstreamUnavailable = errors.New("completion service unavailable")
)

// ThreadStore persists messages appended during a run. *memory.Store
// satisfies it.
type ThreadStore interface {
	Append(threadID string, msgs []llm.Message) error
}

// Loop drives one conversation turn through route and execute steps.
type Loop struct {
	router   *Router
	executor *Executor
	store    ThreadStore
	maxHops  int
	logger   *slog.Logger
}

// NewLoop creates an orchestration loop. maxHops <= 0 selects
// [DefaultMaxHops].
func NewLoop(router *Router, executor *Executor, store ThreadStore, maxHops int, logger *slog.Logger) *Loop {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		router:   router,
		executor: executor,
		store:    store,
		maxHops:  maxHops,
		logger:   logger,
	}
}

// Run executes one conversation turn. state must already contain the
// new user message appended to any prior history; the returned state is
// the full sequence including everything this run appended.
//
// Messages appended by each hop are persisted before the next hop
// begins, so a crash mid-run leaves a consistent partial thread. The
// state grows monotonically; even the error returns hand back
// everything appended so far.
func (l *Loop) Run(ctx context.Context, threadID string, state []llm.Message) ([]llm.Message, error) {
	return l.RunWithObserver(ctx, threadID, state, nil)
}

// RunWithObserver is Run with a callback invoked for every message the
// run appends, in append order. Streaming transports use it to push
// intermediate tool activity to the client as it happens.
func (l *Loop) RunWithObserver(ctx context.Context, threadID string, state []llm.Message, observe func(llm.Message)) ([]llm.Message, error) {
	l.logger.Info("turn started", "thread", threadID, "messages", len(state))

	notify := func(msgs ...llm.Message) {
		if observe == nil {
			return
		}
		for _, m := range msgs {
			observe(m)
		}
	}

	for hop := 0; hop < l.maxHops; hop++ {
		reply, err := l.router.Route(ctx, state)
		if err != nil {
			return state, err
		}
		state = append(state, reply)
		l.persist(threadID, []llm.Message{reply})
		notify(reply)

		if len(reply.ToolCalls) == 0 {
			l.logger.Info("turn completed", "thread", threadID, "hops", hop+1)
			return state, nil
		}

		results := l.executor.Execute(ctx, reply)
		state = append(state, results...)
		l.persist(threadID, results)
		notify(results...)

		l.logger.Debug("hop completed",
			"thread", threadID,
			"hop", hop+1,
			"tool_calls", len(reply.ToolCalls),
		)
	}

	l.logger.Error("hop budget exhausted", "thread", threadID, "max_hops", l.maxHops)
	return state, ErrRecursionExceeded
}

// persist records a hop's messages. Storage trouble is logged and
// swallowed: a broken disk must not kill a conversation in flight.
func (l *Loop) persist(threadID string, msgs []llm.Message) {
	if l.store == nil || len(msgs) == 0 {
		return
	}
	if err := l.store.Append(threadID, msgs); err != nil {
		l.logger.Error("persist hop failed", "thread", threadID, "error", err)
	}
}
