package app

import (
	"sync"

	"go.uber.org/zap"
)

// Loop runs posted funcs one at a time on a single goroutine. Everything a
// session's state store touches runs there.
type Loop struct {
	log     *zap.Logger
	onPanic func(any)

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// NewLoop starts a loop. onPanic, if set, is called on the loop goroutine
// with the value of any panic raised by a posted func.
func NewLoop(logger *zap.Logger, onPanic func(any)) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		log:     logger,
		onPanic: onPanic,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}
		for {
			l.mu.Lock()
			if l.closed || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("loop task panicked", zap.Any("panic", r))
			if l.onPanic != nil {
				l.onPanic(r)
			}
		}
	}()
	fn()
}

// Post queues fn without blocking. It reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes fn on the loop and waits for it. It must not be called from
// the loop itself. After Close it returns without running fn.
func (l *Loop) Run(fn func()) {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return
	}
	select {
	case <-ran:
	case <-l.exited:
	}
}

// Close drops queued funcs and stops the goroutine after the current one
// finishes.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	close(l.done)
	<-l.exited
}
