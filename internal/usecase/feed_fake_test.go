package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"TokenPulse/internal/domain/models"
	drepo "TokenPulse/internal/domain/repository"
)

type fakeSub struct {
	onEvent func(models.RawEvent)
	onError func(error)
}

// fakeFeed is a scripted feed adapter. Subscribe consumes subscribeErrs in order
// and succeeds once they run out.
type fakeFeed struct {
	mu             sync.Mutex
	subscribeErrs  []error
	subscribeCalls int
	subs           map[drepo.SubscriptionHandle]fakeSub
	latest         drepo.SubscriptionHandle
	unsubscribed   []drepo.SubscriptionHandle

	holders   []models.RawBalance
	pollErr   error
	pollCalls int
	supply    uint64

	history      []models.DailyRecord
	historyErr   error
	historyCalls int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{subs: make(map[drepo.SubscriptionHandle]fakeSub)}
}

func (f *fakeFeed) Subscribe(_ context.Context, tokenID string, onEvent func(models.RawEvent), onError func(error)) (drepo.SubscriptionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if len(f.subscribeErrs) > 0 {
		err := f.subscribeErrs[0]
		f.subscribeErrs = f.subscribeErrs[1:]
		if err != nil {
			return "", err
		}
	}
	h := drepo.SubscriptionHandle(fmt.Sprintf("%s-%d", tokenID, f.subscribeCalls))
	f.subs[h] = fakeSub{onEvent: onEvent, onError: onError}
	f.latest = h
	return h, nil
}

func (f *fakeFeed) Unsubscribe(_ context.Context, h drepo.SubscriptionHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, h)
	f.unsubscribed = append(f.unsubscribed, h)
	return nil
}

func (f *fakeFeed) PollHolders(_ context.Context, _ string, _ int) ([]models.RawBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return append([]models.RawBalance(nil), f.holders...), nil
}

func (f *fakeFeed) TotalSupply(_ context.Context, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supply, nil
}

func (f *fakeFeed) QueryHistorical(_ context.Context, _ string, _, _ time.Time) ([]models.DailyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	return f.history, f.historyErr
}

// current returns the callbacks of the most recent subscription.
func (f *fakeFeed) current() fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[f.latest]
}

func (f *fakeFeed) emit(evs ...models.RawEvent) {
	sub := f.current()
	for _, ev := range evs {
		sub.onEvent(ev)
	}
}

func (f *fakeFeed) breakStream(err error) {
	f.current().onError(err)
}

func (f *fakeFeed) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

// recordingSleeper returns immediately and remembers each requested delay.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
