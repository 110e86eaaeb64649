// Package processor owns the notification lifecycle: rules are compiled
// once on creation, persisted in their compiled form, and re-evaluated on
// every scheduler tick. Activated rules are grouped per chat so a tick
// sends at most one message to each subscriber.
package processor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Qolorerr/Athena/internal/condition"
	"github.com/Qolorerr/Athena/internal/model"
)

// evalWorkers bounds concurrent rule evaluations per tick.
const evalWorkers = 4

type entry struct {
	notif model.Notification
	node  condition.Node
}

// Processor evaluates stored rules against fresh market data and fans out
// activation messages.
type Processor struct {
	store     model.NotificationStore
	evaluator *condition.Evaluator
	notifier  model.Notifier
	sinks     []model.EventSink

	// Optional instrumentation hooks.
	OnEvalFailure func()
	OnSent        func(count int)
	OnTickDone    func(d time.Duration)
	OnRules       func(n int)

	mu      sync.RWMutex
	entries map[int64]entry
}

// New creates a processor and loads every persisted notification into the
// evaluation set. Rules that no longer compile are logged and skipped.
func New(store model.NotificationStore, keeper model.TickerReader, notifier model.Notifier, sinks ...model.EventSink) (*Processor, error) {
	p := &Processor{
		store:     store,
		evaluator: condition.NewEvaluator(keeper),
		notifier:  notifier,
		sinks:     sinks,
		entries:   make(map[int64]entry),
	}

	notifs, err := store.GetAllNotifications()
	if err != nil {
		return nil, fmt.Errorf("processor: load notifications: %w", err)
	}
	for _, n := range notifs {
		node, err := condition.Compile(n.Compiled)
		if err != nil {
			log.Printf("[processor] skipping notification %d: stored rule does not compile: %v", n.ID, err)
			continue
		}
		p.entries[n.ID] = entry{notif: n, node: node}
	}
	log.Printf("[processor] loaded %d notifications", len(p.entries))
	return p, nil
}

func (p *Processor) ruleCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// CreateCondition compiles a rule, runs it once against live data to prove
// it is evaluable, and persists it. The trial result is discarded; only
// evaluability matters here.
func (p *Processor) CreateCondition(ctx context.Context, chatID int64, expr string) (model.Notification, error) {
	node, err := condition.Compile(expr)
	if err != nil {
		return model.Notification{}, err
	}

	if _, err := p.evaluator.EvalBool(ctx, node); err != nil {
		return model.Notification{}, err
	}

	notif, err := p.store.AddNotification(chatID, node.String(), expr)
	if err != nil {
		return model.Notification{}, fmt.Errorf("processor: save notification: %w", err)
	}

	p.mu.Lock()
	p.entries[notif.ID] = entry{notif: notif, node: node}
	p.mu.Unlock()
	if p.OnRules != nil {
		p.OnRules(p.ruleCount())
	}

	log.Printf("[processor] notification %d created for chat %d", notif.ID, chatID)
	return notif, nil
}

// ListNotifications returns the chat's notifications ordered by id.
func (p *Processor) ListNotifications(chatID int64) ([]model.Notification, error) {
	byID, err := p.store.GetNotifications(chatID)
	if err != nil {
		return nil, fmt.Errorf("processor: list notifications: %w", err)
	}
	notifs := make([]model.Notification, 0, len(byID))
	for _, n := range byID {
		notifs = append(notifs, n)
	}
	sort.Slice(notifs, func(i, j int) bool { return notifs[i].ID < notifs[j].ID })
	return notifs, nil
}

// RemoveNotification deletes the chat's notification with the given id.
// Ids owned by other chats are indistinguishable from unknown ids.
func (p *Processor) RemoveNotification(chatID, id int64) error {
	owned, err := p.store.GetNotifications(chatID)
	if err != nil {
		return fmt.Errorf("processor: check notification owner: %w", err)
	}
	if _, ok := owned[id]; !ok {
		return fmt.Errorf("%w: id %d", model.ErrNonexistentNotification, id)
	}
	if err := p.store.RemoveNotification(id); err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.entries, id)
	p.mu.Unlock()
	if p.OnRules != nil {
		p.OnRules(p.ruleCount())
	}

	log.Printf("[processor] notification %d removed for chat %d", id, chatID)
	return nil
}

// Tick evaluates every registered rule and messages each chat whose rules
// activated. One failing rule never stops the sweep.
func (p *Processor) Tick(ctx context.Context) {
	started := time.Now()
	defer func() {
		if p.OnTickDone != nil {
			p.OnTickDone(time.Since(started))
		}
	}()

	p.mu.RLock()
	snapshot := make([]entry, 0, len(p.entries))
	for _, e := range p.entries {
		snapshot = append(snapshot, e)
	}
	p.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	var (
		mu        sync.Mutex
		activated []model.Notification
	)

	sem := make(chan struct{}, evalWorkers)
	var wg sync.WaitGroup
	for _, e := range snapshot {
		wg.Add(1)
		sem <- struct{}{}
		go func(e entry) {
			defer wg.Done()
			defer func() { <-sem }()

			ok, err := p.evaluator.EvalBool(ctx, e.node)
			if err != nil {
				log.Printf("[processor] notification %d: evaluation failed: %v", e.notif.ID, err)
				if p.OnEvalFailure != nil {
					p.OnEvalFailure()
				}
				return
			}
			if ok {
				mu.Lock()
				activated = append(activated, e.notif)
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()

	if len(activated) == 0 {
		return
	}
	sort.Slice(activated, func(i, j int) bool { return activated[i].ID < activated[j].ID })

	byChat := make(map[int64][]model.Notification)
	for _, n := range activated {
		byChat[n.ChatID] = append(byChat[n.ChatID], n)
	}

	for chatID, notifs := range byChat {
		lines := make([]string, len(notifs))
		for i, n := range notifs {
			lines[i] = n.Origin
		}
		if err := p.notifier.Send(ctx, chatID, strings.Join(lines, "\n")); err != nil {
			log.Printf("[processor] chat %d: send failed: %v", chatID, err)
			continue
		}
		if p.OnSent != nil {
			p.OnSent(len(notifs))
		}
		for _, n := range notifs {
			for _, sink := range p.sinks {
				sink.PublishActivation(ctx, n)
			}
		}
	}
	log.Printf("[processor] tick: %d of %d rules activated", len(activated), len(snapshot))
}
