package repository

import (
	"sync"

	"github.com/pavelanni/trivia/internal/model"
)

const subscriberBuffer = 8

// Subscribe returns a channel that receives the mode of every collection
// that changes, and a function that ends the subscription. Slow subscribers
// miss notifications rather than block the repository.
func (r *Repository) Subscribe() (<-chan model.Mode, func()) {
	ch := make(chan model.Mode, subscriberBuffer)

	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *Repository) notify(mode model.Mode) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- mode:
		default:
		}
	}
}
