package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/google/uuid"
)

type pair struct {
	actor, target sphare.Email
}

// IntentJournal keeps pending intents in memory. Entries are lost on restart.
type IntentJournal struct {
	entries map[string]sphare.PendingIntent
	byPair  map[pair]string
	mutex   sync.Mutex
}

var _ sphare.IntentJournal = (*IntentJournal)(nil)

func NewIntentJournal() *IntentJournal {
	return &IntentJournal{
		entries: map[string]sphare.PendingIntent{},
		byPair:  map[pair]string{},
	}
}

func (j *IntentJournal) Record(ctx context.Context, actor, target sphare.Email,
	intent sphare.Intent) (sphare.PendingIntent, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	p := pair{actor, target}
	if old, ok := j.byPair[p]; ok {
		delete(j.entries, old)
	}
	entry := sphare.PendingIntent{
		Id:         uuid.NewString(),
		Actor:      actor,
		Target:     target,
		Intent:     intent,
		RecordedAt: time.Now().UTC(),
	}
	j.entries[entry.Id] = entry
	j.byPair[p] = entry.Id
	return entry, nil
}

func (j *IntentJournal) Complete(ctx context.Context, id string) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	entry, ok := j.entries[id]
	if !ok {
		return nil
	}
	delete(j.entries, id)
	p := pair{entry.Actor, entry.Target}
	if j.byPair[p] == id {
		delete(j.byPair, p)
	}
	return nil
}

func (j *IntentJournal) Pending(ctx context.Context) ([]sphare.PendingIntent, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	pending := make([]sphare.PendingIntent, 0, len(j.entries))
	for _, e := range j.entries {
		pending = append(pending, e)
	}
	sort.SliceStable(pending, func(i, k int) bool {
		return pending[i].RecordedAt.Before(pending[k].RecordedAt)
	})
	return pending, nil
}
