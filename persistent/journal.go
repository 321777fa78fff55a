package persistent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/blogsphare/sphare"
	"github.com/google/uuid"
	"github.com/tidwall/buntdb"
)

const intentTTL = 7 * 24 * time.Hour // 7 days

type PendingIntent struct {
	Id     string `json:"id"`
	Actor  string `json:"actor"`
	Target string `json:"target"`
	Intent string `json:"intent"`
	// Unix nanoseconds, indexed.
	RecordedAt int64 `json:"recordedAt"`
}

func (p PendingIntent) ToDomain() sphare.PendingIntent {
	return sphare.PendingIntent{
		Id:         p.Id,
		Actor:      sphare.Email(p.Actor),
		Target:     sphare.Email(p.Target),
		Intent:     sphare.Intent(p.Intent),
		RecordedAt: time.Unix(0, p.RecordedAt).UTC(),
	}
}

// IntentJournal keeps pending follow intents in buntdb. Keys:
//   intent:<id>                      serialized PendingIntent
//   intent_by_pair:<actor>|<target>  id of the live entry of the pair
type IntentJournal struct {
	Buntdb *buntdb.DB
}

var _ sphare.IntentJournal = (*IntentJournal)(nil)

func (j *IntentJournal) CreateIndexes() error {
	return j.Buntdb.CreateIndex("intents", "intent:*", buntdb.IndexJSON("recordedAt"))
}

// pairKey prefixes the actor with its length, emails may contain any separator.
func pairKey(actor, target sphare.Email) string {
	return "intent_by_pair:" + strconv.Itoa(len(actor)) + ":" + string(actor) + string(target)
}

func (j *IntentJournal) Record(ctx context.Context, actor, target sphare.Email,
	intent sphare.Intent) (sphare.PendingIntent, error) {
	entry := PendingIntent{
		Id:         uuid.New().String(),
		Actor:      string(actor),
		Target:     string(target),
		Intent:     string(intent),
		RecordedAt: time.Now().UnixNano(),
	}
	serialized, err := json.Marshal(&entry)
	if err != nil {
		return sphare.PendingIntent{}, fmt.Errorf("intent serialize: %w", err)
	}

	err = j.Buntdb.Update(func(tx *buntdb.Tx) error {
		expireOptions := &buntdb.SetOptions{Expires: true, TTL: intentTTL}

		previousId, replaced, err := tx.Set(pairKey(actor, target), entry.Id, expireOptions)
		if err != nil {
			return fmt.Errorf("set pair: %w", err)
		}
		if replaced {
			_, err := tx.Delete("intent:" + previousId)
			if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return fmt.Errorf("delete replaced intent: %w", err)
			}
		}

		_, _, err = tx.Set("intent:"+entry.Id, string(serialized), expireOptions)
		if err != nil {
			return fmt.Errorf("set intent: %w", err)
		}
		return nil
	})
	if err != nil {
		return sphare.PendingIntent{}, fmt.Errorf("bunt update: %w", err)
	}
	return entry.ToDomain(), nil
}

func (j *IntentJournal) Complete(ctx context.Context, id string) error {
	err := j.Buntdb.Update(func(tx *buntdb.Tx) error {
		serialized, err := tx.Delete("intent:" + id)
		if err != nil {
			return err
		}
		var entry PendingIntent
		if err := json.Unmarshal([]byte(serialized), &entry); err != nil {
			return fmt.Errorf("deserialize intent: %w", err)
		}

		key := pairKey(sphare.Email(entry.Actor), sphare.Email(entry.Target))
		liveId, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("get pair: %w", err)
		}
		if liveId == id {
			if _, err := tx.Delete(key); err != nil {
				return fmt.Errorf("delete pair: %w", err)
			}
		}
		return nil
	})
	switch {
	case err == nil, errors.Is(err, buntdb.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("bunt update: %w", err)
	}
}

func (j *IntentJournal) Pending(ctx context.Context) ([]sphare.PendingIntent, error) {
	pending := make([]sphare.PendingIntent, 0)
	err := j.Buntdb.View(func(tx *buntdb.Tx) error {
		var listErr error
		err := tx.Ascend("intents", func(key, value string) bool {
			var entry PendingIntent
			if err := json.Unmarshal([]byte(value), &entry); err != nil {
				listErr = fmt.Errorf("deserialize intent: %w", err)
				return false
			}
			pending = append(pending, entry.ToDomain())
			return true
		})
		if err != nil {
			return fmt.Errorf("ascend intents: %w", err)
		}
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("bunt view: %w", err)
	}
	return pending, nil
}
