package persistent

import (
	"context"
	"testing"

	"github.com/blogsphare/sphare"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/buntdb"
)

func openTestJournal(t *testing.T) (*IntentJournal, func()) {
	bdb, err := buntdb.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	journal := &IntentJournal{Buntdb: bdb}
	if err := journal.CreateIndexes(); err != nil {
		t.Fatal(err)
	}
	return journal, func() { _ = bdb.Close() }
}

func TestIntentJournalRecordAndComplete(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	journal, closeJournal := openTestJournal(t)
	defer closeJournal()

	first, err := journal.Record(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	assert.NotEmpty(first.Id)
	assert.Equal(sphare.Email("a@x.com"), first.Actor)
	assert.Equal(sphare.Email("b@x.com"), first.Target)
	assert.Equal(sphare.IntentFollow, first.Intent)

	other, err := journal.Record(ctx, "c@x.com", "b@x.com", sphare.IntentUnfollow)
	if !assert.NoError(err) {
		return
	}

	pending, err := journal.Pending(ctx)
	if !assert.NoError(err) {
		return
	}
	if assert.Len(pending, 2) {
		assert.Equal(first.Id, pending[0].Id)
		assert.Equal(other.Id, pending[1].Id)
	}

	assert.NoError(journal.Complete(ctx, first.Id))
	assert.NoError(journal.Complete(ctx, first.Id), "completing twice is not an error")

	pending, err = journal.Pending(ctx)
	if !assert.NoError(err) {
		return
	}
	if assert.Len(pending, 1) {
		assert.Equal(other, pending[0])
	}
}

func TestIntentJournalLatestIntentWins(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	journal, closeJournal := openTestJournal(t)
	defer closeJournal()

	first, err := journal.Record(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	second, err := journal.Record(ctx, "a@x.com", "b@x.com", sphare.IntentUnfollow)
	if !assert.NoError(err) {
		return
	}

	pending, err := journal.Pending(ctx)
	if !assert.NoError(err) {
		return
	}
	if assert.Len(pending, 1) {
		assert.Equal(second.Id, pending[0].Id)
		assert.Equal(sphare.IntentUnfollow, pending[0].Intent)
	}

	// completing the replaced entry must not drop the live one
	assert.NoError(journal.Complete(ctx, first.Id))
	pending, err = journal.Pending(ctx)
	if !assert.NoError(err) {
		return
	}
	assert.Len(pending, 1)

	assert.NoError(journal.Complete(ctx, second.Id))
	pending, err = journal.Pending(ctx)
	if !assert.NoError(err) {
		return
	}
	assert.Empty(pending)

	third, err := journal.Record(ctx, "a@x.com", "b@x.com", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	pending, err = journal.Pending(ctx)
	if !assert.NoError(err) {
		return
	}
	if assert.Len(pending, 1) {
		assert.Equal(third.Id, pending[0].Id)
	}
}

func TestIntentJournalPairsWithSeparatorInEmail(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	journal, closeJournal := openTestJournal(t)
	defer closeJournal()

	assert.NotEqual(pairKey("a|b@x.com", "c@x.com"), pairKey("a", "b@x.com|c@x.com"))

	first, err := journal.Record(ctx, "a|b", "c", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}
	second, err := journal.Record(ctx, "a", "b|c", sphare.IntentFollow)
	if !assert.NoError(err) {
		return
	}

	pending, err := journal.Pending(ctx)
	if !assert.NoError(err) {
		return
	}
	if assert.Len(pending, 2) {
		assert.Equal(first.Id, pending[0].Id)
		assert.Equal(second.Id, pending[1].Id)
	}
}
