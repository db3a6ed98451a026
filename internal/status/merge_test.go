package status

import (
	"strings"
	"testing"

	"github.com/blkluv/nostatus/internal/models"

	"github.com/go-playground/assert/v2"
)

const mergeNow = int64(1_000_000)

var mergePubkey = strings.Repeat("ab", 32)

func generalStatus(content string, createdAt int64) models.StatusData {
	return models.StatusData{
		Category:  models.CategoryGeneral,
		Content:   content,
		CreatedAt: createdAt,
	}
}

func musicStatus(content string, createdAt int64) models.StatusData {
	return models.StatusData{
		Category:  models.CategoryMusic,
		Content:   content,
		CreatedAt: createdAt,
	}
}

func TestApplyStatusUpdate_StoresNewStatus(t *testing.T) {
	next, changed := applyStatusUpdate(nil, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("at the gym", 100),
	}, mergeNow)

	assert.Equal(t, true, changed)
	assert.Equal(t, mergePubkey, next.Pubkey)
	assert.Equal(t, "at the gym", next.General.Content)
	assert.Equal(t, nil, next.Music)
}

func TestApplyStatusUpdate_LastWriteWins(t *testing.T) {
	tests := []struct {
		name        string
		existingAt  int64
		incomingAt  int64
		wantChanged bool
		wantContent string
	}{
		{"newer replaces", 100, 200, true, "new"},
		{"older dropped", 200, 100, false, "old"},
		{"tie favors stored", 100, 100, false, "old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			current, _ := applyStatusUpdate(nil, Update{
				Pubkey: mergePubkey,
				Status: generalStatus("old", tt.existingAt),
			}, mergeNow)

			next, changed := applyStatusUpdate(current, Update{
				Pubkey: mergePubkey,
				Status: generalStatus("new", tt.incomingAt),
			}, mergeNow)

			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.wantContent, next.General.Content)
		})
	}
}

func TestApplyStatusUpdate_DropsExpired(t *testing.T) {
	expired := mergeNow - 10
	boundary := mergeNow

	current, _ := applyStatusUpdate(nil, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("current", 100),
	}, mergeNow)

	// Already expired updates lose even with a winning timestamp.
	upd := generalStatus("too late", 500)
	upd.Expiration = &expired
	next, changed := applyStatusUpdate(current, Update{Pubkey: mergePubkey, Status: upd}, mergeNow)
	assert.Equal(t, false, changed)
	assert.Equal(t, "current", next.General.Content)

	// Expiring exactly now counts as expired.
	upd = generalStatus("boundary", 500)
	upd.Expiration = &boundary
	_, changed = applyStatusUpdate(current, Update{Pubkey: mergePubkey, Status: upd}, mergeNow)
	assert.Equal(t, false, changed)

	// A future expiration is accepted.
	future := mergeNow + 60
	upd = generalStatus("still fresh", 500)
	upd.Expiration = &future
	next, changed = applyStatusUpdate(current, Update{Pubkey: mergePubkey, Status: upd}, mergeNow)
	assert.Equal(t, true, changed)
	assert.Equal(t, "still fresh", next.General.Content)
}

func TestApplyStatusUpdate_DropsUnknownCategory(t *testing.T) {
	upd := models.StatusData{Category: "gaming", Content: "one more round", CreatedAt: 100}
	next, changed := applyStatusUpdate(nil, Update{Pubkey: mergePubkey, Status: upd}, mergeNow)

	assert.Equal(t, false, changed)
	assert.Equal(t, nil, next)
}

func TestApplyStatusUpdate_SlotsAreIndependent(t *testing.T) {
	current, _ := applyStatusUpdate(nil, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("working", 300),
	}, mergeNow)

	// An older music update still lands; timestamps compare per slot.
	next, changed := applyStatusUpdate(current, Update{
		Pubkey: mergePubkey,
		Status: musicStatus("Purple Rain", 100),
	}, mergeNow)

	assert.Equal(t, true, changed)
	assert.Equal(t, "working", next.General.Content)
	assert.Equal(t, "Purple Rain", next.Music.Content)
}

func TestApplyStatusUpdate_TombstoneClearsSlot(t *testing.T) {
	current, _ := applyStatusUpdate(nil, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("afk", 100),
	}, mergeNow)
	current, _ = applyStatusUpdate(current, Update{
		Pubkey: mergePubkey,
		Status: musicStatus("Kind of Blue", 120),
	}, mergeNow)

	next, changed := applyStatusUpdate(current, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("", 200),
	}, mergeNow)

	assert.Equal(t, true, changed)
	assert.Equal(t, nil, next.General)
	assert.Equal(t, "Kind of Blue", next.Music.Content)
}

func TestApplyStatusUpdate_TombstoneRemovesEmptyEntry(t *testing.T) {
	current, _ := applyStatusUpdate(nil, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("afk", 100),
	}, mergeNow)

	next, changed := applyStatusUpdate(current, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("", 200),
	}, mergeNow)

	assert.Equal(t, true, changed)
	assert.Equal(t, nil, next)
}

func TestApplyStatusUpdate_TombstoneWithoutSlotIsNoop(t *testing.T) {
	next, changed := applyStatusUpdate(nil, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("", 200),
	}, mergeNow)

	assert.Equal(t, false, changed)
	assert.Equal(t, nil, next)

	// Same for an entry that only has the other slot.
	current, _ := applyStatusUpdate(nil, Update{
		Pubkey: mergePubkey,
		Status: musicStatus("Hounds of Love", 100),
	}, mergeNow)
	next, changed = applyStatusUpdate(current, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("", 200),
	}, mergeNow)

	assert.Equal(t, false, changed)
	assert.Equal(t, current, next)
}

func TestApplyStatusUpdate_Idempotent(t *testing.T) {
	upd := Update{Pubkey: mergePubkey, Status: generalStatus("hello", 100)}

	first, changed := applyStatusUpdate(nil, upd, mergeNow)
	assert.Equal(t, true, changed)

	second, changed := applyStatusUpdate(first, upd, mergeNow)
	assert.Equal(t, false, changed)
	assert.Equal(t, first, second)
}

func TestApplyStatusUpdate_Commutative(t *testing.T) {
	a := Update{Pubkey: mergePubkey, Status: generalStatus("first", 100)}
	b := Update{Pubkey: mergePubkey, Status: generalStatus("second", 200)}

	ab, _ := applyStatusUpdate(nil, a, mergeNow)
	ab, _ = applyStatusUpdate(ab, b, mergeNow)

	ba, _ := applyStatusUpdate(nil, b, mergeNow)
	ba, _ = applyStatusUpdate(ba, a, mergeNow)

	assert.Equal(t, ab, ba)
	assert.Equal(t, "second", ab.General.Content)
}

func TestApplyStatusUpdate_DoesNotMutateCurrent(t *testing.T) {
	current, _ := applyStatusUpdate(nil, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("before", 100),
	}, mergeNow)

	next, _ := applyStatusUpdate(current, Update{
		Pubkey: mergePubkey,
		Status: generalStatus("after", 200),
	}, mergeNow)

	assert.Equal(t, "before", current.General.Content)
	assert.Equal(t, "after", next.General.Content)
}
