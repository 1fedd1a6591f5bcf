package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushFront(t *testing.T) {
	in := []int{3, 2, 1}

	out := PushFront(in, 4, 3)
	assert.Equal(t, []int{4, 3, 2}, out)
	assert.Equal(t, []int{3, 2, 1}, in)

	assert.Equal(t, []int{1}, PushFront[int](nil, 1, 5))
	assert.Nil(t, PushFront(in, 9, 0))
}

func TestPushFrontUnique(t *testing.T) {
	out := PushFrontUnique([]string{"a", "b", "c"}, "b", 3)
	assert.Equal(t, []string{"b", "a", "c"}, out)

	out = PushFrontUnique([]string{"a", "b", "c"}, "d", 3)
	assert.Equal(t, []string{"d", "a", "b"}, out)
}

func TestAuditTrailBounded(t *testing.T) {
	var trail []AuditEntry
	day := MustParseDate("2024-01-01")
	for i := 0; i < 25; i++ {
		trail = PushFront(trail, AuditEntry{Date: day.AddDays(i), Origin: "10.0.0.1", Summary: "updated nickname"}, DefaultAuditCap)
	}
	assert.Len(t, trail, DefaultAuditCap)
	assert.Equal(t, "2024-01-25", trail[0].Date.String())
	assert.Equal(t, "2024-01-16", trail[DefaultAuditCap-1].Date.String())
}
