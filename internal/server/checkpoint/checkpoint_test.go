package checkpoint

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	c := NewCodec("secret")
	p := Position{Time: time.Date(2026, 5, 4, 12, 30, 0, 123456000, time.UTC), Seq: 981}

	got, err := c.Decode(c.Encode(p))
	require.NoError(t, err)
	assert.Equal(t, p.Seq, got.Seq)
	assert.True(t, p.Time.Equal(got.Time))
}

func TestCodec_EmptyIsZero(t *testing.T) {
	got, err := NewCodec("secret").Decode("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestPosition_IsZero(t *testing.T) {
	assert.True(t, Position{}.IsZero())
	assert.False(t, Position{Seq: 1}.IsZero())
	assert.False(t, Position{Time: time.Now()}.IsZero())
}

func TestCodec_RejectsForeignKey(t *testing.T) {
	token := NewCodec("one").Encode(Position{Time: time.Now(), Seq: 3})

	_, err := NewCodec("two").Decode(token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrBadRequest))
}

func TestCodec_RejectsGarbage(t *testing.T) {
	c := NewCodec("secret")
	for _, token := range []string{"!!!", "AAAA", c.Encode(Position{Time: time.Now()}) + "AA"} {
		_, err := c.Decode(token)
		assert.ErrorIs(t, err, common.ErrBadRequest, token)
	}
}

func TestCodec_RejectsNegativeSeq(t *testing.T) {
	c := NewCodec("secret")
	_, err := c.Decode(c.Encode(Position{Time: time.Now(), Seq: -1}))
	assert.ErrorIs(t, err, common.ErrBadRequest)
}
