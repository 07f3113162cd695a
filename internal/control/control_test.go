package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrainReturnsInPostOrderAndEmpties(t *testing.T) {
	b := NewBus()
	b.Post(Message{Kind: Park, Token: 1})
	b.Post(Message{Kind: Wake, Token: 2})

	msgs := b.Drain()
	assert.Len(t, msgs, 2)
	assert.Equal(t, uint64(1), msgs[0].Token)
	assert.Equal(t, uint64(2), msgs[1].Token)

	assert.Empty(t, b.Drain())
}
