package usecase

import "TokenPulse/internal/domain/models"

// TxBuffer is a fixed-capacity FIFO of transactions in arrival order.
// It is not safe for concurrent use; the owning session guards it.
type TxBuffer struct {
	items []models.Transaction
	head  int
	size  int
}

func NewTxBuffer(capacity int) *TxBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &TxBuffer{items: make([]models.Transaction, capacity)}
}

// Push appends tx, evicting the oldest arrival when full.
func (b *TxBuffer) Push(tx models.Transaction) (evicted models.Transaction, ok bool) {
	c := len(b.items)
	if b.size == c {
		evicted = b.items[b.head]
		b.items[b.head] = tx
		b.head = (b.head + 1) % c
		return evicted, true
	}
	b.items[(b.head+b.size)%c] = tx
	b.size++
	return models.Transaction{}, false
}

func (b *TxBuffer) Len() int { return b.size }

func (b *TxBuffer) Cap() int { return len(b.items) }

// NewestFirst copies the buffer, latest arrival first.
func (b *TxBuffer) NewestFirst() []models.Transaction {
	out := make([]models.Transaction, b.size)
	c := len(b.items)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+b.size-1-i)%c]
	}
	return out
}

// ArrivalOrder copies the buffer, oldest arrival first.
func (b *TxBuffer) ArrivalOrder() []models.Transaction {
	out := make([]models.Transaction, b.size)
	c := len(b.items)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%c]
	}
	return out
}
