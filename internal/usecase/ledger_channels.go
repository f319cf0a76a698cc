package usecase

import (
	"context"

	"telegram-referral-rewards/internal/domain"
	"telegram-referral-rewards/internal/domain/model"
)

// Channels returns the required channels in display order.
func (l *Ledger) Channels() []model.RequiredChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.RequiredChannel(nil), l.channels...)
}

func (l *Ledger) channelIndexLocked(chatID int64) int {
	for i, ch := range l.channels {
		if ch.ChatID == chatID {
			return i
		}
	}
	return -1
}

func (l *Ledger) renumberLocked() {
	for i := range l.channels {
		l.channels[i].Position = i
	}
}

func (l *Ledger) AddChannel(ctx context.Context, ch model.RequiredChannel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.channelIndexLocked(ch.ChatID) >= 0 {
		return domain.ErrAlreadyExists
	}
	l.channels = append(l.channels, ch)
	l.renumberLocked()
	cs := newChangeSet()
	cs.channels = true
	return l.persist(ctx, cs)
}

// ReplaceChannel swaps the channel identified by chatID for ch, keeping its
// position.
func (l *Ledger) ReplaceChannel(ctx context.Context, chatID int64, ch model.RequiredChannel) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.channelIndexLocked(chatID)
	if i < 0 {
		return domain.ErrNotFound
	}
	if ch.ChatID != chatID && l.channelIndexLocked(ch.ChatID) >= 0 {
		return domain.ErrAlreadyExists
	}
	l.channels[i] = ch
	l.renumberLocked()
	cs := newChangeSet()
	cs.channels = true
	return l.persist(ctx, cs)
}

func (l *Ledger) RemoveChannel(ctx context.Context, chatID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.channelIndexLocked(chatID)
	if i < 0 {
		return domain.ErrNotFound
	}
	l.channels = append(l.channels[:i], l.channels[i+1:]...)
	l.renumberLocked()
	cs := newChangeSet()
	cs.channels = true
	return l.persist(ctx, cs)
}
