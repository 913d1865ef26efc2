package simulator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

var phrases = []string{
	"walk at 6?",
	"the park by the river is muddy today",
	"Rex says hi 🐕",
	"same time tomorrow?",
	"running late, 10 min",
}

// SimulateActivities runs sending and reading until ctx is done.
func (s *EnhancedSimulator) SimulateActivities(ctx context.Context) {
	log.Printf("Starting activities simulation...")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.every(ctx, s.config.MessageFrequency, s.simulateMessage)
	}()
	go func() {
		defer wg.Done()
		s.every(ctx, s.config.ReadFrequency, s.simulateRead)
	}()
	wg.Wait()
}

// every calls fn at perUserPerHour scaled to the user count.
func (s *EnhancedSimulator) every(ctx context.Context, perUserPerHour float64, fn func(context.Context)) {
	if perUserPerHour <= 0 {
		return
	}
	s.mu.RLock()
	n := len(s.users)
	s.mu.RUnlock()

	interval := time.Duration(float64(time.Hour) / (perUserPerHour * float64(n)))
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// pickPair returns a connected sender and a Zipf-chosen receiver.
func (s *EnhancedSimulator) pickPair() (*SimulatedUser, *SimulatedUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sender := s.users[s.intn(len(s.users))]
	if !sender.IsConnected {
		return nil, nil, false
	}
	receiver := s.users[s.getZipfNumber(len(s.users))]
	if receiver == sender {
		return nil, nil, false
	}
	return sender, receiver, true
}

func (s *EnhancedSimulator) simulateMessage(ctx context.Context) {
	sender, receiver, ok := s.pickPair()
	if !ok {
		return
	}
	text := fmt.Sprintf("%s (%s)", phrases[s.intn(len(phrases))], time.Now().Format(time.Kitchen))

	start := time.Now()
	msg, err := sender.device.Send(ctx, receiver.ID.String(), text)
	if ctx.Err() != nil {
		return
	}
	s.recordRequestMetrics(start, err)
	if err != nil {
		log.Printf("Failed to send message from %s to %s: %v", sender.Name, receiver.Name, err)
		return
	}

	s.stats.mu.Lock()
	s.stats.MessagesSent++
	if msg.IsEncrypted() {
		s.stats.EncryptedSent++
	}
	s.stats.mu.Unlock()
}

// simulateRead opens every unread conversation of one connected user.
func (s *EnhancedSimulator) simulateRead(ctx context.Context) {
	s.mu.RLock()
	user := s.users[s.intn(len(s.users))]
	connected := user.IsConnected
	s.mu.RUnlock()
	if !connected {
		return
	}

	start := time.Now()
	inbox, err := user.device.Inbox(ctx)
	if ctx.Err() != nil {
		return
	}
	s.recordRequestMetrics(start, err)
	if err != nil {
		log.Printf("Failed to load inbox for %s: %v", user.Name, err)
		return
	}

	for _, entry := range inbox {
		if !entry.HasUnread {
			continue
		}
		peerID := entry.PeerID.String()
		start := time.Now()
		conv, err := user.device.Conversation(ctx, peerID)
		if err == nil {
			err = user.api.MarkRead(ctx, peerID)
		}
		if ctx.Err() != nil {
			return
		}
		s.recordRequestMetrics(start, err)
		if err != nil {
			log.Printf("Failed to read conversation for %s: %v", user.Name, err)
			continue
		}

		undecryptable := 0
		for _, m := range conv.Messages {
			if !m.Readable {
				undecryptable++
			}
		}
		s.stats.mu.Lock()
		s.stats.ConversationsRead++
		s.stats.Undecryptable += undecryptable
		s.stats.mu.Unlock()
	}
}
