package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Subscribe_ReceivesEmittedEvents(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("conv-1")
	defer unsubscribe()

	b.Emit(New(KindDone, "conv-1", "msg-1"))

	select {
	case e := <-ch:
		assert.Equal(t, "conv-1", e.ConversationID)
		assert.Equal(t, KindDone, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_Emit_DoesNotCrossConversations(t *testing.T) {
	b := NewBus()
	chA, unsubA := b.Subscribe("conv-a")
	defer unsubA()
	chB, unsubB := b.Subscribe("conv-b")
	defer unsubB()

	b.Emit(New(KindDone, "conv-a", "msg-1"))

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("conv-a subscriber never received its event")
	}
	select {
	case e := <-chB:
		t.Fatalf("conv-b subscriber unexpectedly received %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_Unsubscribe_ClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("conv-1")
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBus_Emit_MultipleSubscribersAllReceive(t *testing.T) {
	b := NewBus()
	ch1, unsub1 := b.Subscribe("conv-1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("conv-1")
	defer unsub2()

	b.Emit(New(KindDone, "conv-1", "msg-1"))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("a subscriber never received its event")
		}
	}
}

func TestBus_Emit_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	_, unsubscribe := b.Subscribe("conv-1")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Emit(New(KindDone, "conv-1", "msg-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full subscriber channel")
	}
}

func TestBus_ImplementsPort(t *testing.T) {
	var p Port = NewBus()
	require.NotNil(t, p)
}
