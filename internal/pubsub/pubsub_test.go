package pubsub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesDirectAndPatternSubscribers(t *testing.T) {
	b := New()
	direct := b.Subscribe("news.sports")
	pattern := b.PSubscribe("news.*")

	reached := b.Publish("news.sports", []byte("goal"))
	assert.Equal(t, 2, reached)

	select {
	case msg := <-direct.C():
		assert.Equal(t, "news.sports", msg.Channel)
		assert.Equal(t, "", msg.Pattern)
		assert.Equal(t, "goal", string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("direct subscriber did not receive message")
	}

	select {
	case msg := <-pattern.C():
		assert.Equal(t, "news.sports", msg.Channel)
		assert.Equal(t, "news.*", msg.Pattern)
	case <-time.After(time.Second):
		t.Fatal("pattern subscriber did not receive message")
	}
}

func TestUnsubscribeGarbageCollectsEmptyChannel(t *testing.T) {
	b := New()
	r := b.Subscribe("ch")
	require.Equal(t, 1, b.ChannelSubscriberCount("ch"))
	b.Unsubscribe("ch", r)
	assert.Equal(t, 0, b.ChannelSubscriberCount("ch"))
	_, ok := b.channels["ch"]
	assert.False(t, ok)
}

func TestSlowSubscriberLosesOldestRatherThanBlockingPublisher(t *testing.T) {
	b := New()
	r := b.Subscribe("ch")
	for i := 0; i < queueCapacity+10; i++ {
		done := make(chan struct{})
		go func() {
			b.Publish("ch", []byte("m"))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on a slow subscriber")
		}
	}
	assert.Equal(t, queueCapacity, len(r.C()))
}
