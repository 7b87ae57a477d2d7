package monitor

import (
	"context"
	"testing"

	"netmig/internal/logging"
	"netmig/internal/observability"
)

func newTestBroadcaster() *broadcaster {
	return newBroadcaster(logging.Nop(), &observability.MetricsCollector{})
}

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	caster := newTestBroadcaster()

	first, cancelFirst := caster.subscribe("job-1")
	second, cancelSecond := caster.subscribe("job-1")
	defer cancelFirst()
	defer cancelSecond()

	caster.publish(context.Background(), "job-1", Update{JobID: "job-1"})

	for name, ch := range map[string]chan Update{"first": first, "second": second} {
		select {
		case update := <-ch:
			if update.JobID != "job-1" {
				t.Errorf("Expected job-1 for %s subscriber, got %q", name, update.JobID)
			}
		default:
			t.Errorf("Expected %s subscriber to receive the update", name)
		}
	}
}

func TestBroadcasterScopesDeliveryByJob(t *testing.T) {
	caster := newTestBroadcaster()

	other, cancel := caster.subscribe("job-2")
	defer cancel()

	caster.publish(context.Background(), "job-1", Update{JobID: "job-1"})

	select {
	case update := <-other:
		t.Errorf("Expected no delivery for job-2, got %+v", update)
	default:
	}
}

func TestBroadcasterDropsWhenBufferFull(t *testing.T) {
	caster := newTestBroadcaster()

	ch, cancel := caster.subscribe("job-1")
	defer cancel()

	for i := 0; i < updateBuffer+3; i++ {
		caster.publish(context.Background(), "job-1", Update{JobID: "job-1"})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}

	if received != updateBuffer {
		t.Errorf("Expected %d buffered updates, got %d", updateBuffer, received)
	}
}

func TestBroadcasterForcesCriticalThroughFullBuffer(t *testing.T) {
	caster := newTestBroadcaster()

	ch, cancel := caster.subscribe("job-1")
	defer cancel()

	for i := 0; i < updateBuffer; i++ {
		caster.publish(context.Background(), "job-1", Update{JobID: "job-1"})
	}
	caster.publish(context.Background(), "job-1", Update{JobID: "job-1", Finished: true})

	var last Update
	count := 0
	for {
		select {
		case update := <-ch:
			last = update
			count++
			continue
		default:
		}
		break
	}

	if count != updateBuffer {
		t.Errorf("Expected the oldest update to be sacrificed, got %d queued", count)
	}
	if !last.Finished {
		t.Error("Expected the finished update to survive a full buffer")
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	caster := newTestBroadcaster()

	ch, cancel := caster.subscribe("job-1")
	cancel()

	if _, open := <-ch; open {
		t.Error("Expected the channel to be closed after cancel")
	}
	if count := caster.subscriberCount("job-1"); count != 0 {
		t.Errorf("Expected no remaining subscribers, got %d", count)
	}

	// A second cancel must be a no-op, not a double close.
	cancel()
}

func TestBroadcasterCloseJobClosesAllSubscribers(t *testing.T) {
	caster := newTestBroadcaster()

	first, cancelFirst := caster.subscribe("job-1")
	second, cancelSecond := caster.subscribe("job-1")

	caster.closeJob("job-1")

	if _, open := <-first; open {
		t.Error("Expected the first channel to be closed")
	}
	if _, open := <-second; open {
		t.Error("Expected the second channel to be closed")
	}

	// Cancel funcs issued before the close stay safe to call, and
	// publishing to a closed job delivers to no one.
	cancelFirst()
	cancelSecond()
	caster.publish(context.Background(), "job-1", Update{JobID: "job-1"})
}
