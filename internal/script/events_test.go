package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDeliverWakesWaiter(t *testing.T) {
	r := newRegistry()
	ch := r.wait(1)
	r.deliver(1, "hello")
	select {
	case v := <-ch:
		assert.Equal(t, "hello", v)
	default:
		t.Fatal("expected a delivered value")
	}
}

func TestRegistryDeliverWithoutWaiterIsSilentlyDropped(t *testing.T) {
	r := newRegistry()
	require.NotPanics(t, func() { r.deliver(99, "nobody listening") })
}

func TestRegistryForgetDropsWaiterBeforeDelivery(t *testing.T) {
	r := newRegistry()
	ch := r.wait(1)
	r.forget(1)
	r.deliver(1, "too late")

	select {
	case v := <-ch:
		t.Fatalf("expected no delivery after forget, got %v", v)
	default:
	}
}

func TestErrorReplyUnwraps(t *testing.T) {
	e := newErrorReply("boom: %s", "detail")
	assert.Equal(t, "boom: detail", e.Error())
}
