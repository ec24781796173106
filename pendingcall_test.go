package dbusconn

import (
	"testing"
	"time"
)

func TestPendingCallTableCompleteDeliversResult(t *testing.T) {
	table := newPendingCallTable(NoopMetrics{})
	pc := table.register(42, time.Second)

	reply := NewMessage(TypeMethodReturn)
	reply.SetReplySerial(42)
	if !table.complete(42, reply, nil) {
		t.Fatalf("complete(42) = false, want true")
	}
	select {
	case res := <-pc.done:
		if res.msg != reply || res.err != nil {
			t.Errorf("result = %+v, want msg=%v err=nil", res, reply)
		}
	default:
		t.Fatalf("pc.done has no result after complete")
	}
	if table.len() != 0 {
		t.Errorf("table.len() = %d, want 0 after complete", table.len())
	}
}

func TestPendingCallTableCompleteUnknownSerial(t *testing.T) {
	table := newPendingCallTable(NoopMetrics{})
	if table.complete(99, nil, nil) {
		t.Fatalf("complete(99) on empty table = true, want false")
	}
}

func TestPendingCallTableTimeout(t *testing.T) {
	table := newPendingCallTable(NoopMetrics{})
	pc := table.register(7, 10*time.Millisecond)

	select {
	case res := <-pc.done:
		if res.err != ErrTimeout {
			t.Errorf("err = %v, want ErrTimeout", res.err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for pending call timeout")
	}
	if table.len() != 0 {
		t.Errorf("table.len() = %d, want 0 after timeout", table.len())
	}
}

func TestPendingCallTableCancel(t *testing.T) {
	table := newPendingCallTable(NoopMetrics{})
	pc := table.register(1, time.Minute)
	cause := ErrClosed
	table.cancel(1, cause)

	select {
	case res := <-pc.done:
		if res.err != cause {
			t.Errorf("err = %v, want %v", res.err, cause)
		}
	default:
		t.Fatalf("pc.done has no result after cancel")
	}
}

func TestPendingCallTableDrainCompletesEverything(t *testing.T) {
	table := newPendingCallTable(NoopMetrics{})
	pcs := []*pendingCall{
		table.register(1, time.Minute),
		table.register(2, time.Minute),
		table.register(3, time.Minute),
	}
	table.drain(ErrClosed)
	if table.len() != 0 {
		t.Errorf("table.len() = %d, want 0 after drain", table.len())
	}
	for _, pc := range pcs {
		select {
		case res := <-pc.done:
			if res.err != ErrClosed {
				t.Errorf("err = %v, want ErrClosed", res.err)
			}
		default:
			t.Fatalf("pending call %d not completed by drain", pc.serial)
		}
	}
}

func TestPendingCallCompleteIsOnceOnly(t *testing.T) {
	pc := &pendingCall{serial: 1, done: make(chan pendingResult, 1)}
	pc.complete(nil, ErrTimeout)
	pc.complete(nil, ErrClosed) // must not block or panic on second call

	res := <-pc.done
	if res.err != ErrTimeout {
		t.Errorf("err = %v, want ErrTimeout (first completion wins)", res.err)
	}
}
