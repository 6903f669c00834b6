package process

import (
	"encoding/json"
	"testing"
)

func TestHandlersEmitInSubscriptionOrder(t *testing.T) {
	var h handlers[int]
	var got []string

	h.add(func(v int) { got = append(got, "a") })
	unsubscribe := h.add(func(v int) { got = append(got, "b") })
	h.add(func(v int) { got = append(got, "c") })

	h.emit(1)
	unsubscribe()
	h.emit(2)

	want := []string{"a", "b", "c", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestHandlersUnsubscribeDuringEmit(t *testing.T) {
	var h handlers[string]
	calls := 0
	var unsubscribe func()
	unsubscribe = h.add(func(string) {
		calls++
		unsubscribe()
	})

	h.emit("x")
	h.emit("y")
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if h.len() != 0 {
		t.Fatalf("len = %d", h.len())
	}
}

func TestHandlersClear(t *testing.T) {
	var h handlers[int]
	h.add(func(int) { t.Fatal("cleared handler called") })
	h.add(nil)
	h.clear()
	h.emit(1)
}

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Status{"status": StatusFailedToStart})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"status":"failed_to_start"}` {
		t.Fatalf("json = %s", data)
	}
	if !StatusStarting.Active() || !StatusRunning.Active() || StatusExited.Active() {
		t.Fatal("unexpected Active result")
	}
	if Status(42).String() != "status(42)" {
		t.Fatalf("unknown status = %s", Status(42))
	}
}
