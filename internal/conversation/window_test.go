package conversation

import (
	"fmt"
	"testing"
)

func buildHistory(n int) History {
	h := History{System("instructions")}
	for i := 1; i < n; i++ {
		h = append(h, User(fmt.Sprintf("utterance %d", i)))
	}
	return h
}

func TestWindow(t *testing.T) {
	for _, n := range []int{1, 2, 8, 9, 10, 15, 40} {
		t.Run(fmt.Sprintf("len_%d", n), func(t *testing.T) {
			h := buildHistory(n)
			got := Window(h, DefaultWindow)

			wantLen := n
			if n > DefaultWindow {
				wantLen = DefaultWindow
			}
			if len(got) != wantLen {
				t.Fatalf("Window() len = %d, want %d", len(got), wantLen)
			}
			if got[0] != h[0] {
				t.Errorf("Window()[0] = %+v, want system entry", got[0])
			}
			if got[len(got)-1] != h[len(h)-1] {
				t.Errorf("Window() last = %+v, want %+v", got[len(got)-1], h[len(h)-1])
			}
			if n > DefaultWindow && got[1] != h[n-DefaultWindow+1] {
				t.Errorf("Window()[1] = %+v, want %+v", got[1], h[n-DefaultWindow+1])
			}
		})
	}
}

func TestWindowDoesNotAliasStoredHistory(t *testing.T) {
	h := buildHistory(12)
	h = append(h, AssistantCall("check_appt_slots", `{}`))
	w := Window(h, DefaultWindow)

	w = append(w, FunctionResult("check_appt_slots", "none"))
	w[len(w)-2].FunctionCall.Name = "changed"

	if len(h) != 13 {
		t.Errorf("stored history len = %d, want 13", len(h))
	}
	if h[12].FunctionCall.Name != "check_appt_slots" {
		t.Errorf("stored function call mutated: %q", h[12].FunctionCall.Name)
	}
}
