package control

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHandler_SendRequestRoundTrip(t *testing.T) {
	h := NewHandler()
	req, wait := h.CreateHookResponseRequest("hook-1", json.RawMessage(`{}`))
	if req.Method != MethodHookResponse {
		t.Fatalf("method = %q, want hook_response", req.Method)
	}

	resp := ControlResponse{Type: FrameResponse, ID: req.ID, Status: StatusSuccess, Result: json.RawMessage(`{"ok":true}`)}
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	consumed, err := h.HandleInbound(raw)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if !consumed {
		t.Fatalf("expected response frame to be consumed")
	}

	select {
	case got := <-wait:
		if got.Status != StatusSuccess {
			t.Fatalf("status = %q, want success", got.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

func TestHandler_LateResponseDropped(t *testing.T) {
	h := NewHandler()
	resp := ControlResponse{Type: FrameResponse, ID: "req-does-not-exist", Status: StatusSuccess}
	raw, _ := json.Marshal(resp)

	consumed, err := h.HandleInbound(raw)
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if !consumed {
		t.Fatalf("expected response frame to be consumed even though unmatched")
	}
}

func TestHandler_NonControlFrameNotConsumed(t *testing.T) {
	h := NewHandler()
	consumed, err := h.HandleInbound([]byte(`{"type":"assistant","content":"hi"}`))
	if err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if consumed {
		t.Fatalf("non-control frame should not be consumed")
	}
}

func TestHandler_HookEventRouting(t *testing.T) {
	h := NewHandler(WithHooks(1))
	resp := ControlResponse{
		Type:        FrameResponse,
		ID:          "req-1",
		Status:      StatusHook,
		HookID:      "hook-1",
		Event:       "PreToolUse",
		HookPayload: json.RawMessage(`{"tool":"Bash"}`),
	}
	raw, _ := json.Marshal(resp)

	consumed, err := h.HandleInbound(raw)
	if err != nil || !consumed {
		t.Fatalf("HandleInbound: consumed=%v err=%v", consumed, err)
	}

	select {
	case ev := <-h.HookEvents():
		if ev.HookID != "hook-1" || ev.Event != "PreToolUse" {
			t.Fatalf("unexpected hook event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hook event")
	}
}

func TestHandler_InitResponseVersionMismatch(t *testing.T) {
	h := NewHandler()
	resp := InitResponse{Type: FrameInitResponse, ProtocolVersion: "2.0"}
	raw, _ := json.Marshal(resp)

	if _, err := h.HandleInbound(raw); err == nil {
		t.Fatal("expected version mismatch error")
	}
	if h.Initialized() {
		t.Fatal("handler should not be initialized after a version mismatch")
	}
}

func TestHandler_InitResponseAccepted(t *testing.T) {
	h := NewHandler()
	resp := InitResponse{Type: FrameInitResponse, ProtocolVersion: ProtocolVersion}
	raw, _ := json.Marshal(resp)

	if _, err := h.HandleInbound(raw); err != nil {
		t.Fatalf("HandleInbound: %v", err)
	}
	if !h.Initialized() {
		t.Fatal("handler should be initialized after a matching init_response")
	}
}

func TestHandler_SetInitializedSkipsHandshake(t *testing.T) {
	h := NewHandler()
	if h.Initialized() {
		t.Fatal("should start uninitialized")
	}
	h.SetInitialized(true)
	if !h.Initialized() {
		t.Fatal("SetInitialized(true) should mark initialized")
	}
}

func TestHandler_CloseUnblocksWaiters(t *testing.T) {
	h := NewHandler()
	_, wait := h.CreateHookResponseRequest("hook-1", nil)

	h.Close()

	select {
	case resp, ok := <-wait:
		if ok {
			t.Fatalf("expected closed channel, got %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Close to unblock waiter")
	}
}

func TestHandler_UniqueRequestIDs(t *testing.T) {
	h := NewHandler()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		req := h.CreateInterruptRequest()
		if seen[req.ID] {
			t.Fatalf("duplicate request id %q", req.ID)
		}
		seen[req.ID] = true
	}
}
