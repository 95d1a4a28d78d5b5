package systemd

import "testing"

func TestGetListeners_NotActivated(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners failed: %v", err)
	}
	if listeners.Activated {
		t.Error("Expected no socket activation")
	}
	if listeners.Metrics != nil {
		t.Error("Expected no metrics listener")
	}
}

func TestNotify_WithoutSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	if err := NotifyReady(); err != nil {
		t.Errorf("NotifyReady failed: %v", err)
	}
	if err := NotifyStopping(); err != nil {
		t.Errorf("NotifyStopping failed: %v", err)
	}
	if err := NotifyWatchdog(); err != nil {
		t.Errorf("NotifyWatchdog failed: %v", err)
	}
}

func TestWatchdogInterval_Disabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	t.Setenv("WATCHDOG_PID", "")

	if d := WatchdogInterval(); d != 0 {
		t.Errorf("Expected 0, got %v", d)
	}
}
