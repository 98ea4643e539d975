package domain

import "testing"

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []RideStatus{
		RideStatusRequested, RideStatusAccepted, RideStatusArrived,
		RideStatusInProgress, RideStatusCompleted, RideStatusCancelled,
	}
	allowed := map[[2]RideStatus]bool{
		{RideStatusRequested, RideStatusAccepted}:   true,
		{RideStatusRequested, RideStatusCancelled}:  true,
		{RideStatusAccepted, RideStatusArrived}:     true,
		{RideStatusAccepted, RideStatusCancelled}:   true,
		{RideStatusAccepted, RideStatusRequested}:   true,
		{RideStatusArrived, RideStatusInProgress}:   true,
		{RideStatusArrived, RideStatusCancelled}:    true,
		{RideStatusArrived, RideStatusRequested}:    true,
		{RideStatusInProgress, RideStatusCompleted}: true,
		{RideStatusInProgress, RideStatusCancelled}: true,
		{RideStatusInProgress, RideStatusRequested}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]RideStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestRideStatus_Predicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    RideStatus
		terminal  bool
		trackable bool
	}{
		{RideStatusRequested, false, false},
		{RideStatusAccepted, false, true},
		{RideStatusArrived, false, true},
		{RideStatusInProgress, false, true},
		{RideStatusCompleted, true, false},
		{RideStatusCancelled, true, false},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v", tt.status, got)
		}
		if got := tt.status.IsTrackable(); got != tt.trackable {
			t.Errorf("%s.IsTrackable() = %v", tt.status, got)
		}
	}
}

func TestCompletionOTPReleased(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ride Ride
		want bool
	}{
		{"not ended", Ride{PaymentMethod: PaymentMethodCash}, false},
		{"cash ended", Ride{PaymentMethod: PaymentMethodCash, CompletionOTP: "12345"}, true},
		{"prepaid ended", Ride{PaymentMethod: PaymentMethodOnline, PaymentTiming: PaymentTimingPrepaid, CompletionOTP: "12345"}, true},
		{"postpaid unpaid", Ride{PaymentMethod: PaymentMethodOnline, PaymentTiming: PaymentTimingPostpaid, PaymentStatus: PaymentStatusUnpaid, CompletionOTP: "12345"}, false},
		{"postpaid paid", Ride{PaymentMethod: PaymentMethodOnline, PaymentTiming: PaymentTimingPostpaid, PaymentStatus: PaymentStatusPaid, CompletionOTP: "12345"}, true},
	}
	for _, tt := range tests {
		if got := tt.ride.CompletionOTPReleased(); got != tt.want {
			t.Errorf("%s: CompletionOTPReleased() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWalletCashEligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		due, limit int64
		want       bool
	}{
		{0, 500, true},
		{499, 500, true},
		{500, 500, false},
		{700, 500, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		w := WalletAccount{CommissionDue: tt.due, CODLimit: tt.limit}
		if got := w.CashEligible(); got != tt.want {
			t.Errorf("due=%d limit=%d: CashEligible() = %v, want %v", tt.due, tt.limit, got, tt.want)
		}
	}
}

func TestRoomKey(t *testing.T) {
	t.Parallel()

	if got := RideRoom("42").Key(); got != "ride:42" {
		t.Errorf("RideRoom key = %s", got)
	}
	if got := UserRoom("u1").Key(); got != "user:u1" {
		t.Errorf("UserRoom key = %s", got)
	}
	if got := AdminRoom().Key(); got != "admin" {
		t.Errorf("AdminRoom key = %s", got)
	}
}
