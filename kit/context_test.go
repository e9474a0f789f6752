package kit

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithInstanceID(ctx, "ntp_1")
	ctx = WithRemoteAddr(ctx, "127.0.0.1:51234")
	ctx = WithMessageName(ctx, "stats_getData")

	if got := GetInstanceID(ctx); got != "ntp_1" {
		t.Fatalf("instance id = %q", got)
	}
	if got := GetRemoteAddr(ctx); got != "127.0.0.1:51234" {
		t.Fatalf("remote addr = %q", got)
	}
	if got := GetMessageName(ctx); got != "stats_getData" {
		t.Fatalf("message name = %q", got)
	}
}

func TestMissingValuesAreEmpty(t *testing.T) {
	ctx := context.Background()
	if GetInstanceID(ctx) != "" || GetRemoteAddr(ctx) != "" || GetMessageName(ctx) != "" {
		t.Fatal("unset context values must read as empty strings")
	}
}
