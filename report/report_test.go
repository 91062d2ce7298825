package report

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hazyhaar/pasteup/dom"
)

func TestReasonOf(t *testing.T) {
	tests := []struct {
		err  error
		want Reason
	}{
		{nil, ReasonNone},
		{fmt.Errorf("acquire: %w", dom.ErrNotAcquired), ReasonNotAcquired},
		{fmt.Errorf("inject: %w", dom.ErrInjectionFailed), ReasonInjectionFailed},
		{fmt.Errorf("%w: type text/plain", dom.ErrInvalidPayload), ReasonInvalidPayload},
		{fmt.Errorf("acquire: %w", context.Canceled), ReasonCanceled},
		{context.DeadlineExceeded, ReasonCanceled},
		{errors.New("cdp: connection reset"), ReasonOther},
	}
	for _, tt := range tests {
		if got := ReasonOf(tt.err); got != tt.want {
			t.Errorf("ReasonOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestUnmarshal_Timestamp(t *testing.T) {
	u, err := Unmarshal([]byte(`{"id":"upl_1","source":"http","success":false,"reason":"not_acquired","timestamp":1700000000000}`))
	if err != nil {
		t.Fatal(err)
	}
	if u.Source != SourceHTTP || u.Reason != ReasonNotAcquired || u.Timestamp != 1700000000000 {
		t.Errorf("upload = %+v", u)
	}
}
