package engine

import (
	"fmt"
	"testing"

	"github.com/upmaker/jitgo/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Verdict
	}{
		{nil, VerdictDone},
		{domain.ErrBidNotCrossed, VerdictRetry},
		{domain.ErrAskNotCrossed, VerdictRetry},
		{domain.ErrNoFill, VerdictRetry},
		{domain.ErrOracleStale, VerdictRetry},
		{domain.ErrGatewayUnavailable, VerdictRetry},
		{domain.ErrTakerOrderNotFound, VerdictDone},
		{domain.ErrSignedOrderNotFound, VerdictDone},
		{domain.ErrPositionLimitBreached, VerdictAbort},
		{domain.ErrOrderSizeBreached, VerdictAbort},
		{fmt.Errorf("unexpected"), VerdictAbort},
		// 包装过的哨兵错误同样要识别
		{fmt.Errorf("attempt 3: %w", domain.ErrAskNotCrossed), VerdictRetry},
		{fmt.Errorf("read order: %w", domain.ErrTakerOrderNotFound), VerdictDone},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v): got %v, want %v", c.err, got, c.want)
		}
	}
}
