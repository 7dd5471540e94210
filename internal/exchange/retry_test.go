package exchange

import (
	"context"
	"testing"

	"llm-autotrader/internal/errs"
	exchsim "llm-autotrader/internal/exchange/sim"
	"llm-autotrader/internal/types"
)

// flakyClient fails the first failures ticker calls, then succeeds.
type flakyClient struct {
	*exchsim.Client
	failures int
	kind     errs.Kind
	calls    int
}

func (c *flakyClient) FetchTicker(ctx context.Context, symbol string) (types.TickerSnapshot, error) {
	c.calls++
	if c.calls <= c.failures {
		return types.TickerSnapshot{}, errs.New(c.kind, "flake", "induced failure")
	}
	return c.Client.FetchTicker(ctx, symbol)
}

func (c *flakyClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	c.calls++
	if c.calls <= c.failures {
		return "", errs.New(c.kind, "flake", "induced failure")
	}
	return c.Client.PlaceOrder(ctx, req)
}

func TestRetryRecoversFromTransient(t *testing.T) {
	flaky := &flakyClient{Client: exchsim.New(1), failures: 2, kind: errs.Transient}
	client := WithRetry(flaky, nil)

	ticker, err := client.FetchTicker(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatalf("Expected recovery within the attempt budget, got %v", err)
	}
	if ticker.Symbol != "RELIANCE" {
		t.Errorf("Unexpected ticker %+v", ticker)
	}
	if flaky.calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", flaky.calls)
	}
}

func TestRetryExhaustionSurfacesUnavailable(t *testing.T) {
	flaky := &flakyClient{Client: exchsim.New(1), failures: 100, kind: errs.Transient}
	client := WithRetry(flaky, nil)

	_, err := client.FetchTicker(context.Background(), "RELIANCE")
	if errs.KindOf(err) != errs.Unavailable {
		t.Errorf("Expected Unavailable after exhaustion, got %v", err)
	}
	if flaky.calls != 4 {
		t.Errorf("Expected 4 attempts, got %d", flaky.calls)
	}
}

func TestRetryDoesNotRetryTerminalKinds(t *testing.T) {
	flaky := &flakyClient{Client: exchsim.New(1), failures: 100, kind: errs.Auth}
	client := WithRetry(flaky, nil)

	_, err := client.FetchTicker(context.Background(), "RELIANCE")
	if errs.KindOf(err) != errs.Auth {
		t.Errorf("Expected Auth to surface verbatim, got %v", err)
	}
	if flaky.calls != 1 {
		t.Errorf("Auth must not retry, got %d attempts", flaky.calls)
	}
}

func TestPlaceOrderNeverRetries(t *testing.T) {
	flaky := &flakyClient{Client: exchsim.New(1), failures: 1, kind: errs.Timeout}
	client := WithRetry(flaky, nil)

	_, err := client.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "RELIANCE", Side: types.SideBuy, Kind: types.OrderMarket, Qty: 1,
	})
	if errs.KindOf(err) != errs.Timeout {
		t.Errorf("Expected the submission failure verbatim, got %v", err)
	}
	if flaky.calls != 1 {
		t.Errorf("Order submission must be single-shot, got %d attempts", flaky.calls)
	}
}
