package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/carecircle-dispatch/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProvider struct {
	calls  int
	sendFn func(ctx context.Context, msg Message) (*ProviderResponse, error)
}

func (f *fakeProvider) Send(ctx context.Context, msg Message) (*ProviderResponse, error) {
	f.calls++
	return f.sendFn(ctx, msg)
}

var breakerTestMessage = Message{Channel: domain.ChannelSMS, Recipient: "+1555", Body: "x"}

func TestBreakerProviderOpensAfterTransientFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	next := &fakeProvider{sendFn: func(context.Context, Message) (*ProviderResponse, error) {
		return nil, &ProviderError{Message: "down", Transient: true}
	}}
	var transitions []gobreaker.State
	p := NewBreakerProvider("sms", next, BreakerSettings{
		FailureThreshold: 2,
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}, zap.New(core))

	for i := 0; i < 2; i++ {
		if _, err := p.Send(context.Background(), breakerTestMessage); err == nil {
			t.Fatal("expected provider error")
		}
	}
	if p.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, want open", p.State())
	}

	_, err := p.Send(context.Background(), breakerTestMessage)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatal("open circuit must be transient")
	}
	if next.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", next.calls)
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Fatalf("transitions = %v", transitions)
	}
	if logs.FilterMessage("provider circuit breaker state changed").Len() != 1 {
		t.Fatal("expected state change to be logged")
	}
}

func TestBreakerProviderIgnoresPermanentFailures(t *testing.T) {
	t.Parallel()

	next := &fakeProvider{sendFn: func(context.Context, Message) (*ProviderResponse, error) {
		return nil, &ProviderError{Message: "invalid number", Transient: false}
	}}
	p := NewBreakerProvider("sms", next, BreakerSettings{FailureThreshold: 1}, nil)

	for i := 0; i < 3; i++ {
		_, _ = p.Send(context.Background(), breakerTestMessage)
	}
	if p.State() != gobreaker.StateClosed {
		t.Fatalf("state = %s, want closed", p.State())
	}
	if next.calls != 3 {
		t.Fatalf("provider calls = %d, want 3", next.calls)
	}
}

func TestBreakerProviderPassesThroughSuccess(t *testing.T) {
	t.Parallel()

	next := &fakeProvider{sendFn: func(context.Context, Message) (*ProviderResponse, error) {
		return &ProviderResponse{StatusCode: 200, MessageID: "m-1"}, nil
	}}
	p := NewBreakerProvider("email", next, DefaultBreakerSettings(), nil)

	resp, err := p.Send(context.Background(), breakerTestMessage)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.MessageID != "m-1" {
		t.Fatalf("MessageID = %q", resp.MessageID)
	}
}
