package core

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMessagingErrorMapper_AssignsStableCodes(t *testing.T) {
	mapped := messagingErrorMapper(stderrors.New("core: channel is not routable: carrier-pigeon"))
	if mapped.TextCode != MessagingErrorChannelNotRoutable {
		t.Fatalf("expected routable text code, got %q", mapped.TextCode)
	}
	if mapped.Code == 0 {
		t.Fatalf("expected http status code on mapped error")
	}

	mapped = messagingErrorMapper(stderrors.New(`integration "int_9" was not found`))
	if mapped.TextCode != MessagingErrorIntegrationNotFound {
		t.Fatalf("expected integration code, got %q", mapped.TextCode)
	}
	if mapped.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected not found category, got %q", mapped.Category)
	}

	mapped = messagingErrorMapper(stderrors.New("telegram: too many requests, retry after 3s"))
	if mapped.TextCode != MessagingErrorRateLimited {
		t.Fatalf("expected rate limit code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", mapped.Code)
	}

	mapped = messagingErrorMapper(stderrors.New("core: send tenant_id is required"))
	if mapped.TextCode != MessagingErrorBadInput {
		t.Fatalf("expected bad input code, got %q", mapped.TextCode)
	}
}

func TestMessagingErrorMapper_CompletesRichErrorEnvelopes(t *testing.T) {
	raw := goerrors.New("secret backend unreachable", goerrors.CategoryOperation)
	mapped := messagingErrorMapper(raw)
	if mapped.TextCode != MessagingErrorDispatchFailed {
		t.Fatalf("expected operation default code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", mapped.Code)
	}

	tagged := goerrors.New("secret missing", goerrors.CategoryOperation).WithTextCode(MessagingErrorSecretUnavailable)
	if got := messagingErrorMapper(tagged); got.TextCode != MessagingErrorSecretUnavailable {
		t.Fatalf("explicit text codes must survive mapping, got %q", got.TextCode)
	}
}

func TestServiceMethods_MapErrorsToStableCodes(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.QueueOutbound(ctx, SendRequest{Channel: ChannelSlack, Message: OutboundMessage{Recipient: "C1"}})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != MessagingErrorBadInput {
		t.Fatalf("expected bad input text code, got %q", richErr.TextCode)
	}

	_, _, err = svc.ResolveAgent(ctx, "tenant_1", ChannelSlack, "")
	if err == nil {
		t.Fatalf("expected unavailable agent router error")
	}
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != MessagingErrorAgentNotFound {
		t.Fatalf("expected agent not found code, got %q", richErr.TextCode)
	}
}

func TestResolveIntegration_NotFoundEnvelope(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(
		Config{},
		WithIntegrationStore(newMemoryIntegrationStore()),
		WithSecretStore(newStaticSecretStore(nil)),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.ResolveIntegration(ctx, "int_404")
	if err == nil {
		t.Fatalf("expected not found error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != MessagingErrorIntegrationNotFound {
		t.Fatalf("expected integration code, got %q", richErr.TextCode)
	}
	if richErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", richErr.Code)
	}
	if richErr.Metadata["integration_id"] != "int_404" {
		t.Fatalf("expected metadata with the id, got %+v", richErr.Metadata)
	}
}
