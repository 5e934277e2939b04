package tracing

import (
	"context"
	"errors"

	"github.com/smallbiznis/tracechain/internal/errs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractContext reads trace context and baggage from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// Locations, document references and actor ids never leave the process as span
// attributes.
var blockedKeys = map[attribute.Key]struct{}{
	"location":     {},
	"document_ref": {},
	"actor_id":     {},
	"latitude":     {},
	"longitude":    {},
}

// SafeAttributes drops attributes that may carry caller supplied content.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces err to its category so span events never embed payloads.
func SafeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errs.IsValidation(err):
		return errors.New("validation_error")
	case errs.IsAuthorization(err):
		return errors.New("authorization_error")
	case errs.IsNotFound(err):
		return errors.New("not_found")
	case errs.IsConflict(err):
		return errors.New("conflict")
	case errs.IsLedger(err):
		return errors.New("ledger_error")
	case errors.Is(err, errs.ErrSequencerBusy):
		return errs.ErrSequencerBusy
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	default:
		return errors.New("internal_error")
	}
}
