package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Cypherspark/sms-bridge/internal/core"
	"github.com/Cypherspark/sms-bridge/internal/metrics"
	"github.com/Cypherspark/sms-bridge/internal/permission"
)

// Gate is the permission surface the dispatcher needs.
type Gate interface {
	Check(ctx context.Context) bool
	Request(ctx context.Context) (bool, *permission.Pending)
}

// Reader reads the inbox.
type Reader interface {
	GetAllMessages(ctx context.Context) ([]core.MessageRecord, error)
}

type handlerFunc func(ctx context.Context, call MethodCall) Response

// Dispatcher routes method calls. It holds no per-call state.
type Dispatcher struct {
	gate     Gate
	reader   Reader
	log      *slog.Logger
	handlers map[string]handlerFunc
}

func NewDispatcher(gate Gate, reader Reader, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{gate: gate, reader: reader, log: log}
	d.handlers = map[string]handlerFunc{
		MethodCheckPermission:   d.checkPermission,
		MethodRequestPermission: d.requestPermission,
		MethodGetAllSms:         d.getAllSms,
	}
	return d
}

// Handle answers one call. It never panics and never returns a Go error;
// failures come back as typed error responses.
func (d *Dispatcher) Handle(ctx context.Context, call MethodCall) (resp Response) {
	start := time.Now()
	h, known := d.handlers[call.Method]
	label := call.Method
	if !known {
		label = "other"
	}

	defer func() {
		if r := recover(); r != nil {
			code := CodeInternal
			if call.Method == MethodGetAllSms {
				code = CodeReadError
			}
			d.log.Error("channel handler panicked", "method", call.Method, "id", call.ID, "panic", r)
			resp = Error(call.ID, code, fmt.Sprintf("internal error: %v", r), nil)
		}
		metrics.ChannelCalls.WithLabelValues(label, string(resp.Status)).Inc()
		metrics.ChannelDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
		if resp.Status == StatusError {
			metrics.ChannelErrors.WithLabelValues(resp.Code).Inc()
		}
	}()

	if !known {
		d.log.Debug("method not implemented", "method", call.Method, "id", call.ID)
		return NotImplemented(call.ID)
	}
	return h(ctx, call)
}

func (d *Dispatcher) checkPermission(ctx context.Context, call MethodCall) Response {
	return Success(call.ID, d.gate.Check(ctx))
}

func (d *Dispatcher) requestPermission(ctx context.Context, call MethodCall) Response {
	granted, _ := d.gate.Request(ctx)
	return Success(call.ID, granted)
}

func (d *Dispatcher) getAllSms(ctx context.Context, call MethodCall) Response {
	records, err := d.reader.GetAllMessages(ctx)
	switch {
	case errors.Is(err, core.ErrPermissionDenied):
		return Error(call.ID, CodePermissionDenied, "SMS permission not granted", nil)
	case err != nil:
		return Error(call.ID, CodeReadError, "Failed to read SMS: "+err.Error(), nil)
	}

	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, r.Map())
	}
	metrics.StoreRowsRead.Observe(float64(len(out)))
	d.log.Debug("returning sms messages", "count", len(out), "id", call.ID)
	return Success(call.ID, out)
}
