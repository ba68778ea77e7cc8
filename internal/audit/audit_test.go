package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/pharmatrace/internal/model"
)

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Record(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestLogSinkWritesFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	e := NewEvent("0xabc", model.RoleRetailer, []model.Role{model.RoleManufacturer, model.RoleRegulator},
		"POST /v1/batches", OutcomeDenied, "role not permitted")
	require.NoError(t, sink.Record(context.Background(), e))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "0xabc", fields["subject"])
	assert.Equal(t, "Manufacturer,Regulator", fields["required_roles"])
	assert.Equal(t, "denied", fields["outcome"])
	assert.NotEmpty(t, e.ID)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("amqp closed")}
	m := MultiSink{ok, nil, bad}

	err := m.Record(context.Background(), NewEvent("0xabc", model.RoleRetailer, nil, "x", OutcomeDenied, "r"))
	assert.ErrorContains(t, err, "amqp closed")
	assert.Len(t, ok.events, 1)
	assert.Len(t, bad.events, 1)
}
