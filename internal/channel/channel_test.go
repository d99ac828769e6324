package channel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/notify-engine/internal/model"
)

type nopAdapter struct{ name string }

func (nopAdapter) Send(context.Context, Message) (string, error) { return "id", nil }
func (nopAdapter) ValidateRecipient(string) error                { return nil }

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, ClassTransient, Classify(base))
	assert.Equal(t, ClassTransient, Classify(Transient(base)))
	assert.Equal(t, ClassPermanent, Classify(Permanent(base)))
	assert.Equal(t, ClassPermanent, Classify(fmt.Errorf("send: %w", Permanent(base))))
	assert.Equal(t, ClassTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, ClassTransient, Classify(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))

	assert.NoError(t, Transient(nil))
	assert.NoError(t, Permanent(nil))
	assert.ErrorIs(t, Permanent(base), base)
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve(model.ChannelSMS)
	assert.ErrorIs(t, err, ErrNoBinding)

	require.NoError(t, r.Register(Binding{Channel: model.ChannelSMS, ProviderName: "a"}, nopAdapter{"a"}))
	require.NoError(t, r.Register(Binding{Channel: model.ChannelSMS, ProviderName: "b", IsDefault: true}, nopAdapter{"b"}))
	require.NoError(t, r.Register(Binding{Channel: model.ChannelEmail, ProviderName: "smtp"}, nopAdapter{"smtp"}))

	rt, err := r.Resolve(model.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, "b", rt.Binding.ProviderName)

	rt, err = r.Resolve(model.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, "smtp", rt.Binding.ProviderName)

	assert.Len(t, r.Bindings(), 3)
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(Binding{Channel: "pager"}, nopAdapter{}))
	assert.Error(t, r.Register(Binding{Channel: model.ChannelPush}, nil))
}
