package mailtool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aiwhisperer/core/pkg/mailbox"
	"github.com/aiwhisperer/core/pkg/tool/mailtool"
)

type fakeContext struct {
	context.Context
	agent string
}

func (c fakeContext) AgentName() string      { return c.agent }
func (c fakeContext) FunctionCallID() string { return "call-1" }

type fakeSleeper struct {
	agent    string
	duration time.Duration
}

func (f *fakeSleeper) SleepAgent(agentName string, duration time.Duration) error {
	f.agent = agentName
	f.duration = duration
	return nil
}

func TestCheckMailReturnsUnreadAndMarksRead(t *testing.T) {
	mb := mailbox.New()
	mb.Send(mailbox.Mail{ToAgent: "researcher", FromAgent: "planner", Subject: "go"})

	tl := mailtool.NewCheckMail(mb)
	ctx := fakeContext{Context: context.Background(), agent: "researcher"}

	out, err := tl.Call(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out["count"])
	require.False(t, out["has_more_mail"].(bool))

	out2, err := tl.Call(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 0, out2["count"])
}

func TestAgentSleepDelegatesToSleeper(t *testing.T) {
	sleeper := &fakeSleeper{}
	tl := mailtool.NewAgentSleep(sleeper)
	ctx := fakeContext{Context: context.Background(), agent: "researcher"}

	out, err := tl.Call(ctx, map[string]any{"duration_seconds": float64(30)})
	require.NoError(t, err)
	require.Equal(t, true, out["sleeping"])
	require.Equal(t, "researcher", sleeper.agent)
	require.Equal(t, 30*time.Second, sleeper.duration)
}

func TestAgentSleepRejectsNegativeDuration(t *testing.T) {
	tl := mailtool.NewAgentSleep(&fakeSleeper{})
	ctx := fakeContext{Context: context.Background(), agent: "researcher"}

	_, err := tl.Call(ctx, map[string]any{"duration_seconds": float64(-1)})
	require.Error(t, err)
}
