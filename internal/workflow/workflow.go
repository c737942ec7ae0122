package workflow

import (
	"context"
	"fmt"
	"slices"

	"github.com/pgagents/pgagents/internal/agent"
)

// Participant is one executor of a workflow; *agent.Agent satisfies it.
type Participant interface {
	Name() string
	Run(ctx context.Context, conversation []agent.Message) (agent.Result, error)
}

type Workflow interface {
	Name() string
	Run(ctx context.Context, conversation []agent.Message) *Stream
}

const (
	SequentialName = "sequential"
	RouteName      = "route"
)

// Sequential hands the growing conversation from one participant to the
// next.
type Sequential struct {
	participants []Participant
}

func NewSequential(participants ...Participant) *Sequential {
	return &Sequential{participants: participants}
}

func (s *Sequential) Name() string {
	return SequentialName
}

func (s *Sequential) Run(ctx context.Context, conversation []agent.Message) *Stream {
	return startStream(ctx, func(ctx context.Context, emit emitFunc) error {
		if len(s.participants) == 0 {
			return fmt.Errorf("sequential workflow has no participants")
		}
		conv := slices.Clone(conversation)
		for _, participant := range s.participants {
			next, _, err := invoke(ctx, emit, participant, conv)
			if err != nil {
				return err
			}
			conv = next
		}
		return emit(Event{Kind: EventOutput, Messages: conv})
	})
}

// Router lets a support agent pick one specialist through its handoff tools.
// The support agent must have been built with agent.WithHandoffs for the
// specialists' names. Without a handoff its own reply is final.
type Router struct {
	router      Participant
	specialists map[string]Participant
}

func NewRouter(router Participant, specialists ...Participant) *Router {
	byName := make(map[string]Participant, len(specialists))
	for _, specialist := range specialists {
		byName[specialist.Name()] = specialist
	}
	return &Router{router: router, specialists: byName}
}

func (r *Router) Name() string {
	return RouteName
}

func (r *Router) Run(ctx context.Context, conversation []agent.Message) *Stream {
	return startStream(ctx, func(ctx context.Context, emit emitFunc) error {
		if r.router == nil {
			return fmt.Errorf("route workflow has no router")
		}
		conv, handoff, err := invoke(ctx, emit, r.router, slices.Clone(conversation))
		if err != nil {
			return err
		}
		if handoff != "" {
			specialist, ok := r.specialists[handoff]
			if !ok {
				return fmt.Errorf("%s handed off to unknown agent %q", r.router.Name(), handoff)
			}
			conv, _, err = invoke(ctx, emit, specialist, conv)
			if err != nil {
				return err
			}
		}
		return emit(Event{Kind: EventOutput, Messages: conv})
	})
}

func invoke(ctx context.Context, emit emitFunc, participant Participant, conv []agent.Message) ([]agent.Message, string, error) {
	if err := emit(Event{Kind: EventExecutorInvoked, Executor: participant.Name(), Messages: slices.Clone(conv)}); err != nil {
		return nil, "", err
	}
	result, err := participant.Run(ctx, conv)
	if err != nil {
		return nil, "", err
	}
	conv = append(conv, result.Messages...)
	completed := ExecutorCompleted{Executor: participant.Name(), Usage: result.Usage, Handoff: result.Handoff}
	if err := emit(Event{Kind: EventOther, Executor: participant.Name(), Payload: completed}); err != nil {
		return nil, "", err
	}
	return conv, result.Handoff, nil
}
