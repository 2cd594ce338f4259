// Package dummy provides a scripted stand-in for the inference backend,
// used in tests and for running the bot without a llama server.
package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/llamagram/llamagram/internal/chat"
)

type action struct {
	kind string
	arg  string
}

// parseScript parses a comma-separated action list. Supported actions:
// "ok" (empty completion), "msg:<text>" (emit one fragment),
// "msgb64:<base64>" (emit a decoded fragment), "sleep:<ms>" (pause),
// "err:<text>" (abort the stream with an error).
func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch {
		case token == "ok":
			actions = append(actions, action{kind: "ok"})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		case strings.HasPrefix(token, "msgb64:"):
			actions = append(actions, action{kind: "msgb64", arg: strings.TrimPrefix(token, "msgb64:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

// Provider replays a scripted fragment stream for every completion.
type Provider struct {
	actions []action
}

// NewProvider creates a scripted provider. An empty script behaves like a
// model that returns an empty completion.
func NewProvider(script string) (*Provider, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &Provider{actions: actions}, nil
}

// Complete implements the completer contract by replaying the script.
func (p *Provider) Complete(ctx context.Context, _ []chat.Turn, onFragment func(string) error) error {
	for _, a := range p.actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch a.kind {
		case "ok":
			// No output.
		case "msg":
			if err := onFragment(a.arg); err != nil {
				return err
			}
		case "msgb64":
			decoded, err := base64.StdEncoding.DecodeString(a.arg)
			if err != nil {
				return fmt.Errorf("invalid msgb64 payload: %w", err)
			}
			if err := onFragment(string(decoded)); err != nil {
				return err
			}
		case "sleep":
			ms, err := strconv.Atoi(a.arg)
			if err != nil || ms < 0 {
				return fmt.Errorf("invalid sleep duration: %s", a.arg)
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		case "err":
			return fmt.Errorf("dummy model failure: %s", a.arg)
		}
	}
	return nil
}
