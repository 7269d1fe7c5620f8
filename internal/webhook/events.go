package webhook

import (
	"fmt"
	"net/http"

	"github.com/google/go-github/v68/github"
)

// GitHub delivery headers.
const (
	SignatureHeader = github.SHA256SignatureHeader
	EventHeader     = github.EventTypeHeader
	DeliveryHeader  = github.DeliveryIDHeader
	HookIDHeader    = "X-GitHub-Hook-ID"
)

// EventPing is sent by GitHub when a hook is created.
const EventPing = "ping"

// Delivery is the metadata GitHub sends alongside every webhook body.
type Delivery struct {
	ID     string
	Event  string
	HookID string
}

// DeliveryFromRequest reads delivery metadata from r's headers.
func DeliveryFromRequest(r *http.Request) Delivery {
	return Delivery{
		ID:     r.Header.Get(DeliveryHeader),
		Event:  r.Header.Get(EventHeader),
		HookID: r.Header.Get(HookIDHeader),
	}
}

// ParseEvent decodes a verified payload into the go-github struct for
// eventType, e.g. *github.PushEvent for "push".
func ParseEvent(eventType string, p *Payload) (any, error) {
	if p == nil {
		return nil, &DecodeError{Err: fmt.Errorf("payload is nil")}
	}
	event, err := github.ParseWebHook(eventType, p.body)
	if err != nil {
		return nil, newDecodeError(err)
	}
	return event, nil
}

// Action returns the top-level "action" field of the payload, or "" when the
// event has none (push, ping).
func Action(p *Payload) string {
	v, err := Decode[struct {
		Action string `json:"action"`
	}](p)
	if err != nil {
		return ""
	}
	return v.Action
}

// Summarize renders a one-line description of a parsed event.
func Summarize(event any) string {
	switch e := event.(type) {
	case *github.PingEvent:
		return fmt.Sprintf("ping hook=%d zen=%q", e.GetHookID(), e.GetZen())
	case *github.PushEvent:
		return fmt.Sprintf("push %s %s head=%s", e.GetRepo().GetFullName(), e.GetRef(), e.GetHeadCommit().GetID())
	case *github.PullRequestEvent:
		return fmt.Sprintf("pull_request %s #%d %s", e.GetRepo().GetFullName(), e.GetNumber(), e.GetAction())
	case *github.IssuesEvent:
		return fmt.Sprintf("issues %s #%d %s", e.GetRepo().GetFullName(), e.GetIssue().GetNumber(), e.GetAction())
	case *github.ReleaseEvent:
		return fmt.Sprintf("release %s %s %s", e.GetRepo().GetFullName(), e.GetRelease().GetTagName(), e.GetAction())
	default:
		return fmt.Sprintf("%T", event)
	}
}
