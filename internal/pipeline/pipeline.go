// Package pipeline implements the per-message dataflow described in §5:
// C13/adapter → (auth) → C9 pending-confirmation check → C8 → C7 → either
// skill execution or C5→C4 → reply. It also enforces the ordering
// guarantees: FIFO per chat, at most one message in flight per chat, and a
// bounded pool of concurrently processing messages across all chats.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/local/steward/internal/actions"
	"github.com/local/steward/internal/ai"
	"github.com/local/steward/internal/chat"
	"github.com/local/steward/internal/contextengine"
	"github.com/local/steward/internal/nlp"
	"github.com/local/steward/internal/outcomes"
	"github.com/local/steward/internal/providers"
	"github.com/local/steward/internal/skills"
	"github.com/local/steward/internal/status"
)

const (
	defaultWorkers = 16
	messageTimeout = 120 * time.Second
	chatQueueSize  = 32
)

// MarkdownCapable reports whether a given channel renders markdown, so the
// pipeline can build the right status.Formatter per outbound reply.
var MarkdownCapable = map[string]bool{
	"telegram": true,
	"discord":  true,
	"whatsapp": false,
	"webhook":  false,
	"voice":    false,
}

// Pipeline wires every upstream component into the single dataflow every
// inbound message runs through.
type Pipeline struct {
	hub        *chat.Hub
	authorized map[string]bool
	actionsC   *actions.Controller
	pre        *nlp.Preprocessor
	skillsReg  *skills.Registry
	context    *contextengine.Engine
	router     *ai.Router
	tracker    *outcomes.Tracker

	workers chan struct{}

	mu     sync.Mutex
	queues map[string]chan chat.Inbound
}

// New constructs a Pipeline. authorizedUsers empty means allow all senders.
func New(hub *chat.Hub, authorizedUsers []string, actionsC *actions.Controller, pre *nlp.Preprocessor, skillsReg *skills.Registry, ctxEngine *contextengine.Engine, router *ai.Router, tracker *outcomes.Tracker, workers int) *Pipeline {
	if workers <= 0 {
		workers = defaultWorkers
	}
	allowed := make(map[string]bool, len(authorizedUsers))
	for _, u := range authorizedUsers {
		allowed[u] = true
	}
	return &Pipeline{
		hub:        hub,
		authorized: allowed,
		actionsC:   actionsC,
		pre:        pre,
		skillsReg:  skillsReg,
		context:    ctxEngine,
		router:     router,
		tracker:    tracker,
		workers:    make(chan struct{}, workers),
		queues:     make(map[string]chan chat.Inbound),
	}
}

// Run reads hub.In until ctx is done, dispatching each message to its
// chat's FIFO queue.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-p.hub.In:
			if !ok {
				return
			}
			p.enqueue(ctx, in)
		}
	}
}

func (p *Pipeline) enqueue(ctx context.Context, in chat.Inbound) {
	key := in.Channel + ":" + in.ChatID

	p.mu.Lock()
	q, exists := p.queues[key]
	if !exists {
		q = make(chan chat.Inbound, chatQueueSize)
		p.queues[key] = q
		go p.drainChat(ctx, q)
	}
	p.mu.Unlock()

	select {
	case q <- in:
	default:
		log.Printf("pipeline: chat queue %s full, dropping message %s", key, in.ID)
	}
}

// drainChat processes one chat's queue strictly in FIFO order. Acquiring
// the global worker slot inside the loop (rather than per-chat) bounds the
// number of chats processing concurrently across the whole service while
// never letting two messages from the same chat run at once.
func (p *Pipeline) drainChat(ctx context.Context, q chan chat.Inbound) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-q:
			select {
			case p.workers <- struct{}{}:
			case <-ctx.Done():
				return
			}
			p.process(ctx, in)
			<-p.workers
		}
	}
}

func (p *Pipeline) process(parent context.Context, in chat.Inbound) {
	ctx, cancel := context.WithTimeout(parent, messageTimeout)
	defer cancel()

	f := status.New(MarkdownCapable[in.Channel])

	if len(p.authorized) > 0 && !p.authorized[in.SenderID] {
		log.Printf("pipeline: dropped message from unauthorized sender %s", in.SenderID)
		return
	}

	if p.handlePendingConfirmation(ctx, in, f) {
		return
	}

	rewritten := p.pre.Rewrite(in.Content, nil)

	resp, err := p.skillsReg.Dispatch(ctx, rewritten, skills.Context{UserID: in.SenderID, ChatID: in.ChatID})
	if err != nil {
		log.Printf("pipeline: skill dispatch error: %v", err)
		p.reply(in, f.Failed(err.Error(), status.Meta{}))
		return
	}
	if resp.OK || resp.Message != "" {
		p.handleSkillResponse(ctx, in, resp, f)
		return
	}

	p.fallbackToAI(ctx, in, rewritten, f)
}

// handlePendingConfirmation implements the C9 check: a bare "yes"/"no"
// resolves the user's pending action; any other message while PENDING gets
// a reminder and does not proceed further down the pipeline.
func (p *Pipeline) handlePendingConfirmation(ctx context.Context, in chat.Inbound, f status.Formatter) bool {
	pending, err := p.actionsC.CurrentPending(ctx, in.SenderID)
	if err != nil {
		log.Printf("pipeline: current pending lookup failed: %v", err)
		return false
	}
	if pending == nil {
		return false
	}

	switch normalizeYesNo(in.Content) {
	case "yes":
		p.confirmAndExecute(ctx, in, f)
		return true
	case "no":
		if err := p.actionsC.Reject(ctx, in.SenderID); err != nil {
			log.Printf("pipeline: reject failed: %v", err)
		}
		p.reply(in, f.Info("Cancelled.", status.Meta{}))
		return true
	default:
		p.reply(in, f.ApprovalNeeded(fmt.Sprintf("Still waiting on %s. Reply \"yes\" or \"no\".", pending.Kind), status.Meta{}))
		return true
	}
}

func normalizeYesNo(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "confirm":
		return "yes"
	case "no", "n", "cancel", "reject":
		return "no"
	default:
		return ""
	}
}

func (p *Pipeline) confirmAndExecute(ctx context.Context, in chat.Inbound, f status.Formatter) {
	pa, err := p.actionsC.Confirm(ctx, in.SenderID)
	if err != nil {
		p.reply(in, f.Failed(err.Error(), status.Meta{}))
		return
	}

	p.reply(in, f.Working("Starting: "+pa.Kind, status.Meta{}))

	if p.tracker != nil {
		if err := p.tracker.StartAction(ctx, pa.ID, pa.Kind, pa.Params, nil); err != nil {
			log.Printf("pipeline: start outcome %s failed: %v", pa.ID, err)
		}
	}

	runner, ok := p.actionsC.RunnerFor(pa.Kind)
	var result string
	var runErr error
	if ok {
		result, runErr = runner(ctx, pa.Params)
	} else {
		runErr = fmt.Errorf("no runner registered for action kind %q", pa.Kind)
	}

	success := runErr == nil
	if err := p.actionsC.Complete(ctx, pa.ID, success); err != nil {
		log.Printf("pipeline: complete action %s failed: %v", pa.ID, err)
	}
	if p.tracker != nil {
		outcomeResult := outcomes.ResultSuccess
		if !success {
			outcomeResult = outcomes.ResultFailed
		}
		if err := p.tracker.CompleteAction(ctx, pa.ID, outcomeResult, nil); err != nil {
			log.Printf("pipeline: complete outcome %s failed: %v", pa.ID, err)
		}
	}

	if success {
		p.reply(in, f.Complete(result, status.Meta{}))
	} else {
		p.reply(in, f.Failed(runErr.Error(), status.Meta{}))
	}
}

func (p *Pipeline) handleSkillResponse(ctx context.Context, in chat.Inbound, resp skills.Response, f status.Formatter) {
	kind, _ := resp.Data["kind"].(string)
	if kind != "" {
		if _, err := p.actionsC.Propose(ctx, in.SenderID, kind, fmt.Sprint(resp.Data["target"]), false); err != nil {
			if err == actions.ErrBusy {
				p.reply(in, f.ApprovalNeeded("You already have a pending action. Reply \"yes\" or \"no\" first.", status.Meta{}))
				return
			}
			p.reply(in, f.Failed(err.Error(), status.Meta{}))
			return
		}
		p.reply(in, f.ApprovalNeeded(resp.Message+"\nReply \"yes\" to confirm or \"no\" to cancel.", status.Meta{}))
		return
	}
	p.reply(in, resp.Message)
}

func (p *Pipeline) fallbackToAI(ctx context.Context, in chat.Inbound, query string, f status.Formatter) {
	var richContext string
	if p.context != nil {
		built, err := p.context.Build(ctx, in.SenderID, in.ChatID, in.Channel)
		if err == nil {
			richContext = contextengine.FormatForSystemPrompt(built)
		}
	}

	result, err := p.router.Run(ctx, query, providers.TaskClass(""), richContext)
	if err != nil {
		p.reply(in, f.Failed("I couldn't reach an AI provider right now.", status.Meta{}))
		return
	}
	p.reply(in, result.Text)
}

func (p *Pipeline) reply(in chat.Inbound, content string) {
	p.hub.Out <- chat.Outbound{Channel: in.Channel, ChatID: in.ChatID, Content: content}
}
