package moderation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-mod/internal/budget"
	"github.com/discord-voice-mod/internal/history"
	"github.com/discord-voice-mod/internal/logging"
	"github.com/discord-voice-mod/internal/metrics"
	"github.com/discord-voice-mod/internal/transcript"
)

// ReportClassifier abstracts the chat-completions call for testing.
type ReportClassifier interface {
	Classify(ctx context.Context, model, systemPrompt, userPrompt string) (*Report, error)
}

// Sink posts moderation embeds to the guild's mod log channel. Failures are
// logged by implementations and never propagate into the pipeline.
type Sink interface {
	PostViolation(ctx context.Context, channelID string, v ViolationLog) error
	PostNotice(ctx context.Context, channelID, title, description string) error
}

// ViolationLog is the material for one flagged-violation embed.
type ViolationLog struct {
	UserID     string
	Rule       string
	Reason     string
	Applied    []string
	AIDecision []string
	Outcomes   []string
	// History is the user's recent record, rendered on debug embeds only.
	History string
	Debug   bool
}

// PipelineOptions is the per-cycle snapshot of guild settings plus the
// shared dependencies the pipeline dispatches through.
type PipelineOptions struct {
	GuildID   string
	ChannelID string

	Rules          string
	TranscriptOnly bool
	HighAccuracy   bool
	Actions        []string
	Debug          bool
	LogChannelID   string

	DefaultModel      string
	HighAccuracyModel string

	Classifier ReportClassifier
	Ledger     budget.Ledger
	Recorder   metrics.Recorder
	Executor   ActionExecutor
	Sink       Sink
	History    *history.Cache
	Formatter  *transcript.Formatter
	// Resolver verifies that a flagged user is a resolvable guild member.
	// Violations against users the resolver does not know are dropped,
	// never guessed. Nil skips the check.
	Resolver transcript.Resolver
}

// Pipeline classifies transcript batches for one cycle. The dedupe set is
// cycle-wide: a (speaker, rule, reason) triple acted on in one batch is
// silently dropped if the classifier reports it again later in the cycle.
type Pipeline struct {
	opts PipelineOptions

	mu         sync.Mutex
	processed  map[violationKey]struct{}
	utterances int
}

type violationKey struct {
	userID string
	rule   string
	reason string
}

func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.Recorder == nil {
		opts.Recorder = metrics.Discard{}
	}
	return &Pipeline{
		opts:      opts,
		processed: make(map[violationKey]struct{}),
	}
}

// Process runs one transcript batch through the gates and, when the
// classifier flags violations, applies the resulting actions. Every batch
// records exactly one metrics row; the ledger is incremented only for
// batches that actually reached the classifier.
func (p *Pipeline) Process(ctx context.Context, batch []transcript.Utterance) {
	if len(batch) == 0 {
		return
	}
	p.mu.Lock()
	p.utterances += len(batch)
	total := p.utterances
	p.mu.Unlock()

	started := time.Now()
	block := p.opts.Formatter.BuildBlock(ctx, batch)
	if strings.TrimSpace(block) == "" {
		return
	}

	// Voice scans are exempt from prior-violation context so the
	// classifier judges each transcript on its own; the history cache is
	// still written for the surfaces that do consult it.
	historyBlob := "Violation history:\nNot provided by policy; do not consider prior violations.\n\n"
	model := PickModel(p.opts.HighAccuracy, p.opts.DefaultModel, p.opts.HighAccuracyModel)
	tokens := BaseSystemTokens +
		EstimateTokens(p.opts.Rules) +
		EstimateTokens(historyBlob) +
		EstimateTokens(block)

	record := func(status Status, cost float64, violations int, errDetail string) {
		scan := metrics.Scan{
			GuildID:     p.opts.GuildID,
			ChannelID:   p.opts.ChannelID,
			Status:      string(status),
			Utterances:  total,
			Tokens:      int64(tokens),
			CostUSD:     cost,
			DurationMS:  time.Since(started).Milliseconds(),
			Violations:  violations,
			ErrorDetail: errDetail,
		}
		if err := p.opts.Recorder.RecordScan(ctx, scan); err != nil {
			logging.Warnw("failed to record scan metrics",
				"guild_id", p.opts.GuildID, "status", status, "err", err)
		}
	}

	if p.opts.TranscriptOnly {
		record(StatusTranscriptOnly, 0, 0, "")
		return
	}
	if strings.TrimSpace(p.opts.Rules) == "" {
		record(StatusNoRules, 0, 0, "")
		return
	}

	maxTokens := int(float64(ModelLimit(model)) * MaxContextUsageFraction)
	if tokens >= maxTokens {
		logging.Warnw("transcript batch exceeds context budget",
			"guild_id", p.opts.GuildID, "tokens", tokens, "max_tokens", maxTokens, "model", model)
		record(StatusTooLarge, 0, 0, "")
		return
	}

	requestCost := budget.RoundCost(RequestCost(model, tokens))
	usage, err := p.opts.Ledger.Get(ctx, p.opts.GuildID)
	if err != nil {
		logging.Errorw("failed to read budget", "guild_id", p.opts.GuildID, "err", err)
		record(StatusException, 0, 0, err.Error())
		return
	}
	if !usage.Allows(requestCost) {
		record(StatusBudget, requestCost, 0, "")
		p.debugNotice(ctx, "VC Moderation Budget Reached",
			"Skipping analysis for this cycle due to budget limit.")
		return
	}

	userPrompt := BuildUserPrompt(p.opts.Rules, historyBlob, block)
	report, err := p.opts.Classifier.Classify(ctx, model, SystemPrompt, userPrompt)
	if err != nil {
		logging.Errorw("classification failed",
			"guild_id", p.opts.GuildID, "model", model, "err", err)
		record(StatusException, 0, 0, err.Error())
		return
	}

	if _, err := p.opts.Ledger.Increment(ctx, p.opts.GuildID, int64(tokens), requestCost); err != nil {
		logging.Errorw("failed to record budget spend", "guild_id", p.opts.GuildID, "err", err)
	}

	violations := 0
	if report != nil {
		violations = len(report.Violations)
	}
	record(StatusOK, requestCost, violations, "")

	if report == nil || len(report.Violations) == 0 {
		p.debugNotice(ctx, "Voice Moderation Scan (Debug)",
			"No violations were found in the latest scan.")
		return
	}
	p.applyViolations(ctx, report.Violations)
}

type aggregated struct {
	actions map[string]struct{}
	reasons []string
	rules   []string
}

func (p *Pipeline) applyViolations(ctx context.Context, violations []ViolationEvent) {
	byUser := make(map[string]*aggregated)
	var order []string

	p.mu.Lock()
	for _, v := range violations {
		uid := strings.TrimSpace(v.UserID)
		rule := strings.TrimSpace(v.Rule)
		reason := strings.TrimSpace(v.Reason)
		if uid == "" || rule == "" || len(v.Actions) == 0 {
			continue
		}
		key := violationKey{userID: uid, rule: rule, reason: reason}
		if _, done := p.processed[key]; done {
			continue
		}
		p.processed[key] = struct{}{}

		agg := byUser[uid]
		if agg == nil {
			agg = &aggregated{actions: make(map[string]struct{})}
			byUser[uid] = agg
			order = append(order, uid)
		}
		for _, a := range v.Actions {
			agg.actions[a] = struct{}{}
		}
		if reason != "" {
			agg.reasons = append(agg.reasons, reason)
		}
		agg.rules = append(agg.rules, rule)
	}
	p.mu.Unlock()

	for _, uid := range order {
		if p.opts.Resolver != nil {
			if _, ok := p.opts.Resolver.DisplayName(ctx, p.opts.GuildID, uid); !ok {
				logging.Warnw("dropping violation for unresolvable user",
					"guild_id", p.opts.GuildID, "user_id", uid)
				continue
			}
		}
		agg := byUser[uid]
		aiActions := make([]string, 0, len(agg.actions))
		for a := range agg.actions {
			aiActions = append(aiActions, a)
		}
		sort.Strings(aiActions)

		configured := ResolveConfiguredActions(p.opts.Actions, aiActions)
		reason, rule := SummarizeReasonRule(agg.reasons, agg.rules)

		outcomes := make([]string, 0, len(configured))
		for _, action := range configured {
			outcome, err := p.opts.Executor.Apply(ctx, p.opts.GuildID, uid, action, reason)
			if err != nil {
				logging.Warnw("disciplinary action failed",
					"guild_id", p.opts.GuildID, "user_id", uid, "action", action, "err", err)
				continue
			}
			if outcome != "" {
				outcomes = append(outcomes, outcome)
			}
		}

		if p.opts.History != nil {
			p.opts.History.Record(uid, rule, configured)
		}

		logging.Infow("violation actioned",
			"guild_id", p.opts.GuildID, "user_id", uid, "rule", rule, "actions", strings.Join(configured, ","))

		if p.opts.Sink != nil && p.opts.LogChannelID != "" {
			v := ViolationLog{
				UserID:     uid,
				Rule:       rule,
				Reason:     reason,
				Applied:    configured,
				AIDecision: aiActions,
				Outcomes:   outcomes,
				Debug:      p.opts.Debug,
			}
			if p.opts.Debug && p.opts.History != nil {
				v.History = p.opts.History.BuildBlob([]string{uid})
			}
			if err := p.opts.Sink.PostViolation(ctx, p.opts.LogChannelID, v); err != nil {
				logging.Warnw("failed to post violation log",
					"guild_id", p.opts.GuildID, "channel_id", p.opts.LogChannelID, "err", err)
			}
		}
	}
}

func (p *Pipeline) debugNotice(ctx context.Context, title, description string) {
	if !p.opts.Debug || p.opts.Sink == nil || p.opts.LogChannelID == "" {
		return
	}
	if err := p.opts.Sink.PostNotice(ctx, p.opts.LogChannelID, title, description); err != nil {
		logging.Warnw("failed to post debug notice",
			"guild_id", p.opts.GuildID, "channel_id", p.opts.LogChannelID, "err", err)
	}
}
