package action

import (
	"context"
	"strconv"
	"strings"

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
	"github.com/okian/mafiabot/pkg/metrics"
)

// keywords maps the first token of a command line to its kind. The forum
// plays in Spanish; English aliases are accepted too.
var keywords = map[string]Kind{ //nolint:gochecknoglobals // fixed vocabulary
	"voto":       Vote,
	"vote":       Vote,
	"desvoto":    Unvote,
	"unvote":     Unvote,
	"reemplazo":  ReplacePlayer,
	"replace":    ReplacePlayer,
	"recuento":   RequestCount,
	"count":      RequestCount,
	"historial":  VoteHistoryQuery,
	"history":    VoteHistoryQuery,
	"votantes":   VotersQuery,
	"voters":     VotersQuery,
	"congelar":   Freeze,
	"freeze":     Freeze,
	"lylo":       LockUnvotes,
	"modkill":    Modkill,
	"asesinato":  Kill,
	"kill":       Kill,
	"disparo":    Shoot,
	"disparar":   Shoot,
	"shoot":      Shoot,
	"revivir":    Revive,
	"revive":     Revive,
	"revelar":    RevealMayor,
	"reveal":     RevealMayor,
	"ganador":    Winner,
	"winner":     Winner,
}

var aliasMarkers = map[string]bool{"como": true, "as": true}           //nolint:gochecknoglobals // fixed vocabulary
var noLynchWords = map[string]bool{"linchamiento": true, "lynch": true} //nolint:gochecknoglobals // fixed vocabulary

// Parser converts raw command text into actions.
type Parser struct {
	logger logger.Logger
}

// NewParser creates a parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrGet(p.logger)
	return p
}

// ParsePost parses every command line of a post, dropping unknown ones.
func (p *Parser) ParsePost(ctx context.Context, post model.Post) []Action {
	out := make([]Action, 0, len(post.Commands))
	for _, line := range post.Commands {
		a := p.Parse(ctx, post.ID, post.Time, post.Author, line)
		if a.Kind == Unknown {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Parse turns one command line into an Action. Text that is not a command
// yields an Unknown action; it never fails.
func (p *Parser) Parse(ctx context.Context, postID int, postTime int64, author, raw string) Action {
	a := Action{
		Kind:     Unknown,
		Author:   model.Key(author),
		PostID:   postID,
		PostTime: postTime,
	}

	tokens := tokenize(raw)
	if len(tokens) == 0 {
		return a
	}

	head := strings.TrimRight(tokens[0], ",:")
	kind, ok := keywords[head]
	if !ok {
		p.logger.Warn(ctx, "unknown action", append(logger.Post(a.Author, postID), logger.String("command", head))...)
		metrics.RecordActionRejected("unknown_command")
		return a
	}

	a.Kind = kind
	if !p.extract(ctx, &a, tokens) {
		a.Kind = Unknown
		metrics.RecordActionRejected("malformed_command")
		return a
	}
	metrics.RecordActionParsed(kind.String())
	return a
}

// extract fills in the per-kind arguments. It returns false when the line
// lacks an argument the kind cannot do without.
func (p *Parser) extract(ctx context.Context, a *Action, tokens []string) bool {
	last := tokens[len(tokens)-1]
	hasArgs := len(tokens) > 1

	switch a.Kind {
	case Vote:
		return p.extractVote(ctx, a, tokens)

	case Unvote:
		a.Target = model.NoTarget
		if hasArgs {
			a.Target = last
		}

	case ReplacePlayer:
		if len(tokens) < 3 {
			p.logger.Warn(ctx, "replacement needs outgoing and incoming player", logger.Post(a.Author, a.PostID)...)
			return false
		}
		a.Outgoing = tokens[1]
		a.Target = last

	case RequestCount:
		if hasArgs {
			n, err := strconv.Atoi(strings.TrimLeft(last, "#"))
			if err != nil || n < 0 {
				p.logger.Warn(ctx, "cannot parse vote count request post",
					append(logger.Post(a.Author, a.PostID), logger.String("post_ref", last))...)
				n = 0
			}
			a.TargetPost = n
		}

	case Freeze:
		a.Target = model.Everyone
		if hasArgs {
			a.Target = last
		}

	case VoteHistoryQuery, VotersQuery, Modkill, Kill, Shoot, Revive:
		if !hasArgs {
			p.logger.Warn(ctx, "command without target",
				append(logger.Post(a.Author, a.PostID), logger.String("kind", a.Kind.String()))...)
			return false
		}
		a.Target = last

	case Winner:
		if hasArgs {
			a.Target = strings.Join(tokens[1:], " ")
		}

	case LockUnvotes, RevealMayor, Unknown:
	}
	return true
}

func (p *Parser) extractVote(ctx context.Context, a *Action, tokens []string) bool {
	end := len(tokens) - 1
	if len(tokens) >= 4 && aliasMarkers[tokens[end-1]] {
		a.Alias = tokens[end]
		end -= 2
	}
	if end < 1 {
		p.logger.Warn(ctx, "empty vote", logger.Post(a.Author, a.PostID)...)
		return false
	}

	if end >= 2 && tokens[end-1] == "no" && noLynchWords[tokens[end]] {
		a.Target = model.NoLynch
		return true
	}
	a.Target = tokens[end]
	return true
}

// tokenize lower-cases the line, drops trailing periods, splits on
// whitespace and strips parentheses around names.
func tokenize(raw string) []string {
	s := strings.TrimRight(strings.ToLower(strings.TrimSpace(raw)), ".")
	fields := strings.Fields(s)
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "()")
		if f == "" {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
