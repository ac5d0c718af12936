package console

import (
	"context"
	"errors"
	"strings"

	"github.com/duckmesh/querychat/internal/chat"
	"github.com/duckmesh/querychat/internal/history"
	"github.com/duckmesh/querychat/internal/schema"
)

type Asker interface {
	Ask(ctx context.Context, session *chat.Session, question string) (chat.Exchange, error)
	SelectDataset(ctx context.Context, session *chat.Session, dataset string) (schema.Snapshot, error)
	Snapshot(ctx context.Context, session *chat.Session) (schema.Snapshot, error)
}

type HistoryLister interface {
	List(ctx context.Context, filter history.ListFilter) ([]history.Entry, error)
}

type REPL struct {
	Chat     Asker
	Datasets []string
	History  HistoryLister
	Prompter Prompter
	Renderer *Renderer
}

// Run reads questions until the user quits or ctx is done. A failed turn is
// reported and the loop continues.
func (r *REPL) Run(ctx context.Context, session *chat.Session) error {
	r.Renderer.Welcome(session)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := r.Prompter.Input(session.Dataset() + ">")
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			quit, err := r.command(ctx, session, line)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
			continue
		}

		exchange, err := r.Chat.Ask(ctx, session, line)
		if err != nil {
			r.Renderer.Error(err)
			continue
		}
		r.Renderer.Exchange(exchange)
	}
}

func (r *REPL) command(ctx context.Context, session *chat.Session, line string) (bool, error) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case ":quit", ":exit", ":q":
		return true, nil
	case ":help":
		r.Renderer.Help()
	case ":sql":
		sql, ok := session.Conversation().LastSQL()
		if !ok {
			r.Renderer.Info("No SQL has been run in this session.")
			break
		}
		r.Renderer.SQL(sql)
	case ":history":
		r.Renderer.Transcript(session.Conversation().All())
	case ":log":
		if r.History == nil {
			r.Renderer.Info("Query history is not enabled.")
			break
		}
		entries, err := r.History.List(ctx, history.ListFilter{SessionID: session.ID})
		if err != nil {
			r.Renderer.Error(err)
			break
		}
		r.Renderer.History(entries)
	case ":schema":
		snapshot, err := r.Chat.Snapshot(ctx, session)
		if err != nil {
			r.Renderer.Error(err)
			break
		}
		r.Renderer.Schema(snapshot)
	case ":dataset":
		dataset := ""
		if len(fields) > 1 {
			dataset = fields[1]
		} else {
			choice, err := r.Prompter.Select("Dataset", r.Datasets, session.Dataset())
			if errors.Is(err, ErrQuit) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			dataset = choice
		}
		snapshot, err := r.Chat.SelectDataset(ctx, session, dataset)
		if err != nil {
			r.Renderer.Error(err)
			break
		}
		r.Renderer.Schema(snapshot)
	default:
		r.Renderer.Info("Unknown command " + fields[0] + ". Try :help.")
	}
	return false, nil
}
