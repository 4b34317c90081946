package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/questionsync/pkg/state"
)

// Recorder mirrors every tree the store publishes into an automerge document, one commit per transition with the
// action kind as the commit message. The saved document can be loaded later to replay how the state evolved.
type Recorder struct {
	mu  sync.Mutex
	doc *automerge.Doc
}

func NewRecorder(actorID string) (*Recorder, error) {
	doc := automerge.New()
	if actorID != "" {
		if err := doc.SetActorID(actorID); err != nil {
			return nil, fmt.Errorf("failed to set actor id: %w", err)
		}
	}
	if err := doc.Path("transitions").Set(automerge.NewCounter(0)); err != nil {
		return nil, fmt.Errorf("failed to seed doc: %w", err)
	}
	if _, err := doc.Commit("seed", automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, fmt.Errorf("failed to commit seed: %w", err)
	}
	return &Recorder{doc: doc}, nil
}

// Attach records every transition of store until the returned func is called.
func (r *Recorder) Attach(store *state.Store) func() {
	return store.Subscribe(func(action state.Action, tree *state.StateTree) {
		if err := r.Record(action, tree); err != nil {
			slog.Error("failed to record transition", "action", action.Kind, "err", err)
		}
	})
}

func (r *Recorder) Record(action state.Action, tree *state.StateTree) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slices := map[string]any{
		"tags":           tree.Tags,
		"questions":      tree.Questions,
		"questionThread": tree.QuestionThread,
	}
	for key, value := range slices {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		if err := r.doc.Path(key).Set(string(raw)); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	if err := r.doc.Path("refreshNeeded").Set(tree.RefreshNeeded); err != nil {
		return fmt.Errorf("failed to set refreshNeeded: %w", err)
	}
	if err := r.doc.Path("transitions").Counter().Inc(1); err != nil {
		return fmt.Errorf("failed to increment transitions: %w", err)
	}
	if _, err := r.doc.Commit(action.Kind.String(), automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *Recorder) Transitions() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Path("transitions").Counter().Get()
}

func (r *Recorder) Save() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Save()
}

// SaveToDir writes the journal to a new file in dir and returns its path.
func (r *Recorder) SaveToDir(dir string) (string, error) {
	r.mu.Lock()
	actor := r.doc.ActorID()
	r.mu.Unlock()
	path := filepath.Join(dir, fmt.Sprintf("%s-%d.journal", actor, time.Now().UnixNano()))
	if err := os.WriteFile(path, r.Save(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write journal: %w", err)
	}
	return path, nil
}

// Entry is one recorded transition.
type Entry struct {
	Hash    string
	Actor   string
	Seq     uint64
	Action  string
	Time    time.Time
	Tree    *state.StateTree
	Changes int64
}

// History loads a saved journal and returns the tree as it was after every recorded transition, oldest first.
func History(raw []byte) ([]Entry, error) {
	doc, err := automerge.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	changes, err := doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}

	entries := make([]Entry, 0, len(changes))
	for _, change := range changes {
		if change.Message() == "seed" {
			continue
		}
		docAt, err := doc.Fork(change.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
		}
		tree, err := treeAt(docAt)
		if err != nil {
			return nil, fmt.Errorf("failed to read tree at %s: %w", change.Hash(), err)
		}
		count, _ := docAt.Path("transitions").Counter().Get()
		entries = append(entries, Entry{
			Hash:    change.Hash().String(),
			Actor:   change.ActorID(),
			Seq:     change.ActorSeq(),
			Action:  change.Message(),
			Time:    change.Timestamp(),
			Tree:    tree,
			Changes: count,
		})
	}
	return entries, nil
}

func treeAt(doc *automerge.Doc) (*state.StateTree, error) {
	tree := state.Initial()
	targets := map[string]any{
		"tags":           &tree.Tags,
		"questions":      &tree.Questions,
		"questionThread": &tree.QuestionThread,
	}
	for key, target := range targets {
		value, err := doc.Path(key).Get()
		if err != nil {
			return nil, err
		}
		raw, ok := value.Interface().(string)
		if !ok {
			continue
		}
		if err := json.Unmarshal([]byte(raw), target); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
	}
	if value, err := doc.Path("refreshNeeded").Get(); err == nil {
		if b, ok := value.Interface().(bool); ok {
			tree.RefreshNeeded = b
		}
	}
	return tree, nil
}
