package viz

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/questionsync/pkg/state"
)

// RenderTree writes a graph of tree in the given format: tags, the questions that use them, and the open thread
// with its answers.
func RenderTree(tree *state.StateTree, format graphviz.Format, out *bytes.Buffer) error {
	g := graphviz.New()
	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer func() {
		_ = graph.Close()
		_ = g.Close()
	}()

	b := &builder{graph: graph, nodes: make(map[string]*cgraph.Node)}

	for _, tag := range tree.Tags {
		if _, err := b.node("tag:"+strconv.FormatInt(tag.ID, 10), "#"+tag.Text, "ellipse"); err != nil {
			return err
		}
	}
	for _, q := range tree.Questions {
		qn, err := b.node("question:"+q.ID, fmt.Sprintf("%s\nby %s", q.Title, q.AuthorFullName), "box")
		if err != nil {
			return err
		}
		for _, tag := range q.Tags {
			tn, err := b.node("tag:"+strconv.FormatInt(tag.ID, 10), "#"+tag.Text, "ellipse")
			if err != nil {
				return err
			}
			if err := b.edge(tn, qn); err != nil {
				return err
			}
		}
	}
	if thread := tree.QuestionThread; thread != nil {
		label := thread.Question.Title
		if label == "" {
			label = thread.ThreadID()
		}
		qn, err := b.node("question:"+thread.ThreadID(), label, "box")
		if err != nil {
			return err
		}
		qn.SetPenWidth(3)
		for _, answer := range thread.Answers {
			an, err := b.node("answer:"+answer.ID, fmt.Sprintf("%s (%+d)\n%s", answer.AuthorID, answer.Votes, truncate(answer.Text, 40)), "note")
			if err != nil {
				return err
			}
			if err := b.edge(qn, an); err != nil {
				return err
			}
		}
	}
	if tree.RefreshNeeded {
		graph.SetLabel("refresh needed")
	}

	if err := g.Render(graph, format, out); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	return nil
}

func RenderTreeToSvg(tree *state.StateTree, outputPath string) error {
	var buff bytes.Buffer
	if err := RenderTree(tree, graphviz.SVG, &buff); err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

func RenderToTemp(tree *state.StateTree) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
	if err := RenderTreeToSvg(tree, tf); err != nil {
		return "", err
	}
	return tf, nil
}

type builder struct {
	graph *cgraph.Graph
	nodes map[string]*cgraph.Node
	edges int
}

// node returns the node called name, creating it on first use.
func (b *builder) node(name string, label string, shape cgraph.Shape) (*cgraph.Node, error) {
	if n, ok := b.nodes[name]; ok {
		return n, nil
	}
	n, err := b.graph.CreateNode(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	n.SetLabel(label)
	n.SetShape(shape)
	b.nodes[name] = n
	return n, nil
}

func (b *builder) edge(from *cgraph.Node, to *cgraph.Node) error {
	b.edges++
	if _, err := b.graph.CreateEdge(strconv.Itoa(b.edges), from, to); err != nil {
		return fmt.Errorf("failed to create edge: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
