package layers

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"

	"github.com/awalterschulze/gographviz"
	G "gorgonia.org/gorgonia"
)

// block is a named layer of the architecture, recorded for ToDot.
type block struct {
	Name   string
	Op     string
	Shape  string
	inputs []*G.Node
}

func (b *Builder) record(name, op string, out *G.Node, inputs ...*G.Node) {
	if b.err != nil || out == nil {
		return
	}
	b.producers[out] = len(b.blocks)
	b.blocks = append(b.blocks, block{
		Name:   name,
		Op:     op,
		Shape:  shapeString(out),
		inputs: inputs,
	})
}

// Alias makes n count as the output of the named block when drawing the architecture.
// Activations applied after a block are attached to it this way.
func (b *Builder) Alias(name string, n *G.Node) *G.Node {
	if b.err != nil || n == nil {
		return n
	}
	for i := len(b.blocks) - 1; i >= 0; i-- {
		if b.blocks[i].Name == name {
			b.producers[n] = i
			break
		}
	}
	return n
}

// ToDot renders the recorded blocks and the data flow between them.
func (b *Builder) ToDot() string {
	g := gographviz.NewGraph()
	if err := g.SetName("G"); err != nil {
		panic(err)
	}
	g.SetDir(true)

	var buf bytes.Buffer
	inputs := make(map[string]bool)
	for _, blk := range b.blocks {
		tmpl.Execute(&buf, blk)
		g.AddNode("G", strconv.Quote(blk.Name), map[string]string{
			"shape": "box",
			"label": strconv.Quote(buf.String()),
		})
		buf.Reset()
	}
	for _, blk := range b.blocks {
		for _, in := range blk.inputs {
			var src string
			if i, ok := b.producers[in]; ok {
				src = strconv.Quote(b.blocks[i].Name)
			} else {
				src = strconv.Quote(in.Name())
				if !inputs[src] {
					inputs[src] = true
					g.AddNode("G", src, map[string]string{
						"shape": "oval",
						"label": strconv.Quote(fmt.Sprintf("%s %v", in.Name(), in.Shape())),
					})
				}
			}
			g.AddEdge(src, strconv.Quote(blk.Name), true, nil)
		}
	}
	return g.String()
}

const tmplRaw = `{{.Name}} ({{.Op}}) {{.Shape}}`

var tmpl *template.Template

func init() {
	tmpl = template.Must(template.New("block").Parse(tmplRaw))
}
