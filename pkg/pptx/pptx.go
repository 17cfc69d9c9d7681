// Package pptx reads the text, tables, pictures and speaker notes out of an
// Office Open XML presentation.
package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/nikhilbhutani/slidecast/pkg/datauri"
)

const (
	relTypeSlide = "/slide"
	relTypeNotes = "/notesSlide"
	relTypeImage = "/image"

	// EmptyTable is emitted for a table that has no usable rows.
	EmptyTable = "Table is empty or improperly formatted."
)

var ErrNotPresentation = errors.New("not a pptx presentation")

type ElementKind string

const (
	KindText    ElementKind = "text"
	KindTable   ElementKind = "table"
	KindPicture ElementKind = "picture"
)

// Element is one shape on a slide. Text holds the shape text or a markdown table;
// Data and MIME are set for pictures.
type Element struct {
	Kind ElementKind
	Text string
	Data []byte
	MIME string
	Top  int64
	Left int64
}

type Slide struct {
	Number   int
	Path     string
	Elements []Element
	Notes    string
}

type Deck struct {
	Slides []Slide
}

// Open parses a .pptx held in memory.
func Open(data []byte) (*Deck, error) {
	return Read(bytes.NewReader(data), int64(len(data)))
}

// Read parses a .pptx from r. Slides come back in presentation order and
// are numbered from 1.
func Read(r io.ReaderAt, size int64) (*Deck, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPresentation, err)
	}

	p := &pkg{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.files[f.Name] = f
	}

	paths, err := p.slidePaths()
	if err != nil {
		return nil, err
	}

	deck := &Deck{Slides: make([]Slide, 0, len(paths))}
	for i, sp := range paths {
		slide, err := p.slide(sp)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", i+1, err)
		}
		slide.Number = i + 1
		deck.Slides = append(deck.Slides, *slide)
	}
	return deck, nil
}

type pkg struct {
	files map[string]*zip.File
}

func (p *pkg) read(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("missing part %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (p *pkg) decode(name string, v any) error {
	data, err := p.read(name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// rels loads the relationship part for name. A part without relationships
// yields an empty map.
func (p *pkg) rels(name string) (map[string]xmlRelationship, error) {
	relsPath := path.Join(path.Dir(name), "_rels", path.Base(name)+".rels")
	out := make(map[string]xmlRelationship)
	if _, ok := p.files[relsPath]; !ok {
		return out, nil
	}

	var doc xmlRelationships
	if err := p.decode(relsPath, &doc); err != nil {
		return nil, err
	}
	for _, r := range doc.Rels {
		out[r.ID] = r
	}
	return out, nil
}

func (p *pkg) slidePaths() ([]string, error) {
	const main = "ppt/presentation.xml"
	if _, ok := p.files[main]; !ok {
		return nil, ErrNotPresentation
	}

	var pres xmlPresentation
	if err := p.decode(main, &pres); err != nil {
		return nil, err
	}
	rels, err := p.rels(main)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(pres.SlideIDs))
	for _, id := range pres.SlideIDs {
		rel, ok := rels[id.RelID]
		if !ok || !strings.HasSuffix(rel.Type, relTypeSlide) {
			continue
		}
		paths = append(paths, resolve(main, rel.Target))
	}
	return paths, nil
}

func (p *pkg) slide(name string) (*Slide, error) {
	var doc xmlSlide
	if err := p.decode(name, &doc); err != nil {
		return nil, err
	}
	rels, err := p.rels(name)
	if err != nil {
		return nil, err
	}

	slide := &Slide{Path: name}
	p.collect(&doc.Tree, name, rels, xmlOffset{}, &slide.Elements)

	sort.SliceStable(slide.Elements, func(i, j int) bool {
		a, b := slide.Elements[i], slide.Elements[j]
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.Left < b.Left
	})

	for _, rel := range rels {
		if strings.HasSuffix(rel.Type, relTypeNotes) {
			slide.Notes, err = p.notes(resolve(name, rel.Target))
			if err != nil {
				return nil, err
			}
			break
		}
	}
	return slide, nil
}

// collect walks a shape tree, descending into groups. Group children carry
// offsets in the group's frame, so the group's own offset is added.
func (p *pkg) collect(tree *xmlShapeTree, slidePath string, rels map[string]xmlRelationship, base xmlOffset, out *[]Element) {
	for _, sp := range tree.Shapes {
		text := strings.TrimSpace(sp.Body.text())
		if text == "" {
			continue
		}
		*out = append(*out, Element{
			Kind: KindText,
			Text: text,
			Top:  base.Y + sp.Offset.Y,
			Left: base.X + sp.Offset.X,
		})
	}

	for _, gf := range tree.Frames {
		if gf.Table == nil {
			continue
		}
		*out = append(*out, Element{
			Kind: KindTable,
			Text: tableMarkdown(gf.Table),
			Top:  base.Y + gf.Offset.Y,
			Left: base.X + gf.Offset.X,
		})
	}

	for _, pic := range tree.Pics {
		rel, ok := rels[pic.Blip.Embed]
		if !ok || rel.TargetMode == "External" || !strings.HasSuffix(rel.Type, relTypeImage) {
			continue
		}
		media := resolve(slidePath, rel.Target)
		data, err := p.read(media)
		if err != nil || len(data) == 0 {
			continue
		}
		*out = append(*out, Element{
			Kind: KindPicture,
			Data: data,
			MIME: datauri.DetectMIME(data, media),
			Top:  base.Y + pic.Offset.Y,
			Left: base.X + pic.Offset.X,
		})
	}

	for i := range tree.Groups {
		g := &tree.Groups[i]
		off := xmlOffset{X: base.X + g.Offset.X, Y: base.Y + g.Offset.Y}
		p.collect(&g.xmlShapeTree, slidePath, rels, off, out)
	}
}

func (p *pkg) notes(name string) (string, error) {
	var doc xmlSlide
	if err := p.decode(name, &doc); err != nil {
		return "", err
	}

	var parts []string
	var walk func(t *xmlShapeTree)
	walk = func(t *xmlShapeTree) {
		for _, sp := range t.Shapes {
			if sp.Placeholder == nil || sp.Placeholder.Type != "body" {
				continue
			}
			if text := strings.TrimSpace(sp.Body.text()); text != "" {
				parts = append(parts, text)
			}
		}
		for i := range t.Groups {
			walk(&t.Groups[i].xmlShapeTree)
		}
	}
	walk(&doc.Tree)

	return strings.Join(parts, "\n"), nil
}

// tableMarkdown renders the first row as a header followed by a separator.
func tableMarkdown(t *xmlTable) string {
	var rows [][]string
	for _, r := range t.Rows {
		cells := make([]string, 0, len(r.Cells))
		for _, c := range r.Cells {
			text := strings.TrimSpace(c.Body.text())
			cells = append(cells, strings.ReplaceAll(text, "\n", " "))
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	if len(rows) == 0 {
		return EmptyTable
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}

	writeRow(rows[0])
	sep := make([]string, len(rows[0]))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// resolve turns a relationship target into a package path relative to the
// part that owns the relationship.
func resolve(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(source), target))
}
