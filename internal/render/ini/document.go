// Package ini собирает текстовые документы для телефонов:
// секции [SECTION] и строки key=value в порядке добавления.
package ini

import (
	"strings"
)

type entry struct{ key, value string }

type Section struct {
	name    string
	entries []entry
}

type Document struct {
	header   []string
	sections []*Section
}

func New() *Document { return &Document{} }

// Header — строка до первой секции (например "#!version:1.0.0.1").
func (d *Document) Header(line string) *Document {
	d.header = append(d.header, oneLine(line))
	return d
}

// Section возвращает секцию, создавая её при первом обращении.
func (d *Document) Section(name string) *Section {
	name = oneLine(name)
	for _, s := range d.sections {
		if s.name == name {
			return s
		}
	}
	s := &Section{name: name}
	d.sections = append(d.sections, s)
	return s
}

// Set — пустые значения не пишутся.
func (s *Section) Set(key, value string) *Section {
	if value == "" {
		return s
	}
	s.entries = append(s.entries, entry{key: oneLine(key), value: oneLine(value)})
	return s
}

func (d *Document) String() string {
	var b strings.Builder
	for _, h := range d.header {
		b.WriteString(h)
		b.WriteByte('\n')
	}
	for i, s := range d.sections {
		if i > 0 || len(d.header) > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[" + s.name + "]\n")
		for _, e := range s.entries {
			b.WriteString(e.key)
			b.WriteByte('=')
			b.WriteString(e.value)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (d *Document) Bytes() []byte { return []byte(d.String()) }

// oneLine не даёт значению разорвать документ на лишние строки.
func oneLine(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(strings.TrimSpace(s))
}
